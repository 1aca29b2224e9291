package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/models"
)

// WebhookConfig configures a generic bridge adapter that relays publish
// requests to a platform bridge over HTTP. The bridge owns the platform's
// wire format; this adapter only carries the capability contract.
type WebhookConfig struct {
	Channel string
	URL     string
	Token   string

	// Limits enforced during validation.
	MaxBodyLen   int
	MaxMediaURLs int

	// Timeout bounds one publish call end to end.
	Timeout time.Duration

	// ConnRetries retries connection-level errors inside a single publish
	// attempt. Retry across attempts belongs to the job runner.
	ConnRetries int

	HTTPClient *http.Client
}

type webhookAdapter struct {
	cfg      WebhookConfig
	client   *http.Client
	executor failsafe.Executor[*http.Response]
}

// NewWebhook builds an HTTP bridge adapter.
func NewWebhook(cfg WebhookConfig) Adapter {
	if cfg.MaxBodyLen == 0 {
		cfg.MaxBodyLen = 5000
	}
	if cfg.MaxMediaURLs == 0 {
		cfg.MaxMediaURLs = 10
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	retry := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(100*time.Millisecond, 2*time.Second).
		WithMaxRetries(cfg.ConnRetries).
		WithJitterFactor(0.1).
		HandleIf(func(resp *http.Response, err error) bool {
			// Only connection-level errors retry here; HTTP statuses are
			// classified by the caller.
			return err != nil
		}).
		Build()

	return &webhookAdapter{
		cfg:      cfg,
		client:   client,
		executor: failsafe.With(retry),
	}
}

func (w *webhookAdapter) ID() string { return w.cfg.Channel }

func (w *webhookAdapter) PublishTimeout() time.Duration { return w.cfg.Timeout }

func (w *webhookAdapter) Validate(_ context.Context, content *models.ContentItem) []ValidationResult {
	var results []ValidationResult
	if content.Body == "" && len(content.MediaURLs) == 0 {
		results = append(results, ValidationResult{
			Severity: SeverityError,
			Field:    "body",
			Message:  "content is empty",
		})
	}
	if len(content.Body) > w.cfg.MaxBodyLen {
		results = append(results, ValidationResult{
			Severity: SeverityError,
			Field:    "body",
			Message:  fmt.Sprintf("body exceeds %d characters for %s", w.cfg.MaxBodyLen, w.cfg.Channel),
		})
	}
	if len(content.MediaURLs) > w.cfg.MaxMediaURLs {
		results = append(results, ValidationResult{
			Severity: SeverityError,
			Field:    "media_urls",
			Message:  fmt.Sprintf("at most %d media attachments allowed for %s", w.cfg.MaxMediaURLs, w.cfg.Channel),
		})
	}
	return results
}

type webhookRequest struct {
	ContentID string   `json:"content_id"`
	BrandID   string   `json:"brand_id"`
	Body      string   `json:"body"`
	MediaURLs []string `json:"media_urls,omitempty"`
}

type webhookResponse struct {
	PostID string `json:"post_id"`
	URL    string `json:"url"`
	Error  string `json:"error"`
}

func (w *webhookAdapter) Publish(ctx context.Context, content *models.ContentItem) (*PlatformResult, error) {
	payload, err := json.Marshal(webhookRequest{
		ContentID: content.ID,
		BrandID:   content.BrandID,
		Body:      content.Body,
		MediaURLs: content.MediaURLs,
	})
	if err != nil {
		return nil, Permanent("encode publish payload", err)
	}

	resp, err := w.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(payload))
		if reqErr != nil {
			return nil, reqErr
		}
		req.Header.Set("Content-Type", "application/json")
		if w.cfg.Token != "" {
			req.Header.Set("Authorization", "Bearer "+w.cfg.Token)
		}
		return w.client.Do(req)
	})
	if err != nil {
		return nil, Classify(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, Transient("read bridge response", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var decoded webhookResponse
		if err := json.Unmarshal(body, &decoded); err != nil {
			return nil, Transient("decode bridge response", err)
		}
		return &PlatformResult{PostID: decoded.PostID, URL: decoded.URL}, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, Transient(fmt.Sprintf("bridge returned %d", resp.StatusCode), nil)
	default:
		msg := fmt.Sprintf("bridge rejected publish with %d", resp.StatusCode)
		var decoded webhookResponse
		if json.Unmarshal(body, &decoded) == nil && decoded.Error != "" {
			msg = decoded.Error
		}
		return nil, Permanent(msg, nil)
	}
}
