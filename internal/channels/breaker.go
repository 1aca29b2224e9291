package channels

import (
	"context"
	"errors"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/models"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/pkg/logging"
)

// BreakerConfig tunes the per-channel circuit breaker.
type BreakerConfig struct {
	// FailureThreshold trips the circuit after this many failures out of
	// Capacity executions. Default: 5 of 10.
	FailureThreshold uint
	Capacity         uint

	// Delay is how long the circuit stays open before probing. Default: 30s.
	Delay time.Duration
}

// DefaultBreakerConfig returns the defaults used for platform adapters.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Capacity:         10,
		Delay:            30 * time.Second,
	}
}

type breakerAdapter struct {
	Adapter
	cb     circuitbreaker.CircuitBreaker[*PlatformResult]
	logger logging.Logger
}

// WithBreaker wraps an adapter so a flapping platform trips a circuit breaker
// instead of burning retries. An open circuit reads as a transient failure,
// so the runner's backoff schedule naturally spaces out probes. Permanent
// publish errors do not count against the circuit.
func WithBreaker(adapter Adapter, cfg BreakerConfig, logger logging.Logger) Adapter {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Capacity < cfg.FailureThreshold {
		cfg.Capacity = cfg.FailureThreshold * 2
	}
	if cfg.Delay == 0 {
		cfg.Delay = 30 * time.Second
	}

	cb := circuitbreaker.NewBuilder[*PlatformResult]().
		WithFailureThresholdRatio(cfg.FailureThreshold, cfg.Capacity).
		WithDelay(cfg.Delay).
		HandleIf(func(_ *PlatformResult, err error) bool {
			if err == nil {
				return false
			}
			return Classify(err).Kind == models.ErrorKindTransient
		}).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			logger.WithFields(logging.Fields{
				"channel":    adapter.ID(),
				"from_state": stateName(event.OldState),
				"to_state":   stateName(event.NewState),
			}).Warn("Channel circuit breaker state change")
		}).
		Build()

	return &breakerAdapter{Adapter: adapter, cb: cb, logger: logger}
}

func (b *breakerAdapter) Publish(ctx context.Context, content *models.ContentItem) (*PlatformResult, error) {
	result, err := failsafe.With(b.cb).WithContext(ctx).Get(func() (*PlatformResult, error) {
		return b.Adapter.Publish(ctx, content)
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return nil, Transient("channel circuit open", err)
		}
		return nil, err
	}
	return result, nil
}

func stateName(state circuitbreaker.State) string {
	switch state {
	case circuitbreaker.ClosedState:
		return "closed"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	case circuitbreaker.OpenState:
		return "open"
	default:
		return "unknown"
	}
}
