package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/models"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/pkg/database"
)

// Postgres implements the store interfaces on PostgreSQL.
type Postgres struct {
	db database.PostgresConn
}

// NewPostgres wraps an open connection pool.
func NewPostgres(db database.PostgresConn) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) LoadContentItem(ctx context.Context, id string) (*models.ContentItem, error) {
	item := &models.ContentItem{}
	var scheduledAt sql.NullTime
	var mediaURLs pq.StringArray
	err := p.db.QueryRowContext(ctx, `
		SELECT id, brand_id, status, body, media_urls, scheduled_at, created_at, updated_at
		FROM content_items WHERE id = $1
	`, id).Scan(&item.ID, &item.BrandID, &item.Status, &item.Body, &mediaURLs, &scheduledAt, &item.CreatedAt, &item.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load content item: %w", err)
	}
	item.MediaURLs = mediaURLs
	if scheduledAt.Valid {
		at := scheduledAt.Time
		item.ScheduledAt = &at
	}
	return item, nil
}

func (p *Postgres) SaveContentItem(ctx context.Context, item *models.ContentItem) error {
	var scheduledAt interface{}
	if item.ScheduledAt != nil {
		scheduledAt = *item.ScheduledAt
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO content_items (id, brand_id, status, body, media_urls, scheduled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			body = EXCLUDED.body,
			media_urls = EXCLUDED.media_urls,
			scheduled_at = EXCLUDED.scheduled_at,
			updated_at = NOW()
	`, item.ID, item.BrandID, item.Status, item.Body, pq.StringArray(item.MediaURLs), scheduledAt)
	if err != nil {
		return fmt.Errorf("save content item: %w", err)
	}
	return nil
}

func (p *Postgres) CreateJob(ctx context.Context, job *models.PublishingJob) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create job: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO publishing_jobs (id, content_id, brand_id, status, scheduled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`, job.ID, job.ContentID, job.BrandID, job.Status, job.ScheduledAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	for _, d := range job.Channels {
		if err := upsertChannel(ctx, tx, job.ID, d); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) GetJob(ctx context.Context, id string) (*models.PublishingJob, error) {
	job, err := scanJob(ctx, p.db.QueryRowContext, id)
	if err != nil {
		return nil, err
	}
	if err := p.loadChannels(ctx, p.db.QueryContext, job); err != nil {
		return nil, err
	}
	return job, nil
}

// UpdateJob runs mutate inside a transaction holding a row lock on the job, so
// concurrent channel completions serialize and the derived status never loses
// an update.
func (p *Postgres) UpdateJob(ctx context.Context, id string, mutate func(*models.PublishingJob) error) (*models.PublishingJob, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update job: %w", err)
	}
	defer tx.Rollback()

	job := &models.PublishingJob{Channels: map[string]*models.ChannelDelivery{}}
	err = tx.QueryRowContext(ctx, `
		SELECT id, content_id, brand_id, status, scheduled_at, created_at, updated_at
		FROM publishing_jobs WHERE id = $1 FOR UPDATE
	`, id).Scan(&job.ID, &job.ContentID, &job.BrandID, &job.Status, &job.ScheduledAt, &job.CreatedAt, &job.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock job: %w", err)
	}
	if err := p.loadChannels(ctx, tx.QueryContext, job); err != nil {
		return nil, err
	}

	if err := mutate(job); err != nil {
		return nil, err
	}
	job.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE publishing_jobs SET status = $2, scheduled_at = $3, updated_at = NOW() WHERE id = $1
	`, job.ID, job.Status, job.ScheduledAt)
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	for _, d := range job.Channels {
		if err := upsertChannel(ctx, tx, job.ID, d); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update job: %w", err)
	}
	return job, nil
}

// ListUnsettledJobs uses the partial index on due jobs to keep the startup
// scan cheap even when the jobs table has grown large.
func (p *Postgres) ListUnsettledJobs(ctx context.Context) ([]*models.PublishingJob, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, content_id, brand_id, status, scheduled_at, created_at, updated_at
		FROM publishing_jobs WHERE status IN ('pending', 'processing')
		ORDER BY scheduled_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list unsettled jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.PublishingJob
	for rows.Next() {
		job := &models.PublishingJob{Channels: map[string]*models.ChannelDelivery{}}
		if err := rows.Scan(&job.ID, &job.ContentID, &job.BrandID, &job.Status,
			&job.ScheduledAt, &job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan unsettled job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, job := range jobs {
		if err := p.loadChannels(ctx, p.db.QueryContext, job); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

type rowQuerier func(ctx context.Context, query string, args ...interface{}) *sql.Row

type queryFunc func(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)

func scanJob(ctx context.Context, queryRow rowQuerier, id string) (*models.PublishingJob, error) {
	job := &models.PublishingJob{Channels: map[string]*models.ChannelDelivery{}}
	err := queryRow(ctx, `
		SELECT id, content_id, brand_id, status, scheduled_at, created_at, updated_at
		FROM publishing_jobs WHERE id = $1
	`, id).Scan(&job.ID, &job.ContentID, &job.BrandID, &job.Status, &job.ScheduledAt, &job.CreatedAt, &job.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	return job, nil
}

func (p *Postgres) loadChannels(ctx context.Context, query queryFunc, job *models.PublishingJob) error {
	rows, err := query(ctx, `
		SELECT channel, status, retry_count, max_retries, last_error_kind, last_error_msg,
		       platform_post_id, platform_url, updated_at
		FROM job_channels WHERE job_id = $1
	`, job.ID)
	if err != nil {
		return fmt.Errorf("load job channels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		d := &models.ChannelDelivery{}
		var errKind, errMsg, postID, postURL sql.NullString
		if err := rows.Scan(&d.Channel, &d.Status, &d.RetryCount, &d.MaxRetries,
			&errKind, &errMsg, &postID, &postURL, &d.UpdatedAt); err != nil {
			return fmt.Errorf("scan job channel: %w", err)
		}
		if errKind.Valid {
			d.LastError = &models.ChannelError{Kind: errKind.String, Message: errMsg.String}
		}
		d.PlatformPostID = postID.String
		d.PlatformURL = postURL.String
		job.Channels[d.Channel] = d
	}
	return rows.Err()
}

func upsertChannel(ctx context.Context, tx *sql.Tx, jobID string, d *models.ChannelDelivery) error {
	var errKind, errMsg interface{}
	if d.LastError != nil {
		errKind = d.LastError.Kind
		errMsg = d.LastError.Message
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO job_channels (job_id, channel, status, retry_count, max_retries,
			last_error_kind, last_error_msg, platform_post_id, platform_url, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (job_id, channel) DO UPDATE SET
			status = EXCLUDED.status,
			retry_count = EXCLUDED.retry_count,
			max_retries = EXCLUDED.max_retries,
			last_error_kind = EXCLUDED.last_error_kind,
			last_error_msg = EXCLUDED.last_error_msg,
			platform_post_id = EXCLUDED.platform_post_id,
			platform_url = EXCLUDED.platform_url,
			updated_at = NOW()
	`, jobID, d.Channel, d.Status, d.RetryCount, d.MaxRetries, errKind, errMsg,
		nullIfEmpty(d.PlatformPostID), nullIfEmpty(d.PlatformURL))
	if err != nil {
		return fmt.Errorf("upsert job channel %s: %w", d.Channel, err)
	}
	return nil
}

func (p *Postgres) GetPostingSchedule(ctx context.Context, brandID string) (*models.PostingSchedule, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT windows FROM posting_schedules WHERE brand_id = $1
	`, brandID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load posting schedule: %w", err)
	}

	schedule := &models.PostingSchedule{BrandID: brandID}
	if err := json.Unmarshal(raw, &schedule.Windows); err != nil {
		return nil, fmt.Errorf("decode posting schedule: %w", err)
	}
	return schedule, nil
}

func (p *Postgres) SavePostingSchedule(ctx context.Context, schedule *models.PostingSchedule) error {
	raw, err := json.Marshal(schedule.Windows)
	if err != nil {
		return fmt.Errorf("encode posting schedule: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO posting_schedules (brand_id, windows, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (brand_id) DO UPDATE SET windows = EXCLUDED.windows, updated_at = NOW()
	`, schedule.BrandID, raw)
	if err != nil {
		return fmt.Errorf("save posting schedule: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
