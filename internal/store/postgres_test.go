package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/models"
)

func TestPostgresLoadContentItem(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	scheduled := now.Add(time.Hour)
	rows := sqlmock.NewRows([]string{"id", "brand_id", "status", "body", "media_urls", "scheduled_at", "created_at", "updated_at"}).
		AddRow("c-1", "b-1", "scheduled", "post body", pq.StringArray{"https://cdn/img.png"}, scheduled, now, now)

	mock.ExpectQuery("SELECT id, brand_id, status, body, media_urls, scheduled_at, created_at, updated_at").
		WithArgs("c-1").
		WillReturnRows(rows)

	p := NewPostgres(db)
	item, err := p.LoadContentItem(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, models.ContentScheduled, item.Status)
	require.NotNil(t, item.ScheduledAt)
	assert.True(t, item.ScheduledAt.Equal(scheduled))
	assert.Equal(t, []string{"https://cdn/img.png"}, item.MediaURLs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoadContentItemNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, brand_id, status").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	p := NewPostgres(db)
	_, err = p.LoadContentItem(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresGetJobAssemblesChannels(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	jobRows := sqlmock.NewRows([]string{"id", "content_id", "brand_id", "status", "scheduled_at", "created_at", "updated_at"}).
		AddRow("j-1", "c-1", "b-1", "processing", now, now, now)
	channelRows := sqlmock.NewRows([]string{"channel", "status", "retry_count", "max_retries",
		"last_error_kind", "last_error_msg", "platform_post_id", "platform_url", "updated_at"}).
		AddRow("instagram", "published", 0, 3, nil, nil, "ig-9", "https://ig/p/9", now).
		AddRow("linkedin", "pending", 1, 3, "transient", "rate limited", nil, nil, now)

	mock.ExpectQuery("SELECT id, content_id, brand_id, status, scheduled_at").
		WithArgs("j-1").
		WillReturnRows(jobRows)
	mock.ExpectQuery("SELECT channel, status, retry_count, max_retries").
		WithArgs("j-1").
		WillReturnRows(channelRows)

	p := NewPostgres(db)
	job, err := p.GetJob(context.Background(), "j-1")
	require.NoError(t, err)

	assert.Equal(t, models.JobProcessing, job.Status)
	require.Len(t, job.Channels, 2)
	assert.Equal(t, "ig-9", job.Channels["instagram"].PlatformPostID)
	require.NotNil(t, job.Channels["linkedin"].LastError)
	assert.Equal(t, models.ErrorKindTransient, job.Channels["linkedin"].LastError.Kind)
	assert.Equal(t, 1, job.Channels["linkedin"].RetryCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateJobCommitsUnderRowLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("FROM publishing_jobs WHERE id = \\$1 FOR UPDATE").
		WithArgs("j-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "content_id", "brand_id", "status", "scheduled_at", "created_at", "updated_at"}).
			AddRow("j-1", "c-1", "b-1", "pending", now, now, now))
	mock.ExpectQuery("SELECT channel, status, retry_count, max_retries").
		WithArgs("j-1").
		WillReturnRows(sqlmock.NewRows([]string{"channel", "status", "retry_count", "max_retries",
			"last_error_kind", "last_error_msg", "platform_post_id", "platform_url", "updated_at"}).
			AddRow("instagram", "pending", 0, 3, nil, nil, nil, nil, now))
	mock.ExpectExec("UPDATE publishing_jobs SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO job_channels").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p := NewPostgres(db)
	job, err := p.UpdateJob(context.Background(), "j-1", func(j *models.PublishingJob) error {
		j.Channels["instagram"].Status = models.ChannelPublished
		j.Status = j.DeriveStatus()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobPublished, job.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPostingScheduleRoundTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO posting_schedules").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT windows FROM posting_schedules").
		WithArgs("b-1").
		WillReturnRows(sqlmock.NewRows([]string{"windows"}).
			AddRow([]byte(`{"1":[{"start":"09:00","end":"11:00"}]}`)))

	p := NewPostgres(db)
	err = p.SavePostingSchedule(context.Background(), &models.PostingSchedule{
		BrandID: "b-1",
		Windows: map[time.Weekday][]models.PostingWindow{
			time.Monday: {{Start: "09:00", End: "11:00"}},
		},
	})
	require.NoError(t, err)

	schedule, err := p.GetPostingSchedule(context.Background(), "b-1")
	require.NoError(t, err)
	require.Len(t, schedule.Windows[time.Monday], 1)
	assert.Equal(t, "09:00", schedule.Windows[time.Monday][0].Start)
	require.NoError(t, mock.ExpectationsWereMet())
}
