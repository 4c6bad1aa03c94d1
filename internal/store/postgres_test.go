package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adlens/serp-crawler/internal/domain"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, zap.NewNop()), mock
}

func TestStagingStatusNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT status FROM staging_records").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	_, err := s.StagingStatus(context.Background(), "job-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetStagingStatusNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE staging_records SET status").
		WithArgs("job-1", StagingProcessed).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.SetStagingStatus(context.Background(), "job-1", StagingProcessed)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSerpAssignsID(t *testing.T) {
	s, mock := newMockStore(t)

	rec := &SerpRecord{JobID: "job-1", Query: "plumber boston", Location: "boston", FetchedAt: time.Now()}

	mock.ExpectExec("INSERT INTO serp_records").
		WithArgs(sqlmock.AnyArg(), rec.JobID, rec.Query, rec.Location, rec.FetchedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.InsertSerp(context.Background(), rec))
	assert.NotEmpty(t, rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSerpByJobNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, job_id, query, location, fetched_at, created_at").
		WithArgs("job-9").
		WillReturnRows(sqlmock.NewRows([]string{"id", "job_id", "query", "location", "fetched_at", "created_at"}))

	_, err := s.SerpByJob(context.Background(), "job-9")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAdReturnsID(t *testing.T) {
	s, mock := newMockStore(t)

	ad := domain.AdRecord{
		Position:         1,
		Title:            "Emergency Plumbing",
		DestinationURL:   "https://example-plumbing.com/book",
		AdvertiserDomain: "example-plumbing.com",
		Group:            domain.GroupTop,
	}

	mock.ExpectExec("INSERT INTO ad_records").
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := s.InsertAd(context.Background(), ad)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdExists(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("ad-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.AdExists(context.Background(), "ad-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStatusRoundTrip(t *testing.T) {
	s, mock := newMockStore(t)

	started := time.Now()
	mock.ExpectQuery("SELECT job_id, status, fetch_status").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"job_id", "status", "fetch_status", "parse_status", "extract_status",
			"render_status", "render_requested", "started_at", "completed_at",
		}).AddRow("job-1", "in_progress", "succeeded", "running", "pending", "pending", true, started, nil))

	row, err := s.JobStatus(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, row.Status)
	assert.Equal(t, domain.StageSucceeded, row.Fetch)
	assert.Equal(t, domain.StageRunning, row.Parse)
	assert.True(t, row.RenderRequested)
	assert.Nil(t, row.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertFailureScansAssignedFields(t *testing.T) {
	s, mock := newMockStore(t)

	created := time.Now()
	mock.ExpectQuery("INSERT INTO extraction_failures").
		WithArgs("job-1", "plumber boston", "no_ad_containers", false).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), created))

	rec := &domain.FailureRecord{JobID: "job-1", Query: "plumber boston", Reason: domain.ReasonNoAdContainers}
	require.NoError(t, s.InsertFailure(context.Background(), rec))
	assert.Equal(t, int64(7), rec.ID)
	assert.Equal(t, created, rec.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailureStats(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT job_id, failure_reason, processed FROM extraction_failures").
		WillReturnRows(sqlmock.NewRows([]string{"job_id", "failure_reason", "processed"}).
			AddRow("job-1", "no_ad_containers", false).
			AddRow("job-1", "persist_failed", true).
			AddRow("job-2", "no_ad_containers", false))

	stats, err := s.FailureStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByReason[domain.ReasonNoAdContainers])
	assert.Equal(t, 2, stats.ByProcessed[false])
	assert.Equal(t, 2, stats.ByJob["job-1"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCallReprocess(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`SELECT reprocess_serp_job($1)`)).
		WithArgs("job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.CallReprocess(context.Background(), "job-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailuresProcessed(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE extraction_failures SET processed").
		WithArgs("job-1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := s.MarkFailuresProcessed(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
