package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adlens/serp-crawler/internal/batch"
	"github.com/adlens/serp-crawler/internal/domain"
	"github.com/adlens/serp-crawler/internal/jobstate"
	"github.com/adlens/serp-crawler/internal/ledger"
	"github.com/adlens/serp-crawler/internal/store"
)

type fakeStatusStore struct {
	rows map[string]store.JobStatusRow
}

func (f *fakeStatusStore) JobStatus(_ context.Context, jobID string) (*store.JobStatusRow, error) {
	row, ok := f.rows[jobID]
	if !ok {
		return nil, fmt.Errorf("job status for %s: %w", jobID, store.ErrNotFound)
	}
	return &row, nil
}

func (f *fakeStatusStore) UpsertJobStatus(_ context.Context, row *store.JobStatusRow) error {
	f.rows[row.JobID] = *row
	return nil
}

type fakeFailureStore struct {
	inserted []domain.FailureRecord
}

func (f *fakeFailureStore) InsertFailure(_ context.Context, rec *domain.FailureRecord) error {
	f.inserted = append(f.inserted, *rec)
	return nil
}

func (f *fakeFailureStore) FailuresByJob(context.Context, string) ([]domain.FailureRecord, error) {
	return nil, nil
}

func (f *fakeFailureStore) FailureStats(context.Context) (*store.FailureStats, error) {
	return &store.FailureStats{}, nil
}

func (f *fakeFailureStore) CallReprocess(context.Context, string) error { return nil }

func (f *fakeFailureStore) MarkFailuresProcessed(context.Context, string) (int64, error) {
	return 0, nil
}

type fakeFetcher struct {
	err      error
	attempts int
}

func (f *fakeFetcher) Fetch(_ context.Context, job domain.Job) (*domain.FetchedPage, error) {
	f.attempts++
	if f.err != nil {
		return nil, f.err
	}
	return &domain.FetchedPage{JobID: job.ID, Query: job.Query, Markup: "<html></html>"}, nil
}

type fakePublisher struct {
	published []*domain.FetchedPage
}

func (p *fakePublisher) Publish(_ context.Context, page *domain.FetchedPage) error {
	p.published = append(p.published, page)
	return nil
}

func TestProcessJobFetchFailureExhaustsRetriesAndFailsJob(t *testing.T) {
	ctx := context.Background()
	statusStore := &fakeStatusStore{rows: make(map[string]store.JobStatusRow)}
	failureStore := &fakeFailureStore{}
	tracker := jobstate.NewTracker(statusStore, zap.NewNop())
	failures := ledger.NewLedger(failureStore, zap.NewNop())
	buckets := batch.NewManager(batch.NewMemoryStore(), zap.NewNop())
	fetch := &fakeFetcher{err: errors.New("upstream 503")}
	publisher := &fakePublisher{}

	job := domain.NewJob("job-1", "plumber boston", "boston")
	require.NoError(t, buckets.Submit(ctx, *job))

	err := processJob(ctx, *job, buckets, tracker, failures, fetch, publisher, zap.NewNop())
	require.Error(t, err)

	// The fetch burned the full retry budget and never reached the queue
	assert.Equal(t, jobstate.MaxAttempts, fetch.attempts)
	assert.Empty(t, publisher.published)

	row := statusStore.rows["job-1"]
	assert.Equal(t, domain.StageFailed, row.Fetch)
	assert.Equal(t, domain.StatusFailed, row.Status)

	require.Len(t, failureStore.inserted, 1)
	assert.Equal(t, domain.ReasonUpstreamFetch, failureStore.inserted[0].Reason)
	assert.Equal(t, "job-1", failureStore.inserted[0].JobID)
	assert.Equal(t, "plumber boston", failureStore.inserted[0].Query)
}

func TestProcessJobPublishesOnFetchSuccess(t *testing.T) {
	ctx := context.Background()
	statusStore := &fakeStatusStore{rows: make(map[string]store.JobStatusRow)}
	failureStore := &fakeFailureStore{}
	tracker := jobstate.NewTracker(statusStore, zap.NewNop())
	failures := ledger.NewLedger(failureStore, zap.NewNop())
	buckets := batch.NewManager(batch.NewMemoryStore(), zap.NewNop())
	fetch := &fakeFetcher{}
	publisher := &fakePublisher{}

	job := domain.NewJob("job-1", "plumber boston", "boston")
	require.NoError(t, buckets.Submit(ctx, *job))

	require.NoError(t, processJob(ctx, *job, buckets, tracker, failures, fetch, publisher, zap.NewNop()))

	require.Len(t, publisher.published, 1)
	assert.Equal(t, "job-1", publisher.published[0].JobID)
	assert.Equal(t, 1, fetch.attempts)

	row := statusStore.rows["job-1"]
	assert.Equal(t, domain.StageSucceeded, row.Fetch)
	assert.Empty(t, failureStore.inserted)
}
