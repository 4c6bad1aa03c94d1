package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adlens/serp-crawler/internal/domain"
)

func newTestManager() (*Manager, *MemoryStore) {
	st := NewMemoryStore()
	return NewManager(st, zap.NewNop()), st
}

func submitJobs(t *testing.T, m *Manager, ids ...string) {
	t.Helper()
	for _, id := range ids {
		job := domain.NewJob(id, "query for "+id, "boston")
		require.NoError(t, m.Submit(context.Background(), *job))
	}
}

func TestMoveLifecycle(t *testing.T) {
	ctx := context.Background()
	m, st := newTestManager()
	submitJobs(t, m, "job-1", "job-2")

	require.NoError(t, m.MoveToInProgress(ctx, "job-1"))
	require.NoError(t, m.MoveToCompleted(ctx, "job-1"))

	submitted, _ := st.Load(ctx, BucketSubmitted)
	inProgress, _ := st.Load(ctx, BucketInProgress)
	completed, _ := st.Load(ctx, BucketCompleted)

	for _, job := range submitted {
		assert.NotEqual(t, "job-1", job.ID)
	}
	assert.Empty(t, inProgress)
	require.Len(t, completed, 1)
	assert.Equal(t, "job-1", completed[0].ID)
	assert.NotNil(t, completed[0].CompletedAt)
	assert.Equal(t, domain.StatusCompleted, completed[0].Status)
}

func TestMoveToInProgressNotFound(t *testing.T) {
	ctx := context.Background()
	m, st := newTestManager()
	submitJobs(t, m, "job-1")

	err := m.MoveToInProgress(ctx, "job-9")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrJobNotFound))
	assert.Contains(t, err.Error(), "job-9")

	// All buckets unchanged
	submitted, _ := st.Load(ctx, BucketSubmitted)
	inProgress, _ := st.Load(ctx, BucketInProgress)
	completed, _ := st.Load(ctx, BucketCompleted)
	assert.Len(t, submitted, 1)
	assert.Empty(t, inProgress)
	assert.Empty(t, completed)
}

func TestMoveWritesBackupSnapshot(t *testing.T) {
	ctx := context.Background()
	m, st := newTestManager()
	submitJobs(t, m, "job-1", "job-2", "job-3")

	require.NoError(t, m.MoveToInProgress(ctx, "job-2"))

	// The snapshot holds the pre-move submitted bucket
	backup, err := st.Load(ctx, BucketSubmittedBackup)
	require.NoError(t, err)
	require.Len(t, backup, 3)
	assert.Equal(t, "job-2", backup[1].ID)

	submitted, _ := st.Load(ctx, BucketSubmitted)
	assert.Len(t, submitted, 2)
}

func TestSubmitDuplicateRejected(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()
	submitJobs(t, m, "job-1")

	err := m.Submit(ctx, *domain.NewJob("job-1", "again", ""))
	require.Error(t, err)

	// Also rejected once the job moved on
	require.NoError(t, m.MoveToInProgress(ctx, "job-1"))
	err = m.Submit(ctx, *domain.NewJob("job-1", "again", ""))
	require.Error(t, err)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()
	submitJobs(t, m, "job-1", "job-2", "job-3")
	require.NoError(t, m.MoveToInProgress(ctx, "job-1"))
	require.NoError(t, m.MoveToCompleted(ctx, "job-1"))
	require.NoError(t, m.MoveToInProgress(ctx, "job-2"))

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Submitted)
	assert.Equal(t, 1, stats.InProgress)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 3, stats.Total)
}

func TestStatusCapsCompletedListing(t *testing.T) {
	ctx := context.Background()
	m, st := newTestManager()

	for i := 1; i <= 12; i++ {
		id := fmt.Sprintf("job-%d", i)
		submitJobs(t, m, id)
		require.NoError(t, m.MoveToInProgress(ctx, id))
		require.NoError(t, m.MoveToCompleted(ctx, id))
	}

	out, err := m.Status(ctx)
	require.NoError(t, err)

	// Header shows the real count, the listing caps at 10, newest first
	assert.Contains(t, out, "completed (12):")
	assert.Equal(t, 10, strings.Count(out, "  job-"))
	idx12 := strings.Index(out, "job-12")
	idx3 := strings.Index(out, "job-3")
	require.Positive(t, idx12)
	require.Positive(t, idx3)
	assert.Less(t, idx12, idx3)
	assert.NotContains(t, out, "job-2 ")

	// The stored bucket still retains everything
	completed, _ := st.Load(ctx, BucketCompleted)
	assert.Len(t, completed, 12)
}
