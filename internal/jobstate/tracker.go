// Package jobstate tracks a job's pipeline stages and derives its aggregate
// lifecycle status. Stage statuses are independently settable; the aggregate
// is never written directly except for the initial submitted value.
package jobstate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adlens/serp-crawler/internal/domain"
	"github.com/adlens/serp-crawler/internal/store"
)

// Stage failures retry with exponential backoff up to this many attempts
// before the stage is marked terminally failed
const (
	MaxAttempts  = 3
	retryBackoff = 500 * time.Millisecond
)

// ErrNotClaimable reports a claim on a job that is not in the submitted state
var ErrNotClaimable = errors.New("job is not claimable")

// StatusStore is the slice of the record store the tracker needs
type StatusStore interface {
	JobStatus(ctx context.Context, jobID string) (*store.JobStatusRow, error)
	UpsertJobStatus(ctx context.Context, row *store.JobStatusRow) error
}

// Tracker applies stage updates with at-most-one-writer-per-stage-per-job
// semantics. Updates to different stages of the same job serialize on the
// job's lock; updates to different jobs run concurrently.
type Tracker struct {
	st  StatusStore
	log *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTracker creates a tracker over the given status store
func NewTracker(st StatusStore, log *zap.Logger) *Tracker {
	return &Tracker{st: st, log: log, locks: make(map[string]*sync.Mutex)}
}

func (t *Tracker) jobLock(jobID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[jobID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[jobID] = l
	}
	return l
}

func (t *Tracker) releaseLock(jobID string) {
	t.mu.Lock()
	delete(t.locks, jobID)
	t.mu.Unlock()
}

// Register creates the submitted tracking row with all stages pending
func (t *Tracker) Register(ctx context.Context, jobID string, renderRequested bool) error {
	row := &store.JobStatusRow{
		JobID:           jobID,
		Status:          domain.StatusSubmitted,
		Fetch:           domain.StagePending,
		Parse:           domain.StagePending,
		Extract:         domain.StagePending,
		Render:          domain.StagePending,
		RenderRequested: renderRequested,
	}
	if err := t.st.UpsertJobStatus(ctx, row); err != nil {
		return fmt.Errorf("register job %s: %w", jobID, err)
	}
	return nil
}

// Claim transitions a submitted job to in-progress
func (t *Tracker) Claim(ctx context.Context, jobID string) error {
	lock := t.jobLock(jobID)
	lock.Lock()
	defer lock.Unlock()

	row, err := t.st.JobStatus(ctx, jobID)
	if err != nil {
		return fmt.Errorf("claim job %s: %w", jobID, err)
	}
	if row.Status != domain.StatusSubmitted {
		return fmt.Errorf("claim job %s in state %s: %w", jobID, row.Status, ErrNotClaimable)
	}

	now := time.Now()
	row.StartedAt = &now
	row.Status = derive(row)
	if err := t.st.UpsertJobStatus(ctx, row); err != nil {
		return fmt.Errorf("claim job %s: %w", jobID, err)
	}

	t.log.Info("job claimed", zap.String("job_id", jobID))
	return nil
}

// SetStage records one stage's status and re-derives the aggregate
func (t *Tracker) SetStage(ctx context.Context, jobID string, stage domain.Stage, status domain.StageStatus) error {
	lock := t.jobLock(jobID)
	lock.Lock()
	defer lock.Unlock()

	row, err := t.st.JobStatus(ctx, jobID)
	if err != nil {
		return fmt.Errorf("set stage %s for job %s: %w", stage, jobID, err)
	}

	row.SetStage(stage, status)
	row.Status = derive(row)
	if row.Status == domain.StatusCompleted && row.CompletedAt == nil {
		now := time.Now()
		row.CompletedAt = &now
	}

	if err := t.st.UpsertJobStatus(ctx, row); err != nil {
		return fmt.Errorf("set stage %s for job %s: %w", stage, jobID, err)
	}

	// Terminal jobs free their lock so the map stays bounded in a
	// long-running worker. The store upsert is last-writer-wins, so a
	// straggling update after the prune stays safe.
	if row.Status == domain.StatusCompleted || row.Status == domain.StatusFailed {
		t.releaseLock(jobID)
	}

	t.log.Debug("stage updated",
		zap.String("job_id", jobID),
		zap.String("stage", string(stage)),
		zap.String("status", string(status)),
		zap.String("job_status", string(row.Status)))
	return nil
}

// RunStage executes one pipeline stage with the retry budget: the stage is
// marked running, fn is retried with exponential backoff, and the stage
// lands on succeeded or terminally failed.
func (t *Tracker) RunStage(ctx context.Context, jobID string, stage domain.Stage, fn func(context.Context) error) error {
	if err := t.SetStage(ctx, jobID, stage, domain.StageRunning); err != nil {
		return err
	}

	var lastErr error
	backoff := retryBackoff
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return t.SetStage(ctx, jobID, stage, domain.StageSucceeded)
		}

		t.log.Warn("stage attempt failed",
			zap.String("job_id", jobID),
			zap.String("stage", string(stage)),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		if attempt < MaxAttempts {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = MaxAttempts
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}

	if err := t.SetStage(ctx, jobID, stage, domain.StageFailed); err != nil {
		return err
	}
	return fmt.Errorf("stage %s for job %s exhausted retries: %w", stage, jobID, lastErr)
}

// derive computes the aggregate status from the stage statuses. A job
// completes when every required stage succeeded; the render stage counts as
// satisfied when rendering was not requested.
func derive(row *store.JobStatusRow) domain.JobStatus {
	required := []domain.Stage{domain.StageFetch, domain.StageParse, domain.StageExtract}
	if row.RenderRequested {
		required = append(required, domain.StageRender)
	}

	allSucceeded := true
	for _, stage := range required {
		switch row.StageOf(stage) {
		case domain.StageFailed:
			return domain.StatusFailed
		case domain.StageSucceeded:
		default:
			allSucceeded = false
		}
	}

	if allSucceeded {
		return domain.StatusCompleted
	}
	if row.StartedAt != nil {
		return domain.StatusInProgress
	}
	return domain.StatusSubmitted
}
