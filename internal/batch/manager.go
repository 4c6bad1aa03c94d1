package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adlens/serp-crawler/internal/domain"
)

// ErrJobNotFound reports a move against a job absent from its source bucket
var ErrJobNotFound = errors.New("job not found in bucket")

// How many completed jobs the status listing shows; the stored bucket
// retains all of them
const completedDisplayCap = 10

// Stats holds per-bucket counts and their sum
type Stats struct {
	Submitted  int `json:"submitted"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Total      int `json:"total"`
}

// Manager moves jobs between lifecycle buckets. Every mutation serializes
// behind one mutex so two concurrent movers cannot interleave the
// remove-then-append steps and corrupt bucket membership.
type Manager struct {
	st  BucketStore
	log *zap.Logger
	mu  sync.Mutex
}

// NewManager creates a bucket manager over the given store
func NewManager(st BucketStore, log *zap.Logger) *Manager {
	return &Manager{st: st, log: log}
}

// Submit appends a job to the submitted bucket. Duplicate ids are rejected;
// a job belongs to exactly one bucket at a time.
func (m *Manager) Submit(ctx context.Context, job domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, bucket := range []Bucket{BucketSubmitted, BucketInProgress, BucketCompleted} {
		jobs, err := m.st.Load(ctx, bucket)
		if err != nil {
			return err
		}
		if _, found := indexOf(jobs, job.ID); found {
			return fmt.Errorf("job %s already present in %s", job.ID, bucket)
		}
	}

	submitted, err := m.st.Load(ctx, BucketSubmitted)
	if err != nil {
		return err
	}
	if err := m.st.Save(ctx, BucketSubmitted, append(submitted, job)); err != nil {
		return err
	}

	m.log.Info("job submitted", zap.String("job_id", job.ID), zap.String("query", job.Query))
	return nil
}

// MoveToInProgress removes a job from submitted and appends it to
// in-progress, writing a rolling backup snapshot of the pre-move submitted
// bucket so that state stays recoverable.
func (m *Manager) MoveToInProgress(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	submitted, err := m.st.Load(ctx, BucketSubmitted)
	if err != nil {
		return err
	}
	idx, found := indexOf(submitted, jobID)
	if !found {
		return fmt.Errorf("job %s not found in %s: %w", jobID, BucketSubmitted, ErrJobNotFound)
	}

	job := submitted[idx]
	remaining := append(append([]domain.Job{}, submitted[:idx]...), submitted[idx+1:]...)

	if err := m.st.Save(ctx, BucketSubmittedBackup, submitted); err != nil {
		return fmt.Errorf("backup submitted bucket: %w", err)
	}
	if err := m.st.Save(ctx, BucketSubmitted, remaining); err != nil {
		return err
	}

	inProgress, err := m.st.Load(ctx, BucketInProgress)
	if err != nil {
		return err
	}
	now := time.Now()
	job.StartedAt = &now
	job.Status = domain.StatusInProgress
	if err := m.st.Save(ctx, BucketInProgress, append(inProgress, job)); err != nil {
		return err
	}

	m.log.Info("job moved to in-progress", zap.String("job_id", jobID))
	return nil
}

// MoveToCompleted removes a job from in-progress, stamps completedAt and
// appends it to completed
func (m *Manager) MoveToCompleted(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inProgress, err := m.st.Load(ctx, BucketInProgress)
	if err != nil {
		return err
	}
	idx, found := indexOf(inProgress, jobID)
	if !found {
		return fmt.Errorf("job %s not found in %s: %w", jobID, BucketInProgress, ErrJobNotFound)
	}

	job := inProgress[idx]
	remaining := append(append([]domain.Job{}, inProgress[:idx]...), inProgress[idx+1:]...)
	if err := m.st.Save(ctx, BucketInProgress, remaining); err != nil {
		return err
	}

	now := time.Now()
	job.CompletedAt = &now
	job.Status = domain.StatusCompleted

	completed, err := m.st.Load(ctx, BucketCompleted)
	if err != nil {
		return err
	}
	if err := m.st.Save(ctx, BucketCompleted, append(completed, job)); err != nil {
		return err
	}

	m.log.Info("job moved to completed", zap.String("job_id", jobID))
	return nil
}

// Submitted returns the current contents of the submitted bucket
func (m *Manager) Submitted(ctx context.Context) ([]domain.Job, error) {
	return m.st.Load(ctx, BucketSubmitted)
}

// Stats returns per-bucket counts. Read-only projection; never mutates.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	submitted, err := m.st.Load(ctx, BucketSubmitted)
	if err != nil {
		return nil, err
	}
	inProgress, err := m.st.Load(ctx, BucketInProgress)
	if err != nil {
		return nil, err
	}
	completed, err := m.st.Load(ctx, BucketCompleted)
	if err != nil {
		return nil, err
	}

	return &Stats{
		Submitted:  len(submitted),
		InProgress: len(inProgress),
		Completed:  len(completed),
		Total:      len(submitted) + len(inProgress) + len(completed),
	}, nil
}

// Status renders a human-readable listing of all three buckets. Completed
// shows the 10 most recent entries, newest first.
func (m *Manager) Status(ctx context.Context) (string, error) {
	var b strings.Builder

	for _, bucket := range []Bucket{BucketSubmitted, BucketInProgress} {
		jobs, err := m.st.Load(ctx, bucket)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%s (%d):\n", bucket, len(jobs))
		for _, job := range jobs {
			fmt.Fprintf(&b, "  %s  %q  %s\n", job.ID, job.Query, job.Location)
		}
	}

	completed, err := m.st.Load(ctx, BucketCompleted)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&b, "%s (%d):\n", BucketCompleted, len(completed))
	shown := 0
	for i := len(completed) - 1; i >= 0 && shown < completedDisplayCap; i-- {
		job := completed[i]
		stamp := ""
		if job.CompletedAt != nil {
			stamp = job.CompletedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "  %s  %q  %s\n", job.ID, job.Query, stamp)
		shown++
	}

	return b.String(), nil
}

func indexOf(jobs []domain.Job, jobID string) (int, bool) {
	for i, job := range jobs {
		if job.ID == jobID {
			return i, true
		}
	}
	return 0, false
}
