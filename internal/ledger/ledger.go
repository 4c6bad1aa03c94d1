// Package ledger records per-job extraction failures and drives their
// reprocessing.
package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/adlens/serp-crawler/internal/domain"
	"github.com/adlens/serp-crawler/internal/store"
)

// FailureStore is the slice of the record store the ledger needs
type FailureStore interface {
	InsertFailure(ctx context.Context, rec *domain.FailureRecord) error
	FailuresByJob(ctx context.Context, jobID string) ([]domain.FailureRecord, error)
	FailureStats(ctx context.Context) (*store.FailureStats, error)
	CallReprocess(ctx context.Context, jobID string) error
	MarkFailuresProcessed(ctx context.Context, jobID string) (int64, error)
}

// Ledger is the failure ledger over the record store
type Ledger struct {
	st  FailureStore
	log *zap.Logger
}

// NewLedger creates a ledger over the given failure store
func NewLedger(st FailureStore, log *zap.Logger) *Ledger {
	return &Ledger{st: st, log: log}
}

// Record appends a failure entry. The reason must belong to the closed
// taxonomy; free-text reasons are rejected.
func (l *Ledger) Record(ctx context.Context, jobID, query string, reason domain.FailureReason) error {
	if !domain.ValidReason(reason) {
		return fmt.Errorf("failure reason %q is not in the taxonomy", reason)
	}

	rec := &domain.FailureRecord{JobID: jobID, Query: query, Reason: reason}
	if err := l.st.InsertFailure(ctx, rec); err != nil {
		return fmt.Errorf("record failure for job %s: %w", jobID, err)
	}

	l.log.Info("failure recorded",
		zap.String("job_id", jobID),
		zap.String("reason", string(reason)))
	return nil
}

// ListForJob returns the ledger entries for one job
func (l *Ledger) ListForJob(ctx context.Context, jobID string) ([]domain.FailureRecord, error) {
	return l.st.FailuresByJob(ctx, jobID)
}

// Stats returns grouped ledger counts
func (l *Ledger) Stats(ctx context.Context) (*store.FailureStats, error) {
	return l.st.FailureStats(ctx)
}

// Reprocess delegates to the stored reconciliation procedure and flips
// processed=true on the entries it resolved. A failed attempt leaves
// processed=false so the entries stay visible for retry.
func (l *Ledger) Reprocess(ctx context.Context, jobID string) error {
	if err := l.st.CallReprocess(ctx, jobID); err != nil {
		return fmt.Errorf("reprocess job %s: %w", jobID, err)
	}

	n, err := l.st.MarkFailuresProcessed(ctx, jobID)
	if err != nil {
		return fmt.Errorf("reprocess job %s: %w", jobID, err)
	}

	l.log.Info("failures reprocessed", zap.String("job_id", jobID), zap.Int64("resolved", n))
	return nil
}
