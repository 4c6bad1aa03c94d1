// Package verify cross-checks that a job's downstream artifacts are
// mutually consistent and reports a fitness verdict.
package verify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/adlens/serp-crawler/internal/store"
)

// RecordReader is the slice of the record store verification reads
type RecordReader interface {
	StagingStatus(ctx context.Context, jobID string) (string, error)
	SerpByJob(ctx context.Context, jobID string) (*store.SerpRecord, error)
	AdIDsForSerp(ctx context.Context, serpID string) ([]string, error)
	AdExists(ctx context.Context, adID string) (bool, error)
	RenderingCount(ctx context.Context, serpID string) (int, error)
}

// Report carries the outcome of the five consistency checks. Booleans
// accumulate rather than failing fast so the caller gets a full diagnostic.
type Report struct {
	JobID string `json:"job_id"`

	StagingProcessed bool `json:"staging_processed"` // check 1
	SerpExists       bool `json:"serp_exists"`       // check 2
	HasAdLinks       bool `json:"has_ad_links"`      // check 3
	AdsResolve       bool `json:"ads_resolve"`       // check 4
	HasRenderings    bool `json:"has_renderings"`    // check 5, best-effort

	// Conjunction of checks 1-4; renderings never gate this
	IsFullyProcessed bool `json:"is_fully_processed"`

	// Set when verification succeeded but the job is not fully processed.
	// A recommendation only; reprocessing is operator-triggered.
	ReprocessRecommended bool `json:"reprocess_recommended"`
}

// Verifier runs consistency checks against the record store
type Verifier struct {
	reader RecordReader
	log    *zap.Logger
}

// NewVerifier creates a verifier over the given reader
func NewVerifier(reader RecordReader, log *zap.Logger) *Verifier {
	return &Verifier{reader: reader, log: log}
}

// Verify runs the five checks for one job. A missing artifact turns its
// check false; a data-access error short-circuits with an explicit error
// rather than a silent false.
func (v *Verifier) Verify(ctx context.Context, jobID string) (*Report, error) {
	report := &Report{JobID: jobID}

	status, err := v.reader.StagingStatus(ctx, jobID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("verify job %s: %w", jobID, err)
	}
	report.StagingProcessed = err == nil && status == store.StagingProcessed

	serp, err := v.reader.SerpByJob(ctx, jobID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("verify job %s: %w", jobID, err)
	}
	report.SerpExists = err == nil

	if report.SerpExists {
		adIDs, err := v.reader.AdIDsForSerp(ctx, serp.ID)
		if err != nil {
			return nil, fmt.Errorf("verify job %s: %w", jobID, err)
		}
		report.HasAdLinks = len(adIDs) > 0

		if report.HasAdLinks {
			report.AdsResolve = true
			for _, adID := range adIDs {
				exists, err := v.reader.AdExists(ctx, adID)
				if err != nil {
					return nil, fmt.Errorf("verify job %s: %w", jobID, err)
				}
				if !exists {
					report.AdsResolve = false
					v.log.Warn("dangling ad reference",
						zap.String("job_id", jobID), zap.String("ad_id", adID))
				}
			}
		}

		count, err := v.reader.RenderingCount(ctx, serp.ID)
		if err != nil {
			return nil, fmt.Errorf("verify job %s: %w", jobID, err)
		}
		report.HasRenderings = count > 0
	}

	report.IsFullyProcessed = report.StagingProcessed &&
		report.SerpExists && report.HasAdLinks && report.AdsResolve
	report.ReprocessRecommended = !report.IsFullyProcessed

	v.log.Info("verification complete",
		zap.String("job_id", jobID),
		zap.Bool("fully_processed", report.IsFullyProcessed))

	return report, nil
}
