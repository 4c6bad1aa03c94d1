// Package worker drains the fetched-page queue, runs extraction and
// parameter mining, persists the results and advances job stages.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/adlens/serp-crawler/internal/cleaner"
	"github.com/adlens/serp-crawler/internal/dedup"
	"github.com/adlens/serp-crawler/internal/domain"
	"github.com/adlens/serp-crawler/internal/extract"
	"github.com/adlens/serp-crawler/internal/indexer"
	"github.com/adlens/serp-crawler/internal/jobstate"
	"github.com/adlens/serp-crawler/internal/ledger"
	"github.com/adlens/serp-crawler/internal/queue"
	"github.com/adlens/serp-crawler/internal/store"
)

// RecordWriter is the slice of the record store the worker writes through
type RecordWriter interface {
	CreateStaging(ctx context.Context, jobID, query string) error
	SetStagingStatus(ctx context.Context, jobID, status string) error
	InsertSerp(ctx context.Context, rec *store.SerpRecord) error
	InsertAd(ctx context.Context, ad domain.AdRecord) (string, error)
	LinkAd(ctx context.Context, serpID, adID string) error
	SaveParams(ctx context.Context, serpID string, p map[string][]string) error
	InsertRendering(ctx context.Context, serpID, kind, content string) error
}

// Config holds worker configuration
type Config struct {
	Concurrency int
	BatchSize   int
}

// Worker processes fetched pages from the queue
type Worker struct {
	consumer *queue.Consumer
	engine   *extract.Engine
	tracker  *jobstate.Tracker
	records  RecordWriter
	failures *ledger.Ledger
	cleaner  *cleaner.Cleaner
	dedup    *dedup.Deduplicator
	idx      indexer.Indexer
	log      *zap.Logger

	concurrency int
	batchSize   int
}

// NewWorker creates a worker pool. The indexer and deduplicator are
// optional; pass nil to disable them.
func NewWorker(
	consumer *queue.Consumer,
	engine *extract.Engine,
	tracker *jobstate.Tracker,
	records RecordWriter,
	failures *ledger.Ledger,
	clean *cleaner.Cleaner,
	dd *dedup.Deduplicator,
	idx indexer.Indexer,
	log *zap.Logger,
	cfg Config,
) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}

	return &Worker{
		consumer:    consumer,
		engine:      engine,
		tracker:     tracker,
		records:     records,
		failures:    failures,
		cleaner:     clean,
		dedup:       dd,
		idx:         idx,
		log:         log,
		concurrency: cfg.Concurrency,
		batchSize:   cfg.BatchSize,
	}
}

// Run starts the worker pool
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("starting worker pool", zap.Int("concurrency", w.concurrency))

	var wg sync.WaitGroup
	errChan := make(chan error, w.concurrency)

	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			if err := w.runSingle(ctx, workerID); err != nil {
				errChan <- fmt.Errorf("worker %d: %w", workerID, err)
			}
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errChan:
		return err
	case <-done:
		return nil
	}
}

func (w *Worker) runSingle(ctx context.Context, workerID int) error {
	w.log.Info("worker started", zap.Int("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker stopping", zap.Int("worker_id", workerID))
			return nil
		default:
		}

		// ConsumeBatch blocks on BRPOP for the first item, so no CPU spinning
		pages, err := w.consumer.ConsumeBatch(ctx, w.batchSize)
		if err != nil {
			w.log.Warn("consume error", zap.Int("worker_id", workerID), zap.Error(err))
			continue
		}

		for _, page := range pages {
			if err := w.processPage(ctx, page); err != nil {
				w.log.Warn("page processing failed",
					zap.Int("worker_id", workerID),
					zap.String("job_id", page.JobID),
					zap.Error(err))
			}
		}
	}
}

// processPage runs one fetched page through the parse, extract and render
// stages, recording ledger failures when a stage exhausts its retries
func (w *Worker) processPage(ctx context.Context, page *domain.FetchedPage) error {
	if err := w.claim(ctx, page); err != nil {
		return err
	}

	if w.dedup != nil {
		unchanged, err := w.dedup.IsUnchanged(ctx, page.JobID, page.Markup)
		if err != nil {
			w.log.Warn("dedup check failed", zap.String("job_id", page.JobID), zap.Error(err))
		} else if unchanged {
			w.log.Info("content unchanged, skipping re-extraction", zap.String("job_id", page.JobID))
			return w.skipStages(ctx, page.JobID)
		}
	}

	if err := w.tracker.RunStage(ctx, page.JobID, domain.StageParse, func(ctx context.Context) error {
		return w.parse(ctx, page)
	}); err != nil {
		w.recordFailure(ctx, page, domain.ReasonMalformedMarkup)
		return err
	}

	var result domain.ExtractionResult
	var serpID string
	if err := w.tracker.RunStage(ctx, page.JobID, domain.StageExtract, func(ctx context.Context) error {
		result = w.engine.Extract(page.Markup)

		id, err := w.persist(ctx, page, &result)
		if err != nil {
			return err
		}
		serpID = id
		return nil
	}); err != nil {
		w.recordFailure(ctx, page, domain.ReasonPersistFailed)
		return err
	}

	if !result.Metrics.HasAds {
		w.recordFailure(ctx, page, domain.ReasonNoAdContainers)
	}

	// Renderings are best-effort; a failed render never reaches the ledger
	if err := w.tracker.RunStage(ctx, page.JobID, domain.StageRender, func(ctx context.Context) error {
		return w.records.InsertRendering(ctx, serpID, "html", w.cleaner.Clean(page.Markup))
	}); err != nil {
		w.log.Warn("render stage failed", zap.String("job_id", page.JobID), zap.Error(err))
	}

	if w.dedup != nil {
		if err := w.dedup.MarkSeen(ctx, page.JobID, page.Markup); err != nil {
			w.log.Warn("dedup mark failed", zap.String("job_id", page.JobID), zap.Error(err))
		}
	}

	return nil
}

// claim registers the job if the crawler didn't, then claims it. The crawler
// runs the fetch stage itself; only pages enqueued out of band need the stage
// stamped here, where delivery of the markup proves the fetch happened.
func (w *Worker) claim(ctx context.Context, page *domain.FetchedPage) error {
	err := w.tracker.Claim(ctx, page.JobID)
	if err == nil || errors.Is(err, jobstate.ErrNotClaimable) {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err := w.tracker.Register(ctx, page.JobID, false); err != nil {
		return err
	}
	if err := w.tracker.Claim(ctx, page.JobID); err != nil {
		return err
	}
	return w.tracker.SetStage(ctx, page.JobID, domain.StageFetch, domain.StageSucceeded)
}

func (w *Worker) parse(ctx context.Context, page *domain.FetchedPage) error {
	if len(page.Markup) == 0 {
		return fmt.Errorf("empty markup for job %s", page.JobID)
	}
	return w.records.CreateStaging(ctx, page.JobID, page.Query)
}

// persist writes the canonical SERP record, ad records, relationship rows
// and mined parameters, then marks staging processed
func (w *Worker) persist(ctx context.Context, page *domain.FetchedPage, result *domain.ExtractionResult) (string, error) {
	rec := &store.SerpRecord{
		JobID:     page.JobID,
		Query:     page.Query,
		Location:  page.Location,
		FetchedAt: page.FetchedAt,
	}
	if err := w.records.InsertSerp(ctx, rec); err != nil {
		return "", err
	}

	docs := make([]*indexer.AdDocument, 0, result.Metrics.TotalAds)
	for _, ad := range result.AllAds() {
		adID, err := w.records.InsertAd(ctx, ad)
		if err != nil {
			return "", err
		}
		if err := w.records.LinkAd(ctx, rec.ID, adID); err != nil {
			return "", err
		}
		docs = append(docs, &indexer.AdDocument{
			ID:       adID,
			JobID:    page.JobID,
			Query:    page.Query,
			AdRecord: ad,
		})
	}

	if err := w.records.SaveParams(ctx, rec.ID, result.Params); err != nil {
		return "", err
	}

	if err := w.records.SetStagingStatus(ctx, page.JobID, store.StagingProcessed); err != nil {
		return "", err
	}

	if w.idx != nil && len(docs) > 0 {
		if err := w.idx.BulkIndex(ctx, docs); err != nil {
			// Search indexing is auxiliary to the record store
			w.log.Warn("bulk index failed", zap.String("job_id", page.JobID), zap.Error(err))
		}
	}

	return rec.ID, nil
}

// skipStages marks the remaining stages succeeded when a page's content is
// identical to the last processed run and its artifacts already exist
func (w *Worker) skipStages(ctx context.Context, jobID string) error {
	for _, stage := range []domain.Stage{domain.StageParse, domain.StageExtract, domain.StageRender} {
		if err := w.tracker.SetStage(ctx, jobID, stage, domain.StageSucceeded); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) recordFailure(ctx context.Context, page *domain.FetchedPage, reason domain.FailureReason) {
	if err := w.failures.Record(ctx, page.JobID, page.Query, reason); err != nil {
		w.log.Warn("failure record not written", zap.String("job_id", page.JobID), zap.Error(err))
	}
}
