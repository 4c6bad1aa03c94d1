package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/adlens/serp-crawler/internal/batch"
	"github.com/adlens/serp-crawler/internal/config"
	"github.com/adlens/serp-crawler/internal/domain"
	"github.com/adlens/serp-crawler/internal/fetcher"
	"github.com/adlens/serp-crawler/internal/jobstate"
	"github.com/adlens/serp-crawler/internal/ledger"
	"github.com/adlens/serp-crawler/internal/queue"
	"github.com/adlens/serp-crawler/internal/store"
)

// Polling interval between sweeps of the submitted bucket
const sweepInterval = 30 * time.Second

type pageFetcher interface {
	Fetch(ctx context.Context, job domain.Job) (*domain.FetchedPage, error)
}

type pagePublisher interface {
	Publish(ctx context.Context, page *domain.FetchedPage) error
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting SERP crawler")

	cfg := config.Load()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}

	recordStore, err := store.Open(cfg.Postgres.ConnectionString, logger)
	if err != nil {
		logger.Fatal("postgres connection failed", zap.Error(err))
	}
	defer recordStore.Close()

	buckets := batch.NewManager(batch.NewRedisStore(rdb, cfg.Redis.BucketPrefix), logger)
	tracker := jobstate.NewTracker(recordStore, logger)
	failures := ledger.NewLedger(recordStore, logger)
	publisher := queue.NewPublisher(rdb, cfg.Redis.PageQueue)
	fetch := fetcher.New(fetcher.Config{
		BaseURL:      cfg.Fetcher.BaseURL,
		UserAgent:    cfg.Fetcher.UserAgent,
		ProxyURL:     cfg.Fetcher.ProxyURL,
		RequestDelay: cfg.Fetcher.RequestDelay,
	}, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		sweep(ctx, buckets, tracker, failures, fetch, publisher, logger)

		select {
		case <-sigChan:
			logger.Info("shutdown signal received")
			cancel()
			return
		case <-ticker.C:
		}
	}
}

// sweep claims every submitted job, fetches its page and hands it to the
// worker queue
func sweep(
	ctx context.Context,
	buckets *batch.Manager,
	tracker *jobstate.Tracker,
	failures *ledger.Ledger,
	fetch pageFetcher,
	publisher pagePublisher,
	logger *zap.Logger,
) {
	stats, err := buckets.Stats(ctx)
	if err != nil {
		logger.Error("bucket stats failed", zap.Error(err))
		return
	}
	if stats.Submitted == 0 {
		return
	}

	jobs, err := buckets.Submitted(ctx)
	if err != nil {
		logger.Error("list submitted failed", zap.Error(err))
		return
	}

	for _, job := range jobs {
		if err := processJob(ctx, job, buckets, tracker, failures, fetch, publisher, logger); err != nil {
			logger.Warn("job sweep failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

// processJob runs the fetch stage through the tracker's retry budget. An
// exhausted fetch fails the job and lands in the failure ledger as an
// upstream fetch error; the worker queue only ever sees successful fetches.
func processJob(
	ctx context.Context,
	job domain.Job,
	buckets *batch.Manager,
	tracker *jobstate.Tracker,
	failures *ledger.Ledger,
	fetch pageFetcher,
	publisher pagePublisher,
	logger *zap.Logger,
) error {
	if err := tracker.Register(ctx, job.ID, job.RenderRequested); err != nil {
		return err
	}
	if err := buckets.MoveToInProgress(ctx, job.ID); err != nil {
		return err
	}

	var page *domain.FetchedPage
	if err := tracker.RunStage(ctx, job.ID, domain.StageFetch, func(ctx context.Context) error {
		p, err := fetch.Fetch(ctx, job)
		if err != nil {
			return err
		}
		page = p
		return nil
	}); err != nil {
		if lerr := failures.Record(ctx, job.ID, job.Query, domain.ReasonUpstreamFetch); lerr != nil {
			logger.Warn("failure record not written", zap.String("job_id", job.ID), zap.Error(lerr))
		}
		return err
	}

	return publisher.Publish(ctx, page)
}
