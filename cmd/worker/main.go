package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/adlens/serp-crawler/internal/cleaner"
	"github.com/adlens/serp-crawler/internal/config"
	"github.com/adlens/serp-crawler/internal/dedup"
	"github.com/adlens/serp-crawler/internal/extract"
	"github.com/adlens/serp-crawler/internal/indexer"
	"github.com/adlens/serp-crawler/internal/jobstate"
	"github.com/adlens/serp-crawler/internal/ledger"
	"github.com/adlens/serp-crawler/internal/queue"
	"github.com/adlens/serp-crawler/internal/store"
	"github.com/adlens/serp-crawler/internal/worker"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting SERP extraction worker")

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
	logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr))

	recordStore, err := store.Open(cfg.Postgres.ConnectionString, logger)
	if err != nil {
		logger.Fatal("postgres connection failed", zap.Error(err))
	}
	defer recordStore.Close()
	logger.Info("postgres connected")

	var idx indexer.Indexer
	if cfg.Elasticsearch.Enabled {
		esIndexer, err := indexer.NewElasticsearchIndexer(cfg.Elasticsearch.Addresses, cfg.Elasticsearch.Index, logger)
		if err != nil {
			logger.Fatal("elasticsearch connection failed", zap.Error(err))
		}
		if err := esIndexer.EnsureIndex(ctx); err != nil {
			logger.Warn("ensure index failed", zap.Error(err))
		}
		idx = esIndexer
		logger.Info("elasticsearch connected", zap.String("index", cfg.Elasticsearch.Index))
	}

	consumer := queue.NewConsumer(rdb, cfg.Redis.PageQueue, 5*time.Second)
	engine := extract.NewEngine(logger)
	tracker := jobstate.NewTracker(recordStore, logger)
	failures := ledger.NewLedger(recordStore, logger)
	htmlCleaner := cleaner.NewCleaner()
	deduplicator := dedup.NewDeduplicator(rdb, "serp:seen", 24*time.Hour)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w := worker.NewWorker(consumer, engine, tracker, recordStore, failures,
			htmlCleaner, deduplicator, idx, logger, worker.Config{
				Concurrency: cfg.Worker.Concurrency,
				BatchSize:   cfg.Worker.BatchSize,
			})
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("worker error", zap.Error(err))
		}
	}()

	<-sigChan
	logger.Info("shutdown signal received, stopping")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("graceful shutdown complete")
	case <-time.After(30 * time.Second):
		logger.Warn("shutdown timeout, forcing exit")
	}
}
