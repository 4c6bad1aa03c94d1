// batchctl is the operator entry point for bucket moves, verification and
// the failure ledger.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/adlens/serp-crawler/internal/batch"
	"github.com/adlens/serp-crawler/internal/config"
	"github.com/adlens/serp-crawler/internal/domain"
	"github.com/adlens/serp-crawler/internal/ledger"
	"github.com/adlens/serp-crawler/internal/store"
	"github.com/adlens/serp-crawler/internal/verify"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: batchctl <command> [flags]

commands:
  status                     show all three buckets
  stats                      per-bucket counts
  submit -id -query [-location] [-render]
                             add a job to the submitted bucket
  start -id                  move a job to in-progress
  complete -id               move a job to completed
  verify -id                 run consistency checks for a job
  failures -id               list ledger entries for a job
  failure-stats              grouped failure counts
  reprocess -id              reprocess a job's failures`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.Load()
	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	buckets := batch.NewManager(batch.NewRedisStore(rdb, cfg.Redis.BucketPrefix), logger)

	switch os.Args[1] {
	case "status":
		out, err := buckets.Status(ctx)
		exitOn(err)
		fmt.Print(out)

	case "stats":
		stats, err := buckets.Stats(ctx)
		exitOn(err)
		printJSON(stats)

	case "submit":
		fs := flag.NewFlagSet("submit", flag.ExitOnError)
		id := fs.String("id", "", "job id")
		query := fs.String("query", "", "search query")
		location := fs.String("location", "", "search location")
		render := fs.Bool("render", false, "request rendering")
		fs.Parse(os.Args[2:])
		requireID(*id)
		if *query == "" {
			exitOn(fmt.Errorf("-query is required"))
		}
		job := domain.NewJob(*id, *query, *location)
		job.RenderRequested = *render
		exitOn(buckets.Submit(ctx, *job))
		fmt.Printf("submitted %s\n", *id)

	case "start":
		id := jobIDArg("start")
		exitOn(buckets.MoveToInProgress(ctx, id))
		fmt.Printf("%s moved to in-progress\n", id)

	case "complete":
		id := jobIDArg("complete")
		exitOn(buckets.MoveToCompleted(ctx, id))
		fmt.Printf("%s moved to completed\n", id)

	case "verify":
		id := jobIDArg("verify")
		recordStore := openStore(cfg, logger)
		defer recordStore.Close()
		report, err := verify.NewVerifier(recordStore, logger).Verify(ctx, id)
		exitOn(err)
		printJSON(report)
		if report.ReprocessRecommended {
			fmt.Fprintf(os.Stderr, "job %s is not fully processed; consider: batchctl reprocess -id %s\n", id, id)
		}

	case "failures":
		id := jobIDArg("failures")
		recordStore := openStore(cfg, logger)
		defer recordStore.Close()
		records, err := ledger.NewLedger(recordStore, logger).ListForJob(ctx, id)
		exitOn(err)
		printJSON(records)

	case "failure-stats":
		recordStore := openStore(cfg, logger)
		defer recordStore.Close()
		stats, err := ledger.NewLedger(recordStore, logger).Stats(ctx)
		exitOn(err)
		printJSON(stats)

	case "reprocess":
		id := jobIDArg("reprocess")
		recordStore := openStore(cfg, logger)
		defer recordStore.Close()
		exitOn(ledger.NewLedger(recordStore, logger).Reprocess(ctx, id))
		fmt.Printf("reprocessed %s\n", id)

	default:
		usage()
	}
}

func jobIDArg(cmd string) string {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	id := fs.String("id", "", "job id")
	fs.Parse(os.Args[2:])
	requireID(*id)
	return *id
}

func requireID(id string) {
	if id == "" {
		exitOn(fmt.Errorf("-id is required"))
	}
}

func openStore(cfg *config.Config, logger *zap.Logger) *store.Store {
	s, err := store.Open(cfg.Postgres.ConnectionString, logger)
	exitOn(err)
	return s
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	exitOn(err)
	fmt.Println(string(data))
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
