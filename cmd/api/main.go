package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rcallanan/studio-ledger/internal/analytics"
	"github.com/rcallanan/studio-ledger/internal/api/handlers"
	"github.com/rcallanan/studio-ledger/internal/archive"
	"github.com/rcallanan/studio-ledger/internal/jobs"
	jobsmem "github.com/rcallanan/studio-ledger/internal/jobs/inmemory"
	"github.com/rcallanan/studio-ledger/internal/logger"
	"github.com/rcallanan/studio-ledger/internal/ltv"
	"github.com/rcallanan/studio-ledger/internal/match"
	"github.com/rcallanan/studio-ledger/internal/matchqueue"
	"github.com/rcallanan/studio-ledger/internal/reconcile"
	"github.com/rcallanan/studio-ledger/internal/store/sqlite"
)

func main() {
	var (
		port       = flagString("port", "PORT", "8080", "HTTP server port")
		dbPath     = flagString("db", "DB_PATH", "studio-ledger.db", "SQLite database path")
		bucket     = flagString("bucket", "GCS_BUCKET", "", "GCS bucket for raw payload archives (empty disables)")
		bqProject  = flagString("bq-project", "BQ_PROJECT", "", "BigQuery project for analytics export (empty disables)")
		bqDataset  = flagString("bq-dataset", "BQ_DATASET", "studio_ledger", "BigQuery dataset for analytics export")
		classifier = flagString("classifier", "CLASSIFIER_PATH", "", "Product classifier keyword overrides (JSON file)")
		workers    = flag.Int("workers", 2, "Reconcile job workers")
	)
	flag.Parse()

	log := logger.New()

	st, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer st.Close()

	var productClassifier *ltv.Classifier
	if *classifier != "" {
		productClassifier, err = ltv.NewClassifierFromFile(*classifier)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load product classifier")
		}
	}

	aggregator := ltv.NewAggregator(st, st, st, productClassifier, log)
	matcher := match.NewMatcher(st)

	reconciler := reconcile.New(st, matcher, aggregator, log)
	if *bucket != "" {
		reconciler.WithArchiver(archive.NewGCSArchiver(*bucket, "raw"))
	}
	if *bqProject != "" {
		reconciler.WithExporter(analytics.NewExporter(*bqProject, *bqDataset))
	}

	queueService := matchqueue.NewService(st, matcher, aggregator, log)

	// Job infrastructure: webhooks enqueue, workers reconcile.
	jobStore := jobsmem.NewStore()
	jobQueue := jobsmem.NewQueue(100, *workers, jobStore)

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job jobs.Job) error {
		batchJob, ok := job.(*jobs.ReconcileBatchJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		summary, err := reconciler.Reconcile(ctx, batchJob.Batch)
		if err != nil {
			log.Error().Err(err).
				Str("job_id", batchJob.JobID).
				Str("provider", string(batchJob.Provider)).
				Msg("Batch reconcile failed")
			return err
		}
		batchJob.Summary = &summary

		log.Info().
			Str("job_id", batchJob.JobID).
			Str("provider", string(batchJob.Provider)).
			Int("added", summary.Added).
			Int("matched", summary.Matched).
			Int("queued", summary.Queued).
			Msg("Batch reconciled")
		return nil
	}

	go func() {
		log.Info().Msg("Starting reconcile workers")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	router := handlers.Router(
		handlers.NewWebhooksHandler(jobQueue, log),
		handlers.NewTransactionsHandler(st, reconciler, log),
		handlers.NewPersonsHandler(st, log),
		handlers.NewQueueHandler(queueService, log),
		handlers.NewJobsHandler(jobStore, log),
		log,
	)

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}

// flagString defines a string flag whose default can come from an
// environment variable, matching container deployment conventions.
func flagString(name, env, fallback, usage string) *string {
	value := fallback
	if v := os.Getenv(env); v != "" {
		value = v
	}
	return flag.String(name, value, usage)
}
