package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"image-transform/internal/config"
	"image-transform/internal/gcs"
	"image-transform/internal/health"
	"image-transform/internal/jobdb"
	"image-transform/internal/localstore"
	"image-transform/internal/netfetch"
	"image-transform/internal/transform"
	"image-transform/internal/uploader"

	"cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	_ "github.com/go-sql-driver/mysql"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(cfg.NewLogger())

	if cfg.Database.DSN == "" {
		fatal("JOB_DB_DSN is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := jobdb.Open(cfg.Database.DSN)
	if err != nil {
		fatal("failed to open job db", "err", err)
	}
	defer db.Close()

	if err := jobdb.Init(db); err != nil {
		fatal("failed to init job db", "err", err)
	}

	router := chi.NewRouter()
	store, err := newUploader(ctx, cfg, router)
	if err != nil {
		fatal("failed to create uploader", "backend", cfg.Storage.Backend, "err", err)
	}

	transformer, err := transform.New(slog.Default(), transform.Limits{
		MaxPixels:      cfg.Image.MaxPixels,
		MaxInputPixels: cfg.Image.MaxInputPixels,
	})
	if err != nil {
		fatal("failed to build transform pipeline", "err", err)
	}
	proc := &processor{
		fetcher: &netfetch.Fetcher{
			Client: &http.Client{},
			Options: netfetch.Options{
				MaxBytes:     cfg.Fetch.MaxBytes,
				MaxRedirects: cfg.Fetch.MaxRedirects,
			},
			Timeout: cfg.FetchTimeout(),
		},
		transformer: transformer,
		uploader:    store,
	}

	wake := make(chan struct{}, 1)
	health.Register(router, health.Checks{"db": db.PingContext})
	router.Post("/pubsub/jobs", pushHandler(wake))

	httpServer := &http.Server{Addr: cfg.Address(), Handler: router}
	go func() {
		slog.Info("worker listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("worker server failed", "err", err)
		}
	}()

	runWorker(ctx, db, proc, cfg.WorkerPollInterval(), wake)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	slog.Info("worker stopped")
}

// newUploader picks the storage backend. The local backend also serves its
// files under /files/ so LOCAL_STORAGE_BASE_URL can point at the worker.
func newUploader(ctx context.Context, cfg *config.Config, router chi.Router) (uploader.Uploader, error) {
	switch cfg.Storage.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, err
		}
		return gcs.NewUploader(client, cfg.Storage.GCSBucket, cfg.Storage.GCSMakePublic, cfg.Storage.GCSAllowPublicACLFailure), nil
	default:
		local := localstore.NewUploader(cfg.Storage.LocalDir, cfg.Storage.LocalBaseURL)
		router.Handle("/files/*", http.StripPrefix("/files", local.Handler()))
		return local, nil
	}
}

// runWorker claims jobs until none are pending, then waits for a push, the
// poll interval, or shutdown.
func runWorker(ctx context.Context, db *sql.DB, proc *processor, pollInterval time.Duration, wake <-chan struct{}) {
	for ctx.Err() == nil {
		job, ok, err := jobdb.ClaimJob(ctx, db)
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("claim failed", "err", err)
			}
			waitForWork(ctx, pollInterval, wake)
			continue
		}
		if !ok {
			waitForWork(ctx, pollInterval, wake)
			continue
		}

		start := time.Now()
		result, err := proc.process(ctx, job.ID, job.Payload)
		if err != nil {
			slog.Warn("job failed", "job_id", job.ID, "err", err)
			if err := jobdb.FailJob(db, job.ID, err.Error()); err != nil {
				slog.Error("failed to mark job failed", "job_id", job.ID, "err", err)
			}
			continue
		}
		if err := jobdb.CompleteJob(db, job.ID, result); err != nil {
			slog.Error("failed to mark job done", "job_id", job.ID, "err", err)
			continue
		}
		slog.Info("job done", "job_id", job.ID, "duration", time.Since(start))
	}
}

func waitForWork(ctx context.Context, pollInterval time.Duration, wake <-chan struct{}) {
	timer := time.NewTimer(pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-wake:
	case <-timer.C:
	}
}

func fatal(msg string, attrs ...any) {
	slog.Error(msg, attrs...)
	os.Exit(1)
}
