package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"image-transform/internal/config"
	"image-transform/internal/health"
	"image-transform/internal/jobdb"
	"image-transform/internal/queue"

	"cloud.google.com/go/pubsub"
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
	if cfg.PubSub.ProjectID == "" {
		fatal("GCP_PROJECT_ID is required")
	}
	if cfg.PubSub.Topic == "" {
		fatal("PUBSUB_TOPIC is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := jobdb.Open(cfg.Database.DSN)
	if err != nil {
		fatal("failed to open job db", "err", err)
	}
	defer db.Close()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		fatal("failed to create pubsub client", "err", err)
	}
	defer pubsubClient.Close()

	topic := pubsubClient.Topic(cfg.PubSub.Topic)
	defer topic.Stop()

	if cfg.PubSub.Mode == "emulator" {
		if err := queue.EnsureTopicWithRetry(ctx, pubsubClient, cfg.PubSub.Topic, 10, 500*time.Millisecond); err != nil {
			fatal("failed to ensure pubsub topic", "err", err)
		}
		if err := queue.EnsureSubscription(ctx, pubsubClient, cfg.PubSub.Topic, cfg.PubSub.Subscription, cfg.PubSub.PushEndpoint); err != nil {
			fatal("failed to ensure pubsub subscription", "err", err)
		}
	}

	publisher := queue.NewPublisher(topic, jobdb.Outbox{DB: db}, slog.Default())
	go publisher.Run(ctx, cfg.OutboxPollInterval(), cfg.Outbox.BatchSize)

	mux := http.NewServeMux()
	health.Register(mux, health.Checks{"db": db.PingContext})

	httpServer := &http.Server{Addr: cfg.Address(), Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	slog.Info("publisher listening", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fatal("publisher server failed", "err", err)
	}
}

func fatal(msg string, attrs ...any) {
	slog.Error(msg, attrs...)
	os.Exit(1)
}
