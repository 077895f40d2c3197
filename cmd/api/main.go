package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"image-transform/internal/api"
	"image-transform/internal/config"
	"image-transform/internal/health"
	"image-transform/internal/jobdb"
	"image-transform/internal/netfetch"
	"image-transform/internal/queue"
	"image-transform/internal/transform"

	"cloud.google.com/go/pubsub"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	_ "github.com/go-sql-driver/mysql"
	middleware "github.com/oapi-codegen/chi-middleware"
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

	db, err := jobdb.Open(cfg.Database.DSN)
	if err != nil {
		fatal("failed to open job db", "err", err)
	}
	defer db.Close()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.PubSub.ProjectID)
	if err != nil {
		fatal("failed to create pubsub client", "err", err)
	}
	defer pubsubClient.Close()

	topic := pubsubClient.Topic(cfg.PubSub.Topic)
	defer topic.Stop()

	if cfg.PubSub.Mode == "emulator" {
		if err := queue.EnsureTopicWithRetry(context.Background(), pubsubClient, cfg.PubSub.Topic, 10, 500*time.Millisecond); err != nil {
			fatal("failed to ensure pubsub topic", "err", err)
		}
	}

	swagger, err := loadOpenAPISpec(cfg.Server.OpenAPISpecPath)
	if err != nil {
		fatal("failed to load openapi spec", "err", err)
	}

	transformer, err := transform.New(slog.Default(), transform.Limits{
		MaxPixels:      cfg.Image.MaxPixels,
		MaxInputPixels: cfg.Image.MaxInputPixels,
	})
	if err != nil {
		fatal("failed to build transform pipeline", "err", err)
	}

	srv := &server{
		db:        db,
		publisher: queue.NewPublisher(topic, jobdb.Outbox{DB: db}, slog.Default()),
		fetcher: &netfetch.Fetcher{
			Client: &http.Client{},
			Options: netfetch.Options{
				MaxBytes:     cfg.Fetch.MaxBytes,
				MaxRedirects: cfg.Fetch.MaxRedirects,
			},
			Timeout: cfg.FetchTimeout(),
		},
		transformer: transformer,
	}
	router := newRouter(swagger, srv, health.Checks{
		"db": db.PingContext,
		"pubsub": func(ctx context.Context) error {
			_, err := topic.Exists(ctx)
			return err
		},
	})

	addr := cfg.Address()
	slog.Info("api listening", "addr", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		fatal("api server failed", "err", err)
	}
}

func newRouter(swagger *openapi3.T, srv api.ServerInterface, checks health.Checks) http.Handler {
	router := chi.NewRouter()
	health.Register(router, checks)

	apiRouter := chi.NewRouter()
	apiRouter.Use(middleware.OapiRequestValidator(swagger))
	api.HandlerFromMux(srv, apiRouter)
	router.Mount("/", apiRouter)
	return router
}

func loadOpenAPISpec(path string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	swagger, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := swagger.Validate(context.Background()); err != nil {
		return nil, err
	}
	// Match routes on path only, whatever host the service runs behind.
	swagger.Servers = nil
	return swagger, nil
}

func fatal(msg string, attrs ...any) {
	slog.Error(msg, attrs...)
	os.Exit(1)
}
