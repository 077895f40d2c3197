package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	PubSub   PubSubConfig   `toml:"pubsub"`
	Storage  StorageConfig  `toml:"storage"`
	Fetch    FetchConfig    `toml:"fetch"`
	Image    ImageConfig    `toml:"image"`
	Worker   WorkerConfig   `toml:"worker"`
	Outbox   OutboxConfig   `toml:"outbox"`
	Log      LogConfig      `toml:"log"`
}

type ServerConfig struct {
	Port            string `toml:"port"`
	OpenAPISpecPath string `toml:"openapi_spec_path"`
}

type DatabaseConfig struct {
	DSN            string `toml:"dsn"`
	MigrationsPath string `toml:"migrations_path"`
}

type PubSubConfig struct {
	ProjectID    string `toml:"project_id"`
	Topic        string `toml:"topic"`
	Subscription string `toml:"subscription"`
	PushEndpoint string `toml:"push_endpoint"`
	// Mode is "cloud" or "emulator"; the emulator gets topics and
	// subscriptions created on startup.
	Mode string `toml:"mode"`
}

type StorageConfig struct {
	Backend                  string `toml:"backend"` // "local" or "gcs"
	LocalDir                 string `toml:"local_dir"`
	LocalBaseURL             string `toml:"local_base_url"`
	GCSBucket                string `toml:"gcs_bucket"`
	GCSMakePublic            bool   `toml:"gcs_make_public"`
	GCSAllowPublicACLFailure bool   `toml:"gcs_allow_public_acl_failure"`
}

type FetchConfig struct {
	MaxBytes       int64   `toml:"max_bytes"`
	MaxRedirects   int     `toml:"max_redirects"`
	TimeoutSeconds float64 `toml:"timeout_seconds"`
}

type ImageConfig struct {
	MaxPixels      int `toml:"max_pixels"`
	MaxInputPixels int `toml:"max_input_pixels"`
}

type WorkerConfig struct {
	PollIntervalSeconds float64 `toml:"poll_interval_seconds"`
}

type OutboxConfig struct {
	PollIntervalSeconds float64 `toml:"poll_interval_seconds"`
	BatchSize           int     `toml:"batch_size"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			OpenAPISpecPath: "openapi.yaml",
		},
		Database: DatabaseConfig{
			MigrationsPath: "migrations",
		},
		PubSub: PubSubConfig{
			Subscription: "image-jobs-push",
			PushEndpoint: "http://worker:8080/pubsub/jobs",
			Mode:         "cloud",
		},
		Storage: StorageConfig{
			Backend:  "local",
			LocalDir: "data/images",
		},
		Fetch: FetchConfig{
			MaxBytes:       20 << 20,
			MaxRedirects:   3,
			TimeoutSeconds: 10,
		},
		Image: ImageConfig{
			MaxPixels:      71000000,
			MaxInputPixels: 100000000,
		},
		Worker: WorkerConfig{PollIntervalSeconds: 1},
		Outbox: OutboxConfig{PollIntervalSeconds: 2, BatchSize: 10},
		Log:    LogConfig{Level: "info"},
	}
}

// Load starts from Default, overlays the TOML file at path when path is set,
// then applies environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envString(name string, dest *string) {
	if v := os.Getenv(name); v != "" {
		*dest = v
	}
}

func envInt(name string, dest *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dest = n
	return nil
}

func envInt64(name string, dest *int64) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dest = n
	return nil
}

func envSeconds(name string, dest *float64) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dest = f
	return nil
}

func envBool(name string, dest *bool) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dest = b
	return nil
}

func applyEnv(cfg *Config) error {
	envString("PORT", &cfg.Server.Port)
	envString("OPENAPI_SPEC_PATH", &cfg.Server.OpenAPISpecPath)
	envString("JOB_DB_DSN", &cfg.Database.DSN)
	envString("MIGRATIONS_PATH", &cfg.Database.MigrationsPath)
	envString("GCP_PROJECT_ID", &cfg.PubSub.ProjectID)
	envString("PUBSUB_TOPIC", &cfg.PubSub.Topic)
	envString("PUBSUB_SUBSCRIPTION", &cfg.PubSub.Subscription)
	envString("PUBSUB_PUSH_ENDPOINT", &cfg.PubSub.PushEndpoint)
	envString("PUBSUB_MODE", &cfg.PubSub.Mode)
	envString("STORAGE_BACKEND", &cfg.Storage.Backend)
	envString("LOCAL_STORAGE_DIR", &cfg.Storage.LocalDir)
	envString("LOCAL_STORAGE_BASE_URL", &cfg.Storage.LocalBaseURL)
	envString("GCS_BUCKET", &cfg.Storage.GCSBucket)
	envString("LOG_LEVEL", &cfg.Log.Level)

	for _, fn := range []func() error{
		func() error { return envBool("GCS_MAKE_PUBLIC", &cfg.Storage.GCSMakePublic) },
		func() error { return envBool("GCS_ALLOW_PUBLIC_ACL_FAILURE", &cfg.Storage.GCSAllowPublicACLFailure) },
		func() error { return envInt64("FETCH_MAX_BYTES", &cfg.Fetch.MaxBytes) },
		func() error { return envInt("FETCH_MAX_REDIRECTS", &cfg.Fetch.MaxRedirects) },
		func() error { return envSeconds("FETCH_TIMEOUT", &cfg.Fetch.TimeoutSeconds) },
		func() error { return envInt("MAX_IMAGE_PIXELS", &cfg.Image.MaxPixels) },
		func() error { return envInt("MAX_INPUT_PIXELS", &cfg.Image.MaxInputPixels) },
		func() error { return envSeconds("JOB_POLL_INTERVAL", &cfg.Worker.PollIntervalSeconds) },
		func() error { return envSeconds("OUTBOX_POLL_INTERVAL", &cfg.Outbox.PollIntervalSeconds) },
		func() error { return envInt("OUTBOX_BATCH_SIZE", &cfg.Outbox.BatchSize) },
	} {
		if err := fn(); err != nil {
			return err
		}
	}
	if cfg.Outbox.BatchSize <= 0 {
		cfg.Outbox.BatchSize = 10
	}
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (c *Config) FetchTimeout() time.Duration       { return seconds(c.Fetch.TimeoutSeconds) }
func (c *Config) WorkerPollInterval() time.Duration { return seconds(c.Worker.PollIntervalSeconds) }
func (c *Config) OutboxPollInterval() time.Duration { return seconds(c.Outbox.PollIntervalSeconds) }

func (c *Config) Address() string {
	return ":" + c.Server.Port
}

// SlogLevel maps the configured level name; unknown names mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger returns the text logger every binary installs as default.
func (c *Config) NewLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: c.SlogLevel()}))
}
