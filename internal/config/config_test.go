package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.Address() != ":8080" {
		t.Fatalf("unexpected port %q", cfg.Server.Port)
	}
	if cfg.PubSub.Mode != "cloud" || cfg.Storage.Backend != "local" {
		t.Fatalf("unexpected defaults: %+v %+v", cfg.PubSub, cfg.Storage)
	}
	if cfg.WorkerPollInterval() != time.Second || cfg.OutboxPollInterval() != 2*time.Second {
		t.Fatalf("unexpected poll intervals")
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := []byte(`
[server]
port = "9090"

[pubsub]
topic = "from-file"
mode = "emulator"

[image]
max_pixels = 1000

[outbox]
batch_size = 0

[log]
level = "debug"
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PUBSUB_TOPIC", "from-env")
	t.Setenv("JOB_POLL_INTERVAL", "0.5")
	t.Setenv("GCS_MAKE_PUBLIC", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.PubSub.Mode != "emulator" || cfg.Image.MaxPixels != 1000 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.PubSub.Topic != "from-env" {
		t.Fatalf("env should override file, got %q", cfg.PubSub.Topic)
	}
	if cfg.WorkerPollInterval() != 500*time.Millisecond {
		t.Fatalf("poll interval = %v", cfg.WorkerPollInterval())
	}
	if !cfg.Storage.GCSMakePublic {
		t.Fatalf("GCS_MAKE_PUBLIC not applied")
	}
	if cfg.Outbox.BatchSize != 10 {
		t.Fatalf("batch size should fall back to 10, got %d", cfg.Outbox.BatchSize)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Fatalf("log level = %v", cfg.SlogLevel())
	}
	if cfg.Database.MigrationsPath != "migrations" {
		t.Fatalf("defaults lost under file overlay: %q", cfg.Database.MigrationsPath)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(bad, []byte("[server\nport="), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(bad); err == nil {
		t.Fatalf("expected parse error")
	}

	t.Setenv("OUTBOX_BATCH_SIZE", "many")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for non-numeric OUTBOX_BATCH_SIZE")
	}
}
