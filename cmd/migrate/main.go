package main

import (
	"database/sql"
	"errors"
	"log/slog"
	"os"

	"image-transform/internal/config"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
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

	db, err := sql.Open("mysql", cfg.Database.DSN)
	if err != nil {
		fatal("failed to open job db", "err", err)
	}
	defer db.Close()

	driver, err := mysql.WithInstance(db, &mysql.Config{})
	if err != nil {
		fatal("failed to create migration driver", "err", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+cfg.Database.MigrationsPath, "mysql", driver)
	if err != nil {
		fatal("failed to create migration", "err", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		fatal("migration failed", "err", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		fatal("failed to read migration version", "err", err)
	}
	slog.Info("migration completed", "version", version, "dirty", dirty, "path", cfg.Database.MigrationsPath)
}

func fatal(msg string, attrs ...any) {
	slog.Error(msg, attrs...)
	os.Exit(1)
}
