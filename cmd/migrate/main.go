package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/go-faster/errors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/chiyaghar/teashop/internal/config"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	source := fs.String("source", "file://migrations", "migrations source URL")
	cfg, err := config.ParseArgs(fs, os.Args[1:])
	if err != nil {
		logger.Error("failed to parse config", "error", err)
		os.Exit(1)
	}

	args := fs.Args()
	if len(args) < 1 {
		logger.Error("usage: migrate [-d postgres-url] [-source url] <up|down|version>")
		os.Exit(1)
	}

	if cfg.PostgresURL == "" {
		logger.Error("POSTGRES_URL environment variable or -d flag is required")
		os.Exit(1)
	}

	migrationsPath := *source
	if env := os.Getenv("MIGRATIONS_PATH"); env != "" {
		migrationsPath = env
	}

	m, err := migrate.New(migrationsPath, cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to create migrate instance", "error", err)
		os.Exit(1)
	}
	defer func() { _, _ = m.Close() }()

	if err := apply(m, args[0], logger); err != nil {
		logger.Error("migration failed", "command", args[0], "error", err)
		os.Exit(1)
	}
}

func apply(m *migrate.Migrate, command string, logger *slog.Logger) error {
	switch command {
	case "up":
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no pending migrations")
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "up")
		}
		logger.Info("migrations applied successfully")

	case "down":
		err := m.Steps(-1)
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no migrations to rollback")
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "down")
		}
		logger.Info("migration rolled back successfully")

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("no migrations applied yet")
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "version")
		}
		logger.Info("current migration version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))

	default:
		return errors.Errorf("unknown command %q", command)
	}
	return nil
}
