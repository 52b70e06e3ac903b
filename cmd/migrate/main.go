package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/queueforge/taskqueue/internal/config"
	"github.com/queueforge/taskqueue/internal/store"
	"github.com/queueforge/taskqueue/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/migrate <command>")
		fmt.Println("Commands:")
		fmt.Println("  up     - Apply all pending migrations")
		fmt.Println("  down   - Roll back one migration")
		fmt.Println("  reset  - Roll back all migrations")
		os.Exit(1)
	}

	command := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logger.Level, cfg.Logger.Format)

	migrationsPath := "file://internal/store/migrations"
	if absPath, err := filepath.Abs("internal/store/migrations"); err == nil {
		migrationsPath = fmt.Sprintf("file://%s", absPath)
	}

	migrateConfig := &store.MigrateConfig{
		StoreConfig:    &cfg.Store,
		MigrationsPath: migrationsPath,
		Logger:         log.Logger,
	}

	switch command {
	case "up":
		if err := store.MigrateUp(migrateConfig); err != nil {
			fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("migrations applied successfully")

	case "down":
		if err := store.MigrateDown(migrateConfig); err != nil {
			fmt.Fprintf(os.Stderr, "migration rollback failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("migration rolled back successfully")

	case "reset":
		if err := store.MigrateReset(migrateConfig); err != nil {
			fmt.Fprintf(os.Stderr, "store reset failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("store reset successfully")

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		fmt.Println("available commands: up, down, reset")
		os.Exit(1)
	}
}
