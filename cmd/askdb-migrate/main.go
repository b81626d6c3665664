package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	catalogsqlite "github.com/askdb/askdb/internal/catalog/sqlite"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/migrations"
)

func main() {
	direction := flag.String("direction", "up", "apply (up) or roll back (down) schema migrations")
	steps := flag.Int("steps", 0, "how many steps to run; 0 applies everything, or rolls back one")
	flag.Parse()

	if err := run(*direction, *steps); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

const migrateTimeout = 30 * time.Second

func run(direction string, steps int) error {
	cfg, err := config.LoadFromEnv("askdb-migrate")
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()

	db, err := catalogsqlite.Open(ctx, catalogsqlite.DBConfig{
		Path:        cfg.Database.Path,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("database open error: %w", err)
	}
	defer func() { _ = db.Close() }()

	mig := migrations.NewRunner()
	switch direction {
	case "up":
		applied, err := mig.Up(ctx, db, steps)
		if err != nil {
			return fmt.Errorf("migration up failed: %w", err)
		}
		fmt.Printf("applied %d migration(s)\n", applied)
	case "down":
		rolledBack, err := mig.Down(ctx, db, steps)
		if err != nil {
			return fmt.Errorf("migration down failed: %w", err)
		}
		fmt.Printf("rolled back %d migration(s)\n", rolledBack)
	default:
		return fmt.Errorf("invalid direction: %q", direction)
	}
	return nil
}
