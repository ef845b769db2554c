package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"

	"RiskEngine/internal/persistence"
)

func main() {
	if len(os.Args) < 2 || os.Args[1] != "up" {
		fmt.Println("Usage: migrate up")
		fmt.Println("  up - apply all pending migrations")
		fmt.Println()
		fmt.Println("Environment:")
		fmt.Println("  RISK_POSTGRES_DSN   - Postgres connection string (required)")
		fmt.Println("  RISK_MIGRATIONS_DIR - path to migrations directory (default: migrations)")
		os.Exit(1)
	}

	pgURL := os.Getenv("RISK_POSTGRES_DSN")
	if pgURL == "" {
		pgURL = "postgres://localhost:5432/riskengine?sslmode=disable"
	}

	migrationsDir := os.Getenv("RISK_MIGRATIONS_DIR")
	if migrationsDir == "" {
		migrationsDir = "migrations"
	}

	db, err := sql.Open("postgres", pgURL)
	if err != nil {
		log.Fatalf("FATAL: open db: %v", err)
	}
	defer db.Close()

	migrator := persistence.NewMigrator(db, migrationsDir)
	if err := migrator.Up(context.Background()); err != nil {
		log.Fatalf("FATAL: migrate up: %v", err)
	}
	log.Println("INFO: all migrations applied")
}
