// Command migrate manages the gateway's PostgreSQL schema with goose.
//
// Usage:
//
//	migrate up                # Apply all pending migrations
//	migrate down              # Roll back the last migration
//	migrate status            # Show migration status
//	migrate version           # Show current schema version
//	migrate redo              # Roll back and re-apply the last migration
//	migrate up-to <version>
//	migrate down-to <version>
//
// The connection string is read from DATABASE_URL (a .env file is honoured).
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/vyrodovalexey/openapigw/internal/observability"
	"github.com/vyrodovalexey/openapigw/migrations"
)

var (
	errUsage       = errors.New("usage: migrate <command> [args]")
	errMissingDSN  = errors.New("DATABASE_URL environment variable is required")
	errUnknownVerb = errors.New("unknown migrate command")
)

var commands = map[string]bool{
	"up": true, "up-by-one": true, "up-to": true,
	"down": true, "down-to": true, "redo": true, "reset": true,
	"status": true, "version": true, "validate": true,
}

func main() {
	_ = godotenv.Load()

	logger, err := observability.NewLogger(observability.LogConfig{Level: "info", Format: observability.FormatConsole})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(context.Background(), os.Args[1:], os.Getenv("DATABASE_URL")); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, errUnknownVerb) {
			fmt.Println("Usage: migrate <command>")
			fmt.Println("Commands: up, down, status, version, redo, up-to <version>, down-to <version>")
		}
		logger.Fatal("migration failed", observability.Error(err))
	}
}

// run validates the command line, connects to dsn and runs the goose command
// against the embedded migrations.
func run(ctx context.Context, args []string, dsn string) error {
	if len(args) == 0 {
		return errUsage
	}
	command := args[0]
	if !commands[command] {
		return fmt.Errorf("%w: %q", errUnknownVerb, command)
	}
	if dsn == "" {
		return errMissingDSN
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to select dialect: %w", err)
	}
	if err := goose.RunContext(ctx, command, db, ".", args[1:]...); err != nil {
		return fmt.Errorf("%s: %w", command, err)
	}
	return nil
}
