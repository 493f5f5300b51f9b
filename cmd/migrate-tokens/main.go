// Command migrate-tokens seals plaintext OAuth tokens (encryption_version=0)
// with AES-256-GCM (encryption_version=1).
//
// Usage:
//
//	migrate-tokens [--dry-run]
//
// Environment Variables:
//
//	DB_DSN: Database connection string
//	ENCRYPTION_KEY: Base64-encoded 32-byte encryption key (required)
//
// Example:
//
//	export ENCRYPTION_KEY="$(openssl rand -base64 32)"
//	./migrate-tokens --dry-run
//	./migrate-tokens
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/onnwee/saltbet-bot/db"
)

// sealer is the subset of *db.TokenStore the migration needs.
type sealer interface {
	PlaintextProviders(ctx context.Context) ([]string, error)
	Seal(ctx context.Context, provider string) error
}

func main() {
	dryRun := flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	key := os.Getenv("ENCRYPTION_KEY")
	if key == "" {
		slog.Error("ENCRYPTION_KEY environment variable is required for migration")
		os.Exit(1)
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, os.Getenv("DB_DSN"))
	if err != nil {
		slog.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = database.Close() }()

	store, err := db.NewTokenStore(database, key)
	if err != nil {
		slog.Error("failed to initialize token store", slog.Any("error", err))
		os.Exit(1)
	}

	if err := migrateTokens(ctx, store, *dryRun); err != nil {
		slog.Error("migration failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("migration completed successfully")
}

// migrateTokens seals every plaintext row, continuing past individual failures.
func migrateTokens(ctx context.Context, s sealer, dryRun bool) error {
	providers, err := s.PlaintextProviders(ctx)
	if err != nil {
		return err
	}
	if len(providers) == 0 {
		slog.Info("no plaintext tokens found to migrate")
		return nil
	}
	slog.Info("found plaintext tokens to migrate", slog.Int("count", len(providers)), slog.Bool("dry_run", dryRun))

	failed := 0
	for i, p := range providers {
		logger := slog.With(slog.String("provider", p), slog.Int("index", i+1), slog.Int("total", len(providers)))
		if dryRun {
			logger.Info("would migrate token (dry-run)")
			continue
		}
		if err := s.Seal(ctx, p); err != nil {
			logger.Error("failed to migrate token", slog.Any("error", err))
			failed++
			continue
		}
		logger.Info("migrated token successfully")
	}

	slog.Info("migration summary",
		slog.Int("total", len(providers)),
		slog.Int("errors", failed),
		slog.Bool("dry_run", dryRun))
	if failed > 0 {
		return fmt.Errorf("migration completed with %d errors", failed)
	}
	return nil
}
