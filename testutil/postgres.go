// Package testutil holds helpers shared by package tests: a migrated Postgres
// database and a fake Twitch OAuth endpoint.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/onnwee/saltbet-bot/db"
)

// SetupTestDB connects to TEST_PG_DSN and runs migrations. It skips the test
// if TEST_PG_DSN is not set and empties the bot tables when the test ends.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	ctx := context.Background()
	database, err := db.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(ctx, database); err != nil {
		_ = database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		_, _ = database.ExecContext(context.Background(), `TRUNCATE balances, rounds, oauth_tokens`)
		_ = database.Close()
	})
	return database
}
