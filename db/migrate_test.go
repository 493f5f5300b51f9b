package db

import (
	"context"
	"strings"
	"testing"
)

func TestRunMigrationsIdempotent(t *testing.T) {
	database := setupTestDB(t)

	// setupTestDB already migrated once; a second run must be a no-op.
	if err := RunMigrations(database); err != nil {
		t.Fatalf("RunMigrations() second run error = %v", err)
	}

	for _, table := range []string{"balances", "rounds", "oauth_tokens"} {
		var exists bool
		err := database.QueryRowContext(context.Background(), `SELECT EXISTS (
			SELECT FROM information_schema.tables WHERE table_name = $1
		)`, table).Scan(&exists)
		if err != nil {
			t.Fatalf("failed to check table %s: %v", table, err)
		}
		if !exists {
			t.Errorf("table %s does not exist after migration", table)
		}
	}

	version, dirty, err := GetMigrationVersion(database)
	if err != nil {
		t.Fatalf("GetMigrationVersion() error = %v", err)
	}
	if dirty {
		t.Errorf("migration version is dirty")
	}
	if version < 1 {
		t.Errorf("migration version = %d, want >= 1", version)
	}
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	var up, down int
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			up++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			down++
		}
	}
	if up == 0 || up != down {
		t.Errorf("embedded migrations: %d up, %d down", up, down)
	}
}
