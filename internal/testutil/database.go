package testutil

import (
	"testing"

	"github.com/dump-ingestion-api/internal/config"
	"github.com/dump-ingestion-api/internal/database"
	"github.com/rs/zerolog"
)

// NewTestDatabase creates a new in-memory SQLite database with all
// migrations applied. The database is closed when the test completes.
func NewTestDatabase(t testing.TB) *database.DB {
	t.Helper()

	db, err := database.New(&config.DatabaseConfig{
		URL:    ":memory:",
		Driver: config.DriverSQLite,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := db.RunMigrations(); err != nil {
		db.Close()
		t.Fatalf("failed to apply migrations: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}
