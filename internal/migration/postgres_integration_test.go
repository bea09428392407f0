package migration

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
)

// setupPostgresTestDB creates a test PostgreSQL database connection
// Set POSTGRES_TEST_URL environment variable to run this test
// Example: POSTGRES_TEST_URL="postgres://user@localhost:5432/testdb?sslmode=disable"
func setupPostgresTestDB(t *testing.T) (*sql.DB, func()) {
	connStr := os.Getenv("POSTGRES_TEST_URL")
	if connStr == "" {
		t.Skip("POSTGRES_TEST_URL not set, skipping PostgreSQL integration test")
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("failed to open postgres database: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Fatalf("failed to ping postgres database: %v", err)
	}

	drop := func() {
		db.Exec("DROP TABLE IF EXISTS schema_version")
		db.Exec("DROP TABLE IF EXISTS test_entries")
		db.Exec("DROP TABLE IF EXISTS test_habits")
	}
	drop()
	cleanup := func() {
		drop()
		db.Close()
	}

	return db, cleanup
}

// TestPostgresSetVersion verifies SetVersion works with PostgreSQL $1 placeholders
func TestPostgresSetVersion(t *testing.T) {
	db, cleanup := setupPostgresTestDB(t)
	defer cleanup()

	runner := NewRunner(db, setupTestMigrations(t, map[string]string{
		"001_init.sql": "CREATE TABLE test_habits (id SERIAL PRIMARY KEY);",
	}), DriverPostgres)

	for _, want := range []int{1, 2} {
		if err := runner.SetVersion(want); err != nil {
			t.Fatalf("SetVersion(%d) failed: %v", want, err)
		}
		got, err := runner.GetCurrentVersion()
		if err != nil {
			t.Fatalf("GetCurrentVersion failed: %v", err)
		}
		if got != want {
			t.Errorf("expected version %d, got %d", want, got)
		}
	}
}

// TestPostgresApplyMigrations verifies ApplyMigrations and the read-only version check on PostgreSQL
func TestPostgresApplyMigrations(t *testing.T) {
	db, cleanup := setupPostgresTestDB(t)
	defer cleanup()

	runner := NewRunner(db, setupTestMigrations(t, map[string]string{
		"001_init.sql": `CREATE TABLE test_habits (id SERIAL PRIMARY KEY, name TEXT NOT NULL);`,
		"002_entries.sql": `CREATE TABLE test_entries (
			id SERIAL PRIMARY KEY,
			habit_id INTEGER NOT NULL REFERENCES test_habits(id),
			day TEXT NOT NULL
		);`,
	}), DriverPostgres)

	if v, err := runner.PeekVersion(); err != nil || v != 0 {
		t.Fatalf("PeekVersion() = %d, %v; want 0", v, err)
	}

	count, err := runner.ApplyMigrations(nil)
	if err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 migrations applied, got %d", count)
	}
	if err := runner.ValidateVersion(); err != nil {
		t.Errorf("ValidateVersion() = %v", err)
	}

	var exists bool
	err = db.QueryRow("SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = 'test_entries')").Scan(&exists)
	if err != nil {
		t.Fatalf("failed to check test_entries table: %v", err)
	}
	if !exists {
		t.Error("test_entries table was not created")
	}

	count, err = runner.ApplyMigrations(nil)
	if err != nil || count != 0 {
		t.Errorf("second run = %d, %v; want 0, nil", count, err)
	}
}
