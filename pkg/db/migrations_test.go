package db

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, kind, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?", kind, name).Scan(&count)
	if err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	return count == 1
}

func TestGetEmbeddedMigrations(t *testing.T) {
	migrations, err := GetEmbeddedMigrations()
	if err != nil {
		t.Fatalf("GetEmbeddedMigrations: %v", err)
	}
	if len(migrations) < 3 {
		t.Fatalf("expected at least 3 embedded migrations, got %d", len(migrations))
	}
	for i, m := range migrations {
		if m.Version != i+1 {
			t.Errorf("migration %d: expected version %d, got %d (%s)", i, i+1, m.Version, m.Name)
		}
		if m.SQL == "" {
			t.Errorf("migration %d has empty SQL", m.Version)
		}
	}
	if migrations[0].Name != "files" {
		t.Errorf("expected first migration to be files, got %q", migrations[0].Name)
	}
}

func TestInitializeDatabaseCreatesSchema(t *testing.T) {
	db := openTestDB(t)

	if err := InitializeDatabase(db); err != nil {
		t.Fatalf("InitializeDatabase: %v", err)
	}

	for _, table := range []string{"files", "files_build", "builds", "migrations"} {
		if !tableExists(t, db, "table", table) {
			t.Errorf("expected table %s", table)
		}
	}
	if !tableExists(t, db, "index", "idx_file_name") {
		t.Error("expected index idx_file_name")
	}

	// the durable contract of the files table
	rows, err := db.Query("SELECT id, archive_name, file_name, file_size, compressed_size, zip_path FROM files")
	if err != nil {
		t.Fatalf("files table does not expose the expected columns: %v", err)
	}
	rows.Close()
}

func TestInitializeDatabaseIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	for i := 0; i < 3; i++ {
		if err := InitializeDatabase(db); err != nil {
			t.Fatalf("InitializeDatabase run %d: %v", i+1, err)
		}
	}

	manager := NewMigrationManager(db)
	status, err := manager.GetMigrationStatus()
	if err != nil {
		t.Fatalf("GetMigrationStatus: %v", err)
	}
	if len(status.Pending) != 0 {
		t.Errorf("expected no pending migrations, got %d", len(status.Pending))
	}
	if len(status.Applied) != len(status.Available) {
		t.Errorf("expected all %d migrations applied, got %d", len(status.Available), len(status.Applied))
	}
	for _, m := range status.Applied {
		if m.AppliedAt == nil || m.AppliedAt.IsZero() {
			t.Errorf("migration %d has no applied timestamp", m.Version)
		}
	}
}

func TestMigrationManagerFromPath(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"001_first.sql":  "CREATE TABLE first (id INTEGER PRIMARY KEY);",
		"002_second.sql": "CREATE TABLE second (id INTEGER PRIMARY KEY);",
		"notes.txt":      "ignored",
		"bad_name.sql":   "CREATE TABLE ignored (id INTEGER);",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	db := openTestDB(t)
	manager := NewMigrationManagerFromPath(db, dir)

	if err := manager.ApplyPendingMigrations(); err != nil {
		t.Fatalf("ApplyPendingMigrations: %v", err)
	}

	if !tableExists(t, db, "table", "first") || !tableExists(t, db, "table", "second") {
		t.Fatal("expected both migrations to be applied")
	}
	if tableExists(t, db, "table", "ignored") {
		t.Fatal("migration without numeric version should be skipped")
	}

	// a new migration shows up as pending
	if err := os.WriteFile(filepath.Join(dir, "003_third.sql"), []byte("CREATE TABLE third (id INTEGER);"), 0644); err != nil {
		t.Fatal(err)
	}
	pending, err := manager.GetPendingMigrations()
	if err != nil {
		t.Fatalf("GetPendingMigrations: %v", err)
	}
	if len(pending) != 1 || pending[0].Version != 3 {
		t.Fatalf("expected migration 3 pending, got %+v", pending)
	}
}

func TestFailedMigrationIsNotRecorded(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_broken.sql"), []byte("CREATE TABLE oops ("), 0644); err != nil {
		t.Fatal(err)
	}

	db := openTestDB(t)
	manager := NewMigrationManagerFromPath(db, dir)

	if err := manager.ApplyPendingMigrations(); err == nil {
		t.Fatal("expected broken migration to fail")
	}

	applied, err := manager.GetAppliedMigrations()
	if err != nil {
		t.Fatalf("GetAppliedMigrations: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("expected no applied migrations, got %v", applied)
	}
}
