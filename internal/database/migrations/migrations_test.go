package migrations

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	return db
}

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db, SQLite); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	tables := []string{"users", "posts", "comments", "id_map", "apps", "auth_codes", "access_tokens", "options", "schema_migrations"}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s was not created: %v", table, err)
		}
	}
}

func TestCheckDBMigrationStatus(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := CheckDBMigrationStatus(db, SQLite); err == nil {
		t.Error("CheckDBMigrationStatus() expected error for fresh database, got nil")
	}
	if err := MigrateUp(db, SQLite); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}
	if err := CheckDBMigrationStatus(db, SQLite); err != nil {
		t.Errorf("CheckDBMigrationStatus() after migration returned error: %v", err)
	}
	if err := MigrateUp(db, SQLite); err != nil {
		t.Errorf("second MigrateUp() = %v, want nil", err)
	}
}

func TestUnknownDialect(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db, "oracle"); err == nil {
		t.Error("MigrateUp() with unknown dialect returned nil error")
	}
}
