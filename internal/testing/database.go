// Package testing provides shared database helpers for tests.
package testing

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cordate/datastore/db"
)

// TestUser is the actor key registered in every test database.
const TestUser = "tester@example.com"

// CreateTestDB creates an in-memory SQLite test database with the full
// store schema applied and a test user registered.
// Automatically registers cleanup via t.Cleanup().
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Create in-memory SQLite database
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	// A single pooled connection, otherwise each pool connection would see
	// its own empty :memory: database
	conn.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}

	if err := db.Migrate(conn, nil); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	if _, err := conn.Exec("INSERT INTO user (key) VALUES (?)", TestUser); err != nil {
		t.Fatalf("Failed to register test user: %v", err)
	}

	// Register cleanup
	t.Cleanup(func() {
		conn.Close()
	})

	return conn
}
