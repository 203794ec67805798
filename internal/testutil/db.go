package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/codr1/Kickabout/internal/db"
)

// NewTestDB creates a temporary SQLite document store with migrations applied.
func NewTestDB(t *testing.T) *db.SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close(context.Background())
	})

	return database
}

// SeedUser inserts a user and fails the test on error.
func SeedUser(t *testing.T, store db.Store, user *db.User) *db.User {
	t.Helper()

	if err := store.InsertUser(context.Background(), user); err != nil {
		t.Fatalf("seed user %q: %v", user.Name, err)
	}
	return user
}

// SeedGame inserts a game and fails the test on error.
func SeedGame(t *testing.T, store db.Store, game *db.Game) *db.Game {
	t.Helper()

	if err := store.InsertGame(context.Background(), game); err != nil {
		t.Fatalf("seed game %q: %v", game.Name, err)
	}
	return game
}
