// Package testutil provides shared test helpers for setting up databases and
// export directories.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/auralis/internal/repository"
	"github.com/starford/auralis/internal/storage"
)

// TestDB creates a temporary SQLite repository that is automatically cleaned up.
func TestDB(t *testing.T, opts ...repository.Option) *repository.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "auralis-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := repository.Open(dbFile.Name(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestExportDir creates a temporary export directory with a storage.Provider.
func TestExportDir(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}
