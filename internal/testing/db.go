// Package testing provides test helpers shared across packages.
package testing

import (
	"path/filepath"
	"testing"

	"ballast/internal/database"
)

// NewTestDB creates an isolated file-backed SQLite database under the test's
// temp directory. The file is removed with the directory when the test ends;
// the returned cleanup closes the connection and is safe to defer.
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	path := filepath.Join(t.TempDir(), name+".db")
	db, err := database.New(database.Config{Path: path, Name: name})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	return db, func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close test database %s: %v", name, err)
		}
	}
}
