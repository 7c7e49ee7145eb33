package db

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

// setupTestDB creates a migrated database in a temp directory.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := NewDB(path)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDBRunsMigrations(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if dirty {
		t.Error("fresh database is dirty after migration")
	}
	if version == 0 {
		t.Error("no migrations applied")
	}

	// Schema tables exist and are queryable.
	for _, table := range []string{"stabilize_runs", "stabilize_tracks", "stabilize_stats"} {
		var n int
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestMigrateUpIdempotent(t *testing.T) {
	db := setupTestDB(t)

	// Running migrations again on an up-to-date database is a no-op.
	if err := db.MigrateUp(); err != nil {
		t.Fatalf("second MigrateUp failed: %v", err)
	}
}

func TestAttachAdminRoutes(t *testing.T) {
	db := setupTestDB(t)

	mux := http.NewServeMux()
	db.AttachAdminRoutes(mux)

	// Access policy varies by environment; the routes just need to be
	// mounted rather than falling through to the mux 404.
	for _, path := range []string{"/debug/", "/debug/tailsql/"} {
		req := httptest.NewRequest("GET", path, nil)
		req.RemoteAddr = "127.0.0.1:12345"
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code == http.StatusNotFound {
			t.Errorf("GET %s returned 404, route not mounted", path)
		}
	}
}
