package history

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// testRepo opens a temp-file SQLite database with the state_history schema.
func testRepo(t *testing.T) (*SQLiteRepository, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE state_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL,
			state TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT 'poll',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		)`)
	if err != nil {
		t.Fatalf("create schema: %v", err)
	}

	return NewSQLiteRepository(db), db
}

// insertAt inserts a row with an explicit timestamp, bypassing the default.
func insertAt(t *testing.T, db *sql.DB, deviceID, state, source, createdAt string) {
	t.Helper()
	_, err := db.Exec(
		"INSERT INTO state_history (device_id, state, source, created_at) VALUES (?, ?, ?, ?)",
		deviceID, state, source, createdAt)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestRecordAndGetHistory(t *testing.T) {
	repo, _ := testRepo(t)
	ctx := context.Background()

	state := Snapshot{"kind": "commeo_receiver", "position": float64(40)}
	if err := repo.RecordStateChange(ctx, "1a", state, SourceMulticast); err != nil {
		t.Fatalf("RecordStateChange() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, "1a", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("GetHistory() returned %d entries, want 1", len(entries))
	}

	entry := entries[0]
	if entry.DeviceID != "1a" {
		t.Errorf("DeviceID = %q, want 1a", entry.DeviceID)
	}
	if entry.Source != SourceMulticast {
		t.Errorf("Source = %q, want multicast", entry.Source)
	}
	if entry.State["position"] != float64(40) {
		t.Errorf("position = %v, want 40", entry.State["position"])
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestRecordStateChangeDefaults(t *testing.T) {
	repo, _ := testRepo(t)
	ctx := context.Background()

	// Empty source defaults to poll, nil state to an empty object.
	if err := repo.RecordStateChange(ctx, "1a", nil, ""); err != nil {
		t.Fatalf("RecordStateChange() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, "1a", 1)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if entries[0].Source != SourcePoll {
		t.Errorf("Source = %q, want poll", entries[0].Source)
	}
	if entries[0].State == nil || len(entries[0].State) != 0 {
		t.Errorf("State = %v, want empty", entries[0].State)
	}
}

func TestRecordStateChangeRequiresDeviceID(t *testing.T) {
	repo, _ := testRepo(t)

	if err := repo.RecordStateChange(context.Background(), "", Snapshot{}, SourcePoll); err == nil {
		t.Error("RecordStateChange() expected error for empty device id")
	}
}

func TestGetHistoryNewestFirst(t *testing.T) {
	repo, db := testRepo(t)

	insertAt(t, db, "1a", `{"position":10}`, "poll", "2026-06-01T10:00:00Z")
	insertAt(t, db, "1a", `{"position":20}`, "multicast", "2026-06-01T11:00:00Z")
	insertAt(t, db, "1a", `{"position":30}`, "poll", "2026-06-01T12:00:00Z")

	entries, err := repo.GetHistory(context.Background(), "1a", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("GetHistory() returned %d entries, want 3", len(entries))
	}
	if entries[0].State["position"] != float64(30) {
		t.Errorf("first entry position = %v, want 30 (newest)", entries[0].State["position"])
	}
	if entries[2].State["position"] != float64(10) {
		t.Errorf("last entry position = %v, want 10 (oldest)", entries[2].State["position"])
	}
}

func TestGetHistoryScopedToDevice(t *testing.T) {
	repo, _ := testRepo(t)
	ctx := context.Background()

	if err := repo.RecordStateChange(ctx, "1a", Snapshot{"position": 10}, SourcePoll); err != nil {
		t.Fatal(err)
	}
	if err := repo.RecordStateChange(ctx, "2b", Snapshot{"position": 90}, SourcePoll); err != nil {
		t.Fatal(err)
	}

	entries, err := repo.GetHistory(ctx, "1a", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("GetHistory() returned %d entries, want 1", len(entries))
	}
}

func TestGetHistoryLimits(t *testing.T) {
	repo, db := testRepo(t)

	for i := 0; i < 5; i++ {
		insertAt(t, db, "1a", `{}`, "poll",
			time.Date(2026, 6, 1, 10, i, 0, 0, time.UTC).Format(time.RFC3339))
	}

	entries, err := repo.GetHistory(context.Background(), "1a", 2)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("limit 2 returned %d entries", len(entries))
	}

	// Zero limit falls back to the default.
	entries, err = repo.GetHistory(context.Background(), "1a", 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 5 {
		t.Errorf("default limit returned %d entries, want 5", len(entries))
	}
}

func TestGetHistoryRequiresDeviceID(t *testing.T) {
	repo, _ := testRepo(t)

	if _, err := repo.GetHistory(context.Background(), "", 10); err == nil {
		t.Error("GetHistory() expected error for empty device id")
	}
}

func TestPrune(t *testing.T) {
	repo, db := testRepo(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour).Format(time.RFC3339)
	insertAt(t, db, "1a", `{}`, "poll", old)
	if err := repo.RecordStateChange(ctx, "1a", Snapshot{}, SourcePoll); err != nil {
		t.Fatal(err)
	}

	removed, err := repo.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Prune() removed %d rows, want 1", removed)
	}

	entries, err := repo.GetHistory(ctx, "1a", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("%d entries remain, want 1", len(entries))
	}
}

func TestPruneRejectsNonPositive(t *testing.T) {
	repo, _ := testRepo(t)

	if _, err := repo.Prune(context.Background(), 0); err == nil {
		t.Error("Prune(0) expected error")
	}
}
