package avgear

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/maeneak/avgearip/internal/infrastructure/database"

	// Registers the embedded migrations with the database package.
	_ "github.com/maeneak/avgearip/migrations"
)

// newTestHistoryRepo opens a migrated temp database and returns the repository.
func newTestHistoryRepo(t *testing.T) (*SQLiteHistoryRepository, *database.DB) {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		//nolint:errcheck // Test cleanup
		db.Close()
	})

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	return NewSQLiteHistoryRepository(db.DB), db
}

func TestHistoryRecordAndGet(t *testing.T) {
	repo, _ := newTestHistoryRepo(t)
	ctx := context.Background()

	if err := repo.RecordRoute(ctx, testMatrixID, 1, 2, RouteSourceCommand); err != nil {
		t.Fatalf("RecordRoute() error = %v", err)
	}
	if err := repo.RecordRoute(ctx, testMatrixID, 2, 3, RouteSourcePoll); err != nil {
		t.Fatalf("RecordRoute() error = %v", err)
	}
	if err := repo.RecordRoute(ctx, testMatrixID, 1, 0, RouteSourcePoll); err != nil {
		t.Fatalf("RecordRoute() error = %v", err)
	}

	// All outputs, newest first.
	events, err := repo.GetHistory(ctx, testMatrixID, 0, 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	if events[0].Output != 1 || events[0].Input != 0 {
		t.Errorf("newest event = %+v, want output 1 off", events[0])
	}
	if events[0].ChangedAt.IsZero() {
		t.Error("changed_at not populated")
	}

	// Filtered to one output.
	events, err = repo.GetHistory(ctx, testMatrixID, 1, 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("output-1 events = %d, want 2", len(events))
	}
	for _, ev := range events {
		if ev.Output != 1 {
			t.Errorf("event output = %d, want 1", ev.Output)
		}
	}

	// Other matrices see nothing.
	events, err = repo.GetHistory(ctx, "matrix-999", 0, 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(events) != 0 {
		t.Errorf("foreign matrix events = %d, want 0", len(events))
	}
}

func TestHistoryRecordValidation(t *testing.T) {
	repo, _ := newTestHistoryRepo(t)
	ctx := context.Background()

	if err := repo.RecordRoute(ctx, "", 1, 1, RouteSourcePoll); err == nil {
		t.Error("RecordRoute() with empty matrix id should fail")
	}
	if err := repo.RecordRoute(ctx, testMatrixID, 0, 1, RouteSourcePoll); err == nil {
		t.Error("RecordRoute() with output 0 should fail")
	}

	// Empty source defaults to poll.
	if err := repo.RecordRoute(ctx, testMatrixID, 1, 1, ""); err != nil {
		t.Fatalf("RecordRoute() error = %v", err)
	}
	events, err := repo.GetHistory(ctx, testMatrixID, 0, 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(events) != 1 || events[0].Source != RouteSourcePoll {
		t.Errorf("events = %+v, want one with source poll", events)
	}
}

func TestHistoryGetValidation(t *testing.T) {
	repo, _ := newTestHistoryRepo(t)
	ctx := context.Background()

	if _, err := repo.GetHistory(ctx, "", 0, 0); err == nil {
		t.Error("GetHistory() with empty matrix id should fail")
	}
}

func TestHistoryGetLimit(t *testing.T) {
	repo, _ := newTestHistoryRepo(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if err := repo.RecordRoute(ctx, testMatrixID, 1, i, RouteSourcePoll); err != nil {
			t.Fatalf("RecordRoute() error = %v", err)
		}
	}

	events, err := repo.GetHistory(ctx, testMatrixID, 0, 2)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	// Newest first; ties on changed_at break by insert order.
	if events[0].Input != 5 || events[1].Input != 4 {
		t.Errorf("events = %+v, want inputs 5 then 4", events)
	}
}

func TestHistoryPrune(t *testing.T) {
	repo, db := newTestHistoryRepo(t)
	ctx := context.Background()

	// One recent entry via the repository.
	if err := repo.RecordRoute(ctx, testMatrixID, 1, 1, RouteSourcePoll); err != nil {
		t.Fatalf("RecordRoute() error = %v", err)
	}

	// One aged entry inserted directly.
	old := time.Now().UTC().Add(-48 * time.Hour).Format(time.RFC3339)
	_, err := db.ExecContext(ctx,
		"INSERT INTO routing_history (matrix_id, output, input, source, changed_at) VALUES (?, ?, ?, ?, ?)",
		testMatrixID, 2, 2, RouteSourcePoll, old,
	)
	if err != nil {
		t.Fatalf("insert aged row: %v", err)
	}

	deleted, err := repo.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	events, err := repo.GetHistory(ctx, testMatrixID, 0, 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(events) != 1 || events[0].Output != 1 {
		t.Errorf("remaining events = %+v, want only the recent one", events)
	}

	if _, err := repo.Prune(ctx, 0); err == nil {
		t.Error("Prune() with zero duration should fail")
	}
}
