package sqlite

import (
	"context"
	"testing"
	"time"
)

func TestEventStore_RecordQuery(t *testing.T) {
	store := NewEventStore(openTestDB(t))
	ctx := context.Background()

	if err := store.Record(ctx, "submission_graded", "u1", map[string]any{"verdict": "Accepted"}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := store.Record(ctx, "submission_graded", "u2", nil); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := store.Record(ctx, "content_generated", "", map[string]string{"kind": "quiz"}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	events, err := store.Query(ctx, "submission_graded", "", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Query() len = %d; want 2", len(events))
	}

	events, err = store.Query(ctx, "submission_graded", "u1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(events) != 1 || events[0].Data != `{"verdict":"Accepted"}` {
		t.Errorf("Query(u1) = %+v", events)
	}

	counts, err := store.CountByType(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountByType() error = %v", err)
	}
	if counts["submission_graded"] != 2 || counts["content_generated"] != 1 {
		t.Errorf("CountByType() = %v", counts)
	}
}

func TestEventStore_Prune(t *testing.T) {
	store := NewEventStore(openTestDB(t))
	ctx := context.Background()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now.Add(-48 * time.Hour) }
	if err := store.Record(ctx, "old", "", nil); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	store.now = func() time.Time { return now }
	if err := store.Record(ctx, "fresh", "", nil); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	n, err := store.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() = %d; want 1", n)
	}
}
