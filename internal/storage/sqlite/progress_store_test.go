package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/skillforge/internal/domain"
)

func TestProgressStore_SaveGet(t *testing.T) {
	db := openTestDB(t)
	store := NewProgressStore(db)
	ctx := context.Background()

	p := domain.NewProgressCounter("u1", "trees")
	p.Apply("q1", true, time.Now().UTC())
	p.Apply("q2", false, time.Now().UTC())

	if err := store.Save(ctx, p); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Get(ctx, "u1", "trees")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if loaded.Attempts != 2 || loaded.Solved != 1 || loaded.Accuracy != 50 {
		t.Errorf("loaded = %+v", loaded)
	}
	if !loaded.HasSolved("q1") {
		t.Error("HasSolved(q1) = false; want true")
	}
}

func TestProgressStore_Get_NotFound(t *testing.T) {
	store := NewProgressStore(openTestDB(t))

	_, err := store.Get(context.Background(), "nobody", "arrays")
	if !errors.Is(err, domain.ErrProgressNotFound) {
		t.Errorf("Get() error = %v; want ErrProgressNotFound", err)
	}
}

func TestProgressStore_ListByUser(t *testing.T) {
	db := openTestDB(t)
	store := NewProgressStore(db)
	ctx := context.Background()

	for _, topic := range []string{"graphs", "arrays", "dp"} {
		if err := store.Save(ctx, domain.NewProgressCounter("u1", topic)); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	if err := store.Save(ctx, domain.NewProgressCounter("u2", "arrays")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	list, err := store.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("ListByUser() len = %d; want 3", len(list))
	}
	if list[0].Topic != "arrays" || list[2].Topic != "graphs" {
		t.Errorf("topics not ordered: %s, %s, %s", list[0].Topic, list[1].Topic, list[2].Topic)
	}
	if list[1].LastSolvedAt != nil {
		t.Errorf("LastSolvedAt = %v; want nil", list[1].LastSolvedAt)
	}
}
