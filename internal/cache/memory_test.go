package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemory_GetSet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, ok, _ := m.Get(ctx, "missing"); ok {
		t.Error("Get(missing) hit; want miss")
	}

	if err := m.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := m.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v; want hit", ok, err)
	}
	if string(got) != "v" {
		t.Errorf("Get() = %q; want v", got)
	}

	if err := m.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Error("Get() after Delete hit; want miss")
	}
}

func TestMemory_Expiry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	_ = m.Set(ctx, "short", []byte("a"), time.Minute)
	_ = m.Set(ctx, "long", []byte("b"), time.Hour)
	_ = m.Set(ctx, "forever", []byte("c"), 0)

	now = now.Add(time.Minute)
	if _, ok, _ := m.Get(ctx, "short"); ok {
		t.Error("short entry still present at its deadline")
	}
	if _, ok, _ := m.Get(ctx, "long"); !ok {
		t.Error("long entry expired early")
	}

	now = now.Add(2 * time.Hour)
	if n := m.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d; want 1", n)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d; want 1", m.Len())
	}
}

func TestMemory_ReturnsCopy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	src := []byte("abc")
	_ = m.Set(ctx, "k", src, 0)
	src[0] = 'x'

	got, _, _ := m.Get(ctx, "k")
	got[1] = 'y'

	again, _, _ := m.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("stored value mutated: %q", again)
	}
}
