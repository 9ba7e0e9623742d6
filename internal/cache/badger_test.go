package cache

import (
	"context"
	"testing"
	"time"
)

func TestBadger_RoundTrip(t *testing.T) {
	store, err := NewBadger("")
	if err != nil {
		t.Fatalf("failed to open in-memory badger: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Set(ctx, "query:invoices:abc", []byte(`{"data":[]}`), time.Minute); err != nil {
		t.Fatalf("unexpected set error: %v", err)
	}

	got, ok, err := store.Get(ctx, "query:invoices:abc")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(got) != `{"data":[]}` {
		t.Fatalf("unexpected payload: %q", got)
	}
}

func TestBadger_MissOnUnknownKey(t *testing.T) {
	store, err := NewBadger("")
	if err != nil {
		t.Fatalf("failed to open in-memory badger: %v", err)
	}
	defer store.Close()

	if _, ok, err := store.Get(context.Background(), "nope"); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
}

func TestBadger_TTLExpiry(t *testing.T) {
	store, err := NewBadger("")
	if err != nil {
		t.Fatalf("failed to open in-memory badger: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Set(ctx, "k", []byte("v"), 50*time.Millisecond); err != nil {
		t.Fatalf("unexpected set error: %v", err)
	}

	time.Sleep(120 * time.Millisecond)

	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatalf("expected entry to expire")
	}
}
