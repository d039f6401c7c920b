package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"lorequiz-service/internal/domain"
)

func TestPendingStoreSlot(t *testing.T) {
	mr, client := newMiniredis(t)
	store := NewPendingStore(client, time.Hour)
	ctx := context.Background()
	result := domain.FinalResult{QuizID: "potions-owl", Score: 2, Total: 3, TimeTaken: 45, XPEarned: 20}

	if _, err := store.Take(ctx, "browser-1"); !errors.Is(err, domain.ErrNoPendingResult) {
		t.Fatalf("expected empty slot, got %v", err)
	}
	if err := store.Put(ctx, "browser-1", result); err != nil {
		t.Fatalf("put: %v", err)
	}
	if ttl := mr.TTL("pending:browser-1"); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %s", ttl)
	}

	peeked, err := store.Peek(ctx, "browser-1")
	if err != nil || peeked != result {
		t.Fatalf("peek: %+v %v", peeked, err)
	}
	filled, err := store.PutIfEmpty(ctx, "browser-1", domain.FinalResult{QuizID: "charms"})
	if err != nil || filled {
		t.Fatalf("occupied slot must not be overwritten: %v %v", filled, err)
	}

	taken, err := store.Take(ctx, "browser-1")
	if err != nil || taken != result {
		t.Fatalf("take: %+v %v", taken, err)
	}
	if mr.Exists("pending:browser-1") {
		t.Fatalf("take must clear the slot")
	}

	filled, err = store.PutIfEmpty(ctx, "browser-1", result)
	if err != nil || !filled {
		t.Fatalf("empty slot must be filled: %v %v", filled, err)
	}
}

func TestPendingStoreExpires(t *testing.T) {
	mr, client := newMiniredis(t)
	store := NewPendingStore(client, time.Minute)
	ctx := context.Background()

	_ = store.Put(ctx, "browser-1", domain.FinalResult{QuizID: "charms"})
	mr.FastForward(2 * time.Minute)
	if _, err := store.Peek(ctx, "browser-1"); !errors.Is(err, domain.ErrNoPendingResult) {
		t.Fatalf("expected expired slot, got %v", err)
	}
}
