package redis

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"lorequiz-service/internal/app"
	"lorequiz-service/internal/domain"
)

func TestLeaderboardStoreKeepsBestAttempt(t *testing.T) {
	_, client := newMiniredis(t)
	store := NewLeaderboardStore(client)
	ctx := context.Background()

	steps := []struct {
		score, time int
		written     bool
	}{
		{2, 40, true},
		{1, 5, false},
		{2, 40, false},
		{2, 39, true},
		{3, 90, true},
	}
	for i, step := range steps {
		written, err := store.UpsertBest(ctx, "potions-owl", domain.LeaderboardEntry{
			UID: "u1", DisplayName: "Ron", Score: step.score, TimeTaken: step.time, Timestamp: time.Now(),
		})
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if written != step.written {
			t.Fatalf("step %d: written=%v, want %v", i, written, step.written)
		}
	}

	entry, err := store.GetEntry(ctx, "potions-owl", "u1")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Score != 3 || entry.TimeTaken != 90 || entry.DisplayName != "Ron" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if _, err := store.GetEntry(ctx, "potions-owl", "u2"); !errors.Is(err, domain.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestLeaderboardStoreRanksMatchOrdering(t *testing.T) {
	_, client := newMiniredis(t)
	store := NewLeaderboardStore(client)
	ctx := context.Background()
	rnd := rand.New(rand.NewSource(11))

	var entries []domain.LeaderboardEntry
	for i := 0; i < 15; i++ {
		entry := domain.LeaderboardEntry{
			UID:       fmt.Sprintf("u%02d", i),
			Score:     rnd.Intn(4),
			TimeTaken: 20 + rnd.Intn(4),
		}
		if _, err := store.UpsertBest(ctx, "potions-owl", entry); err != nil {
			t.Fatalf("seed: %v", err)
		}
		entries = append(entries, entry)
	}

	top, err := store.Top(ctx, "potions-owl", app.TopN)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != app.TopN {
		t.Fatalf("expected %d rows, got %d", app.TopN, len(top))
	}
	for i := 1; i < len(top); i++ {
		if domain.Better(top[i], top[i-1]) {
			t.Fatalf("row %d (%+v) outranks row %d (%+v)", i, top[i], i-1, top[i-1])
		}
	}

	ranker := app.NewRanker(store)
	for _, entry := range entries {
		want := 1
		for _, other := range entries {
			if domain.Better(other, entry) {
				want++
			}
		}
		got, err := ranker.Rank(ctx, "potions-owl", entry.UID)
		if err != nil {
			t.Fatalf("rank %s: %v", entry.UID, err)
		}
		if got.Rank != want {
			t.Fatalf("%s: rank %d, want %d", entry.UID, got.Rank, want)
		}
	}
}

func TestLeaderboardStoreEmptyBoard(t *testing.T) {
	_, client := newMiniredis(t)
	store := NewLeaderboardStore(client)

	top, err := store.Top(context.Background(), "charms", app.TopN)
	if err != nil || len(top) != 0 {
		t.Fatalf("expected empty board, got %v %v", top, err)
	}
	higher, err := store.CountHigherScore(context.Background(), "charms", 0)
	if err != nil || higher != 0 {
		t.Fatalf("expected zero count, got %d %v", higher, err)
	}
}
