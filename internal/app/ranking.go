package app

import (
	"context"
	"errors"
	"fmt"

	"lorequiz-service/internal/domain"
)

// TopN is the number of leaderboard rows materialized for display.
const TopN = 10

// LeaderboardStore persists best attempts per (quiz, user).
type LeaderboardStore interface {
	// UpsertBest writes entry only when the user has none for the quiz or entry
	// is strictly better than the stored one. It reports whether it wrote.
	UpsertBest(ctx context.Context, quizID string, entry domain.LeaderboardEntry) (bool, error)
	GetEntry(ctx context.Context, quizID, uid string) (domain.LeaderboardEntry, error)
	Top(ctx context.Context, quizID string, n int) ([]domain.LeaderboardEntry, error)
	CountHigherScore(ctx context.Context, quizID string, score int) (int, error)
	CountSameScoreFaster(ctx context.Context, quizID string, score, timeTaken int) (int, error)
}

// RankedEntry is a leaderboard row with its position.
type RankedEntry struct {
	Rank int `json:"rank"`
	domain.LeaderboardEntry
	Time string `json:"time"`
}

// Standings is what a viewer sees: the top rows and, when outside them, their own.
type Standings struct {
	QuizID string        `json:"quizId"`
	Top    []RankedEntry `json:"top"`
	Viewer *RankedEntry  `json:"viewer,omitempty"`
}

// Ranker answers ordering and rank queries over a LeaderboardStore.
type Ranker struct {
	store LeaderboardStore
	n     int
}

func NewRanker(store LeaderboardStore) *Ranker {
	return &Ranker{store: store, n: TopN}
}

// Top returns the best N entries ordered by score desc, time asc.
func (r *Ranker) Top(ctx context.Context, quizID string) ([]RankedEntry, error) {
	entries, err := r.store.Top(ctx, quizID, r.n)
	if err != nil {
		return nil, fmt.Errorf("top entries: %w", err)
	}
	ranked := make([]RankedEntry, len(entries))
	for i, entry := range entries {
		ranked[i] = newRankedEntry(i+1, entry)
	}
	return ranked, nil
}

// Rank locates a single user with two counting queries instead of sorting the
// whole collection: 1 + strictly higher scores + same score in less time.
func (r *Ranker) Rank(ctx context.Context, quizID, uid string) (RankedEntry, error) {
	entry, err := r.store.GetEntry(ctx, quizID, uid)
	if err != nil {
		return RankedEntry{}, err
	}
	higher, err := r.store.CountHigherScore(ctx, quizID, entry.Score)
	if err != nil {
		return RankedEntry{}, fmt.Errorf("count higher scores: %w", err)
	}
	faster, err := r.store.CountSameScoreFaster(ctx, quizID, entry.Score, entry.TimeTaken)
	if err != nil {
		return RankedEntry{}, fmt.Errorf("count faster times: %w", err)
	}
	return newRankedEntry(1+higher+faster, entry), nil
}

// Standings returns the top rows plus the viewer's rank when the viewer has an
// entry that did not make the top rows. An empty viewerUID skips the lookup.
func (r *Ranker) Standings(ctx context.Context, quizID, viewerUID string) (Standings, error) {
	top, err := r.Top(ctx, quizID)
	if err != nil {
		return Standings{}, err
	}
	standings := Standings{QuizID: quizID, Top: top}
	if viewerUID == "" {
		return standings, nil
	}
	for _, row := range top {
		if row.UID == viewerUID {
			return standings, nil
		}
	}

	viewer, err := r.Rank(ctx, quizID, viewerUID)
	if errors.Is(err, domain.ErrEntryNotFound) {
		return standings, nil
	}
	if err != nil {
		return Standings{}, err
	}
	standings.Viewer = &viewer
	return standings, nil
}

func newRankedEntry(rank int, entry domain.LeaderboardEntry) RankedEntry {
	return RankedEntry{Rank: rank, LeaderboardEntry: entry, Time: domain.FormatDuration(entry.TimeTaken)}
}
