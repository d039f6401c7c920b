package memory

import (
	"context"
	"sort"
	"sync"

	"lorequiz-service/internal/domain"
)

// LeaderboardStore keeps best attempts per quiz in memory.
type LeaderboardStore struct {
	mu      sync.RWMutex
	entries map[string]map[string]domain.LeaderboardEntry
}

func NewLeaderboardStore() *LeaderboardStore {
	return &LeaderboardStore{entries: make(map[string]map[string]domain.LeaderboardEntry)}
}

func (s *LeaderboardStore) UpsertBest(_ context.Context, quizID string, entry domain.LeaderboardEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	board, ok := s.entries[quizID]
	if !ok {
		board = make(map[string]domain.LeaderboardEntry)
		s.entries[quizID] = board
	}
	if existing, ok := board[entry.UID]; ok && !domain.Better(entry, existing) {
		return false, nil
	}
	board[entry.UID] = entry
	return true, nil
}

func (s *LeaderboardStore) GetEntry(_ context.Context, quizID, uid string) (domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[quizID][uid]
	if !ok {
		return domain.LeaderboardEntry{}, domain.ErrEntryNotFound
	}
	return entry, nil
}

func (s *LeaderboardStore) Top(_ context.Context, quizID string, n int) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	entries := make([]domain.LeaderboardEntry, 0, len(s.entries[quizID]))
	for _, entry := range s.entries[quizID] {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if domain.Better(entries[i], entries[j]) {
			return true
		}
		if domain.Better(entries[j], entries[i]) {
			return false
		}
		return entries[i].UID < entries[j].UID
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

func (s *LeaderboardStore) CountHigherScore(_ context.Context, quizID string, score int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, entry := range s.entries[quizID] {
		if entry.Score > score {
			count++
		}
	}
	return count, nil
}

func (s *LeaderboardStore) CountSameScoreFaster(_ context.Context, quizID string, score, timeTaken int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, entry := range s.entries[quizID] {
		if entry.Score == score && entry.TimeTaken < timeTaken {
			count++
		}
	}
	return count, nil
}
