package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"lorequiz-service/internal/domain"
)

// ProfileStore keeps profiles in memory. Every operation runs under one lock,
// which makes IncrementXP a true atomic add.
type ProfileStore struct {
	mu       sync.Mutex
	now      func() time.Time
	profiles map[string]*domain.UserProfile
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{
		now:      time.Now,
		profiles: make(map[string]*domain.UserProfile),
	}
}

func (s *ProfileStore) GetProfile(_ context.Context, uid string) (domain.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[uid]
	if !ok {
		return domain.UserProfile{}, domain.ErrProfileNotFound
	}
	return copyProfile(profile), nil
}

func (s *ProfileStore) MergeProfile(_ context.Context, uid string, patch domain.ProfilePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile := s.getOrCreateLocked(uid)
	if patch.DisplayName != nil {
		profile.DisplayName = *patch.DisplayName
	}
	if patch.Email != nil {
		profile.Email = *patch.Email
	}
	if patch.PhotoURL != nil {
		profile.PhotoURL = *patch.PhotoURL
	}
	if patch.Settings != nil {
		profile.Settings = *patch.Settings
	}
	if patch.LevelUpPending != nil {
		profile.LevelUpPending = *patch.LevelUpPending
	}
	return nil
}

func (s *ProfileStore) IncrementXP(_ context.Context, uid string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile := s.getOrCreateLocked(uid)
	profile.XP += delta
	if profile.XP < 0 {
		profile.XP = 0
	}
	return profile.XP, nil
}

func (s *ProfileStore) TakeLevelUp(_ context.Context, uid string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[uid]
	if !ok || !profile.LevelUpPending {
		return false, nil
	}
	profile.LevelUpPending = false
	return true, nil
}

func (s *ProfileStore) PutHistory(_ context.Context, uid, quizID string, entry domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile := s.getOrCreateLocked(uid)
	profile.QuizHistory[quizID] = entry
	return nil
}

func (s *ProfileStore) AddBadges(_ context.Context, uid string, badgeIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile := s.getOrCreateLocked(uid)
	for _, id := range badgeIDs {
		if !profile.HasBadge(id) {
			profile.Badges = append(profile.Badges, id)
		}
	}
	sort.Strings(profile.Badges)
	return nil
}

func (s *ProfileStore) getOrCreateLocked(uid string) *domain.UserProfile {
	if profile, ok := s.profiles[uid]; ok {
		return profile
	}
	profile := &domain.UserProfile{
		UID:         uid,
		CreatedAt:   s.now(),
		Badges:      []string{},
		QuizHistory: make(map[string]domain.HistoryEntry),
		Settings:    domain.DefaultSettings(),
	}
	s.profiles[uid] = profile
	return profile
}

func copyProfile(p *domain.UserProfile) domain.UserProfile {
	out := *p
	out.Badges = append([]string(nil), p.Badges...)
	out.QuizHistory = make(map[string]domain.HistoryEntry, len(p.QuizHistory))
	for k, v := range p.QuizHistory {
		out.QuizHistory[k] = v
	}
	return out
}
