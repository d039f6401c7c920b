package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"lorequiz-service/internal/domain"
)

// BadgeCatalog resolves badge ids to display records.
type BadgeCatalog interface {
	GetBadge(ctx context.Context, id string) (domain.Badge, error)
}

// ProfileView is the profile as shown to its owner.
type ProfileView struct {
	Profile        domain.UserProfile `json:"profile"`
	Level          int                `json:"level"`
	Title          string             `json:"title"`
	XPInLevel      int                `json:"xpInLevel"`
	XPForNextLevel int                `json:"xpForNextLevel"`
	Badges         []domain.Badge     `json:"badges"`
	LevelUp        bool               `json:"levelUp"`
}

// SettingsPatch updates individual preferences.
type SettingsPatch struct {
	AudioEnabled *bool         `json:"audioEnabled"`
	Theme        *domain.Theme `json:"theme"`
}

// ProfileService bootstraps and presents user profiles.
type ProfileService struct {
	profiles ProfileStore
	catalog  BadgeCatalog
	logger   *zap.Logger
}

func NewProfileService(profiles ProfileStore, catalog BadgeCatalog, logger *zap.Logger) *ProfileService {
	return &ProfileService{profiles: profiles, catalog: catalog, logger: logger}
}

// Ensure returns the profile for identity, creating it with defaults on first login.
func (s *ProfileService) Ensure(ctx context.Context, identity domain.Identity) (domain.UserProfile, error) {
	return ensureProfile(ctx, s.profiles, identity)
}

// View loads the profile, resolves badges against the catalog and consumes a
// pending level-up notification so it is shown once.
func (s *ProfileService) View(ctx context.Context, uid string) (ProfileView, error) {
	profile, err := s.profiles.GetProfile(ctx, uid)
	if err != nil {
		return ProfileView{}, err
	}

	level := domain.Level(profile.XP)
	view := ProfileView{
		Profile:        profile,
		Level:          level,
		Title:          domain.LevelTitle(level),
		XPInLevel:      profile.XP % domain.XPPerLevel,
		XPForNextLevel: domain.XPPerLevel,
		Badges:         make([]domain.Badge, 0, len(profile.Badges)),
	}

	for _, id := range profile.Badges {
		badge, err := s.catalog.GetBadge(ctx, id)
		if err != nil {
			if !errors.Is(err, domain.ErrBadgeNotFound) {
				s.logger.Warn("badge lookup failed", zap.String("badge", id), zap.Error(err))
			}
			continue
		}
		view.Badges = append(view.Badges, badge)
	}

	if profile.LevelUpPending {
		taken, err := s.profiles.TakeLevelUp(ctx, uid)
		if err != nil {
			s.logger.Warn("take level-up flag failed", zap.String("uid", uid), zap.Error(err))
		}
		view.LevelUp = taken
		view.Profile.LevelUpPending = !taken && err != nil
	}
	return view, nil
}

// UpdateSettings merges preference changes into the profile.
func (s *ProfileService) UpdateSettings(ctx context.Context, uid string, patch SettingsPatch) (domain.Settings, error) {
	if patch.Theme != nil && !patch.Theme.Valid() {
		return domain.Settings{}, fmt.Errorf("%w: theme %q", domain.ErrInvalidSettings, *patch.Theme)
	}
	profile, err := s.profiles.GetProfile(ctx, uid)
	if err != nil {
		return domain.Settings{}, err
	}
	settings := profile.Settings
	if patch.AudioEnabled != nil {
		settings.AudioEnabled = *patch.AudioEnabled
	}
	if patch.Theme != nil {
		settings.Theme = *patch.Theme
	}
	if err := s.profiles.MergeProfile(ctx, uid, domain.ProfilePatch{Settings: &settings}); err != nil {
		return domain.Settings{}, fmt.Errorf("merge settings: %w", err)
	}
	return settings, nil
}

func ensureProfile(ctx context.Context, profiles ProfileStore, identity domain.Identity) (domain.UserProfile, error) {
	profile, err := profiles.GetProfile(ctx, identity.UID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, domain.ErrProfileNotFound) {
		return domain.UserProfile{}, err
	}

	patch := domain.ProfilePatch{
		DisplayName: &identity.DisplayName,
		Email:       &identity.Email,
		PhotoURL:    &identity.PhotoURL,
	}
	if err := profiles.MergeProfile(ctx, identity.UID, patch); err != nil {
		return domain.UserProfile{}, fmt.Errorf("create profile: %w", err)
	}
	return profiles.GetProfile(ctx, identity.UID)
}
