package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"lorequiz-service/internal/domain"
)

// ProfileStore keeps one row per user. Every write is a single upsert so
// concurrent submissions never lose each other's changes.
type ProfileStore struct {
	pool *pgxpool.Pool
}

func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

func (s *ProfileStore) GetProfile(ctx context.Context, uid string) (domain.UserProfile, error) {
	var (
		profile domain.UserProfile
		history []byte
		theme   string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT uid, display_name, email, photo_url, created_at, xp, badges,
		       quiz_history, audio_enabled, theme, level_up_pending
		FROM profiles WHERE uid = $1`, uid).Scan(
		&profile.UID, &profile.DisplayName, &profile.Email, &profile.PhotoURL, &profile.CreatedAt,
		&profile.XP, &profile.Badges, &history, &profile.Settings.AudioEnabled, &theme,
		&profile.LevelUpPending,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserProfile{}, domain.ErrProfileNotFound
	}
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("get profile: %w", err)
	}
	profile.Settings.Theme = domain.Theme(theme)
	profile.QuizHistory = make(map[string]domain.HistoryEntry)
	if len(history) > 0 {
		if err := json.Unmarshal(history, &profile.QuizHistory); err != nil {
			return domain.UserProfile{}, fmt.Errorf("decode quiz history: %w", err)
		}
	}
	if profile.Badges == nil {
		profile.Badges = []string{}
	}
	return profile, nil
}

func (s *ProfileStore) MergeProfile(ctx context.Context, uid string, patch domain.ProfilePatch) error {
	var (
		audio *bool
		theme *string
	)
	if patch.Settings != nil {
		audio = &patch.Settings.AudioEnabled
		t := string(patch.Settings.Theme)
		theme = &t
	}
	defaults := domain.DefaultSettings()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (uid, display_name, email, photo_url, audio_enabled, theme, level_up_pending)
		VALUES ($1, COALESCE($2, ''), COALESCE($3, ''), COALESCE($4, ''),
		        COALESCE($5, $8::boolean), COALESCE($6, $9::text), COALESCE($7, false))
		ON CONFLICT (uid) DO UPDATE SET
			display_name     = COALESCE($2, profiles.display_name),
			email            = COALESCE($3, profiles.email),
			photo_url        = COALESCE($4, profiles.photo_url),
			audio_enabled    = COALESCE($5, profiles.audio_enabled),
			theme            = COALESCE($6, profiles.theme),
			level_up_pending = COALESCE($7, profiles.level_up_pending)`,
		uid, patch.DisplayName, patch.Email, patch.PhotoURL, audio, theme, patch.LevelUpPending,
		defaults.AudioEnabled, string(defaults.Theme),
	)
	if err != nil {
		return fmt.Errorf("merge profile: %w", err)
	}
	return nil
}

func (s *ProfileStore) IncrementXP(ctx context.Context, uid string, delta int) (int, error) {
	var xp int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO profiles (uid, xp) VALUES ($1, $2)
		ON CONFLICT (uid) DO UPDATE SET xp = profiles.xp + EXCLUDED.xp
		RETURNING xp`, uid, delta).Scan(&xp)
	if err != nil {
		return 0, fmt.Errorf("increment xp: %w", err)
	}
	return xp, nil
}

// TakeLevelUp clears the level-up flag in the same statement that reads it.
func (s *ProfileStore) TakeLevelUp(ctx context.Context, uid string) (bool, error) {
	var taken bool
	err := s.pool.QueryRow(ctx, `
		UPDATE profiles SET level_up_pending = false
		WHERE uid = $1 AND level_up_pending
		RETURNING true`, uid).Scan(&taken)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("take level up: %w", err)
	}
	return taken, nil
}

func (s *ProfileStore) PutHistory(ctx context.Context, uid, quizID string, entry domain.HistoryEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO profiles (uid, quiz_history) VALUES ($1, jsonb_build_object($2::text, $3::jsonb))
		ON CONFLICT (uid) DO UPDATE SET
			quiz_history = profiles.quiz_history || jsonb_build_object($2::text, $3::jsonb)`,
		uid, quizID, string(raw))
	if err != nil {
		return fmt.Errorf("put history: %w", err)
	}
	return nil
}

func (s *ProfileStore) AddBadges(ctx context.Context, uid string, badgeIDs ...string) error {
	if len(badgeIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (uid, badges)
		VALUES ($1, ARRAY(SELECT DISTINCT unnest($2::text[]) ORDER BY 1))
		ON CONFLICT (uid) DO UPDATE SET
			badges = ARRAY(SELECT DISTINCT unnest(profiles.badges || EXCLUDED.badges) ORDER BY 1)`,
		uid, badgeIDs)
	if err != nil {
		return fmt.Errorf("add badges: %w", err)
	}
	return nil
}
