package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"lorequiz-service/internal/domain"
)

// LeaderboardStore keeps one best-attempt row per (quiz, user).
type LeaderboardStore struct {
	pool *pgxpool.Pool
}

func NewLeaderboardStore(pool *pgxpool.Pool) *LeaderboardStore {
	return &LeaderboardStore{pool: pool}
}

func (s *LeaderboardStore) UpsertBest(ctx context.Context, quizID string, entry domain.LeaderboardEntry) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO leaderboard_entries (quiz_id, uid, display_name, photo_url, score, time_taken, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (quiz_id, uid) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			photo_url    = EXCLUDED.photo_url,
			score        = EXCLUDED.score,
			time_taken   = EXCLUDED.time_taken,
			recorded_at  = EXCLUDED.recorded_at
		WHERE EXCLUDED.score > leaderboard_entries.score
		   OR (EXCLUDED.score = leaderboard_entries.score AND EXCLUDED.time_taken < leaderboard_entries.time_taken)`,
		quizID, entry.UID, entry.DisplayName, entry.PhotoURL, entry.Score, entry.TimeTaken, entry.Timestamp)
	if err != nil {
		return false, fmt.Errorf("upsert leaderboard entry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *LeaderboardStore) GetEntry(ctx context.Context, quizID, uid string) (domain.LeaderboardEntry, error) {
	var entry domain.LeaderboardEntry
	err := s.pool.QueryRow(ctx, `
		SELECT uid, display_name, photo_url, score, time_taken, recorded_at
		FROM leaderboard_entries WHERE quiz_id = $1 AND uid = $2`, quizID, uid).Scan(
		&entry.UID, &entry.DisplayName, &entry.PhotoURL, &entry.Score, &entry.TimeTaken, &entry.Timestamp,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LeaderboardEntry{}, domain.ErrEntryNotFound
	}
	if err != nil {
		return domain.LeaderboardEntry{}, fmt.Errorf("get leaderboard entry: %w", err)
	}
	return entry, nil
}

func (s *LeaderboardStore) Top(ctx context.Context, quizID string, n int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT uid, display_name, photo_url, score, time_taken, recorded_at
		FROM leaderboard_entries WHERE quiz_id = $1
		ORDER BY score DESC, time_taken ASC, uid ASC
		LIMIT $2`, quizID, n)
	if err != nil {
		return nil, fmt.Errorf("top entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.LeaderboardEntry, 0, n)
	for rows.Next() {
		var entry domain.LeaderboardEntry
		if err := rows.Scan(&entry.UID, &entry.DisplayName, &entry.PhotoURL, &entry.Score, &entry.TimeTaken, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *LeaderboardStore) CountHigherScore(ctx context.Context, quizID string, score int) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM leaderboard_entries WHERE quiz_id = $1 AND score > $2`,
		quizID, score).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count higher scores: %w", err)
	}
	return count, nil
}

func (s *LeaderboardStore) CountSameScoreFaster(ctx context.Context, quizID string, score, timeTaken int) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM leaderboard_entries
		WHERE quiz_id = $1 AND score = $2 AND time_taken < $3`,
		quizID, score, timeTaken).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count faster times: %w", err)
	}
	return count, nil
}
