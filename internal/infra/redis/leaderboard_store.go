package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"lorequiz-service/internal/domain"
)

// rankBase splits a sorted-set score into score and time parts:
// rank = score*rankBase + (rankBase-1-timeTaken). Higher is better.
const rankBase = 1 << 20

// upsertBest writes the entry only when the member is new or strictly better.
// KEYS[1] sorted set, KEYS[2] entries hash; ARGV uid, rank, entry json.
var upsertBest = redis.NewScript(`
local current = redis.call('ZSCORE', KEYS[1], ARGV[1])
if current and tonumber(current) >= tonumber(ARGV[2]) then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
return 1
`)

// LeaderboardStore keeps best attempts in a sorted set per quiz with the full
// entries alongside in a hash:
//
//	ZADD leaderboard:{quizID} <rank> {uid}
//	HSET leaderboard:{quizID}:entries {uid} <json>
type LeaderboardStore struct {
	client *redis.Client
}

func NewLeaderboardStore(client *redis.Client) *LeaderboardStore {
	return &LeaderboardStore{client: client}
}

func (s *LeaderboardStore) UpsertBest(ctx context.Context, quizID string, entry domain.LeaderboardEntry) (bool, error) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("encode entry: %w", err)
	}
	rank := rankOf(entry.Score, entry.TimeTaken)
	written, err := upsertBest.Run(ctx, s.client,
		[]string{s.boardKey(quizID), s.entriesKey(quizID)},
		entry.UID, strconv.FormatInt(rank, 10), raw,
	).Int()
	if err != nil {
		return false, fmt.Errorf("upsert leaderboard entry: %w", err)
	}
	return written == 1, nil
}

func (s *LeaderboardStore) GetEntry(ctx context.Context, quizID, uid string) (domain.LeaderboardEntry, error) {
	raw, err := s.client.HGet(ctx, s.entriesKey(quizID), uid).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.LeaderboardEntry{}, domain.ErrEntryNotFound
	}
	if err != nil {
		return domain.LeaderboardEntry{}, fmt.Errorf("get leaderboard entry: %w", err)
	}
	var entry domain.LeaderboardEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return domain.LeaderboardEntry{}, fmt.Errorf("decode entry: %w", err)
	}
	return entry, nil
}

func (s *LeaderboardStore) Top(ctx context.Context, quizID string, n int) ([]domain.LeaderboardEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	uids, err := s.client.ZRevRange(ctx, s.boardKey(quizID), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("top members: %w", err)
	}
	if len(uids) == 0 {
		return []domain.LeaderboardEntry{}, nil
	}
	values, err := s.client.HMGet(ctx, s.entriesKey(quizID), uids...).Result()
	if err != nil {
		return nil, fmt.Errorf("top entries: %w", err)
	}
	entries := make([]domain.LeaderboardEntry, 0, len(values))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("entry for %s missing", uids[i])
		}
		var entry domain.LeaderboardEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("decode entry %s: %w", uids[i], err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *LeaderboardStore) CountHigherScore(ctx context.Context, quizID string, score int) (int, error) {
	lo := strconv.FormatInt(int64(score+1)*rankBase, 10)
	count, err := s.client.ZCount(ctx, s.boardKey(quizID), lo, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("count higher scores: %w", err)
	}
	return int(count), nil
}

func (s *LeaderboardStore) CountSameScoreFaster(ctx context.Context, quizID string, score, timeTaken int) (int, error) {
	lo := "(" + strconv.FormatInt(rankOf(score, timeTaken), 10)
	hi := strconv.FormatInt(int64(score)*rankBase+rankBase-1, 10)
	count, err := s.client.ZCount(ctx, s.boardKey(quizID), lo, hi).Result()
	if err != nil {
		return 0, fmt.Errorf("count faster times: %w", err)
	}
	return int(count), nil
}

func (s *LeaderboardStore) boardKey(quizID string) string {
	return "leaderboard:" + quizID
}

func (s *LeaderboardStore) entriesKey(quizID string) string {
	return "leaderboard:" + quizID + ":entries"
}

func rankOf(score, timeTaken int) int64 {
	if timeTaken < 0 {
		timeTaken = 0
	}
	if timeTaken > rankBase-1 {
		timeTaken = rankBase - 1
	}
	return int64(score)*rankBase + int64(rankBase-1-timeTaken)
}
