package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"lorequiz-service/internal/domain"
)

// PendingStore keeps one guest result per browsing session:
// SET pending:{sessionID} <json> EX ttl
type PendingStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPendingStore(client *redis.Client, ttl time.Duration) *PendingStore {
	return &PendingStore{client: client, ttl: ttl}
}

func (s *PendingStore) Put(ctx context.Context, sessionID string, result domain.FinalResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode pending result: %w", err)
	}
	return s.client.Set(ctx, s.key(sessionID), raw, s.ttl).Err()
}

func (s *PendingStore) PutIfEmpty(ctx context.Context, sessionID string, result domain.FinalResult) (bool, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("encode pending result: %w", err)
	}
	return s.client.SetNX(ctx, s.key(sessionID), raw, s.ttl).Result()
}

func (s *PendingStore) Peek(ctx context.Context, sessionID string) (domain.FinalResult, error) {
	return s.decode(s.client.Get(ctx, s.key(sessionID)).Bytes())
}

func (s *PendingStore) Take(ctx context.Context, sessionID string) (domain.FinalResult, error) {
	return s.decode(s.client.GetDel(ctx, s.key(sessionID)).Bytes())
}

func (s *PendingStore) decode(raw []byte, err error) (domain.FinalResult, error) {
	if errors.Is(err, redis.Nil) {
		return domain.FinalResult{}, domain.ErrNoPendingResult
	}
	if err != nil {
		return domain.FinalResult{}, fmt.Errorf("read pending result: %w", err)
	}
	var result domain.FinalResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return domain.FinalResult{}, fmt.Errorf("decode pending result: %w", err)
	}
	return result, nil
}

func (s *PendingStore) key(sessionID string) string {
	return "pending:" + sessionID
}
