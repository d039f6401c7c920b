package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"lorequiz-service/internal/domain"
)

// PendingStore is a single-slot store per browsing session.
type PendingStore interface {
	// Put overwrites the slot.
	Put(ctx context.Context, sessionID string, result domain.FinalResult) error
	// PutIfEmpty fills the slot only when nothing is held, reporting whether it did.
	PutIfEmpty(ctx context.Context, sessionID string, result domain.FinalResult) (bool, error)
	// Peek reads the slot without clearing it.
	Peek(ctx context.Context, sessionID string) (domain.FinalResult, error)
	// Take atomically reads and clears the slot. It returns domain.ErrNoPendingResult when empty.
	Take(ctx context.Context, sessionID string) (domain.FinalResult, error)
}

// PendingResultQueue holds the latest guest result until its owner logs in.
type PendingResultQueue struct {
	store  PendingStore
	logger *zap.Logger
}

func NewPendingResultQueue(store PendingStore, logger *zap.Logger) *PendingResultQueue {
	return &PendingResultQueue{store: store, logger: logger}
}

// Hold keeps result for the browsing session, replacing any earlier one.
func (q *PendingResultQueue) Hold(ctx context.Context, sessionID string, result domain.FinalResult) error {
	if err := q.store.Put(ctx, sessionID, result); err != nil {
		return fmt.Errorf("hold pending result: %w", err)
	}
	q.logger.Info("pending result held",
		zap.String("session", sessionID),
		zap.String("quiz", result.QuizID),
		zap.Int("score", result.Score),
	)
	return nil
}

// Pending reports the held result, if any.
func (q *PendingResultQueue) Pending(ctx context.Context, sessionID string) (domain.FinalResult, bool, error) {
	result, err := q.store.Peek(ctx, sessionID)
	if errors.Is(err, domain.ErrNoPendingResult) {
		return domain.FinalResult{}, false, nil
	}
	if err != nil {
		return domain.FinalResult{}, false, err
	}
	return result, true, nil
}

// Replay submits the held result once and clears the slot. The slot is taken
// before submitting so two concurrent logins cannot both replay it. When the
// submission wrote nothing (ErrProfileUnavailable) the result goes back into
// the slot unless a newer one arrived meanwhile.
func (q *PendingResultQueue) Replay(ctx context.Context, sessionID string, submit func(context.Context, domain.FinalResult) error) (bool, error) {
	result, err := q.store.Take(ctx, sessionID)
	if errors.Is(err, domain.ErrNoPendingResult) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("take pending result: %w", err)
	}

	err = submit(ctx, result)
	if errors.Is(err, ErrProfileUnavailable) {
		if _, restoreErr := q.store.PutIfEmpty(ctx, sessionID, result); restoreErr != nil {
			q.logger.Error("restore pending result failed", zap.String("session", sessionID), zap.Error(restoreErr))
		}
		return false, err
	}
	q.logger.Info("pending result replayed", zap.String("session", sessionID), zap.String("quiz", result.QuizID))
	return true, err
}
