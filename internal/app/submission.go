package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lorequiz-service/internal/domain"
)

// ProfileStore exposes the per-user document through commutative or
// idempotent operations only.
type ProfileStore interface {
	GetProfile(ctx context.Context, uid string) (domain.UserProfile, error)
	// MergeProfile applies non-nil patch fields, creating a default profile first when missing.
	MergeProfile(ctx context.Context, uid string, patch domain.ProfilePatch) error
	// IncrementXP atomically adds delta and returns the new total.
	IncrementXP(ctx context.Context, uid string, delta int) (int, error)
	// TakeLevelUp clears the level-up flag and reports whether it was set.
	TakeLevelUp(ctx context.Context, uid string) (bool, error)
	PutHistory(ctx context.Context, uid, quizID string, entry domain.HistoryEntry) error
	// AddBadges unions badgeIDs into the badge set.
	AddBadges(ctx context.Context, uid string, badgeIDs ...string) error
}

// Step names one independent write of a submission.
type Step string

const (
	StepXP          Step = "xp"
	StepHistory     Step = "history"
	StepLeaderboard Step = "leaderboard"
	StepBadges      Step = "badges"
)

// ErrProfileUnavailable means the profile snapshot could not be read, so no
// write was attempted.
var ErrProfileUnavailable = errors.New("profile snapshot unavailable")

// SubmissionError reports the steps that failed while the others went through.
type SubmissionError struct {
	Failures map[Step]error
}

func (e *SubmissionError) Error() string {
	steps := make([]string, 0, len(e.Failures))
	for step := range e.Failures {
		steps = append(steps, string(step))
	}
	sort.Strings(steps)
	return fmt.Sprintf("partial submission failure (%s): %v", strings.Join(steps, ", "), e.Unwrap())
}

func (e *SubmissionError) Unwrap() error {
	var combined error
	for _, step := range []Step{StepXP, StepHistory, StepLeaderboard, StepBadges} {
		if err, ok := e.Failures[step]; ok {
			combined = multierr.Append(combined, err)
		}
	}
	return combined
}

// Failed reports whether a step failed.
func (e *SubmissionError) Failed(step Step) bool {
	_, ok := e.Failures[step]
	return ok
}

// SubmitRequest is one finished result, optionally owned by an identity.
// SessionID is the browsing session used for the guest slot.
type SubmitRequest struct {
	SessionID string
	Result    domain.FinalResult
	Identity  *domain.Identity
}

// SubmissionOutcome tells the caller what happened, for display.
type SubmissionOutcome struct {
	LoginRequired      bool     `json:"loginRequired"`
	FirstCompletion    bool     `json:"firstCompletion"`
	XPAwarded          int      `json:"xpAwarded"`
	XPWithheld         bool     `json:"xpWithheld"`
	XP                 int      `json:"xp"`
	Level              int      `json:"level"`
	LevelUp            bool     `json:"levelUp"`
	LeaderboardUpdated bool     `json:"leaderboardUpdated"`
	BadgesGranted      []string `json:"badgesGranted,omitempty"`
	Failed             []Step   `json:"failed,omitempty"`
}

// SubmissionService commits one result to the profile, history, leaderboard
// and badge set.
type SubmissionService struct {
	profiles    ProfileStore
	leaderboard LeaderboardStore
	badges      *BadgeRuleEngine
	pending     *PendingResultQueue
	logger      *zap.Logger
	now         func() time.Time
}

func NewSubmissionService(profiles ProfileStore, leaderboard LeaderboardStore, badges *BadgeRuleEngine, pending *PendingResultQueue, logger *zap.Logger) *SubmissionService {
	return &SubmissionService{
		profiles:    profiles,
		leaderboard: leaderboard,
		badges:      badges,
		pending:     pending,
		logger:      logger,
		now:         time.Now,
	}
}

// NewSubmissionServiceWithClock is test-only for deterministic timestamps.
func NewSubmissionServiceWithClock(profiles ProfileStore, leaderboard LeaderboardStore, badges *BadgeRuleEngine, pending *PendingResultQueue, logger *zap.Logger, now func() time.Time) *SubmissionService {
	s := NewSubmissionService(profiles, leaderboard, badges, pending, logger)
	s.now = now
	return s
}

// Submit records a result. Without an identity the result is parked in the
// pending queue and the outcome asks for a login. With one, the four writes
// run concurrently and each failure is logged and collected into a
// *SubmissionError; none of them stops the others.
func (s *SubmissionService) Submit(ctx context.Context, req SubmitRequest) (SubmissionOutcome, error) {
	if req.Identity == nil {
		if err := s.pending.Hold(ctx, req.SessionID, req.Result); err != nil {
			return SubmissionOutcome{LoginRequired: true}, err
		}
		return SubmissionOutcome{LoginRequired: true}, nil
	}

	identity := *req.Identity
	result := req.Result
	before, err := ensureProfile(ctx, s.profiles, identity)
	if err != nil {
		s.logger.Error("read profile snapshot failed", zap.String("uid", identity.UID), zap.Error(err))
		return SubmissionOutcome{}, fmt.Errorf("%w: %v", ErrProfileUnavailable, err)
	}

	now := s.now()
	outcome := SubmissionOutcome{
		FirstCompletion: !before.HasCompleted(result.QuizID),
		XP:              before.XP,
		Level:           domain.Level(before.XP),
	}
	outcome.XPWithheld = !outcome.FirstCompletion
	grants := s.badges.Evaluate(result, before)

	var (
		g                                 errgroup.Group
		xpErr, historyErr, boardErr, bErr error
		newXP                             int
		credited, boardUpdated            bool
	)

	if outcome.FirstCompletion && result.XPEarned > 0 {
		g.Go(func() error {
			newXP, xpErr = s.profiles.IncrementXP(ctx, identity.UID, result.XPEarned)
			if xpErr != nil {
				xpErr = fmt.Errorf("increment xp: %w", xpErr)
				return xpErr
			}
			credited = true
			xpErr = s.flagLevelUp(ctx, identity.UID, newXP, result.XPEarned)
			return xpErr
		})
	}
	g.Go(func() error {
		historyErr = s.profiles.PutHistory(ctx, identity.UID, result.QuizID, domain.HistoryEntry{
			Score:     result.Score,
			Total:     result.Total,
			TimeTaken: result.TimeTaken,
			Date:      now,
		})
		return historyErr
	})
	g.Go(func() error {
		boardUpdated, boardErr = s.leaderboard.UpsertBest(ctx, result.QuizID, domain.LeaderboardEntry{
			UID:         identity.UID,
			DisplayName: identity.DisplayName,
			PhotoURL:    identity.PhotoURL,
			Score:       result.Score,
			TimeTaken:   result.TimeTaken,
			Timestamp:   now,
		})
		return boardErr
	})
	if len(grants) > 0 {
		g.Go(func() error {
			bErr = s.profiles.AddBadges(ctx, identity.UID, grants...)
			return bErr
		})
	}
	_ = g.Wait()

	failures := make(map[Step]error)
	record := func(step Step, err error) {
		if err == nil {
			return
		}
		failures[step] = err
		outcome.Failed = append(outcome.Failed, step)
		s.logger.Error("submission step failed",
			zap.String("step", string(step)),
			zap.String("uid", identity.UID),
			zap.String("quiz", result.QuizID),
			zap.Error(err),
		)
	}
	record(StepXP, xpErr)
	record(StepHistory, historyErr)
	record(StepLeaderboard, boardErr)
	record(StepBadges, bErr)

	if credited {
		outcome.XPAwarded = result.XPEarned
		outcome.XP = newXP
		outcome.Level = domain.Level(newXP)
		outcome.LevelUp = domain.Level(newXP) > domain.Level(newXP-result.XPEarned)
	}
	outcome.LeaderboardUpdated = boardUpdated
	if bErr == nil {
		outcome.BadgesGranted = grants
	}

	s.logger.Info("result submitted",
		zap.String("uid", identity.UID),
		zap.String("quiz", result.QuizID),
		zap.Int("score", result.Score),
		zap.Bool("first_completion", outcome.FirstCompletion),
		zap.Bool("leaderboard_updated", outcome.LeaderboardUpdated),
		zap.Strings("badges", grants),
	)

	if len(failures) > 0 {
		return outcome, &SubmissionError{Failures: failures}
	}
	return outcome, nil
}

// flagLevelUp marks the level-up notification when the credit crossed a level
// boundary. Levels come from the value the store returned so concurrent
// credits for the same user each see their own before and after.
func (s *SubmissionService) flagLevelUp(ctx context.Context, uid string, newXP, delta int) error {
	if domain.Level(newXP) <= domain.Level(newXP-delta) {
		return nil
	}
	pending := true
	if err := s.profiles.MergeProfile(ctx, uid, domain.ProfilePatch{LevelUpPending: &pending}); err != nil {
		return fmt.Errorf("flag level up: %w", err)
	}
	return nil
}
