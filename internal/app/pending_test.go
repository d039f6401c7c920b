package app_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"lorequiz-service/internal/app"
	"lorequiz-service/internal/domain"
)

func TestReplaySubmitsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	result := domain.FinalResult{QuizID: "potions-owl", Score: 2, Total: 3, TimeTaken: 45, XPEarned: 20}
	if err := f.queue.Hold(ctx, "browser-1", result); err != nil {
		t.Fatalf("hold: %v", err)
	}

	calls := 0
	submit := func(_ context.Context, got domain.FinalResult) error {
		calls++
		if got != result {
			t.Fatalf("replayed %+v, want %+v", got, result)
		}
		return nil
	}
	replayed, err := f.queue.Replay(ctx, "browser-1", submit)
	if err != nil || !replayed {
		t.Fatalf("first replay: %v %v", replayed, err)
	}
	replayed, err = f.queue.Replay(ctx, "browser-1", submit)
	if err != nil || replayed {
		t.Fatalf("second replay must be a no-op: %v %v", replayed, err)
	}
	if calls != 1 {
		t.Fatalf("expected one submission, got %d", calls)
	}
}

func TestHoldKeepsLatestResult(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	_ = f.queue.Hold(ctx, "browser-1", domain.FinalResult{QuizID: "charms", Score: 1})
	_ = f.queue.Hold(ctx, "browser-1", domain.FinalResult{QuizID: "potions-owl", Score: 3})

	held, ok, err := f.queue.Pending(ctx, "browser-1")
	if err != nil || !ok || held.QuizID != "potions-owl" {
		t.Fatalf("expected latest result, got %+v %v %v", held, ok, err)
	}
	if _, ok, _ := f.queue.Pending(ctx, "browser-2"); ok {
		t.Fatalf("slots are per browsing session")
	}
}

func TestReplayRestoresWhenProfileUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	result := domain.FinalResult{QuizID: "potions-owl", Score: 2, Total: 3}
	_ = f.queue.Hold(ctx, "browser-1", result)

	replayed, err := f.queue.Replay(ctx, "browser-1", func(context.Context, domain.FinalResult) error {
		return app.ErrProfileUnavailable
	})
	if replayed || !errors.Is(err, app.ErrProfileUnavailable) {
		t.Fatalf("expected failed replay, got %v %v", replayed, err)
	}
	if held, ok, _ := f.queue.Pending(ctx, "browser-1"); !ok || held != result {
		t.Fatalf("result must be restored, got %+v %v", held, ok)
	}
}

func TestReplayDropsSlotOnPartialFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	_ = f.queue.Hold(ctx, "browser-1", domain.FinalResult{QuizID: "charms", Score: 1, Total: 3})

	partial := &app.SubmissionError{Failures: map[app.Step]error{app.StepBadges: errors.New("timeout")}}
	replayed, err := f.queue.Replay(ctx, "browser-1", func(context.Context, domain.FinalResult) error {
		return partial
	})
	if !replayed || !errors.Is(err, partial) {
		t.Fatalf("partial failure still counts as replayed: %v %v", replayed, err)
	}
	if _, ok, _ := f.queue.Pending(ctx, "browser-1"); ok {
		t.Fatalf("slot must be cleared after a partial submission")
	}
}

func TestLoginAfterGuestCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := newQuizService(f, nil)
	result := domain.FinalResult{QuizID: "potions-owl", Score: 2, Total: 3, TimeTaken: 45, XPEarned: 20}

	outcome, err := f.submissions.Submit(ctx, app.SubmitRequest{SessionID: "browser-1", Result: result})
	if err != nil || !outcome.LoginRequired {
		t.Fatalf("guest submit: %+v %v", outcome, err)
	}

	outcome, replayed, err := svc.Login(ctx, "browser-1", *identity("u1"))
	if err != nil || !replayed {
		t.Fatalf("login: %v %v", replayed, err)
	}
	if outcome.XPAwarded != 20 || !outcome.LeaderboardUpdated {
		t.Fatalf("unexpected replay outcome %+v", outcome)
	}

	_, replayed, err = svc.Login(ctx, "browser-1", *identity("u1"))
	if err != nil || replayed {
		t.Fatalf("second login must not replay: %v %v", replayed, err)
	}
	profile, _ := f.profiles.GetProfile(ctx, "u1")
	if profile.XP != 20 || profile.DisplayName != "User u1" {
		t.Fatalf("unexpected profile %+v", profile)
	}
}

func TestLoginRestoresPendingWhenProfileBroken(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	result := domain.FinalResult{QuizID: "potions-owl", Score: 2, Total: 3, XPEarned: 20}
	_ = f.queue.Hold(ctx, "browser-1", result)

	logger := zap.NewNop()
	broken := brokenProfiles{ProfileStore: f.profiles}
	svc := app.NewQuizService(app.QuizServiceConfig{
		Sessions:    nil,
		Submissions: app.NewSubmissionService(broken, f.leaderboard, app.NewBadgeRuleEngine(), f.queue, logger),
		Pending:     f.queue,
		Profiles:    app.NewProfileService(f.profiles, nil, logger),
		Logger:      logger,
	})

	_, replayed, err := svc.Login(ctx, "browser-1", *identity("u1"))
	if replayed || !errors.Is(err, app.ErrProfileUnavailable) {
		t.Fatalf("expected restore, got %v %v", replayed, err)
	}
	if held, ok, _ := f.queue.Pending(ctx, "browser-1"); !ok || held != result {
		t.Fatalf("pending result lost: %+v %v", held, ok)
	}
}
