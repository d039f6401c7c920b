package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"lorequiz-service/internal/domain"
)

// SessionRepository abstracts where live controllers are kept (in-memory, Redis-marked, etc).
// Keys are browsing-session ids; each browsing session runs at most one quiz.
type SessionRepository interface {
	// Swap installs controller and returns the one it replaced, if any.
	Swap(sessionID string, controller *Controller) (*Controller, bool)
	Get(sessionID string) (*Controller, bool)
	// CompareAndDelete removes the entry only while it still holds controller.
	CompareAndDelete(sessionID string, controller *Controller) bool
}

// QuizRepository loads quiz definitions (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.QuizDefinition, error)
}

// QuizService contains the session use cases: start, answer, advance, finish,
// leave and the login replay of a guest result.
type QuizService struct {
	sessions    SessionRepository
	quizzes     QuizRepository
	submissions *SubmissionService
	pending     *PendingResultQueue
	profiles    *ProfileService
	logger      *zap.Logger
	controller  ControllerOptions
}

// QuizServiceConfig bundles collaborators for NewQuizService.
type QuizServiceConfig struct {
	Sessions      SessionRepository
	Quizzes       QuizRepository
	Submissions   *SubmissionService
	Pending       *PendingResultQueue
	Profiles      *ProfileService
	Logger        *zap.Logger
	FeedbackDelay time.Duration
	// NewTicker overrides the countdown source; tests use it to drive time.
	NewTicker TickerFunc
	Now       func() time.Time
}

func NewQuizService(cfg QuizServiceConfig) *QuizService {
	return &QuizService{
		sessions:    cfg.Sessions,
		quizzes:     cfg.Quizzes,
		submissions: cfg.Submissions,
		pending:     cfg.Pending,
		profiles:    cfg.Profiles,
		logger:      cfg.Logger,
		controller: ControllerOptions{
			FeedbackDelay: cfg.FeedbackDelay,
			NewTicker:     cfg.NewTicker,
			Now:           cfg.Now,
		},
	}
}

// Start loads quizID and begins a new session for the browsing session,
// abandoning whatever quiz that browsing session was playing before. A load
// failure leaves a Failed controller behind and returns a DefinitionLoadError.
func (s *QuizService) Start(ctx context.Context, sessionID, quizID string, listener func(Event)) (*Controller, error) {
	opts := s.controller
	opts.Listener = listener
	controller := NewController(quizID, opts)
	if previous, ok := s.sessions.Swap(sessionID, controller); ok {
		previous.Abandon()
	}

	def, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		loadErr := &domain.DefinitionLoadError{QuizID: quizID, Err: err}
		controller.Fail(loadErr)
		s.logger.Warn("quiz load failed", zap.String("quiz", quizID), zap.Error(err))
		return controller, loadErr
	}
	if err := controller.Begin(def); err != nil {
		s.logger.Warn("quiz definition rejected", zap.String("quiz", quizID), zap.Error(err))
		return controller, err
	}
	return controller, nil
}

// Answer selects an option on the live session.
func (s *QuizService) Answer(sessionID string, position int) (View, error) {
	controller, ok := s.sessions.Get(sessionID)
	if !ok {
		return View{}, domain.ErrSessionNotFound
	}
	return controller.Select(position)
}

// Next advances the live session.
func (s *QuizService) Next(sessionID string) (View, error) {
	controller, ok := s.sessions.Get(sessionID)
	if !ok {
		return View{}, domain.ErrSessionNotFound
	}
	return controller.Next()
}

// Finish submits the result of a completed session and drops the session.
// Sessions that are not complete yet are left untouched; a result is only
// ever submitted once. When the profile could not be read nothing was
// written, so the session and its result stay for a retry.
func (s *QuizService) Finish(ctx context.Context, sessionID string, identity *domain.Identity) (SubmissionOutcome, error) {
	controller, ok := s.sessions.Get(sessionID)
	if !ok {
		return SubmissionOutcome{}, domain.ErrSessionNotFound
	}
	result, err := controller.ClaimResult()
	if err != nil {
		return SubmissionOutcome{}, fmt.Errorf("finish: %w", err)
	}

	outcome, err := s.submissions.Submit(ctx, SubmitRequest{
		SessionID: sessionID,
		Result:    result,
		Identity:  identity,
	})
	if errors.Is(err, ErrProfileUnavailable) {
		controller.unclaim()
		s.logger.Warn("submission deferred, session kept for retry",
			zap.String("session", sessionID), zap.String("quiz", result.QuizID), zap.Error(err))
		return outcome, err
	}
	s.sessions.CompareAndDelete(sessionID, controller)
	return outcome, err
}

// Leave is navigation-away: an unfinished session is abandoned and never
// submitted. A completed session whose result was not claimed yet is kept
// for Finish.
func (s *QuizService) Leave(sessionID string) {
	controller, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	s.Release(sessionID, controller)
}

// Release is Leave for a specific controller. A browsing session that has
// since started another quiz keeps it.
func (s *QuizService) Release(sessionID string, controller *Controller) {
	controller.Abandon()
	if controller.Status() == StatusComplete {
		return
	}
	s.sessions.CompareAndDelete(sessionID, controller)
}

// Login bootstraps the profile and replays the browsing session's pending
// result, if there is one. replayed is false when nothing was pending.
func (s *QuizService) Login(ctx context.Context, sessionID string, identity domain.Identity) (outcome SubmissionOutcome, replayed bool, err error) {
	if _, err := s.profiles.Ensure(ctx, identity); err != nil {
		return SubmissionOutcome{}, false, fmt.Errorf("ensure profile: %w", err)
	}

	replayed, err = s.pending.Replay(ctx, sessionID, func(ctx context.Context, result domain.FinalResult) error {
		var submitErr error
		outcome, submitErr = s.submissions.Submit(ctx, SubmitRequest{
			SessionID: sessionID,
			Result:    result,
			Identity:  &identity,
		})
		return submitErr
	})
	if err != nil && !errors.As(err, new(*SubmissionError)) {
		return SubmissionOutcome{}, replayed, err
	}
	return outcome, replayed, err
}
