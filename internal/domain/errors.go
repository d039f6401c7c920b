package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when no quiz session is live for a browsing session.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrProfileNotFound is returned when a user has no profile document yet.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrEntryNotFound is returned when a user has no leaderboard entry for a quiz.
	ErrEntryNotFound = errors.New("leaderboard entry not found")
	// ErrBadgeNotFound indicates a badge id missing from the catalog.
	ErrBadgeNotFound = errors.New("badge not found")
	// ErrNotAcceptingAnswers is returned when an option is selected outside the Active state.
	ErrNotAcceptingAnswers = errors.New("session is not accepting answers")
	// ErrNotInFeedback is returned when advancing while no feedback is shown.
	ErrNotInFeedback = errors.New("session is not showing feedback")
	// ErrFeedbackPacing is returned when advancing before the feedback delay elapsed.
	ErrFeedbackPacing = errors.New("feedback is still being shown")
	// ErrInvalidOption indicates an option position outside the displayed options.
	ErrInvalidOption = errors.New("option out of range")
	// ErrNotComplete is returned when finishing a session that has no result yet.
	ErrNotComplete = errors.New("session is not complete")
	// ErrAlreadySubmitted is returned when a session result was already claimed.
	ErrAlreadySubmitted = errors.New("session result already submitted")
	// ErrNoPendingResult is returned when a browsing session holds no pending result.
	ErrNoPendingResult = errors.New("no pending result")
	// ErrUnauthenticated is returned when a request carries no valid identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidSettings indicates a settings patch with unknown values.
	ErrInvalidSettings = errors.New("invalid settings")
)

// DefinitionLoadError wraps any failure to fetch, parse or validate a quiz definition.
type DefinitionLoadError struct {
	QuizID string
	Err    error
}

func (e *DefinitionLoadError) Error() string {
	return fmt.Sprintf("load quiz %q: %v", e.QuizID, e.Err)
}

func (e *DefinitionLoadError) Unwrap() error { return e.Err }
