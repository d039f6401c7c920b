package domain

import (
	"errors"
	"fmt"
)

// Validate checks that a definition can drive a session.
func (q QuizDefinition) Validate() error {
	if q.ID == "" {
		return errors.New("missing id")
	}
	if q.TimeLimit <= 0 {
		return fmt.Errorf("time limit must be positive, got %d", q.TimeLimit)
	}
	if len(q.Questions) == 0 {
		return errors.New("no questions")
	}
	for i, question := range q.Questions {
		if len(question.Options) < 2 {
			return fmt.Errorf("question %d: need at least 2 options", i)
		}
		if question.Answer < 0 || question.Answer >= len(question.Options) {
			return fmt.Errorf("question %d: answer index %d out of range", i, question.Answer)
		}
	}
	return nil
}
