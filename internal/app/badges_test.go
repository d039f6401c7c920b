package app_test

import (
	"testing"

	"lorequiz-service/internal/app"
	"lorequiz-service/internal/domain"
)

func TestBadgeRuleEngine(t *testing.T) {
	engine := app.NewBadgeRuleEngine(app.DefaultBadgeRules()...)
	perfect := domain.FinalResult{QuizID: "potions-owl", Score: 3, Total: 3}

	grants := engine.Evaluate(perfect, domain.UserProfile{})
	if len(grants) != 2 || grants[0] != "potions-perfect" || grants[1] != "first-quiz" {
		t.Fatalf("unexpected grants %v", grants)
	}

	veteran := domain.UserProfile{
		Badges:      []string{"potions-perfect"},
		QuizHistory: map[string]domain.HistoryEntry{"charms": {Score: 1, Total: 3}},
	}
	if grants := engine.Evaluate(perfect, veteran); len(grants) != 0 {
		t.Fatalf("expected nothing for a veteran holding the badge, got %v", grants)
	}

	imperfect := domain.FinalResult{QuizID: "potions-owl", Score: 2, Total: 3}
	if grants := engine.Evaluate(imperfect, veteran); len(grants) != 0 {
		t.Fatalf("imperfect score must not grant, got %v", grants)
	}
	otherQuiz := domain.FinalResult{QuizID: "charms", Score: 3, Total: 3}
	if grants := engine.Evaluate(otherQuiz, veteran); len(grants) != 0 {
		t.Fatalf("perfect rule is per quiz, got %v", grants)
	}
}

func TestBadgeRuleEngineDeduplicates(t *testing.T) {
	engine := app.NewBadgeRuleEngine(
		app.PerfectScoreRule("charms", "flawless"),
		app.PerfectScoreRule("charms", "flawless"),
		app.BadgeRule{BadgeID: "broken"},
	)
	grants := engine.Evaluate(domain.FinalResult{QuizID: "charms", Score: 5, Total: 5}, domain.UserProfile{})
	if len(grants) != 1 || grants[0] != "flawless" {
		t.Fatalf("expected a single flawless grant, got %v", grants)
	}
}
