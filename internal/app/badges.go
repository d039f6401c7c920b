package app

import "lorequiz-service/internal/domain"

// BadgeRule grants BadgeID when Match holds for a result and the profile as it
// was before the submission wrote anything.
type BadgeRule struct {
	BadgeID string
	Match   func(result domain.FinalResult, before domain.UserProfile) bool
}

// PerfectScoreRule grants badgeID for a perfect score on quizID.
func PerfectScoreRule(quizID, badgeID string) BadgeRule {
	return BadgeRule{
		BadgeID: badgeID,
		Match: func(result domain.FinalResult, _ domain.UserProfile) bool {
			return result.QuizID == quizID && result.Perfect()
		},
	}
}

// FirstQuizRule grants badgeID on the first quiz a user ever completes.
func FirstQuizRule(badgeID string) BadgeRule {
	return BadgeRule{
		BadgeID: badgeID,
		Match: func(_ domain.FinalResult, before domain.UserProfile) bool {
			return len(before.QuizHistory) == 0 && !before.HasBadge(badgeID)
		},
	}
}

// DefaultBadgeRules is the built-in rule set.
func DefaultBadgeRules() []BadgeRule {
	return []BadgeRule{
		PerfectScoreRule("potions-owl", "potions-perfect"),
		FirstQuizRule("first-quiz"),
	}
}

// BadgeRuleEngine evaluates every rule independently.
type BadgeRuleEngine struct {
	rules []BadgeRule
}

func NewBadgeRuleEngine(rules ...BadgeRule) *BadgeRuleEngine {
	return &BadgeRuleEngine{rules: rules}
}

// Evaluate returns the badges to grant, without duplicates and without badges
// the snapshot already holds.
func (e *BadgeRuleEngine) Evaluate(result domain.FinalResult, before domain.UserProfile) []string {
	seen := make(map[string]struct{}, len(e.rules))
	var grants []string
	for _, rule := range e.rules {
		if rule.Match == nil || !rule.Match(result, before) {
			continue
		}
		if _, ok := seen[rule.BadgeID]; ok || before.HasBadge(rule.BadgeID) {
			continue
		}
		seen[rule.BadgeID] = struct{}{}
		grants = append(grants, rule.BadgeID)
	}
	return grants
}
