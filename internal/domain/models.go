package domain

import "time"

// XPPerCorrectAnswer is the experience credited for each correct answer.
const XPPerCorrectAnswer = 10

// XPPerLevel is the experience needed to advance one level.
const XPPerLevel = 100

// Question is a single multiple-choice question. Answer indexes Options.
type Question struct {
	Prompt  string   `json:"question" yaml:"question"`
	Options []string `json:"options" yaml:"options"`
	Answer  int      `json:"answer" yaml:"answer"`
	Lore    string   `json:"lore,omitempty" yaml:"lore,omitempty"`
}

// QuizDefinition is an immutable, ordered set of questions with a time limit in seconds.
type QuizDefinition struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	TimeLimit int        `json:"timeLimit" yaml:"timeLimit"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// FinalResult is the scored outcome of one completed quiz session.
type FinalResult struct {
	QuizID    string `json:"quizId"`
	Score     int    `json:"score"`
	Total     int    `json:"totalQuestions"`
	TimeTaken int    `json:"timeTaken"`
	XPEarned  int    `json:"xpEarned"`
}

// Perfect reports whether every question was answered correctly.
func (r FinalResult) Perfect() bool {
	return r.Total > 0 && r.Score == r.Total
}

// HistoryEntry records the latest attempt of a quiz for a user.
type HistoryEntry struct {
	Score     int       `json:"score"`
	Total     int       `json:"total"`
	TimeTaken int       `json:"timeTaken"`
	Date      time.Time `json:"date"`
}

// Theme is a display preference.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Valid reports whether the theme is one of the known values.
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}

// Settings holds per-user preferences.
type Settings struct {
	AudioEnabled bool  `json:"audioEnabled"`
	Theme        Theme `json:"theme"`
}

// DefaultSettings are applied to freshly created profiles.
func DefaultSettings() Settings {
	return Settings{AudioEnabled: true, Theme: ThemeLight}
}

// UserProfile is the shared per-user document. It is only ever mutated through
// deltas and upserts at the store, never rewritten whole.
type UserProfile struct {
	UID            string                  `json:"uid"`
	DisplayName    string                  `json:"displayName"`
	Email          string                  `json:"email"`
	PhotoURL       string                  `json:"photoURL"`
	CreatedAt      time.Time               `json:"createdAt"`
	XP             int                     `json:"xp"`
	Badges         []string                `json:"badges"`
	QuizHistory    map[string]HistoryEntry `json:"quizHistory"`
	Settings       Settings                `json:"settings"`
	LevelUpPending bool                    `json:"levelUpPending"`
}

// HasCompleted reports whether the quiz appears in the profile history.
func (p UserProfile) HasCompleted(quizID string) bool {
	_, ok := p.QuizHistory[quizID]
	return ok
}

// HasBadge reports whether the badge is already held.
func (p UserProfile) HasBadge(badgeID string) bool {
	for _, b := range p.Badges {
		if b == badgeID {
			return true
		}
	}
	return false
}

// ProfilePatch is a set-with-merge update. Nil fields are left untouched.
type ProfilePatch struct {
	DisplayName    *string
	Email          *string
	PhotoURL       *string
	Settings       *Settings
	LevelUpPending *bool
}

// Identity is an authenticated user as asserted by the auth layer.
type Identity struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

// LeaderboardEntry is a user's best attempt on a quiz.
type LeaderboardEntry struct {
	UID         string    `json:"uid"`
	DisplayName string    `json:"displayName"`
	PhotoURL    string    `json:"photoURL,omitempty"`
	Score       int       `json:"score"`
	TimeTaken   int       `json:"timeTaken"`
	Timestamp   time.Time `json:"timestamp"`
}

// Better reports whether a ranks strictly ahead of b: higher score first,
// then lower time taken.
func Better(a, b LeaderboardEntry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.TimeTaken < b.TimeTaken
}

// Badge is a catalog record describing an achievement.
type Badge struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
}

// Level derives the level from accumulated experience.
func Level(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return xp/XPPerLevel + 1
}

var levelTitles = []string{"Novice", "Apprentice", "Adept", "Master"}

// LevelTitle names a level; every level past the last title keeps it.
func LevelTitle(level int) string {
	if level < 1 {
		level = 1
	}
	if level > len(levelTitles) {
		level = len(levelTitles)
	}
	return levelTitles[level-1]
}
