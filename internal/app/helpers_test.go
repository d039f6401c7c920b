package app_test

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"lorequiz-service/internal/app"
	"lorequiz-service/internal/domain"
	"lorequiz-service/internal/infra/memory"
)

// manualTicker lets a test fire countdown ticks one at a time.
type manualTicker struct {
	ch chan time.Time
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time)}
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               {}

func (m *manualTicker) factory() app.TickerFunc {
	return func(time.Duration) app.Ticker { return m }
}

// manualClock is a settable time source.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recorder collects controller events.
type recorder struct {
	events chan app.Event
}

func newRecorder() *recorder {
	return &recorder{events: make(chan app.Event, 512)}
}

func (r *recorder) listen(ev app.Event) { r.events <- ev }

func (r *recorder) waitFor(t *testing.T, typ app.EventType) app.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-r.events:
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", typ)
		}
	}
}

// tick fires one countdown tick and waits until the controller processed it.
func tick(t *testing.T, ticker *manualTicker, rec *recorder) app.Event {
	t.Helper()
	select {
	case ticker.ch <- time.Now():
	case <-time.After(5 * time.Second):
		t.Fatalf("timer goroutine is not receiving ticks")
	}
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-rec.events:
			if ev.Type == app.EventTick || ev.Type == app.EventComplete {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for tick")
		}
	}
}

// positionOf finds the displayed position of an option text.
func positionOf(t *testing.T, view app.View, text string) int {
	t.Helper()
	for i, option := range view.Options {
		if option == text {
			return i
		}
	}
	t.Fatalf("option %q not displayed in %v", text, view.Options)
	return -1
}

// answerFor returns the correct and a wrong option text for the displayed prompt.
func answerFor(t *testing.T, def domain.QuizDefinition, prompt string) (correct, wrong string) {
	t.Helper()
	for _, q := range def.Questions {
		if q.Prompt == prompt {
			return q.Options[q.Answer], q.Options[(q.Answer+1)%len(q.Options)]
		}
	}
	t.Fatalf("unknown prompt %q", prompt)
	return "", ""
}

func threeQuestionQuiz() domain.QuizDefinition {
	return domain.QuizDefinition{
		ID:        "potions-owl",
		Title:     "Potions O.W.L.",
		TimeLimit: 60,
		Questions: []domain.Question{
			{Prompt: "Which ingredient cures most poisons?", Options: []string{"Bezoar", "Moonstone", "Wormwood", "Mandrake"}, Answer: 0, Lore: "Snape asked Harry this in his first lesson."},
			{Prompt: "What colour is Polyjuice when brewed?", Options: []string{"Gold", "Mud brown", "Silver"}, Answer: 1},
			{Prompt: "Who taught Potions before Snape's return?", Options: []string{"Lupin", "Slughorn", "Sprout"}, Answer: 1},
		},
	}
}

type fixture struct {
	profiles    *memory.ProfileStore
	leaderboard *memory.LeaderboardStore
	pending     *memory.PendingStore
	queue       *app.PendingResultQueue
	submissions *app.SubmissionService
	profileSvc  *app.ProfileService
	clock       *manualClock
}

func newFixture() *fixture {
	f := &fixture{
		profiles:    memory.NewProfileStore(),
		leaderboard: memory.NewLeaderboardStore(),
		pending:     memory.NewPendingStore(time.Hour),
		clock:       newManualClock(),
	}
	logger := zap.NewNop()
	f.queue = app.NewPendingResultQueue(f.pending, logger)
	f.submissions = app.NewSubmissionServiceWithClock(f.profiles, f.leaderboard,
		app.NewBadgeRuleEngine(app.DefaultBadgeRules()...), f.queue, logger, f.clock.Now)
	f.profileSvc = app.NewProfileService(f.profiles, memory.NewBadgeCatalog(memory.DefaultBadges()...), logger)
	return f
}

func identity(uid string) *domain.Identity {
	return &domain.Identity{UID: uid, DisplayName: "User " + uid}
}
