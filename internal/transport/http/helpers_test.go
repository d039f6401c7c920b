package http

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"lorequiz-service/internal/app"
	"lorequiz-service/internal/auth"
	"lorequiz-service/internal/domain"
	"lorequiz-service/internal/infra/memory"
)

// idleTicker never fires; the quizzes under test finish long before a timeout.
type idleTicker struct{}

func (idleTicker) C() <-chan time.Time { return nil }
func (idleTicker) Stop()               {}

// steppingClock moves forward an hour per reading so feedback pacing never blocks.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Hour)
	return c.now
}

type testServer struct {
	*httptest.Server
	tokens   *auth.Tokens
	profiles *memory.ProfileStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	tokens := auth.NewTokens("secret")
	clock := &steppingClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}

	profiles := memory.NewProfileStore()
	leaderboard := memory.NewLeaderboardStore()
	queue := app.NewPendingResultQueue(memory.NewPendingStore(time.Hour), logger)
	submissions := app.NewSubmissionService(profiles, leaderboard,
		app.NewBadgeRuleEngine(app.DefaultBadgeRules()...), queue, logger)
	profileSvc := app.NewProfileService(profiles, memory.NewBadgeCatalog(memory.DefaultBadges()...), logger)

	service := app.NewQuizService(app.QuizServiceConfig{
		Sessions:    memory.NewSessionStore(),
		Quizzes:     memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.QuizDefinition{"potions-owl": sampleQuiz()}), time.Minute),
		Submissions: submissions,
		Pending:     queue,
		Profiles:    profileSvc,
		Logger:      logger,
		NewTicker:   func(time.Duration) app.Ticker { return idleTicker{} },
		Now:         clock.Now,
	})

	router := NewRouter(RouterDeps{
		WS:       NewWSHandler(service, tokens, logger),
		Ranker:   app.NewRanker(leaderboard),
		Profiles: profileSvc,
		Pending:  queue,
		Verifier: tokens,
		Logger:   logger,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testServer{Server: server, tokens: tokens, profiles: profiles}
}

func (s *testServer) token(t *testing.T, uid string) string {
	t.Helper()
	token, err := s.tokens.Issue(domain.Identity{UID: uid, DisplayName: "Wizard " + uid}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (s *testServer) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// readUntil skips messages until one of type expect arrives and decodes its payload into out.
func readUntil(t *testing.T, conn *websocket.Conn, expect string, out any) {
	t.Helper()
	for i := 0; i < 50; i++ {
		var msg wsMessage
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json waiting for %s: %v", expect, err)
		}
		if msg.Type == "error" && expect != "error" {
			t.Fatalf("unexpected error message while waiting for %s: %s", expect, msg.Payload)
		}
		if msg.Type != expect {
			continue
		}
		if out != nil {
			if err := json.Unmarshal(msg.Payload, out); err != nil {
				t.Fatalf("decode %s payload: %v", expect, err)
			}
		}
		return
	}
	t.Fatalf("no %s message received", expect)
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": typ, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// playQuiz answers every question correctly until the session completes.
func playQuiz(t *testing.T, conn *websocket.Conn) domain.FinalResult {
	t.Helper()
	def := sampleQuiz()
	var view app.View
	readUntil(t, conn, "state", &view)
	for {
		position := -1
		for _, q := range def.Questions {
			if q.Prompt != view.Prompt {
				continue
			}
			for pos, option := range view.Options {
				if option == q.Options[q.Answer] {
					position = pos
				}
			}
		}
		if position < 0 {
			t.Fatalf("could not find the answer for %q", view.Prompt)
		}
		send(t, conn, "answer", map[string]int{"position": position})
		var feedback app.View
		readUntil(t, conn, "state", &feedback)
		if feedback.Status != app.StatusFeedback || !feedback.Correct {
			t.Fatalf("expected correct feedback, got %+v", feedback)
		}

		send(t, conn, "next", nil)
		var msg wsMessage
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read after next: %v", err)
		}
		switch msg.Type {
		case "complete":
			var complete completePayload
			if err := json.Unmarshal(msg.Payload, &complete); err != nil {
				t.Fatalf("decode complete: %v", err)
			}
			return complete.Result
		case "state":
			if err := json.Unmarshal(msg.Payload, &view); err != nil {
				t.Fatalf("decode state: %v", err)
			}
		default:
			t.Fatalf("unexpected message %s: %s", msg.Type, msg.Payload)
		}
	}
}

func sampleQuiz() domain.QuizDefinition {
	return domain.QuizDefinition{
		ID:        "potions-owl",
		Title:     "Potions O.W.L.",
		TimeLimit: 60,
		Questions: []domain.Question{
			{Prompt: "Bezoar comes from?", Options: []string{"A goat", "A toad", "A troll"}, Answer: 0, Lore: "goat stomach"},
			{Prompt: "Felix Felicis grants?", Options: []string{"Sleep", "Luck"}, Answer: 1},
		},
	}
}
