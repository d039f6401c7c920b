package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"lorequiz-service/internal/app"
	"lorequiz-service/internal/auth"
	"lorequiz-service/internal/domain"
)

// submitTimeout bounds a submission so it outlives a dropped connection.
const submitTimeout = 10 * time.Second

// IdentityVerifier turns a bearer token into an identity.
type IdentityVerifier interface {
	Verify(token string) (domain.Identity, error)
}

type WSHandler struct {
	service  *app.QuizService
	verifier IdentityVerifier
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, verifier IdentityVerifier, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		service:  service,
		verifier: verifier,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Position int `json:"position"`
}

type loginPayload struct {
	Token string `json:"token"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type sessionPayload struct {
	SessionID string `json:"sessionId"`
	QuizID    string `json:"quizId"`
}

type completePayload struct {
	Result domain.FinalResult `json:"result"`
	View   app.View           `json:"view"`
}

type submissionPayload struct {
	Replayed bool                  `json:"replayed"`
	Outcome  app.SubmissionOutcome `json:"outcome"`
}

type loginRequiredPayload struct {
	Result domain.FinalResult `json:"result"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// client is the per-connection state shared by the reader and the event pump.
// controller is set before the read loop starts and only read from it.
type client struct {
	sessionID  string
	controller *app.Controller
	send       chan outboundMessage[any]
	closed     chan struct{}

	mu       sync.Mutex
	identity *domain.Identity
}

func (c *client) push(typ string, payload any) {
	select {
	case c.send <- outboundMessage[any]{Type: typ, Payload: payload}:
	case <-c.closed:
	}
}

func (c *client) pushError(err error) {
	c.push("error", errorPayload{Message: err.Error()})
}

func (c *client) currentIdentity() *domain.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *client) setIdentity(identity domain.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = &identity
}

// ServeWS upgrades HTTP requests to websockets and runs one quiz session per
// browsing session over them.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	if quizID == "" {
		http.Error(w, "missing quizId", http.StatusBadRequest)
		return
	}
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	c := &client{
		sessionID: sessionID,
		send:      make(chan outboundMessage[any], 16),
		closed:    make(chan struct{}),
	}
	if token := requestToken(r); token != "" {
		identity, err := h.verifier.Verify(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		c.setIdentity(identity)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	writerDone := make(chan struct{})
	pumpDone := make(chan struct{})
	events := make(chan app.Event, 64)

	go func() {
		defer close(writerDone)
		for msg := range c.send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write failed", zap.String("session", sessionID), zap.Error(err))
				return
			}
		}
	}()

	go func() {
		defer close(pumpDone)
		for {
			select {
			case ev := <-events:
				h.forward(c, ev)
			case <-c.closed:
				return
			}
		}
	}()

	listener := func(ev app.Event) {
		select {
		case events <- ev:
		case <-c.closed:
		}
	}

	c.push("session", sessionPayload{SessionID: sessionID, QuizID: quizID})
	controller, err := h.service.Start(r.Context(), sessionID, quizID, listener)
	c.controller = controller
	if err != nil {
		h.logger.Info("quiz start failed", zap.String("session", sessionID), zap.String("quiz", quizID), zap.Error(err))
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.handle(r.Context(), c, inbound)
	}

	close(c.closed)
	<-pumpDone
	h.finishOnLeave(c)
	close(c.send)
	<-writerDone
}

func (h *WSHandler) handle(ctx context.Context, c *client, inbound inboundMessage) {
	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			c.pushError(errors.New("invalid answer payload"))
			return
		}
		if _, err := h.service.Answer(c.sessionID, payload.Position); err != nil {
			c.pushError(err)
		}
	case "next":
		if _, err := h.service.Next(c.sessionID); err != nil {
			c.pushError(err)
		}
	case "leave":
		h.service.Leave(c.sessionID)
	case "finish":
		if c.controller == nil {
			c.pushError(domain.ErrSessionNotFound)
			return
		}
		result, ok := c.controller.Result()
		if !ok {
			c.pushError(domain.ErrNotComplete)
			return
		}
		h.finish(c, &result)
	case "login":
		var payload loginPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.Token == "" {
			c.pushError(errors.New("invalid login payload"))
			return
		}
		identity, err := h.verifier.Verify(payload.Token)
		if err != nil {
			c.pushError(err)
			return
		}
		c.setIdentity(identity)

		submitCtx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()
		outcome, replayed, err := h.service.Login(submitCtx, c.sessionID, identity)
		var partial *app.SubmissionError
		if err != nil && !errors.As(err, &partial) {
			c.pushError(err)
			return
		}
		c.push("submission", submissionPayload{Replayed: replayed, Outcome: outcome})
		if partial != nil {
			c.pushError(partial)
		}
	default:
		c.pushError(errors.New("unsupported message type"))
	}
}

// forward turns controller events into outbound messages. A completed
// session is submitted right away.
func (h *WSHandler) forward(c *client, ev app.Event) {
	switch ev.Type {
	case app.EventComplete:
		c.push("complete", completePayload{Result: *ev.Result, View: ev.View})
		h.finish(c, ev.Result)
	case app.EventFailed:
		c.push("state", ev.View)
		c.pushError(ev.Err)
	default:
		c.push("state", ev.View)
	}
}

// finish submits the session result. A nil result means the connection is
// gone and nothing is reported back.
func (h *WSHandler) finish(c *client, result *domain.FinalResult) {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	notify := result != nil
	outcome, err := h.service.Finish(ctx, c.sessionID, c.currentIdentity())
	if errors.Is(err, domain.ErrAlreadySubmitted) || errors.Is(err, domain.ErrNotComplete) ||
		errors.Is(err, domain.ErrSessionNotFound) {
		return
	}
	var partial *app.SubmissionError
	if err != nil && !errors.As(err, &partial) {
		h.logger.Error("submission failed", zap.String("session", c.sessionID), zap.Error(err))
		if notify {
			c.pushError(err)
		}
		return
	}
	if !notify {
		return
	}
	if outcome.LoginRequired {
		c.push("loginRequired", loginRequiredPayload{Result: *result})
		return
	}
	c.push("submission", submissionPayload{Outcome: outcome})
	if partial != nil {
		c.pushError(partial)
	}
}

// finishOnLeave submits a result that completed while the connection was
// going away, then abandons whatever is left of this connection's quiz.
func (h *WSHandler) finishOnLeave(c *client) {
	if c.controller == nil {
		return
	}
	if c.controller.Status() == app.StatusComplete {
		h.finish(c, nil)
	}
	h.service.Release(c.sessionID, c.controller)
}

func requestToken(r *http.Request) string {
	if token, ok := auth.BearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return r.URL.Query().Get("token")
}
