package app

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"lorequiz-service/internal/domain"
)

// Status is the lifecycle state of a quiz session.
type Status string

const (
	StatusLoading   Status = "loading"
	StatusActive    Status = "active"
	StatusFeedback  Status = "feedback"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
	StatusAbandoned Status = "abandoned"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed || s == StatusAbandoned
}

// MinFeedbackDelay is the shortest time feedback stays on screen before advancing.
const MinFeedbackDelay = time.Second

// EventType names a state transition emitted by a Controller.
type EventType string

const (
	EventQuestion  EventType = "question"
	EventFeedback  EventType = "feedback"
	EventTick      EventType = "tick"
	EventComplete  EventType = "complete"
	EventFailed    EventType = "failed"
	EventAbandoned EventType = "abandoned"
)

// Event is delivered to the controller listener after every transition.
type Event struct {
	Type   EventType
	View   View
	Result *domain.FinalResult
	Err    error
}

// View is the displayable state of a session. Rendering is left to adapters.
type View struct {
	QuizID         string   `json:"quizId"`
	Title          string   `json:"title"`
	Status         Status   `json:"status"`
	QuestionNumber int      `json:"questionNumber"`
	TotalQuestions int      `json:"totalQuestions"`
	Prompt         string   `json:"prompt,omitempty"`
	Options        []string `json:"options,omitempty"`
	Remaining      int      `json:"remaining"`
	Score          int      `json:"score"`
	Selected       int      `json:"selected"`
	CorrectOption  int      `json:"correctOption"`
	Correct        bool     `json:"correct"`
	Lore           string   `json:"lore,omitempty"`
}

// Ticker is the countdown source. *time.Ticker satisfies it through realTicker.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func newRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// ControllerOptions tunes a Controller. Zero values pick production defaults.
type ControllerOptions struct {
	FeedbackDelay time.Duration
	Now           func() time.Time
	Rand          *rand.Rand
	NewTicker     TickerFunc
	Listener      func(Event)
}

// session is the mutable state of one run through a quiz.
type session struct {
	quizID     string
	order      []int
	options    []int
	index      int
	score      int
	remaining  int
	status     Status
	selected   int
	feedbackAt time.Time
}

// Controller drives one quiz session: question flow, countdown and scoring.
// All methods are safe for concurrent use; the countdown runs on its own goroutine.
type Controller struct {
	mu sync.Mutex

	def  domain.QuizDefinition
	sess session

	feedbackDelay time.Duration
	now           func() time.Time
	rnd           *rand.Rand
	newTicker     TickerFunc
	listener      func(Event)

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	result   *domain.FinalResult
	claimed  bool
	err      error

	// outbox holds events not yet delivered; draining marks the goroutine
	// currently delivering them. Both are guarded by mu.
	outbox   []Event
	draining bool
}

// NewController returns a controller in the Loading state.
func NewController(quizID string, opts ControllerOptions) *Controller {
	c := &Controller{
		sess: session{
			quizID:   quizID,
			status:   StatusLoading,
			selected: -1,
		},
		feedbackDelay: opts.FeedbackDelay,
		now:           opts.Now,
		rnd:           opts.Rand,
		newTicker:     opts.NewTicker,
		listener:      opts.Listener,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	if c.feedbackDelay < MinFeedbackDelay {
		c.feedbackDelay = MinFeedbackDelay
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.rnd == nil {
		c.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.newTicker == nil {
		c.newTicker = newRealTicker
	}
	return c
}

// Begin moves a Loading session to Active with the loaded definition and starts
// the countdown. An invalid definition fails the session instead.
func (c *Controller) Begin(def domain.QuizDefinition) error {
	if err := def.Validate(); err != nil {
		loadErr := &domain.DefinitionLoadError{QuizID: def.ID, Err: err}
		c.Fail(loadErr)
		return loadErr
	}

	c.mu.Lock()
	if c.sess.status != StatusLoading {
		c.mu.Unlock()
		return domain.ErrNotAcceptingAnswers
	}
	c.def = def
	c.sess.quizID = def.ID
	c.sess.remaining = def.TimeLimit
	c.sess.order = shuffledIndexes(c.rnd, len(def.Questions))
	c.sess.index = 0
	c.showQuestionLocked()

	ticker := c.newTicker(time.Second)
	go c.runTimer(ticker)

	c.unlockAndPublish(Event{Type: EventQuestion, View: c.viewLocked()})
	return nil
}

// Fail moves a Loading session to the terminal Failed state.
func (c *Controller) Fail(err error) {
	c.mu.Lock()
	if c.sess.status != StatusLoading {
		c.mu.Unlock()
		return
	}
	c.sess.status = StatusFailed
	c.err = err
	c.finishLocked()
	c.unlockAndPublish(Event{Type: EventFailed, View: c.viewLocked(), Err: err})
}

// Select answers the current question with the option at the displayed position.
func (c *Controller) Select(position int) (View, error) {
	c.mu.Lock()
	if c.sess.status != StatusActive {
		c.mu.Unlock()
		return View{}, domain.ErrNotAcceptingAnswers
	}
	if position < 0 || position >= len(c.sess.options) {
		c.mu.Unlock()
		return View{}, domain.ErrInvalidOption
	}

	question := c.currentQuestionLocked()
	if c.sess.options[position] == question.Answer {
		c.sess.score++
	}
	c.sess.selected = position
	c.sess.status = StatusFeedback
	c.sess.feedbackAt = c.now()

	view := c.viewLocked()
	c.unlockAndPublish(Event{Type: EventFeedback, View: view})
	return view, nil
}

// Next leaves feedback for the following question, or completes the session
// when none remain. It refuses while the feedback delay has not elapsed.
func (c *Controller) Next() (View, error) {
	c.mu.Lock()
	if c.sess.status != StatusFeedback {
		c.mu.Unlock()
		return View{}, domain.ErrNotInFeedback
	}
	if c.now().Sub(c.sess.feedbackAt) < c.feedbackDelay {
		c.mu.Unlock()
		return View{}, domain.ErrFeedbackPacing
	}

	c.sess.index++
	if c.sess.index >= len(c.sess.order) {
		event := c.completeLocked()
		view := event.View
		c.unlockAndPublish(event)
		return view, nil
	}

	c.showQuestionLocked()
	view := c.viewLocked()
	c.unlockAndPublish(Event{Type: EventQuestion, View: view})
	return view, nil
}

// Abandon discards an unfinished session. Nothing is scored or submitted.
func (c *Controller) Abandon() {
	c.mu.Lock()
	if c.sess.status.Terminal() {
		c.mu.Unlock()
		return
	}
	c.sess.status = StatusAbandoned
	c.finishLocked()
	c.unlockAndPublish(Event{Type: EventAbandoned, View: c.viewLocked()})
}

// View returns the current displayable state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Status returns the lifecycle state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.status
}

// QuizID returns the quiz being played.
func (c *Controller) QuizID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.quizID
}

// Result returns the final result once the session is Complete.
func (c *Controller) Result() (domain.FinalResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return domain.FinalResult{}, false
	}
	return *c.result, true
}

// ClaimResult hands out the final result exactly once so a session is
// submitted at most once however many callers race to finish it.
func (c *Controller) ClaimResult() (domain.FinalResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return domain.FinalResult{}, fmt.Errorf("session is %s: %w", c.sess.status, domain.ErrNotComplete)
	}
	if c.claimed {
		return domain.FinalResult{}, domain.ErrAlreadySubmitted
	}
	c.claimed = true
	return *c.result, nil
}

// unclaim hands a claimed result back when its submission wrote nothing.
func (c *Controller) unclaim() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claimed = false
}

// Err returns the load error of a Failed session.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed when the session reaches any terminal state.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) runTimer(t Ticker) {
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C():
			c.tick()
		}
	}
}

func (c *Controller) tick() {
	c.mu.Lock()
	if c.sess.status != StatusActive && c.sess.status != StatusFeedback {
		c.mu.Unlock()
		return
	}
	c.sess.remaining--
	if c.sess.remaining <= 0 {
		c.sess.remaining = 0
		c.unlockAndPublish(c.completeLocked())
		return
	}
	c.unlockAndPublish(Event{Type: EventTick, View: c.viewLocked()})
}

// completeLocked computes the final result and stops the countdown.
func (c *Controller) completeLocked() Event {
	timeTaken := c.def.TimeLimit - c.sess.remaining
	if timeTaken < 0 {
		timeTaken = 0
	}
	if timeTaken > c.def.TimeLimit {
		timeTaken = c.def.TimeLimit
	}
	result := domain.FinalResult{
		QuizID:    c.def.ID,
		Score:     c.sess.score,
		Total:     len(c.def.Questions),
		TimeTaken: timeTaken,
		XPEarned:  c.sess.score * domain.XPPerCorrectAnswer,
	}
	c.result = &result
	c.sess.status = StatusComplete
	c.finishLocked()
	return Event{Type: EventComplete, View: c.viewLocked(), Result: &result}
}

func (c *Controller) finishLocked() {
	c.stopTimer()
	close(c.done)
}

// stopTimer is idempotent.
func (c *Controller) stopTimer() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Controller) showQuestionLocked() {
	question := c.currentQuestionLocked()
	c.sess.options = shuffledIndexes(c.rnd, len(question.Options))
	c.sess.selected = -1
	c.sess.status = StatusActive
}

func (c *Controller) currentQuestionLocked() domain.Question {
	return c.def.Questions[c.sess.order[c.sess.index]]
}

func (c *Controller) viewLocked() View {
	view := View{
		QuizID:         c.sess.quizID,
		Title:          c.def.Title,
		Status:         c.sess.status,
		TotalQuestions: len(c.def.Questions),
		Remaining:      c.sess.remaining,
		Score:          c.sess.score,
		Selected:       -1,
		CorrectOption:  -1,
	}
	if c.sess.status != StatusActive && c.sess.status != StatusFeedback {
		return view
	}

	question := c.currentQuestionLocked()
	view.QuestionNumber = c.sess.index + 1
	view.Prompt = question.Prompt
	view.Options = make([]string, len(c.sess.options))
	for pos, idx := range c.sess.options {
		view.Options[pos] = question.Options[idx]
	}
	if c.sess.status == StatusFeedback {
		view.Selected = c.sess.selected
		for pos, idx := range c.sess.options {
			if idx == question.Answer {
				view.CorrectOption = pos
			}
		}
		view.Correct = view.Selected == view.CorrectOption
		view.Lore = question.Lore
	}
	return view
}

// unlockAndPublish queues events and releases c.mu. Events reach the listener
// in transition order and no lock is held while it runs, so listeners may
// call back into the controller. Whichever caller finds the outbox idle
// delivers everything queued until it is empty; the others return at once.
func (c *Controller) unlockAndPublish(events ...Event) {
	if c.listener == nil {
		c.mu.Unlock()
		return
	}
	c.outbox = append(c.outbox, events...)
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	for len(c.outbox) > 0 {
		batch := c.outbox
		c.outbox = nil
		c.mu.Unlock()
		for _, ev := range batch {
			c.listener(ev)
		}
		c.mu.Lock()
	}
	c.draining = false
	c.mu.Unlock()
}

// shuffledIndexes returns a uniformly shuffled permutation of [0, n).
func shuffledIndexes(rnd *rand.Rand, n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	rnd.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	return idx
}
