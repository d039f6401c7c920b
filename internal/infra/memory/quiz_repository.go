package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"lorequiz-service/internal/domain"
)

// warmConcurrency bounds parallel loads during Warm.
const warmConcurrency = 4

// QuizLoader fetches quiz definitions from a backing store (files, Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.QuizDefinition, error)
}

// QuizRepository keeps validated definitions in process for a jittered TTL.
// Concurrent misses for one quiz share a single load.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	loads  singleflight.Group

	mu      sync.Mutex
	rnd     *rand.Rand
	entries map[string]cachedQuiz
}

type cachedQuiz struct {
	def       domain.QuizDefinition
	expiresAt time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader:  loader,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		entries: make(map[string]cachedQuiz),
	}
}

// GetQuiz serves quizID from cache or loads it. Definitions that fail
// validation are returned as errors and never cached.
func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.QuizDefinition, error) {
	if def, ok := r.lookup(quizID); ok {
		return def, nil
	}
	v, err, _ := r.loads.Do(quizID, func() (interface{}, error) {
		if def, ok := r.lookup(quizID); ok {
			return def, nil
		}
		def, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return nil, err
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("quiz %s: %w", quizID, err)
		}
		r.store(quizID, def)
		return def, nil
	})
	if err != nil {
		return domain.QuizDefinition{}, err
	}
	return v.(domain.QuizDefinition), nil
}

// Invalidate drops quizID so the next read reloads it.
func (r *QuizRepository) Invalidate(quizID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, quizID)
}

// Warm loads quizIDs ahead of the first player. Every id is attempted and
// the failures are returned together.
func (r *QuizRepository) Warm(ctx context.Context, quizIDs []string) error {
	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed error
	)
	g.SetLimit(warmConcurrency)
	for _, id := range quizIDs {
		id := id
		g.Go(func() error {
			if _, err := r.GetQuiz(ctx, id); err != nil {
				mu.Lock()
				failed = multierr.Append(failed, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failed
}

func (r *QuizRepository) lookup(quizID string) (domain.QuizDefinition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[quizID]
	if !ok || !r.clock().Before(entry.expiresAt) {
		return domain.QuizDefinition{}, false
	}
	return entry.def, true
}

func (r *QuizRepository) store(quizID string, def domain.QuizDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var jitter time.Duration
	// up to 10% extra so entries loaded together do not expire together
	if spread := int64(r.ttl) / 10; spread > 0 {
		jitter = time.Duration(r.rnd.Int63n(spread + 1))
	}
	r.entries[quizID] = cachedQuiz{def: def, expiresAt: r.clock().Add(r.ttl + jitter)}
}

// StaticQuizLoader serves a fixed set of definitions; tests and demos use it.
type StaticQuizLoader struct {
	quizzes map[string]domain.QuizDefinition
}

func NewStaticQuizLoader(quizzes map[string]domain.QuizDefinition) *StaticQuizLoader {
	return &StaticQuizLoader{quizzes: quizzes}
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.QuizDefinition, error) {
	def, ok := l.quizzes[quizID]
	if !ok {
		return domain.QuizDefinition{}, fmt.Errorf("%w: %s", domain.ErrQuizNotFound, quizID)
	}
	return def, nil
}
