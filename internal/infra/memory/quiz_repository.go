package memory

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"quiz-attempt-service/internal/domain"

	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches quiz content from a backing store (e.g., Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	ListPublished(ctx context.Context) ([]domain.Quiz, error)
}

// QuizRepository caches quizzes in process with a jittered TTL.
// Scoring re-reads quizzes through this cache, so the TTL bounds how long an
// edited answer key can go unnoticed.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuiz),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.fresh(quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		if quiz, ok := r.fresh(quizID); ok {
			return quiz, nil
		}
		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		r.put(quizID, quiz)
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return cloneQuiz(result.(domain.Quiz)), nil
}

// ReloadQuiz reads the quiz from the loader and replaces the cached copy.
// A quiz the loader no longer has is evicted.
func (r *QuizRepository) ReloadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz, err := r.loader.LoadQuiz(ctx, quizID)
	if err != nil {
		if errors.Is(err, domain.ErrQuizNotFound) {
			r.mu.Lock()
			delete(r.cache, quizID)
			r.mu.Unlock()
		}
		return domain.Quiz{}, err
	}
	r.put(quizID, quiz)
	return cloneQuiz(quiz), nil
}

// ListPublished is not cached; the listing is small and changes with every publish.
func (r *QuizRepository) ListPublished(ctx context.Context) ([]domain.Quiz, error) {
	return r.loader.ListPublished(ctx)
}

func (r *QuizRepository) put(quizID string, quiz domain.Quiz) {
	r.mu.Lock()
	r.cache[quizID] = cachedQuiz{
		quiz:      cloneQuiz(quiz),
		expiresAt: r.clock().Add(r.ttlWithJitterLocked()),
	}
	r.mu.Unlock()
}

func (r *QuizRepository) fresh(quizID string) (domain.Quiz, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[quizID]
	if !ok || !entry.expiresAt.After(now) {
		return domain.Quiz{}, false
	}
	return cloneQuiz(entry.quiz), true
}

// ttlWithJitterLocked adds up to 10% jitter to spread expirations. Callers hold r.mu.
func (r *QuizRepository) ttlWithJitterLocked() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuizLoader is a loader backed by an in-memory map (useful for tests/demos).
type StaticQuizLoader struct {
	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
}

func NewStaticQuizLoader(quizzes map[string]domain.Quiz) *StaticQuizLoader {
	copied := make(map[string]domain.Quiz, len(quizzes))
	for id, quiz := range quizzes {
		copied[id] = cloneQuiz(quiz)
	}
	return &StaticQuizLoader{quizzes: copied}
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if quiz, ok := l.quizzes[quizID]; ok {
		return cloneQuiz(quiz), nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

// ListPublished returns published quizzes ordered by id.
func (l *StaticQuizLoader) ListPublished(_ context.Context) ([]domain.Quiz, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Quiz, 0, len(l.quizzes))
	for _, quiz := range l.quizzes {
		if quiz.Published {
			out = append(out, cloneQuiz(quiz))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Put adds or replaces a quiz.
func (l *StaticQuizLoader) Put(quiz domain.Quiz) {
	l.mu.Lock()
	l.quizzes[quiz.ID] = cloneQuiz(quiz)
	l.mu.Unlock()
}

func cloneQuiz(quiz domain.Quiz) domain.Quiz {
	out := quiz
	out.Questions = make([]domain.Question, len(quiz.Questions))
	for i, q := range quiz.Questions {
		q.Options = append([]domain.Option(nil), q.Options...)
		out.Questions[i] = q
	}
	return out
}
