package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"quiz-attempt-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches quiz content from a backing store (e.g., Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	ListPublished(ctx context.Context) ([]domain.Quiz, error)
}

// QuizRepository caches whole quizzes in Redis and falls back to a loader on a miss.
// Each quiz is stored as JSON under quiz:{quizID}. The complete option list is kept
// because multiple-choice grading compares full sets of correct options.
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.cached(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := r.cached(ctx, quizID); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		r.fill(ctx, quizID, quiz)
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// ReloadQuiz reads the quiz from the loader and overwrites the cached entry.
func (r *QuizRepository) ReloadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz, err := r.loader.LoadQuiz(ctx, quizID)
	if err != nil {
		if errors.Is(err, domain.ErrQuizNotFound) {
			if err := r.client.Del(ctx, quizKey(quizID)).Err(); err != nil {
				log.Printf("quiz cache: del %s: %v", quizID, err)
			}
		}
		return domain.Quiz{}, err
	}
	r.fill(ctx, quizID, quiz)
	return quiz, nil
}

func (r *QuizRepository) ListPublished(ctx context.Context) ([]domain.Quiz, error) {
	return r.loader.ListPublished(ctx)
}

// fill writes the cache entry. A failed fill only costs a reload on the next read.
func (r *QuizRepository) fill(ctx context.Context, quizID string, quiz domain.Quiz) {
	payload, err := json.Marshal(quiz)
	if err != nil {
		log.Printf("quiz cache: encode %s: %v", quizID, err)
		return
	}
	ttl := r.ttlWithJitter()
	if ttl <= 0 {
		return
	}
	if err := r.client.Set(ctx, quizKey(quizID), payload, ttl).Err(); err != nil {
		log.Printf("quiz cache: set %s: %v", quizID, err)
	}
}

func (r *QuizRepository) cached(ctx context.Context, quizID string) (domain.Quiz, bool) {
	payload, err := r.client.Get(ctx, quizKey(quizID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("quiz cache: get %s: %v", quizID, err)
		}
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(payload, &quiz); err != nil {
		log.Printf("quiz cache: decode %s: %v", quizID, err)
		return domain.Quiz{}, false
	}
	return quiz, true
}

func quizKey(quizID string) string {
	return "quiz:" + quizID
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
