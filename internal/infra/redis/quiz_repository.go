package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"rvl-week-service/internal/domain"
)

// QuizLoader fetches a day's quiz from its backing store.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, day int) (domain.Quiz, error)
}

// QuizRepository caches quiz content in Redis (hash per day) and falls back to
// a loader on cache miss. Questions are stored as:
// HSET quiz:day:{day}:questions {index} {question JSON}
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, day int) (domain.Quiz, error) {
	if quiz, ok := r.fromCache(ctx, day); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(strconv.Itoa(day), func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := r.fromCache(ctx, day); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, day)
		if err != nil {
			return domain.Quiz{}, err
		}

		key := r.questionsKey(day)
		pipe := r.client.Pipeline()
		pipe.Del(ctx, key)
		for i, q := range quiz.Questions {
			raw, err := json.Marshal(q)
			if err != nil {
				return domain.Quiz{}, fmt.Errorf("encode question %d: %w", i+1, err)
			}
			pipe.HSet(ctx, key, strconv.Itoa(i), raw)
		}
		if ttl := r.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		// a failed cache write only costs a reload
		_, _ = pipe.Exec(ctx)

		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *QuizRepository) fromCache(ctx context.Context, day int) (domain.Quiz, bool) {
	fields, err := r.client.HGetAll(ctx, r.questionsKey(day)).Result()
	if err != nil || len(fields) == 0 {
		return domain.Quiz{}, false
	}
	quiz, err := buildQuizFromCache(day, fields)
	if err != nil {
		return domain.Quiz{}, false
	}
	return quiz, true
}

func (r *QuizRepository) questionsKey(day int) string {
	return "quiz:day:" + strconv.Itoa(day) + ":questions"
}

func buildQuizFromCache(day int, fields map[string]string) (domain.Quiz, error) {
	indexes := make([]int, 0, len(fields))
	for k := range fields {
		i, err := strconv.Atoi(k)
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("cached question index %q: %w", k, err)
		}
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	questions := make([]domain.QuizQuestion, 0, len(indexes))
	for _, i := range indexes {
		var q domain.QuizQuestion
		if err := json.Unmarshal([]byte(fields[strconv.Itoa(i)]), &q); err != nil {
			return domain.Quiz{}, fmt.Errorf("cached question %d: %w", i, err)
		}
		questions = append(questions, q)
	}
	return domain.Quiz{Day: day, Questions: questions}, nil
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
