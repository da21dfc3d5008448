package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/Scofield321/cipherford/internal/domain"
	"github.com/Scofield321/cipherford/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const bankKey = "cipherford:bank"

// BankRepository caches the question bank in Redis and falls back to a loader
// on cache miss, so every instance shares one warm copy.
// Entries are stored as: HSET cipherford:bank {questionID} {json}
type BankRepository struct {
	client *redis.Client
	loader memory.BankLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewBankRepository(client *redis.Client, loader memory.BankLoader, ttl time.Duration) *BankRepository {
	return &BankRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Questions returns the bank ordered by id.
func (r *BankRepository) Questions(ctx context.Context) ([]domain.BankQuestion, error) {
	if cached, ok := r.cached(ctx); ok {
		return cached, nil
	}

	result, err, _ := r.sf.Do(bankKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if cached, ok := r.cached(ctx); ok {
			return cached, nil
		}

		questions, err := r.loader.LoadBank(ctx)
		if err != nil {
			return nil, err
		}
		sortBank(questions)
		r.fill(ctx, questions)
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.BankQuestion), nil
}

func (r *BankRepository) Question(ctx context.Context, id string) (domain.BankQuestion, error) {
	raw, err := r.client.HGet(ctx, bankKey, id).Result()
	if err == nil {
		var q domain.BankQuestion
		if json.Unmarshal([]byte(raw), &q) == nil {
			return q, nil
		}
	}

	questions, err := r.Questions(ctx)
	if err != nil {
		return domain.BankQuestion{}, err
	}
	for _, q := range questions {
		if q.ID == id {
			return q, nil
		}
	}
	return domain.BankQuestion{}, domain.ErrQuestionNotFound
}

// Invalidate drops the cached bank so the next read reloads it.
func (r *BankRepository) Invalidate(ctx context.Context) error {
	return r.client.Del(ctx, bankKey).Err()
}

func (r *BankRepository) cached(ctx context.Context) ([]domain.BankQuestion, bool) {
	entries, err := r.client.HGetAll(ctx, bankKey).Result()
	if err != nil || len(entries) == 0 {
		return nil, false
	}
	questions := make([]domain.BankQuestion, 0, len(entries))
	for _, raw := range entries {
		var q domain.BankQuestion
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, false
		}
		questions = append(questions, q)
	}
	sortBank(questions)
	return questions, true
}

func (r *BankRepository) fill(ctx context.Context, questions []domain.BankQuestion) {
	if len(questions) == 0 {
		return
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, bankKey)
	for _, q := range questions {
		raw, err := json.Marshal(q)
		if err != nil {
			continue
		}
		pipe.HSet(ctx, bankKey, q.ID, raw)
	}
	if ttl := r.ttlWithJitter(); ttl > 0 {
		pipe.Expire(ctx, bankKey, ttl)
	}
	_, _ = pipe.Exec(ctx)
}

func (r *BankRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

func sortBank(questions []domain.BankQuestion) {
	sort.Slice(questions, func(i, j int) bool { return questions[i].ID < questions[j].ID })
}
