package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/Scofield321/cipherford/internal/domain"
	"golang.org/x/sync/singleflight"
)

const bankKey = "bank"

// BankLoader fetches the full question bank from a backing store.
type BankLoader interface {
	LoadBank(ctx context.Context) ([]domain.BankQuestion, error)
}

// BankRepository caches the question bank with a TTL to avoid repeated
// loads. It implements app.QuestionRepository.
type BankRepository struct {
	loader BankLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu       sync.RWMutex
	entry    *cachedBank
	jitterMu sync.Mutex
}

type cachedBank struct {
	questions []domain.BankQuestion
	byID      map[string]domain.BankQuestion
	expiresAt time.Time
}

func NewBankRepository(loader BankLoader, ttl time.Duration) *BankRepository {
	return &BankRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Questions returns every bank entry in load order.
func (r *BankRepository) Questions(ctx context.Context) ([]domain.BankQuestion, error) {
	bank, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	return bank.questions, nil
}

// Question returns the entry with the given id.
func (r *BankRepository) Question(ctx context.Context, id string) (domain.BankQuestion, error) {
	bank, err := r.load(ctx)
	if err != nil {
		return domain.BankQuestion{}, err
	}
	q, ok := bank.byID[id]
	if !ok {
		return domain.BankQuestion{}, domain.ErrQuestionNotFound
	}
	return q, nil
}

func (r *BankRepository) load(ctx context.Context) (*cachedBank, error) {
	if entry := r.fresh(r.clock()); entry != nil {
		return entry, nil
	}

	result, err, _ := r.sf.Do(bankKey, func() (interface{}, error) {
		now := r.clock()
		if entry := r.fresh(now); entry != nil {
			return entry, nil
		}

		questions, err := r.loader.LoadBank(ctx)
		if err != nil {
			return nil, err
		}
		entry := &cachedBank{
			questions: questions,
			byID:      make(map[string]domain.BankQuestion, len(questions)),
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		for _, q := range questions {
			entry.byID[q.ID] = q
		}

		r.mu.Lock()
		r.entry = entry
		r.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*cachedBank), nil
}

func (r *BankRepository) fresh(now time.Time) *cachedBank {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.entry != nil && r.entry.expiresAt.After(now) {
		return r.entry
	}
	return nil
}

func (r *BankRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.jitterMu.Lock()
	defer r.jitterMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticBankLoader serves a fixed bank (useful for tests/demos).
type StaticBankLoader struct {
	questions []domain.BankQuestion
}

func NewStaticBankLoader(questions []domain.BankQuestion) *StaticBankLoader {
	return &StaticBankLoader{questions: questions}
}

func (l *StaticBankLoader) LoadBank(_ context.Context) ([]domain.BankQuestion, error) {
	out := make([]domain.BankQuestion, len(l.questions))
	copy(out, l.questions)
	return out, nil
}
