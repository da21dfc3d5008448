package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Scofield321/cipherford/internal/domain"
	"github.com/Scofield321/cipherford/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestBankRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	loader := &countingLoader{BankLoader: memory.NewStaticBankLoader(sampleBank())}
	repo := NewBankRepository(client, loader, time.Minute)

	bank, err := repo.Questions(context.Background())
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(bank) != 2 || bank[0].ID != "q1" {
		t.Fatalf("unexpected bank %+v", bank)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists(bankKey) {
		t.Fatalf("expected bank hash in redis")
	}

	// Second call should hit cache, loader not incremented.
	q, err := repo.Question(context.Background(), "q2")
	if err != nil {
		t.Fatalf("question: %v", err)
	}
	if q.CorrectAnswer != "Paris" || len(q.Options) != 2 {
		t.Fatalf("unexpected cached question %+v", q)
	}
	if _, err := repo.Questions(context.Background()); err != nil {
		t.Fatalf("questions: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := repo.Questions(context.Background()); err != nil {
		t.Fatalf("questions: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after ttl, loader calls=%d", loader.calls)
	}
}

func TestBankRepositoryUnknownQuestion(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	repo := NewBankRepository(newClient(mr), memory.NewStaticBankLoader(sampleBank()), time.Minute)
	if _, err := repo.Question(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

type countingLoader struct {
	memory.BankLoader
	calls int
}

func (l *countingLoader) LoadBank(ctx context.Context) ([]domain.BankQuestion, error) {
	l.calls++
	return l.BankLoader.LoadBank(ctx)
}

func sampleBank() []domain.BankQuestion {
	return []domain.BankQuestion{
		{ID: "q2", Question: "Capital of France?", Options: []string{"Paris", "Rome"}, CorrectAnswer: "Paris"},
		{ID: "q1", Question: "2 + 2?", Options: []string{"3", "4"}, CorrectAnswer: "4"},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
