package memory

import (
	"context"
	"math"
	"sync"
	"testing"
)

func TestXPStoreAddAndTop(t *testing.T) {
	store := NewXPStore()
	ctx := context.Background()

	for _, award := range []struct {
		user   string
		amount int64
	}{{"bob", 30}, {"alice", 50}, {"carol", 30}, {"bob", 20}} {
		if _, err := store.AddXP(ctx, award.user, award.amount); err != nil {
			t.Fatalf("add xp: %v", err)
		}
	}

	rec, ok, err := store.XP(ctx, "bob")
	if err != nil || !ok {
		t.Fatalf("xp lookup: ok=%v err=%v", ok, err)
	}
	if rec.XP != 50 {
		t.Fatalf("expected bob at 50, got %d", rec.XP)
	}

	top, err := store.TopXP(ctx, 2)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 || top[0].UserID != "alice" || top[1].UserID != "bob" {
		t.Fatalf("unexpected ordering %+v", top)
	}
}

func TestXPStoreConcurrentIncrements(t *testing.T) {
	store := NewXPStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.AddXP(ctx, "racer", 10)
		}()
	}
	wg.Wait()

	rec, _, _ := store.XP(ctx, "racer")
	if rec.XP != 500 {
		t.Fatalf("expected 500 xp, got %d", rec.XP)
	}
}

func TestXPStoreUnknownUser(t *testing.T) {
	rec, ok, err := NewXPStore().XP(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("xp: %v", err)
	}
	if ok || rec.XP != 0 {
		t.Fatalf("expected no record, got %+v ok=%v", rec, ok)
	}
}

func TestXPStoreRejectsOverflow(t *testing.T) {
	store := NewXPStore()
	ctx := context.Background()

	if _, err := store.AddXP(ctx, "whale", math.MaxInt64-5); err != nil {
		t.Fatalf("add xp: %v", err)
	}
	if _, err := store.AddXP(ctx, "whale", 10); err == nil {
		t.Fatalf("expected overflow to be rejected")
	}
	rec, _, _ := store.XP(ctx, "whale")
	if rec.XP != math.MaxInt64-5 {
		t.Fatalf("expected total unchanged after rejected add, got %d", rec.XP)
	}
}
