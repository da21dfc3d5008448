package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/Scofield321/cipherford/internal/app"
	"github.com/Scofield321/cipherford/internal/infra/memory"
)

func TestStaleMonitorCountsOldMatches(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMatchStore(memory.NewXPStore())
	created := time.Now().Add(-2 * time.Hour)
	svc := app.NewMatchService(store,
		memory.NewBankRepository(memory.NewStaticBankLoader(nil), time.Minute),
		&recordingBroadcaster{},
		app.WithClock(func() time.Time { return created }),
	)

	waiting, err := svc.CreateMatch(ctx, "alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ready, err := svc.CreateMatch(ctx, "carol")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.JoinMatch(ctx, ready.RoomCode, "dave", ""); err != nil {
		t.Fatalf("join: %v", err)
	}

	counts, err := app.NewStaleMonitor(store, time.Hour, nil, nil).Check(ctx)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if counts.Waiting != 1 || counts.Ready != 1 {
		t.Fatalf("unexpected stale counts %+v", counts)
	}

	// monitoring never changes match state
	m, err := svc.MatchByRoomCode(ctx, waiting.RoomCode)
	if err != nil || m.Status != "waiting" {
		t.Fatalf("expected waiting match untouched, got %+v %v", m, err)
	}

	counts, _ = app.NewStaleMonitor(store, 3*time.Hour, nil, nil).Check(ctx)
	if counts.Waiting+counts.Ready != 0 {
		t.Fatalf("expected nothing stale under 3h threshold, got %+v", counts)
	}
}
