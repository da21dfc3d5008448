package app_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Scofield321/cipherford/internal/app"
	"github.com/Scofield321/cipherford/internal/domain"
	"github.com/Scofield321/cipherford/internal/infra/memory"
	"github.com/prometheus/client_golang/prometheus"
)

func TestXPServiceAddAndStats(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	svc := app.NewXPService(memory.NewXPStore(), nil, app.NewMetrics(reg))

	stats, err := svc.AddXP(ctx, "alice", 49)
	if err != nil {
		t.Fatalf("add xp: %v", err)
	}
	if stats.Level.Level != 1 || stats.Progress != 98 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	stats, err = svc.AddXP(ctx, "alice", 1)
	if err != nil {
		t.Fatalf("add xp: %v", err)
	}
	if stats.XP != 50 || stats.Level.Level != 2 || stats.Progress != 0 {
		t.Fatalf("unexpected stats after level-up %+v", stats)
	}

	fresh, err := svc.Stats(ctx, "nobody")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if fresh.XP != 0 || fresh.Level.Level != 1 {
		t.Fatalf("expected zero stats for unknown user, got %+v", fresh)
	}

	if got := counterValue(t, reg, "cipherford_xp_awarded_total"); got != 50 {
		t.Fatalf("expected 50 xp counted, got %v", got)
	}
}

func TestXPServiceValidation(t *testing.T) {
	svc := app.NewXPService(memory.NewXPStore(), nil, nil)
	ctx := context.Background()

	if _, err := svc.AddXP(ctx, "", 10); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation for empty user, got %v", err)
	}
	if _, err := svc.AddXP(ctx, "alice", 0); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation for zero amount, got %v", err)
	}
	if _, err := svc.AddXP(ctx, "alice", app.MaxXPAward+1); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation for oversized amount, got %v", err)
	}
	if _, err := svc.Stats(ctx, " "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation for empty user, got %v", err)
	}
}

func TestXPServiceLeaderboard(t *testing.T) {
	ctx := context.Background()
	store := memory.NewXPStore()
	svc := app.NewXPService(store, nil, nil)

	for i := 1; i <= 15; i++ {
		if _, err := store.AddXP(ctx, fmt.Sprintf("user-%02d", i), int64(i*10)); err != nil {
			t.Fatalf("seed xp: %v", err)
		}
	}

	board, err := svc.Leaderboard(ctx, 0)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 10 {
		t.Fatalf("expected default limit of 10, got %d", len(board))
	}
	if board[0].Rank != 1 || board[0].UserID != "user-15" || board[0].XP != 150 {
		t.Fatalf("unexpected leader %+v", board[0])
	}
	if len(board[0].ProgressBar) == 0 {
		t.Fatalf("expected progress bar on leaderboard rows")
	}

	board, err = svc.Leaderboard(ctx, 500)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 15 || board[14].Rank != 15 {
		t.Fatalf("expected all 15 rows, got %d", len(board))
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not registered", name)
	return 0
}
