package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Scofield321/cipherford/internal/app"
	"github.com/Scofield321/cipherford/internal/domain"
	"github.com/Scofield321/cipherford/internal/infra/postgres"
	pgmigrations "github.com/Scofield321/cipherford/internal/infra/postgres/migrations"
	infraredis "github.com/Scofield321/cipherford/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

type stack struct {
	db      *bun.DB
	matches *app.MatchService
	xp      *app.XPService
	repo    *postgres.MatchRepository
	hub     *app.Hub
	bcast   *infraredis.Broadcaster
	bank    []domain.BankQuestion
}

func TestMatchLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	m, err := s.matches.CreateMatch(ctx, "alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	events, unsubscribe := s.hub.Subscribe(m.RoomCode, "alice")
	defer unsubscribe()
	waitForRelay(t, ctx, s)

	if _, err := s.matches.JoinMatch(ctx, m.RoomCode, "bob", "Bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := s.matches.JoinMatch(ctx, m.RoomCode, "carol", ""); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on second join, got %v", err)
	}
	expectEvent(t, events, domain.EventPlayerJoined)

	qs, err := s.matches.Questions(ctx, m.RoomCode)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(qs) != app.DefaultQuestionCount {
		t.Fatalf("expected %d questions, got %d", app.DefaultQuestionCount, len(qs))
	}

	for i, q := range qs {
		p1 := "wrong"
		if i < 7 {
			p1 = s.answerFor(q.QuestionID)
		}
		p2 := "wrong"
		if i < 3 {
			p2 = strings.ToUpper(s.answerFor(q.QuestionID)) + " "
		}
		if _, err := s.matches.SubmitAnswer(ctx, q.MatchQuestionID, domain.PlayerOne, p1); err != nil {
			t.Fatalf("submit p1: %v", err)
		}
		if _, err := s.matches.SubmitAnswer(ctx, q.MatchQuestionID, domain.PlayerTwo, p2); err != nil {
			t.Fatalf("submit p2: %v", err)
		}
	}
	// resubmitting overwrites instead of accumulating
	if _, err := s.matches.SubmitAnswer(ctx, qs[0].MatchQuestionID, domain.PlayerOne, s.answerFor(qs[0].QuestionID)); err != nil {
		t.Fatalf("resubmit: %v", err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		results   []domain.MatchResult
		conflicts int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.matches.Finalize(ctx, m.RoomCode)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				results = append(results, res)
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			default:
				t.Errorf("finalize: %v", err)
			}
		}()
	}
	wg.Wait()
	if len(results) != 1 || conflicts != 4 {
		t.Fatalf("expected one winner and four conflicts, got %d/%d", len(results), conflicts)
	}
	res := results[0]
	if res.Player1Total != 7 || res.Player2Total != 3 || res.Result != domain.ResultPlayer1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.WinnerID == nil || *res.WinnerID != "alice" {
		t.Fatalf("expected alice as winner, got %v", res.WinnerID)
	}

	assertXP(t, ctx, s.xp, "alice", 70)
	assertXP(t, ctx, s.xp, "bob", 30)
	expectEvent(t, events, domain.EventMatchCompleted)

	if _, err := s.matches.SubmitAnswer(ctx, qs[5].MatchQuestionID, domain.PlayerTwo, "late"); !errors.Is(err, domain.ErrMatchCompleted) {
		t.Fatalf("expected completed match to reject answers, got %v", err)
	}

	board, err := s.xp.Leaderboard(ctx, 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 2 || board[0].UserID != "alice" || board[0].Level.Level != 2 {
		t.Fatalf("unexpected leaderboard %+v", board)
	}
}

func TestFinalizeDrawAndWaiting(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	waiting, err := s.matches.CreateMatch(ctx, "erin")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.matches.Finalize(ctx, waiting.RoomCode); !errors.Is(err, domain.ErrMatchNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}

	m, err := s.matches.CreateMatch(ctx, "frank")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.matches.JoinMatch(ctx, m.RoomCode, "gina", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	qs, _ := s.matches.Questions(ctx, m.RoomCode)
	for i := 0; i < 5; i++ {
		for _, p := range []domain.PlayerSlot{domain.PlayerOne, domain.PlayerTwo} {
			if _, err := s.matches.SubmitAnswer(ctx, qs[i].MatchQuestionID, p, s.answerFor(qs[i].QuestionID)); err != nil {
				t.Fatalf("submit: %v", err)
			}
		}
	}
	res, err := s.matches.Finalize(ctx, m.RoomCode)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if res.Result != domain.ResultDraw || res.WinnerID != nil {
		t.Fatalf("expected draw, got %+v", res)
	}
	assertXP(t, ctx, s.xp, "frank", 50)
	assertXP(t, ctx, s.xp, "gina", 50)

	counts, err := s.repo.CountStale(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("count stale: %v", err)
	}
	if counts.Waiting != 1 || counts.Ready != 0 {
		t.Fatalf("unexpected stale counts %+v", counts)
	}
}

func TestRoomCodeCollisionIsRejected(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	base := domain.Match{
		ID:          "6f1c1c9e-5c1e-4a53-9e53-1b6a51f7a001",
		RoomCode:    "DUPE01",
		PlayerOneID: "alice",
		Status:      domain.StatusWaiting,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.CreateMatch(ctx, base, nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := base
	dup.ID = "6f1c1c9e-5c1e-4a53-9e53-1b6a51f7a002"
	if err := s.repo.CreateMatch(ctx, dup, nil); !errors.Is(err, domain.ErrRoomCodeTaken) {
		t.Fatalf("expected room code taken, got %v", err)
	}
}

func TestConcurrentXPIncrements(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.xp.AddXP(ctx, "racer", 5); err != nil {
				t.Errorf("add xp: %v", err)
			}
		}()
	}
	wg.Wait()
	assertXP(t, ctx, s.xp, "racer", 100)
}

func TestMigrationsRollBack(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	migrator := migrate.NewMigrator(s.db, pgmigrations.Migrations)
	if _, err := migrator.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT to_regclass('public.game_matches') IS NOT NULL`).Scan(&exists); err != nil {
		t.Fatalf("check table: %v", err)
	}
	if exists {
		t.Fatalf("expected game_matches dropped after rollback")
	}
}

func newStack(t *testing.T, ctx context.Context) *stack {
	t.Helper()
	requireDocker(t)

	pgURL := startPostgres(t, ctx)
	redisURL := startRedis(t, ctx)

	db := postgres.OpenDB(pgURL)
	t.Cleanup(func() { _ = db.Close() })

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	bank := make([]domain.BankQuestion, 0, 15)
	for i := 1; i <= 15; i++ {
		bank = append(bank, domain.BankQuestion{
			ID:            fmt.Sprintf("bank-%02d", i),
			Question:      fmt.Sprintf("Question %d?", i),
			Options:       []string{fmt.Sprintf("answer %d", i), "wrong"},
			CorrectAnswer: fmt.Sprintf("answer %d", i),
			Tags:          []string{"integration"},
		})
	}
	if _, err := postgres.SeedBank(ctx, db, bank); err != nil {
		t.Fatalf("seed bank: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	t.Cleanup(pool.Close)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = redisClient.Close() })

	hub := app.NewHub(infraredis.NewRoomStore(redisClient, time.Minute), nil, nil)
	bcast := infraredis.NewBroadcaster(redisClient, nil)
	relayCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	go func() { _ = bcast.Relay(relayCtx, hub) }()

	repo := postgres.NewMatchRepository(db)
	matches := app.NewMatchService(repo,
		infraredis.NewBankRepository(redisClient, postgres.NewBankLoader(pool), 5*time.Minute),
		bcast,
	)
	return &stack{
		db:      db,
		matches: matches,
		xp:      app.NewXPService(postgres.NewXPRepository(db), nil, nil),
		repo:    repo,
		hub:     hub,
		bcast:   bcast,
		bank:    bank,
	}
}

func (s *stack) answerFor(questionID string) string {
	for _, q := range s.bank {
		if q.ID == questionID {
			return q.CorrectAnswer
		}
	}
	return ""
}

// waitForRelay publishes probes through Redis until the relay delivers one
// to the local hub, so later events are not lost to a pending subscription.
func waitForRelay(t *testing.T, ctx context.Context, s *stack) {
	t.Helper()
	probe, cancel := s.hub.Subscribe("PROBE0", "probe")
	defer cancel()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s.bcast.BroadcastToRoom(ctx, "PROBE0", domain.Event{Type: "probe"})
		select {
		case <-probe:
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
	t.Fatalf("relay not ready")
}

func expectEvent(t *testing.T, ch <-chan domain.Event, want domain.EventType) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == want {
				return
			}
		case <-timeout:
			t.Fatalf("did not receive %s", want)
		}
	}
}

func assertXP(t *testing.T, ctx context.Context, svc *app.XPService, user string, want int64) {
	t.Helper()
	stats, err := svc.Stats(ctx, user)
	if err != nil {
		t.Fatalf("stats %s: %v", user, err)
	}
	if stats.XP != want {
		t.Fatalf("expected %s at %d xp, got %d", user, want, stats.XP)
	}
}

func startPostgres(t *testing.T, ctx context.Context) string {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "cipher", "POSTGRES_PASSWORD": "cipherpass", "POSTGRES_DB": "cipherford"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	return fmt.Sprintf("postgres://cipher:cipherpass@%s:%s/cipherford?sslmode=disable", host, port.Port())
}

func startRedis(t *testing.T, ctx context.Context) string {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	return fmt.Sprintf("redis://%s:%s", host, port.Port())
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
