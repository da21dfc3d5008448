package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Scofield321/cipherford/internal/app"
	"github.com/Scofield321/cipherford/internal/config"
	"github.com/Scofield321/cipherford/internal/domain"
	"github.com/Scofield321/cipherford/internal/infra/memory"
	"github.com/Scofield321/cipherford/internal/infra/postgres"
	redisinfra "github.com/Scofield321/cipherford/internal/infra/redis"
	transport "github.com/Scofield321/cipherford/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the match engine server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.BankLoader = memory.NewStaticBankLoader(sampleBank())
	switch {
	case pool != nil:
		loader = postgres.NewBankLoader(pool)
	case cfg.Bank.File != "":
		loader = memory.NewFileBankLoader(cfg.Bank.File)
	}

	bankTTL := config.TTLDuration(cfg.Bank.TTL, 10*time.Minute)
	var bank app.QuestionRepository
	if redisClient != nil {
		bank = redisinfra.NewBankRepository(redisClient, loader, bankTTL)
	} else {
		bank = memory.NewBankRepository(loader, bankTTL)
	}

	var (
		matchRepo app.MatchRepository
		xpRepo    app.XPRepository
	)
	if cfg.Postgres.URL != "" {
		db := postgres.OpenDB(cfg.Postgres.URL)
		defer db.Close()
		matchRepo = postgres.NewMatchRepository(db)
		xpRepo = postgres.NewXPRepository(db)
	} else {
		logger.Warn("postgres not configured, matches and XP are kept in memory")
		xpStore := memory.NewXPStore()
		matchRepo = memory.NewMatchStore(xpStore)
		xpRepo = xpStore
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := app.NewMetrics(reg)

	var (
		rooms      app.RoomRepository
		redisRooms *redisinfra.RoomStore
	)
	if redisClient != nil {
		redisRooms = redisinfra.NewRoomStore(redisClient, redisTTL)
		rooms = redisRooms
	} else {
		rooms = memory.NewRoomStore()
	}
	hub := app.NewHub(rooms, logger, metrics)

	var (
		broadcaster app.Broadcaster = hub
		relay       *redisinfra.Broadcaster
	)
	if redisClient != nil {
		relay = redisinfra.NewBroadcaster(redisClient, logger)
		broadcaster = relay
	}

	matches := app.NewMatchService(matchRepo, bank, broadcaster,
		app.WithLogger(logger),
		app.WithMetrics(metrics),
		app.WithQuestionCount(cfg.Match.QuestionCount),
		app.WithXPPerCorrect(xpPerCorrect(cfg)),
	)
	xp := app.NewXPService(xpRepo, logger, metrics)

	monitor := app.NewStaleMonitor(matchRepo,
		config.TTLDuration(cfg.Match.StaleAfter, 2*time.Hour), logger, metrics)
	jobs := []scheduledJob{{
		name:  "stale-matches",
		every: config.TTLDuration(cfg.Match.StaleCheckInterval, 5*time.Minute),
		run: func(ctx context.Context) error {
			_, err := monitor.Check(ctx)
			return err
		},
	}}
	if redisRooms != nil {
		jobs = append(jobs, scheduledJob{
			name:  "room-liveness",
			every: redisTTL / 2,
			run:   redisRooms.Refresh,
		})
	}
	sched, err := startScheduler(ctx, logger, jobs...)
	if err != nil {
		return err
	}

	router := transport.NewRouter(transport.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimit:      rate.Limit(cfg.Server.RateLimit.RPS),
		RateBurst:      cfg.Server.RateLimit.Burst,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:         logger,
	}, transport.NewHandlers(matches, xp, logger), transport.NewWSHandler(matches, hub, logger))

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting match engine", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if relay != nil {
		g.Go(func() error { return relay.Relay(gctx, hub) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")
		if err := sched.Shutdown(); err != nil {
			logger.Warn("scheduler shutdown", "error", err)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func xpPerCorrect(cfg config.Config) int64 {
	if cfg.Match.XPPerCorrect <= 0 {
		return app.DefaultXPPerCorrect
	}
	return cfg.Match.XPPerCorrect
}

// sampleBank lets the server run without Postgres or a bank file.
func sampleBank() []domain.BankQuestion {
	return []domain.BankQuestion{
		{ID: "demo-1", Question: "Which port does HTTPS use by default?", Options: []string{"80", "443", "22"}, CorrectAnswer: "443"},
		{ID: "demo-2", Question: "Which of these is a symmetric cipher?", Options: []string{"RSA", "AES", "ECDSA"}, CorrectAnswer: "AES"},
		{ID: "demo-3", Question: "Which protocol resolves domain names?", Options: []string{"DHCP", "DNS", "ARP"}, CorrectAnswer: "DNS"},
	}
}
