package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// RouterConfig carries the cross-cutting HTTP settings.
type RouterConfig struct {
	AllowedOrigins []string
	RateLimit      rate.Limit
	RateBurst      int
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

// NewRouter mounts the REST API, the WebSocket endpoint and the operational
// endpoints on a chi router.
func NewRouter(cfg RouterConfig, handlers *Handlers, ws *WSHandler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.RequestLogger(slogFormatter{logger: logger}))
	mux.Use(middleware.Recoverer)
	mux.Use(panicEnvelope)
	if len(cfg.AllowedOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	} else {
		mux.Use(cors.AllowAll().Handler)
	}

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Metrics != nil {
		mux.Handle("/metrics", cfg.Metrics)
	}
	mux.Get("/ws", ws.ServeWS)

	mux.Route("/api", func(r chi.Router) {
		if cfg.RateLimit > 0 {
			burst := cfg.RateBurst
			if burst <= 0 {
				burst = 1
			}
			r.Use(RateLimit(NewClientLimiter(cfg.RateLimit, burst)))
		}

		r.Route("/matches", func(r chi.Router) {
			r.Post("/", handlers.CreateMatch)
			r.Post("/join", handlers.JoinMatch)
			r.Post("/answers", handlers.SubmitAnswer)
			r.Post("/finalize", handlers.Finalize)
			r.Get("/{roomCode}", handlers.GetMatch)
			r.Get("/{roomCode}/questions", handlers.GetQuestions)
		})

		r.Route("/xp", func(r chi.Router) {
			r.Get("/leaderboard", handlers.Leaderboard)
			r.Get("/{userId}", handlers.UserStats)
			r.Post("/{userId}", handlers.AddXP)
		})
	})

	return mux
}
