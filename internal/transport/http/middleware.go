package http

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Scofield321/cipherford/internal/domain"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

const (
	// sweepAbove is the number of tracked clients that triggers a prune.
	sweepAbove = 500
	visitorTTL = 10 * time.Minute
)

type visitor struct {
	bucket *rate.Limiter
	seen   time.Time
}

// ClientLimiter keeps a token bucket per client address. Clients idle for
// visitorTTL are forgotten once more than sweepAbove are tracked.
type ClientLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	every    rate.Limit
	burst    int
	now      func() time.Time
}

func NewClientLimiter(every rate.Limit, burst int) *ClientLimiter {
	return &ClientLimiter{
		visitors: make(map[string]*visitor),
		every:    every,
		burst:    burst,
		now:      time.Now,
	}
}

// Allow spends one token from addr's bucket.
func (l *ClientLimiter) Allow(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.visitors) > sweepAbove {
		l.pruneLocked(now.Add(-visitorTTL))
	}
	v, ok := l.visitors[addr]
	if !ok {
		v = &visitor{bucket: rate.NewLimiter(l.every, l.burst)}
		l.visitors[addr] = v
	}
	v.seen = now
	return v.bucket.AllowN(now, 1)
}

func (l *ClientLimiter) pruneLocked(cutoff time.Time) {
	for addr, v := range l.visitors {
		if v.seen.Before(cutoff) {
			delete(l.visitors, addr)
		}
	}
}

// RateLimit answers 429 once a client exceeds its budget. Mount it after
// middleware.RealIP so proxied clients get their own bucket.
func RateLimit(limiter *ClientLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				addr = r.RemoteAddr
			}
			if !limiter.Allow(addr) {
				writeEnvelope(w, http.StatusTooManyRequests, JSONResponse{
					Error:   true,
					Message: http.StatusText(http.StatusTooManyRequests),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// panicEnvelope writes the 500 error envelope for a panicking handler and
// re-panics so middleware.Recoverer logs it. Recoverer's own WriteHeader is a
// no-op on the already written response.
func panicEnvelope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec != http.ErrAbortHandler && r.Header.Get("Connection") != "Upgrade" {
				writeEnvelope(w, http.StatusInternalServerError, JSONResponse{
					Error:   true,
					Message: "internal error",
					Kind:    domain.KindOf(domain.ErrPersistence),
				})
			}
			panic(rec)
		}()
		next.ServeHTTP(w, r)
	})
}

// slogFormatter feeds chi's RequestLogger into slog.
type slogFormatter struct {
	logger *slog.Logger
}

func (f slogFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	return slogEntry{logger: f.logger.With(
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
	)}
}

type slogEntry struct {
	logger *slog.Logger
}

func (e slogEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	e.logger.Debug("http request", "status", status, "bytes", bytes, "duration", elapsed)
}

func (e slogEntry) Panic(v interface{}, stack []byte) {
	e.logger.Error("panic serving request", "panic", v, "stack", string(stack))
}
