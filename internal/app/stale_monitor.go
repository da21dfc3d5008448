package app

import (
	"context"
	"log/slog"
	"time"
)

// StaleCounts splits stale matches by status.
type StaleCounts struct {
	Waiting int
	Ready   int
}

// StaleMonitor reports matches stuck in waiting or ready. It never expires
// or cancels them.
type StaleMonitor struct {
	matches MatchRepository
	after   time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *Metrics
}

func NewStaleMonitor(matches MatchRepository, after time.Duration, logger *slog.Logger, metrics *Metrics) *StaleMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &StaleMonitor{matches: matches, after: after, now: time.Now, logger: logger, metrics: metrics}
}

// Check counts matches older than the threshold and publishes the result.
func (m *StaleMonitor) Check(ctx context.Context) (StaleCounts, error) {
	cutoff := m.now().UTC().Add(-m.after)
	counts, err := m.matches.CountStale(ctx, cutoff)
	if err != nil {
		m.logger.Error("stale match check failed", "error", err)
		return StaleCounts{}, err
	}
	m.metrics.staleObserved(counts)
	if counts.Waiting+counts.Ready > 0 {
		m.logger.Warn("stale matches detected", "waiting", counts.Waiting, "ready", counts.Ready, "older_than", m.after)
	}
	return counts, nil
}
