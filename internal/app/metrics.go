package app

import (
	"github.com/Scofield321/cipherford/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the match engine's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	matchesCreated   prometheus.Counter
	answersSubmitted *prometheus.CounterVec
	matchesFinalized *prometheus.CounterVec
	xpAwarded        prometheus.Counter
	staleMatches     *prometheus.GaugeVec
	roomSubscribers  prometheus.Gauge
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		matchesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cipherford",
			Name:      "matches_created_total",
			Help:      "Quiz-battle matches created.",
		}),
		answersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cipherford",
			Name:      "answers_submitted_total",
			Help:      "Answers scored, by correctness.",
		}, []string{"correct"}),
		matchesFinalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cipherford",
			Name:      "matches_finalized_total",
			Help:      "Matches finalized, by result.",
		}, []string{"result"}),
		xpAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cipherford",
			Name:      "xp_awarded_total",
			Help:      "Experience points granted.",
		}),
		staleMatches: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cipherford",
			Name:      "stale_matches",
			Help:      "Non-completed matches older than the stale threshold, by status.",
		}, []string{"status"}),
		roomSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cipherford",
			Name:      "room_subscribers",
			Help:      "Realtime subscribers currently attached to match rooms.",
		}),
	}
	reg.MustRegister(
		m.matchesCreated,
		m.answersSubmitted,
		m.matchesFinalized,
		m.xpAwarded,
		m.staleMatches,
		m.roomSubscribers,
	)
	return m
}

func (m *Metrics) matchCreated() {
	if m == nil {
		return
	}
	m.matchesCreated.Inc()
}

func (m *Metrics) answerSubmitted(correct bool) {
	if m == nil {
		return
	}
	label := "false"
	if correct {
		label = "true"
	}
	m.answersSubmitted.WithLabelValues(label).Inc()
}

func (m *Metrics) matchFinalized(res domain.MatchResult) {
	if m == nil {
		return
	}
	m.matchesFinalized.WithLabelValues(string(res.Result)).Inc()
	m.xpAwarded.Add(float64(res.XPAwarded.Player1 + res.XPAwarded.Player2))
}

func (m *Metrics) xpGranted(amount int64) {
	if m == nil {
		return
	}
	m.xpAwarded.Add(float64(amount))
}

func (m *Metrics) staleObserved(c StaleCounts) {
	if m == nil {
		return
	}
	m.staleMatches.WithLabelValues(string(domain.StatusWaiting)).Set(float64(c.Waiting))
	m.staleMatches.WithLabelValues(string(domain.StatusReady)).Set(float64(c.Ready))
}

func (m *Metrics) subscribersChanged(delta float64) {
	if m == nil {
		return
	}
	m.roomSubscribers.Add(delta)
}
