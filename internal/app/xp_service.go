package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Scofield321/cipherford/internal/domain"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// XPRepository stores cumulative experience per user.
type XPRepository interface {
	// AddXP creates or increments the user's record in one atomic statement
	// and returns the new total.
	AddXP(ctx context.Context, userID string, amount int64) (int64, error)
	// XP returns the user's record; ok is false when none exists yet.
	XP(ctx context.Context, userID string) (rec domain.PlayerXP, ok bool, err error)
	// TopXP lists records ordered by XP descending, then user id.
	TopXP(ctx context.Context, limit int) ([]domain.PlayerXP, error)
}

// MaxXPAward caps a single direct award.
const MaxXPAward int64 = 1_000_000

// XPService exposes XP awards and the derived level views.
type XPService struct {
	repo    XPRepository
	logger  *slog.Logger
	metrics *Metrics
}

func NewXPService(repo XPRepository, logger *slog.Logger, metrics *Metrics) *XPService {
	if logger == nil {
		logger = slog.Default()
	}
	return &XPService{repo: repo, logger: logger, metrics: metrics}
}

// AddXP grants amount XP to userID and returns the updated stats.
func (s *XPService) AddXP(ctx context.Context, userID string, amount int64) (domain.PlayerStats, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.PlayerStats{}, domain.Validation("userId is required")
	}
	if amount <= 0 {
		return domain.PlayerStats{}, domain.Validation("amount must be positive")
	}
	if amount > MaxXPAward {
		return domain.PlayerStats{}, domain.Validation("amount must be at most %d", MaxXPAward)
	}
	total, err := s.repo.AddXP(ctx, userID, amount)
	if err != nil {
		return domain.PlayerStats{}, domain.Persistence("add xp", err)
	}
	s.metrics.xpGranted(amount)
	s.logger.Info("xp awarded", "user", userID, "amount", amount, "total", total)
	return statsFor(userID, total), nil
}

// Stats returns the user's XP with level and progress. Users without a record
// are reported at zero XP.
func (s *XPService) Stats(ctx context.Context, userID string) (domain.PlayerStats, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.PlayerStats{}, domain.Validation("userId is required")
	}
	rec, _, err := s.repo.XP(ctx, userID)
	if err != nil {
		return domain.PlayerStats{}, domain.Persistence("load xp", err)
	}
	return statsFor(userID, rec.XP), nil
}

// Leaderboard ranks users by XP. limit defaults to 10 and is capped at 100.
func (s *XPService) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}
	recs, err := s.repo.TopXP(ctx, limit)
	if err != nil {
		return nil, domain.Persistence("load leaderboard", err)
	}
	entries := make([]domain.LeaderboardEntry, 0, len(recs))
	for i, rec := range recs {
		entries = append(entries, domain.LeaderboardEntry{
			Rank:        i + 1,
			PlayerStats: statsFor(rec.UserID, rec.XP),
		})
	}
	return entries, nil
}

func statsFor(userID string, xp int64) domain.PlayerStats {
	return domain.PlayerStats{UserID: userID, XP: xp, Level: domain.LevelFor(xp)}
}
