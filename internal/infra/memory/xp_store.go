package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Scofield321/cipherford/internal/domain"
)

// XPStore is an in-memory implementation of app.XPRepository.
type XPStore struct {
	mu    sync.RWMutex
	clock func() time.Time
	users map[string]domain.PlayerXP
}

func NewXPStore() *XPStore {
	return &XPStore{
		clock: time.Now,
		users: make(map[string]domain.PlayerXP),
	}
}

// AddXP fails like a bigint column would when the total leaves the int64 range.
func (s *XPStore) AddXP(_ context.Context, userID string, amount int64) (int64, error) {
	totals, err := s.addAll([]domain.XPAward{{UserID: userID, Amount: amount}})
	if err != nil {
		return 0, err
	}
	return totals[userID], nil
}

// addAll applies every award or none of them.
func (s *XPStore) addAll(awards []domain.XPAward) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	totals := make(map[string]int64, len(awards))
	for _, award := range awards {
		cur, ok := totals[award.UserID]
		if !ok {
			cur = s.users[award.UserID].XP
		}
		if (award.Amount > 0 && cur > math.MaxInt64-award.Amount) ||
			(award.Amount < 0 && cur < math.MinInt64-award.Amount) {
			return nil, fmt.Errorf("memory.AddXP: xp out of range for %s", award.UserID)
		}
		totals[award.UserID] = cur + award.Amount
	}

	now := s.clock().UTC()
	for userID, total := range totals {
		s.users[userID] = domain.PlayerXP{UserID: userID, XP: total, LastUpdated: now}
	}
	return totals, nil
}

func (s *XPStore) XP(_ context.Context, userID string) (domain.PlayerXP, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[userID]
	if !ok {
		return domain.PlayerXP{UserID: userID}, false, nil
	}
	return rec, true, nil
}

func (s *XPStore) TopXP(_ context.Context, limit int) ([]domain.PlayerXP, error) {
	s.mu.RLock()
	out := make([]domain.PlayerXP, 0, len(s.users))
	for _, rec := range s.users {
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].XP != out[j].XP {
			return out[i].XP > out[j].XP
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
