package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Scofield321/cipherford/internal/app"
	"github.com/Scofield321/cipherford/internal/domain"
)

// MatchStore is an in-memory implementation of app.MatchRepository. Finalize
// awards XP through the shared XPStore while holding the match lock, so the
// status flip and the awards form one unit of work.
type MatchStore struct {
	xp *XPStore

	mu        sync.Mutex
	matches   map[string]*domain.Match
	questions map[string]*domain.MatchQuestion
	byMatch   map[string][]string
	// active maps a room code to its non-completed match; latest keeps the
	// most recent match per code so finished rooms stay readable.
	active map[string]string
	latest map[string]string
}

func NewMatchStore(xp *XPStore) *MatchStore {
	return &MatchStore{
		xp:        xp,
		matches:   make(map[string]*domain.Match),
		questions: make(map[string]*domain.MatchQuestion),
		byMatch:   make(map[string][]string),
		active:    make(map[string]string),
		latest:    make(map[string]string),
	}
}

func (s *MatchStore) CreateMatch(_ context.Context, match domain.Match, questions []domain.MatchQuestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.active[match.RoomCode]; taken {
		return domain.ErrRoomCodeTaken
	}

	m := match
	s.matches[m.ID] = &m
	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		mq := q
		mq.MatchID = m.ID
		s.questions[mq.ID] = &mq
		ids = append(ids, mq.ID)
	}
	s.byMatch[m.ID] = ids
	s.active[m.RoomCode] = m.ID
	s.latest[m.RoomCode] = m.ID
	return nil
}

func (s *MatchStore) JoinMatch(_ context.Context, roomCode, playerTwoID string) (domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byRoomLocked(roomCode)
	if !ok {
		return domain.Match{}, domain.ErrMatchNotFound
	}
	if m.Status != domain.StatusWaiting {
		return domain.Match{}, domain.ErrMatchNotWaiting
	}
	p2 := playerTwoID
	m.PlayerTwoID = &p2
	m.Status = domain.StatusReady
	return *m, nil
}

func (s *MatchStore) MatchByRoomCode(_ context.Context, roomCode string) (domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byRoomLocked(roomCode)
	if !ok {
		return domain.Match{}, domain.ErrMatchNotFound
	}
	return *m, nil
}

func (s *MatchStore) MatchQuestions(_ context.Context, matchID string) ([]domain.MatchQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[matchID]; !ok {
		return nil, domain.ErrMatchNotFound
	}
	out := make([]domain.MatchQuestion, 0, len(s.byMatch[matchID]))
	for _, id := range s.byMatch[matchID] {
		out = append(out, *s.questions[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *MatchStore) MatchQuestion(_ context.Context, id string) (domain.MatchQuestion, domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mq, ok := s.questions[id]
	if !ok {
		return domain.MatchQuestion{}, domain.Match{}, domain.ErrMatchQuestionNotFound
	}
	return *mq, *s.matches[mq.MatchID], nil
}

func (s *MatchStore) RecordAnswer(_ context.Context, matchQuestionID string, player domain.PlayerSlot, answer string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mq, ok := s.questions[matchQuestionID]
	if !ok {
		return domain.ErrMatchQuestionNotFound
	}
	if s.matches[mq.MatchID].Status == domain.StatusCompleted {
		return domain.ErrMatchCompleted
	}
	a, sc := answer, score
	switch player {
	case domain.PlayerOne:
		mq.Player1Answer, mq.Player1Score = &a, &sc
	case domain.PlayerTwo:
		mq.Player2Answer, mq.Player2Score = &a, &sc
	default:
		return domain.Validation("player must be 1 or 2")
	}
	return nil
}

func (s *MatchStore) ScoreTotals(_ context.Context, matchID string) (domain.ScoreTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[matchID]; !ok {
		return domain.ScoreTotals{}, domain.ErrMatchNotFound
	}
	return s.totalsLocked(matchID), nil
}

func (s *MatchStore) FinalizeMatch(_ context.Context, matchID string, endedAt time.Time, settle app.SettleFunc) (domain.Match, domain.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return domain.Match{}, domain.Settlement{}, domain.ErrMatchNotFound
	}
	switch m.Status {
	case domain.StatusCompleted:
		return domain.Match{}, domain.Settlement{}, domain.ErrAlreadyFinalized
	case domain.StatusWaiting:
		return domain.Match{}, domain.Settlement{}, domain.ErrMatchNotReady
	}

	st := settle(*m, s.totalsLocked(matchID))
	newXP, err := s.xp.addAll(st.Awards)
	if err != nil {
		return domain.Match{}, domain.Settlement{}, err
	}
	st.NewXP = newXP

	ended := endedAt
	m.Status = domain.StatusCompleted
	m.WinnerID = st.WinnerID
	m.EndedAt = &ended
	delete(s.active, m.RoomCode)
	return *m, st, nil
}

func (s *MatchStore) CountStale(_ context.Context, before time.Time) (app.StaleCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var counts app.StaleCounts
	for _, id := range s.active {
		m := s.matches[id]
		if !m.CreatedAt.Before(before) {
			continue
		}
		switch m.Status {
		case domain.StatusWaiting:
			counts.Waiting++
		case domain.StatusReady:
			counts.Ready++
		}
	}
	return counts, nil
}

func (s *MatchStore) byRoomLocked(roomCode string) (*domain.Match, bool) {
	id, ok := s.active[roomCode]
	if !ok {
		id, ok = s.latest[roomCode]
	}
	if !ok {
		return nil, false
	}
	return s.matches[id], true
}

func (s *MatchStore) totalsLocked(matchID string) domain.ScoreTotals {
	var t domain.ScoreTotals
	for _, id := range s.byMatch[matchID] {
		mq := s.questions[id]
		if mq.Player1Score != nil {
			t.Player1 += *mq.Player1Score
			t.Answered1++
		}
		if mq.Player2Score != nil {
			t.Player2 += *mq.Player2Score
			t.Answered2++
		}
	}
	return t
}
