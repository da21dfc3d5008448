package app

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/Scofield321/cipherford/internal/domain"
	"github.com/google/uuid"
)

const (
	// DefaultQuestionCount is the size of a match's question snapshot.
	DefaultQuestionCount = 10
	// DefaultXPPerCorrect is the XP granted per correct answer at finalize.
	DefaultXPPerCorrect int64 = 10

	roomCodeLength   = 6
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomCodeAttempts = 3
)

// MatchRepository persists matches and their question snapshots.
type MatchRepository interface {
	// CreateMatch stores the match and its questions atomically. It returns
	// domain.ErrRoomCodeTaken when the room code collides with an active match.
	CreateMatch(ctx context.Context, match domain.Match, questions []domain.MatchQuestion) error
	// JoinMatch seats playerTwoID only if the match is still waiting.
	JoinMatch(ctx context.Context, roomCode, playerTwoID string) (domain.Match, error)
	MatchByRoomCode(ctx context.Context, roomCode string) (domain.Match, error)
	MatchQuestions(ctx context.Context, matchID string) ([]domain.MatchQuestion, error)
	// MatchQuestion returns the question together with its parent match.
	MatchQuestion(ctx context.Context, id string) (domain.MatchQuestion, domain.Match, error)
	// RecordAnswer overwrites one player's answer and score. It fails with
	// domain.ErrMatchCompleted once the parent match is completed.
	RecordAnswer(ctx context.Context, matchQuestionID string, player domain.PlayerSlot, answer string, score int) error
	ScoreTotals(ctx context.Context, matchID string) (domain.ScoreTotals, error)
	// FinalizeMatch moves a ready match to completed, computes the settlement
	// from the locked totals and applies its XP awards in the same unit of work.
	FinalizeMatch(ctx context.Context, matchID string, endedAt time.Time, settle SettleFunc) (domain.Match, domain.Settlement, error)
	// CountStale counts non-completed matches created before the cutoff.
	CountStale(ctx context.Context, before time.Time) (StaleCounts, error)
}

// SettleFunc turns final totals into the persisted outcome.
type SettleFunc func(match domain.Match, totals domain.ScoreTotals) domain.Settlement

// QuestionRepository reads the shared question bank.
type QuestionRepository interface {
	Questions(ctx context.Context) ([]domain.BankQuestion, error)
	Question(ctx context.Context, id string) (domain.BankQuestion, error)
}

// Broadcaster relays events to the subscribers of one room. Delivery is best
// effort: an empty room drops the event.
type Broadcaster interface {
	BroadcastToRoom(ctx context.Context, roomCode string, event domain.Event)
}

// RandSource is the randomness behind room codes and question selection.
type RandSource interface {
	Intn(n int) int
}

// MatchService implements the match registry, question assignment, scoring
// and finalize use cases.
type MatchService struct {
	matches     MatchRepository
	questions   QuestionRepository
	broadcaster Broadcaster
	logger      *slog.Logger
	metrics     *Metrics

	questionCount int
	xpPerCorrect  int64
	now           func() time.Time
	newID         func() string

	rndMu sync.Mutex
	rnd   RandSource
}

// Option customizes a MatchService.
type Option func(*MatchService)

func WithRand(rnd RandSource) Option {
	return func(s *MatchService) { s.rnd = rnd }
}

func WithClock(now func() time.Time) Option {
	return func(s *MatchService) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *MatchService) { s.newID = newID }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *MatchService) { s.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(s *MatchService) { s.metrics = m }
}

// WithQuestionCount overrides DefaultQuestionCount. Non-positive values are ignored.
func WithQuestionCount(n int) Option {
	return func(s *MatchService) {
		if n > 0 {
			s.questionCount = n
		}
	}
}

// WithXPPerCorrect overrides DefaultXPPerCorrect. Negative values are ignored.
func WithXPPerCorrect(xp int64) Option {
	return func(s *MatchService) {
		if xp >= 0 {
			s.xpPerCorrect = xp
		}
	}
}

func NewMatchService(matches MatchRepository, questions QuestionRepository, broadcaster Broadcaster, opts ...Option) *MatchService {
	s := &MatchService{
		matches:       matches,
		questions:     questions,
		broadcaster:   broadcaster,
		logger:        slog.Default(),
		questionCount: DefaultQuestionCount,
		xpPerCorrect:  DefaultXPPerCorrect,
		now:           time.Now,
		newID:         uuid.NewString,
		rnd:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateMatch opens a waiting match for playerOneID with a fresh question snapshot.
func (s *MatchService) CreateMatch(ctx context.Context, playerOneID string) (domain.Match, error) {
	playerOneID = strings.TrimSpace(playerOneID)
	if playerOneID == "" {
		return domain.Match{}, domain.Validation("playerOneId is required")
	}

	match := domain.Match{
		ID:          s.newID(),
		PlayerOneID: playerOneID,
		Status:      domain.StatusWaiting,
		CreatedAt:   s.now().UTC(),
	}

	questions, err := s.AssignQuestions(ctx, match.ID, s.questionCount)
	if err != nil {
		return domain.Match{}, err
	}

	for attempt := 1; ; attempt++ {
		match.RoomCode = s.roomCode()
		err = s.matches.CreateMatch(ctx, match, questions)
		if !errors.Is(err, domain.ErrRoomCodeTaken) || attempt == roomCodeAttempts {
			break
		}
		s.logger.Warn("room code collision, retrying", "room", match.RoomCode, "attempt", attempt)
	}
	if errors.Is(err, domain.ErrRoomCodeTaken) {
		return domain.Match{}, &domain.Error{Kind: domain.ErrPersistence, Message: "could not allocate a unique room code"}
	}
	if err != nil {
		return domain.Match{}, domain.Persistence("create match", err)
	}

	s.metrics.matchCreated()
	s.logger.Info("match created", "match", match.ID, "room", match.RoomCode, "questions", len(questions))
	return match, nil
}

// AssignQuestions selects up to count bank questions uniformly at random
// without replacement. A bank smaller than count yields every entry.
func (s *MatchService) AssignQuestions(ctx context.Context, matchID string, count int) ([]domain.MatchQuestion, error) {
	if count <= 0 {
		count = DefaultQuestionCount
	}
	bank, err := s.questions.Questions(ctx)
	if err != nil {
		return nil, domain.Persistence("load question bank", err)
	}
	if len(bank) < count {
		s.logger.Warn("question bank smaller than requested count", "match", matchID, "bank", len(bank), "count", count)
		count = len(bank)
	}

	picked := s.sample(len(bank), count)
	questions := make([]domain.MatchQuestion, 0, len(picked))
	for pos, idx := range picked {
		questions = append(questions, domain.MatchQuestion{
			ID:         s.newID(),
			MatchID:    matchID,
			QuestionID: bank[idx].ID,
			Position:   pos + 1,
		})
	}
	return questions, nil
}

// JoinMatch seats playerTwoID in the waiting match behind roomCode.
func (s *MatchService) JoinMatch(ctx context.Context, roomCode, playerTwoID, displayName string) (domain.Match, error) {
	roomCode = normalizeRoomCode(roomCode)
	playerTwoID = strings.TrimSpace(playerTwoID)
	if roomCode == "" {
		return domain.Match{}, domain.Validation("roomCode is required")
	}
	if playerTwoID == "" {
		return domain.Match{}, domain.Validation("playerTwoId is required")
	}

	current, err := s.matches.MatchByRoomCode(ctx, roomCode)
	if err != nil {
		return domain.Match{}, domain.Persistence("find match", err)
	}
	if current.PlayerOneID == playerTwoID {
		return domain.Match{}, domain.Validation("player cannot join their own match")
	}
	if current.Status != domain.StatusWaiting {
		return domain.Match{}, domain.ErrMatchNotWaiting
	}

	match, err := s.matches.JoinMatch(ctx, roomCode, playerTwoID)
	if err != nil {
		return domain.Match{}, domain.Persistence("join match", err)
	}

	if displayName == "" {
		displayName = playerTwoID
	}
	s.broadcaster.BroadcastToRoom(ctx, roomCode, domain.Event{
		Type: domain.EventPlayerJoined,
		Room: roomCode,
		Payload: domain.PlayerJoinedPayload{
			RoomCode:   roomCode,
			PlayerID:   playerTwoID,
			PlayerName: displayName,
		},
		ExcludeUser: playerTwoID,
	})
	s.logger.Info("player joined match", "match", match.ID, "room", roomCode, "player", playerTwoID)
	return match, nil
}

// MatchByRoomCode looks up the match behind roomCode.
func (s *MatchService) MatchByRoomCode(ctx context.Context, roomCode string) (domain.Match, error) {
	roomCode = normalizeRoomCode(roomCode)
	if roomCode == "" {
		return domain.Match{}, domain.Validation("roomCode is required")
	}
	match, err := s.matches.MatchByRoomCode(ctx, roomCode)
	if err != nil {
		return domain.Match{}, domain.Persistence("find match", err)
	}
	return match, nil
}

// Questions lists the match's questions in selection order with answers withheld.
func (s *MatchService) Questions(ctx context.Context, roomCode string) ([]domain.QuestionView, error) {
	match, err := s.MatchByRoomCode(ctx, roomCode)
	if err != nil {
		return nil, err
	}
	mqs, err := s.matches.MatchQuestions(ctx, match.ID)
	if err != nil {
		return nil, domain.Persistence("list match questions", err)
	}

	views := make([]domain.QuestionView, 0, len(mqs))
	for _, mq := range mqs {
		q, err := s.questions.Question(ctx, mq.QuestionID)
		if err != nil {
			return nil, domain.Persistence("load question", err)
		}
		views = append(views, domain.QuestionView{
			MatchQuestionID: mq.ID,
			QuestionID:      q.ID,
			Position:        mq.Position,
			QuestionText:    q.Question,
			Options:         append([]string(nil), q.Options...),
		})
	}
	return views, nil
}

// SubmitAnswer scores one player's answer to a match question. Re-submitting
// overwrites the player's previous answer and score.
func (s *MatchService) SubmitAnswer(ctx context.Context, matchQuestionID string, player domain.PlayerSlot, answer string) (domain.AnswerResult, error) {
	matchQuestionID = strings.TrimSpace(matchQuestionID)
	if matchQuestionID == "" {
		return domain.AnswerResult{}, domain.Validation("matchQuestionId is required")
	}
	if !player.Valid() {
		return domain.AnswerResult{}, domain.Validation("player must be 1 or 2")
	}
	if strings.TrimSpace(answer) == "" {
		return domain.AnswerResult{}, domain.Validation("answer is required")
	}

	mq, match, err := s.matches.MatchQuestion(ctx, matchQuestionID)
	if err != nil {
		return domain.AnswerResult{}, domain.Persistence("find match question", err)
	}
	if match.Status == domain.StatusCompleted {
		return domain.AnswerResult{}, domain.ErrMatchCompleted
	}
	q, err := s.questions.Question(ctx, mq.QuestionID)
	if err != nil {
		return domain.AnswerResult{}, domain.Persistence("load question", err)
	}

	correct := answersMatch(q.CorrectAnswer, answer)
	score := 0
	if correct {
		score = 1
	}
	if err := s.matches.RecordAnswer(ctx, mq.ID, player, answer, score); err != nil {
		return domain.AnswerResult{}, domain.Persistence("record answer", err)
	}

	s.metrics.answerSubmitted(correct)
	s.broadcaster.BroadcastToRoom(ctx, match.RoomCode, domain.Event{
		Type: domain.EventAnswerSubmitted,
		Room: match.RoomCode,
		Payload: domain.AnswerSubmittedPayload{
			RoomCode:        match.RoomCode,
			MatchQuestionID: mq.ID,
			Player:          player,
			Correct:         correct,
		},
	})

	return domain.AnswerResult{
		MatchQuestionID: mq.ID,
		Player:          player,
		Correct:         correct,
		CorrectAnswer:   q.CorrectAnswer,
		Score:           score,
	}, nil
}

// Scoreboard returns the match with its running totals.
func (s *MatchService) Scoreboard(ctx context.Context, roomCode string) (domain.Scoreboard, error) {
	match, err := s.MatchByRoomCode(ctx, roomCode)
	if err != nil {
		return domain.Scoreboard{}, err
	}
	totals, err := s.matches.ScoreTotals(ctx, match.ID)
	if err != nil {
		return domain.Scoreboard{}, domain.Persistence("sum scores", err)
	}
	return domain.Scoreboard{Match: match, Totals: totals}, nil
}

// Finalize locks in the outcome of the match behind roomCode and awards XP
// exactly once. A second call fails with domain.ErrAlreadyFinalized.
func (s *MatchService) Finalize(ctx context.Context, roomCode string) (domain.MatchResult, error) {
	match, err := s.MatchByRoomCode(ctx, roomCode)
	if err != nil {
		return domain.MatchResult{}, err
	}
	switch match.Status {
	case domain.StatusCompleted:
		return domain.MatchResult{}, domain.ErrAlreadyFinalized
	case domain.StatusWaiting:
		return domain.MatchResult{}, domain.ErrMatchNotReady
	}

	endedAt := s.now().UTC()
	final, settlement, err := s.matches.FinalizeMatch(ctx, match.ID, endedAt, s.settle)
	if err != nil {
		return domain.MatchResult{}, domain.Persistence("finalize match", err)
	}

	result := domain.MatchResult{
		MatchID:      final.ID,
		RoomCode:     final.RoomCode,
		Player1ID:    final.PlayerID(domain.PlayerOne),
		Player2ID:    final.PlayerID(domain.PlayerTwo),
		Player1Total: settlement.Totals.Player1,
		Player2Total: settlement.Totals.Player2,
		WinnerID:     settlement.WinnerID,
		Result:       settlement.Result,
		XPAwarded: domain.XPAwarded{
			Player1: int64(settlement.Totals.Player1) * s.xpPerCorrect,
			Player2: int64(settlement.Totals.Player2) * s.xpPerCorrect,
		},
		Player1Level: levelOf(settlement.NewXP, final.PlayerID(domain.PlayerOne)),
		Player2Level: levelOf(settlement.NewXP, final.PlayerID(domain.PlayerTwo)),
		EndedAt:      endedAt,
	}

	s.metrics.matchFinalized(result)
	s.broadcaster.BroadcastToRoom(ctx, final.RoomCode, domain.Event{
		Type:    domain.EventMatchCompleted,
		Room:    final.RoomCode,
		Payload: result,
	})
	s.logger.Info("match finalized", "match", final.ID, "room", final.RoomCode,
		"result", result.Result, "p1", result.Player1Total, "p2", result.Player2Total)
	return result, nil
}

func (s *MatchService) settle(match domain.Match, totals domain.ScoreTotals) domain.Settlement {
	st := domain.Settlement{Totals: totals, Result: totals.Decide()}
	switch st.Result {
	case domain.ResultPlayer1:
		winner := match.PlayerID(domain.PlayerOne)
		st.WinnerID = &winner
	case domain.ResultPlayer2:
		winner := match.PlayerID(domain.PlayerTwo)
		st.WinnerID = &winner
	}

	for _, side := range []struct {
		slot  domain.PlayerSlot
		total int
	}{{domain.PlayerOne, totals.Player1}, {domain.PlayerTwo, totals.Player2}} {
		userID := match.PlayerID(side.slot)
		amount := int64(side.total) * s.xpPerCorrect
		if userID == "" || amount <= 0 {
			continue
		}
		st.Awards = append(st.Awards, domain.XPAward{UserID: userID, Amount: amount})
	}
	return st
}

func levelOf(newXP map[string]int64, userID string) *domain.Level {
	xp, ok := newXP[userID]
	if !ok {
		return nil
	}
	lvl := domain.LevelFor(xp)
	return &lvl
}

func (s *MatchService) roomCode() string {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	var b strings.Builder
	b.Grow(roomCodeLength)
	for i := 0; i < roomCodeLength; i++ {
		b.WriteByte(roomCodeAlphabet[s.rnd.Intn(len(roomCodeAlphabet))])
	}
	return b.String()
}

// sample returns k distinct indexes in [0,n) using a partial Fisher-Yates shuffle.
func (s *MatchService) sample(n, k int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	for i := 0; i < k; i++ {
		j := i + s.rnd.Intn(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx[:k]
}

func answersMatch(canonical, submitted string) bool {
	return strings.EqualFold(strings.TrimSpace(canonical), strings.TrimSpace(submitted))
}

func normalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
