package domain

import "time"

// MatchStatus is the lifecycle state of a match. Transitions only move forward.
type MatchStatus string

const (
	StatusWaiting   MatchStatus = "waiting"
	StatusReady     MatchStatus = "ready"
	StatusCompleted MatchStatus = "completed"
)

// PlayerSlot identifies which side of a match a submission belongs to.
type PlayerSlot int

const (
	PlayerOne PlayerSlot = 1
	PlayerTwo PlayerSlot = 2
)

func (p PlayerSlot) Valid() bool {
	return p == PlayerOne || p == PlayerTwo
}

// Match is one quiz-battle session between two players.
type Match struct {
	ID          string      `json:"id"`
	RoomCode    string      `json:"roomCode"`
	PlayerOneID string      `json:"playerOneId"`
	PlayerTwoID *string     `json:"playerTwoId"`
	Status      MatchStatus `json:"status"`
	WinnerID    *string     `json:"winnerId"`
	CreatedAt   time.Time   `json:"createdAt"`
	EndedAt     *time.Time  `json:"endedAt"`
}

// PlayerID returns the user id seated in slot, or "" if the slot is empty.
func (m Match) PlayerID(slot PlayerSlot) string {
	switch slot {
	case PlayerOne:
		return m.PlayerOneID
	case PlayerTwo:
		if m.PlayerTwoID != nil {
			return *m.PlayerTwoID
		}
	}
	return ""
}

// MatchQuestion is a bank question snapshotted into a match, with per-player
// answer state. Nil answer/score means the player has not submitted yet.
type MatchQuestion struct {
	ID            string  `json:"id"`
	MatchID       string  `json:"matchId"`
	QuestionID    string  `json:"questionId"`
	Position      int     `json:"position"`
	Player1Answer *string `json:"player1Answer,omitempty"`
	Player2Answer *string `json:"player2Answer,omitempty"`
	Player1Score  *int    `json:"player1Score,omitempty"`
	Player2Score  *int    `json:"player2Score,omitempty"`
}

// BankQuestion is a read-only question bank entry.
type BankQuestion struct {
	ID            string   `json:"id" yaml:"id"`
	Question      string   `json:"question" yaml:"question"`
	Options       []string `json:"options" yaml:"options"`
	CorrectAnswer string   `json:"correctAnswer" yaml:"correct_answer"`
	Tags          []string `json:"tags,omitempty" yaml:"tags"`
}

// QuestionView is what players see: the correct answer is withheld.
type QuestionView struct {
	MatchQuestionID string   `json:"matchQuestionId"`
	QuestionID      string   `json:"questionId"`
	Position        int      `json:"position"`
	QuestionText    string   `json:"questionText"`
	Options         []string `json:"options"`
}

// AnswerResult is the outcome of a single submission.
type AnswerResult struct {
	MatchQuestionID string     `json:"matchQuestionId"`
	Player          PlayerSlot `json:"player"`
	Correct         bool       `json:"correct"`
	CorrectAnswer   string     `json:"correctAnswer"`
	Score           int        `json:"score"`
}

// ScoreTotals aggregates both players' points across a match.
type ScoreTotals struct {
	Player1   int `json:"player1Total"`
	Player2   int `json:"player2Total"`
	Answered1 int `json:"player1Answered"`
	Answered2 int `json:"player2Answered"`
}

// Result names the outcome of a finalized match.
type Result string

const (
	ResultPlayer1 Result = "player1"
	ResultPlayer2 Result = "player2"
	ResultDraw    Result = "draw"
)

// Decide applies strict comparison: higher total wins, equal totals draw.
func (t ScoreTotals) Decide() Result {
	switch {
	case t.Player1 > t.Player2:
		return ResultPlayer1
	case t.Player2 > t.Player1:
		return ResultPlayer2
	default:
		return ResultDraw
	}
}

// XPAward is an increment applied to one user's XP record.
type XPAward struct {
	UserID string
	Amount int64
}

// Settlement is the locked-in outcome persisted by a finalize.
type Settlement struct {
	Totals   ScoreTotals
	Result   Result
	WinnerID *string
	Awards   []XPAward
	// NewXP holds each awarded user's cumulative XP after the increment.
	NewXP map[string]int64
}

// MatchResult is returned to callers of finalize and relayed to the room.
type MatchResult struct {
	MatchID      string    `json:"matchId"`
	RoomCode     string    `json:"roomCode"`
	Player1ID    string    `json:"player1Id"`
	Player2ID    string    `json:"player2Id"`
	Player1Total int       `json:"player1Total"`
	Player2Total int       `json:"player2Total"`
	WinnerID     *string   `json:"winnerId"`
	Result       Result    `json:"result"`
	XPAwarded    XPAwarded `json:"xpAwarded"`
	Player1Level *Level    `json:"player1Level,omitempty"`
	Player2Level *Level    `json:"player2Level,omitempty"`
	EndedAt      time.Time `json:"endedAt"`
}

// XPAwarded reports the XP delta per side.
type XPAwarded struct {
	Player1 int64 `json:"player1"`
	Player2 int64 `json:"player2"`
}

// Scoreboard is the re-fetchable state of a match.
type Scoreboard struct {
	Match  Match       `json:"match"`
	Totals ScoreTotals `json:"totals"`
}

// PlayerXP is one user's cumulative experience.
type PlayerXP struct {
	UserID      string    `json:"userId"`
	XP          int64     `json:"xp"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// PlayerStats joins XP with its derived level data.
type PlayerStats struct {
	UserID string `json:"userId"`
	XP     int64  `json:"xp"`
	Level
}

// LeaderboardEntry is one ranked row of the XP leaderboard.
type LeaderboardEntry struct {
	Rank int `json:"rank"`
	PlayerStats
}
