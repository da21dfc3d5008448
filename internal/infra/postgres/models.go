package postgres

import (
	"time"

	"github.com/Scofield321/cipherford/internal/domain"
	"github.com/uptrace/bun"
)

type matchRow struct {
	bun.BaseModel `bun:"table:game_matches,alias:gm"`

	ID          string     `bun:"id,pk,type:uuid"`
	RoomCode    string     `bun:"room_code,notnull"`
	PlayerOneID string     `bun:"player_one_id,notnull"`
	PlayerTwoID *string    `bun:"player_two_id"`
	Status      string     `bun:"status,notnull"`
	WinnerID    *string    `bun:"winner_id"`
	CreatedAt   time.Time  `bun:"created_at,notnull"`
	EndedAt     *time.Time `bun:"ended_at"`
}

func (r matchRow) toDomain() domain.Match {
	return domain.Match{
		ID:          r.ID,
		RoomCode:    r.RoomCode,
		PlayerOneID: r.PlayerOneID,
		PlayerTwoID: r.PlayerTwoID,
		Status:      domain.MatchStatus(r.Status),
		WinnerID:    r.WinnerID,
		CreatedAt:   r.CreatedAt.UTC(),
		EndedAt:     utcPtr(r.EndedAt),
	}
}

type matchQuestionRow struct {
	bun.BaseModel `bun:"table:game_match_quizzes,alias:gmq"`

	ID            string  `bun:"id,pk,type:uuid"`
	MatchID       string  `bun:"match_id,notnull,type:uuid"`
	QuestionID    string  `bun:"question_id,notnull"`
	Position      int     `bun:"position,notnull"`
	Player1Answer *string `bun:"player1_answer"`
	Player2Answer *string `bun:"player2_answer"`
	Player1Score  *int    `bun:"player1_score"`
	Player2Score  *int    `bun:"player2_score"`
}

func (r matchQuestionRow) toDomain() domain.MatchQuestion {
	return domain.MatchQuestion{
		ID:            r.ID,
		MatchID:       r.MatchID,
		QuestionID:    r.QuestionID,
		Position:      r.Position,
		Player1Answer: r.Player1Answer,
		Player2Answer: r.Player2Answer,
		Player1Score:  r.Player1Score,
		Player2Score:  r.Player2Score,
	}
}

type userXPRow struct {
	bun.BaseModel `bun:"table:user_xp,alias:ux"`

	UserID      string    `bun:"user_id,pk"`
	XP          int64     `bun:"xp,notnull"`
	LastUpdated time.Time `bun:"last_updated,notnull"`
}

type bankRow struct {
	bun.BaseModel `bun:"table:community_quizzes,alias:cq"`

	ID            string   `bun:"id,pk"`
	Question      string   `bun:"question,notnull"`
	Options       []string `bun:"options,array"`
	CorrectAnswer string   `bun:"correct_answer,notnull"`
	Tags          []string `bun:"tags,array"`
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
