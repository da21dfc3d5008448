package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Scofield321/cipherford/internal/app"
	"github.com/Scofield321/cipherford/internal/domain"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

const activeRoomCodeIndex = "game_matches_active_room_code_idx"

// MatchRepository implements app.MatchRepository on Postgres via bun.
type MatchRepository struct {
	db  *bun.DB
	now func() time.Time
}

func NewMatchRepository(db *bun.DB) *MatchRepository {
	return &MatchRepository{db: db, now: time.Now}
}

func (r *MatchRepository) CreateMatch(ctx context.Context, match domain.Match, questions []domain.MatchQuestion) error {
	row := &matchRow{
		ID:          match.ID,
		RoomCode:    match.RoomCode,
		PlayerOneID: match.PlayerOneID,
		PlayerTwoID: match.PlayerTwoID,
		Status:      string(match.Status),
		CreatedAt:   match.CreatedAt,
	}
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			if isUniqueViolation(err, activeRoomCodeIndex) {
				return domain.ErrRoomCodeTaken
			}
			return fmt.Errorf("matchdb.CreateMatch: %w", err)
		}
		if len(questions) == 0 {
			return nil
		}
		rows := make([]matchQuestionRow, 0, len(questions))
		for _, q := range questions {
			rows = append(rows, matchQuestionRow{
				ID:         q.ID,
				MatchID:    match.ID,
				QuestionID: q.QuestionID,
				Position:   q.Position,
			})
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("matchdb.CreateMatch questions: %w", err)
		}
		return nil
	})
}

func (r *MatchRepository) JoinMatch(ctx context.Context, roomCode, playerTwoID string) (domain.Match, error) {
	var row matchRow
	res, err := r.db.NewUpdate().
		Model((*matchRow)(nil)).
		Set("player_two_id = ?", playerTwoID).
		Set("status = ?", string(domain.StatusReady)).
		Where("room_code = ?", roomCode).
		Where("status = ?", string(domain.StatusWaiting)).
		Returning("*").
		Exec(ctx, &row)
	if err != nil {
		return domain.Match{}, fmt.Errorf("matchdb.JoinMatch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.MatchByRoomCode(ctx, roomCode); err != nil {
			return domain.Match{}, err
		}
		return domain.Match{}, domain.ErrMatchNotWaiting
	}
	return row.toDomain(), nil
}

func (r *MatchRepository) MatchByRoomCode(ctx context.Context, roomCode string) (domain.Match, error) {
	var row matchRow
	err := r.db.NewSelect().
		Model(&row).
		Where("room_code = ?", roomCode).
		OrderExpr("(status <> ?) DESC, created_at DESC", string(domain.StatusCompleted)).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Match{}, domain.ErrMatchNotFound
	}
	if err != nil {
		return domain.Match{}, fmt.Errorf("matchdb.MatchByRoomCode: %w", err)
	}
	return row.toDomain(), nil
}

func (r *MatchRepository) MatchQuestions(ctx context.Context, matchID string) ([]domain.MatchQuestion, error) {
	var rows []matchQuestionRow
	err := r.db.NewSelect().
		Model(&rows).
		Where("match_id = ?", matchID).
		Order("position ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("matchdb.MatchQuestions: %w", err)
	}
	out := make([]domain.MatchQuestion, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *MatchRepository) MatchQuestion(ctx context.Context, id string) (domain.MatchQuestion, domain.Match, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.MatchQuestion{}, domain.Match{}, domain.ErrMatchQuestionNotFound
	}
	var mq matchQuestionRow
	err := r.db.NewSelect().Model(&mq).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.MatchQuestion{}, domain.Match{}, domain.ErrMatchQuestionNotFound
	}
	if err != nil {
		return domain.MatchQuestion{}, domain.Match{}, fmt.Errorf("matchdb.MatchQuestion: %w", err)
	}
	var m matchRow
	if err := r.db.NewSelect().Model(&m).Where("id = ?", mq.MatchID).Scan(ctx); err != nil {
		return domain.MatchQuestion{}, domain.Match{}, fmt.Errorf("matchdb.MatchQuestion match: %w", err)
	}
	return mq.toDomain(), m.toDomain(), nil
}

// RecordAnswer holds a share lock on the parent match so a concurrent
// finalize either sees this answer or rejects it.
func (r *MatchRepository) RecordAnswer(ctx context.Context, matchQuestionID string, player domain.PlayerSlot, answer string, score int) error {
	answerCol, scoreCol := "player1_answer", "player1_score"
	if player == domain.PlayerTwo {
		answerCol, scoreCol = "player2_answer", "player2_score"
	}
	if _, err := uuid.Parse(matchQuestionID); err != nil {
		return domain.ErrMatchQuestionNotFound
	}

	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var status string
		err := tx.NewSelect().
			TableExpr("game_match_quizzes AS gmq").
			Join("JOIN game_matches AS gm ON gm.id = gmq.match_id").
			ColumnExpr("gm.status").
			Where("gmq.id = ?", matchQuestionID).
			For("SHARE OF gm").
			Scan(ctx, &status)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrMatchQuestionNotFound
		}
		if err != nil {
			return fmt.Errorf("matchdb.RecordAnswer lock: %w", err)
		}
		if status == string(domain.StatusCompleted) {
			return domain.ErrMatchCompleted
		}

		_, err = tx.NewUpdate().
			Model((*matchQuestionRow)(nil)).
			Set("? = ?", bun.Ident(answerCol), answer).
			Set("? = ?", bun.Ident(scoreCol), score).
			Where("id = ?", matchQuestionID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("matchdb.RecordAnswer: %w", err)
		}
		return nil
	})
}

func (r *MatchRepository) ScoreTotals(ctx context.Context, matchID string) (domain.ScoreTotals, error) {
	t, err := scoreTotals(ctx, r.db, matchID)
	if err != nil {
		return domain.ScoreTotals{}, fmt.Errorf("matchdb.ScoreTotals: %w", err)
	}
	return t, nil
}

func (r *MatchRepository) FinalizeMatch(ctx context.Context, matchID string, endedAt time.Time, settle app.SettleFunc) (domain.Match, domain.Settlement, error) {
	var (
		final domain.Match
		st    domain.Settlement
	)
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var row matchRow
		res, err := tx.NewUpdate().
			Model((*matchRow)(nil)).
			Set("status = ?", string(domain.StatusCompleted)).
			Set("ended_at = ?", endedAt).
			Where("id = ?", matchID).
			Where("status = ?", string(domain.StatusReady)).
			Returning("*").
			Exec(ctx, &row)
		if err != nil {
			return fmt.Errorf("matchdb.FinalizeMatch: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return r.finalizeRejection(ctx, tx, matchID)
		}

		totals, err := scoreTotals(ctx, tx, matchID)
		if err != nil {
			return fmt.Errorf("matchdb.FinalizeMatch totals: %w", err)
		}
		match := row.toDomain()
		st = settle(match, totals)

		if st.WinnerID != nil {
			_, err = tx.NewUpdate().
				Model((*matchRow)(nil)).
				Set("winner_id = ?", *st.WinnerID).
				Where("id = ?", matchID).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("matchdb.FinalizeMatch winner: %w", err)
			}
			match.WinnerID = st.WinnerID
		}

		st.NewXP = make(map[string]int64, len(st.Awards))
		now := r.now().UTC()
		for _, award := range st.Awards {
			total, err := addXP(ctx, tx, award.UserID, award.Amount, now)
			if err != nil {
				return fmt.Errorf("matchdb.FinalizeMatch xp: %w", err)
			}
			st.NewXP[award.UserID] = total
		}
		final = match
		return nil
	})
	if err != nil {
		return domain.Match{}, domain.Settlement{}, err
	}
	return final, st, nil
}

func (r *MatchRepository) finalizeRejection(ctx context.Context, tx bun.Tx, matchID string) error {
	var status string
	err := tx.NewSelect().
		Model((*matchRow)(nil)).
		Column("status").
		Where("id = ?", matchID).
		Scan(ctx, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrMatchNotFound
	}
	if err != nil {
		return fmt.Errorf("matchdb.FinalizeMatch status: %w", err)
	}
	if status == string(domain.StatusCompleted) {
		return domain.ErrAlreadyFinalized
	}
	return domain.ErrMatchNotReady
}

func (r *MatchRepository) CountStale(ctx context.Context, before time.Time) (app.StaleCounts, error) {
	var rows []statusCount
	err := r.db.NewSelect().
		Model((*matchRow)(nil)).
		ColumnExpr("status").
		ColumnExpr("count(*) AS count").
		Where("status <> ?", string(domain.StatusCompleted)).
		Where("created_at < ?", before).
		Group("status").
		Scan(ctx, &rows)
	if err != nil {
		return app.StaleCounts{}, fmt.Errorf("matchdb.CountStale: %w", err)
	}
	var counts app.StaleCounts
	for _, row := range rows {
		switch domain.MatchStatus(row.Status) {
		case domain.StatusWaiting:
			counts.Waiting = row.Count
		case domain.StatusReady:
			counts.Ready = row.Count
		}
	}
	return counts, nil
}

type statusCount struct {
	Status string `bun:"status"`
	Count  int    `bun:"count"`
}

func scoreTotals(ctx context.Context, db bun.IDB, matchID string) (domain.ScoreTotals, error) {
	var t domain.ScoreTotals
	err := db.NewSelect().
		Model((*matchQuestionRow)(nil)).
		ColumnExpr("COALESCE(SUM(player1_score), 0)").
		ColumnExpr("COALESCE(SUM(player2_score), 0)").
		ColumnExpr("COUNT(player1_score)").
		ColumnExpr("COUNT(player2_score)").
		Where("match_id = ?", matchID).
		Scan(ctx, &t.Player1, &t.Player2, &t.Answered1, &t.Answered2)
	return t, err
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Field('C') == "23505" && (constraint == "" || pgErr.Field('n') == constraint)
}
