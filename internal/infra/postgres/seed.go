package postgres

import (
	"context"
	"fmt"

	"github.com/Scofield321/cipherford/internal/domain"
	"github.com/uptrace/bun"
)

// SeedBank upserts questions into community_quizzes and returns how many
// rows were written.
func SeedBank(ctx context.Context, db *bun.DB, questions []domain.BankQuestion) (int, error) {
	if len(questions) == 0 {
		return 0, nil
	}
	rows := make([]bankRow, 0, len(questions))
	for _, q := range questions {
		rows = append(rows, bankRow{
			ID:            q.ID,
			Question:      q.Question,
			Options:       nonNil(q.Options),
			CorrectAnswer: q.CorrectAnswer,
			Tags:          nonNil(q.Tags),
		})
	}
	res, err := db.NewInsert().
		Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("question = EXCLUDED.question").
		Set("options = EXCLUDED.options").
		Set("correct_answer = EXCLUDED.correct_answer").
		Set("tags = EXCLUDED.tags").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("bankdb.SeedBank: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
