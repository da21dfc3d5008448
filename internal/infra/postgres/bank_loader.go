package postgres

import (
	"context"
	"fmt"

	"github.com/Scofield321/cipherford/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// BankLoader reads the shared question bank from Postgres.
type BankLoader struct {
	pool *pgxpool.Pool
}

func NewBankLoader(pool *pgxpool.Pool) *BankLoader {
	return &BankLoader{pool: pool}
}

func (l *BankLoader) LoadBank(ctx context.Context) ([]domain.BankQuestion, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, question, options, correct_answer, tags FROM community_quizzes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load bank: %w", err)
	}
	defer rows.Close()

	var bank []domain.BankQuestion
	for rows.Next() {
		var q domain.BankQuestion
		if err := rows.Scan(&q.ID, &q.Question, &q.Options, &q.CorrectAnswer, &q.Tags); err != nil {
			return nil, fmt.Errorf("scan bank question: %w", err)
		}
		bank = append(bank, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load bank: %w", err)
	}
	return bank, nil
}
