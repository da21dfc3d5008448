package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Scofield321/cipherford/internal/domain"
	"github.com/uptrace/bun"
)

// XPRepository implements app.XPRepository on the user_xp table.
type XPRepository struct {
	db  *bun.DB
	now func() time.Time
}

func NewXPRepository(db *bun.DB) *XPRepository {
	return &XPRepository{db: db, now: time.Now}
}

func (r *XPRepository) AddXP(ctx context.Context, userID string, amount int64) (int64, error) {
	total, err := addXP(ctx, r.db, userID, amount, r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("xpdb.AddXP: %w", err)
	}
	return total, nil
}

func (r *XPRepository) XP(ctx context.Context, userID string) (domain.PlayerXP, bool, error) {
	var row userXPRow
	err := r.db.NewSelect().Model(&row).Where("user_id = ?", userID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PlayerXP{UserID: userID}, false, nil
	}
	if err != nil {
		return domain.PlayerXP{}, false, fmt.Errorf("xpdb.XP: %w", err)
	}
	return toPlayerXP(row), true, nil
}

func (r *XPRepository) TopXP(ctx context.Context, limit int) ([]domain.PlayerXP, error) {
	var rows []userXPRow
	err := r.db.NewSelect().
		Model(&rows).
		Order("xp DESC", "user_id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("xpdb.TopXP: %w", err)
	}
	out := make([]domain.PlayerXP, 0, len(rows))
	for _, row := range rows {
		out = append(out, toPlayerXP(row))
	}
	return out, nil
}

// addXP upserts with an in-database increment so concurrent awards never lose
// an update.
func addXP(ctx context.Context, db bun.IDB, userID string, amount int64, now time.Time) (int64, error) {
	var total int64
	err := db.QueryRowContext(ctx, `
		INSERT INTO user_xp (user_id, xp, last_updated) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE
		SET xp = user_xp.xp + EXCLUDED.xp, last_updated = EXCLUDED.last_updated
		RETURNING xp`, userID, amount, now).Scan(&total)
	return total, err
}

func toPlayerXP(row userXPRow) domain.PlayerXP {
	return domain.PlayerXP{UserID: row.UserID, XP: row.XP, LastUpdated: row.LastUpdated.UTC()}
}
