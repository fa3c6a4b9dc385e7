package postgres

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"consultd/internal/domain"
)

type OutboxRepo struct {
	db *bun.DB
}

func NewOutboxRepo(db *bun.DB) *OutboxRepo {
	return &OutboxRepo{db: db}
}

// PublishPending claims a batch with SKIP LOCKED so several publishers can
// drain the table without handing out the same event twice.
func (r *OutboxRepo) PublishPending(ctx context.Context, limit int, fn func(ctx context.Context, events []domain.OutboxEvent) error) (int, error) {
	if limit <= 0 {
		limit = 50
	}

	var published int
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var rows []domain.OutboxEvent
		err := tx.NewSelect().
			Model(&rows).
			Where("published_at IS NULL").
			OrderExpr("id ASC").
			Limit(limit).
			For("UPDATE SKIP LOCKED").
			Scan(ctx)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		if err := fn(ctx, rows); err != nil {
			return err
		}

		ids := make([]int64, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		_, err = tx.NewUpdate().
			Model((*domain.OutboxEvent)(nil)).
			Set("published_at = ?", time.Now().UTC()).
			Where("id IN (?)", bun.In(ids)).
			Exec(ctx)
		if err != nil {
			return err
		}
		published = len(rows)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}
