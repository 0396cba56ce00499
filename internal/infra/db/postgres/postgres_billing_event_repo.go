package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"prepaid-subscription/internal/domain"
	"prepaid-subscription/internal/domain/model"
	"prepaid-subscription/internal/domain/ports/repository"
)

var _ repository.BillingEventRepository = (*billingEventRepo)(nil)

type billingEventRepo struct{ pool *pgxpool.Pool }

func NewBillingEventRepo(pool *pgxpool.Pool) *billingEventRepo {
	return &billingEventRepo{pool: pool}
}

func (r *billingEventRepo) IsProcessed(ctx context.Context, tx repository.Tx, eventID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM billing_events WHERE id=$1 AND outcome<>'failed');`
	row, err := pickRow(ctx, r.pool, tx, q, eventID)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return ok, nil
}

// Record stores the outcome of an event. Only a failed outcome is replaced.
func (r *billingEventRepo) Record(ctx context.Context, tx repository.Tx, e *model.ProcessedEvent) error {
	const q = `
INSERT INTO billing_events (id, type, outcome, error, received_at, processed_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET
  outcome=EXCLUDED.outcome, error=EXCLUDED.error, processed_at=EXCLUDED.processed_at
WHERE billing_events.outcome='failed';`
	_, err := execSQL(ctx, r.pool, tx, q, e.ID, e.Type, e.Outcome, e.Error, e.ReceivedAt, e.ProcessedAt)
	return writeErr(err)
}

func (r *billingEventRepo) List(ctx context.Context, tx repository.Tx, outcome model.EventOutcome, limit, offset int) ([]*model.ProcessedEvent, int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM billing_events WHERE ($1='' OR outcome=$1);`, string(outcome))
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := row.Scan(&total); err != nil {
		return nil, 0, domain.ErrReadDatabaseRow
	}

	const q = `
SELECT id, type, outcome, error, received_at, processed_at FROM billing_events
 WHERE ($1='' OR outcome=$1)
 ORDER BY processed_at DESC
 LIMIT $2 OFFSET $3;`
	rows, err := queryRows(ctx, r.pool, tx, q, string(outcome), pageLimit(limit, 50, 500), max(offset, 0))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*model.ProcessedEvent
	for rows.Next() {
		e := &model.ProcessedEvent{}
		if err := rows.Scan(&e.ID, &e.Type, &e.Outcome, &e.Error, &e.ReceivedAt, &e.ProcessedAt); err != nil {
			return nil, 0, domain.ErrReadDatabaseRow
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, domain.ErrReadDatabaseRow
	}
	return out, total, nil
}
