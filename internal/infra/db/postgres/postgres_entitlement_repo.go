package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"prepaid-subscription/internal/domain"
	"prepaid-subscription/internal/domain/model"
	"prepaid-subscription/internal/domain/ports/repository"
)

var _ repository.EntitlementRepository = (*entitlementRepo)(nil)

const entitlementColumns = `id, user_id, source, external_customer_id, external_subscription_id, price_id, product_id, status, current_period_start, current_period_end, auto_renew, cancel_at_period_end, canceled_at, ended_at, code_id, duration_days, billing_event_at, created_at, updated_at`

const entitlementInsert = `
INSERT INTO entitlements (
  id, user_id, source, external_customer_id, external_subscription_id, price_id, product_id, status,
  current_period_start, current_period_end, auto_renew, cancel_at_period_end, canceled_at, ended_at,
  code_id, duration_days, billing_event_at, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19
)`

type entitlementRepo struct{ pool *pgxpool.Pool }

func NewEntitlementRepo(pool *pgxpool.Pool) *entitlementRepo {
	return &entitlementRepo{pool: pool}
}

func scanEntitlement(row pgx.Row) (*model.Entitlement, error) {
	e := &model.Entitlement{}
	if err := row.Scan(&e.ID, &e.UserID, &e.Source, &e.ExternalCustomerID, &e.ExternalSubscriptionID, &e.PriceID, &e.ProductID, &e.Status, &e.CurrentPeriodStart, &e.CurrentPeriodEnd, &e.AutoRenew, &e.CancelAtPeriodEnd, &e.CanceledAt, &e.EndedAt, &e.CodeID, &e.DurationDays, &e.BillingEventAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	return e, nil
}

func entitlementArgs(e *model.Entitlement) []interface{} {
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}
	return []interface{}{id, e.UserID, e.Source, e.ExternalCustomerID, e.ExternalSubscriptionID, e.PriceID, e.ProductID, e.Status,
		e.CurrentPeriodStart, e.CurrentPeriodEnd, e.AutoRenew, e.CancelAtPeriodEnd, e.CanceledAt, e.EndedAt,
		e.CodeID, e.DurationDays, e.BillingEventAt, e.CreatedAt, e.UpdatedAt}
}

func (r *entitlementRepo) FindByUserID(ctx context.Context, tx repository.Tx, userID string) (*model.Entitlement, error) {
	q := forUpdate(`SELECT `+entitlementColumns+` FROM entitlements WHERE user_id=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	return scanEntitlement(row)
}

func (r *entitlementRepo) FindBySubscriptionID(ctx context.Context, tx repository.Tx, subscriptionID string) (*model.Entitlement, error) {
	q := forUpdate(`SELECT `+entitlementColumns+` FROM entitlements WHERE external_subscription_id=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, subscriptionID)
	if err != nil {
		return nil, err
	}
	return scanEntitlement(row)
}

// Upsert keeps the row id, the billing watermark and a known customer id.
func (r *entitlementRepo) Upsert(ctx context.Context, tx repository.Tx, e *model.Entitlement) error {
	const q = entitlementInsert + `
ON CONFLICT (user_id) DO UPDATE SET
  source=EXCLUDED.source,
  external_customer_id=COALESCE(EXCLUDED.external_customer_id, entitlements.external_customer_id),
  external_subscription_id=EXCLUDED.external_subscription_id,
  price_id=EXCLUDED.price_id, product_id=EXCLUDED.product_id, status=EXCLUDED.status,
  current_period_start=EXCLUDED.current_period_start, current_period_end=EXCLUDED.current_period_end,
  auto_renew=EXCLUDED.auto_renew, cancel_at_period_end=EXCLUDED.cancel_at_period_end,
  canceled_at=EXCLUDED.canceled_at, ended_at=EXCLUDED.ended_at,
  code_id=EXCLUDED.code_id, duration_days=EXCLUDED.duration_days, updated_at=EXCLUDED.updated_at;`
	_, err := execSQL(ctx, r.pool, tx, q, entitlementArgs(e)...)
	return writeErr(err)
}

func (r *entitlementRepo) UpsertFromBilling(ctx context.Context, tx repository.Tx, e *model.Entitlement) (bool, error) {
	const q = entitlementInsert + `
ON CONFLICT (user_id) DO UPDATE SET
  source=EXCLUDED.source,
  external_customer_id=COALESCE(EXCLUDED.external_customer_id, entitlements.external_customer_id),
  external_subscription_id=EXCLUDED.external_subscription_id,
  price_id=EXCLUDED.price_id, product_id=EXCLUDED.product_id, status=EXCLUDED.status,
  current_period_start=EXCLUDED.current_period_start, current_period_end=EXCLUDED.current_period_end,
  auto_renew=EXCLUDED.auto_renew, cancel_at_period_end=EXCLUDED.cancel_at_period_end,
  canceled_at=EXCLUDED.canceled_at, ended_at=EXCLUDED.ended_at,
  code_id=EXCLUDED.code_id, duration_days=EXCLUDED.duration_days,
  billing_event_at=COALESCE(EXCLUDED.billing_event_at, entitlements.billing_event_at),
  updated_at=EXCLUDED.updated_at
WHERE entitlements.billing_event_at IS NULL
   OR EXCLUDED.billing_event_at IS NULL
   OR EXCLUDED.billing_event_at >= entitlements.billing_event_at;`
	return affected(execSQL(ctx, r.pool, tx, q, entitlementArgs(e)...))
}

func (r *entitlementRepo) LinkBilling(ctx context.Context, tx repository.Tx, userID, customerID, subscriptionID string) error {
	const q = `
INSERT INTO entitlements (id, user_id, source, external_customer_id, external_subscription_id, status, created_at, updated_at)
VALUES ($1, $2, 'billing', NULLIF($3, ''), NULLIF($4, ''), 'incomplete', NOW(), NOW())
ON CONFLICT (user_id) DO UPDATE SET
  external_customer_id=COALESCE(EXCLUDED.external_customer_id, entitlements.external_customer_id),
  external_subscription_id=COALESCE(EXCLUDED.external_subscription_id, entitlements.external_subscription_id),
  updated_at=NOW();`
	_, err := execSQL(ctx, r.pool, tx, q, uuid.NewString(), userID, customerID, subscriptionID)
	return writeErr(err)
}

func (r *entitlementRepo) SetStatusIf(ctx context.Context, tx repository.Tx, userID string, from []model.EntitlementStatus, to model.EntitlementStatus, at time.Time) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}
	const q = `
UPDATE entitlements
   SET status=$3,
       canceled_at=CASE WHEN $3='canceled' THEN $4 ELSE canceled_at END,
       updated_at=$4
 WHERE user_id=$1 AND status=ANY($2);`
	return affected(execSQL(ctx, r.pool, tx, q, userID, states, string(to), at))
}

func (r *entitlementRepo) CancelForCode(ctx context.Context, tx repository.Tx, userID, codeID string, at time.Time) (bool, error) {
	const q = `
UPDATE entitlements
   SET status='canceled', canceled_at=$3, ended_at=$3, updated_at=$3
 WHERE user_id=$1 AND code_id=$2 AND status<>'canceled';`
	return affected(execSQL(ctx, r.pool, tx, q, userID, codeID, at))
}

// ExpireLapsed cancels code-backed entitlements whose period has ended.
// Billing-backed rows are left to the billing provider's events.
func (r *entitlementRepo) ExpireLapsed(ctx context.Context, tx repository.Tx, at time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 1000
	}
	const q = `
UPDATE entitlements SET status='canceled', ended_at=$1, updated_at=$1
 WHERE id IN (
   SELECT id FROM entitlements
    WHERE source='code' AND status='active' AND current_period_end <= $1
    ORDER BY current_period_end ASC
    LIMIT $2
    FOR UPDATE SKIP LOCKED
 );`
	tag, err := execSQL(ctx, r.pool, tx, q, at, limit)
	if err != nil {
		return 0, writeErr(err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *entitlementRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.EntitlementStatus]int, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT status, COUNT(*) FROM entitlements GROUP BY status;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[model.EntitlementStatus]int{}
	for rows.Next() {
		var s model.EntitlementStatus
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[s] = n
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
