package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"prepaid-subscription/internal/domain"
	"prepaid-subscription/internal/domain/model"
	"prepaid-subscription/internal/domain/ports/repository"
)

var _ repository.PurchaseRepository = (*purchaseRepo)(nil)

const purchaseColumns = `id, issuer_id, source, external_customer_id, external_subscription_id, external_checkout_id, external_payment_intent_id, price_id, product_id, quantity, unit_amount, total_amount, currency, status, duration_days, codes_generated, paid_at, COALESCE(metadata, '{}'::jsonb), created_at, updated_at`

type purchaseRepo struct{ pool *pgxpool.Pool }

func NewPurchaseRepo(pool *pgxpool.Pool) *purchaseRepo {
	return &purchaseRepo{pool: pool}
}

func scanPurchase(row pgx.Row) (*model.Purchase, error) {
	p := &model.Purchase{}
	if err := row.Scan(&p.ID, &p.IssuerID, &p.Source, &p.ExternalCustomerID, &p.ExternalSubscriptionID, &p.ExternalCheckoutID, &p.ExternalPaymentIntentID, &p.PriceID, &p.ProductID, &p.Quantity, &p.UnitAmount, &p.TotalAmount, &p.Currency, &p.Status, &p.DurationDays, &p.CodesGenerated, &p.PaidAt, &p.Metadata, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	return p, nil
}

// Save inserts a new purchase. A second purchase for the same billing
// subscription or checkout session yields domain.ErrAlreadyExists.
func (r *purchaseRepo) Save(ctx context.Context, tx repository.Tx, p *model.Purchase) error {
	const q = `
INSERT INTO purchases (
  id, issuer_id, source, external_customer_id, external_subscription_id, external_checkout_id, external_payment_intent_id,
  price_id, product_id, quantity, unit_amount, total_amount, currency, status, duration_days, codes_generated, paid_at, metadata, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20
);`
	meta := p.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.IssuerID, p.Source, p.ExternalCustomerID, p.ExternalSubscriptionID, p.ExternalCheckoutID, p.ExternalPaymentIntentID,
		p.PriceID, p.ProductID, p.Quantity, p.UnitAmount, p.TotalAmount, p.Currency, p.Status, p.DurationDays, p.CodesGenerated, p.PaidAt, meta, p.CreatedAt, p.UpdatedAt)
	return writeErr(err)
}

func (r *purchaseRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Purchase, error) {
	q := forUpdate(`SELECT `+purchaseColumns+` FROM purchases WHERE id=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPurchase(row)
}

func (r *purchaseRepo) FindByExternalRef(ctx context.Context, tx repository.Tx, subscriptionID, checkoutID string) (*model.Purchase, error) {
	if subscriptionID == "" && checkoutID == "" {
		return nil, domain.ErrNotFound
	}
	const q = `
SELECT ` + purchaseColumns + ` FROM purchases
 WHERE ($1 <> '' AND external_subscription_id=$1) OR ($2 <> '' AND external_checkout_id=$2)
 ORDER BY (external_subscription_id IS NOT DISTINCT FROM NULLIF($1, '')) DESC
 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, subscriptionID, checkoutID)
	if err != nil {
		return nil, err
	}
	return scanPurchase(row)
}

func (r *purchaseRepo) List(ctx context.Context, tx repository.Tx, limit, offset int) ([]*model.Purchase, int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM purchases;`)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := row.Scan(&total); err != nil {
		return nil, 0, domain.ErrReadDatabaseRow
	}

	q := `SELECT ` + purchaseColumns + ` FROM purchases ORDER BY created_at DESC LIMIT $1 OFFSET $2;`
	out, err := r.collect(ctx, tx, q, pageLimit(limit, 50, 500), max(offset, 0))
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *purchaseRepo) LatestCustomerID(ctx context.Context, tx repository.Tx, issuerID string) (string, error) {
	const q = `
SELECT external_customer_id FROM purchases
 WHERE issuer_id=$1 AND source='checkout' AND external_customer_id IS NOT NULL
 ORDER BY created_at DESC
 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, issuerID)
	if err != nil {
		return "", err
	}
	var id string
	if err := row.Scan(&id); err != nil {
		return "", scanErr(err)
	}
	return id, nil
}

func (r *purchaseRepo) MarkCodesGenerated(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	const q = `UPDATE purchases SET codes_generated=TRUE, updated_at=NOW() WHERE id=$1 AND codes_generated=FALSE;`
	return affected(execSQL(ctx, r.pool, tx, q, id))
}

func (r *purchaseRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, from, to model.PurchaseStatus) (bool, error) {
	const q = `UPDATE purchases SET status=$3, updated_at=NOW() WHERE id=$1 AND status=$2;`
	return affected(execSQL(ctx, r.pool, tx, q, id, from, to))
}

func (r *purchaseRepo) ListCodesPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Purchase, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + purchaseColumns + ` FROM purchases WHERE status='completed' AND codes_generated=FALSE AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	return r.collect(ctx, tx, q, olderThan, limit)
}

func (r *purchaseRepo) collect(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Purchase, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
