package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"prepaid-subscription/internal/domain"
	"prepaid-subscription/internal/domain/model"
	"prepaid-subscription/internal/domain/ports/repository"
)

var _ repository.TransactionRepository = (*transactionRepo)(nil)

const transactionColumns = `id, user_id, purchase_id, code_id, external_event_id, external_customer_id, external_subscription_id, external_invoice_id, external_payment_intent_id, external_charge_id, raw_event_type, type, status, amount, amount_refunded, currency, price_id, product_id, period_start, period_end, failure_code, failure_message, description, COALESCE(metadata, '{}'::jsonb), created_at`

type transactionRepo struct{ pool *pgxpool.Pool }

func NewTransactionRepo(pool *pgxpool.Pool) *transactionRepo {
	return &transactionRepo{pool: pool}
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	t := &model.Transaction{}
	if err := row.Scan(&t.ID, &t.UserID, &t.PurchaseID, &t.CodeID, &t.ExternalEventID, &t.ExternalCustomerID, &t.ExternalSubscriptionID, &t.ExternalInvoiceID, &t.ExternalPaymentIntentID, &t.ExternalChargeID, &t.RawEventType, &t.Type, &t.Status, &t.Amount, &t.AmountRefunded, &t.Currency, &t.PriceID, &t.ProductID, &t.PeriodStart, &t.PeriodEnd, &t.FailureCode, &t.FailureMessage, &t.Description, &t.Metadata, &t.CreatedAt); err != nil {
		return nil, scanErr(err)
	}
	return t, nil
}

// Append is insert-only; the audit trail is never rewritten except for refund amounts.
func (r *transactionRepo) Append(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	const q = `
INSERT INTO transactions (
  id, user_id, purchase_id, code_id, external_event_id, external_customer_id, external_subscription_id, external_invoice_id,
  external_payment_intent_id, external_charge_id, raw_event_type, type, status, amount, amount_refunded, currency,
  price_id, product_id, period_start, period_end, failure_code, failure_message, description, metadata, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25
);`
	meta := t.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	_, err := execSQL(ctx, r.pool, tx, q, t.ID, t.UserID, t.PurchaseID, t.CodeID, t.ExternalEventID, t.ExternalCustomerID, t.ExternalSubscriptionID, t.ExternalInvoiceID,
		t.ExternalPaymentIntentID, t.ExternalChargeID, t.RawEventType, t.Type, t.Status, t.Amount, t.AmountRefunded, t.Currency,
		t.PriceID, t.ProductID, t.PeriodStart, t.PeriodEnd, t.FailureCode, t.FailureMessage, t.Description, meta, t.CreatedAt)
	return writeErr(err)
}

func (r *transactionRepo) ExistsByEventID(ctx context.Context, tx repository.Tx, eventID string) (bool, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE external_event_id=$1);`, eventID)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return ok, nil
}

// FindByChargeID returns the original payment row for a charge, never a refund row.
func (r *transactionRepo) FindByChargeID(ctx context.Context, tx repository.Tx, chargeID string) (*model.Transaction, error) {
	q := forUpdate(`SELECT `+transactionColumns+` FROM transactions WHERE external_charge_id=$1 AND type<>'refund' ORDER BY created_at ASC LIMIT 1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, chargeID)
	if err != nil {
		return nil, err
	}
	return scanTransaction(row)
}

func (r *transactionRepo) MarkRefunded(ctx context.Context, tx repository.Tx, id string, amountRefunded int64, full bool) error {
	const q = `
UPDATE transactions
   SET amount_refunded=GREATEST(amount_refunded, $2),
       status=CASE WHEN $3 THEN 'refunded' ELSE status END
 WHERE id=$1;`
	ok, err := affected(execSQL(ctx, r.pool, tx, q, id, amountRefunded, full))
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	return nil
}

func (r *transactionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit, offset int) ([]*model.Transaction, int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM transactions WHERE user_id=$1;`, userID)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := row.Scan(&total); err != nil {
		return nil, 0, domain.ErrReadDatabaseRow
	}

	q := `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, pageLimit(limit, 50, 200), max(offset, 0))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, domain.ErrReadDatabaseRow
	}
	return out, total, nil
}
