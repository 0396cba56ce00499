package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"prepaid-subscription/internal/domain"
	"prepaid-subscription/internal/domain/model"
	"prepaid-subscription/internal/domain/ports/repository"
)

var _ repository.CodeRepository = (*codeRepo)(nil)

const codeColumns = `id, purchase_id, issuer_id, code, status, price_id, product_id, duration_days, expires_at, redeemed_by, redeemed_at, revoked_at, revoked_reason, previously_redeemed_by, created_at, updated_at`

type codeRepo struct{ pool *pgxpool.Pool }

func NewCodeRepo(pool *pgxpool.Pool) *codeRepo {
	return &codeRepo{pool: pool}
}

func scanCode(row pgx.Row) (*model.Code, error) {
	c := &model.Code{}
	if err := row.Scan(&c.ID, &c.PurchaseID, &c.IssuerID, &c.Code, &c.Status, &c.PriceID, &c.ProductID, &c.DurationDays, &c.ExpiresAt, &c.RedeemedBy, &c.RedeemedAt, &c.RevokedAt, &c.RevokedReason, &c.PreviouslyRedeemedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	return c, nil
}

// SaveBatch inserts all codes with one statement; a collision on the code
// column rejects the whole batch with domain.ErrAlreadyExists.
func (r *codeRepo) SaveBatch(ctx context.Context, tx repository.Tx, codes []*model.Code) error {
	if len(codes) == 0 {
		return nil
	}
	const cols = 10
	var b strings.Builder
	b.WriteString(`INSERT INTO subscription_codes (id, purchase_id, issuer_id, code, status, price_id, product_id, duration_days, expires_at, created_at) VALUES `)
	args := make([]interface{}, 0, len(codes)*cols)
	for i, c := range codes {
		if i > 0 {
			b.WriteString(",")
		}
		n := i * cols
		fmt.Fprintf(&b, "($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)", n+1, n+2, n+3, n+4, n+5, n+6, n+7, n+8, n+9, n+10)
		args = append(args, c.ID, c.PurchaseID, c.IssuerID, c.Code, c.Status, c.PriceID, c.ProductID, c.DurationDays, c.ExpiresAt, c.CreatedAt)
	}
	b.WriteString(";")

	if _, err := execSQL(ctx, r.pool, tx, b.String(), args...); err != nil {
		return writeErr(err)
	}
	return nil
}

func (r *codeRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Code, error) {
	q := forUpdate(`SELECT `+codeColumns+` FROM subscription_codes WHERE id=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanCode(row)
}

func (r *codeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Code, error) {
	q := forUpdate(`SELECT `+codeColumns+` FROM subscription_codes WHERE code=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, code)
	if err != nil {
		return nil, err
	}
	return scanCode(row)
}

func (r *codeRepo) ListAllCodes(ctx context.Context, tx repository.Tx) (map[string]struct{}, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT code FROM subscription_codes;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[c] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *codeRepo) List(ctx context.Context, tx repository.Tx, f model.CodeFilter) ([]*model.Code, int, error) {
	where := []string{"TRUE"}
	var args []interface{}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	if f.PurchaseID != "" {
		args = append(args, f.PurchaseID)
		where = append(where, fmt.Sprintf("purchase_id=$%d", len(args)))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+strings.ToUpper(s)+"%")
		where = append(where, fmt.Sprintf("code LIKE $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM subscription_codes WHERE `+cond+`;`, args...)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := row.Scan(&total); err != nil {
		return nil, 0, domain.ErrReadDatabaseRow
	}

	args = append(args, pageLimit(f.Limit, 50, 500), max(f.Offset, 0))
	q := fmt.Sprintf(`SELECT %s FROM subscription_codes WHERE %s ORDER BY created_at DESC, code ASC LIMIT $%d OFFSET $%d;`, codeColumns, cond, len(args)-1, len(args))
	codes, err := r.collect(ctx, tx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	return codes, total, nil
}

func (r *codeRepo) CountByStatus(ctx context.Context, tx repository.Tx, purchaseID string) (map[model.CodeStatus]int, error) {
	q := `SELECT status, COUNT(*) FROM subscription_codes GROUP BY status;`
	var args []interface{}
	if purchaseID != "" {
		q = `SELECT status, COUNT(*) FROM subscription_codes WHERE purchase_id=$1 GROUP BY status;`
		args = append(args, purchaseID)
	}
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[model.CodeStatus]int{}
	for rows.Next() {
		var s model.CodeStatus
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

func (r *codeRepo) CountByPurchase(ctx context.Context, tx repository.Tx, purchaseID string) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM subscription_codes WHERE purchase_id=$1;`, purchaseID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *codeRepo) FindRedeemedBy(ctx context.Context, tx repository.Tx, userID string) ([]*model.Code, error) {
	q := `SELECT ` + codeColumns + ` FROM subscription_codes WHERE status='redeemed' AND redeemed_by=$1 ORDER BY redeemed_at DESC;`
	return r.collect(ctx, tx, q, userID)
}

func (r *codeRepo) MarkRedeemed(ctx context.Context, tx repository.Tx, id, userID string, at time.Time) (bool, error) {
	const q = `
UPDATE subscription_codes
   SET status='redeemed', redeemed_by=$2, redeemed_at=$3, previously_redeemed_by=NULL, updated_at=$3
 WHERE id=$1 AND status='available' AND expires_at > $3;`
	return affected(execSQL(ctx, r.pool, tx, q, id, userID, at))
}

func (r *codeRepo) MarkExpired(ctx context.Context, tx repository.Tx, id string, at time.Time) (bool, error) {
	const q = `UPDATE subscription_codes SET status='expired', updated_at=$2 WHERE id=$1 AND status='available' AND expires_at <= $2;`
	return affected(execSQL(ctx, r.pool, tx, q, id, at))
}

func (r *codeRepo) RevokeAvailable(ctx context.Context, tx repository.Tx, id, reason string, at time.Time) (bool, error) {
	const q = `
UPDATE subscription_codes
   SET status='revoked', revoked_at=$3, revoked_reason=$2, updated_at=$3
 WHERE id=$1 AND status='available';`
	return affected(execSQL(ctx, r.pool, tx, q, id, reason, at))
}

// RevokeRedeemed returns the code to the pool and remembers the holder so the
// revocation can be undone by Reactivate.
func (r *codeRepo) RevokeRedeemed(ctx context.Context, tx repository.Tx, id, holderID, reason string, at time.Time) (bool, error) {
	const q = `
UPDATE subscription_codes
   SET status='available', previously_redeemed_by=redeemed_by, redeemed_by=NULL, redeemed_at=NULL,
       revoked_at=$4, revoked_reason=$3, updated_at=$4
 WHERE id=$1 AND status='redeemed' AND redeemed_by=$2;`
	return affected(execSQL(ctx, r.pool, tx, q, id, holderID, reason, at))
}

func (r *codeRepo) Reactivate(ctx context.Context, tx repository.Tx, id, holderID string, at time.Time) (bool, error) {
	const q = `
UPDATE subscription_codes
   SET status='redeemed', redeemed_by=$2, redeemed_at=$3, previously_redeemed_by=NULL,
       revoked_at=NULL, revoked_reason=NULL, updated_at=$3
 WHERE id=$1 AND status='available' AND previously_redeemed_by=$2;`
	return affected(execSQL(ctx, r.pool, tx, q, id, holderID, at))
}

func (r *codeRepo) MakeAvailable(ctx context.Context, tx repository.Tx, id string, at time.Time) (bool, error) {
	const q = `
UPDATE subscription_codes
   SET status='available', previously_redeemed_by=NULL, revoked_at=NULL, revoked_reason=NULL, updated_at=$2
 WHERE id=$1 AND status='revoked';`
	return affected(execSQL(ctx, r.pool, tx, q, id, at))
}

func (r *codeRepo) ExpireOverdue(ctx context.Context, tx repository.Tx, at time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 1000
	}
	const q = `
UPDATE subscription_codes SET status='expired', updated_at=$1
 WHERE id IN (
   SELECT id FROM subscription_codes
    WHERE status='available' AND expires_at <= $1
    ORDER BY expires_at ASC
    LIMIT $2
    FOR UPDATE SKIP LOCKED
 );`
	tag, err := execSQL(ctx, r.pool, tx, q, at, limit)
	if err != nil {
		return 0, writeErr(err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *codeRepo) collect(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Code, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Code
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
