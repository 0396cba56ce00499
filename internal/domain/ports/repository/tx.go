package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside a database transaction and hands the
// transaction handle to fn as tx.
//
// Repositories accept tx on every method. A nil tx means "use the pool";
// a pgx.Tx makes reads take row locks where the repository supports it.
//
//	err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
//		ok, err := codes.MarkRedeemed(ctx, tx, id, userID, now)
//		...
//		return entitlements.Upsert(ctx, tx, e)
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
	// LockUser takes a transaction-scoped lock keyed by userID. No-op outside a transaction.
	LockUser(ctx context.Context, tx Tx, userID string) error
}
