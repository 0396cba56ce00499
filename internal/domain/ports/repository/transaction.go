package repository

import (
	"context"

	"prepaid-subscription/internal/domain/model"
)

type TransactionRepository interface {
	// Append inserts t; a duplicate ExternalEventID yields domain.ErrAlreadyExists.
	Append(ctx context.Context, tx Tx, t *model.Transaction) error
	ExistsByEventID(ctx context.Context, tx Tx, eventID string) (bool, error)
	FindByChargeID(ctx context.Context, tx Tx, chargeID string) (*model.Transaction, error)
	MarkRefunded(ctx context.Context, tx Tx, id string, amountRefunded int64, full bool) error
	ListByUser(ctx context.Context, tx Tx, userID string, limit, offset int) ([]*model.Transaction, int, error)
}
