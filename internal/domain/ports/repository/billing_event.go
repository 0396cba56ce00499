package repository

import (
	"context"

	"prepaid-subscription/internal/domain/model"
)

type BillingEventRepository interface {
	// IsProcessed reports whether the event already reached a final outcome.
	IsProcessed(ctx context.Context, tx Tx, eventID string) (bool, error)
	// Record stores the outcome. Failed outcomes may be overwritten by a later success.
	Record(ctx context.Context, tx Tx, e *model.ProcessedEvent) error
	List(ctx context.Context, tx Tx, outcome model.EventOutcome, limit, offset int) ([]*model.ProcessedEvent, int, error)
}
