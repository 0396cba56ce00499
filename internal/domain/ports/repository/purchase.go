package repository

import (
	"context"
	"time"

	"prepaid-subscription/internal/domain/model"
)

type PurchaseRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Purchase) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Purchase, error)
	// FindByExternalRef looks up by billing subscription id first, then checkout session id.
	FindByExternalRef(ctx context.Context, tx Tx, subscriptionID, checkoutID string) (*model.Purchase, error)
	List(ctx context.Context, tx Tx, limit, offset int) ([]*model.Purchase, int, error)
	// MarkCodesGenerated flips codes_generated only if it is still false.
	MarkCodesGenerated(ctx context.Context, tx Tx, id string) (bool, error)
	UpdateStatus(ctx context.Context, tx Tx, id string, from, to model.PurchaseStatus) (bool, error)
	ListCodesPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Purchase, error)
	// LatestCustomerID returns the billing customer of the issuer's newest paid purchase.
	LatestCustomerID(ctx context.Context, tx Tx, issuerID string) (string, error)
}
