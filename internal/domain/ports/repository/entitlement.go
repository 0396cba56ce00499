package repository

import (
	"context"
	"time"

	"prepaid-subscription/internal/domain/model"
)

// EntitlementRepository writes are upserts keyed by user id.
type EntitlementRepository interface {
	FindByUserID(ctx context.Context, tx Tx, userID string) (*model.Entitlement, error)
	FindBySubscriptionID(ctx context.Context, tx Tx, subscriptionID string) (*model.Entitlement, error)
	// Upsert replaces the code-driven fields of the user's entitlement.
	Upsert(ctx context.Context, tx Tx, e *model.Entitlement) error
	// UpsertFromBilling applies billing fields unless a newer event was already applied.
	// Returns false when the update was stale and skipped.
	UpsertFromBilling(ctx context.Context, tx Tx, e *model.Entitlement) (bool, error)
	// LinkBilling records customer/subscription ids without touching status.
	LinkBilling(ctx context.Context, tx Tx, userID, customerID, subscriptionID string) error
	// SetStatusIf moves userID's entitlement to `to` when its status is one of `from`.
	SetStatusIf(ctx context.Context, tx Tx, userID string, from []model.EntitlementStatus, to model.EntitlementStatus, at time.Time) (bool, error)
	// CancelForCode cancels the entitlement only while it is still backed by codeID.
	CancelForCode(ctx context.Context, tx Tx, userID, codeID string, at time.Time) (bool, error)
	ExpireLapsed(ctx context.Context, tx Tx, at time.Time, limit int) (int, error)
	CountByStatus(ctx context.Context, tx Tx) (map[model.EntitlementStatus]int, error)
}
