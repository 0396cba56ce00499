package repository

import (
	"context"
	"time"

	"prepaid-subscription/internal/domain/model"
)

// CodeRepository is the Code Store. Status changes go through the conditional
// methods below; each reports whether the row was in the expected state.
type CodeRepository interface {
	SaveBatch(ctx context.Context, tx Tx, codes []*model.Code) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Code, error)
	FindByCode(ctx context.Context, tx Tx, code string) (*model.Code, error)
	// ListAllCodes returns every code string ever issued, for collision checks.
	ListAllCodes(ctx context.Context, tx Tx) (map[string]struct{}, error)
	List(ctx context.Context, tx Tx, f model.CodeFilter) ([]*model.Code, int, error)
	CountByStatus(ctx context.Context, tx Tx, purchaseID string) (map[model.CodeStatus]int, error)
	CountByPurchase(ctx context.Context, tx Tx, purchaseID string) (int, error)
	// FindRedeemedBy returns codes currently redeemed by userID.
	FindRedeemedBy(ctx context.Context, tx Tx, userID string) ([]*model.Code, error)

	MarkRedeemed(ctx context.Context, tx Tx, id, userID string, at time.Time) (bool, error)
	MarkExpired(ctx context.Context, tx Tx, id string, at time.Time) (bool, error)
	RevokeAvailable(ctx context.Context, tx Tx, id, reason string, at time.Time) (bool, error)
	RevokeRedeemed(ctx context.Context, tx Tx, id, holderID, reason string, at time.Time) (bool, error)
	Reactivate(ctx context.Context, tx Tx, id, holderID string, at time.Time) (bool, error)
	MakeAvailable(ctx context.Context, tx Tx, id string, at time.Time) (bool, error)
	ExpireOverdue(ctx context.Context, tx Tx, at time.Time, limit int) (int, error)
}
