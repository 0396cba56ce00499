package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"prepaid-subscription/internal/domain"
	"prepaid-subscription/internal/domain/model"
	"prepaid-subscription/internal/domain/ports/adapter"
	"prepaid-subscription/internal/domain/ports/repository"
	"prepaid-subscription/internal/infra/metrics"
)

// Compile-time check
var _ EntitlementUseCase = (*entitlementUC)(nil)

type EntitlementUseCase interface {
	Get(ctx context.Context, userID string) (*model.Entitlement, error)
	// Status never fails for unknown users; they simply have no access.
	Status(ctx context.Context, userID string) (*model.EntitlementSummary, error)
	Cancel(ctx context.Context, userID string) error
	PortalSession(ctx context.Context, userID string) (string, error)
	Transactions(ctx context.Context, userID string, limit, offset int) ([]*model.Transaction, int, error)
	// ExpireLapsed cancels code-based entitlements whose period has ended.
	ExpireLapsed(ctx context.Context, limit int) (int, error)
	Stats(ctx context.Context) (map[model.EntitlementStatus]int, error)
}

var cancellable = []model.EntitlementStatus{
	model.EntitlementIncomplete,
	model.EntitlementTrialing,
	model.EntitlementActive,
	model.EntitlementPastDue,
	model.EntitlementUnpaid,
	model.EntitlementPaused,
}

type entitlementUC struct {
	entitlements repository.EntitlementRepository
	txs          repository.TransactionRepository
	gateway      adapter.BillingGateway
	notifier     *Notifier
	now          func() time.Time
	log          *zerolog.Logger
}

func NewEntitlementUseCase(
	entitlements repository.EntitlementRepository,
	txs repository.TransactionRepository,
	gateway adapter.BillingGateway,
	notifier *Notifier,
	logger *zerolog.Logger,
) *entitlementUC {
	l := logger.With().Str("component", "EntitlementUseCase").Logger()
	return &entitlementUC{entitlements: entitlements, txs: txs, gateway: gateway, notifier: notifier, now: time.Now, log: &l}
}

func (u *entitlementUC) Get(ctx context.Context, userID string) (*model.Entitlement, error) {
	return u.entitlements.FindByUserID(ctx, repository.NoTX, userID)
}

func (u *entitlementUC) Status(ctx context.Context, userID string) (*model.EntitlementSummary, error) {
	e, err := u.entitlements.FindByUserID(ctx, repository.NoTX, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return &model.EntitlementSummary{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.EntitlementSummary{
		HasAccess:         e.HasAccess(u.now().UTC()),
		Status:            e.Status,
		CurrentPeriodEnd:  e.CurrentPeriodEnd,
		CancelAtPeriodEnd: e.CancelAtPeriodEnd,
		IsCodeBased:       e.IsCodeBased(),
	}, nil
}

func (u *entitlementUC) Cancel(ctx context.Context, userID string) error {
	e, err := u.entitlements.FindByUserID(ctx, repository.NoTX, userID)
	if err != nil {
		return err
	}
	if e.Status == model.EntitlementCanceled {
		return nil
	}
	if err := model.ValidateEntitlementTransition(e.Status, model.EntitlementCanceled); err != nil {
		return err
	}
	ok, err := u.entitlements.SetStatusIf(ctx, repository.NoTX, userID, cancellable, model.EntitlementCanceled, u.now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: entitlement for %s changed concurrently", domain.ErrInvalidTransition, userID)
	}
	u.notifier.Notify(ctx, adapter.EventEntitlementChange, map[string]string{"user_id": userID, "status": string(model.EntitlementCanceled)})
	return nil
}

func (u *entitlementUC) PortalSession(ctx context.Context, userID string) (string, error) {
	if u.gateway == nil {
		return "", domain.ErrBillingUnavailable
	}
	e, err := u.entitlements.FindByUserID(ctx, repository.NoTX, userID)
	if err != nil {
		return "", err
	}
	if e.ExternalCustomerID == nil {
		return "", fmt.Errorf("%w: no billing customer for user", domain.ErrNotFound)
	}
	return u.gateway.CreatePortalSession(ctx, *e.ExternalCustomerID)
}

func (u *entitlementUC) Transactions(ctx context.Context, userID string, limit, offset int) ([]*model.Transaction, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return u.txs.ListByUser(ctx, repository.NoTX, userID, limit, max(offset, 0))
}

func (u *entitlementUC) ExpireLapsed(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 1000
	}
	n, err := u.entitlements.ExpireLapsed(ctx, repository.NoTX, u.now().UTC(), limit)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.AddEntitlementsLapsed(n)
		u.log.Info().Int("count", n).Msg("lapsed code entitlements canceled")
	}
	return n, nil
}

func (u *entitlementUC) Stats(ctx context.Context) (map[model.EntitlementStatus]int, error) {
	counts, err := u.entitlements.CountByStatus(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	metrics.SetEntitlementsTotal(counts)
	return counts, nil
}
