package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"prepaid-subscription/internal/domain"
	"prepaid-subscription/internal/domain/model"
	"prepaid-subscription/internal/domain/ports/adapter"
	"prepaid-subscription/internal/domain/ports/repository"
	"prepaid-subscription/internal/infra/logging"
	"prepaid-subscription/internal/infra/metrics"
)

// Compile-time check
var _ RevocationUseCase = (*revocationUC)(nil)

// RevocationUseCase holds the admin overrides on a code. Each call checks the
// current status and fails with a descriptive error instead of doing nothing.
type RevocationUseCase interface {
	Revoke(ctx context.Context, codeID, reason, adminID string) (*model.Code, error)
	Reactivate(ctx context.Context, codeID, adminID string) (*model.Code, error)
	MakeAvailable(ctx context.Context, codeID, adminID string) (*model.Code, error)
}

type revocationUC struct {
	codes        repository.CodeRepository
	entitlements repository.EntitlementRepository
	txs          repository.TransactionRepository
	tm           repository.TransactionManager
	notifier     *Notifier
	now          func() time.Time
	log          *zerolog.Logger
}

func NewRevocationUseCase(
	codes repository.CodeRepository,
	entitlements repository.EntitlementRepository,
	txs repository.TransactionRepository,
	tm repository.TransactionManager,
	notifier *Notifier,
	logger *zerolog.Logger,
) *revocationUC {
	l := logger.With().Str("component", "RevocationUseCase").Logger()
	return &revocationUC{
		codes:        codes,
		entitlements: entitlements,
		txs:          txs,
		tm:           tm,
		notifier:     notifier,
		now:          time.Now,
		log:          &l,
	}
}

func changedConcurrently(c *model.Code) error {
	return fmt.Errorf("%w: code %s changed concurrently", domain.ErrInvalidTransition, c.ID)
}

func (u *revocationUC) Revoke(ctx context.Context, codeID, reason, adminID string) (*model.Code, error) {
	defer logging.TraceDuration(u.log, "RevocationUC.Revoke")()
	c, err := u.codes.FindByID(ctx, repository.NoTX, codeID)
	if err != nil {
		return nil, err
	}
	now := u.now().UTC()

	var holder string
	switch c.Status {
	case model.CodeStatusAvailable:
		ok, err := u.codes.RevokeAvailable(ctx, repository.NoTX, c.ID, reason, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, changedConcurrently(c)
		}
	case model.CodeStatusRedeemed:
		holder = derefStr(c.RedeemedBy)
		err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			if err := u.tm.LockUser(ctx, tx, holder); err != nil {
				return err
			}
			ok, err := u.codes.RevokeRedeemed(ctx, tx, c.ID, holder, reason, now)
			if err != nil {
				return err
			}
			if !ok {
				return changedConcurrently(c)
			}
			canceled, err := u.entitlements.CancelForCode(ctx, tx, holder, c.ID, now)
			if err != nil {
				return err
			}
			if !canceled {
				u.log.Warn().Str("code_id", c.ID).Str("user_id", holder).Msg("holder entitlement no longer backed by code, left untouched")
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	default:
		metrics.IncAdminAction("revoke", "rejected")
		return nil, fmt.Errorf("%w: cannot revoke a code that is %s", domain.ErrInvalidTransition, c.Status)
	}

	t := newTransaction(model.TxCodeRevoked, holder, now)
	t.CodeID, t.PurchaseID = &c.ID, &c.PurchaseID
	t.ExternalEventID = strPtr(fmt.Sprintf("code_revoked_%s_%d", c.ID, now.UnixNano()))
	t.Status = model.TxStatusCanceled
	t.Description = "Code revoked: " + reason
	t.Metadata = map[string]string{"adminId": adminID, "previousStatus": string(c.Status)}
	return u.finish(ctx, c, "revoke", adapter.EventCodeRevoked, adminID, holder, reason, t)
}

func (u *revocationUC) Reactivate(ctx context.Context, codeID, adminID string) (*model.Code, error) {
	defer logging.TraceDuration(u.log, "RevocationUC.Reactivate")()
	c, err := u.codes.FindByID(ctx, repository.NoTX, codeID)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CodeStatusAvailable {
		metrics.IncAdminAction("reactivate", "rejected")
		return nil, fmt.Errorf("%w: cannot reactivate a code that is %s", domain.ErrInvalidTransition, c.Status)
	}
	if c.PreviouslyRedeemedBy == nil {
		metrics.IncAdminAction("reactivate", "rejected")
		return nil, domain.ErrNoProvenance
	}
	holder := *c.PreviouslyRedeemedBy
	now := u.now().UTC()
	periodEnd := now.AddDate(0, 0, c.DurationDays)

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.tm.LockUser(ctx, tx, holder); err != nil {
			return err
		}
		others, err := u.codes.FindRedeemedBy(ctx, tx, holder)
		if err != nil {
			return err
		}
		ent, err := u.entitlements.FindByUserID(ctx, tx, holder)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if ent.HasAccess(now) {
			if len(others) > 0 {
				return domain.ErrHolderHasActiveCode
			}
			return domain.ErrAlreadySubscribed
		}
		if ent != nil {
			if err := model.ValidateEntitlementTransition(ent.Status, model.EntitlementActive); err != nil {
				return err
			}
		}

		ok, err := u.codes.Reactivate(ctx, tx, c.ID, holder, now)
		if err != nil {
			return err
		}
		if !ok {
			return changedConcurrently(c)
		}

		next := &model.Entitlement{
			ID:                 uuid.NewString(),
			UserID:             holder,
			Source:             model.EntitlementSourceCode,
			PriceID:            c.PriceID,
			ProductID:          c.ProductID,
			Status:             model.EntitlementActive,
			CurrentPeriodStart: timePtr(now),
			CurrentPeriodEnd:   timePtr(periodEnd),
			CancelAtPeriodEnd:  true,
			CodeID:             &c.ID,
			DurationDays:       c.DurationDays,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if ent != nil {
			next.ID = ent.ID
			next.ExternalCustomerID = ent.ExternalCustomerID
			next.CreatedAt = ent.CreatedAt
		}
		return u.entitlements.Upsert(ctx, tx, next)
	})
	if err != nil {
		metrics.IncAdminAction("reactivate", domain.ReasonOf(err))
		return nil, err
	}

	t := newTransaction(model.TxCodeReactivated, holder, now)
	t.CodeID, t.PurchaseID = &c.ID, &c.PurchaseID
	t.ExternalEventID = strPtr(fmt.Sprintf("code_reactivated_%s_%d", c.ID, now.UnixNano()))
	t.PriceID, t.ProductID = c.PriceID, c.ProductID
	t.PeriodStart, t.PeriodEnd = timePtr(now), timePtr(periodEnd)
	t.Description = fmt.Sprintf("Code reactivated for %d days", c.DurationDays)
	t.Metadata = map[string]string{"adminId": adminID}
	return u.finish(ctx, c, "reactivate", adapter.EventCodeReactivated, adminID, holder, "", t)
}

func (u *revocationUC) MakeAvailable(ctx context.Context, codeID, adminID string) (*model.Code, error) {
	defer logging.TraceDuration(u.log, "RevocationUC.MakeAvailable")()
	c, err := u.codes.FindByID(ctx, repository.NoTX, codeID)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CodeStatusRevoked {
		metrics.IncAdminAction("make_available", "rejected")
		return nil, fmt.Errorf("%w: only revoked codes can be made available, code is %s", domain.ErrInvalidTransition, c.Status)
	}
	now := u.now().UTC()
	ok, err := u.codes.MakeAvailable(ctx, repository.NoTX, c.ID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, changedConcurrently(c)
	}

	t := newTransaction(model.TxCodeMadeAvailable, "", now)
	t.CodeID, t.PurchaseID = &c.ID, &c.PurchaseID
	t.ExternalEventID = strPtr(fmt.Sprintf("code_made_available_%s_%d", c.ID, now.UnixNano()))
	t.Description = "Code made available"
	t.Metadata = map[string]string{"adminId": adminID}
	return u.finish(ctx, c, "make_available", adapter.EventCodeMadeAvailable, adminID, "", "", t)
}

// finish runs the best-effort side effects shared by all admin actions and
// returns the code as stored now.
func (u *revocationUC) finish(ctx context.Context, c *model.Code, action, routingKey, adminID, userID, reason string, t *model.Transaction) (*model.Code, error) {
	appendAudit(ctx, u.txs, u.log, t)
	metrics.IncAdminAction(action, "ok")

	updated, err := u.codes.FindByID(ctx, repository.NoTX, c.ID)
	if err != nil {
		return nil, err
	}
	u.notifier.Notify(ctx, routingKey, CodeEvent{
		CodeID:     updated.ID,
		PurchaseID: updated.PurchaseID,
		UserID:     userID,
		AdminID:    adminID,
		Status:     string(updated.Status),
		Reason:     reason,
		At:         t.CreatedAt,
	})
	u.log.Info().Str("action", action).Str("code_id", c.ID).Str("admin_id", adminID).Str("status", string(updated.Status)).Msg("code updated by admin")
	return updated, nil
}
