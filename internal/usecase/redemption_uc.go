package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
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
var _ RedemptionUseCase = (*redemptionUC)(nil)

type RedemptionUseCase interface {
	// Redeem turns a code into an active entitlement for userID.
	Redeem(ctx context.Context, userID, rawCode string) (*RedemptionResult, error)
	// Validate reports what a code would grant without redeeming it.
	Validate(ctx context.Context, rawCode string) (*CodePreview, error)
}

type RedemptionResult struct {
	Code         string    `json:"code"`
	DurationDays int       `json:"duration_days"`
	PlanName     string    `json:"plan_name"`
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
}

type CodePreview struct {
	Code         string    `json:"code"`
	PlanName     string    `json:"plan_name"`
	DurationDays int       `json:"duration_days"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type redemptionUC struct {
	codes        repository.CodeRepository
	entitlements repository.EntitlementRepository
	txs          repository.TransactionRepository
	catalog      PlanCatalog
	tm           repository.TransactionManager
	notifier     *Notifier
	dev          bool
	now          func() time.Time
	log          *zerolog.Logger
}

func NewRedemptionUseCase(
	codes repository.CodeRepository,
	entitlements repository.EntitlementRepository,
	txs repository.TransactionRepository,
	catalog PlanCatalog,
	tm repository.TransactionManager,
	notifier *Notifier,
	dev bool,
	logger *zerolog.Logger,
) *redemptionUC {
	l := logger.With().Str("component", "RedemptionUseCase").Logger()
	return &redemptionUC{
		codes:        codes,
		entitlements: entitlements,
		txs:          txs,
		catalog:      catalog,
		tm:           tm,
		notifier:     notifier,
		dev:          dev,
		now:          time.Now,
		log:          &l,
	}
}

// lookup runs the read-only checks shared by Redeem and Validate. A code past
// its deadline is persisted as expired before ErrCodeExpired is returned.
func (u *redemptionUC) lookup(ctx context.Context, rawCode string, now time.Time) (*model.Code, error) {
	normalized, err := model.NormalizeCode(rawCode)
	if err != nil {
		return nil, err
	}
	c, err := u.codes.FindByCode(ctx, repository.NoTX, normalized)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			u.log.Debug().Str("code", logging.Redact(normalized, u.dev)).Msg("code not found")
			return nil, domain.ErrCodeNotFound
		}
		return nil, err
	}
	if err := c.Status.StatusError(); err != nil {
		u.log.Debug().Str("code", logging.Redact(normalized, u.dev)).Str("status", string(c.Status)).Msg("code not redeemable")
		return nil, err
	}
	if c.IsPastDeadline(now) {
		u.expireLazily(ctx, c.ID, now)
		return nil, domain.ErrCodeExpired
	}
	return c, nil
}

func (u *redemptionUC) expireLazily(ctx context.Context, codeID string, now time.Time) {
	if _, err := u.codes.MarkExpired(ctx, repository.NoTX, codeID, now); err != nil {
		u.log.Warn().Err(err).Str("code_id", codeID).Msg("lazy expiry failed")
	}
}

func (u *redemptionUC) planName(ctx context.Context, priceID string) string {
	p, _ := u.catalog.Lookup(ctx, priceID)
	return p.DisplayName()
}

func (u *redemptionUC) Validate(ctx context.Context, rawCode string) (*CodePreview, error) {
	defer logging.TraceDuration(u.log, "RedemptionUC.Validate")()
	c, err := u.lookup(ctx, rawCode, u.now().UTC())
	if err != nil {
		return nil, err
	}
	return &CodePreview{
		Code:         c.Code,
		PlanName:     u.planName(ctx, c.PriceID),
		DurationDays: c.DurationDays,
		ExpiresAt:    c.ExpiresAt,
	}, nil
}

func (u *redemptionUC) Redeem(ctx context.Context, userID, rawCode string) (*RedemptionResult, error) {
	defer logging.TraceDuration(u.log, "RedemptionUC.Redeem")()
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidArgument)
	}
	now := u.now().UTC()
	c, err := u.lookup(ctx, rawCode, now)
	if err != nil {
		metrics.IncRedemption(domain.ReasonOf(err))
		return nil, err
	}

	periodEnd := now.AddDate(0, 0, c.DurationDays)
	var deadlinePassed bool
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.tm.LockUser(ctx, tx, userID); err != nil {
			return err
		}
		ent, err := u.entitlements.FindByUserID(ctx, tx, userID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if ent.HasAccess(now) {
			return domain.ErrAlreadySubscribed
		}
		if ent != nil {
			if err := model.ValidateEntitlementTransition(ent.Status, model.EntitlementActive); err != nil {
				return err
			}
		}

		ok, err := u.codes.MarkRedeemed(ctx, tx, c.ID, userID, now)
		if err != nil {
			return err
		}
		if !ok {
			current, err := u.codes.FindByID(ctx, tx, c.ID)
			if err != nil {
				return err
			}
			if serr := current.Status.StatusError(); serr != nil {
				return serr
			}
			if !now.Before(current.ExpiresAt) {
				deadlinePassed = true
				return domain.ErrCodeExpired
			}
			return domain.ErrCodeAlreadyRedeemed
		}

		next := &model.Entitlement{
			ID:                 uuid.NewString(),
			UserID:             userID,
			Source:             model.EntitlementSourceCode,
			PriceID:            c.PriceID,
			ProductID:          c.ProductID,
			Status:             model.EntitlementActive,
			CurrentPeriodStart: timePtr(now),
			CurrentPeriodEnd:   timePtr(periodEnd),
			AutoRenew:          false,
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
		if deadlinePassed {
			u.expireLazily(ctx, c.ID, now)
		}
		metrics.IncRedemption(domain.ReasonOf(err))
		return nil, err
	}

	plan := u.planName(ctx, c.PriceID)
	t := newTransaction(model.TxCodeRedemption, userID, now)
	t.CodeID = &c.ID
	t.PurchaseID = &c.PurchaseID
	t.ExternalEventID = strPtr(fmt.Sprintf("code_redemption_%s_%d", c.ID, now.UnixNano()))
	t.PriceID, t.ProductID = c.PriceID, c.ProductID
	t.PeriodStart, t.PeriodEnd = timePtr(now), timePtr(periodEnd)
	t.Description = fmt.Sprintf("Redeemed code for %s (%d days)", plan, c.DurationDays)
	t.Metadata = map[string]string{"code": logging.Redact(c.Code, u.dev), "durationDays": strconv.Itoa(c.DurationDays)}
	appendAudit(ctx, u.txs, u.log, t)

	u.notifier.Notify(ctx, adapter.EventCodeRedeemed, CodeEvent{
		CodeID:     c.ID,
		PurchaseID: c.PurchaseID,
		UserID:     userID,
		Status:     string(model.CodeStatusRedeemed),
		PeriodEnd:  &periodEnd,
		At:         now,
	})
	metrics.IncRedemption("ok")
	u.log.Info().Str("user_id", userID).Str("code_id", c.ID).Time("period_end", periodEnd).Msg("code redeemed")

	return &RedemptionResult{
		Code:         c.Code,
		DurationDays: c.DurationDays,
		PlanName:     plan,
		PeriodStart:  now,
		PeriodEnd:    periodEnd,
	}, nil
}
