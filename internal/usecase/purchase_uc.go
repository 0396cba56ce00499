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
var _ PurchaseUseCase = (*purchaseUC)(nil)

type PurchaseUseCase interface {
	// FinalizePurchase records a confirmed purchase and generates its codes.
	// created is false when the purchase already existed for the same billing refs.
	FinalizePurchase(ctx context.Context, in FinalizePurchaseInput) (p *model.Purchase, created bool, err error)
	GrantAdmin(ctx context.Context, in AdminGrantInput) (*model.Purchase, []*model.Code, error)
	// StartBulkCheckout opens a billing checkout for a batch of codes. Nothing is
	// persisted until the provider confirms payment.
	StartBulkCheckout(ctx context.Context, in BulkCheckoutInput) (*adapter.CheckoutSession, error)
	RecoverPendingCodes(ctx context.Context, grace time.Duration) (int, error)
	MarkRefunded(ctx context.Context, purchaseID string) error
	Get(ctx context.Context, id string) (*model.PurchaseSummary, error)
	List(ctx context.Context, limit, offset int) ([]*model.PurchaseSummary, int, error)
	ListCodes(ctx context.Context, purchaseID string, limit, offset int) ([]*model.Code, int, error)
	// PortalSession opens the billing portal for the customer behind the
	// admin's latest paid purchase.
	PortalSession(ctx context.Context, adminID string) (string, error)
}

type FinalizePurchaseInput struct {
	IssuerID                string
	Source                  model.PurchaseSource
	ExternalCustomerID      string
	ExternalSubscriptionID  string
	ExternalCheckoutID      string
	ExternalPaymentIntentID string
	PriceID                 string
	ProductID               string
	Quantity                int
	UnitAmount              int64
	TotalAmount             int64
	Currency                string
	DurationDays            int
	PaidAt                  time.Time
	Metadata                map[string]string
}

type AdminGrantInput struct {
	AdminID      string
	Quantity     int
	Months       int // used when DurationDays is zero
	DurationDays int
	PriceID      string
	ProductID    string
}

type BulkCheckoutInput struct {
	AdminID    string
	AdminEmail string
	CustomerID string
	PriceID    string
	Quantity   int
}

type purchaseUC struct {
	purchases repository.PurchaseRepository
	codes     repository.CodeRepository
	codeUC    CodeUseCase
	txs       repository.TransactionRepository
	gateway   adapter.BillingGateway
	catalog   PlanCatalog
	tm        repository.TransactionManager
	notifier  *Notifier
	maxBatch  int
	now       func() time.Time
	log       *zerolog.Logger
}

func NewPurchaseUseCase(
	purchases repository.PurchaseRepository,
	codes repository.CodeRepository,
	codeUC CodeUseCase,
	txs repository.TransactionRepository,
	gateway adapter.BillingGateway,
	catalog PlanCatalog,
	tm repository.TransactionManager,
	notifier *Notifier,
	maxBatch int,
	logger *zerolog.Logger,
) *purchaseUC {
	if maxBatch <= 0 {
		maxBatch = 100
	}
	l := logger.With().Str("component", "PurchaseUseCase").Logger()
	return &purchaseUC{
		purchases: purchases,
		codes:     codes,
		codeUC:    codeUC,
		txs:       txs,
		gateway:   gateway,
		catalog:   catalog,
		tm:        tm,
		notifier:  notifier,
		maxBatch:  maxBatch,
		now:       time.Now,
		log:       &l,
	}
}

func (u *purchaseUC) FinalizePurchase(ctx context.Context, in FinalizePurchaseInput) (*model.Purchase, bool, error) {
	defer logging.TraceDuration(u.log, "PurchaseUC.FinalizePurchase")()
	if in.IssuerID == "" || in.PriceID == "" {
		return nil, false, fmt.Errorf("%w: issuer and price are required", domain.ErrInvalidArgument)
	}
	if in.Quantity < 1 || in.Quantity > u.maxBatch {
		return nil, false, fmt.Errorf("%w: quantity must be between 1 and %d", domain.ErrInvalidArgument, u.maxBatch)
	}
	if in.DurationDays <= 0 {
		return nil, false, fmt.Errorf("%w: duration must be positive", domain.ErrInvalidArgument)
	}

	if in.ExternalSubscriptionID != "" || in.ExternalCheckoutID != "" {
		existing, err := u.purchases.FindByExternalRef(ctx, repository.NoTX, in.ExternalSubscriptionID, in.ExternalCheckoutID)
		if err == nil {
			u.log.Info().Str("purchase_id", existing.ID).Msg("purchase already finalized, skipping")
			return existing, false, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, false, err
		}
	}

	now := u.now().UTC()
	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}
	source := in.Source
	if source == "" {
		source = model.PurchaseSourceCheckout
	}
	total := in.TotalAmount
	if total == 0 {
		total = in.UnitAmount * int64(in.Quantity)
	}
	p := &model.Purchase{
		ID:                      uuid.NewString(),
		IssuerID:                in.IssuerID,
		Source:                  source,
		ExternalCustomerID:      strPtr(in.ExternalCustomerID),
		ExternalSubscriptionID:  strPtr(in.ExternalSubscriptionID),
		ExternalCheckoutID:      strPtr(in.ExternalCheckoutID),
		ExternalPaymentIntentID: strPtr(in.ExternalPaymentIntentID),
		PriceID:                 in.PriceID,
		ProductID:               in.ProductID,
		Quantity:                in.Quantity,
		UnitAmount:              in.UnitAmount,
		TotalAmount:             total,
		Currency:                in.Currency,
		Status:                  model.PurchaseStatusCompleted,
		DurationDays:            in.DurationDays,
		PaidAt:                  &paidAt,
		Metadata:                in.Metadata,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	if err := u.purchases.Save(ctx, repository.NoTX, p); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			existing, ferr := u.purchases.FindByExternalRef(ctx, repository.NoTX, in.ExternalSubscriptionID, in.ExternalCheckoutID)
			if ferr != nil {
				return nil, false, ferr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	if _, err := u.generateCodes(ctx, p.ID); err != nil {
		u.log.Error().Err(err).Str("purchase_id", p.ID).Msg("code generation failed, left for recovery")
		return p, true, err
	}
	p.CodesGenerated = true
	metrics.IncPurchaseFinalized(string(p.Source))
	u.notifier.Notify(ctx, adapter.EventPurchaseCompleted, PurchaseEvent{
		PurchaseID: p.ID,
		IssuerID:   p.IssuerID,
		Source:     string(p.Source),
		Quantity:   p.Quantity,
		At:         now,
	})
	return p, true, nil
}

// generateCodes fills a committed purchase with its codes exactly once.
// When codes already reference the purchase only the flag is repaired.
func (u *purchaseUC) generateCodes(ctx context.Context, purchaseID string) ([]*model.Code, error) {
	var out []*model.Code
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		p, err := u.purchases.FindByID(ctx, tx, purchaseID)
		if err != nil {
			return err
		}
		if p.CodesGenerated {
			return domain.ErrCodesAlreadyGenerated
		}
		n, err := u.codes.CountByPurchase(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			if out, err = u.codeUC.GenerateForPurchase(ctx, tx, p); err != nil {
				return err
			}
		} else {
			u.log.Warn().Str("purchase_id", p.ID).Int("codes", n).Msg("codes exist but flag unset, repairing flag")
		}
		ok, err := u.purchases.MarkCodesGenerated(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrCodesAlreadyGenerated
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (u *purchaseUC) GrantAdmin(ctx context.Context, in AdminGrantInput) (*model.Purchase, []*model.Code, error) {
	defer logging.TraceDuration(u.log, "PurchaseUC.GrantAdmin")()
	if in.AdminID == "" {
		return nil, nil, fmt.Errorf("%w: admin id is required", domain.ErrInvalidArgument)
	}
	if in.Quantity < 1 || in.Quantity > u.maxBatch {
		return nil, nil, fmt.Errorf("%w: quantity must be between 1 and %d", domain.ErrInvalidArgument, u.maxBatch)
	}
	days := in.DurationDays
	if days <= 0 {
		days = in.Months * 30
	}
	if days <= 0 {
		return nil, nil, fmt.Errorf("%w: duration must be positive", domain.ErrInvalidArgument)
	}
	priceID, productID := in.PriceID, in.ProductID
	if priceID == "" {
		priceID = model.AdminGrantPriceID
	}
	if productID == "" {
		productID = model.AdminGrantProductID
	}

	p, _, err := u.FinalizePurchase(ctx, FinalizePurchaseInput{
		IssuerID:     in.AdminID,
		Source:       model.PurchaseSourceAdminGrant,
		PriceID:      priceID,
		ProductID:    productID,
		Quantity:     in.Quantity,
		Currency:     "usd",
		DurationDays: days,
	})
	if err != nil {
		return nil, nil, err
	}

	codes, _, err := u.codes.List(ctx, repository.NoTX, model.CodeFilter{PurchaseID: p.ID, Limit: in.Quantity})
	if err != nil {
		return p, nil, err
	}

	t := newTransaction(model.TxAdminGrant, in.AdminID, u.now().UTC())
	t.PurchaseID = &p.ID
	t.ExternalEventID = strPtr("admin_grant_" + p.ID)
	t.PriceID, t.ProductID = priceID, productID
	t.Currency = "usd"
	t.Description = fmt.Sprintf("Admin grant of %d codes for %d days", in.Quantity, days)
	t.Metadata = map[string]string{"quantity": strconv.Itoa(in.Quantity), "durationDays": strconv.Itoa(days)}
	appendAudit(ctx, u.txs, u.log, t)

	metrics.IncAdminAction("grant", "ok")
	u.log.Info().Str("admin_id", in.AdminID).Str("purchase_id", p.ID).Int("quantity", in.Quantity).Msg("admin grant created")
	return p, codes, nil
}

func (u *purchaseUC) StartBulkCheckout(ctx context.Context, in BulkCheckoutInput) (*adapter.CheckoutSession, error) {
	if in.AdminID == "" || in.PriceID == "" {
		return nil, fmt.Errorf("%w: admin and price are required", domain.ErrInvalidArgument)
	}
	if in.Quantity < 1 || in.Quantity > u.maxBatch {
		return nil, fmt.Errorf("%w: quantity must be between 1 and %d", domain.ErrInvalidArgument, u.maxBatch)
	}
	if u.gateway == nil {
		return nil, domain.ErrBillingUnavailable
	}
	plan, ok := u.catalog.Lookup(ctx, in.PriceID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown price %s", domain.ErrNotFound, in.PriceID)
	}
	if !plan.Active || plan.Interval == "" {
		return nil, fmt.Errorf("%w: price %s is not an active recurring price", domain.ErrInvalidArgument, in.PriceID)
	}

	customerID := in.CustomerID
	if customerID == "" {
		id, err := u.gateway.CreateCustomer(ctx, in.AdminEmail, "", map[string]string{"adminId": in.AdminID})
		if err != nil {
			return nil, err
		}
		customerID = id
	}

	session, err := u.gateway.CreateBulkCheckout(ctx, adapter.BulkCheckoutRequest{
		AdminID:      in.AdminID,
		AdminEmail:   in.AdminEmail,
		CustomerID:   customerID,
		Plan:         plan,
		Quantity:     in.Quantity,
		DurationDays: plan.DurationDays(),
	})
	if err != nil {
		return nil, err
	}
	u.log.Info().Str("admin_id", in.AdminID).Str("session_id", session.ID).Int("quantity", in.Quantity).Msg("bulk checkout started")
	return session, nil
}

func (u *purchaseUC) PortalSession(ctx context.Context, adminID string) (string, error) {
	if adminID == "" {
		return "", fmt.Errorf("%w: admin is required", domain.ErrInvalidArgument)
	}
	if u.gateway == nil {
		return "", domain.ErrBillingUnavailable
	}
	customerID, err := u.purchases.LatestCustomerID(ctx, repository.NoTX, adminID)
	if errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("%w: no payment history", domain.ErrInvalidArgument)
	}
	if err != nil {
		return "", err
	}
	return u.gateway.CreatePortalSession(ctx, customerID)
}

func (u *purchaseUC) RecoverPendingCodes(ctx context.Context, grace time.Duration) (int, error) {
	defer logging.TraceDuration(u.log, "PurchaseUC.RecoverPendingCodes")()
	pending, err := u.purchases.ListCodesPendingOlderThan(ctx, repository.NoTX, u.now().UTC().Add(-grace), 100)
	if err != nil {
		return 0, err
	}
	var (
		recovered int
		errs      []error
	)
	for _, p := range pending {
		codes, err := u.generateCodes(ctx, p.ID)
		if errors.Is(err, domain.ErrCodesAlreadyGenerated) {
			continue
		}
		if err != nil {
			u.log.Error().Err(err).Str("purchase_id", p.ID).Msg("recovery failed")
			errs = append(errs, fmt.Errorf("purchase %s: %w", p.ID, err))
			continue
		}
		recovered++
		u.log.Info().Str("purchase_id", p.ID).Int("codes", len(codes)).Msg("recovered purchase codes")
	}
	return recovered, errors.Join(errs...)
}

func (u *purchaseUC) MarkRefunded(ctx context.Context, purchaseID string) error {
	ok, err := u.purchases.UpdateStatus(ctx, repository.NoTX, purchaseID, model.PurchaseStatusCompleted, model.PurchaseStatusRefunded)
	if err != nil {
		return err
	}
	if ok {
		u.log.Info().Str("purchase_id", purchaseID).Msg("purchase refunded")
		return nil
	}
	p, err := u.purchases.FindByID(ctx, repository.NoTX, purchaseID)
	if err != nil {
		return err
	}
	return model.ValidatePurchaseTransition(p.Status, model.PurchaseStatusRefunded)
}

func (u *purchaseUC) Get(ctx context.Context, id string) (*model.PurchaseSummary, error) {
	p, err := u.purchases.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}
	counts, err := u.codes.CountByStatus(ctx, repository.NoTX, p.ID)
	if err != nil {
		return nil, err
	}
	return &model.PurchaseSummary{Purchase: p, CodeCounts: counts}, nil
}

func (u *purchaseUC) List(ctx context.Context, limit, offset int) ([]*model.PurchaseSummary, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	items, total, err := u.purchases.List(ctx, repository.NoTX, limit, max(offset, 0))
	if err != nil {
		return nil, 0, err
	}
	out := make([]*model.PurchaseSummary, 0, len(items))
	for _, p := range items {
		counts, err := u.codes.CountByStatus(ctx, repository.NoTX, p.ID)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, &model.PurchaseSummary{Purchase: p, CodeCounts: counts})
	}
	return out, total, nil
}

func (u *purchaseUC) ListCodes(ctx context.Context, purchaseID string, limit, offset int) ([]*model.Code, int, error) {
	if _, err := u.purchases.FindByID(ctx, repository.NoTX, purchaseID); err != nil {
		return nil, 0, err
	}
	return u.codeUC.List(ctx, model.CodeFilter{PurchaseID: purchaseID, Limit: limit, Offset: offset})
}
