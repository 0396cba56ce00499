package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"prepaid-subscription/internal/domain"
	"prepaid-subscription/internal/domain/model"
	"prepaid-subscription/internal/domain/ports/adapter"
	"prepaid-subscription/internal/domain/ports/repository"
	"prepaid-subscription/internal/infra/logging"
	"prepaid-subscription/internal/infra/metrics"
)

// Compile-time check
var _ ReconcilerUseCase = (*reconcilerUC)(nil)

// ReconcilerUseCase applies verified billing events to purchases, entitlements
// and the audit log. Every event id takes effect at most once.
type ReconcilerUseCase interface {
	Handle(ctx context.Context, ev *model.BillingEvent) (model.EventOutcome, error)
	ListEvents(ctx context.Context, outcome model.EventOutcome, limit, offset int) ([]*model.ProcessedEvent, int, error)
}

type ReconcilerDeps struct {
	Purchases    PurchaseUseCase
	PurchaseRepo repository.PurchaseRepository
	Entitlements repository.EntitlementRepository
	Transactions repository.TransactionRepository
	Events       repository.BillingEventRepository
	Seen         adapter.SeenEventStore // optional, shared across replicas
	SeenTTL      time.Duration
	CacheSize    int
	Notifier     *Notifier
}

type reconcilerUC struct {
	ReconcilerDeps
	cache *seenCache
	now   func() time.Time
	log   *zerolog.Logger
}

func NewReconcilerUseCase(deps ReconcilerDeps, logger *zerolog.Logger) *reconcilerUC {
	if deps.SeenTTL <= 0 {
		deps.SeenTTL = 72 * time.Hour
	}
	l := logger.With().Str("component", "Reconciler").Logger()
	return &reconcilerUC{
		ReconcilerDeps: deps,
		cache:          newSeenCache(deps.CacheSize),
		now:            time.Now,
		log:            &l,
	}
}

func (u *reconcilerUC) Handle(ctx context.Context, ev *model.BillingEvent) (model.EventOutcome, error) {
	defer logging.TraceDuration(u.log, "ReconcilerUC.Handle")()
	if ev == nil || ev.ID == "" {
		return model.OutcomeFailed, fmt.Errorf("%w: event id is required", domain.ErrInvalidArgument)
	}
	ctx = logging.WithEventID(ctx, ev.ID)
	log := u.log.With().Str("event_id", ev.ID).Str("event_type", ev.Type).Logger()
	received := u.now().UTC()
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = received
	}

	if u.isDuplicate(ctx, ev.ID) {
		log.Debug().Msg("duplicate event skipped")
		metrics.IncBillingEvent(ev.Type, string(model.OutcomeDuplicate))
		return model.OutcomeDuplicate, nil
	}

	outcome, err := u.dispatch(ctx, ev)
	if errors.Is(err, errEventApplied) {
		outcome, err = model.OutcomeDuplicate, nil
	}

	rec := &model.ProcessedEvent{
		ID:          ev.ID,
		Type:        ev.Type,
		Outcome:     outcome,
		ReceivedAt:  received,
		ProcessedAt: u.now().UTC(),
	}
	if outcome == model.OutcomeDuplicate {
		rec.Outcome = model.OutcomeProcessed
	}
	if err != nil {
		outcome = model.OutcomeFailed
		rec.Outcome = model.OutcomeFailed
		rec.Error = err.Error()
		log.Error().Err(err).Msg("billing event failed")
	}
	if rerr := u.Events.Record(ctx, repository.NoTX, rec); rerr != nil {
		log.Error().Err(rerr).Msg("could not record billing event outcome")
	}
	if err == nil {
		u.markSeen(ctx, ev.ID)
		log.Info().Str("outcome", string(outcome)).Msg("billing event handled")
	}
	metrics.IncBillingEvent(ev.Type, string(outcome))
	return outcome, err
}

func (u *reconcilerUC) ListEvents(ctx context.Context, outcome model.EventOutcome, limit, offset int) ([]*model.ProcessedEvent, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return u.Events.List(ctx, repository.NoTX, outcome, limit, max(offset, 0))
}

// isDuplicate consults the local cache, the shared seen-set and finally the
// database. Lookup errors in the faster layers fall through to the next one.
func (u *reconcilerUC) isDuplicate(ctx context.Context, id string) bool {
	if u.cache.Contains(id) {
		metrics.IncCacheRequest("seen_events_local", "hit")
		return true
	}
	metrics.IncCacheRequest("seen_events_local", "miss")

	if u.Seen != nil {
		seen, err := u.Seen.Seen(ctx, id)
		if err != nil {
			u.log.Warn().Err(err).Msg("shared seen-set lookup failed")
		} else if seen {
			metrics.IncCacheRequest("seen_events_shared", "hit")
			u.cache.Add(id)
			return true
		} else {
			metrics.IncCacheRequest("seen_events_shared", "miss")
		}
	}

	processed, err := u.Events.IsProcessed(ctx, repository.NoTX, id)
	if err != nil {
		u.log.Warn().Err(err).Msg("processed-event lookup failed")
	}
	if !processed {
		processed, err = u.Transactions.ExistsByEventID(ctx, repository.NoTX, id)
		if err != nil {
			u.log.Warn().Err(err).Msg("audit lookup failed")
		}
	}
	if processed {
		u.cache.Add(id)
	}
	return processed
}

func (u *reconcilerUC) markSeen(ctx context.Context, id string) {
	u.cache.Add(id)
	if u.Seen == nil {
		return
	}
	if err := u.Seen.MarkSeen(ctx, id, u.SeenTTL); err != nil {
		u.log.Warn().Err(err).Str("event_id", id).Msg("shared seen-set update failed")
	}
}

func (u *reconcilerUC) dispatch(ctx context.Context, ev *model.BillingEvent) (model.EventOutcome, error) {
	switch ev.Type {
	case model.EventCheckoutCompleted:
		return u.onCheckoutCompleted(ctx, ev)
	case model.EventSubscriptionCreated,
		model.EventSubscriptionUpdated,
		model.EventSubscriptionPaused,
		model.EventSubscriptionResumed:
		return u.onSubscriptionChanged(ctx, ev)
	case model.EventSubscriptionDeleted:
		return u.onSubscriptionDeleted(ctx, ev)
	case model.EventInvoicePaid:
		return u.onInvoicePaid(ctx, ev)
	case model.EventInvoicePaymentSucceeded:
		return u.onPaymentSucceeded(ctx, ev)
	case model.EventInvoicePaymentFailed:
		return u.onPaymentFailed(ctx, ev)
	case model.EventChargeRefunded:
		return u.onChargeRefunded(ctx, ev)
	case model.EventCheckoutExpired,
		model.EventSubscriptionTrialEnds,
		model.EventInvoiceUpcoming,
		model.EventInvoiceFinalized,
		model.EventPaymentIntentSucceeded,
		model.EventPaymentIntentFailed,
		model.EventCustomerUpdated:
		return model.OutcomeIgnored, nil
	default:
		u.log.Info().Str("event_type", ev.Type).Msg("unhandled billing event type")
		return model.OutcomeIgnored, nil
	}
}

// errEventApplied marks an audit row that already exists for the event id.
// Other unique violations stay failures.
var errEventApplied = errors.New("billing event already applied")

// audit appends t keyed by the event id. A duplicate key surfaces as
// errEventApplied, which Handle treats as an already applied event.
func (u *reconcilerUC) audit(ctx context.Context, ev *model.BillingEvent, t *model.Transaction) error {
	t.ExternalEventID = &ev.ID
	t.RawEventType = ev.Type
	err := u.Transactions.Append(ctx, repository.NoTX, t)
	if errors.Is(err, domain.ErrAlreadyExists) {
		return fmt.Errorf("%w: %w", errEventApplied, err)
	}
	return err
}

func (u *reconcilerUC) onCheckoutCompleted(ctx context.Context, ev *model.BillingEvent) (model.EventOutcome, error) {
	cp := ev.Checkout
	if cp == nil {
		return model.OutcomeIgnored, nil
	}
	if cp.Metadata["type"] == model.MetadataTypeBulkPurchase {
		return u.onBulkCheckout(ctx, ev, cp)
	}
	userID := cp.Metadata["userId"]
	if cp.Mode != "subscription" || userID == "" || cp.SubscriptionID == "" {
		return model.OutcomeIgnored, nil
	}
	if err := u.Entitlements.LinkBilling(ctx, repository.NoTX, userID, cp.CustomerID, cp.SubscriptionID); err != nil {
		return model.OutcomeFailed, err
	}
	return model.OutcomeProcessed, nil
}

func metaInt(m map[string]string, key string) (int64, error) {
	v := strings.TrimSpace(m[key])
	if v == "" {
		return 0, fmt.Errorf("%w: metadata %s is missing", domain.ErrInvalidArgument, key)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: metadata %s: %v", domain.ErrInvalidArgument, key, err)
	}
	return n, nil
}

// bulkInputFromCheckout reads the purchase description written into the
// checkout metadata when the bulk checkout was started.
func bulkInputFromCheckout(ev *model.BillingEvent, cp *model.CheckoutPayload) (FinalizePurchaseInput, error) {
	m := cp.Metadata
	in := FinalizePurchaseInput{
		IssuerID:                m["adminId"],
		Source:                  model.PurchaseSourceCheckout,
		ExternalCustomerID:      cp.CustomerID,
		ExternalSubscriptionID:  cp.SubscriptionID,
		ExternalCheckoutID:      cp.SessionID,
		ExternalPaymentIntentID: cp.PaymentIntentID,
		PriceID:                 m["stripePriceId"],
		ProductID:               m["stripeProductId"],
		TotalAmount:             cp.AmountTotal,
		Currency:                strings.ToLower(m["currency"]),
		PaidAt:                  ev.CreatedAt,
		Metadata:                m,
	}
	if in.IssuerID == "" || in.PriceID == "" {
		return in, fmt.Errorf("%w: bulk checkout metadata lacks adminId or stripePriceId", domain.ErrInvalidArgument)
	}
	qty, err := metaInt(m, "quantity")
	if err != nil {
		return in, err
	}
	days, err := metaInt(m, "subscriptionDurationDays")
	if err != nil {
		return in, err
	}
	in.Quantity, in.DurationDays = int(qty), int(days)
	if v := m["unitAmount"]; v != "" {
		if in.UnitAmount, err = metaInt(m, "unitAmount"); err != nil {
			return in, err
		}
	}
	if in.Currency == "" {
		in.Currency = strings.ToLower(cp.Currency)
	}
	return in, nil
}

func (u *reconcilerUC) onBulkCheckout(ctx context.Context, ev *model.BillingEvent, cp *model.CheckoutPayload) (model.EventOutcome, error) {
	in, err := bulkInputFromCheckout(ev, cp)
	if err != nil {
		return model.OutcomeFailed, err
	}
	p, created, err := u.Purchases.FinalizePurchase(ctx, in)
	if err != nil {
		return model.OutcomeFailed, err
	}
	if !created {
		u.log.Info().Str("purchase_id", p.ID).Msg("bulk checkout already finalized")
	}

	t := newTransaction(model.TxBulkPurchase, p.IssuerID, ev.CreatedAt)
	t.PurchaseID = &p.ID
	t.ExternalCustomerID = strPtr(cp.CustomerID)
	t.ExternalSubscriptionID = strPtr(cp.SubscriptionID)
	t.ExternalPaymentIntentID = strPtr(cp.PaymentIntentID)
	t.Amount, t.Currency = cp.AmountTotal, in.Currency
	t.PriceID, t.ProductID = in.PriceID, in.ProductID
	t.Description = fmt.Sprintf("Bulk purchase of %d codes (%d days each)", in.Quantity, in.DurationDays)
	t.Metadata = map[string]string{"quantity": strconv.Itoa(in.Quantity), "checkoutSessionId": cp.SessionID}
	if err := u.audit(ctx, ev, t); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) || !created {
			return model.OutcomeProcessed, nil
		}
		return model.OutcomeFailed, err
	}
	return model.OutcomeProcessed, nil
}

// bulkPurchaseFor finds the purchase whose billing subscription is subID.
func (u *reconcilerUC) bulkPurchaseFor(ctx context.Context, subID string) (*model.Purchase, error) {
	if subID == "" {
		return nil, nil
	}
	p, err := u.PurchaseRepo.FindByExternalRef(ctx, repository.NoTX, subID, "")
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// entitlementFor resolves the entitlement a subscription belongs to, falling
// back to the user id carried in metadata. userID is empty when neither matches
// or when the metadata fallback lands on an entitlement owned by another flow:
// a code grant that still has access, or a different billing subscription.
func (u *reconcilerUC) entitlementFor(ctx context.Context, subID string, metadata map[string]string) (*model.Entitlement, string, error) {
	if subID != "" {
		e, err := u.Entitlements.FindBySubscriptionID(ctx, repository.NoTX, subID)
		if err == nil {
			return e, e.UserID, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, "", err
		}
	}
	userID := metadata["userId"]
	if userID == "" {
		return nil, "", nil
	}
	e, err := u.Entitlements.FindByUserID(ctx, repository.NoTX, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, userID, nil
	}
	if err != nil {
		return nil, "", err
	}
	if owner := foreignOwner(e, subID, u.now()); owner != "" {
		u.log.Info().Str("subscription_id", subID).Str("user_id", userID).Str("owner", owner).
			Msg("subscription event does not own the user's entitlement")
		return nil, "", nil
	}
	return e, userID, nil
}

// foreignOwner names what else holds e, or returns "" when subID may write it.
func foreignOwner(e *model.Entitlement, subID string, now time.Time) string {
	if e.ExternalSubscriptionID != nil && *e.ExternalSubscriptionID != subID {
		return "subscription " + *e.ExternalSubscriptionID
	}
	if e.Source == model.EntitlementSourceCode && e.HasAccess(now) {
		return "code"
	}
	return ""
}

func subscriptionChanges(sp *model.SubscriptionPayload) (statusChanged, cancelChanged bool) {
	statusChanged = sp.PreviousStatus != "" && sp.PreviousStatus != sp.Status
	cancelChanged = sp.PreviousCancelAtPeriodEnd != nil && *sp.PreviousCancelAtPeriodEnd != sp.CancelAtPeriodEnd
	return statusChanged, cancelChanged
}

func describeSubscriptionChange(sp *model.SubscriptionPayload) string {
	var parts []string
	if sp.PreviousStatus != "" && sp.PreviousStatus != sp.Status {
		parts = append(parts, fmt.Sprintf("status %s -> %s", sp.PreviousStatus, sp.Status))
	}
	if sp.PreviousCancelAtPeriodEnd != nil && *sp.PreviousCancelAtPeriodEnd != sp.CancelAtPeriodEnd {
		if sp.CancelAtPeriodEnd {
			parts = append(parts, "set to cancel at period end")
		} else {
			parts = append(parts, "cancellation withdrawn")
		}
	}
	if sp.ItemsChanged {
		parts = append(parts, "plan changed to "+sp.PriceID)
	}
	if len(parts) == 0 {
		return "Subscription updated"
	}
	return "Subscription updated: " + strings.Join(parts, "; ")
}

// applySubscription upserts the user's entitlement from sp. status overrides
// sp.Status when set. ok is false when the event was stale or unmatched.
func (u *reconcilerUC) applySubscription(ctx context.Context, ev *model.BillingEvent, sp *model.SubscriptionPayload, status model.EntitlementStatus) (*model.Entitlement, bool, error) {
	current, userID, err := u.entitlementFor(ctx, sp.ID, sp.Metadata)
	if err != nil {
		return nil, false, err
	}
	if userID == "" {
		u.log.Info().Str("subscription_id", sp.ID).Msg("no entitlement matches subscription")
		return nil, false, nil
	}
	if current != nil && current.BillingEventAt != nil && ev.CreatedAt.Before(*current.BillingEventAt) {
		return nil, false, nil
	}
	if status == "" {
		if status, err = model.ParseEntitlementStatus(sp.Status); err != nil {
			return nil, false, err
		}
	}
	if current != nil {
		if err := model.ValidateEntitlementTransition(current.Status, status); err != nil {
			return nil, false, err
		}
	}

	now := u.now().UTC()
	next := &model.Entitlement{
		ID:                     uuid.NewString(),
		UserID:                 userID,
		Source:                 model.EntitlementSourceBilling,
		ExternalCustomerID:     strPtr(sp.CustomerID),
		ExternalSubscriptionID: strPtr(sp.ID),
		PriceID:                sp.PriceID,
		ProductID:              sp.ProductID,
		Status:                 status,
		CurrentPeriodStart:     sp.CurrentPeriodStart,
		CurrentPeriodEnd:       sp.CurrentPeriodEnd,
		AutoRenew:              !sp.CancelAtPeriodEnd && status != model.EntitlementCanceled,
		CancelAtPeriodEnd:      sp.CancelAtPeriodEnd,
		CanceledAt:             sp.CanceledAt,
		EndedAt:                sp.EndedAt,
		BillingEventAt:         timePtr(ev.CreatedAt),
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if current != nil {
		next.ID = current.ID
		next.CreatedAt = current.CreatedAt
	}
	applied, err := u.Entitlements.UpsertFromBilling(ctx, repository.NoTX, next)
	if err != nil || !applied {
		return nil, false, err
	}
	u.Notifier.Notify(ctx, adapter.EventEntitlementChange, map[string]string{"user_id": userID, "status": string(status)})
	return next, true, nil
}

func (u *reconcilerUC) subscriptionAudit(typ model.TransactionType, userID string, ev *model.BillingEvent, sp *model.SubscriptionPayload) *model.Transaction {
	t := newTransaction(typ, userID, ev.CreatedAt)
	t.ExternalCustomerID = strPtr(sp.CustomerID)
	t.ExternalSubscriptionID = strPtr(sp.ID)
	t.PriceID, t.ProductID = sp.PriceID, sp.ProductID
	t.Currency = sp.Currency
	t.PeriodStart, t.PeriodEnd = sp.CurrentPeriodStart, sp.CurrentPeriodEnd
	return t
}

func (u *reconcilerUC) onSubscriptionChanged(ctx context.Context, ev *model.BillingEvent) (model.EventOutcome, error) {
	sp := ev.Subscription
	if sp == nil {
		return model.OutcomeIgnored, nil
	}
	statusChanged, cancelChanged := subscriptionChanges(sp)

	p, err := u.bulkPurchaseFor(ctx, sp.ID)
	if err != nil {
		return model.OutcomeFailed, err
	}
	if p != nil {
		if !statusChanged && !cancelChanged {
			return model.OutcomeIgnored, nil
		}
		t := u.subscriptionAudit(model.TxBulkSubscriptionUpdated, p.IssuerID, ev, sp)
		t.PurchaseID = &p.ID
		t.Description = "Bulk " + strings.ToLower(describeSubscriptionChange(sp))
		if err := u.audit(ctx, ev, t); err != nil {
			return model.OutcomeFailed, err
		}
		return model.OutcomeProcessed, nil
	}
	if sp.Metadata["type"] == model.MetadataTypeBulkPurchase {
		// the checkout event creates the purchase; nothing to mirror yet
		return model.OutcomeIgnored, nil
	}

	ent, ok, err := u.applySubscription(ctx, ev, sp, "")
	if err != nil {
		return model.OutcomeFailed, err
	}
	if !ok {
		return model.OutcomeIgnored, nil
	}

	var t *model.Transaction
	switch {
	case ev.Type == model.EventSubscriptionCreated:
		t = u.subscriptionAudit(model.TxSubscriptionCreated, ent.UserID, ev, sp)
		t.Amount = sp.UnitAmount
		t.Description = "Subscription started"
	case statusChanged || cancelChanged || sp.ItemsChanged:
		t = u.subscriptionAudit(model.TxSubscriptionUpdated, ent.UserID, ev, sp)
		t.Description = describeSubscriptionChange(sp)
	}
	if t != nil {
		if err := u.audit(ctx, ev, t); err != nil {
			return model.OutcomeFailed, err
		}
	}
	return model.OutcomeProcessed, nil
}

func (u *reconcilerUC) onSubscriptionDeleted(ctx context.Context, ev *model.BillingEvent) (model.EventOutcome, error) {
	sp := ev.Subscription
	if sp == nil {
		return model.OutcomeIgnored, nil
	}
	p, err := u.bulkPurchaseFor(ctx, sp.ID)
	if err != nil {
		return model.OutcomeFailed, err
	}
	if p != nil {
		// codes already issued stay redeemable
		t := u.subscriptionAudit(model.TxBulkSubscriptionEnded, p.IssuerID, ev, sp)
		t.PurchaseID = &p.ID
		t.Status = model.TxStatusCanceled
		t.Description = "Bulk purchase subscription ended"
		if err := u.audit(ctx, ev, t); err != nil {
			return model.OutcomeFailed, err
		}
		return model.OutcomeProcessed, nil
	}

	if sp.EndedAt == nil {
		sp.EndedAt = timePtr(ev.CreatedAt)
	}
	ent, ok, err := u.applySubscription(ctx, ev, sp, model.EntitlementCanceled)
	if err != nil {
		return model.OutcomeFailed, err
	}
	if !ok {
		return model.OutcomeIgnored, nil
	}
	t := u.subscriptionAudit(model.TxSubscriptionCanceled, ent.UserID, ev, sp)
	t.Status = model.TxStatusCanceled
	t.Description = "Subscription canceled"
	if err := u.audit(ctx, ev, t); err != nil {
		return model.OutcomeFailed, err
	}
	return model.OutcomeProcessed, nil
}

func (u *reconcilerUC) invoiceAudit(typ model.TransactionType, userID string, ev *model.BillingEvent, inv *model.InvoicePayload) *model.Transaction {
	t := newTransaction(typ, userID, ev.CreatedAt)
	t.ExternalCustomerID = strPtr(inv.CustomerID)
	t.ExternalSubscriptionID = strPtr(inv.SubscriptionID)
	t.ExternalInvoiceID = strPtr(inv.ID)
	t.ExternalPaymentIntentID = strPtr(inv.PaymentIntentID)
	t.ExternalChargeID = strPtr(inv.ChargeID)
	t.Amount, t.Currency = inv.AmountPaid, inv.Currency
	t.PriceID, t.ProductID = inv.PriceID, inv.ProductID
	t.PeriodStart, t.PeriodEnd = inv.PeriodStart, inv.PeriodEnd
	t.Description = inv.LineDescription
	if inv.HostedInvoiceURL != "" {
		t.Metadata = map[string]string{"hostedInvoiceUrl": inv.HostedInvoiceURL}
	}
	return t
}

// invoiceOwner returns the purchase or the user an invoice's subscription belongs to.
func (u *reconcilerUC) invoiceOwner(ctx context.Context, inv *model.InvoicePayload) (*model.Purchase, *model.Entitlement, error) {
	if inv.SubscriptionID == "" {
		return nil, nil, nil
	}
	p, err := u.bulkPurchaseFor(ctx, inv.SubscriptionID)
	if err != nil || p != nil {
		return p, nil, err
	}
	e, err := u.Entitlements.FindBySubscriptionID(ctx, repository.NoTX, inv.SubscriptionID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return nil, e, nil
}

func (u *reconcilerUC) onInvoicePaid(ctx context.Context, ev *model.BillingEvent) (model.EventOutcome, error) {
	inv := ev.Invoice
	if inv == nil {
		return model.OutcomeIgnored, nil
	}
	typ := model.TxSubscriptionRenewed
	if inv.BillingReason == "subscription_create" {
		typ = model.TxSubscriptionCreated
	}

	p, e, err := u.invoiceOwner(ctx, inv)
	if err != nil {
		return model.OutcomeFailed, err
	}
	var t *model.Transaction
	switch {
	case p != nil:
		t = u.invoiceAudit(typ, p.IssuerID, ev, inv)
		t.PurchaseID = &p.ID
	case e != nil:
		t = u.invoiceAudit(typ, e.UserID, ev, inv)
	default:
		return model.OutcomeIgnored, nil
	}
	if err := u.audit(ctx, ev, t); err != nil {
		return model.OutcomeFailed, err
	}
	return model.OutcomeProcessed, nil
}

func (u *reconcilerUC) onPaymentSucceeded(ctx context.Context, ev *model.BillingEvent) (model.EventOutcome, error) {
	inv := ev.Invoice
	if inv == nil {
		return model.OutcomeIgnored, nil
	}
	_, e, err := u.invoiceOwner(ctx, inv)
	if err != nil {
		return model.OutcomeFailed, err
	}
	if e == nil {
		return model.OutcomeIgnored, nil
	}
	ok, err := u.Entitlements.SetStatusIf(ctx, repository.NoTX, e.UserID,
		[]model.EntitlementStatus{model.EntitlementPastDue}, model.EntitlementActive, ev.CreatedAt)
	if err != nil {
		return model.OutcomeFailed, err
	}
	if !ok {
		return model.OutcomeIgnored, nil
	}
	u.Notifier.Notify(ctx, adapter.EventEntitlementChange, map[string]string{"user_id": e.UserID, "status": string(model.EntitlementActive)})
	return model.OutcomeProcessed, nil
}

func (u *reconcilerUC) onPaymentFailed(ctx context.Context, ev *model.BillingEvent) (model.EventOutcome, error) {
	inv := ev.Invoice
	if inv == nil {
		return model.OutcomeIgnored, nil
	}
	_, e, err := u.invoiceOwner(ctx, inv)
	if err != nil {
		return model.OutcomeFailed, err
	}
	if e == nil {
		return model.OutcomeIgnored, nil
	}
	from := []model.EntitlementStatus{
		model.EntitlementActive,
		model.EntitlementTrialing,
		model.EntitlementPastDue,
		model.EntitlementUnpaid,
		model.EntitlementIncomplete,
	}
	if _, err := u.Entitlements.SetStatusIf(ctx, repository.NoTX, e.UserID, from, model.EntitlementPastDue, ev.CreatedAt); err != nil {
		return model.OutcomeFailed, err
	}

	t := u.invoiceAudit(model.TxPaymentFailed, e.UserID, ev, inv)
	t.Status = model.TxStatusFailed
	t.Amount = inv.AmountDue
	t.Description = "Payment failed"
	if err := u.audit(ctx, ev, t); err != nil {
		return model.OutcomeFailed, err
	}
	u.Notifier.Notify(ctx, adapter.EventEntitlementChange, map[string]string{"user_id": e.UserID, "status": string(model.EntitlementPastDue)})
	return model.OutcomeProcessed, nil
}

func (u *reconcilerUC) onChargeRefunded(ctx context.Context, ev *model.BillingEvent) (model.EventOutcome, error) {
	ch := ev.Charge
	if ch == nil || ch.ID == "" {
		return model.OutcomeIgnored, nil
	}
	orig, err := u.Transactions.FindByChargeID(ctx, repository.NoTX, ch.ID)
	if errors.Is(err, domain.ErrNotFound) {
		u.log.Info().Str("charge_id", ch.ID).Msg("refund for unknown charge")
		return model.OutcomeIgnored, nil
	}
	if err != nil {
		return model.OutcomeFailed, err
	}

	full := ch.Refunded || (ch.Amount > 0 && ch.AmountRefunded >= ch.Amount)
	if err := u.Transactions.MarkRefunded(ctx, repository.NoTX, orig.ID, ch.AmountRefunded, full); err != nil {
		return model.OutcomeFailed, err
	}

	t := newTransaction(model.TxRefund, orig.UserID, ev.CreatedAt)
	t.Status = model.TxStatusRefunded
	t.PurchaseID = orig.PurchaseID
	t.ExternalCustomerID = strPtr(ch.CustomerID)
	t.ExternalSubscriptionID = orig.ExternalSubscriptionID
	t.ExternalPaymentIntentID = strPtr(ch.PaymentIntentID)
	t.ExternalChargeID = strPtr(ch.ID)
	t.Amount, t.AmountRefunded, t.Currency = ch.AmountRefunded, ch.AmountRefunded, ch.Currency
	t.PriceID, t.ProductID = orig.PriceID, orig.ProductID
	t.Description = "Refund"
	if full {
		t.Description = "Full refund"
	}
	t.Metadata = map[string]string{"originalTransactionId": orig.ID}
	if err := u.audit(ctx, ev, t); err != nil {
		return model.OutcomeFailed, err
	}

	if orig.PurchaseID != nil && full {
		if err := u.Purchases.MarkRefunded(ctx, *orig.PurchaseID); err != nil {
			if !errors.Is(err, domain.ErrInvalidTransition) {
				return model.OutcomeFailed, err
			}
			u.log.Warn().Err(err).Str("purchase_id", *orig.PurchaseID).Msg("purchase not refundable")
		}
	}
	return model.OutcomeProcessed, nil
}
