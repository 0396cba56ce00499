//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"prepaid-subscription/internal/domain"
	"prepaid-subscription/internal/domain/model"
	"prepaid-subscription/internal/domain/ports/adapter"
	"prepaid-subscription/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// --- MockTxManager ---

type MockTxManager struct {
	mu     sync.Mutex
	locked []string
}

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

func (m *MockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}

func (m *MockTxManager) LockUser(ctx context.Context, tx repository.Tx, userID string) error {
	m.mu.Lock()
	m.locked = append(m.locked, userID)
	m.mu.Unlock()
	return nil
}

// --- MockCodeRepo ---

type MockCodeRepo struct {
	mu    sync.Mutex
	store map[string]*model.Code
	// SaveBatchErr makes SaveBatch fail, to simulate a crash mid-finalize.
	SaveBatchErr error
}

func NewMockCodeRepo() *MockCodeRepo { return &MockCodeRepo{store: make(map[string]*model.Code)} }

func (m *MockCodeRepo) SaveBatch(ctx context.Context, tx repository.Tx, codes []*model.Code) error {
	if m.SaveBatchErr != nil {
		return m.SaveBatchErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range codes {
		for _, existing := range m.store {
			if existing.Code == c.Code {
				return domain.ErrAlreadyExists
			}
		}
	}
	for _, c := range codes {
		cp := *c
		m.store[c.ID] = &cp
	}
	return nil
}

func (m *MockCodeRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MockCodeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.store {
		if c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockCodeRepo) ListAllCodes(ctx context.Context, tx repository.Tx) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{}, len(m.store))
	for _, c := range m.store {
		out[c.Code] = struct{}{}
	}
	return out, nil
}

func (m *MockCodeRepo) List(ctx context.Context, tx repository.Tx, f model.CodeFilter) ([]*model.Code, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*model.Code
	for _, c := range m.store {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.PurchaseID != "" && c.PurchaseID != f.PurchaseID {
			continue
		}
		if f.Search != "" && !strings.Contains(c.Code, strings.ToUpper(f.Search)) {
			continue
		}
		cp := *c
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Code < all[j].Code })
	total := len(all)
	if f.Offset >= total {
		return nil, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return all[f.Offset:end], total, nil
}

func (m *MockCodeRepo) CountByStatus(ctx context.Context, tx repository.Tx, purchaseID string) (map[model.CodeStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[model.CodeStatus]int)
	for _, c := range m.store {
		if purchaseID == "" || c.PurchaseID == purchaseID {
			out[c.Status]++
		}
	}
	return out, nil
}

func (m *MockCodeRepo) CountByPurchase(ctx context.Context, tx repository.Tx, purchaseID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.store {
		if c.PurchaseID == purchaseID {
			n++
		}
	}
	return n, nil
}

func (m *MockCodeRepo) FindRedeemedBy(ctx context.Context, tx repository.Tx, userID string) ([]*model.Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Code
	for _, c := range m.store {
		if c.Status == model.CodeStatusRedeemed && c.RedeemedBy != nil && *c.RedeemedBy == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

// cas applies fn to the stored code when cond holds, under the lock.
func (m *MockCodeRepo) cas(id string, cond func(c *model.Code) bool, fn func(c *model.Code)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.store[id]
	if !ok || !cond(c) {
		return false, nil
	}
	fn(c)
	return true, nil
}

func (m *MockCodeRepo) MarkRedeemed(ctx context.Context, tx repository.Tx, id, userID string, at time.Time) (bool, error) {
	return m.cas(id, func(c *model.Code) bool {
		return c.Status == model.CodeStatusAvailable && c.ExpiresAt.After(at)
	}, func(c *model.Code) {
		c.Status = model.CodeStatusRedeemed
		c.RedeemedBy = &userID
		c.RedeemedAt = &at
		c.PreviouslyRedeemedBy = nil
		c.UpdatedAt = at
	})
}

func (m *MockCodeRepo) MarkExpired(ctx context.Context, tx repository.Tx, id string, at time.Time) (bool, error) {
	return m.cas(id, func(c *model.Code) bool {
		return c.Status == model.CodeStatusAvailable && !c.ExpiresAt.After(at)
	}, func(c *model.Code) {
		c.Status = model.CodeStatusExpired
		c.UpdatedAt = at
	})
}

func (m *MockCodeRepo) RevokeAvailable(ctx context.Context, tx repository.Tx, id, reason string, at time.Time) (bool, error) {
	return m.cas(id, func(c *model.Code) bool {
		return c.Status == model.CodeStatusAvailable
	}, func(c *model.Code) {
		c.Status = model.CodeStatusRevoked
		c.RevokedAt = &at
		c.RevokedReason = &reason
		c.UpdatedAt = at
	})
}

func (m *MockCodeRepo) RevokeRedeemed(ctx context.Context, tx repository.Tx, id, holderID, reason string, at time.Time) (bool, error) {
	return m.cas(id, func(c *model.Code) bool {
		return c.Status == model.CodeStatusRedeemed && c.RedeemedBy != nil && *c.RedeemedBy == holderID
	}, func(c *model.Code) {
		c.Status = model.CodeStatusAvailable
		c.PreviouslyRedeemedBy = &holderID
		c.RedeemedBy = nil
		c.RedeemedAt = nil
		c.RevokedAt = &at
		c.RevokedReason = &reason
		c.UpdatedAt = at
	})
}

func (m *MockCodeRepo) Reactivate(ctx context.Context, tx repository.Tx, id, holderID string, at time.Time) (bool, error) {
	return m.cas(id, func(c *model.Code) bool {
		return c.Status == model.CodeStatusAvailable && c.PreviouslyRedeemedBy != nil && *c.PreviouslyRedeemedBy == holderID
	}, func(c *model.Code) {
		c.Status = model.CodeStatusRedeemed
		c.RedeemedBy = &holderID
		c.RedeemedAt = &at
		c.PreviouslyRedeemedBy = nil
		c.RevokedAt = nil
		c.RevokedReason = nil
		c.UpdatedAt = at
	})
}

func (m *MockCodeRepo) MakeAvailable(ctx context.Context, tx repository.Tx, id string, at time.Time) (bool, error) {
	return m.cas(id, func(c *model.Code) bool {
		return c.Status == model.CodeStatusRevoked
	}, func(c *model.Code) {
		c.Status = model.CodeStatusAvailable
		c.PreviouslyRedeemedBy = nil
		c.RevokedAt = nil
		c.RevokedReason = nil
		c.UpdatedAt = at
	})
}

func (m *MockCodeRepo) ExpireOverdue(ctx context.Context, tx repository.Tx, at time.Time, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.store {
		if n >= limit {
			break
		}
		if c.Status == model.CodeStatusAvailable && !c.ExpiresAt.After(at) {
			c.Status = model.CodeStatusExpired
			n++
		}
	}
	return n, nil
}

// put stores c directly, bypassing generation.
func (m *MockCodeRepo) put(c *model.Code) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.store[c.ID] = &cp
}

// --- MockPurchaseRepo ---

type MockPurchaseRepo struct {
	mu    sync.Mutex
	store map[string]*model.Purchase
}

func NewMockPurchaseRepo() *MockPurchaseRepo {
	return &MockPurchaseRepo{store: make(map[string]*model.Purchase)}
}

func (m *MockPurchaseRepo) Save(ctx context.Context, tx repository.Tx, p *model.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ExternalSubscriptionID != nil {
		for _, existing := range m.store {
			if existing.ID != p.ID && existing.ExternalSubscriptionID != nil && *existing.ExternalSubscriptionID == *p.ExternalSubscriptionID {
				return domain.ErrAlreadyExists
			}
		}
	}
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *MockPurchaseRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPurchaseRepo) FindByExternalRef(ctx context.Context, tx repository.Tx, subscriptionID, checkoutID string) (*model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.store {
		if subscriptionID != "" && p.ExternalSubscriptionID != nil && *p.ExternalSubscriptionID == subscriptionID {
			cp := *p
			return &cp, nil
		}
	}
	for _, p := range m.store {
		if checkoutID != "" && p.ExternalCheckoutID != nil && *p.ExternalCheckoutID == checkoutID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPurchaseRepo) List(ctx context.Context, tx repository.Tx, limit, offset int) ([]*model.Purchase, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Purchase
	for _, p := range m.store {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return out[offset:end], total, nil
}

func (m *MockPurchaseRepo) MarkCodesGenerated(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok || p.CodesGenerated {
		return false, nil
	}
	p.CodesGenerated = true
	return true, nil
}

func (m *MockPurchaseRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, from, to model.PurchaseStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	return true, nil
}

func (m *MockPurchaseRepo) ListCodesPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Purchase
	for _, p := range m.store {
		if p.Status == model.PurchaseStatusCompleted && !p.CodesGenerated && p.CreatedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockPurchaseRepo) LatestCustomerID(ctx context.Context, tx repository.Tx, issuerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *model.Purchase
	for _, p := range m.store {
		if p.IssuerID != issuerID || p.Source != model.PurchaseSourceCheckout || p.ExternalCustomerID == nil {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return "", domain.ErrNotFound
	}
	return *latest.ExternalCustomerID, nil
}

// --- MockEntitlementRepo ---

type MockEntitlementRepo struct {
	mu     sync.Mutex
	byUser map[string]*model.Entitlement
}

func NewMockEntitlementRepo() *MockEntitlementRepo {
	return &MockEntitlementRepo{byUser: make(map[string]*model.Entitlement)}
}

func (m *MockEntitlementRepo) FindByUserID(ctx context.Context, tx repository.Tx, userID string) (*model.Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byUser[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MockEntitlementRepo) FindBySubscriptionID(ctx context.Context, tx repository.Tx, subscriptionID string) (*model.Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.byUser {
		if e.ExternalSubscriptionID != nil && *e.ExternalSubscriptionID == subscriptionID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockEntitlementRepo) Upsert(ctx context.Context, tx repository.Tx, e *model.Entitlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	if prev, ok := m.byUser[e.UserID]; ok {
		cp.ID = prev.ID
		cp.BillingEventAt = prev.BillingEventAt
		if cp.ExternalCustomerID == nil {
			cp.ExternalCustomerID = prev.ExternalCustomerID
		}
	}
	m.byUser[e.UserID] = &cp
	return nil
}

func (m *MockEntitlementRepo) UpsertFromBilling(ctx context.Context, tx repository.Tx, e *model.Entitlement) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.byUser[e.UserID]; ok {
		if prev.BillingEventAt != nil && e.BillingEventAt != nil && e.BillingEventAt.Before(*prev.BillingEventAt) {
			return false, nil
		}
		e.ID = prev.ID
	}
	cp := *e
	m.byUser[e.UserID] = &cp
	return true, nil
}

func (m *MockEntitlementRepo) LinkBilling(ctx context.Context, tx repository.Tx, userID, customerID, subscriptionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byUser[userID]
	if !ok {
		e = &model.Entitlement{ID: "ent-" + userID, UserID: userID, Source: model.EntitlementSourceBilling, Status: model.EntitlementIncomplete}
		m.byUser[userID] = e
	}
	e.ExternalCustomerID = &customerID
	e.ExternalSubscriptionID = &subscriptionID
	return nil
}

func (m *MockEntitlementRepo) SetStatusIf(ctx context.Context, tx repository.Tx, userID string, from []model.EntitlementStatus, to model.EntitlementStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byUser[userID]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if e.Status == s {
			e.Status = to
			e.UpdatedAt = at
			return true, nil
		}
	}
	return false, nil
}

func (m *MockEntitlementRepo) CancelForCode(ctx context.Context, tx repository.Tx, userID, codeID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byUser[userID]
	if !ok || e.CodeID == nil || *e.CodeID != codeID || e.Status == model.EntitlementCanceled {
		return false, nil
	}
	e.Status = model.EntitlementCanceled
	e.CanceledAt = &at
	e.EndedAt = &at
	return true, nil
}

func (m *MockEntitlementRepo) ExpireLapsed(ctx context.Context, tx repository.Tx, at time.Time, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.byUser {
		if n >= limit {
			break
		}
		if e.Source == model.EntitlementSourceCode && e.Status == model.EntitlementActive &&
			e.CurrentPeriodEnd != nil && !e.CurrentPeriodEnd.After(at) {
			e.Status = model.EntitlementCanceled
			e.EndedAt = &at
			n++
		}
	}
	return n, nil
}

func (m *MockEntitlementRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.EntitlementStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[model.EntitlementStatus]int)
	for _, e := range m.byUser {
		out[e.Status]++
	}
	return out, nil
}

func (m *MockEntitlementRepo) put(e *model.Entitlement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.byUser[e.UserID] = &cp
}

// --- MockTransactionRepo ---

type MockTransactionRepo struct {
	mu    sync.Mutex
	items []*model.Transaction
}

func NewMockTransactionRepo() *MockTransactionRepo { return &MockTransactionRepo{} }

func (m *MockTransactionRepo) Append(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ExternalEventID != nil {
		for _, existing := range m.items {
			if existing.ExternalEventID != nil && *existing.ExternalEventID == *t.ExternalEventID {
				return domain.ErrAlreadyExists
			}
		}
	}
	cp := *t
	m.items = append(m.items, &cp)
	return nil
}

func (m *MockTransactionRepo) ExistsByEventID(ctx context.Context, tx repository.Tx, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.items {
		if t.ExternalEventID != nil && *t.ExternalEventID == eventID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockTransactionRepo) FindByChargeID(ctx context.Context, tx repository.Tx, chargeID string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.items {
		if t.Type != model.TxRefund && t.ExternalChargeID != nil && *t.ExternalChargeID == chargeID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockTransactionRepo) MarkRefunded(ctx context.Context, tx repository.Tx, id string, amountRefunded int64, full bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.items {
		if t.ID == id {
			t.AmountRefunded = amountRefunded
			if full {
				t.Status = model.TxStatusRefunded
			}
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *MockTransactionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit, offset int) ([]*model.Transaction, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Transaction
	for _, t := range m.items {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *MockTransactionRepo) ofType(typ model.TransactionType) []*model.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Transaction
	for _, t := range m.items {
		if t.Type == typ {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out
}

// --- MockBillingEventRepo ---

type MockBillingEventRepo struct {
	mu    sync.Mutex
	store map[string]*model.ProcessedEvent
}

func NewMockBillingEventRepo() *MockBillingEventRepo {
	return &MockBillingEventRepo{store: make(map[string]*model.ProcessedEvent)}
}

func (m *MockBillingEventRepo) IsProcessed(ctx context.Context, tx repository.Tx, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.store[eventID]
	return ok && e.Outcome != model.OutcomeFailed, nil
}

func (m *MockBillingEventRepo) Record(ctx context.Context, tx repository.Tx, e *model.ProcessedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.store[e.ID] = &cp
	return nil
}

func (m *MockBillingEventRepo) List(ctx context.Context, tx repository.Tx, outcome model.EventOutcome, limit, offset int) ([]*model.ProcessedEvent, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ProcessedEvent
	for _, e := range m.store {
		if outcome == "" || e.Outcome == outcome {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *MockBillingEventRepo) get(id string) *model.ProcessedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store[id]
}

// --- MockPublisher ---

type MockPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (m *MockPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, routingKey)
	return nil
}

func (m *MockPublisher) Close() error { return nil }

func (m *MockPublisher) published() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.keys...)
}

// --- MockSeenStore ---

type MockSeenStore struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewMockSeenStore() *MockSeenStore { return &MockSeenStore{seen: make(map[string]bool)} }

func (m *MockSeenStore) Seen(ctx context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[eventID], nil
}

func (m *MockSeenStore) MarkSeen(ctx context.Context, eventID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[eventID] = true
	return nil
}

// --- MockBillingGateway ---

type MockBillingGateway struct {
	Plans            map[string]*model.Plan
	LastCheckout     adapter.BulkCheckoutRequest
	CustomersCreated int
	Err              error
}

func (m *MockBillingGateway) Name() string { return "mock" }

func (m *MockBillingGateway) GetPlan(ctx context.Context, priceID string) (*model.Plan, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	p, ok := m.Plans[priceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (m *MockBillingGateway) CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	m.CustomersCreated++
	return "cus_new", nil
}

func (m *MockBillingGateway) CreateBulkCheckout(ctx context.Context, req adapter.BulkCheckoutRequest) (*adapter.CheckoutSession, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.LastCheckout = req
	return &adapter.CheckoutSession{ID: "cs_test", URL: "https://checkout.test/cs_test", CustomerID: req.CustomerID}, nil
}

func (m *MockBillingGateway) CreatePortalSession(ctx context.Context, customerID string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	return "https://portal.test/" + customerID, nil
}
