//go:build !integration

package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"prepaid-subscription/internal/domain/model"
	"prepaid-subscription/internal/usecase"
)

const testPriceID = "price_pro_monthly"

// testEnv wires every use case against the in-memory repositories.
type testEnv struct {
	codes     *MockCodeRepo
	purchases *MockPurchaseRepo
	ents      *MockEntitlementRepo
	txs       *MockTransactionRepo
	events    *MockBillingEventRepo
	seen      *MockSeenStore
	tm        *MockTxManager
	pub       *MockPublisher
	gateway   *MockBillingGateway

	codeUC      usecase.CodeUseCase
	purchaseUC  usecase.PurchaseUseCase
	redemption  usecase.RedemptionUseCase
	revocation  usecase.RevocationUseCase
	entitlement usecase.EntitlementUseCase
	reconciler  usecase.ReconcilerUseCase
	reconDeps   usecase.ReconcilerDeps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := newTestLogger()
	env := &testEnv{
		codes:     NewMockCodeRepo(),
		purchases: NewMockPurchaseRepo(),
		ents:      NewMockEntitlementRepo(),
		txs:       NewMockTransactionRepo(),
		events:    NewMockBillingEventRepo(),
		seen:      NewMockSeenStore(),
		tm:        NewMockTxManager(),
		pub:       &MockPublisher{},
		gateway: &MockBillingGateway{Plans: map[string]*model.Plan{
			"price_yearly": {PriceID: "price_yearly", ProductID: "prod_pro", Name: "Pro Yearly", UnitAmount: 9900, Currency: "usd", Interval: "year", IntervalCount: 1, Active: true},
			"price_once":   {PriceID: "price_once", ProductID: "prod_pro", Name: "Pro Once", UnitAmount: 900, Currency: "usd", Active: true},
		}},
	}
	catalog := usecase.NewPlanCatalog([]*model.Plan{
		{PriceID: testPriceID, ProductID: "prod_pro", Name: "Pro", UnitAmount: 999, Currency: "usd", Interval: "month", IntervalCount: 1, Active: true},
	}, env.gateway)
	notifier := usecase.NewNotifier(env.pub, nil, logger)

	env.codeUC = usecase.NewCodeUseCase(env.codes, usecase.NewCodeGenerator(nil), 365*24*time.Hour, logger)
	env.purchaseUC = usecase.NewPurchaseUseCase(env.purchases, env.codes, env.codeUC, env.txs, env.gateway, catalog, env.tm, notifier, 100, logger)
	env.redemption = usecase.NewRedemptionUseCase(env.codes, env.ents, env.txs, catalog, env.tm, notifier, false, logger)
	env.revocation = usecase.NewRevocationUseCase(env.codes, env.ents, env.txs, env.tm, notifier, logger)
	env.entitlement = usecase.NewEntitlementUseCase(env.ents, env.txs, env.gateway, notifier, logger)
	env.reconDeps = usecase.ReconcilerDeps{
		Purchases:    env.purchaseUC,
		PurchaseRepo: env.purchases,
		Entitlements: env.ents,
		Transactions: env.txs,
		Events:       env.events,
		Seen:         env.seen,
		CacheSize:    128,
		Notifier:     notifier,
	}
	env.reconciler = usecase.NewReconcilerUseCase(env.reconDeps, logger)
	return env
}

// seedCode stores an available code with a 30 day duration expiring at expiresAt.
func (e *testEnv) seedCode(code string, status model.CodeStatus, expiresAt time.Time) *model.Code {
	c := &model.Code{
		ID:           uuid.NewString(),
		PurchaseID:   "purchase-seed",
		IssuerID:     "admin-1",
		Code:         code,
		Status:       status,
		PriceID:      testPriceID,
		ProductID:    "prod_pro",
		DurationDays: 30,
		ExpiresAt:    expiresAt,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if status == model.CodeStatusRedeemed {
		holder := "someone-else"
		c.RedeemedBy = &holder
	}
	e.codes.put(c)
	return c
}

func (e *testEnv) code(t *testing.T, id string) *model.Code {
	t.Helper()
	c, err := e.codes.FindByID(context.Background(), nil, id)
	if err != nil {
		t.Fatalf("code %s not found: %v", id, err)
	}
	return c
}

func (e *testEnv) entitlementOf(t *testing.T, userID string) *model.Entitlement {
	t.Helper()
	ent, err := e.ents.FindByUserID(context.Background(), nil, userID)
	if err != nil {
		t.Fatalf("entitlement for %s not found: %v", userID, err)
	}
	return ent
}

func withinMinute(got, want time.Time) bool {
	d := got.Sub(want)
	return d > -time.Minute && d < time.Minute
}
