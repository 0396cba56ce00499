package usecase

import (
	"context"
	"sync"

	"prepaid-subscription/internal/domain/model"
	"prepaid-subscription/internal/domain/ports/adapter"
)

// PlanCatalog resolves billing price ids to display data.
type PlanCatalog interface {
	Lookup(ctx context.Context, priceID string) (*model.Plan, bool)
}

type planCatalog struct {
	mu      sync.RWMutex
	plans   map[string]*model.Plan
	gateway adapter.BillingGateway
}

// NewPlanCatalog serves the configured plans and falls back to the billing
// gateway (if any) for unknown prices, remembering what it fetched.
func NewPlanCatalog(plans []*model.Plan, gateway adapter.BillingGateway) PlanCatalog {
	m := make(map[string]*model.Plan, len(plans))
	for _, p := range plans {
		if !p.IsZero() {
			m[p.PriceID] = p
		}
	}
	return &planCatalog{plans: m, gateway: gateway}
}

func (c *planCatalog) Lookup(ctx context.Context, priceID string) (*model.Plan, bool) {
	if priceID == "" {
		return nil, false
	}
	c.mu.RLock()
	p, ok := c.plans[priceID]
	c.mu.RUnlock()
	if ok {
		return p, true
	}
	if c.gateway == nil || priceID == model.AdminGrantPriceID {
		return nil, false
	}

	p, err := c.gateway.GetPlan(ctx, priceID)
	if err != nil || p.IsZero() {
		return nil, false
	}
	c.mu.Lock()
	c.plans[priceID] = p
	c.mu.Unlock()
	return p, true
}
