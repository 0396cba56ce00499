package model

import (
	"strings"

	"prepaid-subscription/internal/domain"
)

// Plan is one billing price as seen by this service: what a code or a
// subscription grants and what it is called.
type Plan struct {
	PriceID       string
	ProductID     string
	Name          string
	Description   string
	UnitAmount    int64  // minor units
	Currency      string // lower-case ISO code
	Interval      string // day|week|month|year, empty for one-off prices
	IntervalCount int64
	Active        bool
}

func (p *Plan) IsZero() bool { return p == nil || p.PriceID == "" }

// NewPlan validates and constructs a plan.
func NewPlan(priceID, productID, name string, unitAmount int64, currency string) (*Plan, error) {
	if priceID == "" || productID == "" || unitAmount < 0 {
		return nil, domain.ErrInvalidArgument
	}
	if currency == "" {
		currency = "usd"
	}
	return &Plan{
		PriceID:    priceID,
		ProductID:  productID,
		Name:       name,
		UnitAmount: unitAmount,
		Currency:   strings.ToLower(currency),
		Active:     true,
	}, nil
}

// DurationDays converts the recurring interval into the number of days a
// prepaid code for this price grants. Unknown intervals fall back to 30.
func (p *Plan) DurationDays() int {
	n := int(p.IntervalCount)
	if n <= 0 {
		n = 1
	}
	switch strings.ToLower(p.Interval) {
	case "day":
		return n
	case "week":
		return 7 * n
	case "month":
		return 30 * n
	case "year":
		return 365 * n
	default:
		return 30
	}
}

// DisplayName never returns an empty string.
func (p *Plan) DisplayName() string {
	if p == nil || p.Name == "" {
		return "Subscription"
	}
	return p.Name
}
