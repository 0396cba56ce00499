// Package billing adapts Stripe to the billing ports.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/price"

	"prepaid-subscription/internal/config"
	"prepaid-subscription/internal/domain"
	"prepaid-subscription/internal/domain/model"
	"prepaid-subscription/internal/domain/ports/adapter"
)

var _ adapter.BillingGateway = (*StripeGateway)(nil)

// StripeGateway calls the Stripe API. The SDK entry points are fields so tests
// can replace them.
type StripeGateway struct {
	cfg     config.BillingConfig
	log     *zerolog.Logger
	timeout time.Duration

	getPrice            func(id string, params *stripe.PriceParams) (*stripe.Price, error)
	createCustomer      func(params *stripe.CustomerParams) (*stripe.Customer, error)
	createCheckout      func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	createPortalSession func(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
}

func NewStripeGateway(cfg config.BillingConfig, logger *zerolog.Logger) (*StripeGateway, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("billing.secret_key is required")
	}
	stripe.Key = strings.TrimSpace(cfg.SecretKey)
	l := logger.With().Str("component", "stripe_gateway").Logger()
	return &StripeGateway{
		cfg:                 cfg,
		log:                 &l,
		timeout:             cfg.Timeout,
		getPrice:            price.Get,
		createCustomer:      customer.New,
		createCheckout:      checkoutsession.New,
		createPortalSession: portalsession.New,
	}, nil
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *StripeGateway) GetPlan(ctx context.Context, priceID string) (*model.Plan, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	params := &stripe.PriceParams{}
	params.Context = ctx
	params.AddExpand("product")
	p, err := g.getPrice(priceID, params)
	if err != nil {
		return nil, g.wrap("get price", err)
	}
	return planFromPrice(p), nil
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (string, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	params := &stripe.CustomerParams{}
	params.Context = ctx
	if email != "" {
		params.Email = stripe.String(email)
	}
	if name != "" {
		params.Name = stripe.String(name)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	c, err := g.createCustomer(params)
	if err != nil {
		return "", g.wrap("create customer", err)
	}
	return c.ID, nil
}

// CreateBulkCheckout opens a subscription checkout for Quantity seats of the
// plan. The bulk metadata is copied onto the subscription so later
// subscription and invoice events can be traced back to the purchase.
func (g *StripeGateway) CreateBulkCheckout(ctx context.Context, req adapter.BulkCheckoutRequest) (*adapter.CheckoutSession, error) {
	if req.Plan.IsZero() || req.Quantity <= 0 || req.CustomerID == "" {
		return nil, domain.ErrInvalidArgument
	}
	ctx, cancel := g.bound(ctx)
	defer cancel()

	meta := BulkMetadata(req)
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:   stripe.String(req.CustomerID),
		SuccessURL: stripe.String(g.cfg.SuccessURL),
		CancelURL:  stripe.String(g.cfg.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.Plan.PriceID),
				Quantity: stripe.Int64(int64(req.Quantity)),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: meta,
		},
	}
	params.Context = ctx
	for k, v := range meta {
		params.AddMetadata(k, v)
	}

	s, err := g.createCheckout(params)
	if err != nil {
		return nil, g.wrap("create checkout session", err)
	}
	if strings.TrimSpace(s.URL) == "" {
		return nil, fmt.Errorf("%w: checkout session %s has no url", domain.ErrBillingUnavailable, s.ID)
	}
	return &adapter.CheckoutSession{ID: s.ID, URL: s.URL, CustomerID: req.CustomerID}, nil
}

func (g *StripeGateway) CreatePortalSession(ctx context.Context, customerID string) (string, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	params := &stripe.BillingPortalSessionParams{
		Customer: stripe.String(customerID),
	}
	if g.cfg.PortalReturnURL != "" {
		params.ReturnURL = stripe.String(g.cfg.PortalReturnURL)
	}
	params.Context = ctx
	s, err := g.createPortalSession(params)
	if err != nil {
		return "", g.wrap("create portal session", err)
	}
	return s.URL, nil
}

// wrap maps SDK errors: missing resources become domain.ErrNotFound, anything
// else domain.ErrBillingUnavailable.
func (g *StripeGateway) wrap(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.Code == stripe.ErrorCodeResourceMissing {
		return fmt.Errorf("%w: %s: %s", domain.ErrNotFound, op, se.Msg)
	}
	g.log.Warn().Err(err).Str("op", op).Msg("stripe call failed")
	return fmt.Errorf("%w: %s: %v", domain.ErrBillingUnavailable, op, err)
}

// BulkMetadata is the metadata attached to bulk checkouts and their subscriptions.
func BulkMetadata(req adapter.BulkCheckoutRequest) map[string]string {
	return map[string]string{
		"type":                     model.MetadataTypeBulkPurchase,
		"adminId":                  req.AdminID,
		"quantity":                 strconv.Itoa(req.Quantity),
		"subscriptionDurationDays": strconv.Itoa(req.DurationDays),
		"stripePriceId":            req.Plan.PriceID,
		"stripeProductId":          req.Plan.ProductID,
		"unitAmount":               strconv.FormatInt(req.Plan.UnitAmount, 10),
		"currency":                 req.Plan.Currency,
	}
}

func planFromPrice(p *stripe.Price) *model.Plan {
	plan := &model.Plan{
		PriceID:    p.ID,
		Name:       p.Nickname,
		UnitAmount: p.UnitAmount,
		Currency:   strings.ToLower(string(p.Currency)),
		Active:     p.Active,
	}
	if p.Product != nil {
		plan.ProductID = p.Product.ID
		if p.Product.Name != "" {
			plan.Name = p.Product.Name
		}
		plan.Description = p.Product.Description
	}
	if p.Recurring != nil {
		plan.Interval = string(p.Recurring.Interval)
		plan.IntervalCount = p.Recurring.IntervalCount
	}
	return plan
}
