package adapter

import (
	"context"

	"prepaid-subscription/internal/domain/model"
)

// BulkCheckoutRequest describes a bulk code purchase started by an admin.
type BulkCheckoutRequest struct {
	AdminID      string
	AdminEmail   string
	CustomerID   string // reused when the admin already has one
	Plan         *model.Plan
	Quantity     int
	DurationDays int
}

type CheckoutSession struct {
	ID         string
	URL        string
	CustomerID string
}

// BillingGateway is the port for the billing provider's synchronous APIs.
// Implementations bound every call with a timeout.
type BillingGateway interface {
	Name() string
	GetPlan(ctx context.Context, priceID string) (*model.Plan, error)
	CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (string, error)
	CreateBulkCheckout(ctx context.Context, req BulkCheckoutRequest) (*CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID string) (string, error)
}

// WebhookVerifier checks a raw signed payload and translates it into a BillingEvent.
type WebhookVerifier interface {
	Verify(payload []byte, signatureHeader string) (*model.BillingEvent, error)
}
