package model

import (
	"fmt"
	"time"

	"prepaid-subscription/internal/domain"
)

type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusFailed    PurchaseStatus = "failed"
	PurchaseStatusRefunded  PurchaseStatus = "refunded"
)

type PurchaseSource string

const (
	PurchaseSourceCheckout   PurchaseSource = "checkout"    // paid bulk checkout confirmed by webhook
	PurchaseSourceAdminGrant PurchaseSource = "admin_grant" // zero-amount administrative grant
)

const (
	AdminGrantPriceID   = "admin_custom_price"
	AdminGrantProductID = "admin_custom_product"
)

// Purchase is one bulk acquisition that yields a batch of Codes.
type Purchase struct {
	ID                      string // UUID
	IssuerID                string // admin that bought or granted the batch
	Source                  PurchaseSource
	ExternalCustomerID      *string // billing ids are nil for admin grants
	ExternalSubscriptionID  *string
	ExternalCheckoutID      *string
	ExternalPaymentIntentID *string
	PriceID                 string
	ProductID               string
	Quantity                int
	UnitAmount              int64 // minor units
	TotalAmount             int64
	Currency                string
	Status                  PurchaseStatus
	DurationDays            int
	CodesGenerated          bool
	PaidAt                  *time.Time
	Metadata                map[string]string
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

var purchaseTransitions = map[PurchaseStatus][]PurchaseStatus{
	PurchaseStatusPending:   {PurchaseStatusCompleted, PurchaseStatusFailed},
	PurchaseStatusCompleted: {PurchaseStatusRefunded},
	PurchaseStatusFailed:    {PurchaseStatusCompleted},
	PurchaseStatusRefunded:  {},
}

// ValidatePurchaseTransition is the single gate for purchase status changes.
// Re-applying the current status is accepted so duplicate events stay harmless.
func ValidatePurchaseTransition(from, to PurchaseStatus) error {
	if from == to {
		return nil
	}
	for _, s := range purchaseTransitions[from] {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: purchase %s -> %s", domain.ErrInvalidTransition, from, to)
}

// PurchaseSummary is a purchase with the status breakdown of its codes.
type PurchaseSummary struct {
	Purchase   *Purchase
	CodeCounts map[CodeStatus]int
}
