package model

import "time"

// BillingEvent is a verified provider event translated into the fields the
// reconciler acts on. Exactly one of the typed payloads is set for modeled types.
type BillingEvent struct {
	ID        string
	Type      string
	CreatedAt time.Time

	Checkout     *CheckoutPayload
	Subscription *SubscriptionPayload
	Invoice      *InvoicePayload
	Charge       *ChargePayload
}

// Provider event types the reconciler knows about.
const (
	EventCheckoutCompleted       = "checkout.session.completed"
	EventCheckoutExpired         = "checkout.session.expired"
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventSubscriptionPaused      = "customer.subscription.paused"
	EventSubscriptionResumed     = "customer.subscription.resumed"
	EventSubscriptionTrialEnds   = "customer.subscription.trial_will_end"
	EventInvoicePaid             = "invoice.paid"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
	EventInvoiceUpcoming         = "invoice.upcoming"
	EventInvoiceFinalized        = "invoice.finalized"
	EventPaymentIntentSucceeded  = "payment_intent.succeeded"
	EventPaymentIntentFailed     = "payment_intent.payment_failed"
	EventChargeRefunded          = "charge.refunded"
	EventCustomerUpdated         = "customer.updated"
)

// MetadataTypeBulkPurchase marks checkout sessions and subscriptions that buy code batches.
const MetadataTypeBulkPurchase = "bulk_subscription_purchase"

type CheckoutPayload struct {
	SessionID       string
	Mode            string
	CustomerID      string
	SubscriptionID  string
	PaymentIntentID string
	AmountTotal     int64
	Currency        string
	Metadata        map[string]string
}

type SubscriptionPayload struct {
	ID                 string
	CustomerID         string
	Status             string
	PriceID            string
	ProductID          string
	UnitAmount         int64
	Currency           string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
	EndedAt            *time.Time
	Metadata           map[string]string

	// Previous* are taken from the event's previous_attributes.
	PreviousStatus            string
	PreviousCancelAtPeriodEnd *bool
	ItemsChanged              bool
}

type InvoicePayload struct {
	ID               string
	CustomerID       string
	SubscriptionID   string
	PaymentIntentID  string
	ChargeID         string
	BillingReason    string
	AmountPaid       int64
	AmountDue        int64
	Currency         string
	PriceID          string
	ProductID        string
	LineDescription  string
	PeriodStart      *time.Time
	PeriodEnd        *time.Time
	HostedInvoiceURL string
}

type ChargePayload struct {
	ID              string
	CustomerID      string
	PaymentIntentID string
	Amount          int64
	AmountRefunded  int64
	Refunded        bool
	Currency        string
}

type EventOutcome string

const (
	OutcomeProcessed EventOutcome = "processed"
	OutcomeDuplicate EventOutcome = "duplicate"
	OutcomeIgnored   EventOutcome = "ignored"
	OutcomeFailed    EventOutcome = "failed"
)

// ProcessedEvent is the persisted record of a handled billing event.
type ProcessedEvent struct {
	ID          string
	Type        string
	Outcome     EventOutcome
	Error       string
	ReceivedAt  time.Time
	ProcessedAt time.Time
}
