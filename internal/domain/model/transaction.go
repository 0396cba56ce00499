package model

import "time"

type TransactionType string

const (
	TxSubscriptionCreated     TransactionType = "subscription_created"
	TxSubscriptionRenewed     TransactionType = "subscription_renewed"
	TxSubscriptionUpdated     TransactionType = "subscription_updated"
	TxSubscriptionCanceled    TransactionType = "subscription_canceled"
	TxPaymentFailed           TransactionType = "payment_failed"
	TxRefund                  TransactionType = "refund"
	TxBulkPurchase            TransactionType = "bulk_subscription_purchase"
	TxBulkSubscriptionUpdated TransactionType = "bulk_subscription_updated"
	TxBulkSubscriptionEnded   TransactionType = "bulk_subscription_canceled"
	TxAdminGrant              TransactionType = "admin_grant"
	TxCodeRedemption          TransactionType = "code_redemption"
	TxCodeRevoked             TransactionType = "code_revoked"
	TxCodeReactivated         TransactionType = "code_reactivated"
	TxCodeMadeAvailable       TransactionType = "code_made_available"
)

type TransactionStatus string

const (
	TxStatusPending   TransactionStatus = "pending"
	TxStatusSucceeded TransactionStatus = "succeeded"
	TxStatusFailed    TransactionStatus = "failed"
	TxStatusRefunded  TransactionStatus = "refunded"
	TxStatusCanceled  TransactionStatus = "canceled"
)

// Transaction is an append-only audit entry. ExternalEventID is unique and is the
// persisted idempotency key for billing events and code operations alike.
type Transaction struct {
	ID                      string // ULID, sortable by creation
	UserID                  string
	PurchaseID              *string
	CodeID                  *string
	ExternalEventID         *string
	ExternalCustomerID      *string
	ExternalSubscriptionID  *string
	ExternalInvoiceID       *string
	ExternalPaymentIntentID *string
	ExternalChargeID        *string
	RawEventType            string
	Type                    TransactionType
	Status                  TransactionStatus
	Amount                  int64 // minor units
	AmountRefunded          int64
	Currency                string
	PriceID                 string
	ProductID               string
	PeriodStart             *time.Time
	PeriodEnd               *time.Time
	FailureCode             string
	FailureMessage          string
	Description             string
	Metadata                map[string]string
	CreatedAt               time.Time
}
