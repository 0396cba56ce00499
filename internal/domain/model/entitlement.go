package model

import (
	"fmt"
	"time"

	"prepaid-subscription/internal/domain"
)

type EntitlementStatus string

const (
	EntitlementIncomplete        EntitlementStatus = "incomplete"
	EntitlementIncompleteExpired EntitlementStatus = "incomplete_expired"
	EntitlementTrialing          EntitlementStatus = "trialing"
	EntitlementActive            EntitlementStatus = "active"
	EntitlementPastDue           EntitlementStatus = "past_due"
	EntitlementCanceled          EntitlementStatus = "canceled"
	EntitlementUnpaid            EntitlementStatus = "unpaid"
	EntitlementPaused            EntitlementStatus = "paused"
)

type EntitlementSource string

const (
	EntitlementSourceBilling EntitlementSource = "billing"
	EntitlementSourceCode    EntitlementSource = "code"
)

// Entitlement is the per-user access record. There is at most one per user.
type Entitlement struct {
	ID                     string // UUID
	UserID                 string
	Source                 EntitlementSource
	ExternalCustomerID     *string
	ExternalSubscriptionID *string // nil for code-based entitlements
	PriceID                string
	ProductID              string
	Status                 EntitlementStatus
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	AutoRenew              bool
	CancelAtPeriodEnd      bool
	CanceledAt             *time.Time
	EndedAt                *time.Time
	CodeID                 *string // set when Source == code
	DurationDays           int
	BillingEventAt         *time.Time // created-at of the last billing event applied
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// HasAccess reports whether the user is treated as subscribed at now.
// Non-renewing entitlements also stop granting access once their period ends,
// even before the lapse sweep has flipped the status.
func (e *Entitlement) HasAccess(now time.Time) bool {
	if e == nil {
		return false
	}
	if e.Status != EntitlementActive && e.Status != EntitlementTrialing {
		return false
	}
	if !e.AutoRenew && e.CurrentPeriodEnd != nil && !now.Before(*e.CurrentPeriodEnd) {
		return false
	}
	return true
}

func (e *Entitlement) IsCodeBased() bool {
	return e != nil && e.ExternalSubscriptionID == nil
}

var entitlementTransitions = map[EntitlementStatus][]EntitlementStatus{
	EntitlementIncomplete:        {EntitlementIncompleteExpired, EntitlementTrialing, EntitlementActive, EntitlementPastDue, EntitlementUnpaid, EntitlementCanceled},
	EntitlementIncompleteExpired: {EntitlementIncomplete, EntitlementTrialing, EntitlementActive},
	EntitlementTrialing:          {EntitlementActive, EntitlementPastDue, EntitlementUnpaid, EntitlementPaused, EntitlementCanceled},
	EntitlementActive:            {EntitlementTrialing, EntitlementPastDue, EntitlementUnpaid, EntitlementPaused, EntitlementCanceled},
	EntitlementPastDue:           {EntitlementActive, EntitlementUnpaid, EntitlementPaused, EntitlementCanceled},
	EntitlementUnpaid:            {EntitlementActive, EntitlementPastDue, EntitlementCanceled},
	EntitlementPaused:            {EntitlementActive, EntitlementTrialing, EntitlementCanceled},
	// canceled records are reused by a later checkout or redemption
	EntitlementCanceled: {EntitlementIncomplete, EntitlementTrialing, EntitlementActive},
}

// ValidateEntitlementTransition is the single gate for entitlement status changes.
func ValidateEntitlementTransition(from, to EntitlementStatus) error {
	if from == to {
		return nil
	}
	for _, s := range entitlementTransitions[from] {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: entitlement %s -> %s", domain.ErrInvalidTransition, from, to)
}

// ParseEntitlementStatus accepts provider status strings.
func ParseEntitlementStatus(s string) (EntitlementStatus, error) {
	st := EntitlementStatus(s)
	if _, ok := entitlementTransitions[st]; !ok {
		return "", fmt.Errorf("%w: unknown entitlement status %q", domain.ErrInvalidArgument, s)
	}
	return st, nil
}

// EntitlementSummary is what a user sees about their own access.
type EntitlementSummary struct {
	HasAccess         bool              `json:"has_access"`
	Status            EntitlementStatus `json:"status,omitempty"`
	CurrentPeriodEnd  *time.Time        `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	IsCodeBased       bool              `json:"is_code_based"`
}
