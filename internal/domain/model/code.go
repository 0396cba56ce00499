package model

import (
	"fmt"
	"strings"
	"time"

	"prepaid-subscription/internal/domain"
)

type CodeStatus string

const (
	CodeStatusAvailable CodeStatus = "available"
	CodeStatusRedeemed  CodeStatus = "redeemed"
	CodeStatusRevoked   CodeStatus = "revoked"
	CodeStatusExpired   CodeStatus = "expired"
)

const (
	// CodeAlphabet omits 0/O and 1/I. Its size is 32 so a random byte maps onto it without bias.
	CodeAlphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	CodeGroups     = 4
	CodeGroupSize  = 4
	CodeSeparator  = "-"
	CodeRawLength  = CodeGroups * CodeGroupSize
	codeFullLength = CodeRawLength + CodeGroups - 1
)

// Code is one redeemable prepaid unit generated from a Purchase.
type Code struct {
	ID                   string // UUID
	PurchaseID           string // UUID -> Purchase
	IssuerID             string // admin who owns the batch
	Code                 string // XXXX-XXXX-XXXX-XXXX, globally unique
	Status               CodeStatus
	PriceID              string // billing price the code stands for
	ProductID            string
	DurationDays         int       // subscription length granted on redemption
	ExpiresAt            time.Time // redemption deadline, not subscription length
	RedeemedBy           *string
	RedeemedAt           *time.Time
	RevokedAt            *time.Time
	RevokedReason        *string
	PreviouslyRedeemedBy *string // set only by revoke-from-redeemed, enables Reactivate
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// IsPastDeadline reports whether the redemption deadline has passed at now.
func (c *Code) IsPastDeadline(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// codeTransitions lists every allowed edge of the code state machine.
// available -> redeemed covers both fresh redemption and reactivation.
var codeTransitions = map[CodeStatus][]CodeStatus{
	CodeStatusAvailable: {CodeStatusRedeemed, CodeStatusRevoked, CodeStatusExpired},
	CodeStatusRedeemed:  {CodeStatusAvailable, CodeStatusExpired},
	CodeStatusRevoked:   {CodeStatusAvailable},
	CodeStatusExpired:   {},
}

// ValidateCodeTransition is the single gate for code status changes.
func ValidateCodeTransition(from, to CodeStatus) error {
	next, ok := codeTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown code status %q", domain.ErrInvalidTransition, from)
	}
	for _, s := range next {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: code %s -> %s", domain.ErrInvalidTransition, from, to)
}

// StatusError maps a non-available status to the redemption error callers see.
func (s CodeStatus) StatusError() error {
	switch s {
	case CodeStatusRedeemed:
		return domain.ErrCodeAlreadyRedeemed
	case CodeStatusRevoked:
		return domain.ErrCodeRevoked
	case CodeStatusExpired:
		return domain.ErrCodeExpired
	}
	return nil
}

func (s CodeStatus) Valid() bool {
	_, ok := codeTransitions[s]
	return ok
}

// NormalizeCode turns user input such as "abcd efgh-jkln_pqrs" into the canonical
// grouped form. Input that is not exactly CodeGroups*CodeGroupSize symbols once
// separators are dropped is still regrouped, so lookups simply miss.
func NormalizeCode(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		switch r {
		case '-', ' ', '_', '\t', '.':
			continue
		}
		b.WriteRune(r)
	}
	compact := b.String()
	if compact == "" {
		return "", fmt.Errorf("%w: code is required", domain.ErrInvalidArgument)
	}
	return FormatCode(compact), nil
}

// FormatCode inserts separators every CodeGroupSize symbols.
func FormatCode(compact string) string {
	if len(compact) <= CodeGroupSize {
		return compact
	}
	var b strings.Builder
	b.Grow(len(compact) + len(compact)/CodeGroupSize)
	for i := 0; i < len(compact); i += CodeGroupSize {
		if i > 0 {
			b.WriteString(CodeSeparator)
		}
		end := i + CodeGroupSize
		if end > len(compact) {
			end = len(compact)
		}
		b.WriteString(compact[i:end])
	}
	return b.String()
}

// IsWellFormedCode reports whether s is in canonical form and uses only CodeAlphabet.
func IsWellFormedCode(s string) bool {
	if len(s) != codeFullLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if (i+1)%(CodeGroupSize+1) == 0 {
			if s[i] != CodeSeparator[0] {
				return false
			}
			continue
		}
		if !strings.ContainsRune(CodeAlphabet, rune(s[i])) {
			return false
		}
	}
	return true
}

// CodeFilter narrows admin listings.
type CodeFilter struct {
	Status     CodeStatus
	PurchaseID string
	Search     string // substring of the code, case-insensitive
	Limit      int
	Offset     int
}
