//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"prepaid-subscription/internal/domain"
)

// --- Code Tests ---

func TestNormalizeCode(t *testing.T) {
	cases := map[string]string{
		"abcd-efgh-jkln-pqrs":   "ABCD-EFGH-JKLN-PQRS",
		"ABCDEFGHJKLNPQRS":      "ABCD-EFGH-JKLN-PQRS",
		" abcd efgh_jkln pqrs ": "ABCD-EFGH-JKLN-PQRS",
		"ab-cdefgh-jk-lnpqrs":   "ABCD-EFGH-JKLN-PQRS",
		"abc":                   "ABC",
	}
	for in, want := range cases {
		got, err := NormalizeCode(in)
		if err != nil {
			t.Fatalf("NormalizeCode(%q) unexpected error: %v", in, err)
		}
		if got != want {
			t.Errorf("NormalizeCode(%q) = %q, want %q", in, got, want)
		}
	}

	t.Run("should reject input with no symbols", func(t *testing.T) {
		_, err := NormalizeCode(" - -")
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestIsWellFormedCode(t *testing.T) {
	if !IsWellFormedCode("ABCD-EFGH-JKLN-PQRS") {
		t.Error("expected canonical code to be well formed")
	}
	for _, bad := range []string{"ABCD-EFGH-JKLN", "ABCD-EFGH-JKLN-PQR0", "ABCDEFGHJKLNPQRS1234", "ABCD_EFGH_JKLN_PQRS"} {
		if IsWellFormedCode(bad) {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}

func TestValidateCodeTransition(t *testing.T) {
	allowed := [][2]CodeStatus{
		{CodeStatusAvailable, CodeStatusRedeemed},
		{CodeStatusAvailable, CodeStatusRevoked},
		{CodeStatusAvailable, CodeStatusExpired},
		{CodeStatusRedeemed, CodeStatusAvailable},
		{CodeStatusRedeemed, CodeStatusExpired},
		{CodeStatusRevoked, CodeStatusAvailable},
	}
	for _, tr := range allowed {
		if err := ValidateCodeTransition(tr[0], tr[1]); err != nil {
			t.Errorf("%s -> %s should be allowed: %v", tr[0], tr[1], err)
		}
	}

	denied := [][2]CodeStatus{
		{CodeStatusRevoked, CodeStatusRedeemed},
		{CodeStatusExpired, CodeStatusAvailable},
		{CodeStatusRedeemed, CodeStatusRevoked},
		{CodeStatusRedeemed, CodeStatusRedeemed},
	}
	for _, tr := range denied {
		err := ValidateCodeTransition(tr[0], tr[1])
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("%s -> %s should be rejected, got %v", tr[0], tr[1], err)
		}
	}
}

func TestCode_IsPastDeadline(t *testing.T) {
	now := time.Now()
	c := &Code{ExpiresAt: now.Add(-time.Second)}
	if !c.IsPastDeadline(now) {
		t.Error("expected code past its deadline")
	}
	c.ExpiresAt = now.Add(time.Hour)
	if c.IsPastDeadline(now) {
		t.Error("expected code within its deadline")
	}
}

// --- Purchase Tests ---

func TestValidatePurchaseTransition(t *testing.T) {
	if err := ValidatePurchaseTransition(PurchaseStatusCompleted, PurchaseStatusRefunded); err != nil {
		t.Errorf("completed -> refunded should be allowed: %v", err)
	}
	if err := ValidatePurchaseTransition(PurchaseStatusRefunded, PurchaseStatusRefunded); err != nil {
		t.Errorf("same status should be accepted: %v", err)
	}
	if err := ValidatePurchaseTransition(PurchaseStatusRefunded, PurchaseStatusCompleted); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("refunded -> completed should be rejected, got %v", err)
	}
}

// --- Entitlement Tests ---

func TestEntitlement_HasAccess(t *testing.T) {
	now := time.Now()
	future := now.Add(24 * time.Hour)
	past := now.Add(-time.Hour)

	t.Run("should grant access to active and trialing only", func(t *testing.T) {
		for _, st := range []EntitlementStatus{EntitlementActive, EntitlementTrialing} {
			e := &Entitlement{Status: st, AutoRenew: true}
			if !e.HasAccess(now) {
				t.Errorf("expected %s to grant access", st)
			}
		}
		for _, st := range []EntitlementStatus{EntitlementPastDue, EntitlementCanceled, EntitlementPaused, EntitlementUnpaid, EntitlementIncomplete} {
			e := &Entitlement{Status: st, AutoRenew: true}
			if e.HasAccess(now) {
				t.Errorf("expected %s to deny access", st)
			}
		}
	})

	t.Run("should stop non-renewing access at period end", func(t *testing.T) {
		e := &Entitlement{Status: EntitlementActive, CurrentPeriodEnd: &future}
		if !e.HasAccess(now) {
			t.Error("expected access before period end")
		}
		e.CurrentPeriodEnd = &past
		if e.HasAccess(now) {
			t.Error("expected no access after period end")
		}
	})

	t.Run("should keep renewing access past a stale period end", func(t *testing.T) {
		e := &Entitlement{Status: EntitlementActive, AutoRenew: true, CurrentPeriodEnd: &past}
		if !e.HasAccess(now) {
			t.Error("renewing entitlement is driven by billing status only")
		}
	})

	t.Run("nil entitlement has no access", func(t *testing.T) {
		var e *Entitlement
		if e.HasAccess(now) {
			t.Error("expected nil entitlement to deny access")
		}
	})
}

func TestValidateEntitlementTransition(t *testing.T) {
	if err := ValidateEntitlementTransition(EntitlementCanceled, EntitlementActive); err != nil {
		t.Errorf("canceled -> active should be allowed for a new redemption: %v", err)
	}
	if err := ValidateEntitlementTransition(EntitlementCanceled, EntitlementPastDue); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("canceled -> past_due should be rejected, got %v", err)
	}
}

// --- Plan Tests ---

func TestPlan_DurationDays(t *testing.T) {
	cases := []struct {
		interval string
		count    int64
		want     int
	}{
		{"day", 10, 10},
		{"week", 2, 14},
		{"month", 1, 30},
		{"month", 3, 90},
		{"year", 1, 365},
		{"", 0, 30},
	}
	for _, c := range cases {
		p := &Plan{Interval: c.interval, IntervalCount: c.count}
		if got := p.DurationDays(); got != c.want {
			t.Errorf("DurationDays(%s x%d) = %d, want %d", c.interval, c.count, got, c.want)
		}
	}
}

func TestNewPlan(t *testing.T) {
	p, err := NewPlan("price_1", "prod_1", "Pro", 999, "USD")
	if err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}
	if p.Currency != "usd" {
		t.Errorf("expected currency to be lower-cased, got %s", p.Currency)
	}
	if _, err := NewPlan("", "prod_1", "Pro", 999, "usd"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}
