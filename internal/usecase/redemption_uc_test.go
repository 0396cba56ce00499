//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"prepaid-subscription/internal/domain"
	"prepaid-subscription/internal/domain/model"
	"prepaid-subscription/internal/domain/ports/adapter"
)

func strp(s string) *string { return &s }

func TestRedemptionUseCase_Redeem(t *testing.T) {
	ctx := context.Background()
	future := time.Now().Add(24 * time.Hour)

	t.Run("should activate a code based entitlement", func(t *testing.T) {
		// --- Arrange ---
		env := newTestEnv(t)
		c := env.seedCode("ABCD-EFGH-JKLM-NPQR", model.CodeStatusAvailable, future)

		// --- Act ---
		res, err := env.redemption.Redeem(ctx, "user-a", "ABCD-EFGH-JKLM-NPQR")

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.PlanName != "Pro" || res.DurationDays != 30 {
			t.Errorf("unexpected result %+v", res)
		}
		if !withinMinute(res.PeriodEnd, time.Now().AddDate(0, 0, 30)) {
			t.Errorf("expected period end in 30 days, got %v", res.PeriodEnd)
		}
		stored := env.code(t, c.ID)
		if stored.Status != model.CodeStatusRedeemed || stored.RedeemedBy == nil || *stored.RedeemedBy != "user-a" {
			t.Errorf("expected code redeemed by user-a, got %+v", stored)
		}
		ent := env.entitlementOf(t, "user-a")
		if ent.Status != model.EntitlementActive || ent.AutoRenew || ent.Source != model.EntitlementSourceCode {
			t.Errorf("unexpected entitlement %+v", ent)
		}
		if ent.CodeID == nil || *ent.CodeID != c.ID {
			t.Error("expected the entitlement to reference the code")
		}
		audits := env.txs.ofType(model.TxCodeRedemption)
		if len(audits) != 1 {
			t.Fatal("expected a code_redemption audit entry")
		}
		if got := audits[0].Metadata["code"]; got != "ABCD...QR" {
			t.Errorf("expected the audit to hold a redacted code, got %q", got)
		}
		if keys := env.pub.published(); len(keys) != 1 || keys[0] != adapter.EventCodeRedeemed {
			t.Errorf("expected a code.redeemed event, got %v", keys)
		}
	})

	t.Run("should accept user typed variations of the code", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCode("ABCD-EFGH-JKLM-NPQR", model.CodeStatusAvailable, future)

		_, err := env.redemption.Redeem(ctx, "user-a", "  abcd efgh_jklm-npqr ")

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("should map code states to typed errors", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCode("RDMD-RDMD-RDMD-RDMD", model.CodeStatusRedeemed, future)
		env.seedCode("RVKD-RVKD-RVKD-RVKD", model.CodeStatusRevoked, future)
		env.seedCode("XPRD-XPRD-XPRD-XPRD", model.CodeStatusExpired, future)

		cases := []struct {
			code   string
			want   error
			reason string
		}{
			{"NONE-NONE-NONE-NONE", domain.ErrCodeNotFound, domain.ReasonNotFound},
			{"RDMD-RDMD-RDMD-RDMD", domain.ErrCodeAlreadyRedeemed, domain.ReasonAlreadyRedeemed},
			{"RVKD-RVKD-RVKD-RVKD", domain.ErrCodeRevoked, domain.ReasonRevoked},
			{"XPRD-XPRD-XPRD-XPRD", domain.ErrCodeExpired, domain.ReasonExpired},
			{" - ", domain.ErrInvalidArgument, domain.ReasonInvalidArgument},
		}
		for _, tc := range cases {
			_, err := env.redemption.Redeem(ctx, "user-a", tc.code)
			if !errors.Is(err, tc.want) {
				t.Errorf("%q: expected %v, got %v", tc.code, tc.want, err)
			}
			if got := domain.ReasonOf(err); got != tc.reason {
				t.Errorf("%q: expected reason %s, got %s", tc.code, tc.reason, got)
			}
		}
		if _, err := env.ents.FindByUserID(ctx, nil, "user-a"); !errors.Is(err, domain.ErrNotFound) {
			t.Error("expected no entitlement after failed redemptions")
		}
	})

	t.Run("should lazily persist expiry for an available code past its deadline", func(t *testing.T) {
		env := newTestEnv(t)
		c := env.seedCode("LATE-LATE-LATE-LATE", model.CodeStatusAvailable, time.Now().Add(-time.Minute))

		_, err := env.redemption.Redeem(ctx, "user-a", c.Code)

		if !errors.Is(err, domain.ErrCodeExpired) {
			t.Fatalf("expected ErrCodeExpired, got %v", err)
		}
		if got := env.code(t, c.ID).Status; got != model.CodeStatusExpired {
			t.Errorf("expected stored status expired, got %s", got)
		}
	})

	t.Run("should refuse a user who already has access", func(t *testing.T) {
		env := newTestEnv(t)
		c := env.seedCode("SUBD-SUBD-SUBD-SUBD", model.CodeStatusAvailable, future)
		env.ents.put(&model.Entitlement{
			ID: "ent-1", UserID: "user-a", Source: model.EntitlementSourceBilling,
			ExternalSubscriptionID: strp("sub_1"), Status: model.EntitlementTrialing, AutoRenew: true,
		})

		_, err := env.redemption.Redeem(ctx, "user-a", c.Code)

		if !errors.Is(err, domain.ErrAlreadySubscribed) {
			t.Fatalf("expected ErrAlreadySubscribed, got %v", err)
		}
		if got := env.code(t, c.ID).Status; got != model.CodeStatusAvailable {
			t.Errorf("expected the code to stay available, got %s", got)
		}
	})

	t.Run("should refuse stacking a second code", func(t *testing.T) {
		env := newTestEnv(t)
		first := env.seedCode("FRST-FRST-FRST-FRST", model.CodeStatusAvailable, future)
		second := env.seedCode("SCND-SCND-SCND-SCND", model.CodeStatusAvailable, future)
		if _, err := env.redemption.Redeem(ctx, "user-a", first.Code); err != nil {
			t.Fatalf("setup failed: %v", err)
		}

		_, err := env.redemption.Redeem(ctx, "user-a", second.Code)

		if !errors.Is(err, domain.ErrAlreadySubscribed) {
			t.Fatalf("expected ErrAlreadySubscribed, got %v", err)
		}
	})

	t.Run("should allow redeeming after a canceled entitlement and keep the customer id", func(t *testing.T) {
		env := newTestEnv(t)
		c := env.seedCode("BACK-BACK-BACK-BACK", model.CodeStatusAvailable, future)
		env.ents.put(&model.Entitlement{
			ID: "ent-1", UserID: "user-a", Source: model.EntitlementSourceBilling, ExternalCustomerID: strp("cus_1"),
			ExternalSubscriptionID: strp("sub_old"), Status: model.EntitlementCanceled,
		})

		if _, err := env.redemption.Redeem(ctx, "user-a", c.Code); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		ent := env.entitlementOf(t, "user-a")
		if ent.ExternalSubscriptionID != nil {
			t.Error("expected the old subscription id to be cleared")
		}
		if ent.ExternalCustomerID == nil || *ent.ExternalCustomerID != "cus_1" {
			t.Error("expected the customer id to be kept")
		}
	})

	t.Run("should let exactly one concurrent redemption win", func(t *testing.T) {
		env := newTestEnv(t)
		c := env.seedCode("RACE-RACE-RACE-RACE", model.CodeStatusAvailable, future)

		const workers = 25
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			conflicts int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := env.redemption.Redeem(ctx, fmt.Sprintf("user-%d", i), c.Code)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case errors.Is(err, domain.ErrCodeAlreadyRedeemed):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		if successes != 1 {
			t.Fatalf("expected exactly one success, got %d", successes)
		}
		if conflicts != workers-1 {
			t.Errorf("expected %d conflicts, got %d", workers-1, conflicts)
		}
	})
}

func TestRedemptionUseCase_Validate(t *testing.T) {
	ctx := context.Background()

	t.Run("should never mutate an available code", func(t *testing.T) {
		env := newTestEnv(t)
		c := env.seedCode("PEEK-PEEK-PEEK-PEEK", model.CodeStatusAvailable, time.Now().Add(time.Hour))

		for i := 0; i < 100; i++ {
			preview, err := env.redemption.Validate(ctx, "peek-peek-peek-peek")
			if err != nil {
				t.Fatalf("validate %d: %v", i, err)
			}
			if preview.DurationDays != 30 || preview.PlanName != "Pro" {
				t.Fatalf("unexpected preview %+v", preview)
			}
		}

		if got := env.code(t, c.ID); got.Status != model.CodeStatusAvailable || got.RedeemedBy != nil {
			t.Errorf("expected the code untouched, got %+v", got)
		}
	})

	t.Run("should report expiry before the available path", func(t *testing.T) {
		env := newTestEnv(t)
		c := env.seedCode("GONE-GONE-GONE-GONE", model.CodeStatusAvailable, time.Now().Add(-time.Second))

		_, err := env.redemption.Validate(ctx, c.Code)

		if !errors.Is(err, domain.ErrCodeExpired) {
			t.Fatalf("expected ErrCodeExpired, got %v", err)
		}
	})

	t.Run("should fall back to a generic plan name", func(t *testing.T) {
		env := newTestEnv(t)
		c := env.seedCode("ODDP-ODDP-ODDP-ODDP", model.CodeStatusAvailable, time.Now().Add(time.Hour))
		c.PriceID = model.AdminGrantPriceID
		env.codes.put(c)

		preview, err := env.redemption.Validate(ctx, c.Code)

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if preview.PlanName != "Subscription" {
			t.Errorf("expected fallback plan name, got %q", preview.PlanName)
		}
	})
}
