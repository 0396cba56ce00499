package billing

import (
	"errors"
	"testing"
	"time"

	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"prepaid-subscription/internal/domain"
	"prepaid-subscription/internal/domain/model"
)

const testSecret = "whsec_test_secret"

func sign(t *testing.T, payload string) (body []byte, header string) {
	t.Helper()
	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Payload, signed.Header
}

func TestWebhookVerifier(t *testing.T) {
	v, err := NewWebhookVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewWebhookVerifier: %v", err)
	}

	t.Run("should reject a missing or invalid signature", func(t *testing.T) {
		body, _ := sign(t, `{"id":"evt_1","object":"event","type":"invoice.paid","data":{"object":{}}}`)
		if _, err := v.Verify(body, ""); !errors.Is(err, domain.ErrInvalidSignature) {
			t.Fatalf("missing header: got %v", err)
		}
		if _, err := v.Verify(body, "t=1,v1=deadbeef"); !errors.Is(err, domain.ErrInvalidSignature) {
			t.Fatalf("bad header: got %v", err)
		}
	})

	t.Run("should reject a payload signed with another secret", func(t *testing.T) {
		other, _ := NewWebhookVerifier("whsec_other")
		body, header := sign(t, `{"id":"evt_1","object":"event","type":"invoice.paid","data":{"object":{}}}`)
		if _, err := other.Verify(body, header); !errors.Is(err, domain.ErrInvalidSignature) {
			t.Fatalf("expected ErrInvalidSignature, got %v", err)
		}
	})

	t.Run("should decode a bulk checkout session", func(t *testing.T) {
		body, header := sign(t, `{"id":"evt_cs","object":"event","type":"checkout.session.completed","created":1700000000,
			"data":{"object":{"id":"cs_1","object":"checkout.session","mode":"subscription","customer":"cus_1",
			"subscription":{"id":"sub_1","object":"subscription"},"payment_intent":null,"amount_total":5000,"currency":"USD",
			"metadata":{"type":"bulk_subscription_purchase","adminId":"admin-1","quantity":"5"}}}}`)

		ev, err := v.Verify(body, header)
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if ev.ID != "evt_cs" || ev.Type != model.EventCheckoutCompleted || !ev.CreatedAt.Equal(time.Unix(1700000000, 0)) {
			t.Fatalf("unexpected envelope: %+v", ev)
		}
		cp := ev.Checkout
		if cp == nil || cp.SessionID != "cs_1" || cp.CustomerID != "cus_1" || cp.SubscriptionID != "sub_1" || cp.PaymentIntentID != "" {
			t.Fatalf("unexpected checkout payload: %+v", cp)
		}
		if cp.Currency != "usd" || cp.Metadata["type"] != model.MetadataTypeBulkPurchase {
			t.Fatalf("unexpected checkout payload: %+v", cp)
		}
	})

	t.Run("should decode a subscription update with previous attributes", func(t *testing.T) {
		body, header := sign(t, `{"id":"evt_sub","object":"event","type":"customer.subscription.updated","created":1700000100,
			"data":{"object":{"id":"sub_1","object":"subscription","customer":"cus_1","status":"active","cancel_at_period_end":true,
			"items":{"data":[{"current_period_start":1700000000,"current_period_end":1702592000,
			"price":{"id":"price_1","product":"prod_1","unit_amount":1000,"currency":"usd"}}]},
			"metadata":{"userId":"user-1"}},
			"previous_attributes":{"status":"past_due","cancel_at_period_end":false}}}`)

		ev, err := v.Verify(body, header)
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		sp := ev.Subscription
		if sp == nil || sp.PriceID != "price_1" || sp.ProductID != "prod_1" || sp.UnitAmount != 1000 {
			t.Fatalf("unexpected subscription payload: %+v", sp)
		}
		if sp.CurrentPeriodEnd == nil || sp.CurrentPeriodEnd.Unix() != 1702592000 {
			t.Fatalf("period end not read from items: %+v", sp.CurrentPeriodEnd)
		}
		if sp.PreviousStatus != "past_due" || sp.PreviousCancelAtPeriodEnd == nil || *sp.PreviousCancelAtPeriodEnd {
			t.Fatalf("previous attributes not decoded: %+v", sp)
		}
		if sp.ItemsChanged || sp.CanceledAt != nil {
			t.Fatalf("unexpected flags: %+v", sp)
		}
	})

	t.Run("should read the subscription from either invoice layout", func(t *testing.T) {
		legacy, lh := sign(t, `{"id":"evt_inv1","object":"event","type":"invoice.paid",
			"data":{"object":{"id":"in_1","customer":"cus_1","subscription":"sub_1","charge":"ch_1","payment_intent":"pi_1",
			"billing_reason":"subscription_cycle","amount_paid":1000,"currency":"usd",
			"lines":{"data":[{"description":"1 x Pro","price":{"id":"price_1","product":"prod_1"},"period":{"start":1700000000,"end":1702592000}}]}}}}`)
		current, ch := sign(t, `{"id":"evt_inv2","object":"event","type":"invoice.paid",
			"data":{"object":{"id":"in_2","customer":"cus_1","billing_reason":"subscription_create","amount_paid":1000,"currency":"usd",
			"parent":{"subscription_details":{"subscription":"sub_2"}},
			"lines":{"data":[{"pricing":{"price_details":{"price":"price_2","product":"prod_2"}},"period":{"start":1700000000,"end":1702592000}}]}}}}`)

		ev, err := v.Verify(legacy, lh)
		if err != nil {
			t.Fatalf("Verify legacy failed: %v", err)
		}
		if inv := ev.Invoice; inv.SubscriptionID != "sub_1" || inv.ChargeID != "ch_1" || inv.PriceID != "price_1" || inv.LineDescription != "1 x Pro" {
			t.Fatalf("unexpected legacy invoice: %+v", inv)
		}
		ev, err = v.Verify(current, ch)
		if err != nil {
			t.Fatalf("Verify current failed: %v", err)
		}
		if inv := ev.Invoice; inv.SubscriptionID != "sub_2" || inv.PriceID != "price_2" || inv.ProductID != "prod_2" || inv.PeriodEnd == nil {
			t.Fatalf("unexpected current invoice: %+v", inv)
		}
	})

	t.Run("should decode a refunded charge", func(t *testing.T) {
		body, header := sign(t, `{"id":"evt_ch","object":"event","type":"charge.refunded",
			"data":{"object":{"id":"ch_1","customer":"cus_1","payment_intent":"pi_1","amount":1000,"amount_refunded":1000,"refunded":true,"currency":"usd"}}}`)
		ev, err := v.Verify(body, header)
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if c := ev.Charge; c == nil || !c.Refunded || c.AmountRefunded != 1000 || c.PaymentIntentID != "pi_1" {
			t.Fatalf("unexpected charge payload: %+v", c)
		}
	})

	t.Run("should pass unknown event types through without a payload", func(t *testing.T) {
		body, header := sign(t, `{"id":"evt_x","object":"event","type":"customer.updated","data":{"object":{"id":"cus_1"}}}`)
		ev, err := v.Verify(body, header)
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if ev.Checkout != nil || ev.Subscription != nil || ev.Invoice != nil || ev.Charge != nil {
			t.Fatalf("unexpected payload: %+v", ev)
		}
	})
}

func TestNewWebhookVerifier_RequiresSecret(t *testing.T) {
	if _, err := NewWebhookVerifier("  "); err == nil {
		t.Fatal("expected an error for an empty secret")
	}
}
