package billing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"prepaid-subscription/internal/domain"
	"prepaid-subscription/internal/domain/model"
	"prepaid-subscription/internal/domain/ports/adapter"
)

var _ adapter.WebhookVerifier = (*WebhookVerifier)(nil)

// WebhookVerifier checks Stripe-Signature headers and decodes the event
// object into the provider-neutral payloads. Objects are decoded from raw JSON
// so both the legacy and the current invoice and subscription layouts are read.
type WebhookVerifier struct {
	secret    string
	tolerance time.Duration
}

func NewWebhookVerifier(secret string) (*WebhookVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("billing.webhook_secret is required")
	}
	return &WebhookVerifier{secret: secret, tolerance: webhook.DefaultTolerance}, nil
}

func (v *WebhookVerifier) Verify(payload []byte, signatureHeader string) (*model.BillingEvent, error) {
	if strings.TrimSpace(signatureHeader) == "" {
		return nil, fmt.Errorf("%w: missing signature", domain.ErrInvalidSignature)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	return decodeEvent(&event)
}

func decodeEvent(event *stripe.Event) (*model.BillingEvent, error) {
	ev := &model.BillingEvent{
		ID:        event.ID,
		Type:      string(event.Type),
		CreatedAt: time.Unix(event.Created, 0).UTC(),
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return ev, nil
	}
	raw := event.Data.Raw

	var err error
	switch {
	case strings.HasPrefix(ev.Type, "checkout.session."):
		ev.Checkout, err = decodeCheckout(raw)
	case strings.HasPrefix(ev.Type, "customer.subscription."):
		ev.Subscription, err = decodeSubscription(raw, event.Data.PreviousAttributes)
	case strings.HasPrefix(ev.Type, "invoice."):
		ev.Invoice, err = decodeInvoice(raw)
	case strings.HasPrefix(ev.Type, "charge."):
		ev.Charge, err = decodeCharge(raw)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrInvalidArgument, ev.Type, err)
	}
	return ev, nil
}

// expandableID reads a field that is either an id string or an expanded object.
type expandableID string

func (e *expandableID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*e = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = expandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = expandableID(obj.ID)
	return nil
}

type rawCheckout struct {
	ID            string            `json:"id"`
	Mode          string            `json:"mode"`
	Customer      expandableID      `json:"customer"`
	Subscription  expandableID      `json:"subscription"`
	PaymentIntent expandableID      `json:"payment_intent"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

func decodeCheckout(raw []byte) (*model.CheckoutPayload, error) {
	var c rawCheckout
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &model.CheckoutPayload{
		SessionID:       c.ID,
		Mode:            c.Mode,
		CustomerID:      string(c.Customer),
		SubscriptionID:  string(c.Subscription),
		PaymentIntentID: string(c.PaymentIntent),
		AmountTotal:     c.AmountTotal,
		Currency:        strings.ToLower(c.Currency),
		Metadata:        c.Metadata,
	}, nil
}

type rawPrice struct {
	ID         string       `json:"id"`
	Product    expandableID `json:"product"`
	UnitAmount int64        `json:"unit_amount"`
	Currency   string       `json:"currency"`
}

type rawSubscription struct {
	ID       string       `json:"id"`
	Customer expandableID `json:"customer"`
	Status   string       `json:"status"`
	Items    struct {
		Data []struct {
			Price              rawPrice `json:"price"`
			CurrentPeriodStart int64    `json:"current_period_start"`
			CurrentPeriodEnd   int64    `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CanceledAt         int64             `json:"canceled_at"`
	EndedAt            int64             `json:"ended_at"`
	Metadata           map[string]string `json:"metadata"`
}

func decodeSubscription(raw []byte, previous map[string]interface{}) (*model.SubscriptionPayload, error) {
	var s rawSubscription
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	out := &model.SubscriptionPayload{
		ID:                 s.ID,
		CustomerID:         string(s.Customer),
		Status:             s.Status,
		CurrentPeriodStart: unixPtr(s.CurrentPeriodStart),
		CurrentPeriodEnd:   unixPtr(s.CurrentPeriodEnd),
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		CanceledAt:         unixPtr(s.CanceledAt),
		EndedAt:            unixPtr(s.EndedAt),
		Metadata:           s.Metadata,
	}
	if len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		out.PriceID = item.Price.ID
		out.ProductID = string(item.Price.Product)
		out.UnitAmount = item.Price.UnitAmount
		out.Currency = strings.ToLower(item.Price.Currency)
		if out.CurrentPeriodStart == nil {
			out.CurrentPeriodStart = unixPtr(item.CurrentPeriodStart)
		}
		if out.CurrentPeriodEnd == nil {
			out.CurrentPeriodEnd = unixPtr(item.CurrentPeriodEnd)
		}
	}
	if prev, ok := previous["status"].(string); ok {
		out.PreviousStatus = prev
	}
	if prev, ok := previous["cancel_at_period_end"].(bool); ok {
		out.PreviousCancelAtPeriodEnd = &prev
	}
	if _, ok := previous["items"]; ok {
		out.ItemsChanged = true
	}
	return out, nil
}

type rawInvoiceLine struct {
	Description string    `json:"description"`
	Price       *rawPrice `json:"price"`
	Period      struct {
		Start int64 `json:"start"`
		End   int64 `json:"end"`
	} `json:"period"`
	Pricing *struct {
		PriceDetails struct {
			Price   expandableID `json:"price"`
			Product string       `json:"product"`
		} `json:"price_details"`
	} `json:"pricing"`
}

type rawInvoice struct {
	ID               string       `json:"id"`
	Customer         expandableID `json:"customer"`
	Subscription     expandableID `json:"subscription"`
	PaymentIntent    expandableID `json:"payment_intent"`
	Charge           expandableID `json:"charge"`
	BillingReason    string       `json:"billing_reason"`
	AmountPaid       int64        `json:"amount_paid"`
	AmountDue        int64        `json:"amount_due"`
	Currency         string       `json:"currency"`
	HostedInvoiceURL string       `json:"hosted_invoice_url"`
	Lines            struct {
		Data []rawInvoiceLine `json:"data"`
	} `json:"lines"`
	Parent *struct {
		SubscriptionDetails *struct {
			Subscription expandableID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func decodeInvoice(raw []byte) (*model.InvoicePayload, error) {
	var in rawInvoice
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	out := &model.InvoicePayload{
		ID:               in.ID,
		CustomerID:       string(in.Customer),
		SubscriptionID:   string(in.Subscription),
		PaymentIntentID:  string(in.PaymentIntent),
		ChargeID:         string(in.Charge),
		BillingReason:    in.BillingReason,
		AmountPaid:       in.AmountPaid,
		AmountDue:        in.AmountDue,
		Currency:         strings.ToLower(in.Currency),
		HostedInvoiceURL: in.HostedInvoiceURL,
	}
	if out.SubscriptionID == "" && in.Parent != nil && in.Parent.SubscriptionDetails != nil {
		out.SubscriptionID = string(in.Parent.SubscriptionDetails.Subscription)
	}
	if len(in.Lines.Data) > 0 {
		line := in.Lines.Data[0]
		out.LineDescription = line.Description
		out.PeriodStart = unixPtr(line.Period.Start)
		out.PeriodEnd = unixPtr(line.Period.End)
		switch {
		case line.Price != nil:
			out.PriceID = line.Price.ID
			out.ProductID = string(line.Price.Product)
		case line.Pricing != nil:
			out.PriceID = string(line.Pricing.PriceDetails.Price)
			out.ProductID = line.Pricing.PriceDetails.Product
		}
	}
	return out, nil
}

type rawCharge struct {
	ID             string       `json:"id"`
	Customer       expandableID `json:"customer"`
	PaymentIntent  expandableID `json:"payment_intent"`
	Amount         int64        `json:"amount"`
	AmountRefunded int64        `json:"amount_refunded"`
	Refunded       bool         `json:"refunded"`
	Currency       string       `json:"currency"`
}

func decodeCharge(raw []byte) (*model.ChargePayload, error) {
	var c rawCharge
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &model.ChargePayload{
		ID:              c.ID,
		CustomerID:      string(c.Customer),
		PaymentIntentID: string(c.PaymentIntent),
		Amount:          c.Amount,
		AmountRefunded:  c.AmountRefunded,
		Refunded:        c.Refunded,
		Currency:        strings.ToLower(c.Currency),
	}, nil
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
