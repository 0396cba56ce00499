package web

import (
	"time"

	"prepaid-subscription/internal/domain/model"
)

type codeDTO struct {
	ID                   string           `json:"id"`
	PurchaseID           string           `json:"purchase_id"`
	Code                 string           `json:"code"`
	Status               model.CodeStatus `json:"status"`
	PriceID              string           `json:"price_id"`
	DurationDays         int              `json:"duration_days"`
	ExpiresAt            time.Time        `json:"expires_at"`
	RedeemedBy           *string          `json:"redeemed_by,omitempty"`
	RedeemedAt           *time.Time       `json:"redeemed_at,omitempty"`
	RevokedAt            *time.Time       `json:"revoked_at,omitempty"`
	RevokedReason        *string          `json:"revoked_reason,omitempty"`
	PreviouslyRedeemedBy *string          `json:"previously_redeemed_by,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
}

func toCodeDTO(c *model.Code) codeDTO {
	return codeDTO{
		ID:                   c.ID,
		PurchaseID:           c.PurchaseID,
		Code:                 c.Code,
		Status:               c.Status,
		PriceID:              c.PriceID,
		DurationDays:         c.DurationDays,
		ExpiresAt:            c.ExpiresAt,
		RedeemedBy:           c.RedeemedBy,
		RedeemedAt:           c.RedeemedAt,
		RevokedAt:            c.RevokedAt,
		RevokedReason:        c.RevokedReason,
		PreviouslyRedeemedBy: c.PreviouslyRedeemedBy,
		CreatedAt:            c.CreatedAt,
	}
}

func toCodeDTOs(cs []*model.Code) []codeDTO {
	out := make([]codeDTO, 0, len(cs))
	for _, c := range cs {
		out = append(out, toCodeDTO(c))
	}
	return out
}

type codeExportRow struct {
	Code         string           `json:"code"`
	Status       model.CodeStatus `json:"status"`
	DurationDays int              `json:"duration_days"`
	PurchaseID   string           `json:"purchase_id"`
	CreatedAt    time.Time        `json:"created_at"`
	ExpiresAt    time.Time        `json:"expires_at"`
	RedeemedBy   string           `json:"redeemed_by"`
	RedeemedAt   *time.Time       `json:"redeemed_at"`
}

func toCodeExportRow(c *model.Code) codeExportRow {
	row := codeExportRow{
		Code:         c.Code,
		Status:       c.Status,
		DurationDays: c.DurationDays,
		PurchaseID:   c.PurchaseID,
		CreatedAt:    c.CreatedAt,
		ExpiresAt:    c.ExpiresAt,
		RedeemedAt:   c.RedeemedAt,
	}
	if c.RedeemedBy != nil {
		row.RedeemedBy = *c.RedeemedBy
	}
	return row
}

type purchaseDTO struct {
	ID                     string                   `json:"id"`
	IssuerID               string                   `json:"issuer_id"`
	Source                 model.PurchaseSource     `json:"source"`
	Status                 model.PurchaseStatus     `json:"status"`
	PriceID                string                   `json:"price_id"`
	Quantity               int                      `json:"quantity"`
	UnitAmount             int64                    `json:"unit_amount"`
	TotalAmount            int64                    `json:"total_amount"`
	Currency               string                   `json:"currency"`
	DurationDays           int                      `json:"duration_days"`
	CodesGenerated         bool                     `json:"codes_generated"`
	ExternalSubscriptionID *string                  `json:"external_subscription_id,omitempty"`
	PaidAt                 *time.Time               `json:"paid_at,omitempty"`
	CreatedAt              time.Time                `json:"created_at"`
	CodeCounts             map[model.CodeStatus]int `json:"code_counts,omitempty"`
}

func toPurchaseDTO(p *model.Purchase, counts map[model.CodeStatus]int) purchaseDTO {
	return purchaseDTO{
		ID:                     p.ID,
		IssuerID:               p.IssuerID,
		Source:                 p.Source,
		Status:                 p.Status,
		PriceID:                p.PriceID,
		Quantity:               p.Quantity,
		UnitAmount:             p.UnitAmount,
		TotalAmount:            p.TotalAmount,
		Currency:               p.Currency,
		DurationDays:           p.DurationDays,
		CodesGenerated:         p.CodesGenerated,
		ExternalSubscriptionID: p.ExternalSubscriptionID,
		PaidAt:                 p.PaidAt,
		CreatedAt:              p.CreatedAt,
		CodeCounts:             counts,
	}
}

type eventDTO struct {
	ID          string             `json:"id"`
	Type        string             `json:"type"`
	Outcome     model.EventOutcome `json:"outcome"`
	Error       string             `json:"error,omitempty"`
	ReceivedAt  time.Time          `json:"received_at"`
	ProcessedAt time.Time          `json:"processed_at"`
}

// listResponse is the pagination envelope shared by every list endpoint.
type listResponse[T any] struct {
	Data   []T `json:"data"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}
