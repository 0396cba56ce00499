package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"prepaid-subscription/internal/domain/ports/adapter"
)

// CodeEvent is the payload published for code lifecycle changes.
type CodeEvent struct {
	CodeID     string     `json:"code_id"`
	PurchaseID string     `json:"purchase_id"`
	UserID     string     `json:"user_id,omitempty"`
	AdminID    string     `json:"admin_id,omitempty"`
	Status     string     `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	PeriodEnd  *time.Time `json:"period_end,omitempty"`
	At         time.Time  `json:"at"`
}

// PurchaseEvent is published once a purchase has its codes.
type PurchaseEvent struct {
	PurchaseID string    `json:"purchase_id"`
	IssuerID   string    `json:"issuer_id"`
	Source     string    `json:"source"`
	Quantity   int       `json:"quantity"`
	At         time.Time `json:"at"`
}

// Notifier publishes domain events off the request path. Publishing is
// best-effort: failures are logged and never reach the caller.
type Notifier struct {
	pub    adapter.EventPublisher
	submit func(task func(ctx context.Context) error) error
	log    *zerolog.Logger
}

// NewNotifier returns a notifier that hands publishes to submit (a worker pool),
// or publishes inline when submit is nil. A nil publisher disables it.
func NewNotifier(pub adapter.EventPublisher, submit func(task func(ctx context.Context) error) error, logger *zerolog.Logger) *Notifier {
	l := logger.With().Str("component", "Notifier").Logger()
	return &Notifier{pub: pub, submit: submit, log: &l}
}

func (n *Notifier) Notify(ctx context.Context, routingKey string, payload any) {
	if n == nil || n.pub == nil {
		return
	}
	task := func(ctx context.Context) error {
		if err := n.pub.Publish(ctx, routingKey, payload); err != nil {
			n.log.Warn().Err(err).Str("routing_key", routingKey).Msg("publish failed")
			return err
		}
		return nil
	}
	if n.submit == nil {
		_ = task(context.WithoutCancel(ctx))
		return
	}
	if err := n.submit(task); err != nil {
		n.log.Warn().Err(err).Str("routing_key", routingKey).Msg("event dropped")
	}
}
