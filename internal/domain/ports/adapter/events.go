package adapter

import (
	"context"
	"time"
)

// Routing keys published on the domain event exchange.
const (
	EventCodeRedeemed      = "code.redeemed"
	EventCodeRevoked       = "code.revoked"
	EventCodeReactivated   = "code.reactivated"
	EventCodeMadeAvailable = "code.made_available"
	EventPurchaseCompleted = "purchase.completed"
	EventEntitlementChange = "entitlement.changed"
)

// EventPublisher fans domain events out to other services.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
	Close() error
}

// SeenEventStore is a shared recently-seen set for billing event ids.
type SeenEventStore interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkSeen(ctx context.Context, eventID string, ttl time.Duration) error
}

// Locker guards jobs that must run on one replica at a time.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
