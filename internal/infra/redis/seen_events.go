package redis

import (
	"context"
	"time"

	"prepaid-subscription/internal/domain/ports/adapter"
)

var _ adapter.SeenEventStore = (*SeenEvents)(nil)

// SeenEvents shares recently processed billing event ids between replicas.
type SeenEvents struct {
	client RedisClient
	prefix string
}

func NewSeenEvents(client RedisClient) *SeenEvents {
	return &SeenEvents{client: client, prefix: "billing_event:"}
}

func (s *SeenEvents) Seen(ctx context.Context, eventID string) (bool, error) {
	return s.client.Exists(ctx, s.prefix+eventID)
}

func (s *SeenEvents) MarkSeen(ctx context.Context, eventID string, ttl time.Duration) error {
	_, err := s.client.SetNX(ctx, s.prefix+eventID, 1, ttl)
	return err
}
