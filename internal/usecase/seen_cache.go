package usecase

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// seenCache is the in-process set of recently handled billing event ids.
// The oldest ids are evicted once size is reached.
type seenCache struct {
	c *lru.Cache[string, struct{}]
}

func newSeenCache(size int) *seenCache {
	if size <= 0 {
		size = 10000
	}
	c, err := lru.New[string, struct{}](size)
	if err != nil {
		// only reachable with a non-positive size
		panic(err)
	}
	return &seenCache{c: c}
}

func (s *seenCache) Contains(id string) bool { return s.c.Contains(id) }

func (s *seenCache) Add(id string) { s.c.Add(id, struct{}{}) }

func (s *seenCache) Len() int { return s.c.Len() }
