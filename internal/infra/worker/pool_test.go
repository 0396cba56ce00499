package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPool(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("should run submitted tasks and drain the queue on stop", func(t *testing.T) {
		p := NewPool(2, time.Second, &logger)
		p.Start(context.Background())

		var ran int32
		for i := 0; i < 20; i++ {
			if err := p.Submit(func(ctx context.Context) error {
				atomic.AddInt32(&ran, 1)
				return nil
			}); err != nil {
				t.Fatalf("Submit failed: %v", err)
			}
		}
		p.Stop()
		if got := atomic.LoadInt32(&ran); got != 20 {
			t.Fatalf("ran %d tasks, want 20", got)
		}
	})

	t.Run("should reject tasks after stop", func(t *testing.T) {
		p := NewPool(1, time.Second, &logger)
		p.Start(context.Background())
		p.Stop()
		p.Stop()
		if err := p.Submit(func(ctx context.Context) error { return nil }); !errors.Is(err, ErrStopped) {
			t.Fatalf("expected ErrStopped, got %v", err)
		}
	})

	t.Run("should report a full queue instead of blocking", func(t *testing.T) {
		p := NewPool(1, time.Second, &logger)
		noop := func(ctx context.Context) error { return nil }
		var err error
		for i := 0; i <= cap(p.jobs); i++ {
			err = p.Submit(noop)
		}
		if !errors.Is(err, ErrQueueFull) {
			t.Fatalf("expected ErrQueueFull, got %v", err)
		}
	})

	t.Run("should survive a panicking task and bound its context", func(t *testing.T) {
		p := NewPool(1, 20*time.Millisecond, &logger)
		p.Start(context.Background())

		_ = p.Submit(func(ctx context.Context) error { panic("boom") })
		var deadline int32
		_ = p.Submit(func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); ok {
				atomic.StoreInt32(&deadline, 1)
			}
			return nil
		})
		p.Stop()
		if atomic.LoadInt32(&deadline) != 1 {
			t.Fatal("task context had no deadline or the worker died")
		}
	})
}
