package sched

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"prepaid-subscription/internal/domain"
)

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]string
	unlocked []string
	err      error
}

func (f *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if _, ok := f.held[key]; ok {
		return "", domain.ErrLockHeld
	}
	if f.held == nil {
		f.held = make(map[string]string)
	}
	f.held[key] = "tok-" + key
	return f.held[key], nil
}

func (f *fakeLocker) Unlock(_ context.Context, key, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] != token {
		return errors.New("token mismatch")
	}
	delete(f.held, key)
	f.unlocked = append(f.unlocked, key)
	return nil
}

func newTestScheduler(l *fakeLocker) *Scheduler {
	logger := zerolog.Nop()
	if l == nil {
		return NewScheduler(nil, time.Minute, &logger)
	}
	return NewScheduler(l, time.Minute, &logger)
}

func TestRunOnce(t *testing.T) {
	s := newTestScheduler(nil)
	calls := 0
	if err := s.Add(Job{Name: "count", Run: func(context.Context) (int, error) {
		calls++
		return 7, nil
	}}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	n, err := s.RunOnce(context.Background(), "count")
	if err != nil || n != 7 || calls != 1 {
		t.Fatalf("RunOnce = %d, %v (calls %d)", n, err, calls)
	}

	if _, err := s.RunOnce(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown job: want ErrNotFound, got %v", err)
	}
}

func TestAddRejectsDuplicatesAndBadSpecs(t *testing.T) {
	s := newTestScheduler(nil)
	run := func(context.Context) (int, error) { return 0, nil }

	if err := s.Add(Job{Name: "a", Spec: "@every 1m", Run: run}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(Job{Name: "a", Run: run}); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("duplicate: want ErrAlreadyExists, got %v", err)
	}
	if err := s.Add(Job{Name: "b", Spec: "not a cron", Run: run}); err == nil {
		t.Fatal("expected error for bad spec")
	}
	if err := s.Add(Job{Name: "c"}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("nil run: want ErrInvalidArgument, got %v", err)
	}
}

func TestRunTakesAndReleasesLock(t *testing.T) {
	l := &fakeLocker{}
	s := newTestScheduler(l)
	_ = s.Add(Job{Name: "sweep", Run: func(context.Context) (int, error) {
		if _, ok := l.held["sched:sweep"]; !ok {
			t.Error("lock not held while job runs")
		}
		return 1, nil
	}})

	if _, err := s.RunOnce(context.Background(), "sweep"); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(l.unlocked) != 1 || l.unlocked[0] != "sched:sweep" {
		t.Fatalf("unlocked = %v", l.unlocked)
	}
}

func TestRunSkipsWhenLockHeld(t *testing.T) {
	l := &fakeLocker{held: map[string]string{"sched:sweep": "other"}}
	s := newTestScheduler(l)
	ran := false
	_ = s.Add(Job{Name: "sweep", Run: func(context.Context) (int, error) {
		ran = true
		return 1, nil
	}})

	n, err := s.RunOnce(context.Background(), "sweep")
	if err != nil || n != 0 || ran {
		t.Fatalf("locked job: n=%d err=%v ran=%v", n, err, ran)
	}
}

func TestRunPropagatesLockAndJobErrors(t *testing.T) {
	boom := errors.New("redis down")
	s := newTestScheduler(&fakeLocker{err: boom})
	_ = s.Add(Job{Name: "x", Run: func(context.Context) (int, error) { return 0, nil }})
	if _, err := s.RunOnce(context.Background(), "x"); !errors.Is(err, boom) {
		t.Fatalf("want lock error, got %v", err)
	}

	s = newTestScheduler(nil)
	_ = s.Add(Job{Name: "y", Run: func(context.Context) (int, error) { return 2, boom }})
	n, err := s.RunOnce(context.Background(), "y")
	if !errors.Is(err, boom) || n != 2 {
		t.Fatalf("want job error with partial count, got %d, %v", n, err)
	}
}

func TestDrainLoopsUntilShortBatch(t *testing.T) {
	batches := []int{sweepBatch, sweepBatch, 3}
	i := 0
	total, err := drain(context.Background(), func(context.Context) (int, error) {
		n := batches[i]
		i++
		return n, nil
	})
	if err != nil || total != 2*sweepBatch+3 || i != 3 {
		t.Fatalf("drain = %d, %v after %d steps", total, err, i)
	}
}

func TestDrainStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	steps := 0
	_, err := drain(ctx, func(context.Context) (int, error) {
		steps++
		cancel()
		return sweepBatch, nil
	})
	if !errors.Is(err, context.Canceled) || steps != 1 {
		t.Fatalf("drain after cancel: steps=%d err=%v", steps, err)
	}
}

func TestStartStopsWithContext(t *testing.T) {
	s := newTestScheduler(nil)
	_ = s.Add(Job{Name: "tick", Spec: "@every 1h", Run: func(context.Context) (int, error) { return 0, nil }})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
