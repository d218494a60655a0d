package recovery

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeRequeuer struct {
	calls int
	err   error
}

func (f *fakeRequeuer) RecoverStale(context.Context) error {
	f.calls++
	return f.err
}

type fakeCleaner struct {
	evicted int
	err     error
}

func (f *fakeCleaner) CleanupInactiveSessions(context.Context) (int, error) {
	return f.evicted, f.err
}

func TestRecoverAll(t *testing.T) {
	outbox := &fakeRequeuer{}
	m := NewManager()
	m.Register(Outbox(outbox))
	m.Register(Sessions(&fakeCleaner{evicted: 3}))

	if err := m.RecoverAll(context.Background()); err != nil {
		t.Fatalf("RecoverAll returned error: %v", err)
	}
	if outbox.calls != 1 {
		t.Errorf("expected outbox recovered once, got %d", outbox.calls)
	}
}

func TestRecoverAllContinuesAfterFailure(t *testing.T) {
	var order []string
	m := NewManager()
	m.Register(Func{Label: "first", Fn: func(context.Context) error {
		order = append(order, "first")
		return errors.New("boom")
	}})
	m.Register(Func{Label: "second", Fn: func(context.Context) error {
		order = append(order, "second")
		return nil
	}})
	m.Register(Sessions(&fakeCleaner{err: errors.New("redis down")}))

	err := m.RecoverAll(context.Background())
	if err == nil || !strings.Contains(err.Error(), "2 errors out of 3") {
		t.Fatalf("expected 2 of 3 failures, got %v", err)
	}
	if strings.Join(order, ",") != "first,second" {
		t.Errorf("components must run in registration order, got %v", order)
	}
}

func TestRecoverAllStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outbox := &fakeRequeuer{}
	m := NewManager()
	m.Register(Outbox(outbox))
	if err := m.RecoverAll(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if outbox.calls != 0 {
		t.Error("no component should run after cancellation")
	}
}

func TestOutboxWrapsError(t *testing.T) {
	cause := errors.New("db locked")
	err := Outbox(&fakeRequeuer{err: cause}).RecoverState(context.Background())
	if !errors.Is(err, cause) {
		t.Errorf("expected wrapped cause, got %v", err)
	}
}
