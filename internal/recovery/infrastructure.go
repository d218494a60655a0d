package recovery

import (
	"context"
	"fmt"
	"log/slog"
)

// StaleRequeuer is implemented by the notification outbox sender.
type StaleRequeuer interface {
	RecoverStale(ctx context.Context) error
}

// SessionCleaner is implemented by the session store.
type SessionCleaner interface {
	CleanupInactiveSessions(ctx context.Context) (int, error)
}

// Func adapts a plain function into a Recoverable.
type Func struct {
	Label string
	Fn    func(ctx context.Context) error
}

func (f Func) Name() string                           { return f.Label }
func (f Func) RecoverState(ctx context.Context) error { return f.Fn(ctx) }

// Outbox requeues notifications a crashed process claimed but never delivered.
func Outbox(sender StaleRequeuer) Recoverable {
	return Func{Label: "notification-outbox", Fn: func(ctx context.Context) error {
		if err := sender.RecoverStale(ctx); err != nil {
			return fmt.Errorf("requeue stale notifications: %w", err)
		}
		return nil
	}}
}

// Sessions evicts sessions that went idle while no process was sweeping. Only a shared
// backend such as Redis has anything to evict after a restart.
func Sessions(cleaner SessionCleaner) Recoverable {
	return Func{Label: "sessions", Fn: func(ctx context.Context) error {
		n, err := cleaner.CleanupInactiveSessions(ctx)
		if err != nil {
			return fmt.Errorf("evict idle sessions: %w", err)
		}
		if n > 0 {
			slog.Info("Recovery.Sessions: evicted idle sessions", "count", n)
		}
		return nil
	}}
}
