package api

import (
	"context"
	"log/slog"
	"sync"
)

// background runs long-lived loops and waits for all of them on shutdown.
type background struct {
	ctx context.Context
	wg  sync.WaitGroup
}

func newBackground(ctx context.Context) *background {
	return &background{ctx: ctx}
}

// Go starts fn in its own goroutine. fn must return once ctx is cancelled.
func (b *background) Go(name string, fn func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("API.background: loop panicked", "loop", name, "panic", r)
			}
		}()
		slog.Debug("API.background: loop started", "loop", name)
		fn(b.ctx)
		slog.Debug("API.background: loop stopped", "loop", name)
	}()
}

// Wait blocks until every loop has returned.
func (b *background) Wait() {
	b.wg.Wait()
}
