package messaging

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/commercebridge/commercebridge/internal/flow"
	"github.com/commercebridge/commercebridge/internal/models"
	"github.com/commercebridge/commercebridge/internal/session"
	"github.com/commercebridge/commercebridge/internal/store"
)

const (
	// DefaultWorkers is the number of concurrent conversation workers.
	DefaultWorkers = 8
	// DefaultWorkerQueue is the per-worker backlog before Run blocks.
	DefaultWorkerQueue = 32
)

// Router turns one inbound message into a reply, mutating the session it is given.
type Router interface {
	ProcessMessage(ctx context.Context, msg models.InboundMessage, sess *session.Session) flow.Reply
}

// DispatcherOpts holds configuration options for the Dispatcher.
type DispatcherOpts struct {
	Workers     int
	WorkerQueue int
	Dedup       store.DedupRepo
}

// DispatcherOption defines a configuration option for the Dispatcher.
type DispatcherOption func(*DispatcherOpts)

// WithWorkers sets the worker pool size.
func WithWorkers(n int) DispatcherOption {
	return func(o *DispatcherOpts) { o.Workers = n }
}

// WithWorkerQueue sets the per-worker queue length.
func WithWorkerQueue(n int) DispatcherOption {
	return func(o *DispatcherOpts) { o.WorkerQueue = n }
}

// WithDedup drops inbound messages whose ID was already recorded.
func WithDedup(repo store.DedupRepo) DispatcherOption {
	return func(o *DispatcherOpts) { o.Dedup = repo }
}

// Dispatcher reads inbound messages from a Service and runs each one as a session turn.
// Messages from the same phone always land on the same worker, so they are handled in
// arrival order.
type Dispatcher struct {
	svc      Service
	router   Router
	sessions *session.Store
	dedup    store.DedupRepo
	workers  int
	queue    int
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(svc Service, router Router, sessions *session.Store, opts ...DispatcherOption) *Dispatcher {
	cfg := DispatcherOpts{Workers: DefaultWorkers, WorkerQueue: DefaultWorkerQueue}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.WorkerQueue < 1 {
		cfg.WorkerQueue = 1
	}
	return &Dispatcher{
		svc:      svc,
		router:   router,
		sessions: sessions,
		dedup:    cfg.Dedup,
		workers:  cfg.Workers,
		queue:    cfg.WorkerQueue,
	}
}

// Run consumes Messages() and Receipts() until ctx is cancelled or the service closes
// its message channel. In-flight turns finish before Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	queues := make([]chan models.InboundMessage, d.workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan models.InboundMessage, d.queue)
		wg.Add(1)
		go func(q <-chan models.InboundMessage) {
			defer wg.Done()
			for msg := range q {
				if err := d.Handle(ctx, msg); err != nil {
					slog.Error("Dispatcher.Run: turn failed", "from", msg.From, "id", msg.ID, "error", err)
				}
			}
		}(queues[i])
	}
	defer func() {
		for _, q := range queues {
			close(q)
		}
		wg.Wait()
		slog.Info("Dispatcher.Run: stopped")
	}()

	slog.Info("Dispatcher.Run: started", "workers", d.workers)
	messages, receipts := d.svc.Messages(), d.svc.Receipts()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-receipts:
			if !ok {
				receipts = nil
				continue
			}
			slog.Debug("Dispatcher.Run: receipt", "to", r.To, "status", r.Status)
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if !d.accept(ctx, msg) {
				continue
			}
			select {
			case queues[d.shard(msg.From)] <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (d *Dispatcher) shard(from string) int {
	h := fnv.New32a()
	h.Write([]byte(session.NormalizePhone(from)))
	return int(h.Sum32() % uint32(d.workers))
}

// accept records the message ID and reports whether it is new. Dedup failures let the
// message through.
func (d *Dispatcher) accept(ctx context.Context, msg models.InboundMessage) bool {
	if d.dedup == nil || msg.ID == "" {
		return true
	}
	inserted, err := d.dedup.RecordInbound(ctx, msg.ID, session.NormalizePhone(msg.From))
	if err != nil {
		slog.Warn("Dispatcher.accept: dedup check failed, processing anyway", "id", msg.ID, "error", err)
		return true
	}
	if !inserted {
		slog.Info("Dispatcher.accept: duplicate message dropped", "id", msg.ID, "from", msg.From)
	}
	return inserted
}

// Handle runs one message through the router under the phone's session lock and sends
// the reply.
func (d *Dispatcher) Handle(ctx context.Context, msg models.InboundMessage) error {
	phone := session.NormalizePhone(msg.From)
	if phone == "" {
		return models.ErrEmptyRecipient
	}

	var reply flow.Reply
	err := d.sessions.WithSession(ctx, phone, func(sess *session.Session) error {
		reply = d.router.ProcessMessage(ctx, msg, sess)
		return nil
	})
	if err != nil {
		slog.Warn("Dispatcher.Handle: session not saved", "phone", phone, "error", err)
	}

	if reply.ShouldSend() {
		if err := d.svc.SendMessage(ctx, phone, reply.Text()); err != nil {
			return fmt.Errorf("send reply to %s: %w", phone, err)
		}
	}
	if d.dedup != nil && msg.ID != "" {
		if err := d.dedup.MarkProcessed(ctx, msg.ID); err != nil {
			slog.Warn("Dispatcher.Handle: mark processed failed", "id", msg.ID, "error", err)
		}
	}
	return nil
}
