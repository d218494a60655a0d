package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/commercebridge/commercebridge/internal/models"
)

// Defaults for NotificationSender.
const (
	DefaultSenderPollInterval   = 5 * time.Second
	DefaultSenderStaleThreshold = 5 * time.Minute
	DefaultSenderClaimLimit     = 10
	DefaultSenderMaxAttempts    = 5
)

// NotificationSendFunc delivers one notification. A returned error schedules a retry.
type NotificationSendFunc func(ctx context.Context, n models.Notification) error

// NotificationSender periodically claims due notifications and delivers them.
type NotificationSender struct {
	repo           NotificationRepo
	sendFunc       NotificationSendFunc
	pollInterval   time.Duration
	staleThreshold time.Duration
	claimLimit     int
	maxAttempts    int
	now            func() time.Time
}

// NewNotificationSender creates a new NotificationSender.
func NewNotificationSender(repo NotificationRepo, sendFunc NotificationSendFunc, pollInterval time.Duration) *NotificationSender {
	if pollInterval <= 0 {
		pollInterval = DefaultSenderPollInterval
	}
	return &NotificationSender{
		repo:           repo,
		sendFunc:       sendFunc,
		pollInterval:   pollInterval,
		staleThreshold: DefaultSenderStaleThreshold,
		claimLimit:     DefaultSenderClaimLimit,
		maxAttempts:    DefaultSenderMaxAttempts,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// RecoverStale requeues notifications stuck in sending state (crash recovery).
// Should be called once at startup.
func (s *NotificationSender) RecoverStale(ctx context.Context) error {
	n, err := s.repo.RequeueStaleNotifications(ctx, s.now().Add(-s.staleThreshold))
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("NotificationSender.RecoverStale: requeued stale notifications", "count", n)
	}
	return nil
}

// Run starts the polling loop. It blocks until the context is cancelled.
func (s *NotificationSender) Run(ctx context.Context) {
	slog.Info("NotificationSender.Run: starting notification sender", "pollInterval", s.pollInterval)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("NotificationSender.Run: stopping")
			return
		case <-ticker.C:
			s.Poll(ctx)
		}
	}
}

// Poll runs one claim-and-deliver cycle.
func (s *NotificationSender) Poll(ctx context.Context) {
	now := s.now()
	if n, err := s.repo.PurgeExpiredNotifications(ctx, now); err != nil {
		slog.Error("NotificationSender.Poll: purge failed", "error", err)
	} else if n > 0 {
		slog.Debug("NotificationSender.Poll: purged expired notifications", "count", n)
	}

	due, err := s.repo.ClaimDueNotifications(ctx, now, s.claimLimit)
	if err != nil {
		slog.Error("NotificationSender.Poll: claim failed", "error", err)
		return
	}

	for _, n := range due {
		slog.Debug("NotificationSender.Poll: sending notification", "id", n.ID, "phone", n.PhoneNumber, "category", n.Category)
		if err := s.sendFunc(ctx, n); err != nil {
			terminal := n.Attempts+1 >= s.maxAttempts
			// Exponential backoff: 10s, 20s, 40s, ...
			backoff := time.Duration(10*(1<<n.Attempts)) * time.Second
			slog.Error("NotificationSender.Poll: send failed", "id", n.ID, "attempt", n.Attempts+1, "terminal", terminal, "error", err)
			if ferr := s.repo.FailNotification(ctx, n.ID, err.Error(), now.Add(backoff), terminal); ferr != nil {
				slog.Error("NotificationSender.Poll: fail notification error", "id", n.ID, "error", ferr)
			}
			continue
		}
		if err := s.repo.MarkNotificationSent(ctx, n.ID, s.now()); err != nil {
			slog.Error("NotificationSender.Poll: mark sent error", "id", n.ID, "error", err)
		}
		slog.Debug("NotificationSender.Poll: notification sent", "id", n.ID, "phone", n.PhoneNumber)
	}
}
