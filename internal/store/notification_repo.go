package store

import (
	"context"
	"time"

	"github.com/commercebridge/commercebridge/internal/models"
)

// NotificationRepo is the durable outbox for user notifications. A notification is
// pending until the sender claims it, sending while a delivery attempt is in flight,
// and ends sent or failed.
type NotificationRepo interface {
	// EnqueueNotification stores n as pending. ID, CreatedAt and NextAttemptAt are filled when empty.
	EnqueueNotification(ctx context.Context, n models.Notification) (models.Notification, error)

	// ClaimDueNotifications marks up to limit pending notifications whose
	// next_attempt_at <= now as sending and returns them.
	ClaimDueNotifications(ctx context.Context, now time.Time, limit int) ([]models.Notification, error)

	// MarkNotificationSent records a successful delivery.
	MarkNotificationSent(ctx context.Context, id string, sentAt time.Time) error

	// FailNotification records a failed attempt. A terminal failure marks the
	// notification failed; otherwise it returns to pending at nextAttemptAt.
	FailNotification(ctx context.Context, id, errMsg string, nextAttemptAt time.Time, terminal bool) error

	// RequeueStaleNotifications resets notifications stuck in sending since before
	// staleBefore back to pending (crash recovery).
	RequeueStaleNotifications(ctx context.Context, staleBefore time.Time) (int, error)

	// PurgeExpiredNotifications deletes notifications whose expires_at has passed.
	PurgeExpiredNotifications(ctx context.Context, now time.Time) (int, error)

	// ListNotifications returns the newest notifications for phone.
	ListNotifications(ctx context.Context, phone string, limit int) ([]models.Notification, error)

	// CountUnreadNotifications counts notifications not yet marked read.
	CountUnreadNotifications(ctx context.Context, phone string) (int, error)

	// MarkNotificationRead sets is_read. Returns models.ErrNotFound for unknown ids.
	MarkNotificationRead(ctx context.Context, id string, readAt time.Time) error
}

// prepareNotification fills defaults shared by every backend.
func prepareNotification(n models.Notification, now time.Time, newID func() string) models.Notification {
	if n.ID == "" {
		n.ID = newID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.NextAttemptAt.IsZero() {
		n.NextAttemptAt = now
	}
	n.Status = models.NotificationPending
	n.Attempts = 0
	return n
}
