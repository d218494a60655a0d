// Package notify queues WhatsApp notifications for users and formats them for delivery.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/commercebridge/commercebridge/internal/models"
	"github.com/commercebridge/commercebridge/internal/store"
)

// DefaultListLimit bounds notification listings when the caller gives no limit.
const DefaultListLimit = 20

// Result reports the outcome of a best-effort notification. Callers may inspect it but
// are never required to act on it.
type Result struct {
	ID  string
	Err error
}

// OK reports whether the notification was queued.
func (r Result) OK() bool {
	return r.Err == nil
}

// Opts holds configuration for the Service.
type Opts struct {
	Now func() time.Time
}

// Option defines a configuration option for the Service.
type Option func(*Opts)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Service creates and reads notifications backed by the store's outbox.
type Service struct {
	repo store.NotificationRepo
	now  func() time.Time
}

// NewService creates a Service over repo.
func NewService(repo store.NotificationRepo, opts ...Option) *Service {
	cfg := Opts{Now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Service{repo: repo, now: cfg.Now}
}

// Create validates req and queues it for delivery.
func (s *Service) Create(ctx context.Context, req models.CreateNotificationRequest) Result {
	if err := req.Validate(); err != nil {
		slog.Warn("NotificationService.Create: invalid request", "phone", req.PhoneNumber, "title", req.Title, "error", err)
		return Result{Err: err}
	}
	n := models.Notification{
		PhoneNumber: req.PhoneNumber,
		UserType:    req.UserType,
		Title:       req.Title,
		Message:     req.Message,
		Type:        req.Type,
		Category:    req.Category,
		ExpiresAt:   req.ExpiresAt,
	}
	if req.ScheduledFor != nil {
		n.NextAttemptAt = req.ScheduledFor.UTC()
	}
	if n.ExpiresAt != nil && !n.ExpiresAt.After(s.now()) {
		slog.Warn("NotificationService.Create: notification already expired", "phone", req.PhoneNumber, "title", req.Title)
		return Result{Err: fmt.Errorf("notification %q: %w", req.Title, models.ErrInvalidNotification)}
	}
	saved, err := s.repo.EnqueueNotification(ctx, n)
	if err != nil {
		slog.Error("NotificationService.Create: enqueue failed", "phone", req.PhoneNumber, "title", req.Title, "error", err)
		return Result{Err: fmt.Errorf("enqueue notification: %w", err)}
	}
	slog.Debug("NotificationService.Create: queued", "id", saved.ID, "phone", saved.PhoneNumber, "category", saved.Category)
	return Result{ID: saved.ID}
}

// List returns the newest notifications for phone.
func (s *Service) List(ctx context.Context, phone string, limit int) ([]models.Notification, error) {
	if phone == "" {
		return nil, models.ErrEmptyRecipient
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.repo.ListNotifications(ctx, phone, limit)
}

// UnreadCount counts unread notifications for phone.
func (s *Service) UnreadCount(ctx context.Context, phone string) (int, error) {
	if phone == "" {
		return 0, models.ErrEmptyRecipient
	}
	return s.repo.CountUnreadNotifications(ctx, phone)
}

// MarkRead marks one notification read.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	return s.repo.MarkNotificationRead(ctx, id, s.now())
}
