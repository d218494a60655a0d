package notify

import (
	"context"
	"fmt"

	"github.com/commercebridge/commercebridge/internal/models"
	"github.com/commercebridge/commercebridge/internal/store"
)

// TextSender is the subset of the messaging service used to deliver notifications.
type TextSender interface {
	SendMessage(ctx context.Context, to, body string) error
}

// Format renders a notification as a WhatsApp message.
func Format(n models.Notification) string {
	return fmt.Sprintf("*%s*\n\n%s", n.Title, n.Message)
}

// NewSendFunc adapts a messaging service into the outbox sender's delivery callback.
func NewSendFunc(sender TextSender) store.NotificationSendFunc {
	return func(ctx context.Context, n models.Notification) error {
		if err := sender.SendMessage(ctx, n.PhoneNumber, Format(n)); err != nil {
			return fmt.Errorf("deliver notification %s: %w", n.ID, err)
		}
		return nil
	}
}
