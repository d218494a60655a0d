package models

import (
	"errors"
	"time"
)

// NotificationType is the tone of a notification.
type NotificationType string

const (
	NotificationInfo        NotificationType = "info"
	NotificationSuccess     NotificationType = "success"
	NotificationWarning     NotificationType = "warning"
	NotificationError       NotificationType = "error"
	NotificationPromotional NotificationType = "promotional"
)

// NotificationCategory groups notifications by subject.
type NotificationCategory string

const (
	CategoryOrder       NotificationCategory = "order"
	CategoryPayment     NotificationCategory = "payment"
	CategoryProduct     NotificationCategory = "product"
	CategorySystem      NotificationCategory = "system"
	CategoryPromotional NotificationCategory = "promotional"
	CategorySupport     NotificationCategory = "support"
)

// NotificationStatus tracks outbox delivery.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSending NotificationStatus = "sending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

var (
	ErrEmptyTitle          = errors.New("notification title cannot be empty")
	ErrEmptyMessage        = errors.New("notification message cannot be empty")
	ErrInvalidNotification = errors.New("invalid notification type or category")
)

// Notification is a queued WhatsApp message addressed to one user.
type Notification struct {
	ID            string               `json:"id"`
	PhoneNumber   string               `json:"phone_number"`
	UserType      UserType             `json:"user_type"`
	Title         string               `json:"title"`
	Message       string               `json:"message"`
	Type          NotificationType     `json:"type"`
	Category      NotificationCategory `json:"category"`
	Status        NotificationStatus   `json:"status"`
	Attempts      int                  `json:"attempts"`
	NextAttemptAt time.Time            `json:"next_attempt_at"`
	ExpiresAt     *time.Time           `json:"expires_at,omitempty"`
	LastError     string               `json:"last_error,omitempty"`
	IsRead        bool                 `json:"is_read"`
	ReadAt        *time.Time           `json:"read_at,omitempty"`
	SentAt        *time.Time           `json:"sent_at,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

// CreateNotificationRequest is what flows and API callers submit.
type CreateNotificationRequest struct {
	PhoneNumber  string               `json:"phoneNumber" validate:"required"`
	UserType     UserType             `json:"userType" validate:"omitempty,oneof=customer seller unknown"`
	Title        string               `json:"title" validate:"required,max=200"`
	Message      string               `json:"message" validate:"required,max=4096"`
	Type         NotificationType     `json:"type" validate:"omitempty,oneof=info success warning error promotional"`
	Category     NotificationCategory `json:"category" validate:"omitempty,oneof=order payment product system promotional support"`
	ScheduledFor *time.Time           `json:"scheduledFor,omitempty"`
	ExpiresAt    *time.Time           `json:"expiresAt,omitempty"`
}

// Validate checks required fields and fills defaults for type and category.
func (r *CreateNotificationRequest) Validate() error {
	if r.PhoneNumber == "" {
		return ErrEmptyRecipient
	}
	if r.Title == "" {
		return ErrEmptyTitle
	}
	if r.Message == "" {
		return ErrEmptyMessage
	}
	if r.Type == "" {
		r.Type = NotificationInfo
	}
	if r.Category == "" {
		r.Category = CategorySystem
	}
	if r.UserType == "" {
		r.UserType = UserTypeUnknown
	}
	switch r.Type {
	case NotificationInfo, NotificationSuccess, NotificationWarning, NotificationError, NotificationPromotional:
	default:
		return ErrInvalidNotification
	}
	switch r.Category {
	case CategoryOrder, CategoryPayment, CategoryProduct, CategorySystem, CategoryPromotional, CategorySupport:
	default:
		return ErrInvalidNotification
	}
	return nil
}
