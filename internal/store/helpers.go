package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/commercebridge/commercebridge/internal/models"
)

// ErrDuplicateCode is returned when a short URL code already exists.
var ErrDuplicateCode = errors.New("short url code already exists")

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nilIfZeroTime maps a nil or zero time to NULL.
func nilIfZeroTime(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

// rebind rewrites '?' placeholders to PostgreSQL's $n form.
func rebind(driver, query string) string {
	if driver != "postgres" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func encodeJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json failed: %w", err)
	}
	return string(b), nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const accountColumns = `id, phone_number, name, email, user_type, store_name, store_description, store_address, store_categories, created_at, updated_at`

func scanAccount(row rowScanner) (models.Account, error) {
	var a models.Account
	var storeName, storeDescription, storeAddress, categories sql.NullString
	var userType string
	err := row.Scan(&a.ID, &a.PhoneNumber, &a.Name, &a.Email, &userType,
		&storeName, &storeDescription, &storeAddress, &categories, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return a, err
	}
	a.UserType = models.UserType(userType)
	a.StoreName = storeName.String
	a.StoreDescription = storeDescription.String
	a.StoreAddress = storeAddress.String
	if categories.String != "" {
		if err := json.Unmarshal([]byte(categories.String), &a.StoreCategories); err != nil {
			return a, fmt.Errorf("decode store categories failed: %w", err)
		}
	}
	return a, nil
}

const orderColumns = `id, phone_number, user_id, items_json, total, paid, paid_at, created_at`

func scanOrder(row rowScanner) (models.Order, error) {
	var o models.Order
	var userID sql.NullString
	var itemsJSON string
	var paidAt sql.NullTime
	if err := row.Scan(&o.ID, &o.PhoneNumber, &userID, &itemsJSON, &o.Total, &o.Paid, &paidAt, &o.CreatedAt); err != nil {
		return o, err
	}
	o.UserID = userID.String
	if paidAt.Valid {
		t := paidAt.Time
		o.PaidAt = &t
	}
	if err := json.Unmarshal([]byte(itemsJSON), &o.Items); err != nil {
		return o, fmt.Errorf("decode order items failed: %w", err)
	}
	return o, nil
}

const notificationColumns = `id, phone_number, user_type, title, message, type, category, status, attempts, next_attempt_at, expires_at, last_error, is_read, read_at, sent_at, created_at`

func scanNotification(row rowScanner) (models.Notification, error) {
	var n models.Notification
	var userType, typ, category, status string
	var lastError sql.NullString
	var expiresAt, readAt, sentAt sql.NullTime
	err := row.Scan(&n.ID, &n.PhoneNumber, &userType, &n.Title, &n.Message, &typ, &category, &status,
		&n.Attempts, &n.NextAttemptAt, &expiresAt, &lastError, &n.IsRead, &readAt, &sentAt, &n.CreatedAt)
	if err != nil {
		return n, fmt.Errorf("scan notification failed: %w", err)
	}
	n.UserType = models.UserType(userType)
	n.Type = models.NotificationType(typ)
	n.Category = models.NotificationCategory(category)
	n.Status = models.NotificationStatus(status)
	n.LastError = lastError.String
	if expiresAt.Valid {
		t := expiresAt.Time
		n.ExpiresAt = &t
	}
	if readAt.Valid {
		t := readAt.Time
		n.ReadAt = &t
	}
	if sentAt.Valid {
		t := sentAt.Time
		n.SentAt = &t
	}
	return n, nil
}
