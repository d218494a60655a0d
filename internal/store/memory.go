package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/commercebridge/commercebridge/internal/models"
	"github.com/commercebridge/commercebridge/internal/util"
)

// InMemoryStore keeps everything in process memory. Used by tests and when no DSN is configured.
type InMemoryStore struct {
	mu            sync.RWMutex
	accounts      map[string]models.Account // by phone
	orders        map[string]models.Order
	shortURLs     map[string]models.ShortURL
	notifications map[string]models.Notification
	dedup         map[string]DedupRecord
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		accounts:      make(map[string]models.Account),
		orders:        make(map[string]models.Order),
		shortURLs:     make(map[string]models.ShortURL),
		notifications: make(map[string]models.Notification),
		dedup:         make(map[string]DedupRecord),
	}
}

func (s *InMemoryStore) UpsertAccount(_ context.Context, a models.Account) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := s.accounts[a.PhoneNumber]; ok {
		a.ID = existing.ID
		a.CreatedAt = existing.CreatedAt
	} else {
		if a.ID == "" {
			a.ID = util.GenerateAccountID()
		}
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	a.StoreCategories = append([]string(nil), a.StoreCategories...)
	s.accounts[a.PhoneNumber] = a
	return a, nil
}

func (s *InMemoryStore) FindAccountByPhone(_ context.Context, phone string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[phone]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *InMemoryStore) CreateOrder(_ context.Context, o models.Order) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[o.ID]; exists {
		return o, fmt.Errorf("order %s already exists", o.ID)
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	o.Items = append([]models.OrderItem(nil), o.Items...)
	s.orders[o.ID] = o
	return o, nil
}

func (s *InMemoryStore) GetOrder(_ context.Context, id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (s *InMemoryStore) FindOrdersByPhone(_ context.Context, phone string, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.RLock()
	var out []models.Order
	for _, o := range s.orders {
		if o.PhoneNumber == phone {
			out = append(out, o)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) MarkOrderPaid(_ context.Context, id string, paidAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return false, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	if o.Paid {
		return false, nil
	}
	o.Paid = true
	t := paidAt.UTC()
	o.PaidAt = &t
	s.orders[id] = o
	return true, nil
}

func (s *InMemoryStore) SaveShortURL(_ context.Context, u models.ShortURL) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.shortURLs[u.Code]; exists {
		return ErrDuplicateCode
	}
	s.shortURLs[u.Code] = u
	return nil
}

func (s *InMemoryStore) GetShortURL(_ context.Context, code string) (*models.ShortURL, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.shortURLs[code]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *InMemoryStore) EnqueueNotification(_ context.Context, n models.Notification) (models.Notification, error) {
	n = prepareNotification(n, time.Now().UTC(), util.GenerateNotificationID)
	s.mu.Lock()
	s.notifications[n.ID] = n
	s.mu.Unlock()
	return n, nil
}

func (s *InMemoryStore) ClaimDueNotifications(_ context.Context, now time.Time, limit int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []models.Notification
	for _, n := range s.notifications {
		if n.Status == models.NotificationPending && !n.NextAttemptAt.After(now) {
			due = append(due, n)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].NextAttemptAt.Equal(due[j].NextAttemptAt) {
			return due[i].CreatedAt.Before(due[j].CreatedAt)
		}
		return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for i := range due {
		due[i].Status = models.NotificationSending
		stored := due[i]
		s.notifications[stored.ID] = stored
	}
	return due, nil
}

func (s *InMemoryStore) MarkNotificationSent(_ context.Context, id string, sentAt time.Time) error {
	return s.updateNotification(id, func(n *models.Notification) {
		n.Status = models.NotificationSent
		t := sentAt.UTC()
		n.SentAt = &t
	})
}

func (s *InMemoryStore) FailNotification(_ context.Context, id, errMsg string, nextAttemptAt time.Time, terminal bool) error {
	return s.updateNotification(id, func(n *models.Notification) {
		n.Attempts++
		n.LastError = errMsg
		n.NextAttemptAt = nextAttemptAt
		n.Status = models.NotificationPending
		if terminal {
			n.Status = models.NotificationFailed
		}
	})
}

// RequeueStaleNotifications returns every sending notification to pending. The memory
// store does not track claim times, and it cannot outlive a crash anyway.
func (s *InMemoryStore) RequeueStaleNotifications(_ context.Context, _ time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, n := range s.notifications {
		if n.Status == models.NotificationSending {
			n.Status = models.NotificationPending
			s.notifications[id] = n
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) PurgeExpiredNotifications(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, n := range s.notifications {
		if n.ExpiresAt != nil && !now.Before(*n.ExpiresAt) {
			delete(s.notifications, id)
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) ListNotifications(_ context.Context, phone string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	var out []models.Notification
	for _, n := range s.notifications {
		if n.PhoneNumber == phone {
			out = append(out, n)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) CountUnreadNotifications(_ context.Context, phone string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.notifications {
		if n.PhoneNumber == phone && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) MarkNotificationRead(_ context.Context, id string, readAt time.Time) error {
	return s.updateNotification(id, func(n *models.Notification) {
		n.IsRead = true
		t := readAt.UTC()
		n.ReadAt = &t
	})
}

func (s *InMemoryStore) updateNotification(id string, fn func(*models.Notification)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return fmt.Errorf("notification %s: %w", id, models.ErrNotFound)
	}
	fn(&n)
	s.notifications[id] = n
	return nil
}

func (s *InMemoryStore) IsDuplicate(_ context.Context, messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dedup[messageID]
	return ok, nil
}

func (s *InMemoryStore) RecordInbound(_ context.Context, messageID, phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[messageID]; ok {
		return false, nil
	}
	s.dedup[messageID] = DedupRecord{MessageID: messageID, Phone: phone, ReceivedAt: time.Now().UTC()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.dedup[messageID]
	if !ok {
		return nil
	}
	t := time.Now().UTC()
	rec.ProcessedAt = &t
	s.dedup[messageID] = rec
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
