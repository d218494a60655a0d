package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/commercebridge/commercebridge/internal/models"
	"github.com/commercebridge/commercebridge/internal/util"
)

// Defaults for the session store.
const (
	DefaultInactivityTimeout = 30 * time.Minute
	DefaultLookupTimeout     = 10 * time.Second
)

// AccountFinder looks up the persisted account for a phone. A nil account with a nil
// error means the user has not registered.
type AccountFinder interface {
	FindAccountByPhone(ctx context.Context, phone string) (*models.Account, error)
}

// Opts holds configuration for the Store.
type Opts struct {
	Backend           Backend
	InactivityTimeout time.Duration
	LookupTimeout     time.Duration
	Now               func() time.Time
}

// Option defines a configuration option for the Store.
type Option func(*Opts)

// WithBackend replaces the default in-memory backend.
func WithBackend(b Backend) Option {
	return func(o *Opts) { o.Backend = b }
}

// WithInactivityTimeout sets how long an idle session survives the sweep.
func WithInactivityTimeout(d time.Duration) Option {
	return func(o *Opts) { o.InactivityTimeout = d }
}

// WithLookupTimeout bounds the account lookup made when a session is created.
func WithLookupTimeout(d time.Duration) Option {
	return func(o *Opts) { o.LookupTimeout = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Store is the authoritative map from normalized phone number to Session.
type Store struct {
	backend    Backend
	accounts   AccountFinder
	locks      *keyedMutex
	timeout    time.Duration
	lookupWait time.Duration
	now        func() time.Time
}

// NewStore creates a Store that consults accounts when building new sessions.
func NewStore(accounts AccountFinder, opts ...Option) *Store {
	cfg := Opts{
		InactivityTimeout: DefaultInactivityTimeout,
		LookupTimeout:     DefaultLookupTimeout,
		Now:               func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Backend == nil {
		cfg.Backend = NewMemoryBackend()
	}
	return &Store{
		backend:    cfg.Backend,
		accounts:   accounts,
		locks:      newKeyedMutex(),
		timeout:    cfg.InactivityTimeout,
		lookupWait: cfg.LookupTimeout,
		now:        cfg.Now,
	}
}

// InactivityTimeout returns the eviction window.
func (s *Store) InactivityTimeout() time.Duration {
	return s.timeout
}

// GetSession returns the session for phone, creating it on first contact. It never fails:
// backend and account lookup errors are logged and a usable session is still returned.
func (s *Store) GetSession(ctx context.Context, phone string) *Session {
	phone = NormalizePhone(phone)
	unlock := s.lock(ctx, phone)
	defer unlock()
	return s.getLocked(ctx, phone)
}

// WithSession runs fn with the phone's session while holding that phone's lock, then
// saves the session. This is how a whole inbound-message turn is serialized. fn must
// mutate the session it is given and must not call other Store methods for the same phone.
func (s *Store) WithSession(ctx context.Context, phone string, fn func(*Session) error) error {
	phone = NormalizePhone(phone)
	unlock := s.lock(ctx, phone)
	defer unlock()

	sess := s.getLocked(ctx, phone)
	fnErr := fn(sess)
	if err := s.putLocked(ctx, sess); err != nil {
		slog.Error("SessionStore.WithSession: save failed", "phone", phone, "error", err)
		if fnErr == nil {
			return err
		}
	}
	return fnErr
}

// RefreshSession discards in-flight state and rebuilds the session from the account
// record. Called once an account is created out-of-band. If the account lookup fails the
// existing session is returned as GetSession would.
func (s *Store) RefreshSession(ctx context.Context, phone string) *Session {
	phone = NormalizePhone(phone)
	unlock := s.lock(ctx, phone)
	defer unlock()

	account, err := s.lookupAccount(ctx, phone)
	if err != nil {
		slog.Warn("SessionStore.RefreshSession: account lookup failed, falling back to current session", "phone", phone, "error", err)
		return s.getLocked(ctx, phone)
	}

	fresh := s.newSession(phone, account)
	if old, ok, err := s.backend.Get(ctx, phone); err == nil && ok {
		fresh.UserID = old.UserID
		fresh.OrderHistory = old.OrderHistory
		fresh.Preferences = old.Preferences
		fresh.CreatedAt = old.CreatedAt
	}
	if err := s.backend.Put(ctx, fresh); err != nil {
		slog.Error("SessionStore.RefreshSession: save failed", "phone", phone, "error", err)
	}
	slog.Info("SessionStore.RefreshSession: session rebuilt", "phone", phone, "userType", fresh.UserType, "needsAccount", fresh.NeedsAccount)
	return fresh.Clone()
}

// UpdateSession stores sess under its normalized phone. Last write wins.
func (s *Store) UpdateSession(ctx context.Context, sess *Session) error {
	sess.PhoneNumber = NormalizePhone(sess.PhoneNumber)
	unlock := s.lock(ctx, sess.PhoneNumber)
	defer unlock()
	return s.putLocked(ctx, sess)
}

// AddToCart merges item into the cart by productId and saves.
func (s *Store) AddToCart(ctx context.Context, phone string, item models.CartItem) error {
	return s.WithSession(ctx, phone, func(sess *Session) error {
		sess.AddToCart(item)
		return nil
	})
}

// RemoveFromCart drops productID from the cart and saves.
func (s *Store) RemoveFromCart(ctx context.Context, phone, productID string) error {
	return s.WithSession(ctx, phone, func(sess *Session) error {
		sess.RemoveFromCart(productID)
		return nil
	})
}

// ClearCart empties the cart and saves.
func (s *Store) ClearCart(ctx context.Context, phone string) error {
	return s.WithSession(ctx, phone, func(sess *Session) error {
		sess.ClearCart()
		return nil
	})
}

// GetCart returns a copy of the cart.
func (s *Store) GetCart(ctx context.Context, phone string) []models.CartItem {
	return s.GetSession(ctx, phone).Cart
}

// AddToOrderHistory appends orderID and saves.
func (s *Store) AddToOrderHistory(ctx context.Context, phone, orderID string) error {
	return s.WithSession(ctx, phone, func(sess *Session) error {
		sess.AddToOrderHistory(orderID)
		return nil
	})
}

// UpdatePreferences applies a partial update and saves.
func (s *Store) UpdatePreferences(ctx context.Context, phone string, patch PreferencesPatch) error {
	return s.WithSession(ctx, phone, func(sess *Session) error {
		sess.Preferences = patch.Apply(sess.Preferences)
		return nil
	})
}

// DeactivateSession marks the session inactive without evicting it.
func (s *Store) DeactivateSession(ctx context.Context, phone string) error {
	phone = NormalizePhone(phone)
	unlock := s.lock(ctx, phone)
	defer unlock()
	sess, ok, err := s.backend.Get(ctx, phone)
	if err != nil {
		return fmt.Errorf("load session %s: %w", phone, err)
	}
	if !ok {
		return nil
	}
	sess.IsActive = false
	return s.backend.Put(ctx, sess)
}

// ActiveSessions lists sessions that have not been deactivated.
func (s *Store) ActiveSessions(ctx context.Context) ([]*Session, error) {
	all, err := s.backend.List(ctx)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, sess := range all {
		if sess.IsActive {
			active = append(active, sess)
		}
	}
	return active, nil
}

// Count returns the number of stored sessions.
func (s *Store) Count(ctx context.Context) (int, error) {
	all, err := s.backend.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// CleanupInactiveSessions evicts sessions idle for longer than the inactivity timeout and
// returns how many were removed. Each candidate is rechecked under its phone lock, so a
// session in use by a running turn survives.
func (s *Store) CleanupInactiveSessions(ctx context.Context) (int, error) {
	all, err := s.backend.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}
	cutoff := s.now().Add(-s.timeout)
	evicted := 0
	for _, candidate := range all {
		if candidate.LastActivity.After(cutoff) {
			continue
		}
		if s.evictIfIdle(ctx, candidate.PhoneNumber, cutoff) {
			evicted++
		}
	}
	if evicted > 0 {
		slog.Info("SessionStore.CleanupInactiveSessions: evicted idle sessions", "count", evicted, "remaining", len(all)-evicted)
	}
	return evicted, nil
}

func (s *Store) evictIfIdle(ctx context.Context, phone string, cutoff time.Time) bool {
	unlock := s.lock(ctx, phone)
	defer unlock()
	current, ok, err := s.backend.Get(ctx, phone)
	if err != nil || !ok || current.LastActivity.After(cutoff) {
		return false
	}
	if err := s.backend.Delete(ctx, phone); err != nil {
		slog.Error("SessionStore.CleanupInactiveSessions: delete failed", "phone", phone, "error", err)
		return false
	}
	return true
}

// lock takes the in-process lock for phone, then the backend's shared lock when it has
// one. If the shared lock cannot be taken the caller proceeds under the local lock only.
func (s *Store) lock(ctx context.Context, phone string) func() {
	unlock := s.locks.Lock(phone)
	locker, ok := s.backend.(Locker)
	if !ok {
		return unlock
	}
	release, err := locker.Lock(ctx, phone)
	if err != nil {
		slog.Warn("SessionStore.lock: shared lock unavailable, continuing with local lock", "phone", phone, "error", err)
		return unlock
	}
	return func() {
		release()
		unlock()
	}
}

// getLocked must be called with the phone lock held.
func (s *Store) getLocked(ctx context.Context, phone string) *Session {
	existing, ok, err := s.backend.Get(ctx, phone)
	if err != nil {
		slog.Warn("SessionStore.GetSession: backend read failed, rebuilding session", "phone", phone, "error", err)
	}
	if ok {
		existing.LastActivity = s.now()
		if err := s.backend.Put(ctx, existing); err != nil {
			slog.Warn("SessionStore.GetSession: failed to refresh activity", "phone", phone, "error", err)
		}
		return existing
	}

	account, err := s.lookupAccount(ctx, phone)
	sess := s.newSession(phone, account)
	if err != nil {
		// Availability over consistency: an unreachable database must not block chatting.
		slog.Warn("SessionStore.GetSession: account lookup failed, assuming registered user of unknown type", "phone", phone, "error", err)
		sess.NeedsAccount = false
		sess.UserType = models.UserTypeUnknown
	}
	if err := s.backend.Put(ctx, sess); err != nil {
		slog.Warn("SessionStore.GetSession: failed to store new session", "phone", phone, "error", err)
	}
	slog.Debug("SessionStore.GetSession: created session", "phone", phone, "userId", sess.UserID, "needsAccount", sess.NeedsAccount, "userType", sess.UserType)
	return sess
}

// putLocked must be called with the phone lock held.
func (s *Store) putLocked(ctx context.Context, sess *Session) error {
	sess.LastActivity = s.now()
	if err := s.backend.Put(ctx, sess); err != nil {
		return fmt.Errorf("save session %s: %w", sess.PhoneNumber, err)
	}
	return nil
}

func (s *Store) lookupAccount(ctx context.Context, phone string) (*models.Account, error) {
	if s.accounts == nil {
		return nil, nil
	}
	lookupCtx, cancel := context.WithTimeout(ctx, s.lookupWait)
	defer cancel()
	return s.accounts.FindAccountByPhone(lookupCtx, phone)
}

func (s *Store) newSession(phone string, account *models.Account) *Session {
	now := s.now()
	sess := &Session{
		UserID:       util.GenerateUserID(now),
		PhoneNumber:  phone,
		UserType:     models.UserTypeUnknown,
		CurrentState: StateWelcome,
		Cart:         []models.CartItem{},
		OrderHistory: []string{},
		Preferences:  DefaultPreferences(),
		NeedsAccount: account == nil,
		LastActivity: now,
		IsActive:     true,
		CreatedAt:    now,
	}
	if account != nil && models.IsValidUserType(account.UserType) {
		sess.UserType = account.UserType
	}
	return sess
}
