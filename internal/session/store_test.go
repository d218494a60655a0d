package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/commercebridge/commercebridge/internal/models"
)

type mockAccounts struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	err      error
	calls    int
}

func (m *mockAccounts) FindAccountByPhone(_ context.Context, phone string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.accounts[phone], nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(accounts AccountFinder) (*Store, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	return NewStore(accounts, WithClock(clock.Now)), clock
}

func TestGetSession_NewUserNeedsAccount(t *testing.T) {
	store, _ := newTestStore(&mockAccounts{})
	sess := store.GetSession(context.Background(), "whatsapp:+2348000000001")

	if sess.PhoneNumber != "2348000000001" {
		t.Errorf("PhoneNumber = %q, want normalized", sess.PhoneNumber)
	}
	if !sess.NeedsAccount {
		t.Error("new user without account should need one")
	}
	if sess.UserType != models.UserTypeUnknown {
		t.Errorf("UserType = %q, want unknown", sess.UserType)
	}
	if sess.CurrentState != StateWelcome {
		t.Errorf("CurrentState = %q, want %q", sess.CurrentState, StateWelcome)
	}
	if sess.Preferences != DefaultPreferences() {
		t.Errorf("Preferences = %+v, want defaults", sess.Preferences)
	}
	if !sess.IsActive {
		t.Error("new session should be active")
	}
}

func TestGetSession_ExistingAccount(t *testing.T) {
	accounts := &mockAccounts{accounts: map[string]*models.Account{
		"2348000000002": {PhoneNumber: "2348000000002", UserType: models.UserTypeSeller},
	}}
	store, _ := newTestStore(accounts)
	sess := store.GetSession(context.Background(), "2348000000002@c.us")
	if sess.NeedsAccount {
		t.Error("registered user should not need an account")
	}
	if sess.UserType != models.UserTypeSeller {
		t.Errorf("UserType = %q, want seller", sess.UserType)
	}
}

func TestGetSession_PersistenceErrorDegrades(t *testing.T) {
	store, _ := newTestStore(&mockAccounts{err: errors.New("db down")})
	sess := store.GetSession(context.Background(), "2348000000003")
	if sess == nil {
		t.Fatal("GetSession must never return nil")
	}
	if sess.NeedsAccount {
		t.Error("lookup failure should degrade to needsAccount=false")
	}
	if sess.UserType != models.UserTypeUnknown {
		t.Errorf("UserType = %q, want unknown", sess.UserType)
	}
}

func TestGetSession_Idempotent(t *testing.T) {
	accounts := &mockAccounts{}
	store, clock := newTestStore(accounts)
	ctx := context.Background()

	first := store.GetSession(ctx, "2348000000004")
	clock.Advance(time.Minute)
	second := store.GetSession(ctx, "+2348000000004")

	if first.UserID != second.UserID {
		t.Errorf("UserID changed: %q -> %q", first.UserID, second.UserID)
	}
	if first.CurrentState != second.CurrentState {
		t.Errorf("CurrentState changed: %q -> %q", first.CurrentState, second.CurrentState)
	}
	if len(second.Cart) != len(first.Cart) {
		t.Error("cart changed between reads")
	}
	if !second.LastActivity.After(first.LastActivity) {
		t.Error("LastActivity should advance on access")
	}
	if accounts.calls != 1 {
		t.Errorf("account lookups = %d, want 1", accounts.calls)
	}
}

func TestGetSession_ReturnsCopy(t *testing.T) {
	store, _ := newTestStore(nil)
	ctx := context.Background()
	sess := store.GetSession(ctx, "2348000000005")
	sess.CurrentState = StateCheckout
	if got := store.GetSession(ctx, "2348000000005").CurrentState; got != StateWelcome {
		t.Errorf("unsaved mutation leaked into store: state = %q", got)
	}
}

func TestRefreshSession(t *testing.T) {
	accounts := &mockAccounts{accounts: map[string]*models.Account{}}
	store, _ := newTestStore(accounts)
	ctx := context.Background()
	phone := "2348000000006"

	before := store.GetSession(ctx, phone)
	if err := store.WithSession(ctx, phone, func(s *Session) error {
		s.CurrentState = StateAwaitingAccountCreation
		s.UserType = models.UserTypeCustomer
		s.AddToCart(models.CartItem{ProductID: "1", Price: 25, Quantity: 1})
		return nil
	}); err != nil {
		t.Fatalf("WithSession: %v", err)
	}

	accounts.mu.Lock()
	accounts.accounts[phone] = &models.Account{PhoneNumber: phone, UserType: models.UserTypeCustomer}
	accounts.mu.Unlock()

	after := store.RefreshSession(ctx, phone)
	if after.NeedsAccount {
		t.Error("refresh should clear needsAccount")
	}
	if after.UserType != models.UserTypeCustomer {
		t.Errorf("UserType = %q, want customer", after.UserType)
	}
	if after.CurrentState != StateWelcome {
		t.Errorf("CurrentState = %q, want in-flight state discarded", after.CurrentState)
	}
	if len(after.Cart) != 0 {
		t.Errorf("cart should be discarded, got %d items", len(after.Cart))
	}
	if after.UserID != before.UserID {
		t.Error("userId must never be reassigned")
	}
}

func TestRefreshSession_FallsBackOnError(t *testing.T) {
	accounts := &mockAccounts{}
	store, _ := newTestStore(accounts)
	ctx := context.Background()
	phone := "2348000000007"
	store.GetSession(ctx, phone)
	_ = store.WithSession(ctx, phone, func(s *Session) error {
		s.CurrentState = StateOnboarding
		return nil
	})

	accounts.mu.Lock()
	accounts.err = errors.New("timeout")
	accounts.mu.Unlock()

	sess := store.RefreshSession(ctx, phone)
	if sess.CurrentState != StateOnboarding {
		t.Errorf("fallback should return the current session, got state %q", sess.CurrentState)
	}
}

func TestCartMutators(t *testing.T) {
	store, _ := newTestStore(nil)
	ctx := context.Background()
	phone := "2348000000008"

	item := models.CartItem{ProductID: "1", Name: "Fashion & Clothing", Price: 25, Quantity: 1}
	for i := 0; i < 2; i++ {
		if err := store.AddToCart(ctx, phone, item); err != nil {
			t.Fatalf("AddToCart: %v", err)
		}
	}
	if err := store.AddToCart(ctx, phone, models.CartItem{ProductID: "2", Name: "Electronics", Price: 120, Quantity: 1}); err != nil {
		t.Fatalf("AddToCart: %v", err)
	}

	cart := store.GetCart(ctx, phone)
	if len(cart) != 2 {
		t.Fatalf("cart lines = %d, want 2", len(cart))
	}
	if cart[0].Quantity != 2 {
		t.Errorf("merged quantity = %d, want 2", cart[0].Quantity)
	}
	if total := models.CartTotal(cart); total != 170 {
		t.Errorf("total = %v, want 170", total)
	}

	if err := store.RemoveFromCart(ctx, phone, "1"); err != nil {
		t.Fatalf("RemoveFromCart: %v", err)
	}
	cart = store.GetCart(ctx, phone)
	if len(cart) != 1 || cart[0].ProductID != "2" {
		t.Errorf("after remove cart = %+v", cart)
	}

	if err := store.ClearCart(ctx, phone); err != nil {
		t.Fatalf("ClearCart: %v", err)
	}
	if cart = store.GetCart(ctx, phone); len(cart) != 0 {
		t.Errorf("after clear cart = %+v", cart)
	}
}

func TestOrderHistoryAndPreferences(t *testing.T) {
	store, _ := newTestStore(nil)
	ctx := context.Background()
	phone := "2348000000009"

	_ = store.AddToOrderHistory(ctx, phone, "order-1")
	_ = store.AddToOrderHistory(ctx, phone, "order-2")
	lang := "fr"
	_ = store.UpdatePreferences(ctx, phone, PreferencesPatch{Language: &lang})

	sess := store.GetSession(ctx, phone)
	if len(sess.OrderHistory) != 2 || sess.OrderHistory[1] != "order-2" {
		t.Errorf("OrderHistory = %v", sess.OrderHistory)
	}
	if sess.Preferences.Language != "fr" || sess.Preferences.Currency != "USD" || !sess.Preferences.Notifications {
		t.Errorf("Preferences = %+v", sess.Preferences)
	}
}

func TestDeactivateAndActiveSessions(t *testing.T) {
	store, _ := newTestStore(nil)
	ctx := context.Background()
	store.GetSession(ctx, "2348000000010")
	store.GetSession(ctx, "2348000000011")

	if err := store.DeactivateSession(ctx, "2348000000010"); err != nil {
		t.Fatalf("DeactivateSession: %v", err)
	}
	active, err := store.ActiveSessions(ctx)
	if err != nil {
		t.Fatalf("ActiveSessions: %v", err)
	}
	if len(active) != 1 || active[0].PhoneNumber != "2348000000011" {
		t.Errorf("active = %+v", active)
	}
	if n, _ := store.Count(ctx); n != 2 {
		t.Errorf("Count = %d, want 2 (deactivation does not evict)", n)
	}
	if err := store.DeactivateSession(ctx, "unknown"); err != nil {
		t.Errorf("deactivating unknown phone should be a no-op, got %v", err)
	}
}

func TestCleanupInactiveSessions(t *testing.T) {
	store, clock := newTestStore(nil)
	ctx := context.Background()

	store.GetSession(ctx, "2348000000012")
	clock.Advance(20 * time.Minute)
	store.GetSession(ctx, "2348000000013")
	clock.Advance(15 * time.Minute)

	evicted, err := store.CleanupInactiveSessions(ctx)
	if err != nil {
		t.Fatalf("CleanupInactiveSessions: %v", err)
	}
	if evicted != 1 {
		t.Errorf("evicted = %d, want 1", evicted)
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Errorf("remaining = %d, want 1", n)
	}
	if store.locks.size() != 0 {
		t.Errorf("lock entries leaked: %d", store.locks.size())
	}
}

func TestWithSession_PropagatesError(t *testing.T) {
	store, _ := newTestStore(nil)
	want := errors.New("flow failed")
	err := store.WithSession(context.Background(), "2348000000014", func(s *Session) error {
		s.CurrentState = StateCustomerMain
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
	if got := store.GetSession(context.Background(), "2348000000014").CurrentState; got != StateCustomerMain {
		t.Errorf("mutations are saved even when fn fails, state = %q", got)
	}
}

func TestConcurrentAddToCartSerializes(t *testing.T) {
	store, _ := newTestStore(nil)
	ctx := context.Background()
	phone := "2348000000015"

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.AddToCart(ctx, phone, models.CartItem{ProductID: "1", Price: 25, Quantity: 1})
		}()
	}
	wg.Wait()

	cart := store.GetCart(ctx, phone)
	if len(cart) != 1 || cart[0].Quantity != workers {
		t.Fatalf("cart = %+v, want one line with quantity %d", cart, workers)
	}
	if store.locks.size() != 0 {
		t.Errorf("lock entries leaked: %d", store.locks.size())
	}
}

func TestConcurrentPhonesIndependent(t *testing.T) {
	store, _ := newTestStore(nil)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.AddToCart(ctx, fmt.Sprintf("23480000001%02d", i), models.CartItem{ProductID: "2", Price: 120, Quantity: 1})
		}(i)
	}
	wg.Wait()
	if n, _ := store.Count(ctx); n != 20 {
		t.Errorf("Count = %d, want 20", n)
	}
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	store, _ := newTestStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSweeper(store, time.Millisecond).Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

// lockingBackend is a MemoryBackend that also implements Locker.
type lockingBackend struct {
	*MemoryBackend
	mu       sync.Mutex
	held     map[string]bool
	locks    int
	unlocks  int
	overlaps int
	err      error
}

func (b *lockingBackend) Lock(_ context.Context, phone string) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	if b.held[phone] {
		b.overlaps++
	}
	b.held[phone] = true
	b.locks++
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.held[phone] = false
		b.unlocks++
	}, nil
}

func TestSharedLockWrapsEachTurn(t *testing.T) {
	tests := []struct {
		name      string
		lockErr   error
		wantLocks int
	}{
		{name: "shared lock taken and released", wantLocks: 11},
		{name: "shared lock unavailable falls back to local lock", lockErr: errors.New("redis down")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &lockingBackend{MemoryBackend: NewMemoryBackend(), held: map[string]bool{}, err: tt.lockErr}
			store := NewStore(nil, WithBackend(backend))
			ctx := context.Background()
			phone := "2348000000016"

			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := store.AddToCart(ctx, phone, models.CartItem{ProductID: "4", Price: 10, Quantity: 1}); err != nil {
						t.Errorf("AddToCart: %v", err)
					}
				}()
			}
			wg.Wait()

			if cart := store.GetCart(ctx, phone); len(cart) != 1 || cart[0].Quantity != 10 {
				t.Fatalf("cart = %+v, want one line with quantity 10", cart)
			}
			backend.mu.Lock()
			defer backend.mu.Unlock()
			if backend.overlaps != 0 {
				t.Errorf("shared lock held twice at once %d times", backend.overlaps)
			}
			if backend.locks != backend.unlocks {
				t.Errorf("locks = %d, unlocks = %d", backend.locks, backend.unlocks)
			}
			if backend.locks != tt.wantLocks {
				t.Errorf("locks = %d, want %d", backend.locks, tt.wantLocks)
			}
		})
	}
}
