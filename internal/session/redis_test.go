package session

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/commercebridge/commercebridge/internal/models"
)

func TestRedisBackend(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skipf("REDIS_ADDR not set, skipping redis backend test")
	}
	ctx := context.Background()
	client, err := DialRedis(ctx, addr, os.Getenv("REDIS_PASSWORD"), 0)
	if err != nil {
		t.Fatalf("DialRedis: %v", err)
	}
	defer client.Close()

	prefix := "session-test:" + time.Now().Format("150405.000000") + ":"
	backend := NewRedisBackend(client, WithRedisKeyPrefix(prefix), WithRedisTTL(time.Minute))
	store := NewStore(nil, WithBackend(backend))

	phone := "2348000009999"
	if err := store.AddToCart(ctx, phone, models.CartItem{ProductID: "3", Name: "Home & Garden", Price: 45, Quantity: 1}); err != nil {
		t.Fatalf("AddToCart: %v", err)
	}
	sess := store.GetSession(ctx, phone)
	if len(sess.Cart) != 1 || sess.Cart[0].ProductID != "3" {
		t.Errorf("cart round trip = %+v", sess.Cart)
	}

	all, err := backend.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("List returned %d sessions, want 1", len(all))
	}

	ttl, err := client.TTL(ctx, prefix+phone).Result()
	if err != nil || ttl <= 0 {
		t.Errorf("expected a key TTL, got %v (err %v)", ttl, err)
	}

	if err := backend.Delete(ctx, phone); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := backend.Get(ctx, phone); ok {
		t.Error("session still present after Delete")
	}
}

func TestRedisBackendSerializesReplicas(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skipf("REDIS_ADDR not set, skipping redis backend test")
	}
	ctx := context.Background()
	client, err := DialRedis(ctx, addr, os.Getenv("REDIS_PASSWORD"), 0)
	if err != nil {
		t.Fatalf("DialRedis: %v", err)
	}
	defer client.Close()

	prefix := "session-lock-test:" + time.Now().Format("150405.000000") + ":"
	backend := NewRedisBackend(client, WithRedisKeyPrefix(prefix), WithRedisTTL(time.Minute), WithRedisLockTTL(10*time.Second))
	replicas := []*Store{NewStore(nil, WithBackend(backend)), NewStore(nil, WithBackend(backend))}
	phone := "2348000009998"
	defer backend.Delete(ctx, phone)

	const perReplica = 15
	var wg sync.WaitGroup
	for _, store := range replicas {
		for i := 0; i < perReplica; i++ {
			wg.Add(1)
			go func(store *Store) {
				defer wg.Done()
				if err := store.AddToCart(ctx, phone, models.CartItem{ProductID: "5", Price: 8, Quantity: 1}); err != nil {
					t.Errorf("AddToCart: %v", err)
				}
			}(store)
		}
	}
	wg.Wait()

	cart := replicas[0].GetCart(ctx, phone)
	if len(cart) != 1 || cart[0].Quantity != 2*perReplica {
		t.Fatalf("cart = %+v, want one line with quantity %d", cart, 2*perReplica)
	}
	if n, err := client.Exists(ctx, backend.lockKey(phone)).Result(); err != nil || n != 0 {
		t.Errorf("lock key left behind: exists=%d err=%v", n, err)
	}
}
