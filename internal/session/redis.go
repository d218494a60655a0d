package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/commercebridge/commercebridge/internal/util"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRedisKeyPrefix namespaces session keys.
	DefaultRedisKeyPrefix = "session:"
	// DefaultRedisLockTTL outlives the slowest turn (a vision upload).
	DefaultRedisLockTTL = 2 * time.Minute
	lockRetryInterval   = 25 * time.Millisecond
)

// releaseLock deletes the lock only if this holder still owns it.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisBackend stores sessions as JSON with a key TTL equal to the inactivity window,
// so several bot replicas can share conversation state. Turns are serialized across
// replicas with a per-phone SET NX lock.
type RedisBackend struct {
	client  redis.UniversalClient
	prefix  string
	ttl     time.Duration
	lockTTL time.Duration
}

var _ Locker = (*RedisBackend)(nil)

// RedisOption configures a RedisBackend.
type RedisOption func(*RedisBackend)

// WithRedisKeyPrefix overrides the key prefix.
func WithRedisKeyPrefix(prefix string) RedisOption {
	return func(b *RedisBackend) { b.prefix = prefix }
}

// WithRedisTTL sets the key expiry. Zero disables expiry.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(b *RedisBackend) { b.ttl = ttl }
}

// WithRedisLockTTL bounds how long a crashed holder can block a phone.
func WithRedisLockTTL(ttl time.Duration) RedisOption {
	return func(b *RedisBackend) { b.lockTTL = ttl }
}

// NewRedisBackend wraps an existing client.
func NewRedisBackend(client redis.UniversalClient, opts ...RedisOption) *RedisBackend {
	b := &RedisBackend{client: client, prefix: DefaultRedisKeyPrefix, ttl: DefaultInactivityTimeout, lockTTL: DefaultRedisLockTTL}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s failed: %w", addr, err)
	}
	slog.Debug("session.DialRedis: connected", "addr", addr, "db", db)
	return client, nil
}

func (b *RedisBackend) key(phone string) string {
	return b.prefix + phone
}

// lockKey sits outside the session prefix so List never scans it.
func (b *RedisBackend) lockKey(phone string) string {
	return "lock:" + b.prefix + phone
}

// Lock polls SET NX PX until it owns the phone, ctx is done, or one lock TTL has passed.
func (b *RedisBackend) Lock(ctx context.Context, phone string) (func(), error) {
	key := b.lockKey(phone)
	token := util.GenerateRandomHex(32)
	waitCtx, cancel := context.WithTimeout(ctx, b.lockTTL)
	defer cancel()

	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()
	for {
		ok, err := b.client.SetNX(waitCtx, key, token, b.lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock session %s: %w", phone, err)
		}
		if ok {
			break
		}
		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("redis lock session %s: %w", phone, waitCtx.Err())
		case <-ticker.C:
		}
	}

	return func() {
		// The turn's ctx may already be cancelled; release regardless.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseLock.Run(releaseCtx, b.client, []string{key}, token).Err(); err != nil {
			slog.Warn("RedisBackend.Lock: release failed, lock will expire", "phone", phone, "error", err)
		}
	}, nil
}

func (b *RedisBackend) Get(ctx context.Context, phone string) (*Session, bool, error) {
	raw, err := b.client.Get(ctx, b.key(phone)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get session %s: %w", phone, err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false, fmt.Errorf("decode session %s: %w", phone, err)
	}
	return &s, true, nil
}

func (b *RedisBackend) Put(ctx context.Context, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.PhoneNumber, err)
	}
	if err := b.client.Set(ctx, b.key(s.PhoneNumber), raw, b.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session %s: %w", s.PhoneNumber, err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, phone string) error {
	if err := b.client.Del(ctx, b.key(phone)).Err(); err != nil {
		return fmt.Errorf("redis del session %s: %w", phone, err)
	}
	return nil
}

func (b *RedisBackend) List(ctx context.Context) ([]*Session, error) {
	var out []*Session
	iter := b.client.Scan(ctx, 0, b.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		phone := iter.Val()[len(b.prefix):]
		s, ok, err := b.Get(ctx, phone)
		if err != nil {
			slog.Warn("RedisBackend.List: skipping unreadable session", "key", iter.Val(), "error", err)
			continue
		}
		// Expired between SCAN and GET.
		if !ok {
			continue
		}
		out = append(out, s)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan sessions: %w", err)
	}
	return out, nil
}
