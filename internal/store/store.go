// Package store provides persistence backends for CommerceBridge.
//
// Accounts, orders, notifications (a durable outbox), short URLs and inbound message
// dedup records live here. SQLite and PostgreSQL share one SQL implementation; the
// in-memory store backs tests and database-less runs.
package store

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/commercebridge/commercebridge/internal/models"
)

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store implementations.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") ||
		strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// AccountRepo stores user accounts keyed by normalized phone number.
type AccountRepo interface {
	// UpsertAccount creates or updates the account for a.PhoneNumber.
	UpsertAccount(ctx context.Context, a models.Account) (models.Account, error)
	// FindAccountByPhone returns nil, nil when no account exists.
	FindAccountByPhone(ctx context.Context, phone string) (*models.Account, error)
}

// OrderRepo stores checkout orders.
type OrderRepo interface {
	CreateOrder(ctx context.Context, o models.Order) (models.Order, error)
	// GetOrder returns nil, nil when the order does not exist.
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	// FindOrdersByPhone returns at most limit orders, newest first.
	FindOrdersByPhone(ctx context.Context, phone string, limit int) ([]models.Order, error)
	// MarkOrderPaid flips an unpaid order to paid. It reports false when the order
	// was already paid, and wraps models.ErrNotFound when it does not exist.
	MarkOrderPaid(ctx context.Context, id string, paidAt time.Time) (bool, error)
}

// ShortURLRepo stores registration short links.
type ShortURLRepo interface {
	// SaveShortURL returns ErrDuplicateCode if the code is taken.
	SaveShortURL(ctx context.Context, s models.ShortURL) error
	// GetShortURL returns nil, nil when the code is unknown.
	GetShortURL(ctx context.Context, code string) (*models.ShortURL, error)
}

// Store is the full persistence surface used by the application.
type Store interface {
	AccountRepo
	OrderRepo
	ShortURLRepo
	NotificationRepo
	DedupRepo
	Close() error
}

// New opens the store selected by the DSN: PostgreSQL, SQLite, or in-memory when empty.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Info("store.New: no DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		return NewPostgresStore(opts...)
	}
	return NewSQLiteStore(opts...)
}
