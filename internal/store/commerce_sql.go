package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/commercebridge/commercebridge/internal/models"
	"github.com/commercebridge/commercebridge/internal/util"
)

// sqlRepo is the database/sql implementation shared by SQLiteStore and PostgresStore.
// Queries are written with '?' placeholders and rebound per driver.
type sqlRepo struct {
	db     *sql.DB
	driver string
}

// ErrDSNNotSet is returned when a SQL store is opened without a DSN.
var ErrDSNNotSet = errors.New("database DSN not set")

const connectTimeout = 10 * time.Second

// openSQL opens driver at dsn, lets tune size the pool, then pings and migrates.
func openSQL(driver, dsn, migrations string, tune func(*sql.DB)) (*sqlRepo, error) {
	slog.Debug("store.openSQL: opening database", "driver", driver, "dsn_set", dsn != "")
	if dsn == "" {
		return nil, ErrDSNNotSet
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", driver, err)
	}
	if tune != nil {
		tune(db)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s ping failed: %w", driver, err)
	}
	if _, err := db.ExecContext(ctx, migrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("store.openSQL: migrations applied", "driver", driver)
	return &sqlRepo{db: db, driver: driver}, nil
}

func (r *sqlRepo) q(query string) string {
	return rebind(r.driver, query)
}

func (r *sqlRepo) UpsertAccount(ctx context.Context, a models.Account) (models.Account, error) {
	now := time.Now().UTC()
	if a.ID == "" {
		a.ID = util.GenerateAccountID()
	}
	categories := ""
	if len(a.StoreCategories) > 0 {
		enc, err := encodeJSON(a.StoreCategories)
		if err != nil {
			return a, err
		}
		categories = enc
	}
	_, err := r.db.ExecContext(ctx, r.q(
		`INSERT INTO accounts (`+accountColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (phone_number) DO UPDATE SET
		   name = excluded.name, email = excluded.email, user_type = excluded.user_type,
		   store_name = excluded.store_name, store_description = excluded.store_description,
		   store_address = excluded.store_address, store_categories = excluded.store_categories,
		   updated_at = excluded.updated_at`),
		a.ID, a.PhoneNumber, a.Name, a.Email, string(a.UserType),
		nilIfEmpty(a.StoreName), nilIfEmpty(a.StoreDescription), nilIfEmpty(a.StoreAddress), nilIfEmpty(categories),
		now, now,
	)
	if err != nil {
		slog.Error("Store.UpsertAccount failed", "error", err, "phone", a.PhoneNumber)
		return a, fmt.Errorf("failed to upsert account for %s: %w", a.PhoneNumber, err)
	}
	saved, err := r.FindAccountByPhone(ctx, a.PhoneNumber)
	if err != nil {
		return a, err
	}
	if saved == nil {
		return a, fmt.Errorf("account for %s missing after upsert: %w", a.PhoneNumber, models.ErrNotFound)
	}
	slog.Debug("Store.UpsertAccount succeeded", "phone", a.PhoneNumber, "userType", saved.UserType)
	return *saved, nil
}

func (r *sqlRepo) FindAccountByPhone(ctx context.Context, phone string) (*models.Account, error) {
	row := r.db.QueryRowContext(ctx, r.q(`SELECT `+accountColumns+` FROM accounts WHERE phone_number = ?`), phone)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account for %s: %w", phone, err)
	}
	return &a, nil
}

func (r *sqlRepo) CreateOrder(ctx context.Context, o models.Order) (models.Order, error) {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	itemsJSON, err := encodeJSON(o.Items)
	if err != nil {
		return o, err
	}
	_, err = r.db.ExecContext(ctx, r.q(
		`INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		o.ID, o.PhoneNumber, nilIfEmpty(o.UserID), itemsJSON, o.Total, o.Paid, nilIfZeroTime(o.PaidAt), o.CreatedAt,
	)
	if err != nil {
		slog.Error("Store.CreateOrder failed", "error", err, "orderID", o.ID)
		return o, fmt.Errorf("failed to insert order %s: %w", o.ID, err)
	}
	slog.Debug("Store.CreateOrder succeeded", "orderID", o.ID, "phone", o.PhoneNumber, "total", o.Total)
	return o, nil
}

func (r *sqlRepo) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	row := r.db.QueryRowContext(ctx, r.q(`SELECT `+orderColumns+` FROM orders WHERE id = ?`), id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", id, err)
	}
	return &o, nil
}

func (r *sqlRepo) FindOrdersByPhone(ctx context.Context, phone string, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, r.q(
		`SELECT `+orderColumns+` FROM orders WHERE phone_number = ? ORDER BY created_at DESC LIMIT ?`), phone, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders for %s: %w", phone, err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate order rows: %w", err)
	}
	return orders, nil
}

func (r *sqlRepo) MarkOrderPaid(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.q(`UPDATE orders SET paid = ?, paid_at = ? WHERE id = ? AND paid = ?`), true, paidAt.UTC(), id, false)
	if err != nil {
		return false, fmt.Errorf("failed to mark order %s paid: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark order %s paid: %w", id, err)
	}
	if n > 0 {
		return true, nil
	}
	existing, err := r.GetOrder(ctx, id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	return false, nil
}

func (r *sqlRepo) SaveShortURL(ctx context.Context, s models.ShortURL) error {
	res, err := r.db.ExecContext(ctx, r.q(
		`INSERT INTO short_urls (code, target_url, phone, created_by, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (code) DO NOTHING`),
		s.Code, s.TargetURL, nilIfEmpty(s.Phone), nilIfEmpty(s.CreatedBy), s.CreatedAt.UTC(), s.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save short url %s: %w", s.Code, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDuplicateCode
	}
	return nil
}

func (r *sqlRepo) GetShortURL(ctx context.Context, code string) (*models.ShortURL, error) {
	var s models.ShortURL
	var phone, createdBy sql.NullString
	err := r.db.QueryRowContext(ctx, r.q(
		`SELECT code, target_url, phone, created_by, created_at, expires_at FROM short_urls WHERE code = ?`), code,
	).Scan(&s.Code, &s.TargetURL, &phone, &createdBy, &s.CreatedAt, &s.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get short url %s: %w", code, err)
	}
	s.Phone = phone.String
	s.CreatedBy = createdBy.String
	return &s, nil
}

// Close closes the database connection.
func (r *sqlRepo) Close() error {
	slog.Debug("Closing database connection", "driver", r.driver)
	err := r.db.Close()
	if err != nil {
		slog.Error("Failed to close database", "driver", r.driver, "error", err)
	}
	return err
}
