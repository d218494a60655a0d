package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/commercebridge/commercebridge/internal/models"
	"github.com/commercebridge/commercebridge/internal/util"
)

func (r *sqlRepo) EnqueueNotification(ctx context.Context, n models.Notification) (models.Notification, error) {
	n = prepareNotification(n, time.Now().UTC(), util.GenerateNotificationID)
	_, err := r.db.ExecContext(ctx, r.q(
		`INSERT INTO notifications (`+notificationColumns+`, locked_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)`),
		n.ID, n.PhoneNumber, string(n.UserType), n.Title, n.Message, string(n.Type), string(n.Category),
		string(n.Status), n.Attempts, n.NextAttemptAt.UTC(), nilIfZeroTime(n.ExpiresAt), nil,
		false, nil, nil, n.CreatedAt.UTC(), n.CreatedAt.UTC(),
	)
	if err != nil {
		return n, fmt.Errorf("enqueue notification failed: %w", err)
	}
	slog.Debug("Store.EnqueueNotification", "id", n.ID, "phone", n.PhoneNumber, "category", n.Category)
	return n, nil
}

func (r *sqlRepo) ClaimDueNotifications(ctx context.Context, now time.Time, limit int) ([]models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, r.q(
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE status = 'pending' AND next_attempt_at <= ?
		 ORDER BY next_attempt_at ASC, created_at ASC LIMIT ?`),
		now.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due notifications failed: %w", err)
	}
	var candidates []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, n)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("claim notifications iteration failed: %w", err)
	}
	rows.Close()

	claimed := make([]models.Notification, 0, len(candidates))
	for _, n := range candidates {
		res, err := r.db.ExecContext(ctx, r.q(
			`UPDATE notifications SET status = 'sending', locked_at = ?, updated_at = ? WHERE id = ? AND status = 'pending'`),
			now.UTC(), now.UTC(), n.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("mark notification sending failed: %w", err)
		}
		// Another sender won the race for this row.
		if affected, _ := res.RowsAffected(); affected == 0 {
			continue
		}
		n.Status = models.NotificationSending
		claimed = append(claimed, n)
	}
	return claimed, nil
}

func (r *sqlRepo) MarkNotificationSent(ctx context.Context, id string, sentAt time.Time) error {
	_, err := r.db.ExecContext(ctx, r.q(
		`UPDATE notifications SET status = 'sent', sent_at = ?, locked_at = NULL, updated_at = ? WHERE id = ?`),
		sentAt.UTC(), sentAt.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark notification sent failed: %w", err)
	}
	return nil
}

func (r *sqlRepo) FailNotification(ctx context.Context, id, errMsg string, nextAttemptAt time.Time, terminal bool) error {
	status := models.NotificationPending
	if terminal {
		status = models.NotificationFailed
	}
	_, err := r.db.ExecContext(ctx, r.q(
		`UPDATE notifications SET status = ?, attempts = attempts + 1, last_error = ?, next_attempt_at = ?, locked_at = NULL, updated_at = ? WHERE id = ?`),
		string(status), errMsg, nextAttemptAt.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("fail notification failed: %w", err)
	}
	return nil
}

func (r *sqlRepo) RequeueStaleNotifications(ctx context.Context, staleBefore time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, r.q(
		`UPDATE notifications SET status = 'pending', locked_at = NULL, updated_at = ? WHERE status = 'sending' AND locked_at < ?`),
		time.Now().UTC(), staleBefore.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale notifications failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		slog.Info("Store.RequeueStaleNotifications", "requeued", n)
	}
	return int(n), nil
}

func (r *sqlRepo) PurgeExpiredNotifications(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, r.q(
		`DELETE FROM notifications WHERE expires_at IS NOT NULL AND expires_at <= ?`), now.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge expired notifications failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *sqlRepo) ListNotifications(ctx context.Context, phone string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, r.q(
		`SELECT `+notificationColumns+` FROM notifications WHERE phone_number = ? ORDER BY created_at DESC LIMIT ?`),
		phone, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications failed: %w", err)
	}
	defer rows.Close()
	var out []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notifications iteration failed: %w", err)
	}
	return out, nil
}

func (r *sqlRepo) CountUnreadNotifications(ctx context.Context, phone string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, r.q(
		`SELECT COUNT(*) FROM notifications WHERE phone_number = ? AND is_read = ?`), phone, false,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications failed: %w", err)
	}
	return n, nil
}

func (r *sqlRepo) MarkNotificationRead(ctx context.Context, id string, readAt time.Time) error {
	res, err := r.db.ExecContext(ctx, r.q(
		`UPDATE notifications SET is_read = ?, read_at = ?, updated_at = ? WHERE id = ?`),
		true, readAt.UTC(), readAt.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark notification read failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("notification %s: %w", id, models.ErrNotFound)
	}
	return nil
}
