package sqlite

import (
	"context"
	"fmt"

	"github.com/sakif/birthday-reminder/internal/model"
)

// MarkSent records key in sent_notifications. INSERT OR IGNORE makes the
// check-and-set a single statement, so two overlapping sweeps can't both win.
func (db *DB) MarkSent(ctx context.Context, key model.NotificationKey) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO sent_notifications (kind, subject, recipient, date, channel)
		 VALUES (?, ?, ?, ?, ?)`,
		string(key.Kind), key.Subject, key.Recipient, key.Date, key.Channel,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: marking %s sent: %w", key, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n == 1, nil
}

// Forget deletes key so a later sweep can retry it.
func (db *DB) Forget(ctx context.Context, key model.NotificationKey) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM sent_notifications
		 WHERE kind = ? AND subject = ? AND recipient = ? AND date = ? AND channel = ?`,
		string(key.Kind), key.Subject, key.Recipient, key.Date, key.Channel,
	)
	if err != nil {
		return fmt.Errorf("sqlite: forgetting %s: %w", key, err)
	}
	return nil
}

// PruneBefore deletes entries dated before date. Dates are stored as
// YYYY-MM-DD, so text order is calendar order.
func (db *DB) PruneBefore(ctx context.Context, date string) (int, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM sent_notifications WHERE date < ?`, date)
	if err != nil {
		return 0, fmt.Errorf("sqlite: pruning notifications before %s: %w", date, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return int(n), nil
}
