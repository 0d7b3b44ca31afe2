package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/birthday-reminder/internal/apperror"
	"github.com/sakif/birthday-reminder/internal/model"
)

const accountColumns = `username, password_hash, birth_month, birth_day, reminder_days,
	email, display_name, city, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.Username,
		&a.PasswordHash,
		&a.Birthday.Month,
		&a.Birthday.Day,
		&a.ReminderDays,
		&a.Email,
		&a.DisplayName,
		&a.City,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Subscriptions = []string{}
	return &a, nil
}

// Create inserts a new account together with any subscriptions it already
// carries (the legacy importer creates accounts that way).
func (db *DB) Create(ctx context.Context, account *model.Account) error {
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	if account.Subscriptions == nil {
		account.Subscriptions = []string{}
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning create tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.Username,
		account.PasswordHash,
		account.Birthday.Month,
		account.Birthday.Day,
		account.ReminderDays,
		account.Email,
		account.DisplayName,
		account.City,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("account", account.Username)
		}
		return fmt.Errorf("sqlite: inserting account %s: %w", account.Username, err)
	}

	for _, target := range account.Subscriptions {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO subscriptions (subscriber, target) VALUES (?, ?)`,
			account.Username, target,
		); err != nil {
			return fmt.Errorf("sqlite: inserting subscription %s -> %s: %w", account.Username, target, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing account %s: %w", account.Username, err)
	}
	return nil
}

// Get retrieves an account and its subscriptions by username.
// Returns apperror.ErrNotFound if no account exists.
func (db *DB) Get(ctx context.Context, username string) (*model.Account, error) {
	account, err := scanAccount(db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = ?`,
		username,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("account", username)
		}
		return nil, fmt.Errorf("sqlite: getting account %s: %w", username, err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT target FROM subscriptions WHERE subscriber = ? ORDER BY id`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing subscriptions of %s: %w", username, err)
	}
	defer rows.Close()

	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, fmt.Errorf("sqlite: scanning subscription row: %w", err)
		}
		account.Subscriptions = append(account.Subscriptions, target)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating subscriptions: %w", err)
	}

	return account, nil
}

// List returns every account ordered by username, subscriptions included.
// Two queries (accounts, then all subscriptions) instead of one per account.
func (db *DB) List(ctx context.Context) ([]model.Account, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY username`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	index := make(map[string]int)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning account row: %w", err)
		}
		index[a.Username] = len(accounts)
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating accounts: %w", err)
	}

	subs, err := db.conn.QueryContext(ctx,
		`SELECT subscriber, target FROM subscriptions ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing subscriptions: %w", err)
	}
	defer subs.Close()

	for subs.Next() {
		var subscriber, target string
		if err := subs.Scan(&subscriber, &target); err != nil {
			return nil, fmt.Errorf("sqlite: scanning subscription row: %w", err)
		}
		if i, ok := index[subscriber]; ok {
			accounts[i].Subscriptions = append(accounts[i].Subscriptions, target)
		}
	}
	if err := subs.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating subscriptions: %w", err)
	}

	return accounts, nil
}

// Update writes the account's profile and credential columns.
// Subscriptions are managed by AddSubscription/RemoveSubscription only.
func (db *DB) Update(ctx context.Context, account *model.Account) error {
	account.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE accounts
		 SET password_hash = ?, birth_month = ?, birth_day = ?, reminder_days = ?,
		     email = ?, display_name = ?, city = ?, updated_at = ?
		 WHERE username = ?`,
		account.PasswordHash,
		account.Birthday.Month,
		account.Birthday.Day,
		account.ReminderDays,
		account.Email,
		account.DisplayName,
		account.City,
		account.UpdatedAt,
		account.Username,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating account %s: %w", account.Username, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("account", account.Username)
	}
	return nil
}

// AddSubscription inserts (subscriber, target) unless it already exists.
func (db *DB) AddSubscription(ctx context.Context, subscriber, target string) (bool, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("sqlite: beginning subscribe tx: %w", err)
	}
	defer tx.Rollback()

	if err := requireAccount(ctx, tx, subscriber); err != nil {
		return false, err
	}

	result, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO subscriptions (subscriber, target) VALUES (?, ?)`,
		subscriber, target,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: subscribing %s to %s: %w", subscriber, target, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("sqlite: committing subscription: %w", err)
	}
	return n == 1, nil
}

// RemoveSubscription deletes (subscriber, target) if present.
func (db *DB) RemoveSubscription(ctx context.Context, subscriber, target string) (bool, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("sqlite: beginning unsubscribe tx: %w", err)
	}
	defer tx.Rollback()

	if err := requireAccount(ctx, tx, subscriber); err != nil {
		return false, err
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE subscriber = ? AND target = ?`,
		subscriber, target,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: unsubscribing %s from %s: %w", subscriber, target, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("sqlite: committing unsubscription: %w", err)
	}
	return n == 1, nil
}

// Subscribers returns who is subscribed to target, ordered by username.
func (db *DB) Subscribers(ctx context.Context, target string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT subscriber FROM subscriptions WHERE target = ? ORDER BY subscriber`,
		target,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing subscribers of %s: %w", target, err)
	}
	defer rows.Close()

	subscribers := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("sqlite: scanning subscriber row: %w", err)
		}
		subscribers = append(subscribers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating subscribers: %w", err)
	}
	return subscribers, nil
}

func requireAccount(ctx context.Context, tx *sql.Tx, username string) error {
	var exists int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM accounts WHERE username = ?`, username,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound("account", username)
	}
	if err != nil {
		return fmt.Errorf("sqlite: checking account %s: %w", username, err)
	}
	return nil
}
