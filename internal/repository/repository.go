// Package repository declares the storage interfaces the service layer
// depends on. Implementations live in sub-packages (sqlite, jsonfile) and are
// chosen in the composition root.
package repository

import (
	"context"

	"github.com/sakif/birthday-reminder/internal/model"
)

// AccountRepository stores accounts and their subscription lists.
//
// Implementations must make AddSubscription and RemoveSubscription atomic
// with respect to each other so concurrent requests can't lose updates.
type AccountRepository interface {
	// Create inserts a new account. Returns apperror.ErrConflict if the
	// username is taken.
	Create(ctx context.Context, account *model.Account) error
	// Get returns apperror.ErrNotFound if no account has this username.
	Get(ctx context.Context, username string) (*model.Account, error)
	// List returns every account ordered by username.
	List(ctx context.Context) ([]model.Account, error)
	// Update replaces the profile fields (not subscriptions) of an existing account.
	Update(ctx context.Context, account *model.Account) error
	// AddSubscription appends target to subscriber's list. It reports false
	// when target was already present.
	AddSubscription(ctx context.Context, subscriber, target string) (bool, error)
	// RemoveSubscription reports false when target was not subscribed.
	RemoveSubscription(ctx context.Context, subscriber, target string) (bool, error)
	// Subscribers returns the usernames subscribed to target, ordered by username.
	Subscribers(ctx context.Context, target string) ([]string, error)
}

// NotificationLog remembers which notifications were already delivered.
type NotificationLog interface {
	// MarkSent records key and reports true only the first time it is seen.
	MarkSent(ctx context.Context, key model.NotificationKey) (bool, error)
	// Forget removes key, used when delivery fails after MarkSent.
	Forget(ctx context.Context, key model.NotificationKey) error
	// PruneBefore drops every entry dated before date (DateLayout) and
	// returns how many were removed.
	PruneBefore(ctx context.Context, date string) (int, error)
}

// Store is the full persistence surface a backend provides.
type Store interface {
	AccountRepository
	NotificationLog
	Close() error
}
