// Package repotest is a conformance suite run against every repository.Store
// implementation, so the sqlite and jsonfile backends behave identically.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/birthday-reminder/internal/apperror"
	"github.com/sakif/birthday-reminder/internal/model"
	"github.com/sakif/birthday-reminder/internal/repository"
)

// Factory returns a fresh, empty store. Cleanup is the factory's job.
type Factory func(t *testing.T) repository.Store

// NewAccount builds a valid account for tests.
func NewAccount(username string, month, day int) *model.Account {
	return &model.Account{
		Username:     username,
		PasswordHash: "$2a$04$fakehashfakehashfakehashfakehashfakehashfakehashfakeh",
		Birthday:     model.Birthday{Month: month, Day: day},
		ReminderDays: model.DefaultReminderDays,
	}
}

// Create is a helper that creates an account and fails the test on error.
func Create(t *testing.T, s repository.Store, username string, month, day int) *model.Account {
	t.Helper()
	a := NewAccount(username, month, day)
	require.NoError(t, s.Create(context.Background(), a), "creating %s", username)
	return a
}

// Run executes the whole suite.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("CreateDuplicate", func(t *testing.T) { testCreateDuplicate(t, newStore(t)) })
	t.Run("GetNotFound", func(t *testing.T) { testGetNotFound(t, newStore(t)) })
	t.Run("List", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("UpdateNotFound", func(t *testing.T) { testUpdateNotFound(t, newStore(t)) })
	t.Run("Subscriptions", func(t *testing.T) { testSubscriptions(t, newStore(t)) })
	t.Run("SubscriptionUnknownSubscriber", func(t *testing.T) { testSubscriptionUnknownSubscriber(t, newStore(t)) })
	t.Run("ConcurrentSubscribe", func(t *testing.T) { testConcurrentSubscribe(t, newStore(t)) })
	t.Run("ConcurrentSubscribers", func(t *testing.T) { testConcurrentSubscribers(t, newStore(t)) })
	t.Run("MarkSent", func(t *testing.T) { testMarkSent(t, newStore(t)) })
	t.Run("MarkSentPerChannel", func(t *testing.T) { testMarkSentPerChannel(t, newStore(t)) })
	t.Run("PruneBefore", func(t *testing.T) { testPruneBefore(t, newStore(t)) })
}

func testCreateAndGet(t *testing.T, s repository.Store) {
	ctx := context.Background()
	a := NewAccount("alice", 6, 1)
	a.Email = "alice@example.com"
	a.ReminderDays = 3

	require.NoError(t, s.Create(ctx, a))
	assert.False(t, a.CreatedAt.IsZero(), "Create() should set CreatedAt")

	got, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, a.PasswordHash, got.PasswordHash)
	assert.Equal(t, model.Birthday{Month: 6, Day: 1}, got.Birthday)
	assert.Equal(t, 3, got.ReminderDays)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Empty(t, got.Subscriptions)
	assert.NotNil(t, got.Subscriptions, "Subscriptions should be an empty list, not nil")
}

func testCreateDuplicate(t *testing.T, s repository.Store) {
	ctx := context.Background()
	original := Create(t, s, "alice", 6, 1)

	dup := NewAccount("alice", 1, 1)
	dup.PasswordHash = "other"
	err := s.Create(ctx, dup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrConflict), "got %v", err)

	got, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, original.PasswordHash, got.PasswordHash, "duplicate create must not overwrite the password")
	assert.Equal(t, original.Birthday, got.Birthday, "duplicate create must not overwrite the birthday")
}

func testGetNotFound(t *testing.T, s repository.Store) {
	_, err := s.Get(context.Background(), "nobody")
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)
}

func testList(t *testing.T, s repository.Store) {
	ctx := context.Background()
	Create(t, s, "carol", 3, 3)
	Create(t, s, "alice", 1, 1)
	Create(t, s, "bob", 2, 2)
	_, err := s.AddSubscription(ctx, "alice", "bob")
	require.NoError(t, err)

	accounts, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 3)

	names := []string{accounts[0].Username, accounts[1].Username, accounts[2].Username}
	assert.Equal(t, []string{"alice", "bob", "carol"}, names)
	assert.Equal(t, []string{"bob"}, accounts[0].Subscriptions)
	assert.Empty(t, accounts[1].Subscriptions)
}

func testUpdate(t *testing.T, s repository.Store) {
	ctx := context.Background()
	a := Create(t, s, "alice", 6, 1)

	a.City = "Berlin"
	a.Birthday = model.Birthday{Month: 7, Day: 4}
	require.NoError(t, s.Update(ctx, a))

	got, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Berlin", got.City)
	assert.Equal(t, model.Birthday{Month: 7, Day: 4}, got.Birthday)
	assert.Equal(t, a.PasswordHash, got.PasswordHash)
}

func testUpdateNotFound(t *testing.T, s repository.Store) {
	err := s.Update(context.Background(), NewAccount("ghost", 1, 1))
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)
}

func testSubscriptions(t *testing.T, s repository.Store) {
	ctx := context.Background()
	Create(t, s, "alice", 6, 1)
	Create(t, s, "bob", 7, 2)
	Create(t, s, "carol", 8, 3)

	added, err := s.AddSubscription(ctx, "alice", "carol")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.AddSubscription(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.AddSubscription(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, added, "second AddSubscription must report no change")

	got, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"carol", "bob"}, got.Subscriptions, "insertion order is kept and no duplicates")

	_, err = s.AddSubscription(ctx, "carol", "bob")
	require.NoError(t, err)
	subs, err := s.Subscribers(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carol"}, subs)

	removed, err := s.RemoveSubscription(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.RemoveSubscription(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, removed)

	got, err = s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, got.Subscriptions)
}

func testSubscriptionUnknownSubscriber(t *testing.T, s repository.Store) {
	ctx := context.Background()
	Create(t, s, "bob", 7, 2)

	_, err := s.AddSubscription(ctx, "ghost", "bob")
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "AddSubscription: got %v", err)

	_, err = s.RemoveSubscription(ctx, "ghost", "bob")
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "RemoveSubscription: got %v", err)
}

// testConcurrentSubscribe checks that parallel subscriptions for the same
// account are all kept.
func testConcurrentSubscribe(t *testing.T, s repository.Store) {
	ctx := context.Background()
	Create(t, s, "alice", 6, 1)

	const n = 20
	for i := 0; i < n; i++ {
		Create(t, s, fmt.Sprintf("friend%02d", i), 1+i%12, 1+i)
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.AddSubscription(ctx, "alice", fmt.Sprintf("friend%02d", i)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("AddSubscription() error = %v", err)
	}

	got, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, got.Subscriptions, n)
}

// testConcurrentSubscribers has many accounts write at once, each
// subscribing to the same target. Every write must succeed.
func testConcurrentSubscribers(t *testing.T, s repository.Store) {
	ctx := context.Background()
	Create(t, s, "target", 6, 1)

	const n = 16
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("fan%02d", i)
		Create(t, s, names[i], 1+i%12, 1+i)
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if _, err := s.AddSubscription(ctx, name, "target"); err != nil {
				errs <- err
			}
		}(name)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("AddSubscription() error = %v", err)
	}

	subs, err := s.Subscribers(ctx, "target")
	require.NoError(t, err)
	assert.Equal(t, names, subs)
}

func testMarkSent(t *testing.T, s repository.Store) {
	ctx := context.Background()
	key := model.NotificationKey{
		Kind:      model.KindCongratulation,
		Subject:   "alice",
		Recipient: "bob",
		Date:      "2024-06-01",
	}

	first, err := s.MarkSent(ctx, key)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := s.MarkSent(ctx, key)
	require.NoError(t, err)
	assert.False(t, again)

	other := key
	other.Date = "2025-06-01"
	next, err := s.MarkSent(ctx, other)
	require.NoError(t, err)
	assert.True(t, next, "a different date is a different notification")

	require.NoError(t, s.Forget(ctx, key))
	retry, err := s.MarkSent(ctx, key)
	require.NoError(t, err)
	assert.True(t, retry, "MarkSent after Forget reports first delivery again")
}

func testMarkSentPerChannel(t *testing.T, s repository.Store) {
	ctx := context.Background()
	console := model.NotificationKey{
		Kind:      model.KindReminder,
		Subject:   "alice",
		Recipient: "alice",
		Date:      "2024-06-01",
		Channel:   "console",
	}
	email := console
	email.Channel = "email"

	first, err := s.MarkSent(ctx, console)
	require.NoError(t, err)
	require.True(t, first)

	first, err = s.MarkSent(ctx, email)
	require.NoError(t, err)
	assert.True(t, first, "another channel is tracked separately")

	require.NoError(t, s.Forget(ctx, email))
	again, err := s.MarkSent(ctx, console)
	require.NoError(t, err)
	assert.False(t, again, "forgetting one channel keeps the other")
}

func testPruneBefore(t *testing.T, s repository.Store) {
	ctx := context.Background()
	key := func(date string) model.NotificationKey {
		return model.NotificationKey{
			Kind:      model.KindCongratulation,
			Subject:   "alice",
			Recipient: "bob",
			Date:      date,
			Channel:   "console",
		}
	}
	for _, date := range []string{"2024-05-30", "2024-05-31", "2024-06-01", "2024-06-02"} {
		_, err := s.MarkSent(ctx, key(date))
		require.NoError(t, err)
	}

	removed, err := s.PruneBefore(ctx, "2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	removed, err = s.PruneBefore(ctx, "2024-06-01")
	require.NoError(t, err)
	assert.Zero(t, removed, "nothing left to prune")

	for date, wantFirst := range map[string]bool{
		"2024-05-31": true,
		"2024-06-01": false,
		"2024-06-02": false,
	} {
		first, err := s.MarkSent(ctx, key(date))
		require.NoError(t, err)
		assert.Equal(t, wantFirst, first, "MarkSent(%s) after prune", date)
	}
}
