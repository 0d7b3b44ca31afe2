package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/birthday-reminder/internal/apperror"
)

func newTestSubscriptionService(t *testing.T, usernames ...string) (*SubscriptionService, *fakeAccountRepo) {
	t.Helper()
	repo := newFakeAccountRepo()
	accounts := newTestAccountService(t, repo, false)
	for i, name := range usernames {
		register(t, accounts, name, 1+i%12, 1+i)
	}
	return NewSubscriptionService(repo, discardLogger()), repo
}

func subscriptionsOf(t *testing.T, repo *fakeAccountRepo, username string) []string {
	t.Helper()
	a, err := repo.Get(context.Background(), username)
	require.NoError(t, err)
	return a.Subscriptions
}

func TestSubscribe_Idempotent(t *testing.T) {
	svc, repo := newTestSubscriptionService(t, "alice", "bob")
	ctx := context.Background()

	require.NoError(t, svc.Subscribe(ctx, "alice", "bob"))

	err := svc.Subscribe(ctx, "alice", "bob")
	assert.True(t, errors.Is(err, apperror.ErrValidation), "second subscribe: got %v", err)
	assert.Equal(t, []string{"bob"}, subscriptionsOf(t, repo, "alice"), "no duplicate entry")
}

func TestSubscribe_Errors(t *testing.T) {
	tests := []struct {
		name       string
		subscriber string
		target     string
		want       error
	}{
		{"unknown subscriber", "ghost", "bob", apperror.ErrNotFound},
		{"unknown target", "alice", "ghost", apperror.ErrValidation},
		{"self", "alice", "alice", apperror.ErrValidation},
		{"empty target", "alice", "", apperror.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestSubscriptionService(t, "alice", "bob")

			err := svc.Subscribe(context.Background(), tt.subscriber, tt.target)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
			assert.Empty(t, subscriptionsOf(t, repo, "alice"))
		})
	}
}

func TestUnsubscribe_NeverSubscribed(t *testing.T) {
	svc, repo := newTestSubscriptionService(t, "alice", "bob", "carol")
	ctx := context.Background()
	require.NoError(t, svc.Subscribe(ctx, "alice", "carol"))

	err := svc.Unsubscribe(ctx, "alice", "bob")
	assert.True(t, errors.Is(err, apperror.ErrValidation), "got %v", err)
	assert.Equal(t, []string{"carol"}, subscriptionsOf(t, repo, "alice"), "record unchanged")
}

func TestUnsubscribe_UnknownSubscriber(t *testing.T) {
	svc, _ := newTestSubscriptionService(t, "bob")

	err := svc.Unsubscribe(context.Background(), "ghost", "bob")
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)
}

func TestSubscribeThenUnsubscribe_RestoresList(t *testing.T) {
	svc, repo := newTestSubscriptionService(t, "alice", "bob", "carol", "dave")
	ctx := context.Background()
	require.NoError(t, svc.Subscribe(ctx, "alice", "carol"))
	require.NoError(t, svc.Subscribe(ctx, "alice", "dave"))
	before := subscriptionsOf(t, repo, "alice")

	require.NoError(t, svc.Subscribe(ctx, "alice", "bob"))
	require.NoError(t, svc.Unsubscribe(ctx, "alice", "bob"))

	after := subscriptionsOf(t, repo, "alice")
	assert.NotContains(t, after, "bob")
	assert.Equal(t, before, after)
}
