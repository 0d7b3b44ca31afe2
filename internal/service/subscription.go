package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/birthday-reminder/internal/apperror"
	"github.com/sakif/birthday-reminder/internal/repository"
)

// SubscriptionService manages who gets notified about whose birthday.
//
// A subscription (subscriber, target) means "tell subscriber when target's
// birthday comes". Both accounts must exist and they must differ.
type SubscriptionService struct {
	accounts repository.AccountRepository
	logger   *slog.Logger
}

// NewSubscriptionService creates a SubscriptionService.
func NewSubscriptionService(accounts repository.AccountRepository, logger *slog.Logger) *SubscriptionService {
	return &SubscriptionService{accounts: accounts, logger: logger}
}

// Subscribe adds target to subscriber's list.
//
// Errors:
//   - apperror.ErrNotFound if the subscriber does not exist
//   - apperror.ErrValidation if the target does not exist, equals the
//     subscriber, or is already subscribed (the list is left unchanged)
func (s *SubscriptionService) Subscribe(ctx context.Context, subscriber, target string) error {
	subscriber, target = strings.TrimSpace(subscriber), strings.TrimSpace(target)
	if err := s.check(ctx, subscriber, target); err != nil {
		return err
	}

	added, err := s.accounts.AddSubscription(ctx, subscriber, target)
	if err != nil {
		return err
	}
	if !added {
		return apperror.ValidationFailed("target",
			fmt.Sprintf("%s is already subscribed to %s", subscriber, target))
	}

	s.logger.Info("subscribed",
		slog.String("subscriber", subscriber),
		slog.String("target", target),
	)
	return nil
}

// Unsubscribe removes target from subscriber's list. It fails with
// apperror.ErrValidation when target is not currently subscribed.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, subscriber, target string) error {
	subscriber, target = strings.TrimSpace(subscriber), strings.TrimSpace(target)
	if subscriber == "" || target == "" {
		return apperror.ValidationFailed("target", "subscriber and target are required")
	}

	removed, err := s.accounts.RemoveSubscription(ctx, subscriber, target)
	if err != nil {
		return err
	}
	if !removed {
		return apperror.ValidationFailed("target",
			fmt.Sprintf("%s is not subscribed to %s", subscriber, target))
	}

	s.logger.Info("unsubscribed",
		slog.String("subscriber", subscriber),
		slog.String("target", target),
	)
	return nil
}

func (s *SubscriptionService) check(ctx context.Context, subscriber, target string) error {
	if subscriber == "" || target == "" {
		return apperror.ValidationFailed("target", "subscriber and target are required")
	}
	if subscriber == target {
		return apperror.ValidationFailed("target", "cannot subscribe to yourself")
	}

	if _, err := s.accounts.Get(ctx, subscriber); err != nil {
		return err
	}
	if _, err := s.accounts.Get(ctx, target); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.ValidationFailed("target", fmt.Sprintf("user %q does not exist", target))
		}
		return err
	}
	return nil
}
