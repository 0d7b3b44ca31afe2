// Package sweep finds the birthdays and reminders due on a given day and
// hands them to a notifier.
//
// Sweeper.Run is one pass over every account. Scheduler repeats it on an
// interval until its context is cancelled. Every notice is recorded in a
// repository.NotificationLog per delivery channel before it is delivered, so
// sweeping the same day twice delivers nothing new, and a channel that failed
// is retried without repeating the channels that succeeded.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/birthday-reminder/internal/birthday"
	"github.com/sakif/birthday-reminder/internal/metrics"
	"github.com/sakif/birthday-reminder/internal/model"
	"github.com/sakif/birthday-reminder/internal/notify"
	"github.com/sakif/birthday-reminder/internal/repository"
)

// Report counts what one sweep did.
type Report struct {
	Congratulations int // delivered congratulation notices
	Reminders       int // delivered reminder notices
	Skipped         int // already delivered earlier on every channel
	Failed          int // at least one channel failed; retried next sweep
}

// Sweeper runs a single notification pass.
type Sweeper struct {
	accounts repository.AccountRepository
	sent     repository.NotificationLog
	channels []notify.Channel
	logger   *slog.Logger
}

// NewSweeper creates a Sweeper.
func NewSweeper(
	accounts repository.AccountRepository,
	sent repository.NotificationLog,
	notifier notify.Notifier,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		accounts: accounts,
		sent:     sent,
		channels: notify.Channels(notifier),
		logger:   logger,
	}
}

// Run sweeps every account for the calendar day of today (in today's
// location).
//
// Congratulations go to each subscriber of an account whose birthday is
// today. A reminder goes to each account whose next birthday is exactly
// ReminderDays away; ReminderDays of 0 turns reminders off.
//
// Delivery failures don't stop the pass: they are counted in Report.Failed
// and returned joined. Storage failures abort the pass.
func (s *Sweeper) Run(ctx context.Context, today time.Time) (Report, error) {
	var report Report
	day := birthday.Date(today)

	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return report, fmt.Errorf("sweep: listing accounts: %w", err)
	}

	emails := make(map[string]string, len(accounts))
	for _, a := range accounts {
		emails[a.Username] = a.Email
	}

	var failures []error
	deliver := func(n model.Notification) error {
		n.ID = xid.New().String()
		n.Date = day
		n.RecipientEmail = emails[n.Recipient]

		err := s.deliver(ctx, n, &report)
		if err != nil && !errors.Is(err, errDelivery) {
			return err
		}
		if err != nil {
			failures = append(failures, err)
		}
		return nil
	}

	for _, a := range accounts {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !birthday.OccursOn(a.Birthday, day) {
			continue
		}

		subscribers, err := s.accounts.Subscribers(ctx, a.Username)
		if err != nil {
			return report, fmt.Errorf("sweep: listing subscribers of %s: %w", a.Username, err)
		}
		for _, sub := range subscribers {
			if err := deliver(model.Notification{
				Kind:      model.KindCongratulation,
				Subject:   a.Username,
				Recipient: sub,
			}); err != nil {
				return report, err
			}
		}
	}

	for _, a := range accounts {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		lead := a.ReminderDays
		if lead <= 0 || birthday.DaysUntil(a.Birthday, day) != lead {
			continue
		}
		if err := deliver(model.Notification{
			Kind:      model.KindReminder,
			Subject:   a.Username,
			Recipient: a.Username,
			LeadDays:  lead,
		}); err != nil {
			return report, err
		}
	}

	s.logger.Info("sweep finished",
		slog.String("date", day.Format(model.DateLayout)),
		slog.Int("accounts", len(accounts)),
		slog.Int("congratulations", report.Congratulations),
		slog.Int("reminders", report.Reminders),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
	)
	return report, errors.Join(failures...)
}

// Prune drops log entries for days before today. Those days are never swept
// again, so their entries only grow the log.
func (s *Sweeper) Prune(ctx context.Context, today time.Time) (int, error) {
	cutoff := birthday.Date(today).Format(model.DateLayout)
	removed, err := s.sent.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep: pruning log before %s: %w", cutoff, err)
	}
	if removed > 0 {
		s.logger.Info("pruned notification log",
			slog.String("before", cutoff),
			slog.Int("removed", removed),
		)
	}
	return removed, nil
}

var errDelivery = errors.New("delivery failed")

// deliver hands n to every channel that hasn't had it yet. Each channel is
// claimed in the log first and forgotten again if it fails, so the next
// sweep retries that channel alone.
func (s *Sweeper) deliver(ctx context.Context, n model.Notification, report *Report) error {
	kind := string(n.Kind)
	var delivered int
	var errs []error

	for _, ch := range s.channels {
		key := n.Key(ch.Name)

		first, err := s.sent.MarkSent(ctx, key)
		if err != nil {
			return fmt.Errorf("sweep: recording %s: %w", key, err)
		}
		if !first {
			continue
		}

		if err := ch.Notifier.Notify(ctx, n); err != nil {
			s.logger.Error("notification failed",
				slog.String("kind", kind),
				slog.String("channel", ch.Name),
				slog.String("subject", n.Subject),
				slog.String("recipient", n.Recipient),
				slog.String("error", err.Error()),
			)
			if ferr := s.sent.Forget(ctx, key); ferr != nil {
				s.logger.Error("failed to forget notification",
					slog.String("key", key.String()),
					slog.String("error", ferr.Error()),
				)
			}
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name, err))
			continue
		}
		delivered++
	}

	switch {
	case len(errs) > 0:
		report.Failed++
		metrics.NotificationFailuresTotal.WithLabelValues(kind).Inc()
		return fmt.Errorf("%w: %s %s to %s: %w", errDelivery, kind, n.Subject, n.Recipient, errors.Join(errs...))
	case delivered > 0:
		switch n.Kind {
		case model.KindCongratulation:
			report.Congratulations++
		case model.KindReminder:
			report.Reminders++
		}
		metrics.NotificationsSentTotal.WithLabelValues(kind).Inc()
	default:
		report.Skipped++
		metrics.NotificationsSkippedTotal.WithLabelValues(kind).Inc()
	}
	return nil
}
