// Package notify delivers sweep notifications.
//
// A Notifier gets one model.Notification at a time. Console writes a line per
// notice, Email sends it through SendGrid, and Multi fans out to several
// notifiers at once. Channels splits a notifier into named delivery channels
// so callers can track each one separately.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/sakif/birthday-reminder/internal/model"
)

// Notifier delivers a single notification.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// Func adapts a plain function to the Notifier interface.
type Func func(ctx context.Context, n model.Notification) error

func (f Func) Notify(ctx context.Context, n model.Notification) error { return f(ctx, n) }

// Multi delivers to every notifier, even after one fails, and joins the errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n model.Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Named is implemented by notifiers with a stable channel name.
type Named interface {
	Name() string
}

// Channel is one named delivery route.
type Channel struct {
	Name     string
	Notifier Notifier
}

type named struct {
	Notifier
	name string
}

func (n named) Name() string { return n.name }

// As gives n the channel name name.
func As(name string, n Notifier) Notifier {
	return named{Notifier: n, name: name}
}

// Channels flattens n into its delivery channels. Members of a Multi
// (nested ones included) become separate channels; anything else is a single
// channel. Notifiers that don't implement Named are called "default", or
// "channel-<i>" inside a Multi. Repeated names get a numeric suffix.
func Channels(n Notifier) []Channel {
	var out []Channel
	seen := make(map[string]int)
	add := func(name string, n Notifier) {
		seen[name]++
		if c := seen[name]; c > 1 {
			name += "-" + strconv.Itoa(c)
		}
		out = append(out, Channel{Name: name, Notifier: n})
	}

	var walk func(n Notifier, index int)
	walk = func(n Notifier, index int) {
		if m, ok := n.(Multi); ok {
			for i, member := range m {
				walk(member, i)
			}
			return
		}
		if nm, ok := n.(Named); ok {
			add(nm.Name(), n)
			return
		}
		if index < 0 {
			add("default", n)
			return
		}
		add("channel-"+strconv.Itoa(index), n)
	}
	walk(n, -1)
	return out
}

// Text renders n as a single human-readable sentence.
func Text(n model.Notification) string {
	switch n.Kind {
	case model.KindCongratulation:
		return fmt.Sprintf("Sending congratulations to %s: today is %s's birthday", n.Recipient, n.Subject)
	case model.KindReminder:
		if n.LeadDays == 1 {
			return fmt.Sprintf("Reminder for %s: %s's birthday is tomorrow", n.Recipient, n.Subject)
		}
		return fmt.Sprintf("Reminder for %s: %s's birthday is in %d days", n.Recipient, n.Subject, n.LeadDays)
	default:
		return fmt.Sprintf("%s notification for %s about %s", n.Kind, n.Recipient, n.Subject)
	}
}
