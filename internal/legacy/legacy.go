// Package legacy imports the old plaintext birthday database.
//
// The old format is a single JSON object keyed by username:
//
//	{
//	  "alice": {
//	    "password": "plaintext",
//	    "birthday": {"month": 6, "day": 1},
//	    "subscriptions": ["bob"],
//	    "reminder_days": "3",
//	    "city": "Berlin"
//	  }
//	}
//
// Passwords are hashed on the way in, birthdays are validated, and
// subscriptions pointing at unknown users are dropped. Accounts that already
// exist in the target store are left alone.
package legacy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/sakif/birthday-reminder/internal/apperror"
	"github.com/sakif/birthday-reminder/internal/auth"
	"github.com/sakif/birthday-reminder/internal/birthday"
	"github.com/sakif/birthday-reminder/internal/model"
	"github.com/sakif/birthday-reminder/internal/repository"
)

const maxReminderDays = 365

// record is one user in the old database. Unknown keys are ignored.
type record struct {
	Password      string          `json:"password"`
	Birthday      *model.Birthday `json:"birthday"`
	Subscriptions []string        `json:"subscriptions"`
	ReminderDays  json.RawMessage `json:"reminder_days"`
	Email         string          `json:"email"`
	DisplayName   string          `json:"display_name"`
	City          string          `json:"city"`
}

// Report summarises an import.
type Report struct {
	Imported             []string          // created accounts
	Existing             []string          // already in the store, left untouched
	Invalid              map[string]string // username → reason it was rejected
	DroppedSubscriptions int               // targets that don't exist
}

// Importer copies legacy records into an AccountRepository.
type Importer struct {
	accounts  repository.AccountRepository
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewImporter(accounts repository.AccountRepository, passwords *auth.PasswordService, logger *slog.Logger) *Importer {
	return &Importer{accounts: accounts, passwords: passwords, logger: logger}
}

// Import reads a legacy database from r. A malformed document fails the
// whole import; a malformed record only rejects that record.
func (im *Importer) Import(ctx context.Context, r io.Reader) (*Report, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("legacy: decoding database: %w", err)
	}

	report := &Report{Invalid: make(map[string]string)}

	usernames := make([]string, 0, len(raw))
	for name := range raw {
		usernames = append(usernames, name)
	}
	sort.Strings(usernames)

	existing, err := im.accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("legacy: listing existing accounts: %w", err)
	}
	known := make(map[string]bool, len(existing)+len(raw))
	for _, a := range existing {
		known[a.Username] = true
	}

	// Pass 1: create accounts. Subscriptions wait until every target exists.
	pending := make(map[string][]string)
	for _, name := range usernames {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if known[name] {
			report.Existing = append(report.Existing, name)
			continue
		}

		account, subs, err := im.convert(name, raw[name])
		if err != nil {
			report.Invalid[name] = err.Error()
			im.logger.Warn("skipping legacy record",
				slog.String("username", name),
				slog.String("reason", err.Error()),
			)
			continue
		}

		if err := im.accounts.Create(ctx, account); err != nil {
			if errors.Is(err, apperror.ErrConflict) {
				report.Existing = append(report.Existing, name)
				continue
			}
			return report, fmt.Errorf("legacy: creating %s: %w", name, err)
		}
		known[name] = true
		pending[name] = subs
		report.Imported = append(report.Imported, name)
	}

	// Pass 2: subscriptions, in the order the legacy list had them.
	for _, name := range report.Imported {
		for _, target := range pending[name] {
			if !known[target] || target == name {
				report.DroppedSubscriptions++
				continue
			}
			if _, err := im.accounts.AddSubscription(ctx, name, target); err != nil {
				return report, fmt.Errorf("legacy: subscribing %s to %s: %w", name, target, err)
			}
		}
	}

	im.logger.Info("legacy import finished",
		slog.Int("imported", len(report.Imported)),
		slog.Int("existing", len(report.Existing)),
		slog.Int("invalid", len(report.Invalid)),
		slog.Int("dropped_subscriptions", report.DroppedSubscriptions),
	)
	return report, nil
}

func (im *Importer) convert(name string, raw json.RawMessage) (*model.Account, []string, error) {
	if name == "" || strings.ContainsFunc(name, unicode.IsSpace) || strings.Contains(name, "/") {
		return nil, nil, errors.New("username must be non-empty without spaces or slashes")
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, nil, fmt.Errorf("malformed record: %w", err)
	}

	if rec.Password == "" {
		return nil, nil, errors.New("password is missing")
	}
	if rec.Birthday == nil {
		return nil, nil, errors.New("birthday is missing")
	}
	if err := birthday.Validate(*rec.Birthday); err != nil {
		return nil, nil, err
	}

	reminder, err := parseReminderDays(rec.ReminderDays)
	if err != nil {
		return nil, nil, err
	}

	hash, err := im.passwords.Hash(rec.Password)
	if err != nil {
		return nil, nil, err
	}

	var subs []string
	seen := make(map[string]bool)
	for _, s := range rec.Subscriptions {
		if !seen[s] {
			seen[s] = true
			subs = append(subs, s)
		}
	}

	return &model.Account{
		Username:     name,
		PasswordHash: hash,
		Birthday:     *rec.Birthday,
		ReminderDays: reminder,
		Email:        strings.TrimSpace(rec.Email),
		DisplayName:  strings.TrimSpace(rec.DisplayName),
		City:         strings.TrimSpace(rec.City),
	}, subs, nil
}

// parseReminderDays accepts a JSON number or a numeric string; absent or
// null means the default.
func parseReminderDays(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return model.DefaultReminderDays, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		raw = json.RawMessage(strings.TrimSpace(text))
	}

	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("reminder_days %s is not an integer", raw)
	}
	if n < 0 || n > maxReminderDays {
		return 0, fmt.Errorf("reminder_days must be between 0 and %d", maxReminderDays)
	}
	return n, nil
}
