// Package jsonfile implements repository.Store on a single JSON document.
//
// The whole document is kept in memory behind a sync.RWMutex and rewritten
// on every mutation by writing a temporary file in the same directory,
// fsyncing it and renaming it over the old one. A reader therefore sees
// either the old or the new document, never a truncated one. If the write
// fails, the in-memory change is undone and the error is returned.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/sakif/birthday-reminder/internal/apperror"
	"github.com/sakif/birthday-reminder/internal/model"
	"github.com/sakif/birthday-reminder/internal/repository"
)

var _ repository.Store = (*Store)(nil)

type record struct {
	PasswordHash  string         `json:"password_hash"`
	Birthday      model.Birthday `json:"birthday"`
	ReminderDays  int            `json:"reminder_days"`
	Subscriptions []string       `json:"subscriptions"`
	Email         string         `json:"email,omitempty"`
	DisplayName   string         `json:"display_name,omitempty"`
	City          string         `json:"city,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// sentEntry is one delivered notice, keyed by NotificationKey.String().
type sentEntry struct {
	Date   string    `json:"date"`
	SentAt time.Time `json:"sent_at"`
}

type document struct {
	Accounts map[string]*record   `json:"accounts"`
	Sent     map[string]sentEntry `json:"sent"`
}

// Store is a file-backed repository.Store.
type Store struct {
	mu   sync.RWMutex
	path string
	doc  document
}

// Open loads the document at path. A missing file is an empty store; the
// file is created on the first mutation.
func Open(path string) (*Store, error) {
	s := &Store{
		path: path,
		doc: document{
			Accounts: make(map[string]*record),
			Sent:     make(map[string]sentEntry),
		},
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jsonfile: reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("jsonfile: decoding %s: %w", path, err)
	}
	if s.doc.Accounts == nil {
		s.doc.Accounts = make(map[string]*record)
	}
	if s.doc.Sent == nil {
		s.doc.Sent = make(map[string]sentEntry)
	}
	return s, nil
}

// Close is a no-op: every mutation is already on disk.
func (s *Store) Close() error { return nil }

// persist writes the document atomically. Callers hold s.mu for writing.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("jsonfile: encoding document: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("jsonfile: creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("jsonfile: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("jsonfile: writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("jsonfile: syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("jsonfile: closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("jsonfile: replacing %s: %w", s.path, err)
	}
	return nil
}

// mutate applies change under the write lock and persists. If persisting
// fails, undo restores the previous in-memory state.
func (s *Store) mutate(change func() (undo func(), err error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	undo, err := change()
	if err != nil {
		return err
	}
	if undo == nil {
		return nil // nothing changed
	}
	if err := s.persist(); err != nil {
		undo()
		return err
	}
	return nil
}

func toAccount(username string, r *record) model.Account {
	subs := append([]string{}, r.Subscriptions...)
	return model.Account{
		Username:      username,
		PasswordHash:  r.PasswordHash,
		Birthday:      r.Birthday,
		ReminderDays:  r.ReminderDays,
		Subscriptions: subs,
		Email:         r.Email,
		DisplayName:   r.DisplayName,
		City:          r.City,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (s *Store) Create(_ context.Context, account *model.Account) error {
	return s.mutate(func() (func(), error) {
		if _, exists := s.doc.Accounts[account.Username]; exists {
			return nil, apperror.Conflict("account", account.Username)
		}

		now := time.Now().UTC()
		account.CreatedAt = now
		account.UpdatedAt = now
		if account.Subscriptions == nil {
			account.Subscriptions = []string{}
		}

		subs := []string{}
		for _, target := range account.Subscriptions {
			if !slices.Contains(subs, target) {
				subs = append(subs, target)
			}
		}

		s.doc.Accounts[account.Username] = &record{
			PasswordHash:  account.PasswordHash,
			Birthday:      account.Birthday,
			ReminderDays:  account.ReminderDays,
			Subscriptions: subs,
			Email:         account.Email,
			DisplayName:   account.DisplayName,
			City:          account.City,
			CreatedAt:     account.CreatedAt,
			UpdatedAt:     account.UpdatedAt,
		}
		return func() { delete(s.doc.Accounts, account.Username) }, nil
	})
}

func (s *Store) Get(_ context.Context, username string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.doc.Accounts[username]
	if !ok {
		return nil, apperror.NotFound("account", username)
	}
	a := toAccount(username, r)
	return &a, nil
}

func (s *Store) List(_ context.Context) ([]model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.doc.Accounts))
	for name := range s.doc.Accounts {
		names = append(names, name)
	}
	sort.Strings(names)

	accounts := make([]model.Account, 0, len(names))
	for _, name := range names {
		accounts = append(accounts, toAccount(name, s.doc.Accounts[name]))
	}
	return accounts, nil
}

func (s *Store) Update(_ context.Context, account *model.Account) error {
	return s.mutate(func() (func(), error) {
		r, ok := s.doc.Accounts[account.Username]
		if !ok {
			return nil, apperror.NotFound("account", account.Username)
		}

		old := *r
		account.UpdatedAt = time.Now().UTC()
		r.PasswordHash = account.PasswordHash
		r.Birthday = account.Birthday
		r.ReminderDays = account.ReminderDays
		r.Email = account.Email
		r.DisplayName = account.DisplayName
		r.City = account.City
		r.UpdatedAt = account.UpdatedAt
		return func() { *r = old }, nil
	})
}

func (s *Store) AddSubscription(_ context.Context, subscriber, target string) (bool, error) {
	added := false
	err := s.mutate(func() (func(), error) {
		r, ok := s.doc.Accounts[subscriber]
		if !ok {
			return nil, apperror.NotFound("account", subscriber)
		}
		if slices.Contains(r.Subscriptions, target) {
			return nil, nil
		}

		old := r.Subscriptions
		r.Subscriptions = append(slices.Clip(old), target)
		added = true
		return func() { r.Subscriptions = old; added = false }, nil
	})
	return added, err
}

func (s *Store) RemoveSubscription(_ context.Context, subscriber, target string) (bool, error) {
	removed := false
	err := s.mutate(func() (func(), error) {
		r, ok := s.doc.Accounts[subscriber]
		if !ok {
			return nil, apperror.NotFound("account", subscriber)
		}
		i := slices.Index(r.Subscriptions, target)
		if i < 0 {
			return nil, nil
		}

		old := r.Subscriptions
		r.Subscriptions = slices.Delete(slices.Clone(old), i, i+1)
		removed = true
		return func() { r.Subscriptions = old; removed = false }, nil
	})
	return removed, err
}

func (s *Store) Subscribers(_ context.Context, target string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subscribers := []string{}
	for name, r := range s.doc.Accounts {
		if slices.Contains(r.Subscriptions, target) {
			subscribers = append(subscribers, name)
		}
	}
	sort.Strings(subscribers)
	return subscribers, nil
}

func (s *Store) MarkSent(_ context.Context, key model.NotificationKey) (bool, error) {
	first := false
	err := s.mutate(func() (func(), error) {
		k := key.String()
		if _, seen := s.doc.Sent[k]; seen {
			return nil, nil
		}
		s.doc.Sent[k] = sentEntry{Date: key.Date, SentAt: time.Now().UTC()}
		first = true
		return func() { delete(s.doc.Sent, k); first = false }, nil
	})
	return first, err
}

func (s *Store) Forget(_ context.Context, key model.NotificationKey) error {
	return s.mutate(func() (func(), error) {
		k := key.String()
		entry, seen := s.doc.Sent[k]
		if !seen {
			return nil, nil
		}
		delete(s.doc.Sent, k)
		return func() { s.doc.Sent[k] = entry }, nil
	})
}

// PruneBefore drops entries dated before date and rewrites the file only
// when something was removed.
func (s *Store) PruneBefore(_ context.Context, date string) (int, error) {
	removed := 0
	err := s.mutate(func() (func(), error) {
		pruned := make(map[string]sentEntry)
		for k, entry := range s.doc.Sent {
			if entry.Date < date {
				pruned[k] = entry
				delete(s.doc.Sent, k)
			}
		}
		if len(pruned) == 0 {
			return nil, nil
		}
		removed = len(pruned)
		return func() {
			for k, entry := range pruned {
				s.doc.Sent[k] = entry
			}
			removed = 0
		}, nil
	})
	return removed, err
}
