// Package model defines the data structures used throughout the application.
package model

import "time"

// DefaultReminderDays is the reminder lead time used when an account
// does not set one.
const DefaultReminderDays = 1

// Birthday is a recurring calendar day. The year is deliberately absent:
// only the month and day are needed to compute every future occurrence.
type Birthday struct {
	Month int `json:"month"`
	Day   int `json:"day"`
}

// Account is a registered user's stored record.
//
// The username is the natural key. PasswordHash holds a bcrypt hash and is
// tagged json:"-" so no HTTP response can ever leak it, including GET /users.
//
// Subscriptions is an ordered set of target usernames: "notify me when
// target's birthday comes around". Repositories keep it duplicate-free.
type Account struct {
	Username      string    `json:"username"`
	PasswordHash  string    `json:"-"`
	Birthday      Birthday  `json:"birthday"`
	ReminderDays  int       `json:"reminder_days"`
	Subscriptions []string  `json:"subscriptions"`
	Email         string    `json:"email,omitempty"`
	DisplayName   string    `json:"display_name,omitempty"`
	City          string    `json:"city,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasSubscription reports whether target is in the account's subscription list.
func (a *Account) HasSubscription(target string) bool {
	for _, s := range a.Subscriptions {
		if s == target {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate it without touching
// a repository's internal state.
func (a *Account) Clone() *Account {
	c := *a
	if a.Subscriptions != nil {
		c.Subscriptions = append([]string(nil), a.Subscriptions...)
	}
	return &c
}
