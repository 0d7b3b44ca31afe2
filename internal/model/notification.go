package model

import "time"

// NotificationKind distinguishes the two notices a sweep can emit.
type NotificationKind string

const (
	// KindCongratulation is sent to each subscriber on the day of a birthday.
	KindCongratulation NotificationKind = "congratulation"
	// KindReminder is sent ReminderDays before a birthday.
	KindReminder NotificationKind = "reminder"
)

// DateLayout is the calendar date format used in notification keys and the CLI.
const DateLayout = "2006-01-02"

// Notification is a single notice produced by a sweep.
//
// Subject is the account whose birthday it is; Recipient is the account the
// notice is addressed to. RecipientEmail is filled in by the sweeper so that
// delivery channels don't have to look the recipient up again.
type Notification struct {
	ID             string           `json:"id"`
	Kind           NotificationKind `json:"kind"`
	Subject        string           `json:"subject"`
	Recipient      string           `json:"recipient"`
	RecipientEmail string           `json:"-"`
	Date           time.Time        `json:"date"`
	LeadDays       int              `json:"lead_days,omitempty"`
}

// NotificationKey identifies one delivery of a notice on one channel for
// de-duplication: the same key is never delivered twice. Channels are keyed
// separately so a failing channel is retried without repeating the others.
type NotificationKey struct {
	Kind      NotificationKind
	Subject   string
	Recipient string
	Date      string // DateLayout
	Channel   string
}

// Key returns the de-duplication key for n on channel.
func (n Notification) Key(channel string) NotificationKey {
	return NotificationKey{
		Kind:      n.Kind,
		Subject:   n.Subject,
		Recipient: n.Recipient,
		Date:      n.Date.Format(DateLayout),
		Channel:   channel,
	}
}

// String renders the key as a single token, used as a map key by file-backed stores.
func (k NotificationKey) String() string {
	return string(k.Kind) + "|" + k.Subject + "|" + k.Recipient + "|" + k.Date + "|" + k.Channel
}
