package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sony/gobreaker"

	"github.com/sakif/birthday-reminder/internal/model"
)

// MailSender is the part of *sendgrid.Client that Email uses.
type MailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// EmailConfig configures the SendGrid notifier.
type EmailConfig struct {
	APIKey   string
	From     string // sender address
	FromName string
	Breaker  BreakerConfig
}

// Email sends notifications through SendGrid. Calls go through a circuit
// breaker so a SendGrid outage fails fast instead of stalling every sweep.
//
// Recipients without an email address are skipped silently.
type Email struct {
	client  MailSender
	from    *mail.Email
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewEmail returns an Email notifier backed by the SendGrid API.
func NewEmail(cfg EmailConfig, logger *slog.Logger) *Email {
	return NewEmailWithSender(sendgrid.NewSendClient(cfg.APIKey), cfg, logger)
}

// NewEmailWithSender is NewEmail with an injectable client, for tests.
func NewEmailWithSender(client MailSender, cfg EmailConfig, logger *slog.Logger) *Email {
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = "sendgrid"
	}
	name := cfg.FromName
	if name == "" {
		name = "Birthday Reminder"
	}
	return &Email{
		client:  client,
		from:    mail.NewEmail(name, cfg.From),
		breaker: newBreaker(cfg.Breaker, logger),
		logger:  logger,
	}
}

// Name implements Named.
func (e *Email) Name() string { return "email" }

func (e *Email) Notify(ctx context.Context, n model.Notification) error {
	if n.RecipientEmail == "" {
		e.logger.Debug("no email address, skipping",
			slog.String("recipient", n.Recipient),
			slog.String("kind", string(n.Kind)),
		)
		return nil
	}

	subject := "Birthday reminder"
	if n.Kind == model.KindCongratulation {
		subject = fmt.Sprintf("Today is %s's birthday", n.Subject)
	}
	body := Text(n)
	to := mail.NewEmail(n.Recipient, n.RecipientEmail)
	message := mail.NewSingleEmail(e.from, subject, to, body, "<p>"+body+"</p>")

	_, err := e.breaker.Execute(func() (interface{}, error) {
		resp, err := e.client.SendWithContext(ctx, message)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		return fmt.Errorf("notify/email: sending %s to %s: %w", n.Kind, n.Recipient, err)
	}

	e.logger.Debug("email sent",
		slog.String("recipient", n.Recipient),
		slog.String("kind", string(n.Kind)),
	)
	return nil
}
