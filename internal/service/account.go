// Package service contains the business logic layer of the application.
//
// The layers are:
//
//	Handler (HTTP)      → parses requests, writes responses
//	Service (business)  → validates, enforces rules, orchestrates
//	Repository (data)   → reads/writes the store
//
// Services take repository interfaces, never a concrete backend, so the same
// rules apply whether accounts live in SQLite or in the JSON file, and tests
// can pass in-memory fakes.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/birthday-reminder/internal/apperror"
	"github.com/sakif/birthday-reminder/internal/auth"
	"github.com/sakif/birthday-reminder/internal/birthday"
	"github.com/sakif/birthday-reminder/internal/model"
	"github.com/sakif/birthday-reminder/internal/repository"
)

// Validation limits.
const (
	MaxUsernameLength    = 64
	MaxProfileTextLength = 200
	MaxReminderDays      = 365
)

// RegisterInput is the data needed to create an account.
//
// Birthday is a pointer so a missing birthday can be told apart from a zero
// one; registration without a birthday is rejected.
type RegisterInput struct {
	Username     string          `validate:"required,max=64,excludesall=/"`
	Password     string          `validate:"required,max=72"`
	Birthday     *model.Birthday `validate:"required"`
	ReminderDays *int            `validate:"omitempty,min=0,max=365"`
	Email        string          `validate:"omitempty,email,max=200"`
	DisplayName  string          `validate:"max=200"`
	City         string          `validate:"max=200"`
}

// LoginResult is returned by a successful Login.
// Token is empty when the service was built without a TokenService.
type LoginResult struct {
	Account *model.Account
	Token   string
}

// AccountService handles registration, login and profile updates.
type AccountService struct {
	accounts  repository.AccountRepository
	passwords *auth.PasswordService
	tokens    *auth.TokenService // nil: login issues no token
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewAccountService creates an AccountService. tokens may be nil.
func NewAccountService(
	accounts repository.AccountRepository,
	passwords *auth.PasswordService,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		accounts:  accounts,
		passwords: passwords,
		tokens:    tokens,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
	}
}

// Register validates in, hashes the password and creates the account.
// A duplicate username returns apperror.ErrConflict and leaves the existing
// account untouched.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*model.Account, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	in.City = strings.TrimSpace(in.City)

	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	if strings.ContainsFunc(in.Username, unicode.IsSpace) {
		return nil, apperror.ValidationFailed("username", "username must not contain spaces or slashes")
	}
	if err := birthday.Validate(*in.Birthday); err != nil {
		return nil, err
	}

	reminder := model.DefaultReminderDays
	if in.ReminderDays != nil {
		reminder = *in.ReminderDays
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, apperror.ValidationFailed("password", err.Error())
		}
		return nil, fmt.Errorf("service/account: hashing password: %w", err)
	}

	account := &model.Account{
		Username:      in.Username,
		PasswordHash:  hash,
		Birthday:      *in.Birthday,
		ReminderDays:  reminder,
		Subscriptions: []string{},
		Email:         in.Email,
		DisplayName:   in.DisplayName,
		City:          in.City,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info("account registered", slog.String("username", account.Username))
	return account, nil
}

// Authenticate reports whether password matches the stored hash for username.
// An unknown user or missing input yields false without an error.
func (s *AccountService) Authenticate(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}

	account, err := s.accounts.Get(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("service/account: loading %s: %w", username, err)
	}

	if err := s.passwords.Verify(account.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return false, nil
		}
		return false, fmt.Errorf("service/account: verifying password: %w", err)
	}
	return true, nil
}

// Login authenticates and, when a TokenService is configured, issues a JWT.
// Bad credentials return apperror.ErrUnauthorized.
func (s *AccountService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	ok, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Warn("login failed", slog.String("username", username))
		return nil, apperror.Unauthorized("invalid username or password")
	}

	account, err := s.accounts.Get(ctx, username)
	if err != nil {
		return nil, err
	}

	result := &LoginResult{Account: account}
	if s.tokens != nil {
		result.Token, err = s.tokens.Generate(username)
		if err != nil {
			return nil, fmt.Errorf("service/account: generating token for %s: %w", username, err)
		}
	}

	s.logger.Info("login succeeded", slog.String("username", username))
	return result, nil
}

// Get returns one account. Returns apperror.ErrNotFound if absent.
func (s *AccountService) Get(ctx context.Context, username string) (*model.Account, error) {
	return s.accounts.Get(ctx, username)
}

// List returns every account ordered by username.
func (s *AccountService) List(ctx context.Context) ([]model.Account, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/account: listing accounts: %w", err)
	}
	return accounts, nil
}

// UpdateProfile merges the given fields into the account. Only the
// allow-listed keys are accepted; anything else, password included, is a
// validation error and nothing is written. Fields not mentioned keep their
// current values.
func (s *AccountService) UpdateProfile(ctx context.Context, username string, fields map[string]json.RawMessage) (*model.Account, error) {
	if len(fields) == 0 {
		return nil, apperror.ValidationFailed("body", "no fields to update")
	}

	account, err := s.accounts.Get(ctx, username)
	if err != nil {
		return nil, err
	}

	for key, raw := range fields {
		if err := s.applyField(account, key, raw); err != nil {
			return nil, err
		}
	}

	if err := s.accounts.Update(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info("profile updated",
		slog.String("username", username),
		slog.Int("fields", len(fields)),
	)
	return account, nil
}

func (s *AccountService) applyField(a *model.Account, key string, raw json.RawMessage) error {
	switch key {
	case "email":
		v, err := decodeText(key, raw)
		if err != nil {
			return err
		}
		if v != "" {
			if err := s.validate.Var(v, "email"); err != nil {
				return apperror.ValidationFailed(key, "email must be a valid address")
			}
		}
		a.Email = v
	case "display_name":
		v, err := decodeText(key, raw)
		if err != nil {
			return err
		}
		a.DisplayName = v
	case "city":
		v, err := decodeText(key, raw)
		if err != nil {
			return err
		}
		a.City = v
	case "reminder_days":
		var v int
		if err := json.Unmarshal(raw, &v); err != nil {
			return apperror.ValidationFailed(key, "reminder_days must be an integer")
		}
		if v < 0 || v > MaxReminderDays {
			return apperror.ValidationFailed(key,
				fmt.Sprintf("reminder_days must be between 0 and %d", MaxReminderDays))
		}
		a.ReminderDays = v
	case "birthday":
		var b model.Birthday
		if err := json.Unmarshal(raw, &b); err != nil {
			return apperror.ValidationFailed(key, "birthday must be an object with month and day")
		}
		if err := birthday.Validate(b); err != nil {
			return err
		}
		a.Birthday = b
	case "password":
		return apperror.ValidationFailed(key, "password cannot be changed through the profile")
	default:
		return apperror.ValidationFailed(key, fmt.Sprintf("field %q cannot be updated", key))
	}
	return nil
}

func decodeText(key string, raw json.RawMessage) (string, error) {
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", apperror.ValidationFailed(key, key+" must be a string")
	}
	v = strings.TrimSpace(v)
	if len(v) > MaxProfileTextLength {
		return "", apperror.ValidationFailed(key,
			fmt.Sprintf("%s must be %d characters or less", key, MaxProfileTextLength))
	}
	return v, nil
}

// validationError turns the first validator failure into an AppError naming
// the offending field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.ValidationFailed("", err.Error())
	}

	fe := verrs[0]
	field := toSnake(fe.Field())
	var msg string
	switch fe.Tag() {
	case "required":
		msg = field + " is required"
	case "max":
		msg = fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "min":
		msg = fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "email":
		msg = field + " must be a valid address"
	case "excludesall":
		msg = field + " must not contain spaces or slashes"
	default:
		msg = field + " is invalid"
	}
	return apperror.ValidationFailed(field, msg)
}

func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
