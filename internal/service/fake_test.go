package service

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/birthday-reminder/internal/apperror"
	"github.com/sakif/birthday-reminder/internal/auth"
	"github.com/sakif/birthday-reminder/internal/model"
)

// fakeAccountRepo is an in-memory repository.AccountRepository.
// Set the *Err fields to simulate storage failures.
type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*model.Account

	getErr    error
	updateErr error
	updates   int
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[string]*model.Account)}
}

func (f *fakeAccountRepo) Create(_ context.Context, a *model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[a.Username]; ok {
		return apperror.Conflict("account", a.Username)
	}
	if a.Subscriptions == nil {
		a.Subscriptions = []string{}
	}
	f.accounts[a.Username] = a.Clone()
	return nil
}

func (f *fakeAccountRepo) Get(_ context.Context, username string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	a, ok := f.accounts[username]
	if !ok {
		return nil, apperror.NotFound("account", username)
	}
	return a.Clone(), nil
}

func (f *fakeAccountRepo) List(_ context.Context) ([]model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Account, 0, len(f.accounts))
	for _, a := range f.accounts {
		out = append(out, *a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (f *fakeAccountRepo) Update(_ context.Context, a *model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	existing, ok := f.accounts[a.Username]
	if !ok {
		return apperror.NotFound("account", a.Username)
	}
	c := a.Clone()
	c.Subscriptions = existing.Subscriptions
	f.accounts[a.Username] = c
	f.updates++
	return nil
}

func (f *fakeAccountRepo) AddSubscription(_ context.Context, subscriber, target string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[subscriber]
	if !ok {
		return false, apperror.NotFound("account", subscriber)
	}
	if a.HasSubscription(target) {
		return false, nil
	}
	a.Subscriptions = append(a.Subscriptions, target)
	return true, nil
}

func (f *fakeAccountRepo) RemoveSubscription(_ context.Context, subscriber, target string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[subscriber]
	if !ok {
		return false, apperror.NotFound("account", subscriber)
	}
	i := slices.Index(a.Subscriptions, target)
	if i < 0 {
		return false, nil
	}
	a.Subscriptions = slices.Delete(a.Subscriptions, i, i+1)
	return true, nil
}

func (f *fakeAccountRepo) Subscribers(_ context.Context, target string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []string{}
	for name, a := range f.accounts {
		if a.HasSubscription(target) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestAccountService wires an AccountService with bcrypt's minimum cost.
// withTokens controls whether Login issues a JWT.
func newTestAccountService(t *testing.T, repo *fakeAccountRepo, withTokens bool) *AccountService {
	t.Helper()
	var tokens *auth.TokenService
	if withTokens {
		var err error
		tokens, err = auth.NewTokenService("test-secret-at-least-16-chars!!")
		if err != nil {
			t.Fatalf("NewTokenService: %v", err)
		}
	}
	return NewAccountService(repo, auth.NewPasswordServiceForTest(bcrypt.MinCost), tokens, discardLogger())
}

func intPtr(v int) *int { return &v }

func register(t *testing.T, svc *AccountService, username string, month, day int) *model.Account {
	t.Helper()
	a, err := svc.Register(context.Background(), RegisterInput{
		Username: username,
		Password: "secret-" + username,
		Birthday: &model.Birthday{Month: month, Day: day},
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return a
}
