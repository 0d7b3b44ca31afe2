package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/birthday-reminder/internal/config"
	"github.com/sakif/birthday-reminder/internal/model"
	"github.com/sakif/birthday-reminder/internal/notify"
	"github.com/sakif/birthday-reminder/internal/repository/jsonfile"
	sqliteRepo "github.com/sakif/birthday-reminder/internal/repository/sqlite"
)

const testSecret = "server-test-secret-0123456789"

func testConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(func(key string) string { return env[key] })
	require.NoError(t, err)
	return cfg
}

func newTestServer(t *testing.T, env map[string]string, notifier notify.Notifier) *Server {
	t.Helper()
	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)

	if notifier == nil {
		notifier = notify.NewConsole(io.Discard)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewWithStore(testConfig(t, env), db, notifier, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func do(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.1:1234"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func registerBody(username string, month, day int) string {
	return fmt.Sprintf(`{"username":%q,"password":"pw-%s","birthday":{"month":%d,"day":%d}}`,
		username, username, month, day)
}

func login(t *testing.T, h http.Handler, username string) string {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/login",
		fmt.Sprintf(`{"username":%q,"password":"pw-%s"}`, username, username), "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t, map[string]string{"SWEEP_ENABLED": "false"}, nil).Handler()

	rr := do(t, h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, h, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "http_requests_total")
}

func TestOpenRoutesWithoutSecret(t *testing.T) {
	h := newTestServer(t, map[string]string{"SWEEP_ENABLED": "false"}, nil).Handler()

	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/register", registerBody("alice", 6, 1), "").Code)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/register", registerBody("bob", 7, 2), "").Code)

	rr := do(t, h, http.MethodPost, "/subscribe/alice/bob", "", "")
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestAuthFlow(t *testing.T) {
	h := newTestServer(t, map[string]string{
		"SWEEP_ENABLED": "false",
		"JWT_SECRET":    testSecret,
	}, nil).Handler()

	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/register", registerBody("alice", 6, 1), "").Code)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/register", registerBody("bob", 7, 2), "").Code)

	t.Run("no token", func(t *testing.T) {
		rr := do(t, h, http.MethodPost, "/subscribe/alice/bob", "", "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	aliceToken := login(t, h, "alice")

	t.Run("someone else's token", func(t *testing.T) {
		rr := do(t, h, http.MethodPost, "/subscribe/bob/alice", "", aliceToken)
		assert.Equal(t, http.StatusForbidden, rr.Code)

		rr = do(t, h, http.MethodPut, "/profile/bob", `{"city":"Oslo"}`, aliceToken)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("own token", func(t *testing.T) {
		rr := do(t, h, http.MethodPost, "/subscribe/alice/bob", "", aliceToken)
		assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		rr = do(t, h, http.MethodPut, "/profile/alice", `{"city":"Berlin"}`, aliceToken)
		assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	})

	t.Run("reads stay public", func(t *testing.T) {
		rr := do(t, h, http.MethodGet, "/profile/alice", "", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "Berlin")
		assert.NotContains(t, rr.Body.String(), "pw-alice")
	})
}

func TestLoginRateLimited(t *testing.T) {
	h := newTestServer(t, map[string]string{
		"SWEEP_ENABLED": "false",
		"LOGIN_RATE":    "0.001",
		"LOGIN_BURST":   "2",
	}, nil).Handler()

	body := `{"username":"nobody","password":"x"}`
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/login", body, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/login", body, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodPost, "/login", body, "").Code)
}

func TestServe_SweepsAndShutsDown(t *testing.T) {
	delivered := make(chan model.Notification, 8)
	notifier := notify.Func(func(_ context.Context, n model.Notification) error {
		delivered <- n
		return nil
	})

	s := newTestServer(t, map[string]string{"SWEEP_INTERVAL": "1h"}, notifier)
	h := s.Handler()

	today := time.Now()
	require.Equal(t, http.StatusCreated,
		do(t, h, http.MethodPost, "/register", registerBody("alice", int(today.Month()), today.Day()), "").Code)
	require.Equal(t, http.StatusCreated,
		do(t, h, http.MethodPost, "/register", registerBody("bob", 1, 1), "").Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/subscribe/bob/alice", "", "").Code)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	select {
	case n := <-delivered:
		assert.Equal(t, model.KindCongratulation, n.Kind)
		assert.Equal(t, "bob", n.Recipient)
		assert.Equal(t, "alice", n.Subject)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not sweep on start")
	}

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServe_ListenerFailure(t *testing.T) {
	s := newTestServer(t, map[string]string{"SWEEP_INTERVAL": "1h"}, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ln.Close()

	err = s.Serve(context.Background(), ln)
	assert.Error(t, err, "a dead listener must stop the scheduler and surface the error")
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()

	t.Run("json", func(t *testing.T) {
		cfg := testConfig(t, map[string]string{
			"STORE_DRIVER": "json",
			"STORE_PATH":   dir + "/nested/birthday_db.json",
		})
		store, err := OpenStore(cfg)
		require.NoError(t, err)
		defer store.Close()
		_, ok := store.(*jsonfile.Store)
		assert.True(t, ok)
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := testConfig(t, map[string]string{"STORE_PATH": dir + "/db/birthdays.db"})
		store, err := OpenStore(cfg)
		require.NoError(t, err)
		defer store.Close()
		_, ok := store.(*sqliteRepo.DB)
		assert.True(t, ok)
	})
}

func TestNewNotifier(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	n := NewNotifier(testConfig(t, nil), io.Discard, logger)
	assert.Len(t, n, 1)

	n = NewNotifier(testConfig(t, map[string]string{
		"SENDGRID_API_KEY": "SG.test",
		"SENDGRID_FROM":    "noreply@example.com",
	}), io.Discard, logger)
	require.Len(t, n, 2)
	_, ok := n[0].(*notify.Console)
	assert.True(t, ok)
	_, ok = n[1].(*notify.Email)
	assert.True(t, ok)
}
