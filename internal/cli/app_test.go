package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receipt-overseer/internal/client"
	"receipt-overseer/internal/config"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.DB = config.DBConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "app.db")}
	cfg.DebugRoutes = true

	a, err := newApp(cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(a.router)
	t.Cleanup(func() {
		a.closeSessions()
		srv.Close()
		_ = a.Close()
	})
	return srv
}

func register(t *testing.T, srv *httptest.Server, username string) int {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": "correct-horse"})
	resp, err := srv.Client().Post(srv.URL+"/users", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var user struct {
		ID int `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&user))
	return user.ID
}

func login(t *testing.T, srv *httptest.Server, username string) *client.Client {
	t.Helper()
	c := client.New(srv.URL, srv.Client())
	require.NoError(t, c.Login(context.Background(), username, "correct-horse"))
	return c
}

func TestHealthzAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "noop", health["broker"])

	metrics, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	assert.Equal(t, http.StatusOK, metrics.StatusCode)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/balance")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestExpenseFlowReachesOtherSessions(t *testing.T) {
	srv := newTestServer(t)
	aliceID := register(t, srv, "alice")
	bobID := register(t, srv, "bob")
	carolID := register(t, srv, "carol")

	alice := login(t, srv, "alice")
	bob := login(t, srv, "bob")

	var (
		mu     sync.Mutex
		frames []client.Frame
	)
	resynced := make(chan struct{}, 1)
	sub := client.NewSubscriber(client.SubscriberConfig{
		URL:             "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		MaxAttempts:     1,
		InitialInterval: 10 * time.Millisecond,
	}, bob.Token, func(f client.Frame) {
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
	}, func(context.Context) error {
		select {
		case resynced <- struct{}{}:
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sub.Run(ctx) }()

	select {
	case <-resynced:
	case <-time.After(3 * time.Second):
		t.Fatal("subscriber never authenticated")
	}

	body, _ := json.Marshal(map[string]any{
		"amount":       "90",
		"description":  "dinner",
		"participants": []int{aliceID, bobID, carolID},
	})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/expenses", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+alice.Token())
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(frames) == 2
	}, 3*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, "expense_changed", frames[0].Event)
	assert.Equal(t, "notification", frames[1].Event)
	mu.Unlock()

	balance, err := alice.Balance(context.Background())
	require.NoError(t, err)
	assert.True(t, balance.OwedToViewer.Equal(decimal.NewFromInt(60)), balance.OwedToViewer.String())
	assert.Equal(t, "net creditor", balance.Status)

	bobBalance, err := bob.Balance(context.Background())
	require.NoError(t, err)
	assert.True(t, bobBalance.OwedByViewer.Equal(decimal.NewFromInt(30)), bobBalance.OwedByViewer.String())

	expenses, err := bob.ListExpenses(context.Background(), "DIN", 0, 0)
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Len(t, expenses[0].Shares, 2)

	require.NoError(t, bob.Logout(context.Background()))
	assert.Empty(t, bob.Token())
}

func TestDebugSessionsListsLiveConnections(t *testing.T) {
	srv := newTestServer(t)
	register(t, srv, "alice")
	alice := login(t, srv, "alice")

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/debug/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+alice.Token())
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Zero(t, out.Count)
}

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := NewRootCommand()

	names := []string{}
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "migrate")
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}
