// Package client talks to a receipt-overseer server over REST and keeps a
// realtime subscription open.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"receipt-overseer/internal/ledger"
	"receipt-overseer/internal/models"
)

var ErrNotLoggedIn = errors.New("client: not logged in")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: server returned %d: %s", e.Status, e.Message)
}

// Balance mirrors the /balance response.
type Balance struct {
	OwedByViewer   decimal.Decimal       `json:"owed_by_viewer"`
	OwedToViewer   decimal.Decimal       `json:"owed_to_viewer"`
	Net            decimal.Decimal       `json:"net"`
	Status         string                `json:"status"`
	Counterparties []ledger.Counterparty `json:"counterparties"`
}

// Client is a REST client holding the bearer token of one logged-in user.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Token returns the current bearer token, empty when logged out.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Login(ctx context.Context, username, password string) error {
	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/token", body, false, &resp); err != nil {
		return err
	}
	if resp.AccessToken == "" {
		return errors.New("client: empty access token")
	}
	c.setToken(resp.AccessToken)
	return nil
}

// Logout asks the server to close this user's sessions. The local token is
// discarded even when the request fails.
func (c *Client) Logout(ctx context.Context) error {
	if c.Token() == "" {
		return nil
	}
	defer c.setToken("")
	return c.do(ctx, http.MethodPost, "/logout", nil, true, nil)
}

func (c *Client) ListExpenses(ctx context.Context, search string, skip, limit int) ([]models.Expense, error) {
	query := url.Values{}
	if search != "" {
		query.Set("search", search)
	}
	if skip > 0 {
		query.Set("skip", strconv.Itoa(skip))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/expenses"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var expenses []models.Expense
	if err := c.do(ctx, http.MethodGet, path, nil, true, &expenses); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (c *Client) Balance(ctx context.Context) (Balance, error) {
	var balance Balance
	err := c.do(ctx, http.MethodGet, "/balance", nil, true, &balance)
	return balance, err
}

// Messages fetches chat history, oldest first.
func (c *Client) Messages(ctx context.Context, limit int) ([]models.ChatMessage, error) {
	path := "/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var msgs []models.ChatMessage
	if err := c.do(ctx, http.MethodGet, path, nil, true, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, authed bool, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		token := c.Token()
		if token == "" {
			return ErrNotLoggedIn
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}
