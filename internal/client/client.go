// Package client is the HTTP transport for the collabhub backend. It is
// constructed explicitly and passed to the session manager and the
// entity stores; nothing in this module holds a package-level client.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"collabhub/platform/internal/models"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL string
	http    *http.Client

	mu          sync.RWMutex
	accessToken string
}

// New builds a client for the given base URL. httpClient may be nil, in
// which case a client with the default 10s timeout is used.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// WebsocketURL returns the realtime endpoint with the current access
// token attached, in ws scheme.
func (c *Client) WebsocketURL() string {
	wsURL := c.baseURL
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}
	return wsURL + "/realtime/v1/ws?token=" + url.QueryEscape(c.AccessToken())
}

func (c *Client) SignUp(ctx context.Context, email, password, name, role string) (models.Session, error) {
	var session models.Session
	err := c.do(ctx, http.MethodPost, "/auth/v1/signup", map[string]string{
		"email":    email,
		"password": password,
		"name":     name,
		"role":     role,
	}, &session)
	return session, err
}

func (c *Client) SignIn(ctx context.Context, email, password string) (models.Session, error) {
	var session models.Session
	err := c.do(ctx, http.MethodPost, "/auth/v1/token", map[string]string{
		"email":    email,
		"password": password,
	}, &session)
	return session, err
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (models.Session, error) {
	var session models.Session
	err := c.do(ctx, http.MethodPost, "/auth/v1/refresh", map[string]string{
		"refresh_token": refreshToken,
	}, &session)
	return session, err
}

func (c *Client) SignOut(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/logout", struct{}{}, nil)
}

func (c *Client) FetchProfile(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := c.do(ctx, http.MethodGet, "/rest/v1/profiles/"+url.PathEscape(userID), nil, &user)
	return user, err
}

func (c *Client) UpdateProfile(ctx context.Context, userID string, update map[string]interface{}) (models.User, error) {
	var user models.User
	err := c.do(ctx, http.MethodPatch, "/rest/v1/profiles/"+url.PathEscape(userID), update, &user)
	return user, err
}

func (c *Client) ListRows(ctx context.Context, table, projectID string) ([]json.RawMessage, error) {
	path := "/rest/v1/" + url.PathEscape(table)
	if projectID != "" {
		path += "?project_id=" + url.QueryEscape(projectID)
	}
	var rows []json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) InsertRow(ctx context.Context, table string, doc interface{}) (json.RawMessage, error) {
	var stored json.RawMessage
	err := c.do(ctx, http.MethodPost, "/rest/v1/"+url.PathEscape(table), doc, &stored)
	return stored, err
}

func (c *Client) UpdateRow(ctx context.Context, table, id string, doc interface{}) (json.RawMessage, error) {
	var stored json.RawMessage
	err := c.do(ctx, http.MethodPatch, "/rest/v1/"+url.PathEscape(table)+"/"+url.PathEscape(id), doc, &stored)
	return stored, err
}

func (c *Client) DeleteRow(ctx context.Context, table, id string) error {
	return c.do(ctx, http.MethodDelete, "/rest/v1/"+url.PathEscape(table)+"/"+url.PathEscape(id), nil, nil)
}

// RPC invokes a backend function. A 404 maps to ErrRPCUnavailable so the
// capability probe can fall back without guessing.
func (c *Client) RPC(ctx context.Context, fn string, args, out interface{}) error {
	return c.do(ctx, http.MethodPost, "/rpc/v1/"+url.PathEscape(fn), args, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransientError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}

	code := errorCode(resp.Body)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		if strings.HasPrefix(path, "/rpc/v1/") {
			return ErrRPCUnavailable
		}
		return ErrNotFound
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return &TransientError{Err: fmt.Errorf("status %d: %s", resp.StatusCode, code)}
	default:
		return &AuthError{Status: resp.StatusCode, Code: code}
	}
}

func errorCode(body io.Reader) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return "unknown_error"
	}
	return payload.Error
}
