// Package apiclient talks to the data API that owns user records,
// authentication and password storage.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a data API client. It never retries; each failure surfaces to the caller.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// New creates a Client for the API at baseURL authenticating with authToken.
func New(baseURL, authToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetUser fetches a user by id. It returns nil when the user does not exist.
func (c *Client) GetUser(ctx context.Context, id int) (*User, error) {
	return c.getUser(ctx, fmt.Sprintf("/users/%d", id))
}

// GetUserByEmail fetches a user by email address. It returns nil when the user does not exist.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	q := url.Values{}
	q.Set("email_address", email)
	return c.getUser(ctx, "/users?"+q.Encode())
}

func (c *Client) getUser(ctx context.Context, path string) (*User, error) {
	var env usersEnvelope
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return env.Users, nil
}

// AuthenticateUser checks an email/password pair. It returns nil when the
// credentials are rejected.
func (c *Client) AuthenticateUser(ctx context.Context, email, password string) (*User, error) {
	body := map[string]any{
		"authUsers": map[string]string{
			"emailAddress": email,
			"password":     password,
		},
	}

	var env usersEnvelope
	if err := c.do(ctx, http.MethodPost, "/users/auth", body, &env); err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) &&
			(httpErr.StatusCode == http.StatusForbidden || httpErr.StatusCode == http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return env.Users, nil
}

// CreateUser creates a user record.
func (c *Client) CreateUser(ctx context.Context, payload CreateUserRequest) (*User, error) {
	body := map[string]any{
		"users":      payload,
		"updated_by": payload.EmailAddress,
	}

	var env usersEnvelope
	if err := c.do(ctx, http.MethodPost, "/users", body, &env); err != nil {
		return nil, err
	}
	return env.Users, nil
}

// UpdateUserPassword sets a new password. API rejections are reported as
// false, transport failures as an error.
func (c *Client) UpdateUserPassword(ctx context.Context, id int, password, updater string) (bool, error) {
	body := map[string]any{
		"users":      map[string]string{"password": password},
		"updated_by": updater,
	}

	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/users/%d", id), body, nil); err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// UpdateUser updates arbitrary user fields.
func (c *Client) UpdateUser(ctx context.Context, id int, fields map[string]any, updater string) error {
	body := map[string]any{
		"users":      fields,
		"updated_by": updater,
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/users/%d", id), body, nil)
}

// Status returns the API status document.
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	out := map[string]any{}
	if err := c.do(ctx, http.MethodGet, "/_status", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.authToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newHTTPError(resp.StatusCode, raw)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func newHTTPError(status int, raw []byte) *HTTPError {
	httpErr := &HTTPError{StatusCode: status, Message: http.StatusText(status)}

	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Error == nil {
		return httpErr
	}

	switch v := env.Error.(type) {
	case string:
		httpErr.Message = v
	default:
		if encoded, err := json.Marshal(v); err == nil {
			httpErr.Message = string(encoded)
		}
	}
	return httpErr
}
