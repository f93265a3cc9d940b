// Package notify sends transactional email through a Notify style
// notification service.
package notify

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

const uuidLen = 36

// DefaultBaseURL is the public notification API.
const DefaultBaseURL = "https://api.notifications.service.gov.uk"

const (
	// TextCodeSendFailed marks a notification that never reached the service.
	TextCodeSendFailed = "NOTIFY_SEND_FAILED"
	// TextCodeRejected marks a notification the service answered with a non 2xx status.
	TextCodeRejected = "NOTIFY_REJECTED"
)

// ErrInvalidAPIKey is returned by New when the key cannot be split.
var ErrInvalidAPIKey = goerrors.New("notify: api key is too short", goerrors.CategoryBadInput).
	WithTextCode("NOTIFY_API_KEY_INVALID")

func sendFailed(err error, step string) error {
	return goerrors.Wrap(err, goerrors.CategoryOperation, "notify: "+step).
		WithTextCode(TextCodeSendFailed).
		WithCode(http.StatusBadGateway)
}

func rejected(status int, body string) error {
	return goerrors.New("notify: "+body, goerrors.CategoryOperation).
		WithTextCode(TextCodeRejected).
		WithCode(status).
		WithMetadata(map[string]any{"status_code": status})
}

// Client sends email notifications.
type Client struct {
	baseURL         string
	serviceID       string
	secret          []byte
	httpClient      *http.Client
	redirectDomains map[string]string
	now             func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the notification API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

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

// WithRedirectDomains redirects recipients in the given domains to a fixed
// address. Keys are domains, values are the replacement address.
func WithRedirectDomains(domains map[string]string) Option {
	return func(c *Client) {
		for domain, address := range domains {
			c.redirectDomains[strings.ToLower(domain)] = address
		}
	}
}

// WithClock overrides the clock used to stamp bearer tokens.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New builds a Client from an API key of the form name-serviceid-secret,
// where service id and secret are both UUIDs.
func New(apiKey string, opts ...Option) (*Client, error) {
	serviceID, secret, err := ParseAPIKey(apiKey)
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL:         DefaultBaseURL,
		serviceID:       serviceID,
		secret:          []byte(secret),
		httpClient:      &http.Client{Timeout: 10 * time.Second},
		redirectDomains: map[string]string{},
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ParseAPIKey splits a combined API key into service id and secret.
func ParseAPIKey(apiKey string) (serviceID, secret string, err error) {
	if len(apiKey) < 2*uuidLen+1 {
		return "", "", ErrInvalidAPIKey
	}
	secret = apiKey[len(apiKey)-uuidLen:]
	serviceID = apiKey[len(apiKey)-2*uuidLen-1 : len(apiKey)-uuidLen-1]
	return serviceID, secret, nil
}

// SendEmail sends templateID to the given address.
func (c *Client) SendEmail(ctx context.Context, to, templateID string, personalisation map[string]any, reference string) error {
	body := map[string]any{
		"email_address": c.recipient(to),
		"template_id":   templateID,
	}
	if len(personalisation) > 0 {
		body["personalisation"] = personalisation
	}
	if reference != "" {
		body["reference"] = reference
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return sendFailed(err, "encode request")
	}

	token, err := c.bearerToken()
	if err != nil {
		return sendFailed(err, "sign request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/notifications/email", bytes.NewReader(raw))
	if err != nil {
		return sendFailed(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return sendFailed(err, "send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return rejected(resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func (c *Client) recipient(to string) string {
	at := strings.LastIndex(to, "@")
	if at < 0 {
		return to
	}
	if redirect, ok := c.redirectDomains[strings.ToLower(to[at+1:])]; ok {
		return redirect
	}
	return to
}

func (c *Client) bearerToken() (string, error) {
	claims := jwt.MapClaims{
		"iss": c.serviceID,
		"iat": c.now().Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// HashString returns a URL-safe, non reversible digest of s, used for
// notification references and logs in place of email addresses.
func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.URLEncoding.EncodeToString(sum[:])
}
