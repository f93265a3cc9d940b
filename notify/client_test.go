package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testServiceID = "11111111-2222-3333-4444-555555555555"
	testSecret    = "66666666-7777-8888-9999-000000000000"
	testAPIKey    = "my_key-" + testServiceID + "-" + testSecret
)

func TestParseAPIKey(t *testing.T) {
	serviceID, secret, err := ParseAPIKey(testAPIKey)
	require.NoError(t, err)
	assert.Equal(t, testServiceID, serviceID)
	assert.Equal(t, testSecret, secret)

	_, _, err = ParseAPIKey("short")
	assert.Error(t, err)
}

func TestClient_SendEmail(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var captured map[string]any
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/notifications/email", r.URL.Path)
		authHeader = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": "abc"}`))
	}))
	defer srv.Close()

	client, err := New(testAPIKey, WithBaseURL(srv.URL), WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)

	err = client.SendEmail(context.Background(), "email@email.com", "template-id",
		map[string]any{"url": "https://example.com/reset"}, "reset-password-ref")
	require.NoError(t, err)

	assert.Equal(t, "email@email.com", captured["email_address"])
	assert.Equal(t, "template-id", captured["template_id"])
	assert.Equal(t, "reset-password-ref", captured["reference"])
	assert.Equal(t, map[string]any{"url": "https://example.com/reset"}, captured["personalisation"])

	require.True(t, strings.HasPrefix(authHeader, "Bearer "))
	parsed, err := jwt.Parse(strings.TrimPrefix(authHeader, "Bearer "), func(*jwt.Token) (any, error) {
		return []byte(testSecret), nil
	}, jwt.WithoutClaimsValidation())
	require.NoError(t, err)

	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, testServiceID, claims["iss"])
	assert.EqualValues(t, fixed.Unix(), claims["iat"])
}

func TestClient_SendEmail_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors": [{"error": "BadRequestError"}]}`))
	}))
	defer srv.Close()

	client, err := New(testAPIKey, WithBaseURL(srv.URL))
	require.NoError(t, err)

	err = client.SendEmail(context.Background(), "email@email.com", "template-id", nil, "")
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, http.StatusBadRequest, richErr.Code)
	assert.Equal(t, TextCodeRejected, richErr.TextCode)
	assert.Contains(t, richErr.Message, "BadRequestError")
	assert.Equal(t, http.StatusBadRequest, richErr.Metadata["status_code"])
}

func TestClient_SendEmail_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	client, err := New(testAPIKey, WithBaseURL(srv.URL))
	require.NoError(t, err)

	err = client.SendEmail(context.Background(), "email@email.com", "template-id", nil, "")

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, TextCodeSendFailed, richErr.TextCode)
	assert.Equal(t, http.StatusBadGateway, richErr.Code)
}

func TestClient_RedirectDomains(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client, err := New(testAPIKey,
		WithBaseURL(srv.URL),
		WithRedirectDomains(map[string]string{"example.gov.uk": "simulate-delivered@notifications.service.gov.uk"}),
	)
	require.NoError(t, err)

	tests := []struct {
		to       string
		expected string
	}{
		{to: "someone@Example.gov.uk", expected: "simulate-delivered@notifications.service.gov.uk"},
		{to: "someone@other.com", expected: "someone@other.com"},
	}

	for _, tt := range tests {
		t.Run(tt.to, func(t *testing.T) {
			require.NoError(t, client.SendEmail(context.Background(), tt.to, "t", nil, ""))
			assert.Equal(t, tt.expected, captured["email_address"])
		})
	}
}

func TestHashString(t *testing.T) {
	h1 := HashString("email@email.com")
	h2 := HashString("email@email.com")
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, HashString("other@email.com"))
	assert.NotContains(t, h1, "email")
	assert.NotContains(t, h1, "/")
	assert.NotContains(t, h1, "+")
}
