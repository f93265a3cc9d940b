package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

// ErrTokenMismatch is returned when the submitted token does not verify.
var ErrTokenMismatch = goerrors.New("CSRF token mismatch", goerrors.CategoryAuthz).
	WithTextCode("CSRF_MISMATCH").
	WithCode(fiber.StatusForbidden)

// ErrTokenMissing is returned when an unsafe request carries no token.
var ErrTokenMissing = goerrors.New("CSRF token missing", goerrors.CategoryBadInput).
	WithTextCode("CSRF_MISSING").
	WithCode(fiber.StatusBadRequest)

// ErrTokenExpired is returned when a stateless token is past its expiration.
var ErrTokenExpired = goerrors.New("CSRF token expired", goerrors.CategoryAuthz).
	WithTextCode("CSRF_EXPIRED").
	WithCode(fiber.StatusForbidden)

var ErrSecureKeyMissing = goerrors.New("CSRF secure key required for stateless mode", goerrors.CategoryInternal).
	WithTextCode("CSRF_CONFIG").
	WithCode(fiber.StatusInternalServerError)

// DefaultTokenLength is the default length for CSRF tokens
const DefaultTokenLength = 32

// DefaultContextKey is the default key for storing CSRF tokens in context
const DefaultContextKey = "csrf_token"

// DefaultFormFieldName matches the hidden field rendered by the account forms.
const DefaultFormFieldName = "csrf_token"

// DefaultHeaderName is the default header name for CSRF tokens
const DefaultHeaderName = "X-CSRF-Token"

// SessionKeyLocal is the locals key a session middleware may set to bind
// tokens to a session instead of the client IP.
const SessionKeyLocal = "session_id"

// Config defines the configuration for CSRF middleware
type Config struct {
	// Next skips the middleware when it returns true
	Next func(*fiber.Ctx) bool

	TokenLength   int
	ContextKey    string
	FormFieldName string
	HeaderName    string

	// TokenLookup defines where to look for the token
	// Format: "form:csrf_token,header:X-CSRF-Token"
	TokenLookup string

	// Storage keeps one token per session. If nil, tokens are stateless HMACs.
	Storage fiber.Storage

	ErrorHandler fiber.ErrorHandler

	// SafeMethods defines HTTP methods that don't require CSRF protection
	SafeMethods []string

	Expiration time.Duration

	// SecureKey signs stateless tokens, at least 32 bytes
	SecureKey []byte

	// DisableTemplateHelpers stops the middleware binding csrf_* view variables.
	DisableTemplateHelpers bool
}

// TokenExtractor defines a function to extract token from request
type TokenExtractor func(*fiber.Ctx) string

// New creates a new CSRF middleware
func New(config ...Config) fiber.Handler {
	cfg := configDefault(config...)

	return func(c *fiber.Ctx) error {
		if cfg.Next != nil && cfg.Next(c) {
			return c.Next()
		}

		method := strings.ToUpper(c.Method())
		safe := slices.Contains(cfg.SafeMethods, method)

		var token string
		var err error
		if safe || cfg.Storage != nil {
			token, err = getOrGenerateToken(c, cfg)
			if err != nil {
				return cfg.ErrorHandler(c, err)
			}
		}

		if !safe {
			if err := validateToken(c, cfg, token); err != nil {
				return cfg.ErrorHandler(c, err)
			}
			if token == "" {
				// stateless: a fresh token for any re-rendered form
				if token, err = generateStatelessToken(c, cfg); err != nil {
					return cfg.ErrorHandler(c, err)
				}
			}
		}

		c.Locals(cfg.ContextKey, token)
		c.Locals(cfg.ContextKey+"_field", cfg.FormFieldName)
		c.Locals(cfg.ContextKey+"_header", cfg.HeaderName)
		if !cfg.DisableTemplateHelpers {
			if err := c.Bind(TemplateHelpers(c, cfg.ContextKey)); err != nil {
				return err
			}
		}

		return c.Next()
	}
}

// getOrGenerateToken generates or retrieves a CSRF token
func getOrGenerateToken(c *fiber.Ctx, cfg Config) (string, error) {
	if cfg.Storage != nil {
		key := getSessionKey(c)
		if raw, err := cfg.Storage.Get(key); err == nil && len(raw) > 0 {
			return string(raw), nil
		}

		token, err := generateToken(cfg.TokenLength)
		if err != nil {
			return "", err
		}

		if err := cfg.Storage.Set(key, []byte(token), cfg.Expiration); err != nil {
			return "", err
		}

		return token, nil
	}

	return generateStatelessToken(c, cfg)
}

// validateToken validates the CSRF token from the request
func validateToken(c *fiber.Ctx, cfg Config, expectedToken string) error {
	receivedToken := extractToken(c, cfg)
	if receivedToken == "" {
		return ErrTokenMissing
	}

	if cfg.Storage != nil {
		if expectedToken == "" {
			return ErrTokenMismatch
		}
		if subtle.ConstantTimeCompare([]byte(receivedToken), []byte(expectedToken)) != 1 {
			return ErrTokenMismatch
		}
		return nil
	}

	return validateStatelessToken(c, cfg, receivedToken)
}

// generateToken generates a cryptographically secure random token
func generateToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func generateStatelessToken(c *fiber.Ctx, cfg Config) (string, error) {
	if len(cfg.SecureKey) == 0 {
		return "", ErrSecureKeyMissing
	}

	nonce := make([]byte, cfg.TokenLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	timestamp := time.Now().UTC().Unix()
	// the session key may be an IPv6 address, so it is hex encoded to keep
	// ':' as the only separator
	payload := fmt.Sprintf("%d:%s:%s", timestamp, hex.EncodeToString(nonce), hex.EncodeToString([]byte(getSessionKey(c))))

	token := payload + ":" + hex.EncodeToString(sign(cfg.SecureKey, payload))
	return base64.RawURLEncoding.EncodeToString([]byte(token)), nil
}

func validateStatelessToken(c *fiber.Ctx, cfg Config, token string) error {
	if len(cfg.SecureKey) == 0 {
		return ErrSecureKeyMissing
	}

	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ErrTokenMismatch
	}

	parts := strings.Split(string(decoded), ":")
	if len(parts) != 4 {
		return ErrTokenMismatch
	}

	timestampStr, nonceHex, sessionFromToken, signatureHex := parts[0], parts[1], parts[2], parts[3]

	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return ErrTokenMismatch
	}

	if _, err := hex.DecodeString(nonceHex); err != nil {
		return ErrTokenMismatch
	}

	sessionKey, err := hex.DecodeString(sessionFromToken)
	if err != nil {
		return ErrTokenMismatch
	}

	signature, err := hex.DecodeString(signatureHex)
	if err != nil {
		return ErrTokenMismatch
	}

	if !hmac.Equal(signature, sign(cfg.SecureKey, strings.Join(parts[:3], ":"))) {
		return ErrTokenMismatch
	}

	if subtle.ConstantTimeCompare(sessionKey, []byte(getSessionKey(c))) != 1 {
		return ErrTokenMismatch
	}

	if cfg.Expiration > 0 {
		expiresAt := time.Unix(timestamp, 0).Add(cfg.Expiration)
		if time.Now().UTC().After(expiresAt) {
			return ErrTokenExpired
		}
	}

	return nil
}

func sign(key []byte, payload string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}

func extractToken(c *fiber.Ctx, cfg Config) string {
	for _, extractor := range getExtractors(cfg.TokenLookup, cfg.FormFieldName, cfg.HeaderName) {
		if token := extractor(c); token != "" {
			return token
		}
	}
	return ""
}

// getSessionKey binds tokens to the session id when one is known, else the client IP.
func getSessionKey(c *fiber.Ctx) string {
	if id, ok := c.Locals(SessionKeyLocal).(string); ok && id != "" {
		return "csrf_" + id
	}
	return "csrf_ip_" + c.IP()
}

// getExtractors returns token extractors based on configuration
func getExtractors(tokenLookup, formField, header string) []TokenExtractor {
	if tokenLookup == "" {
		return []TokenExtractor{
			extractorFromForm(formField),
			extractorFromHeader(header),
		}
	}

	var extractors []TokenExtractor
	for _, part := range strings.Split(tokenLookup, ",") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "form:"):
			extractors = append(extractors, extractorFromForm(strings.TrimPrefix(part, "form:")))
		case strings.HasPrefix(part, "header:"):
			extractors = append(extractors, extractorFromHeader(strings.TrimPrefix(part, "header:")))
		}
	}
	return extractors
}

func extractorFromForm(fieldName string) TokenExtractor {
	return func(c *fiber.Ctx) string {
		return c.FormValue(fieldName)
	}
}

func extractorFromHeader(headerName string) TokenExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}

// configDefault returns a default config
func configDefault(config ...Config) Config {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.TokenLength == 0 {
		cfg.TokenLength = DefaultTokenLength
	}
	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}
	if cfg.FormFieldName == "" {
		cfg.FormFieldName = DefaultFormFieldName
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}
	if cfg.SafeMethods == nil {
		cfg.SafeMethods = []string{fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions, fiber.MethodTrace}
	}
	if cfg.Expiration == 0 {
		cfg.Expiration = 24 * time.Hour
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}

	cfg.SecureKey = initializeSecureKey(cfg.SecureKey, cfg.Storage)
	return cfg
}

func defaultErrorHandler(c *fiber.Ctx, err error) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return c.Status(richErr.Code).SendString(richErr.Message)
	}
	return c.Status(fiber.StatusInternalServerError).SendString("CSRF validation error")
}

func initializeSecureKey(current []byte, storage fiber.Storage) []byte {
	if storage != nil {
		return current
	}
	if len(current) > 0 {
		if len(current) < 32 {
			panic(fmt.Errorf("csrf: secure key must be at least 32 bytes, got %d", len(current)))
		}
		return current
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		panic(fmt.Errorf("csrf: unable to initialize secure key: %w", err))
	}
	return key
}

// TemplateHelpers returns the csrf_* view variables for the current request.
func TemplateHelpers(c *fiber.Ctx, tokenKey string) fiber.Map {
	if tokenKey == "" {
		tokenKey = DefaultContextKey
	}

	token, _ := c.Locals(tokenKey).(string)

	fieldName := DefaultFormFieldName
	if val, ok := c.Locals(tokenKey + "_field").(string); ok && val != "" {
		fieldName = val
	}

	headerName := DefaultHeaderName
	if val, ok := c.Locals(tokenKey + "_header").(string); ok && val != "" {
		headerName = val
	}

	return fiber.Map{
		"csrf_token":       token,
		"csrf_field":       `<input type="hidden" name="` + fieldName + `" value="` + token + `">`,
		"csrf_meta":        `<meta name="csrf-token" content="` + token + `">`,
		"csrf_header_name": headerName,
	}
}
