package accounts

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

const (
	claimIssuedAt = "iat"
	claimTokenID  = "jti"
)

var reservedClaims = map[string]bool{
	claimIssuedAt: true,
	claimTokenID:  true,
	"exp":         true,
	"nbf":         true,
	"iss":         true,
	"aud":         true,
	"sub":         true,
}

// DecodedToken is the result of a successful decode. Claims never include
// the reserved timing and id claims.
type DecodedToken struct {
	Claims   map[string]any
	IssuedAt time.Time
	ID       string
}

// Int returns an integer claim.
func (d *DecodedToken) Int(key string) (int, bool) {
	if d == nil {
		return 0, false
	}
	return claimInt(d.Claims[key])
}

// String returns a string claim.
func (d *DecodedToken) String(key string) (string, bool) {
	if d == nil {
		return "", false
	}
	s, ok := d.Claims[key].(string)
	return s, ok
}

// TokenCodec signs claim maps into URL-safe compact tokens and verifies
// them. A codec is bound to one namespace: its signing key is derived from
// the shared secret and the namespace salt, so a token minted by one codec
// fails signature verification in any other.
type TokenCodec struct {
	namespace string
	key       []byte
	maxAge    time.Duration
	now       func() time.Time
	newID     func() string
}

// TokenCodecOption configures a TokenCodec.
type TokenCodecOption func(*TokenCodec)

// WithCodecClock overrides the clock used to stamp and age tokens.
func WithCodecClock(now func() time.Time) TokenCodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCodecIDGenerator overrides the token id generator.
func WithCodecIDGenerator(fn func() string) TokenCodecOption {
	return func(c *TokenCodec) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// NewTokenCodec creates a codec for namespace. A zero maxAge disables expiry.
func NewTokenCodec(secret, namespace string, maxAge time.Duration, opts ...TokenCodecOption) (*TokenCodec, error) {
	if secret == "" {
		return nil, goerrors.New("token secret is required", goerrors.CategoryBadInput)
	}
	if namespace == "" {
		return nil, goerrors.New("token namespace is required", goerrors.CategoryBadInput)
	}
	if maxAge < 0 {
		return nil, goerrors.New("token max age must be non-negative", goerrors.CategoryBadInput)
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), []byte(namespace), []byte("accounts-web/token")), key); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to derive token key")
	}

	c := &TokenCodec{
		namespace: namespace,
		key:       key,
		maxAge:    maxAge,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Namespace returns the salt the codec signs under.
func (c *TokenCodec) Namespace() string {
	return c.namespace
}

// MaxAge returns the token lifetime.
func (c *TokenCodec) MaxAge() time.Duration {
	return c.maxAge
}

// Encode signs claims. Each call embeds the current time and a fresh id,
// so identical claims never produce identical tokens.
//
// Claims travel as JSON. Decode returns whole numbers as int and other
// numbers as float64, so int64 and integral float64 values come back as int.
// Strings, bools, nil, int, []any and map[string]any round trip unchanged.
func (c *TokenCodec) Encode(claims map[string]any) (string, error) {
	payload := jwt.MapClaims{}
	for k, v := range claims {
		if reservedClaims[k] {
			return "", goerrors.New("claim name is reserved", goerrors.CategoryBadInput).
				WithMetadata(map[string]any{"claim": k})
		}
		payload[k] = v
	}
	payload[claimIssuedAt] = c.now().Unix()
	payload[claimTokenID] = c.newID()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(c.key)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign token")
	}
	return signed, nil
}

// Decode verifies token. When the token is older than the max age it
// returns both the decoded token and ErrTokenExpired, so callers can still
// read claims to render the expired state.
func (c *TokenCodec) Decode(token string) (*DecodedToken, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
		jwt.WithJSONNumber(),
	)

	parsed, err := parser.Parse(token, func(*jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, ErrTokenSignatureInvalid
		}
		return nil, ErrTokenMalformed
	}

	raw, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenMalformed
	}

	iat, ok := raw[claimIssuedAt].(json.Number)
	if !ok {
		return nil, ErrTokenMalformed
	}
	issuedSec, err := iat.Int64()
	if err != nil {
		return nil, ErrTokenMalformed
	}

	decoded := &DecodedToken{
		Claims:   make(map[string]any, len(raw)),
		IssuedAt: time.Unix(issuedSec, 0),
	}
	decoded.ID, _ = raw[claimTokenID].(string)

	for k, v := range raw {
		if reservedClaims[k] {
			continue
		}
		decoded.Claims[k] = normalizeClaim(v)
	}

	if c.maxAge > 0 && c.now().Sub(decoded.IssuedAt) > c.maxAge {
		return decoded, ErrTokenExpired
	}

	return decoded, nil
}

// normalizeClaim turns JSON numbers back into int or float64 values.
func normalizeClaim(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = normalizeClaim(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = normalizeClaim(inner)
		}
		return out
	default:
		return v
	}
}
