package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "aerobaza"

	defaultSessionTTL = 7 * 24 * time.Hour
	defaultStepUpTTL  = 30 * time.Minute

	stepUpTokenType = "billing-pin"
)

// SessionClaims binds the primary identity to a signed session token.
type SessionClaims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  Role   `json:"role"`
	jwt.RegisteredClaims
}

// StepUpClaims binds the narrower billing step-up token to a user id.
type StepUpClaims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

type codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// CodecOption configures a codec instance.
type CodecOption func(*codec)

// WithTTL overrides the default token lifetime.
func WithTTL(ttl time.Duration) CodecOption {
	return func(c *codec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) CodecOption {
	return func(c *codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

func newCodec(secret string, defaultTTL time.Duration, opts ...CodecOption) (codec, error) {
	if strings.TrimSpace(secret) == "" {
		return codec{}, errors.New("auth: signing secret is not configured")
	}
	c := codec{secret: []byte(secret), ttl: defaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(&c)
	}
	return c, nil
}

func (c codec) parser() *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
	)
}

func (c codec) keyFunc(t *jwt.Token) (any, error) {
	return c.secret, nil
}

// SessionCodec signs and verifies session tokens. It holds its own secret so
// rotation or compromise of the step-up key never affects sessions.
type SessionCodec struct {
	codec
}

// NewSessionCodec builds the primary credential codec. Default TTL is 7 days.
func NewSessionCodec(secret string, opts ...CodecOption) (*SessionCodec, error) {
	c, err := newCodec(secret, defaultSessionTTL, opts...)
	if err != nil {
		return nil, err
	}
	return &SessionCodec{codec: c}, nil
}

// Issue signs a session token for the given identity.
func (c *SessionCodec) Issue(identity Identity) (string, time.Time, error) {
	if strings.TrimSpace(identity.ID) == "" {
		return "", time.Time{}, errors.New("auth: identity id is required")
	}
	now := c.now().UTC()
	expiresAt := now.Add(c.ttl)
	claims := SessionClaims{
		Email: identity.Email,
		Name:  identity.Name,
		Role:  identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks signature, structure and expiry. It fails with
// ErrInvalidCredential uniformly so callers cannot distinguish a forged token
// from an expired one.
func (c *SessionCodec) Verify(token string) (*SessionClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidCredential
	}
	claims := &SessionClaims{}
	parsed, err := c.parser().ParseWithClaims(token, claims, c.keyFunc)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidCredential
	}
	if strings.TrimSpace(claims.Subject) == "" || !claims.Role.Valid() {
		return nil, ErrInvalidCredential
	}
	return claims, nil
}

// StepUpCodec signs and verifies billing step-up tokens. Independent secret
// and a much shorter lifetime than the session.
type StepUpCodec struct {
	codec
}

// NewStepUpCodec builds the billing credential codec. Default TTL is 30 minutes.
func NewStepUpCodec(secret string, opts ...CodecOption) (*StepUpCodec, error) {
	c, err := newCodec(secret, defaultStepUpTTL, opts...)
	if err != nil {
		return nil, err
	}
	return &StepUpCodec{codec: c}, nil
}

// Issue signs a step-up token bound to the given user id.
func (c *StepUpCodec) Issue(userID string) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, errors.New("auth: user id is required")
	}
	now := c.now().UTC()
	expiresAt := now.Add(c.ttl)
	claims := StepUpClaims{
		TokenType: stepUpTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks the step-up token. Same uniform failure as the session codec.
func (c *StepUpCodec) Verify(token string) (*StepUpClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidCredential
	}
	claims := &StepUpClaims{}
	parsed, err := c.parser().ParseWithClaims(token, claims, c.keyFunc)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidCredential
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.TokenType != stepUpTokenType {
		return nil, ErrInvalidCredential
	}
	return claims, nil
}
