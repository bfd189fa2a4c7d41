// Package auth supplies bearer tokens for backend requests.
//
// Token storage is owned by the caller. A TokenSource only hands out the
// current token; sources that also implement Reauthenticator are asked to
// drop and refresh their token when the backend answers 401.
package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoRefresh is returned when an expired token cannot be refreshed.
var ErrNoRefresh = errors.New("auth: token expired and no refresh function configured")

// TokenSource returns the bearer token for the next request.
// An empty token means the request is sent without Authorization.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Reauthenticator is implemented by token sources that can recover from
// a rejected token.
type Reauthenticator interface {
	Reauthenticate(ctx context.Context) error
}

// Static is a fixed token.
type Static string

// Token returns the static token.
func (s Static) Token(context.Context) (string, error) { return string(s), nil }

// Func adapts a function to a TokenSource.
type Func func(ctx context.Context) (string, error)

// Token calls f.
func (f Func) Token(ctx context.Context) (string, error) { return f(ctx) }

// JWTSource caches a JWT and refreshes it once its exp claim has passed.
// The signature is not verified; the backend does that.
type JWTSource struct {
	mu      sync.Mutex
	token   string
	refresh Func
	leeway  time.Duration
	now     func() time.Time
}

// JWTOption configures a JWTSource.
type JWTOption func(*JWTSource)

// WithRefresh sets the function used to obtain a new token.
func WithRefresh(fn Func) JWTOption {
	return func(s *JWTSource) {
		s.refresh = fn
	}
}

// WithLeeway treats tokens as expired this long before their exp claim.
func WithLeeway(d time.Duration) JWTOption {
	return func(s *JWTSource) {
		s.leeway = d
	}
}

// NewJWTSource creates a source seeded with token, which may be empty.
func NewJWTSource(token string, opts ...JWTOption) *JWTSource {
	s := &JWTSource{
		token:  token,
		leeway: 30 * time.Second,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Token returns the cached token, refreshing it first when it is missing
// or expired.
func (s *JWTSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && !s.expired(s.token) {
		return s.token, nil
	}
	if s.refresh == nil {
		if s.token == "" {
			return "", nil
		}
		return "", ErrNoRefresh
	}
	return s.refreshLocked(ctx)
}

// Reauthenticate discards the cached token and fetches a new one.
func (s *JWTSource) Reauthenticate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	if s.refresh == nil {
		return ErrNoRefresh
	}
	_, err := s.refreshLocked(ctx)
	return err
}

func (s *JWTSource) refreshLocked(ctx context.Context) (string, error) {
	tok, err := s.refresh(ctx)
	if err != nil {
		return "", err
	}
	s.token = tok
	return tok, nil
}

// expired reports whether the token's exp claim is within the leeway.
// Opaque tokens and tokens without exp never expire.
func (s *JWTSource) expired(token string) bool {
	exp, ok := Expiry(token)
	if !ok {
		return false
	}
	return !s.now().Add(s.leeway).Before(exp)
}

// Expiry returns the exp claim of a JWT without verifying its signature.
func Expiry(token string) (time.Time, bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
