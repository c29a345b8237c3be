// Package auth manages the authenticated session against the platform.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/dataloop-tools/dataloop-go/internal/https"
	"github.com/dataloop-tools/dataloop-go/logger"
)

// expiryLeeway treats tokens that expire within this window as already expired.
const expiryLeeway = 30 * time.Second

// Options configures a Session.
type Options struct {
	// Email and Password are machine-to-machine credentials.
	Email    string
	Password string

	// Token is an existing access token. When it is still valid, Open skips login.
	Token string

	// Client is the API client the session authenticates. Required.
	Client *https.Client

	// BackOff overrides the login retry policy.
	BackOff backoff.BackOff

	Logger logger.Logger

	// now is overridable in tests.
	now func() time.Time
}

// Session is a scoped login. Close logs out and must be called once the
// caller is done, typically with defer right after Open.
type Session struct {
	mu        sync.Mutex
	client    *https.Client
	expiresAt time.Time
	closed    bool
	logger    logger.Logger
	now       func() time.Time
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Open returns an authenticated session. If opts.Token is present and not
// expired it is reused, otherwise Open logs in with the m2m credentials,
// retrying network and 5xx failures.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("API client is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	now := opts.now
	if now == nil {
		now = time.Now
	}

	s := &Session{
		client: opts.Client,
		logger: log,
		now:    now,
	}

	if opts.Token != "" {
		s.client.SetToken(opts.Token)
		s.expiresAt = tokenExpiry(opts.Token)
		if !s.TokenExpired() {
			log.Debug("reusing existing token", "expires_at", s.expiresAt)
			return s, nil
		}
		log.Debug("existing token expired, logging in")
	}

	if opts.Email == "" || opts.Password == "" {
		return nil, fmt.Errorf("email and password are required")
	}

	b := opts.BackOff
	if b == nil {
		eb := backoff.NewExponentialBackOff()
		eb.MaxElapsedTime = 2 * time.Minute
		b = eb
	}

	var result *loginResponse
	op := func() error {
		r, err := s.login(ctx, opts.Email, opts.Password)
		if err != nil {
			var perm *backoff.PermanentError
			if errors.As(err, &perm) {
				return err
			}
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("login failed, retrying", "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	s.client.SetToken(result.AccessToken)
	s.expiresAt = tokenExpiry(result.AccessToken)
	if s.expiresAt.IsZero() && result.ExpiresIn > 0 {
		s.expiresAt = now().Add(time.Duration(result.ExpiresIn) * time.Second)
	}
	log.Debug("login successful", "expires_at", s.expiresAt)
	return s, nil
}

func (s *Session) login(ctx context.Context, email, password string) (*loginResponse, error) {
	resp, err := s.client.POST(ctx, "/auth/login", loginRequest{Username: email, Password: password})
	if err != nil {
		if code := https.StatusCode(err); code == http.StatusUnauthorized || code == http.StatusForbidden {
			return nil, fmt.Errorf("invalid credentials for %s: %w", email, err)
		}
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var result loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("error decoding response: %w", err))
	}
	if result.AccessToken == "" {
		return nil, backoff.Permanent(fmt.Errorf("login response has no access token"))
	}
	return &result, nil
}

// TokenExpired reports whether the session has no usable token.
// A token with unknown expiry counts as valid.
func (s *Session) TokenExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.client.Token() == "" {
		return true
	}
	if s.expiresAt.IsZero() {
		return false
	}
	return !s.now().Add(expiryLeeway).Before(s.expiresAt)
}

// ExpiresAt returns the token expiry, or the zero time when unknown.
func (s *Session) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt
}

// Close logs out and drops the token. Calling Close more than once is a no-op.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	defer s.client.SetToken("")

	resp, err := s.client.POST(ctx, "/auth/logout", nil)
	if err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	_ = resp.Body.Close()
	s.logger.Debug("logged out")
	return nil
}

// tokenExpiry reads the exp claim of a JWT without verifying it. The platform
// verifies tokens; this is only used to skip a needless login.
func tokenExpiry(token string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

func retryable(err error) bool {
	code := https.StatusCode(err)
	if code == 0 {
		// transport failure
		return true
	}
	return code >= 500 || code == http.StatusTooManyRequests
}
