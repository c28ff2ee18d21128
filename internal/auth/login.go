package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	maxLoginFailures = 5
	loginCooldown    = 15 * time.Minute

	// Attempts older than a day carry no signal and are reaped on write.
	attemptRetention = 24 * time.Hour
)

// ThrottledError reports that an email accumulated too many failed logins.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("auth: too many failed attempts, retry after %s", e.RetryAfter)
}

// LoginResult is a successful authentication outcome.
type LoginResult struct {
	Identity  Identity
	Token     string
	ExpiresAt time.Time
}

// Authenticator verifies primary credentials and issues session tokens.
type Authenticator struct {
	store    CredentialStore
	attempts LoginAttemptStore
	codec    *SessionCodec
	now      func() time.Time
}

// NewAuthenticator wires the login flow.
func NewAuthenticator(store CredentialStore, attempts LoginAttemptStore, codec *SessionCodec) *Authenticator {
	return &Authenticator{store: store, attempts: attempts, codec: codec, now: time.Now}
}

// Login authenticates an email/password pair. Failed attempts are persisted
// per email; once maxLoginFailures accumulate within the cooldown window the
// account is throttled until the oldest failure ages out.
func (a *Authenticator) Login(ctx context.Context, email, password, ip string) (LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return LoginResult{}, ErrUnauthenticated
	}

	if retry, throttled, err := a.throttle(ctx, email); err != nil {
		return LoginResult{}, err
	} else if throttled {
		_ = a.attempts.RecordLoginAttempt(ctx, email, ip, false)
		return LoginResult{}, &ThrottledError{RetryAfter: retry}
	}

	user, err := a.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, a.fail(ctx, email, ip)
		}
		return LoginResult{}, ErrStoreUnavailable
	}
	if !user.IsActive {
		return LoginResult{}, a.fail(ctx, email, ip)
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return LoginResult{}, a.fail(ctx, email, ip)
	}

	_ = a.attempts.RecordLoginAttempt(ctx, email, ip, true)
	_ = a.attempts.ClearFailures(ctx, email)
	_ = a.attempts.PurgeAttemptsBefore(ctx, a.now().Add(-attemptRetention))

	token, expiresAt, err := a.codec.Issue(user.Identity())
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Identity: user.Identity(), Token: token, ExpiresAt: expiresAt}, nil
}

// ChangePassword verifies the current password before storing a new hash.
func (a *Authenticator) ChangePassword(ctx context.Context, userID, current, updated string) error {
	if len(updated) < 8 {
		return errors.New("auth: new password must have at least 8 characters")
	}
	user, err := a.store.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUnauthenticated
		}
		return ErrStoreUnavailable
	}
	if !user.IsActive {
		return ErrUnauthenticated
	}
	if err := VerifyPassword(user.PasswordHash, current); err != nil {
		return ErrInvalidCredential
	}
	hash, err := HashPassword(updated)
	if err != nil {
		return err
	}
	return a.store.UpdatePassword(ctx, userID, hash)
}

func (a *Authenticator) throttle(ctx context.Context, email string) (time.Duration, bool, error) {
	since := a.now().Add(-loginCooldown)
	failures, err := a.attempts.CountRecentFailures(ctx, email, since)
	if err != nil {
		return 0, false, ErrStoreUnavailable
	}
	if failures < maxLoginFailures {
		return 0, false, nil
	}
	oldest, err := a.attempts.OldestRecentFailure(ctx, email, since)
	if err != nil {
		return 0, false, ErrStoreUnavailable
	}
	retry := loginCooldown - a.now().Sub(oldest)
	if retry < 0 {
		retry = 0
	}
	return retry, true, nil
}

// fail records the attempt and reports a uniform credential failure so the
// response does not reveal whether the account exists or is deactivated.
func (a *Authenticator) fail(ctx context.Context, email, ip string) error {
	_ = a.attempts.RecordLoginAttempt(ctx, email, ip, false)
	return ErrUnauthenticated
}
