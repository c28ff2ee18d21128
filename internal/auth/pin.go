package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	maxPINFailures = 5
	pinLockout     = 10 * time.Minute
)

// PINLockedError reports that the billing PIN is locked after repeated
// failures.
type PINLockedError struct {
	Until time.Time
}

func (e *PINLockedError) Error() string {
	return fmt.Sprintf("auth: billing pin locked until %s", e.Until.Format(time.RFC3339))
}

// PINService runs the billing PIN challenge and issues the step-up
// credential. Failed attempts are persisted per user; five failures lock the
// challenge for ten minutes.
type PINService struct {
	store CredentialStore
	codec *StepUpCodec
	now   func() time.Time
}

// NewPINService wires the step-up issuance flow.
func NewPINService(store CredentialStore, codec *StepUpCodec) *PINService {
	return &PINService{store: store, codec: codec, now: time.Now}
}

// Verify checks the PIN for an already-authorized identity and, on success,
// returns a signed step-up token bound to that user.
func (s *PINService) Verify(ctx context.Context, identity Identity, pin string) (string, time.Time, error) {
	if !validPIN(pin) {
		return "", time.Time{}, ErrInvalidPIN
	}

	user, err := s.store.FindUserByID(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, ErrUnauthenticated
		}
		return "", time.Time{}, ErrStoreUnavailable
	}
	if !user.IsActive {
		return "", time.Time{}, ErrUnauthenticated
	}
	if user.BillingPINHash == "" {
		return "", time.Time{}, ErrPINNotSet
	}
	if until := user.BillingPINLockedUntil; until != nil && until.After(s.now()) {
		return "", time.Time{}, &PINLockedError{Until: *until}
	}

	if bcrypt.CompareHashAndPassword([]byte(user.BillingPINHash), []byte(pin)) != nil {
		failures := user.BillingPINFailedAttempts + 1
		var lockedUntil *time.Time
		if failures >= maxPINFailures {
			t := s.now().Add(pinLockout)
			lockedUntil = &t
		}
		_ = s.store.SetBillingPINState(ctx, user.ID, failures, lockedUntil)
		if lockedUntil != nil {
			return "", time.Time{}, &PINLockedError{Until: *lockedUntil}
		}
		return "", time.Time{}, ErrInvalidPIN
	}

	if err := s.store.SetBillingPINState(ctx, user.ID, 0, nil); err != nil {
		return "", time.Time{}, ErrStoreUnavailable
	}
	return s.codec.Issue(user.ID)
}

// HashPIN hashes a billing PIN for storage.
func HashPIN(pin string) (string, error) {
	if !validPIN(pin) {
		return "", ErrInvalidPIN
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// validPIN accepts 4 to 6 digits.
func validPIN(pin string) bool {
	if len(pin) < 4 || len(pin) > 6 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
