package auth

import (
	"context"
	"time"
)

// UserStore is the persistence collaborator consulted by every guard. The
// live record, not the token, decides what a caller may do right now.
type UserStore interface {
	FindUserByID(ctx context.Context, id string) (*User, error)
}

// CredentialStore extends UserStore with the operations the login and PIN
// flows need.
type CredentialStore interface {
	UserStore
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	SetBillingPINState(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error
}

// LoginAttemptStore records login outcomes for the per-email throttle.
type LoginAttemptStore interface {
	RecordLoginAttempt(ctx context.Context, email, ip string, success bool) error
	CountRecentFailures(ctx context.Context, email string, since time.Time) (int, error)
	OldestRecentFailure(ctx context.Context, email string, since time.Time) (time.Time, error)
	ClearFailures(ctx context.Context, email string) error
	PurgeAttemptsBefore(ctx context.Context, cutoff time.Time) error
}
