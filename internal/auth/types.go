package auth

import "time"

// Role is the closed set of business roles an account can hold. Authorization
// decisions branch on this enumeration only; unknown values never authorize.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleManager    Role = "MANAGER"
	RoleOperations Role = "OPERATIONS"
	RoleViewer     Role = "VIEWER"
	RoleSTW        Role = "STW"
	RoleNaplate    Role = "NAPLATE"
)

// Valid reports whether the role belongs to the closed set.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleOperations, RoleViewer, RoleSTW, RoleNaplate:
		return true
	}
	return false
}

// In reports whether the role appears in the given set.
func (r Role) In(roles ...Role) bool {
	for _, candidate := range roles {
		if r == candidate {
			return true
		}
	}
	return false
}

// User is the persisted account record. The store is the source of truth for
// role and active status; token claims are advisory only.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         Role
	PasswordHash string
	IsActive     bool

	// Billing PIN challenge state (step-up credential issuance).
	BillingPINHash           string
	BillingPINFailedAttempts int
	BillingPINLockedUntil    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity is the authenticated principal a guard hands to the request
// handler. It is always built from the persisted record, never from token
// claims, so role changes and deactivation bind on the next request.
type Identity struct {
	ID    string
	Email string
	Name  string
	Role  Role
}

// Identity projects the persisted record onto the request-scoped principal.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
}
