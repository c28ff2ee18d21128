package auth

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Cookie names shared between the guards and the HTTP layer.
const (
	SessionCookie = "auth-token"
	StepUpCookie  = "billing-pin-token"
)

const defaultLookupTimeout = 5 * time.Second

// Guard authorizes requests against a role set. Every check re-reads the user
// record: the token proves who the caller is, the store decides what they may
// do right now. A cryptographically valid token is therefore rejected as soon
// as the account is deactivated or loses the required role.
type Guard struct {
	codec   *SessionCodec
	store   UserStore
	timeout time.Duration
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithLookupTimeout bounds the store call so a slow store cannot hang the
// pipeline.
func WithLookupTimeout(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// NewGuard constructs the route guard layer.
func NewGuard(codec *SessionCodec, store UserStore, opts ...GuardOption) *Guard {
	g := &Guard{codec: codec, store: store, timeout: defaultLookupTimeout}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Require runs the guard algorithm. An empty role set means any authenticated
// user. Store failures deny (fail closed), never allow.
func (g *Guard) Require(r *http.Request, roles ...Role) (Identity, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return Identity{}, ErrUnauthenticated
	}

	claims, err := g.codec.Verify(cookie.Value)
	if err != nil {
		return Identity{}, ErrUnauthenticated
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.timeout)
	defer cancel()

	user, err := g.store.FindUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, ErrUnauthenticated
		}
		return Identity{}, ErrStoreUnavailable
	}
	if user == nil || !user.IsActive {
		return Identity{}, ErrUnauthenticated
	}

	// The predicate runs against the persisted role; the token's role claim
	// is advisory and may be stale.
	if len(roles) > 0 && !user.Role.In(roles...) {
		return Identity{}, ErrForbidden
	}
	return user.Identity(), nil
}

// RequireAuthenticated admits any active account.
func (g *Guard) RequireAuthenticated(r *http.Request) (Identity, error) {
	return g.Require(r)
}

// RequireAdmin admits ADMIN only.
func (g *Guard) RequireAdmin(r *http.Request) (Identity, error) {
	return g.Require(r, RoleAdmin)
}

// RequireNonOperations admits every business role except OPERATIONS.
func (g *Guard) RequireNonOperations(r *http.Request) (Identity, error) {
	return g.Require(r, RoleAdmin, RoleManager, RoleViewer)
}

// RequireSTW admits STW and ADMIN.
func (g *Guard) RequireSTW(r *http.Request) (Identity, error) {
	return g.Require(r, RoleSTW, RoleAdmin)
}

// RequireAdminOrManager admits ADMIN and MANAGER.
func (g *Guard) RequireAdminOrManager(r *http.Request) (Identity, error) {
	return g.Require(r, RoleAdmin, RoleManager)
}

// RequireAdminOrOperations admits ADMIN and OPERATIONS.
func (g *Guard) RequireAdminOrOperations(r *http.Request) (Identity, error) {
	return g.Require(r, RoleAdmin, RoleOperations)
}

// RequireNaplate admits ADMIN and NAPLATE. This is the session half of the
// billing step-up check; BillingGuard adds the second credential.
func (g *Guard) RequireNaplate(r *http.Request) (Identity, error) {
	return g.Require(r, RoleAdmin, RoleNaplate)
}
