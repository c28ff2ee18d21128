package auth

import "net/http"

// BillingGuard protects the billing/accounting area. A valid session with the
// right role is not enough: the caller must also present a fresh, narrowly
// scoped step-up token bound to the same user, so a stolen session cookie
// alone cannot reach financial data.
type BillingGuard struct {
	guard *Guard
	codec *StepUpCodec
}

// NewBillingGuard composes the session guard with the step-up codec.
func NewBillingGuard(guard *Guard, codec *StepUpCodec) *BillingGuard {
	return &BillingGuard{guard: guard, codec: codec}
}

// Require checks preconditions in order and fails on the first violation:
// session guard ADMIN|NAPLATE (includes the live active re-check), step-up
// cookie present and verified, step-up subject equal to the session identity.
func (b *BillingGuard) Require(r *http.Request) (Identity, error) {
	identity, err := b.guard.RequireNaplate(r)
	if err != nil {
		return Identity{}, err
	}

	cookie, err := r.Cookie(StepUpCookie)
	if err != nil || cookie.Value == "" {
		return Identity{}, ErrStepUpRequired
	}

	claims, err := b.codec.Verify(cookie.Value)
	if err != nil {
		return Identity{}, ErrStepUpRequired
	}
	if claims.Subject != identity.ID {
		return Identity{}, ErrStepUpRequired
	}
	return identity, nil
}
