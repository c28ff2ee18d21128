package httpapi

import (
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"aerobaza.org/internal/audit"
	"aerobaza.org/internal/auth"
	"aerobaza.org/internal/csrf"
	"aerobaza.org/internal/ratelimit"
)

// Stricter per-IP window for credential endpoints, on top of the global one.
const (
	loginRateWindow = time.Minute
	loginRateMax    = 10
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userPayload struct {
	ID    string    `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name,omitempty"`
	Role  auth.Role `json:"role"`
}

func toUserPayload(identity auth.Identity) userPayload {
	return userPayload{ID: identity.ID, Email: identity.Email, Name: identity.Name, Role: identity.Role}
}

func (a *API) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	ip := ratelimit.ClientIP(r)
	if d := a.limiter.Check("login:"+ip, loginRateWindow, loginRateMax); !d.Allowed {
		writeError(w, r, http.StatusTooManyRequests, "Previše pokušaja. Pokušajte ponovo kasnije.")
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Neispravan zahtjev")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "Email i lozinka su obavezni")
		return
	}

	result, err := a.authn.Login(r.Context(), req.Email, req.Password, ip)
	if err != nil {
		var throttled *auth.ThrottledError
		switch {
		case errors.As(err, &throttled):
			minutes := int(math.Ceil(throttled.RetryAfter.Minutes()))
			if minutes < 1 {
				minutes = 1
			}
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":            "Previše neuspješnih pokušaja. Molimo pokušajte ponovo kasnije.",
				"rateLimited":      true,
				"remainingMinutes": minutes,
				"request_id":       requestIDFrom(r.Context()),
			})
		case errors.Is(err, auth.ErrStoreUnavailable):
			writeError(w, r, http.StatusUnauthorized, "Niste autentifikovani")
		default:
			writeError(w, r, http.StatusUnauthorized, "Neispravni pristupni podaci")
		}
		return
	}

	a.setSessionCookie(w, result.Token, result.ExpiresAt)
	csrf.SetCookie(w, csrf.NewToken(), a.secureCookies)

	a.audit.Record(r.Context(), audit.Entry{
		UserID:     result.Identity.ID,
		Action:     "auth.login",
		EntityType: "User",
		EntityID:   result.Identity.ID,
		Metadata:   map[string]any{"email": result.Identity.Email},
	}, r)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    toUserPayload(result.Identity),
	})
}

func (a *API) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	// Cookies are cleared even when the session no longer verifies; the
	// audit entry needs a user and is written only for live sessions.
	identity, err := a.guard.RequireAuthenticated(r)

	a.clearSessionCookies(w)
	csrf.ClearCookie(w, a.secureCookies)

	if err == nil {
		a.audit.Record(r.Context(), audit.Entry{
			UserID:     identity.ID,
			Action:     "auth.logout",
			EntityType: "User",
			EntityID:   identity.ID,
		}, r)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleAuthSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identity, err := a.guard.RequireAuthenticated(r)
	if err != nil {
		writeGuardError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": toUserPayload(identity)})
}

type passwordChangeRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (a *API) handleProfilePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	identity, err := a.guard.RequireAuthenticated(r)
	if err != nil {
		writeGuardError(w, r, err)
		return
	}

	var req passwordChangeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Neispravan zahtjev")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, r, http.StatusBadRequest, "Trenutna i nova lozinka su obavezne")
		return
	}

	if err := a.authn.ChangePassword(r.Context(), identity.ID, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredential):
			writeError(w, r, http.StatusUnauthorized, "Trenutna lozinka nije ispravna")
		case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrStoreUnavailable):
			writeGuardError(w, r, err)
		default:
			writeError(w, r, http.StatusBadRequest, "Lozinka mora imati najmanje 8 karaktera")
		}
		return
	}

	a.audit.Record(r.Context(), audit.Entry{
		UserID:     identity.ID,
		Action:     "user.password_change",
		EntityType: "User",
		EntityID:   identity.ID,
	}, r)

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
	})
}

func (a *API) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{auth.SessionCookie, auth.StepUpCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			Secure:   a.secureCookies,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   -1,
		})
	}
}
