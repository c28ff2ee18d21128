// Package csrf implements the stateless double-submit defense: a token issued
// at session start must be echoed byte-for-byte in a request header on every
// state-changing call. No server-side storage beyond the cookie itself.
package csrf

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/google/uuid"
)

const (
	// CookieName holds the issued token; readable by the client so it can be
	// echoed into the header (deliberately not HttpOnly).
	CookieName = "csrf-token"
	// HeaderName must carry the identical value on mutating requests.
	HeaderName = "x-csrf-token"
)

// ErrRejected reports a missing or mismatched token pair.
var ErrRejected = errors.New("csrf: token missing or mismatched")

// NewToken returns a fresh token value.
func NewToken() string {
	return uuid.NewString()
}

// SetCookie issues the double-submit cookie. Called at login.
func SetCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie removes the cookie at logout.
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Check validates the double-submit pair. Read-only methods always pass;
// for every other method both values must be present and equal.
func Check(r *http.Request) error {
	if SafeMethod(r.Method) {
		return nil
	}
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return ErrRejected
	}
	header := r.Header.Get(HeaderName)
	if header == "" {
		return ErrRejected
	}
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
		return ErrRejected
	}
	return nil
}

// SafeMethod reports whether the method is in the read-only set.
func SafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
