package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"aerobaza.org/internal/auth"
	"aerobaza.org/internal/obs"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, map[string]any{
		"error":      msg,
		"request_id": requestIDFrom(r.Context()),
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	for _, m := range allowed {
		w.Header().Add("Allow", m)
	}
	writeError(w, r, http.StatusMethodNotAllowed, "metoda nije dozvoljena")
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// writeGuardError maps the guard taxonomy onto stable status codes and short
// localized messages. Diagnostic detail never reaches the caller; a store
// outage denies exactly like a missing credential (fail closed).
func writeGuardError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrStepUpRequired):
		obs.AuthDenied("step_up")
		writeError(w, r, http.StatusForbidden, "Potrebna je PIN verifikacija")
	case errors.Is(err, auth.ErrForbidden):
		obs.AuthDenied("forbidden")
		writeError(w, r, http.StatusForbidden, "Nemate dozvolu za pristup")
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidCredential):
		obs.AuthDenied("unauthenticated")
		writeError(w, r, http.StatusUnauthorized, "Niste autentifikovani")
	case errors.Is(err, auth.ErrStoreUnavailable):
		obs.AuthDenied("unauthenticated")
		writeError(w, r, http.StatusUnauthorized, "Niste autentifikovani")
	default:
		writeError(w, r, http.StatusInternalServerError, "Greška na serveru")
	}
}
