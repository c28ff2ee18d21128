package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"aerobaza.org/internal/audit"
	"aerobaza.org/internal/auth"
	"aerobaza.org/internal/billing"
	"aerobaza.org/internal/obs"
	"aerobaza.org/internal/ratelimit"
)

const (
	pinRateWindow = time.Minute
	pinRateMax    = 10
)

type pinRequest struct {
	PIN string `json:"pin"`
}

func (a *API) handleBillingVerifyPIN(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	// Session + role first; the PIN is never inspected for callers outside
	// ADMIN/NAPLATE.
	identity, err := a.guard.RequireNaplate(r)
	if err != nil {
		writeGuardError(w, r, err)
		return
	}

	ip := ratelimit.ClientIP(r)
	if d := a.limiter.Check("naplate-pin:"+ip, pinRateWindow, pinRateMax); !d.Allowed {
		writeError(w, r, http.StatusTooManyRequests, "Previše pokušaja. Pokušajte ponovo kasnije.")
		return
	}

	var req pinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Neispravan zahtjev")
		return
	}
	if req.PIN == "" {
		writeError(w, r, http.StatusBadRequest, "PIN je obavezan")
		return
	}

	token, expiresAt, err := a.pins.Verify(r.Context(), identity, req.PIN)
	if err != nil {
		var locked *auth.PINLockedError
		switch {
		case errors.As(err, &locked):
			minutes := int(math.Ceil(time.Until(locked.Until).Minutes()))
			if minutes < 1 {
				minutes = 1
			}
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":            "Previše neuspješnih pokušaja. Pokušajte ponovo kasnije.",
				"rateLimited":      true,
				"remainingMinutes": minutes,
				"request_id":       requestIDFrom(r.Context()),
			})
		case errors.Is(err, auth.ErrPINNotSet):
			writeError(w, r, http.StatusBadRequest, "PIN nije postavljen za ovog korisnika")
		case errors.Is(err, auth.ErrInvalidPIN):
			obs.LogRequest(map[string]any{
				"ts":    time.Now().UTC().Format(time.RFC3339Nano),
				"level": "warn",
				"msg":   "billing_pin_failed",
				"user":  identity.Email,
				"role":  identity.Role,
				"ip":    ip,
			})
			writeError(w, r, http.StatusUnauthorized, "Neispravan PIN")
		default:
			writeGuardError(w, r, err)
		}
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.StepUpCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleBillingSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, err := a.billingGuard.Require(r); err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, auth.ErrForbidden) || errors.Is(err, auth.ErrStepUpRequired) {
			status = http.StatusForbidden
		}
		writeJSON(w, status, map[string]any{"authorized": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authorized": true})
}

type reportImportRequest struct {
	Type        string          `json:"type"`
	PeriodStart string          `json:"periodStart"`
	Data        json.RawMessage `json:"data"`
}

type reportPayload struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	PeriodStart string          `json:"periodStart"`
	Data        json.RawMessage `json:"data,omitempty"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func toReportPayload(report *billing.Report, includeData bool) reportPayload {
	p := reportPayload{
		ID:          report.ID,
		Type:        report.Type,
		PeriodStart: report.PeriodStart.Format("2006-01-02"),
		UpdatedAt:   report.UpdatedAt,
	}
	if includeData {
		p.Data = report.Data
	}
	return p
}

func (a *API) handleBillingReports(w http.ResponseWriter, r *http.Request) {
	identity, err := a.billingGuard.Require(r)
	if err != nil {
		writeGuardError(w, r, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		reports, err := a.reports.List(r.Context(), r.URL.Query().Get("type"), queryInt(r, "limit"))
		if err != nil {
			if errors.Is(err, billing.ErrInvalidType) {
				writeError(w, r, http.StatusBadRequest, "Neispravan tip izvještaja")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "Greška na serveru")
			return
		}
		payload := make([]reportPayload, 0, len(reports))
		for _, report := range reports {
			payload = append(payload, toReportPayload(report, false))
		}
		writeJSON(w, http.StatusOK, map[string]any{"reports": payload})

	case http.MethodPost:
		var req reportImportRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "Neispravan zahtjev")
			return
		}
		report, err := a.reports.Import(r.Context(), req.Type, req.PeriodStart, req.Data)
		if err != nil {
			switch {
			case errors.Is(err, billing.ErrInvalidType),
				errors.Is(err, billing.ErrInvalidPeriod),
				errors.Is(err, billing.ErrEmptyData):
				writeError(w, r, http.StatusBadRequest, "Neispravan izvještaj")
			default:
				writeError(w, r, http.StatusInternalServerError, "Greška pri uvozu izvještaja")
			}
			return
		}

		a.audit.Record(r.Context(), audit.Entry{
			UserID:     identity.ID,
			Action:     "billing.import",
			EntityType: "BillingReport",
			EntityID:   report.ID,
			Metadata: map[string]any{
				"type":        report.Type,
				"periodStart": report.PeriodStart.Format("2006-01-02"),
			},
		}, r)

		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"report":  toReportPayload(report, false),
		})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleBillingReportDaily(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, err := a.billingGuard.Require(r); err != nil {
		writeGuardError(w, r, err)
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, r, http.StatusBadRequest, "Nedostaje datum")
		return
	}
	report, err := a.reports.Daily(r.Context(), date)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrInvalidPeriod):
			writeError(w, r, http.StatusBadRequest, "Neispravan datum")
		case errors.Is(err, billing.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "Izvještaj nije pronađen")
		default:
			writeError(w, r, http.StatusInternalServerError, "Greška na serveru")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": toReportPayload(report, true)})
}

func queryInt(r *http.Request, key string) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0
	}
	var n int
	for _, c := range v {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
		if n > 1000 {
			return 0
		}
	}
	return n
}
