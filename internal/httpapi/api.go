// Package httpapi is the HTTP ingress: it owns the middleware chain and the
// handlers that consume the guard verdicts.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"aerobaza.org/internal/audit"
	"aerobaza.org/internal/auth"
	"aerobaza.org/internal/billing"
	"aerobaza.org/internal/obs"
	"aerobaza.org/internal/ratelimit"
)

// ReadyProbe pings the backing store for /readyz.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps carries every collaborator the API needs; all decisions are made by
// the injected components, the handlers only translate verdicts to HTTP.
type Deps struct {
	Guard        *auth.Guard
	BillingGuard *auth.BillingGuard
	Authn        *auth.Authenticator
	PINs         *auth.PINService
	Reports      *billing.Service
	Audit        *audit.Writer
	Limiter      *ratelimit.Limiter

	ReadyProbe ReadyProbe
	Version    string

	SessionTTL    time.Duration
	SecureCookies bool

	// Global per-IP window applied by the middleware chain.
	RateWindow time.Duration
	RateMax    int

	MaxBodyBytes int64
}

// API is the HTTP layer.
type API struct {
	mux *http.ServeMux

	guard        *auth.Guard
	billingGuard *auth.BillingGuard
	authn        *auth.Authenticator
	pins         *auth.PINService
	reports      *billing.Service
	audit        *audit.Writer
	limiter      *ratelimit.Limiter

	readyProbe ReadyProbe
	version    string

	sessionTTL    time.Duration
	secureCookies bool
	rateWindow    time.Duration
	rateMax       int
	maxBodyBytes  int64
}

// New wires routes and collaborators.
func New(deps Deps) *API {
	a := &API{
		mux:           http.NewServeMux(),
		guard:         deps.Guard,
		billingGuard:  deps.BillingGuard,
		authn:         deps.Authn,
		pins:          deps.PINs,
		reports:       deps.Reports,
		audit:         deps.Audit,
		limiter:       deps.Limiter,
		readyProbe:    deps.ReadyProbe,
		version:       deps.Version,
		sessionTTL:    deps.SessionTTL,
		secureCookies: deps.SecureCookies,
		rateWindow:    deps.RateWindow,
		rateMax:       deps.RateMax,
		maxBodyBytes:  deps.MaxBodyBytes,
	}
	if a.sessionTTL <= 0 {
		a.sessionTTL = 7 * 24 * time.Hour
	}
	if a.rateWindow <= 0 {
		a.rateWindow = time.Minute
	}
	if a.rateMax <= 0 {
		a.rateMax = 120
	}
	if a.maxBodyBytes <= 0 {
		a.maxBodyBytes = 1 << 20
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// session lifecycle
	a.mux.HandleFunc("/v1/auth/login", a.handleAuthLogin)
	a.mux.HandleFunc("/v1/auth/logout", a.handleAuthLogout)
	a.mux.HandleFunc("/v1/auth/session", a.handleAuthSession)
	a.mux.HandleFunc("/v1/profile/password", a.handleProfilePassword)

	// billing area (step-up protected)
	a.mux.HandleFunc("/v1/billing/verify-pin", a.handleBillingVerifyPIN)
	a.mux.HandleFunc("/v1/billing/session", a.handleBillingSession)
	a.mux.HandleFunc("/v1/billing/reports", a.handleBillingReports)
	a.mux.HandleFunc("/v1/billing/reports/daily", a.handleBillingReportDaily)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the full chain. Order matters: request id and logging
// first, then the cheap stateless rejections (rate limit, CSRF) before any
// credential work in the handlers.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = CSRFProtect(h)
	h = RateLimit(h, a.limiter, a.rateWindow, a.rateMax)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}
