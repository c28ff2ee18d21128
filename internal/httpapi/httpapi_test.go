package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"aerobaza.org/internal/audit"
	"aerobaza.org/internal/auth"
	"aerobaza.org/internal/billing"
	"aerobaza.org/internal/csrf"
	"aerobaza.org/internal/ratelimit"
)

// testStore backs every persistence collaborator with maps so the whole
// pipeline can be exercised through real HTTP round trips.
type testStore struct {
	users    map[string]*auth.User
	byEmail  map[string]*auth.User
	failures map[string][]time.Time
	audits   []*audit.Entry
	reports  map[string]*billing.Report
	failAll  bool
}

func newTestStore() *testStore {
	return &testStore{
		users:    map[string]*auth.User{},
		byEmail:  map[string]*auth.User{},
		failures: map[string][]time.Time{},
		reports:  map[string]*billing.Report{},
	}
}

var errStoreDown = errors.New("store down")

func (s *testStore) add(u *auth.User) {
	s.users[u.ID] = u
	s.byEmail[strings.ToLower(u.Email)] = u
}

func (s *testStore) FindUserByID(ctx context.Context, id string) (*auth.User, error) {
	if s.failAll {
		return nil, errStoreDown
	}
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *testStore) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.failAll {
		return nil, errStoreDown
	}
	u, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *testStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	u, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (s *testStore) SetBillingPINState(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error {
	u, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.BillingPINFailedAttempts = failedAttempts
	u.BillingPINLockedUntil = lockedUntil
	return nil
}

func (s *testStore) RecordLoginAttempt(ctx context.Context, email, ip string, success bool) error {
	if !success {
		s.failures[email] = append(s.failures[email], time.Now())
	}
	return nil
}

func (s *testStore) CountRecentFailures(ctx context.Context, email string, since time.Time) (int, error) {
	n := 0
	for _, ts := range s.failures[email] {
		if ts.After(since) {
			n++
		}
	}
	return n, nil
}

func (s *testStore) OldestRecentFailure(ctx context.Context, email string, since time.Time) (time.Time, error) {
	var oldest time.Time
	for _, ts := range s.failures[email] {
		if ts.After(since) && (oldest.IsZero() || ts.Before(oldest)) {
			oldest = ts
		}
	}
	return oldest, nil
}

func (s *testStore) ClearFailures(ctx context.Context, email string) error {
	delete(s.failures, email)
	return nil
}

func (s *testStore) PurgeAttemptsBefore(ctx context.Context, cutoff time.Time) error {
	return nil
}

func (s *testStore) AppendAuditLog(ctx context.Context, entry *audit.Entry) error {
	if s.failAll {
		return errStoreDown
	}
	s.audits = append(s.audits, entry)
	return nil
}

func (s *testStore) SaveReport(ctx context.Context, report *billing.Report) error {
	key := report.Type + report.PeriodStart.Format("2006-01-02")
	if existing, ok := s.reports[key]; ok {
		existing.Data = report.Data
		existing.UpdatedAt = time.Now()
		*report = *existing
		return nil
	}
	report.ID = "report-" + key
	report.CreatedAt = time.Now()
	report.UpdatedAt = report.CreatedAt
	s.reports[key] = report
	return nil
}

func (s *testStore) FindReport(ctx context.Context, reportType string, periodStart time.Time) (*billing.Report, error) {
	report, ok := s.reports[reportType+periodStart.Format("2006-01-02")]
	if !ok {
		return nil, billing.ErrNotFound
	}
	return report, nil
}

func (s *testStore) ListReports(ctx context.Context, reportType string, limit int) ([]*billing.Report, error) {
	var out []*billing.Report
	for _, report := range s.reports {
		if report.Type == reportType && len(out) < limit {
			out = append(out, report)
		}
	}
	return out, nil
}

type fixture struct {
	store   *testStore
	handler http.Handler
}

func newFixture(t *testing.T, tweak func(*Deps)) *fixture {
	t.Helper()
	store := newTestStore()

	sessions, err := auth.NewSessionCodec("httpapi-test-session")
	if err != nil {
		t.Fatalf("NewSessionCodec: %v", err)
	}
	stepUps, err := auth.NewStepUpCodec("httpapi-test-stepup")
	if err != nil {
		t.Fatalf("NewStepUpCodec: %v", err)
	}
	limiter := ratelimit.NewLimiter()
	t.Cleanup(limiter.Close)

	guard := auth.NewGuard(sessions, store)
	deps := Deps{
		Guard:        guard,
		BillingGuard: auth.NewBillingGuard(guard, stepUps),
		Authn:        auth.NewAuthenticator(store, store, sessions),
		PINs:         auth.NewPINService(store, stepUps),
		Reports:      billing.NewService(store),
		Audit:        audit.NewWriter(store),
		Limiter:      limiter,
		Version:      "test",
	}
	if tweak != nil {
		tweak(&deps)
	}
	return &fixture{store: store, handler: New(deps).Handler()}
}

func (f *fixture) seedUser(t *testing.T, role auth.Role, password, pin string) *auth.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	u := &auth.User{
		ID:           "user-" + strings.ToLower(string(role)),
		Email:        strings.ToLower(string(role)) + "@aerobaza.org",
		Name:         "Test " + string(role),
		Role:         role,
		PasswordHash: hash,
		IsActive:     true,
	}
	if pin != "" {
		pinHash, err := auth.HashPIN(pin)
		if err != nil {
			t.Fatalf("HashPIN: %v", err)
		}
		u.BillingPINHash = pinHash
	}
	f.store.add(u)
	return u
}

// session carries the cookies a browser would hold after login.
type session struct {
	cookies []*http.Cookie
}

func (s *session) cookie(name string) *http.Cookie {
	for _, c := range s.cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (s *session) apply(r *http.Request, withCSRFHeader bool) {
	for _, c := range s.cookies {
		if c.MaxAge >= 0 {
			r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
		}
	}
	if withCSRFHeader {
		if c := s.cookie(csrf.CookieName); c != nil {
			r.Header.Set(csrf.HeaderName, c.Value)
		}
	}
}

func (s *session) merge(cookies []*http.Cookie) {
	for _, incoming := range cookies {
		replaced := false
		for i, c := range s.cookies {
			if c.Name == incoming.Name {
				s.cookies[i] = incoming
				replaced = true
			}
		}
		if !replaced {
			s.cookies = append(s.cookies, incoming)
		}
	}
}

func (f *fixture) do(t *testing.T, r *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, r)
	return rec
}

func (f *fixture) login(t *testing.T, email, password string) *session {
	t.Helper()
	rec := f.do(t, jsonRequest(http.MethodPost, "/v1/auth/login",
		map[string]string{"email": email, "password": password}))
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: status %d body %s", rec.Code, rec.Body.String())
	}
	s := &session{}
	s.merge(rec.Result().Cookies())
	return s
}

func (f *fixture) verifyPIN(t *testing.T, s *session, pin string) {
	t.Helper()
	r := jsonRequest(http.MethodPost, "/v1/billing/verify-pin", map[string]string{"pin": pin})
	s.apply(r, true)
	rec := f.do(t, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify-pin failed: status %d body %s", rec.Code, rec.Body.String())
	}
	s.merge(rec.Result().Cookies())
}

func jsonRequest(method, path string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("X-Forwarded-For", "203.0.113.20")
	return r
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}
