package csrf

import "net/http"

// Transport is an outgoing-request interceptor that reads the double-submit
// cookie from the client's jar and injects the matching header on every
// mutating call. It replaces ad-hoc per-call header wiring with an explicit
// http.RoundTripper registered on the client.
type Transport struct {
	// Base performs the actual round trip; http.DefaultTransport when nil.
	Base http.RoundTripper
	// Jar supplies cookies for the request URL; usually the client's own jar.
	Jar http.CookieJar
}

// RoundTrip injects the header, skipping read-only methods so they incur no
// cookie lookup. The original request is never mutated.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if SafeMethod(req.Method) || req.Header.Get(HeaderName) != "" || t.Jar == nil {
		return base.RoundTrip(req)
	}

	var token string
	for _, cookie := range t.Jar.Cookies(req.URL) {
		if cookie.Name == CookieName {
			token = cookie.Value
			break
		}
	}
	if token == "" {
		return base.RoundTrip(req)
	}

	clone := req.Clone(req.Context())
	clone.Header.Set(HeaderName, token)
	return base.RoundTrip(clone)
}
