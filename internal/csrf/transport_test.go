package csrf

import (
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

type captureTripper struct {
	got *http.Request
}

func (c *captureTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	c.got = req
	rec := httptest.NewRecorder()
	rec.WriteHeader(http.StatusNoContent)
	return rec.Result(), nil
}

func jarWithToken(t *testing.T, rawURL, token string) http.CookieJar {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	jar.SetCookies(u, []*http.Cookie{{Name: CookieName, Value: token}})
	return jar
}

func TestTransportInjectsHeaderOnMutating(t *testing.T) {
	base := &captureTripper{}
	jar := jarWithToken(t, "https://api.aerobaza.org/", "tok-1")
	client := &http.Client{Transport: &Transport{Base: base, Jar: jar}}

	req, _ := http.NewRequest(http.MethodPost, "https://api.aerobaza.org/v1/letovi", nil)
	_, err := client.Do(req)
	require.NoError(t, err)
	require.Equal(t, "tok-1", base.got.Header.Get(HeaderName))
}

func TestTransportSkipsSafeMethods(t *testing.T) {
	base := &captureTripper{}
	jar := jarWithToken(t, "https://api.aerobaza.org/", "tok-1")
	client := &http.Client{Transport: &Transport{Base: base, Jar: jar}}

	req, _ := http.NewRequest(http.MethodGet, "https://api.aerobaza.org/v1/letovi", nil)
	_, err := client.Do(req)
	require.NoError(t, err)
	require.Empty(t, base.got.Header.Get(HeaderName))
}

func TestTransportKeepsExplicitHeader(t *testing.T) {
	base := &captureTripper{}
	jar := jarWithToken(t, "https://api.aerobaza.org/", "tok-1")
	tr := &Transport{Base: base, Jar: jar}

	req, _ := http.NewRequest(http.MethodDelete, "https://api.aerobaza.org/v1/letovi/7", nil)
	req.Header.Set(HeaderName, "explicit")
	_, err := tr.RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, "explicit", base.got.Header.Get(HeaderName))
}

func TestTransportWithoutJarOrToken(t *testing.T) {
	base := &captureTripper{}
	tr := &Transport{Base: base}

	req, _ := http.NewRequest(http.MethodPost, "https://api.aerobaza.org/v1/letovi", nil)
	_, err := tr.RoundTrip(req)
	require.NoError(t, err)
	require.Empty(t, base.got.Header.Get(HeaderName))

	emptyJar, _ := cookiejar.New(nil)
	tr = &Transport{Base: base, Jar: emptyJar}
	_, err = tr.RoundTrip(req)
	require.NoError(t, err)
	require.Empty(t, base.got.Header.Get(HeaderName))
}
