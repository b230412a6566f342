package cookiestore_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/smart-launch/sessions"
	"github.com/jrsteele09/smart-launch/sessions/cookiestore"
	"github.com/jrsteele09/smart-launch/token"
	"github.com/stretchr/testify/require"
)

func newStores(t *testing.T) *cookiestore.Stores {
	t.Helper()
	stores, err := cookiestore.New(cookiestore.Options{
		HashKey:       []byte("0123456789abcdef0123456789abcdef"),
		BlockKey:      []byte("0123456789abcdef"),
		Dir:           t.TempDir(),
		DurableMaxAge: 30 * 24 * time.Hour,
	})
	require.NoError(t, err)
	return stores
}

// carry copies the response cookies onto a new request, as a browser would.
func carry(t *testing.T, rec *httptest.ResponseRecorder, previous []*http.Cookie) (*http.Request, []*http.Cookie) {
	t.Helper()
	jar := map[string]*http.Cookie{}
	for _, c := range previous {
		jar[c.Name] = c
	}
	for _, c := range rec.Result().Cookies() {
		jar[c.Name] = c
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	var cookies []*http.Cookie
	for _, c := range jar {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
		cookies = append(cookies, c)
	}
	return req, cookies
}

func TestRoundTrip(t *testing.T) {
	stores := newStores(t)
	c := sessions.LaunchContext{Issuer: "https://ehr/fhir", LaunchID: "abc"}

	rec := httptest.NewRecorder()
	browser := stores.Open(httptest.NewRequest(http.MethodGet, "/?iss=x", nil), rec)
	browser.Store().SetLaunchContext(c)
	require.NoError(t, browser.Store().SetTokenRecord(&token.Record{AccessToken: "at", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, browser.Save())

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	for _, cookie := range cookies {
		require.True(t, cookie.HttpOnly)
		if cookie.Name == cookiestore.DefaultEphemeralName {
			require.Zero(t, cookie.MaxAge)
		} else {
			require.Equal(t, 30*24*3600, cookie.MaxAge)
		}
	}

	req, _ := carry(t, rec, nil)
	next := stores.Open(req, httptest.NewRecorder())
	require.Equal(t, c, next.Store().LaunchContext())
	record, ok := next.Store().TokenRecord()
	require.True(t, ok)
	require.Equal(t, "at", record.AccessToken)
}

func TestUnchangedTiersAreNotRewritten(t *testing.T) {
	stores := newStores(t)

	rec := httptest.NewRecorder()
	browser := stores.Open(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	browser.Store().SetLaunchContext(sessions.LaunchContext{Issuer: "https://ehr/fhir", LaunchID: "abc"})
	require.NoError(t, browser.Save())
	require.Len(t, rec.Result().Cookies(), 1)

	req, _ := carry(t, rec, nil)
	rec = httptest.NewRecorder()
	browser = stores.Open(req, rec)
	browser.Store().SetLaunchContext(sessions.LaunchContext{Issuer: "https://ehr/fhir", LaunchID: "abc"})
	require.NoError(t, browser.Save())
	require.Empty(t, rec.Result().Cookies())
}

func TestTamperedCookieReadsAsEmpty(t *testing.T) {
	stores := newStores(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: cookiestore.DefaultEphemeralName, Value: "tampered"})
	browser := stores.Open(req, httptest.NewRecorder())

	require.Equal(t, sessions.LaunchContext{}, browser.Store().LaunchContext())
}

func TestNewRequiresKeys(t *testing.T) {
	_, err := cookiestore.New(cookiestore.Options{Dir: t.TempDir()})
	require.Error(t, err)

	_, err = cookiestore.New(cookiestore.Options{HashKey: []byte("k")})
	require.Error(t, err)
}
