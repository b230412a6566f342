package server_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/jrsteele09/smart-launch/internal/config"
	"github.com/jrsteele09/smart-launch/oauthmodel"
	"github.com/jrsteele09/smart-launch/pkce"
	"github.com/jrsteele09/smart-launch/server"
	"github.com/jrsteele09/smart-launch/sessions/cookiestore"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

// fakeEHR is an authorization server and FHIR server in one.
type fakeEHR struct {
	*httptest.Server

	mu           sync.Mutex
	challenges   map[string]string
	observations []map[string]any
	failToken    bool
}

func newFakeEHR(t *testing.T) *fakeEHR {
	t.Helper()
	ehr := &fakeEHR{challenges: map[string]string{}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /fhir/.well-known/smart-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(oauthmodel.SmartConfiguration{
			AuthorizationEndpoint: ehr.URL + "/auth/authorize",
			TokenEndpoint:         ehr.URL + "/auth/token",
		})
	})
	mux.HandleFunc("POST /auth/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		ehr.mu.Lock()
		challenge := ehr.challenges[r.PostForm.Get("code")]
		fail := ehr.failToken
		ehr.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if fail || !pkce.Verify(r.PostForm.Get("code_verifier"), challenge, oauthmodel.CodeMethodTypeS256) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok1","token_type":"Bearer","patient":"123","expires_in":3600}`))
	})
	mux.HandleFunc("GET /fhir/Patient/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		_, _ = w.Write([]byte(`{"resourceType":"Patient","id":"` + r.PathValue("id") + `","gender":"female","name":[{"given":["Ann"],"family":"Smith"}]}`))
	})
	mux.HandleFunc("GET /fhir/Observation", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		ehr.mu.Lock()
		defer ehr.mu.Unlock()
		entries := []map[string]any{}
		for _, o := range ehr.observations {
			entries = append(entries, map[string]any{"resource": o})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"resourceType": "Bundle", "entry": entries})
	})
	mux.HandleFunc("POST /fhir/Observation", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		var o map[string]any
		if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		o["id"] = "obs-1"
		ehr.mu.Lock()
		ehr.observations = append(ehr.observations, o)
		ehr.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(o)
	})

	ehr.Server = httptest.NewServer(mux)
	t.Cleanup(ehr.Close)
	return ehr
}

func authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer tok1" {
		w.WriteHeader(http.StatusUnauthorized)
		return false
	}
	return true
}

func (e *fakeEHR) issuer() string {
	return e.URL + "/fhir"
}

type app struct {
	*httptest.Server
	client *http.Client
}

func newApp(t *testing.T, ehr *fakeEHR) *app {
	t.Helper()
	v := viper.New()
	v.Set("FOLDER", t.TempDir())
	v.Set("ENV", "TEST")
	s, err := server.NewFromConfig(config.FromViper(v), ehr.Client())
	require.NoError(t, err)

	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &app{
		Server: srv,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (a *app) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := a.client.Get(a.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (a *app) postForm(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := a.client.PostForm(a.URL+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

// launchApp runs the EHR launch and returns the callback path the
// authorization server would send the browser to.
func launchApp(t *testing.T, a *app, ehr *fakeEHR, launchID string) string {
	t.Helper()
	resp, _ := a.get(t, "/?"+url.Values{"iss": {ehr.issuer()}, "launch": {launchID}}.Encode())
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/auth/authorize", location.Path)
	require.Equal(t, launchID, location.Query().Get("launch"))
	require.Equal(t, ehr.issuer(), location.Query().Get("aud"))

	ehr.mu.Lock()
	ehr.challenges["code-"+launchID] = location.Query().Get("code_challenge")
	ehr.mu.Unlock()
	return "/?code=code-" + launchID
}

func TestLaunchFlow(t *testing.T) {
	ehr := newFakeEHR(t)
	a := newApp(t, ehr)

	resp, body := a.get(t, launchApp(t, a, ehr, "abc123"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, `<span id="patient-id">123</span>`)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	require.Equal(t, "no-referrer", resp.Header.Get("Referrer-Policy"))

	t.Run("patient banner", func(t *testing.T) {
		resp, body := a.get(t, server.RoutePatient)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var banner map[string]string
		require.NoError(t, json.Unmarshal([]byte(body), &banner))
		require.Equal(t, "123", banner["id"])
		require.Equal(t, "Ann Smith", banner["name"])
	})

	t.Run("record and list vital signs", func(t *testing.T) {
		resp, body := a.postForm(t, server.RouteVitals, url.Values{"value": {"37.2"}, "effective": {"2024-03-01T09:30"}})
		require.Equal(t, http.StatusCreated, resp.StatusCode, body)

		resp, body = a.get(t, server.RouteVitals)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var vitals []map[string]any
		require.NoError(t, json.Unmarshal([]byte(body), &vitals))
		require.Len(t, vitals, 1)
		require.Equal(t, "Temperature Oral", vitals[0]["label"])
		require.Equal(t, 37.2, vitals[0]["value"])
		require.Equal(t, "2024-03-01T09:30:00Z", vitals[0]["effective"])
	})

	t.Run("incomplete vital sign form", func(t *testing.T) {
		resp, _ := a.postForm(t, server.RouteVitals, url.Values{"value": {"37.2"}})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("reload reuses the session", func(t *testing.T) {
		resp, body := a.get(t, "/")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, body, `<span id="patient-id">123</span>`)
	})

	t.Run("logout", func(t *testing.T) {
		resp, _ := a.postForm(t, server.RouteLogout, url.Values{})
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)

		resp, _ = a.get(t, server.RoutePatient)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestConsumersRequireTheCurrentLaunch(t *testing.T) {
	ehr := newFakeEHR(t)
	a := newApp(t, ehr)

	resp, _ := a.get(t, launchApp(t, a, ehr, "abc123"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = a.get(t, server.RoutePatient)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The browser session ends and only the durable cookie survives.
	u, err := url.Parse(a.URL)
	require.NoError(t, err)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	for _, c := range a.client.Jar.Cookies(u) {
		if c.Name == cookiestore.DefaultDurableName {
			jar.SetCookies(u, []*http.Cookie{c})
		}
	}
	require.Len(t, jar.Cookies(u), 1)
	a.client.Jar = jar

	resp, body := a.get(t, server.RoutePatient)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, body, "another launch")
}

func TestLaunchPageWithoutContext(t *testing.T) {
	a := newApp(t, newFakeEHR(t))

	resp, body := a.get(t, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Waiting for an EHR launch")

	resp, _ = a.get(t, server.RoutePatient)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLaunchPageShowsTokenError(t *testing.T) {
	ehr := newFakeEHR(t)
	ehr.failToken = true
	a := newApp(t, ehr)

	resp, body := a.get(t, launchApp(t, a, ehr, "abc123"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Launch failed")
	require.Contains(t, body, "invalid_grant")
	require.NotContains(t, body, "patient-id")

	// Terminal until a new launch.
	_, body = a.get(t, "/")
	require.Contains(t, body, "Launch failed")
}

func TestCallbackWithoutVerifier(t *testing.T) {
	ehr := newFakeEHR(t)
	a := newApp(t, ehr)

	// First visit establishes the context; the callback then arrives in a
	// browser that never started the authorization.
	launchApp(t, a, ehr, "abc123")
	fresh := newApp(t, ehr)
	resp, body := fresh.get(t, "/?"+url.Values{"iss": {ehr.issuer()}, "launch": {"abc123"}, "code": {"code-abc123"}}.Encode())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Missing PKCE code_verifier")
}

func TestUnknownPathIsNotTheLaunchPage(t *testing.T) {
	a := newApp(t, newFakeEHR(t))

	resp, _ := a.get(t, "/nope")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := a.get(t, server.RouteHealthz)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.Contains(body, `"ok"`))
}
