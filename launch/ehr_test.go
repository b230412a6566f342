package launch_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jrsteele09/smart-launch/oauthmodel"
	"github.com/jrsteele09/smart-launch/pkce"
	"github.com/jrsteele09/smart-launch/sessions"
	"github.com/jrsteele09/smart-launch/sessions/memstore"
)

// fakeEHR serves a SMART configuration, and a token endpoint that checks
// the PKCE verifier against the challenge registered for each code.
type fakeEHR struct {
	server *httptest.Server

	discoveryCalls atomic.Int32
	tokenCalls     atomic.Int32

	mu         sync.Mutex
	challenges map[string]string
	lastForm   map[string]string

	config        oauthmodel.SmartConfiguration
	tokenStatus   int
	tokenResponse map[string]any
	formEncoded   bool
}

func newFakeEHR(t *testing.T) *fakeEHR {
	t.Helper()
	ehr := &fakeEHR{
		challenges:  map[string]string{},
		tokenStatus: http.StatusOK,
		tokenResponse: map[string]any{
			"access_token": "tok1",
			"token_type":   "Bearer",
			"patient":      "123",
			"expires_in":   3600,
			"scope":        "openid fhirUser launch user/Patient.crus user/Observation.crus",
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /fhir/.well-known/smart-configuration", func(w http.ResponseWriter, r *http.Request) {
		ehr.discoveryCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ehr.config)
	})
	mux.HandleFunc("POST /auth/token", func(w http.ResponseWriter, r *http.Request) {
		ehr.tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		form := map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}

		ehr.mu.Lock()
		ehr.lastForm = form
		challenge, known := ehr.challenges[form["code"]]
		ehr.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if ehr.tokenStatus != http.StatusOK {
			w.WriteHeader(ehr.tokenStatus)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant", "error_description": "code expired"})
			return
		}
		if !known || !pkce.Verify(form["code_verifier"], challenge, oauthmodel.CodeMethodTypeS256) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant", "error_description": "PKCE verification failed"})
			return
		}
		if ehr.formEncoded {
			values := url.Values{}
			for k, v := range ehr.tokenResponse {
				values.Set(k, fmt.Sprint(v))
			}
			w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
			_, _ = w.Write([]byte(values.Encode()))
			return
		}
		_ = json.NewEncoder(w).Encode(ehr.tokenResponse)
	})
	ehr.server = httptest.NewServer(mux)
	t.Cleanup(ehr.server.Close)

	ehr.config = oauthmodel.SmartConfiguration{
		AuthorizationEndpoint:         ehr.server.URL + "/auth/authorize",
		TokenEndpoint:                 ehr.server.URL + "/auth/token",
		Capabilities:                  []string{"launch-ehr", "client-public"},
		CodeChallengeMethodsSupported: []string{"S256"},
	}
	return ehr
}

func (e *fakeEHR) issuer() string {
	return e.server.URL + "/fhir"
}

// issueCode registers the challenge the authorization server saw and
// returns the code it would redirect back with.
func (e *fakeEHR) issueCode(code, challenge string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.challenges[code] = challenge
	return code
}

func (e *fakeEHR) form() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastForm
}

func newMemStore() (*sessions.Store, *memstore.KV, *memstore.KV) {
	ephemeral, durable := memstore.New(), memstore.New()
	return sessions.New(ephemeral, durable), ephemeral, durable
}
