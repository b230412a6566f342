package launch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/smart-launch/internal/errors"
	"github.com/jrsteele09/smart-launch/oauthmodel"
	"github.com/jrsteele09/smart-launch/sessions"
	"github.com/jrsteele09/smart-launch/token"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// exchanger trades an authorization code for a token record.
type exchanger struct {
	client        ClientConfig
	httpClient    *http.Client
	timeout       time.Duration
	verifyIDToken bool
	nowTime       func() time.Time
	logger        zerolog.Logger
}

// exchange redeems code at the token endpoint using the verifier pending in
// store. The resulting record, success or failure, is persisted durably and
// returned. A missing verifier, or one created for another launch, fails
// without contacting the token endpoint.
func (e *exchanger) exchange(ctx context.Context, code string, endpoints sessions.Endpoints, lc sessions.LaunchContext, store *sessions.Store) (*token.Record, error) {
	pending, ok := store.Verifier()
	if !ok || !pending.BoundTo(lc) {
		if ok {
			e.logger.Warn().Str("attempt_id", pending.AttemptID).Msg("PKCE verifier belongs to another launch")
		}
		store.ClearVerifier()
		return e.persist(store, lc, token.Failure(token.MissingVerifierMessage, nil), errors.ErrMissingVerifier)
	}

	request := oauthmodel.TokenRequest{
		Code:         code,
		RedirectURI:  e.client.RedirectURI,
		ClientID:     e.client.ClientID,
		CodeVerifier: pending.Verifier,
	}
	if err := request.Validate(); err != nil {
		return e.persist(store, lc, token.Failure(err.Error(), nil), errors.Wrapf(errors.ErrTokenExchange, "[exchanger exchange] %v", err))
	}
	if endpoints.TokenEndpoint == "" {
		return e.persist(store, lc, token.Failure("Missing token endpoint", nil), errors.Wrap(errors.ErrTokenExchange, "[exchanger exchange] token endpoint is required"))
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	capture := &responseCapture{}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, capture.client(e.httpClient))

	config := oauth2Config(endpoints, e.client)
	oauth2Token, err := config.Exchange(ctx, request.Code, oauth2.VerifierOption(request.CodeVerifier))
	// The code and verifier are single use whatever the outcome.
	store.ClearVerifier()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		var details any
		if errors.As(err, &retrieveErr) {
			details = errorDetails(retrieveErr.Body)
		}
		e.logger.Error().Err(err).Str("attempt_id", pending.AttemptID).Msg("Token exchange failed")
		return e.persist(store, lc, token.Failure(err.Error(), details), errors.Wrapf(errors.ErrTokenExchange, "[exchanger exchange] %v", err))
	}

	resp, raw := tokenResponse(oauth2Token, capture.body.Bytes())
	if resp.Patient == "" {
		e.logger.Warn().Msg("Token response has no patient in context")
	}

	record := token.NewRecord(resp, raw, e.nowTime())
	if resp.IDToken != "" {
		record.FHIRUser = e.identity(ctx, resp.IDToken, endpoints).FHIRUser
	}
	return e.persist(store, lc, record, nil)
}

func (e *exchanger) persist(store *sessions.Store, lc sessions.LaunchContext, record *token.Record, cause error) (*token.Record, error) {
	record.Issuer = lc.Issuer
	record.ContextHash = lc.Hash()
	if err := store.SetTokenRecord(record); err != nil {
		return record, errors.Wrap(err, "[exchanger persist]")
	}
	return record, cause
}

// identity reads the id_token claims, verifying the signature when the
// authorization server published its keys. Failures only cost the
// informational fhirUser value.
func (e *exchanger) identity(ctx context.Context, rawIDToken string, endpoints sessions.Endpoints) token.Identity {
	verifier := token.IdentityVerifier{
		ClientID: e.client.ClientID,
		Issuer:   endpoints.Issuer,
		JWKSURL:  endpoints.JWKSURI,
	}
	if e.verifyIDToken && verifier.CanVerify() {
		if e.httpClient != nil {
			ctx = oidc.ClientContext(ctx, e.httpClient)
		}
		identity, err := verifier.Verify(ctx, rawIDToken)
		if err == nil {
			return identity
		}
		e.logger.Warn().Err(err).Msg("id_token verification failed")
		return token.Identity{}
	}

	identity, err := token.ParseIdentityUnverified(rawIDToken)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Unreadable id_token")
	}
	return identity
}

// tokenResponse reads the SMART fields of the token endpoint response. raw
// keeps every member of body, so EHR specific values survive alongside the
// standard ones.
func tokenResponse(t *oauth2.Token, body []byte) (oauthmodel.TokenResponse, map[string]any) {
	raw := responseMembers(body)
	if len(raw) == 0 {
		for _, field := range oauthmodel.TokenResponseFields {
			if v := t.Extra(field); v != nil {
				raw[field] = v
			}
		}
	}
	raw["access_token"] = t.AccessToken
	if t.TokenType != "" {
		raw["token_type"] = t.TokenType
	}

	// oauth2.Token only carries an absolute Expiry computed from the wall
	// clock, so the lifetime is read from the response itself.
	expiresIn, ok := oauthmodel.ExpiresInSeconds(raw["expires_in"])
	if !ok {
		expiresIn, ok = oauthmodel.ExpiresInSeconds(t.Extra("expires_in"))
	}
	if !ok {
		expiresIn = t.ExpiresIn
	}

	return oauthmodel.TokenResponse{
		AccessToken: t.AccessToken,
		TokenType:   t.TokenType,
		ExpiresIn:   expiresIn,
		Scope:       memberString(raw, "scope"),
		IDToken:     memberString(raw, "id_token"),
		Patient:     memberString(raw, "patient"),
		Encounter:   memberString(raw, "encounter"),
	}, raw
}

// responseMembers decodes a JSON or form encoded token response body.
func responseMembers(body []byte) map[string]any {
	members := make(map[string]any)
	if len(body) == 0 {
		return members
	}
	if err := json.Unmarshal(body, &members); err == nil {
		return members
	}
	members = make(map[string]any)
	if values, err := url.ParseQuery(string(body)); err == nil {
		for k := range values {
			members[k] = values.Get(k)
		}
	}
	return members
}

// responseCapture copies the token endpoint response body as oauth2 reads
// it. oauth2.Token only exposes members by name.
type responseCapture struct {
	base http.RoundTripper
	body bytes.Buffer
}

func (c *responseCapture) client(base *http.Client) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}
	c.base = base.Transport
	if c.base == nil {
		c.base = http.DefaultTransport
	}
	client := *base
	client.Transport = c
	return &client
}

func (c *responseCapture) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := c.base.RoundTrip(req)
	if err != nil || resp.Body == nil {
		return resp, err
	}
	c.body.Reset()
	resp.Body = struct {
		io.Reader
		io.Closer
	}{io.TeeReader(resp.Body, &c.body), resp.Body}
	return resp, nil
}

// memberString returns a string member. oauth2.Token.Extra turns numeric
// looking form values such as patient=123 into int64.
func memberString(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	}
	return ""
}

// errorDetails keeps a JSON error body as data and anything else as text.
func errorDetails(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	var parsed any
	if err := json.Unmarshal(body, &parsed); err == nil {
		return parsed
	}
	return string(body)
}
