package sessions

import (
	"encoding/json"
	"fmt"

	"github.com/jrsteele09/smart-launch/token"
	"github.com/rs/zerolog/log"
)

// KV is one storage tier: string values by key.
type KV interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// Ephemeral tier keys. Values live for the browser session.
const (
	KeyIssuer                = "iss"
	KeyLaunch                = "launch"
	KeyPreviousIssuer        = "prev_iss"
	KeyPreviousLaunch        = "prev_launch"
	KeyAuthorizationEndpoint = "authorization_endpoint"
	KeyTokenEndpoint         = "token_endpoint"
	KeyAuthServerIssuer      = "auth_server_issuer"
	KeyJWKSURI               = "jwks_uri"
	KeyVerifier              = "pkce_code_verifier"
)

// Durable tier keys. Values survive a browser restart.
const (
	KeyTokenResponse = "token_response"
)

// Store is the typed view of a browser's two storage tiers.
type Store struct {
	ephemeral KV
	durable   KV
}

// New returns a Store over the given tiers.
func New(ephemeral, durable KV) *Store {
	return &Store{
		ephemeral: ephemeral,
		durable:   durable,
	}
}

// LaunchContext returns the cached launch values. Either may be empty.
func (s *Store) LaunchContext() LaunchContext {
	iss, _ := s.ephemeral.Get(KeyIssuer)
	launch, _ := s.ephemeral.Get(KeyLaunch)
	return LaunchContext{Issuer: iss, LaunchID: launch}
}

// SetLaunchContext caches the non-empty launch values.
func (s *Store) SetLaunchContext(c LaunchContext) {
	setIfPresent(s.ephemeral, KeyIssuer, c.Issuer)
	setIfPresent(s.ephemeral, KeyLaunch, c.LaunchID)
}

// PreviousContext returns the baseline used to detect a new launch.
func (s *Store) PreviousContext() (LaunchContext, bool) {
	iss, okIss := s.ephemeral.Get(KeyPreviousIssuer)
	launch, okLaunch := s.ephemeral.Get(KeyPreviousLaunch)
	if !okIss && !okLaunch {
		return LaunchContext{}, false
	}
	return LaunchContext{Issuer: iss, LaunchID: launch}, true
}

func (s *Store) SetPreviousContext(c LaunchContext) {
	s.ephemeral.Set(KeyPreviousIssuer, c.Issuer)
	s.ephemeral.Set(KeyPreviousLaunch, c.LaunchID)
}

// Endpoints returns whatever endpoints are cached.
func (s *Store) Endpoints() Endpoints {
	var e Endpoints
	e.AuthorizationEndpoint, _ = s.ephemeral.Get(KeyAuthorizationEndpoint)
	e.TokenEndpoint, _ = s.ephemeral.Get(KeyTokenEndpoint)
	e.Issuer, _ = s.ephemeral.Get(KeyAuthServerIssuer)
	e.JWKSURI, _ = s.ephemeral.Get(KeyJWKSURI)
	return e
}

// SetEndpoints caches the non-empty values of e.
func (s *Store) SetEndpoints(e Endpoints) {
	setIfPresent(s.ephemeral, KeyAuthorizationEndpoint, e.AuthorizationEndpoint)
	setIfPresent(s.ephemeral, KeyTokenEndpoint, e.TokenEndpoint)
	setIfPresent(s.ephemeral, KeyAuthServerIssuer, e.Issuer)
	setIfPresent(s.ephemeral, KeyJWKSURI, e.JWKSURI)
}

// Verifier returns the pending PKCE verifier, if any. An unreadable value
// is treated as absent.
func (s *Store) Verifier() (PendingVerifier, bool) {
	data, ok := s.ephemeral.Get(KeyVerifier)
	if !ok || data == "" {
		return PendingVerifier{}, false
	}
	var p PendingVerifier
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		log.Warn().Err(err).Msg("Discarding unreadable PKCE verifier")
		return PendingVerifier{}, false
	}
	return p, p.Verifier != ""
}

func (s *Store) SetVerifier(p PendingVerifier) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("[Store SetVerifier] %w", err)
	}
	s.ephemeral.Set(KeyVerifier, string(b))
	return nil
}

func (s *Store) ClearVerifier() {
	s.ephemeral.Delete(KeyVerifier)
}

// TokenRecord returns the durable token record, if any. An unreadable value
// is treated as absent.
func (s *Store) TokenRecord() (*token.Record, bool) {
	data, ok := s.durable.Get(KeyTokenResponse)
	if !ok || data == "" {
		return nil, false
	}
	record, err := token.Unmarshal(data)
	if err != nil {
		log.Warn().Err(err).Msg("Discarding unreadable token record")
		return nil, false
	}
	return record, true
}

func (s *Store) SetTokenRecord(r *token.Record) error {
	data, err := r.Marshal()
	if err != nil {
		return fmt.Errorf("[Store SetTokenRecord] %w", err)
	}
	s.durable.Set(KeyTokenResponse, data)
	return nil
}

func (s *Store) ClearTokenRecord() {
	s.durable.Delete(KeyTokenResponse)
}

// Invalidate discards everything tied to the previous launch: the pending
// verifier, the cached endpoints and the durable token record. The cached
// launch values and the baseline are left to the caller.
func (s *Store) Invalidate() {
	s.ClearVerifier()
	for _, key := range []string{KeyAuthorizationEndpoint, KeyTokenEndpoint, KeyAuthServerIssuer, KeyJWKSURI} {
		s.ephemeral.Delete(key)
	}
	s.ClearTokenRecord()
}

// Clear removes every value this package writes, in both tiers.
func (s *Store) Clear() {
	s.Invalidate()
	for _, key := range []string{KeyIssuer, KeyLaunch, KeyPreviousIssuer, KeyPreviousLaunch} {
		s.ephemeral.Delete(key)
	}
}

func setIfPresent(kv KV, key, value string) {
	if value != "" {
		kv.Set(key, value)
	}
}
