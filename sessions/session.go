package sessions

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// LaunchContext identifies one EHR launch: the FHIR issuer and the opaque
// launch id it handed to the app.
type LaunchContext struct {
	Issuer   string
	LaunchID string
}

// Complete reports whether both values are present.
func (c LaunchContext) Complete() bool {
	return c.Issuer != "" && c.LaunchID != ""
}

// Equal compares issuer and launch id.
func (c LaunchContext) Equal(other LaunchContext) bool {
	return c.Issuer == other.Issuer && c.LaunchID == other.LaunchID
}

// Hash is a stable fingerprint of the context used to bind verifiers and
// token records to the launch that created them.
func (c LaunchContext) Hash() string {
	h := sha256.New()
	h.Write([]byte(c.Issuer))
	h.Write([]byte{0})
	h.Write([]byte(c.LaunchID))
	return hex.EncodeToString(h.Sum(nil))
}

// Endpoints are the OAuth2 endpoints discovered for an issuer, plus the
// metadata needed to verify id_tokens.
type Endpoints struct {
	AuthorizationEndpoint string
	TokenEndpoint         string
	Issuer                string // authorization server issuer, may differ from the FHIR issuer
	JWKSURI               string
}

// Complete reports whether both OAuth2 endpoints are known.
func (e Endpoints) Complete() bool {
	return e.AuthorizationEndpoint != "" && e.TokenEndpoint != ""
}

// PendingVerifier is the PKCE verifier of an authorization attempt that is
// waiting for its callback.
type PendingVerifier struct {
	Verifier    string    `json:"verifier"`
	ContextHash string    `json:"context_hash"`
	AttemptID   string    `json:"attempt_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// BoundTo reports whether the verifier was created for c.
func (p PendingVerifier) BoundTo(c LaunchContext) bool {
	return p.Verifier != "" && p.ContextHash == c.Hash()
}
