package oauthmodel

import (
	"encoding/json"
	"strconv"
	"strings"
)

// TokenResponseFields lists the members of a SMART token response that are
// copied into the persisted token record. Standard OAuth2 fields come first,
// followed by the SMART launch context parameters.
var TokenResponseFields = []string{
	"access_token",
	"token_type",
	"expires_in",
	"scope",
	"id_token",
	"refresh_token",
	"patient",
	"encounter",
	"fhirUser",
	"need_patient_banner",
	"smart_style_url",
	"tenant",
	"intent",
}

// TokenResponse is the SMART token endpoint response for the
// authorization_code grant.
type TokenResponse struct {
	// AccessToken is used as "Authorization: Bearer <access_token>" against the FHIR API.
	AccessToken string `json:"access_token"`

	// TokenType is "bearer" (case insensitive).
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token.
	// Example: 3600
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// Scope is the granted scope, possibly narrower than requested.
	Scope string `json:"scope,omitempty"`

	// IDToken is present when "openid" was granted.
	IDToken string `json:"id_token,omitempty"`

	// Patient is the FHIR Patient id in context of the launch.
	// Example: "123"
	Patient string `json:"patient,omitempty"`

	// Encounter is the FHIR Encounter id in context, when the EHR has one.
	Encounter string `json:"encounter,omitempty"`
}

// ExpiresInSeconds reads an expires_in member. Servers send it as a JSON
// number, and some as a numeric string.
func ExpiresInSeconds(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return int64(f), true
		}
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}
