package token

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jrsteele09/smart-launch/oauthmodel"
)

// MissingVerifierMessage is recorded when a callback arrives without a
// usable PKCE verifier in the browser session.
const MissingVerifierMessage = "Missing PKCE code_verifier"

// Record is the outcome of a code exchange as persisted in durable storage.
// It is either a usable token set or a terminal error for the launch.
type Record struct {
	AccessToken string `json:"access_token,omitempty"`
	Patient     string `json:"patient,omitempty"`
	Encounter   string `json:"encounter,omitempty"`
	Scope       string `json:"scope,omitempty"`
	IDToken     string `json:"id_token,omitempty"`
	FHIRUser    string `json:"fhir_user,omitempty"`

	// Issuer is the FHIR base URL of the launch that produced the record.
	Issuer string `json:"iss,omitempty"`
	// ContextHash binds the record to the launch context (issuer, launch id).
	ContextHash string `json:"context_hash,omitempty"`

	// ExpiresAt is absolute; expires_in is converted on receipt.
	ExpiresAt time.Time `json:"expires_at"`

	// Raw holds the token response members, expires_at included.
	Raw map[string]any `json:"raw,omitempty"`

	Error        string `json:"error,omitempty"`
	ErrorDetails any    `json:"error_details,omitempty"`
}

// NewRecord builds a record from a token response received at now. A
// missing expires_in yields a record that is already expired.
func NewRecord(resp oauthmodel.TokenResponse, raw map[string]any, now time.Time) *Record {
	expiresAt := now.Add(time.Duration(resp.ExpiresIn) * time.Second)

	merged := make(map[string]any, len(raw)+1)
	for k, v := range raw {
		merged[k] = v
	}
	merged["expires_at"] = expiresAt.UnixMilli()

	return &Record{
		AccessToken: resp.AccessToken,
		Patient:     resp.Patient,
		Encounter:   resp.Encounter,
		Scope:       resp.Scope,
		IDToken:     resp.IDToken,
		ExpiresAt:   expiresAt,
		Raw:         merged,
	}
}

// Failure builds a terminal error record.
func Failure(message string, details any) *Record {
	return &Record{
		Error:        message,
		ErrorDetails: details,
	}
}

// Valid reports whether the record holds an access token that can still be
// used at now.
func (r *Record) Valid(now time.Time) bool {
	if r == nil {
		return false
	}
	return r.AccessToken != "" && r.Error == "" && r.ExpiresAt.After(now)
}

// Failed reports whether the record holds a terminal error.
func (r *Record) Failed() bool {
	return r != nil && r.Error != ""
}

// Marshal encodes the record for storage.
func (r *Record) Marshal() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("[Record Marshal] %w", err)
	}
	return string(b), nil
}

// Unmarshal decodes a stored record.
func Unmarshal(data string) (*Record, error) {
	var r Record
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("[token Unmarshal] %w", err)
	}
	return &r, nil
}
