package oauthmodel

import (
	"strings"
)

// AuthorizationParameters holds the query parameters of a SMART EHR launch
// authorization request, sent as a browser navigation to the
// authorization_endpoint discovered from the issuer.
type AuthorizationParameters struct {
	// ClientID identifies this application to the EHR's authorization server.
	// Required: Yes
	ClientID string

	// RedirectURI is where the authorization response will be sent. It must
	// exactly match the URI registered with the EHR.
	// Example: "http://localhost:3001"
	RedirectURI string

	// Scope is the space separated list of SMART scopes being requested.
	// Example: "openid fhirUser launch user/Patient.crus user/Observation.crus"
	Scope string

	// ResponseType is always "code" for an EHR launch.
	ResponseType ResponseType

	// Aud is the FHIR base URL the token will be used against; the issuer
	// that launched the app.
	// Example: "https://ehr.example/fhir"
	Aud string

	// Launch is the opaque launch id handed over by the EHR. The
	// authorization server uses it to bind the launch context (patient,
	// encounter, user) to the issued token.
	Launch string

	// CodeChallenge is the PKCE challenge derived from the code_verifier.
	// Length: 43 characters when using S256
	CodeChallenge string

	// CodeChallengeMethod specifies how code_challenge was derived.
	CodeChallengeMethod CodeMethodType
}

// Validate checks the parameters form a complete SMART EHR launch request.
func (p *AuthorizationParameters) Validate() error {
	if strings.TrimSpace(p.ClientID) == "" {
		return ErrMissingClientID
	}
	if !redirectURIValid(p.RedirectURI) {
		return ErrInvalidRedirectUri
	}
	if !responseTypeValid(p.ResponseType) {
		return ErrInvalidResponseType
	}
	if strings.TrimSpace(p.Aud) == "" {
		return ErrMissingAudience
	}
	if strings.TrimSpace(p.Launch) == "" {
		return ErrMissingLaunch
	}
	if strings.TrimSpace(p.CodeChallenge) == "" || len(p.CodeChallenge) < 43 || len(p.CodeChallenge) > 128 {
		return ErrInvalidCodeChallenge
	}
	if !codeChallengeMethodValid(p.CodeChallengeMethod) {
		return ErrInvalidCodeChallengeMethod
	}
	return nil
}

func codeChallengeMethodValid(challengeMethod CodeMethodType) bool {
	switch challengeMethod {
	case CodeMethodTypeS256, CodeMethodTypeNone:
		return true
	}
	return false
}

func responseTypeValid(responseType ResponseType) bool {
	return responseType == CodeResponseType
}

func redirectURIValid(redirectURI string) bool {
	if !strings.HasPrefix(redirectURI, "http://") && !strings.HasPrefix(redirectURI, "https://") {
		return false
	}
	// Fragments are never delivered to the server
	return !strings.Contains(redirectURI, "#")
}
