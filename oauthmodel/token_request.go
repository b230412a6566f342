package oauthmodel

// TokenRequest holds the form parameters of the authorization_code grant
// sent to the token endpoint after the EHR redirects back with a code.
type TokenRequest struct {
	// Code is the authorization code received on the callback.
	// Usage: Exchanged once for tokens, then becomes invalid
	Code string

	// RedirectURI must repeat the redirect_uri of the authorization request.
	RedirectURI string

	// ClientID identifies this public client. No client secret is sent.
	ClientID string

	// CodeVerifier is the PKCE code verifier that matches the code_challenge.
	// Validation: Server compares SHA256(code_verifier) with stored code_challenge
	CodeVerifier string
}

// Validate checks every field the grant needs is present.
func (r TokenRequest) Validate() error {
	if r.Code == "" {
		return ErrMissingCode
	}
	if r.ClientID == "" {
		return ErrMissingClientID
	}
	if !redirectURIValid(r.RedirectURI) {
		return ErrInvalidRedirectUri
	}
	if r.CodeVerifier == "" {
		return ErrMissingCodeVerifier
	}
	return nil
}
