package token

import (
	"context"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/smart-launch/internal/errors"
)

// Identity is the user the EHR authenticated, taken from the id_token.
type Identity struct {
	Subject  string `json:"sub"`
	FHIRUser string `json:"fhirUser"`
	Issuer   string `json:"iss"`
}

// IdentityVerifier checks id_tokens against the authorization server's
// published keys. Issuer and JWKSURL come from the SMART configuration.
type IdentityVerifier struct {
	ClientID string
	Issuer   string
	JWKSURL  string
}

// CanVerify reports whether enough metadata was discovered to verify
// signatures.
func (v IdentityVerifier) CanVerify() bool {
	return v.ClientID != "" && v.Issuer != "" && v.JWKSURL != ""
}

// Verify validates the signature, issuer, audience and expiry of rawIDToken
// and returns its identity claims. The HTTP client used to fetch keys can
// be supplied through oidc.ClientContext.
func (v IdentityVerifier) Verify(ctx context.Context, rawIDToken string) (Identity, error) {
	if !v.CanVerify() {
		return Identity{}, errors.New("[IdentityVerifier Verify] issuer, jwks_uri and client id are required")
	}

	provider := (&oidc.ProviderConfig{
		IssuerURL: v.Issuer,
		JWKSURL:   v.JWKSURL,
	}).NewProvider(ctx)

	idToken, err := provider.Verifier(&oidc.Config{ClientID: v.ClientID}).Verify(ctx, rawIDToken)
	if err != nil {
		return Identity{}, errors.Wrapf(errors.ErrInvalidToken, "[IdentityVerifier Verify] %v", err)
	}

	var identity Identity
	if err := idToken.Claims(&identity); err != nil {
		return Identity{}, errors.Wrapf(errors.ErrInvalidToken, "[IdentityVerifier Verify] failed to extract claims: %v", err)
	}
	return identity, nil
}

// ParseIdentityUnverified reads the identity claims without checking the
// signature. Only use the result for display.
func ParseIdentityUnverified(rawIDToken string) (Identity, error) {
	if strings.TrimSpace(rawIDToken) == "" {
		return Identity{}, errors.Wrap(errors.ErrInvalidToken, "[ParseIdentityUnverified] empty id_token")
	}

	unverifiedToken, _, err := jwtlib.NewParser().ParseUnverified(rawIDToken, jwtlib.MapClaims{})
	if err != nil {
		return Identity{}, errors.Wrapf(errors.ErrInvalidToken, "[ParseIdentityUnverified] %v", err)
	}

	claims, ok := unverifiedToken.Claims.(jwtlib.MapClaims)
	if !ok {
		return Identity{}, errors.Wrap(errors.ErrInvalidToken, "[ParseIdentityUnverified] error extracting claims")
	}

	identity := Identity{}
	identity.Subject, _ = claims["sub"].(string)
	identity.FHIRUser, _ = claims["fhirUser"].(string)
	identity.Issuer, _ = claims["iss"].(string)
	return identity, nil
}
