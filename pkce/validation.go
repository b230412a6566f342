package pkce

import (
	"fmt"

	"github.com/jrsteele09/smart-launch/oauthmodel"
)

// ValidateVerifier checks a verifier against RFC 7636: 43-128 characters
// from the unreserved set [A-Z] / [a-z] / [0-9] / "-" / "." / "_" / "~".
func ValidateVerifier(verifier string) error {
	if len(verifier) < MinVerifierLength || len(verifier) > MaxVerifierLength {
		return fmt.Errorf("code_verifier must be between %d and %d characters", MinVerifierLength, MaxVerifierLength)
	}
	for i := 0; i < len(verifier); i++ {
		if !unreserved(verifier[i]) {
			return fmt.Errorf("code_verifier contains invalid character %q", verifier[i])
		}
	}
	return nil
}

// ValidatePKCE validates PKCE (Proof Key for Code Exchange) parameters
func ValidatePKCE(codeChallenge, codeChallengeMethod string, required bool) error {
	if codeChallenge == "" && codeChallengeMethod == "" {
		if required {
			return fmt.Errorf("PKCE required: code_challenge and code_challenge_method must be provided")
		}
		return nil
	}

	// If one is provided, both must be provided
	if codeChallenge == "" || codeChallengeMethod == "" {
		return fmt.Errorf("both code_challenge and code_challenge_method must be provided together")
	}

	// Validate code challenge length (should be base64url encoded, typically 43 chars for S256)
	if len(codeChallenge) < 43 || len(codeChallenge) > 128 {
		return fmt.Errorf("code_challenge length must be between 43 and 128 characters")
	}

	method := oauthmodel.CodeMethodType(codeChallengeMethod)
	if method != oauthmodel.CodeMethodTypeS256 && method != oauthmodel.CodeMethodTypeNone {
		return fmt.Errorf("code_challenge_method must be 'S256' or 'plain'")
	}

	return nil
}

func unreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}
