package oauthmodel

// WellKnownSmartConfigurationPath is appended to the issuer to locate the
// SMART configuration document.
const WellKnownSmartConfigurationPath = "/.well-known/smart-configuration"

// SmartConfiguration is the subset of the SMART App Launch discovery
// document this client reads.
type SmartConfiguration struct {
	Issuer                        string   `json:"issuer,omitempty"`
	JWKSURI                       string   `json:"jwks_uri,omitempty"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint,omitempty"`
	TokenEndpoint                 string   `json:"token_endpoint,omitempty"`
	RevocationEndpoint            string   `json:"revocation_endpoint,omitempty"`
	ScopesSupported               []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported        []string `json:"response_types_supported,omitempty"`
	Capabilities                  []string `json:"capabilities,omitempty"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
}

// HasCapability reports whether the server advertises the capability.
func (c SmartConfiguration) HasCapability(capability string) bool {
	for _, name := range c.Capabilities {
		if name == capability {
			return true
		}
	}
	return false
}

// SupportsS256 reports whether the server accepts S256 challenges. Servers
// that omit the list are assumed to.
func (c SmartConfiguration) SupportsS256() bool {
	if len(c.CodeChallengeMethodsSupported) == 0 {
		return true
	}
	for _, m := range c.CodeChallengeMethodsSupported {
		if m == string(CodeMethodTypeS256) {
			return true
		}
	}
	return false
}
