package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	clientIDVar       = "CLIENT_ID"
	redirectURIVar    = "REDIRECT_URI"
	scopeVar          = "SCOPE"
	verifierLengthVar = "VERIFIER_LENGTH"
	redirectDelayVar  = "REDIRECT_DELAY"
	httpTimeoutVar    = "HTTP_TIMEOUT"

	defaultClientID    = "ddd5883d-63eb-4ee7-91b4-0dbe58d2ed39"
	defaultRedirectURI = "http://localhost:3001"

	// DefaultScope is requested on every authorization.
	DefaultScope = "openid fhirUser launch user/Patient.crus user/Observation.crus"
)

type OAuthConfig interface {
	GetClientID() string
	GetRedirectURI() string
	GetScopes() []string
	GetVerifierLength() int
	GetRedirectDelay() time.Duration
	GetHTTPTimeout() time.Duration
}

type OAuth struct {
	v *viper.Viper
}

var _ OAuthConfig = OAuth{}

func (o OAuth) GetClientID() string {
	return o.v.GetString(clientIDVar)
}

func (o OAuth) GetRedirectURI() string {
	return o.v.GetString(redirectURIVar)
}

func (o OAuth) GetScopes() []string {
	return strings.Fields(o.v.GetString(scopeVar))
}

func (o OAuth) GetVerifierLength() int {
	return o.v.GetInt(verifierLengthVar)
}

// GetRedirectDelay is the pause before navigating to the authorization
// endpoint. Zero disables it.
func (o OAuth) GetRedirectDelay() time.Duration {
	return o.v.GetDuration(redirectDelayVar)
}

// GetHTTPTimeout bounds discovery and token calls. Zero means no timeout.
func (o OAuth) GetHTTPTimeout() time.Duration {
	return o.v.GetDuration(httpTimeoutVar)
}

func (o OAuth) validate() error {
	if o.GetClientID() == "" {
		return fmt.Errorf("%s is required", clientIDVar)
	}
	redirect := o.GetRedirectURI()
	if !strings.HasPrefix(redirect, "http://") && !strings.HasPrefix(redirect, "https://") {
		return fmt.Errorf("%s must use http or https scheme, got %q", redirectURIVar, redirect)
	}
	if n := o.GetVerifierLength(); n < 43 || n > 128 {
		return fmt.Errorf("%s must be between 43 and 128, got %d", verifierLengthVar, n)
	}
	return nil
}
