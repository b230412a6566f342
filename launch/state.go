// Package launch drives a SMART-on-FHIR EHR launch: it resolves the launch
// context, discovers the EHR's OAuth2 endpoints, sends the browser to the
// authorization server with a PKCE challenge and exchanges the returned
// code for an access token.
package launch

import (
	"time"
)

// State is a step of the launch state machine.
type State string

const (
	StateInit                   State = "Init"
	StateResolvingContext       State = "ResolvingContext"
	StateDiscoveringEndpoints   State = "DiscoveringEndpoints"
	StateReusingSession         State = "ReusingSession"
	StateGeneratingChallenge    State = "GeneratingChallenge"
	StateRedirectingToAuthorize State = "RedirectingToAuthorize"
	StateAwaitingCallback       State = "AwaitingCallback"
	StateExchangingCode         State = "ExchangingCode"
	StateAuthenticated          State = "Authenticated"
	StateFailed                 State = "Failed"
)

// Terminal reports whether no further page load can move the machine on
// without a new launch.
func (s State) Terminal() bool {
	return s == StateAuthenticated || s == StateFailed
}

// ClientConfig is the app registration used for every launch.
type ClientConfig struct {
	ClientID    string
	RedirectURI string
	Scopes      []string
}

// Session is what consumers of an authenticated launch get to use.
type Session struct {
	AccessToken string
	PatientID   string
	Issuer      string
	Encounter   string
	Scope       string
	FHIRUser    string
	ExpiresAt   time.Time
}

// Outcome is the result of one page load.
type Outcome struct {
	// State is where the machine stopped.
	State State
	// Trail lists every state entered, in order.
	Trail []State

	// AuthorizationURL is set in StateRedirectingToAuthorize. The host
	// navigates the browser there.
	AuthorizationURL string

	// Session is set in StateAuthenticated.
	Session *Session

	// Error and ErrorDetails are set in StateFailed.
	Error        string
	ErrorDetails any

	// Reason explains why the machine parked in a non-terminal state
	// (incomplete context, discovery problems).
	Reason error
}

func (o *Outcome) enter(s State) {
	o.State = s
	o.Trail = append(o.Trail, s)
}
