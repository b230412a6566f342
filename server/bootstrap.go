package server

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/jrsteele09/smart-launch/internal/config"
	"github.com/jrsteele09/smart-launch/launch"
	"github.com/jrsteele09/smart-launch/pkce"
	"github.com/jrsteele09/smart-launch/sessions/cookiestore"
	"github.com/rs/zerolog/log"
)

// sessionsFolder holds the durable tier under the data folder.
const sessionsFolder = "sessions"

// NewFromConfig wires the cookie stores, the launch machine and the server
// from configuration. A nil httpClient means http.DefaultClient.
func NewFromConfig(c config.Config, httpClient *http.Client) (*Server, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("[NewFromConfig] invalid configuration: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	stores, err := cookiestore.New(cookiestore.Options{
		HashKey:       c.GetSessionHashKey(),
		BlockKey:      c.GetSessionBlockKey(),
		Dir:           filepath.Join(c.GetDataFolder(), sessionsFolder),
		DurableMaxAge: c.GetDurableSessionMaxAge(),
		Secure:        strings.HasPrefix(c.GetRedirectURI(), "https://"),
	})
	if err != nil {
		return nil, fmt.Errorf("[NewFromConfig] %w", err)
	}

	machine, err := NewMachine(c, httpClient)
	if err != nil {
		return nil, fmt.Errorf("[NewFromConfig] %w", err)
	}

	log.Info().
		Str("client_id", c.GetClientID()).
		Str("redirect_uri", c.GetRedirectURI()).
		Bool("strict_discovery", c.GetStrictDiscovery()).
		Msg("Launch client configured")

	return New(c, machine, stores, WithHTTPClient(httpClient))
}

// NewMachine builds the launch state machine described by c.
func NewMachine(c config.Config, httpClient *http.Client) (*launch.Machine, error) {
	generator, err := pkce.NewGenerator(c.GetVerifierLength())
	if err != nil {
		return nil, err
	}
	return launch.NewMachine(
		launch.ClientConfig{
			ClientID:    c.GetClientID(),
			RedirectURI: c.GetRedirectURI(),
			Scopes:      c.GetScopes(),
		},
		launch.WithGenerator(generator),
		launch.WithHTTPClient(httpClient),
		launch.WithHTTPTimeout(c.GetHTTPTimeout()),
		launch.WithStrictDiscovery(c.GetStrictDiscovery()),
		launch.WithIDTokenVerification(c.GetVerifyIDToken()),
	)
}
