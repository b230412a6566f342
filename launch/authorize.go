package launch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/smart-launch/oauthmodel"
	"github.com/jrsteele09/smart-launch/sessions"
	"golang.org/x/oauth2"
)

// Redirector performs the full-page navigation to the authorization server.
type Redirector interface {
	Redirect(ctx context.Context, authorizationURL string) error
}

// HTTPRedirector answers the current request with a 302 Found.
type HTTPRedirector struct {
	W http.ResponseWriter
	R *http.Request
}

func (h HTTPRedirector) Redirect(_ context.Context, authorizationURL string) error {
	http.Redirect(h.W, h.R, authorizationURL, http.StatusFound)
	return nil
}

// RedirectFunc adapts a function to a Redirector.
type RedirectFunc func(ctx context.Context, authorizationURL string) error

func (f RedirectFunc) Redirect(ctx context.Context, authorizationURL string) error {
	return f(ctx, authorizationURL)
}

// Navigate waits for delay, then hands authorizationURL to r. The verifier
// must already be persisted.
func Navigate(ctx context.Context, r Redirector, authorizationURL string, delay time.Duration) error {
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return r.Redirect(ctx, authorizationURL)
}

// BuildAuthorizationURL returns the authorization request for an EHR launch.
// No state parameter is sent; the launch id binds the request to the EHR
// session.
func BuildAuthorizationURL(endpoints sessions.Endpoints, lc sessions.LaunchContext, challenge string, client ClientConfig) (string, error) {
	params := oauthmodel.AuthorizationParameters{
		ClientID:            client.ClientID,
		RedirectURI:         client.RedirectURI,
		Scope:               strings.Join(client.Scopes, " "),
		ResponseType:        oauthmodel.CodeResponseType,
		Aud:                 lc.Issuer,
		Launch:              lc.LaunchID,
		CodeChallenge:       challenge,
		CodeChallengeMethod: oauthmodel.CodeMethodTypeS256,
	}
	if err := params.Validate(); err != nil {
		return "", fmt.Errorf("[BuildAuthorizationURL] %w", err)
	}
	if endpoints.AuthorizationEndpoint == "" {
		return "", fmt.Errorf("[BuildAuthorizationURL] authorization endpoint is required")
	}

	config := oauth2Config(endpoints, client)
	return config.AuthCodeURL("",
		oauth2.SetAuthURLParam(oauthmodel.ParamAudience, params.Aud),
		oauth2.SetAuthURLParam(oauthmodel.ParamLaunch, params.Launch),
		oauth2.SetAuthURLParam(oauthmodel.ParamCodeChallenge, params.CodeChallenge),
		oauth2.SetAuthURLParam(oauthmodel.ParamCodeChallengeMethod, string(params.CodeChallengeMethod)),
	), nil
}

func oauth2Config(endpoints sessions.Endpoints, client ClientConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    client.ClientID,
		RedirectURL: client.RedirectURI,
		Scopes:      client.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   endpoints.AuthorizationEndpoint,
			TokenURL:  endpoints.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}
