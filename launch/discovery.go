package launch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/smart-launch/internal/errors"
	"github.com/jrsteele09/smart-launch/oauthmodel"
	"github.com/jrsteele09/smart-launch/sessions"
	"golang.org/x/sync/singleflight"
)

// Discovery fetches SMART configuration documents. Concurrent requests for
// the same issuer share one fetch.
type Discovery struct {
	client  *http.Client
	timeout time.Duration
	group   singleflight.Group
}

// NewDiscovery returns a Discovery using client, or http.DefaultClient when
// client is nil. A zero timeout leaves requests bounded only by ctx.
func NewDiscovery(client *http.Client, timeout time.Duration) *Discovery {
	if client == nil {
		client = http.DefaultClient
	}
	return &Discovery{
		client:  client,
		timeout: timeout,
	}
}

// Fetch retrieves {issuer}/.well-known/smart-configuration. There is no
// retry.
func (d *Discovery) Fetch(ctx context.Context, issuer string) (*oauthmodel.SmartConfiguration, error) {
	issuer = strings.TrimRight(issuer, "/")
	if u, err := url.Parse(issuer); err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, errors.Wrapf(errors.ErrInvalidIssuer, "[Discovery Fetch] %q", issuer)
	}
	// The shared fetch outlives any one caller; each caller still stops
	// waiting when its own ctx ends.
	results := d.group.DoChan(issuer, func() (any, error) {
		return d.fetch(context.WithoutCancel(ctx), issuer)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("[Discovery Fetch] %w: %w", errors.ErrDiscoveryFailed, ctx.Err())
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		// Every caller gets its own copy of the shared result.
		config := *res.Val.(*oauthmodel.SmartConfiguration)
		return &config, nil
	}
}

func (d *Discovery) fetch(ctx context.Context, issuer string) (*oauthmodel.SmartConfiguration, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	wellKnown := issuer + oauthmodel.WellKnownSmartConfigurationPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDiscoveryFailed, "[Discovery Fetch] %s: %v", wellKnown, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDiscoveryFailed, "[Discovery Fetch] %s: %v", wellKnown, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Wrapf(errors.ErrDiscoveryFailed, "[Discovery Fetch] %s returned status %d: %s", wellKnown, resp.StatusCode, string(body))
	}

	var config oauthmodel.SmartConfiguration
	if err := json.NewDecoder(resp.Body).Decode(&config); err != nil {
		return nil, errors.Wrapf(errors.ErrDiscoveryFailed, "[Discovery Fetch] failed to decode %s: %v", wellKnown, err)
	}
	return &config, nil
}

// Discover returns the issuer's endpoints, from the session cache when both
// are already known. Whatever the document provides is cached, even when
// an endpoint is missing; the missing ones are reported through
// ErrEndpointsMissing.
func (d *Discovery) Discover(ctx context.Context, issuer string, store *sessions.Store) (sessions.Endpoints, *oauthmodel.SmartConfiguration, error) {
	if cached := store.Endpoints(); cached.Complete() {
		return cached, nil, nil
	}

	config, err := d.Fetch(ctx, issuer)
	if err != nil {
		return sessions.Endpoints{}, nil, err
	}

	store.SetEndpoints(sessions.Endpoints{
		AuthorizationEndpoint: config.AuthorizationEndpoint,
		TokenEndpoint:         config.TokenEndpoint,
		Issuer:                config.Issuer,
		JWKSURI:               config.JWKSURI,
	})
	endpoints := store.Endpoints()

	var missing []string
	if endpoints.AuthorizationEndpoint == "" {
		missing = append(missing, "authorization_endpoint")
	}
	if endpoints.TokenEndpoint == "" {
		missing = append(missing, "token_endpoint")
	}
	if len(missing) > 0 {
		return endpoints, config, fmt.Errorf("[Discovery Discover] %s: %w: %s", issuer, errors.ErrEndpointsMissing, strings.Join(missing, ", "))
	}
	return endpoints, config, nil
}
