package launch

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/smart-launch/internal/errors"
	"github.com/jrsteele09/smart-launch/oauthmodel"
	"github.com/jrsteele09/smart-launch/pkce"
	"github.com/jrsteele09/smart-launch/sessions"
	"github.com/jrsteele09/smart-launch/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultVerifierLength is the PKCE verifier length used when no generator
// is supplied.
const DefaultVerifierLength = 64

// PageLoad is one navigation of the browser to the redirect URI.
type PageLoad struct {
	Query url.Values
}

// Machine runs the launch state machine. It keeps no per-browser state;
// everything lives in the sessions.Store handed to Run.
type Machine struct {
	client          ClientConfig
	discovery       *Discovery
	generator       *pkce.Generator
	httpClient      *http.Client
	httpTimeout     time.Duration
	strictDiscovery bool
	verifyIDToken   bool
	nowTime         func() time.Time
	logger          zerolog.Logger
}

// MachineOption defines a function type to modify the Machine instance.
type MachineOption func(*Machine)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) MachineOption {
	return func(m *Machine) {
		m.nowTime = nowFunc
	}
}

// WithLogger replaces the global logger.
func WithLogger(logger zerolog.Logger) MachineOption {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithHTTPClient sets the client used for discovery, the token endpoint and
// key fetches.
func WithHTTPClient(client *http.Client) MachineOption {
	return func(m *Machine) {
		m.httpClient = client
	}
}

// WithHTTPTimeout bounds each discovery and token request.
func WithHTTPTimeout(timeout time.Duration) MachineOption {
	return func(m *Machine) {
		m.httpTimeout = timeout
	}
}

// WithDiscovery shares a Discovery between machines.
func WithDiscovery(d *Discovery) MachineOption {
	return func(m *Machine) {
		m.discovery = d
	}
}

// WithGenerator sets the PKCE generator.
func WithGenerator(g *pkce.Generator) MachineOption {
	return func(m *Machine) {
		m.generator = g
	}
}

// WithStrictDiscovery turns discovery problems into a failed launch instead
// of leaving the machine parked in DiscoveringEndpoints.
func WithStrictDiscovery(strict bool) MachineOption {
	return func(m *Machine) {
		m.strictDiscovery = strict
	}
}

// WithIDTokenVerification enables signature checks on id_tokens when the
// authorization server publishes a jwks_uri.
func WithIDTokenVerification(verify bool) MachineOption {
	return func(m *Machine) {
		m.verifyIDToken = verify
	}
}

// NewMachine creates a Machine for the registered client.
func NewMachine(client ClientConfig, options ...MachineOption) (*Machine, error) {
	if client.ClientID == "" {
		return nil, errors.New("[NewMachine] client id is required")
	}
	if client.RedirectURI == "" {
		return nil, errors.New("[NewMachine] redirect uri is required")
	}

	m := &Machine{
		client:        client,
		verifyIDToken: true,
		nowTime:       time.Now,
		logger:        log.Logger,
	}
	for _, opt := range options {
		opt(m)
	}

	if m.generator == nil {
		generator, err := pkce.NewGenerator(DefaultVerifierLength)
		if err != nil {
			return nil, err
		}
		m.generator = generator
	}
	if m.discovery == nil {
		m.discovery = NewDiscovery(m.httpClient, m.httpTimeout)
	}

	return m, nil
}

// Discovery returns the machine's discovery client.
func (m *Machine) Discovery() *Discovery {
	return m.discovery
}

// Run executes one page load against store. The returned error is only set
// when storage itself fails; launch problems are reported on the Outcome.
func (m *Machine) Run(ctx context.Context, store *sessions.Store, load PageLoad) (Outcome, error) {
	out := Outcome{}
	out.enter(StateInit)
	out.enter(StateResolvingContext)

	res, err := Resolve(load.Query, store)
	if err != nil {
		out.Reason = err
		m.logger.Debug().Str("state", string(out.State)).Msg("Launch context incomplete")
		return out, nil
	}
	logger := m.logger.With().
		Str("iss", res.Context.Issuer).
		Str("launch", res.Context.LaunchID).
		Logger()
	if res.Invalidated {
		logger.Info().Msg("New launch, previous session discarded")
	}

	record, _ := store.TokenRecord()
	if record.Failed() {
		return m.failed(out, record, logger), nil
	}

	m.transition(&out, StateDiscoveringEndpoints, logger)
	endpoints, config, err := m.discovery.Discover(ctx, res.Context.Issuer, store)
	if err != nil {
		if m.strictDiscovery && !errors.Is(err, context.Canceled) {
			failure := token.Failure(err.Error(), nil)
			failure.Issuer = res.Context.Issuer
			failure.ContextHash = res.Context.Hash()
			if saveErr := store.SetTokenRecord(failure); saveErr != nil {
				return out, saveErr
			}
			return m.failed(out, failure, logger), nil
		}
		logger.Warn().Err(err).Msg("Endpoint discovery stalled")
		out.Reason = err
		return out, nil
	}
	if config != nil && !config.SupportsS256() {
		logger.Warn().Strs("methods", config.CodeChallengeMethodsSupported).Msg("Authorization server does not advertise S256")
	}

	if record.Valid(m.nowTime()) {
		m.transition(&out, StateReusingSession, logger)
		return m.authenticated(out, record, logger), nil
	}

	if errCode := load.Query.Get(oauthmodel.ParamError); errCode != "" {
		store.ClearVerifier()
		failure := token.Failure(errCode, load.Query.Get(oauthmodel.ParamErrorDescription))
		failure.Issuer = res.Context.Issuer
		failure.ContextHash = res.Context.Hash()
		if err := store.SetTokenRecord(failure); err != nil {
			return out, err
		}
		logger.Warn().Str("error", errCode).Err(apperrors.ErrAuthorizationDenied).Msg("Authorization server refused the request")
		return m.failed(out, failure, logger), nil
	}

	if code := load.Query.Get(oauthmodel.ParamCode); code != "" {
		m.transition(&out, StateExchangingCode, logger)
		record, err := m.newExchanger(logger).exchange(ctx, code, endpoints, res.Context, store)
		if record == nil || (err != nil && !record.Failed()) {
			return out, err
		}
		if record.Failed() {
			return m.failed(out, record, logger), nil
		}
		return m.authenticated(out, record, logger), nil
	}

	// A cached context only waits while an authorization for it is in
	// flight. A stale or missing token otherwise starts a new cycle.
	if pending, ok := store.Verifier(); ok && !res.FromQuery && pending.BoundTo(res.Context) {
		m.transition(&out, StateAwaitingCallback, logger)
		return out, nil
	}

	m.transition(&out, StateGeneratingChallenge, logger)
	pair, err := m.generator.Generate()
	if err != nil {
		return out, err
	}
	pending := sessions.PendingVerifier{
		Verifier:    pair.Verifier,
		ContextHash: res.Context.Hash(),
		AttemptID:   uuid.NewString(),
		CreatedAt:   m.nowTime().UTC(),
	}
	if err := store.SetVerifier(pending); err != nil {
		return out, err
	}

	authorizationURL, err := BuildAuthorizationURL(endpoints, res.Context, pair.Challenge, m.client)
	if err != nil {
		return out, err
	}
	m.transition(&out, StateRedirectingToAuthorize, logger)
	out.AuthorizationURL = authorizationURL
	logger.Info().Str("attempt_id", pending.AttemptID).Msg("Redirecting to authorization server")
	return out, nil
}

func (m *Machine) newExchanger(logger zerolog.Logger) *exchanger {
	return &exchanger{
		client:        m.client,
		httpClient:    m.httpClient,
		timeout:       m.httpTimeout,
		verifyIDToken: m.verifyIDToken,
		nowTime:       m.nowTime,
		logger:        logger,
	}
}

func (m *Machine) transition(out *Outcome, s State, logger zerolog.Logger) {
	out.enter(s)
	logger.Debug().Str("state", string(s)).Msg("Launch state")
}

func (m *Machine) authenticated(out Outcome, record *token.Record, logger zerolog.Logger) Outcome {
	m.transition(&out, StateAuthenticated, logger)
	out.Session = &Session{
		AccessToken: record.AccessToken,
		PatientID:   record.Patient,
		Issuer:      record.Issuer,
		Encounter:   record.Encounter,
		Scope:       record.Scope,
		FHIRUser:    record.FHIRUser,
		ExpiresAt:   record.ExpiresAt,
	}
	return out
}

func (m *Machine) failed(out Outcome, record *token.Record, logger zerolog.Logger) Outcome {
	m.transition(&out, StateFailed, logger)
	out.Error = record.Error
	out.ErrorDetails = record.ErrorDetails
	return out
}
