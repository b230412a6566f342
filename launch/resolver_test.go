package launch_test

import (
	"net/url"
	"testing"
	"time"

	"github.com/jrsteele09/smart-launch/internal/errors"
	"github.com/jrsteele09/smart-launch/launch"
	"github.com/jrsteele09/smart-launch/sessions"
	"github.com/jrsteele09/smart-launch/token"
	"github.com/stretchr/testify/require"
)

func launchQuery(iss, launchID string) url.Values {
	q := url.Values{}
	if iss != "" {
		q.Set("iss", iss)
	}
	if launchID != "" {
		q.Set("launch", launchID)
	}
	return q
}

func seedSession(t *testing.T, store *sessions.Store, c sessions.LaunchContext) {
	t.Helper()
	store.SetEndpoints(sessions.Endpoints{AuthorizationEndpoint: "https://auth/authorize", TokenEndpoint: "https://auth/token"})
	require.NoError(t, store.SetVerifier(sessions.PendingVerifier{Verifier: "v", ContextHash: c.Hash()}))
	require.NoError(t, store.SetTokenRecord(&token.Record{
		AccessToken: "at",
		Issuer:      c.Issuer,
		ContextHash: c.Hash(),
		ExpiresAt:   time.Now().Add(time.Hour),
	}))
}

func TestResolveSamePairKeepsState(t *testing.T) {
	store, _, _ := newMemStore()
	c := sessions.LaunchContext{Issuer: "https://ehr.example/fhir", LaunchID: "abc123"}

	res, err := launch.Resolve(launchQuery(c.Issuer, c.LaunchID), store)
	require.NoError(t, err)
	require.True(t, res.FromQuery)
	require.False(t, res.Invalidated)

	seedSession(t, store, c)

	res, err = launch.Resolve(launchQuery(c.Issuer, c.LaunchID), store)
	require.NoError(t, err)
	require.False(t, res.Invalidated)

	require.True(t, store.Endpoints().Complete())
	_, ok := store.Verifier()
	require.True(t, ok)
	_, ok = store.TokenRecord()
	require.True(t, ok)
}

func TestResolveNewPairInvalidates(t *testing.T) {
	store, _, _ := newMemStore()
	a := sessions.LaunchContext{Issuer: "https://ehr.example/fhir", LaunchID: "abc123"}

	_, err := launch.Resolve(launchQuery(a.Issuer, a.LaunchID), store)
	require.NoError(t, err)
	seedSession(t, store, a)

	res, err := launch.Resolve(launchQuery(a.Issuer, "def456"), store)
	require.NoError(t, err)
	require.True(t, res.Invalidated)
	require.Equal(t, "def456", res.Context.LaunchID)

	require.Equal(t, sessions.Endpoints{}, store.Endpoints())
	_, ok := store.Verifier()
	require.False(t, ok)
	_, ok = store.TokenRecord()
	require.False(t, ok)

	prev, ok := store.PreviousContext()
	require.True(t, ok)
	require.Equal(t, res.Context, prev)
}

func TestResolveFallsBackToCache(t *testing.T) {
	store, _, _ := newMemStore()

	_, err := launch.Resolve(launchQuery("https://ehr.example/fhir", "abc123"), store)
	require.NoError(t, err)

	t.Run("callback without launch values", func(t *testing.T) {
		res, err := launch.Resolve(url.Values{"code": {"xyz"}}, store)
		require.NoError(t, err)
		require.False(t, res.FromQuery)
		require.Equal(t, "abc123", res.Context.LaunchID)
	})

	t.Run("only launch on the query", func(t *testing.T) {
		res, err := launch.Resolve(launchQuery("", "abc123"), store)
		require.NoError(t, err)
		require.False(t, res.FromQuery)
		require.Equal(t, "https://ehr.example/fhir", res.Context.Issuer)
	})
}

func TestResolveIncomplete(t *testing.T) {
	store, ephemeral, _ := newMemStore()

	_, err := launch.Resolve(launchQuery("https://ehr.example/fhir", ""), store)
	require.ErrorIs(t, err, errors.ErrIncompleteContext)

	// The partial value is still cached for the next load.
	require.Equal(t, "https://ehr.example/fhir", ephemeral.Snapshot()[sessions.KeyIssuer])

	res, err := launch.Resolve(launchQuery("", "abc123"), store)
	require.NoError(t, err)
	require.True(t, res.Context.Complete())
}

func TestResolveFirstObservationClearsForeignRecord(t *testing.T) {
	other := sessions.LaunchContext{Issuer: "https://ehr.example/fhir", LaunchID: "old"}

	t.Run("record from another launch", func(t *testing.T) {
		store, _, _ := newMemStore()
		require.NoError(t, store.SetTokenRecord(&token.Record{AccessToken: "at", ContextHash: other.Hash(), ExpiresAt: time.Now().Add(time.Hour)}))

		res, err := launch.Resolve(launchQuery(other.Issuer, "new"), store)
		require.NoError(t, err)
		require.True(t, res.Invalidated)
		_, ok := store.TokenRecord()
		require.False(t, ok)
	})

	t.Run("record from the same launch", func(t *testing.T) {
		store, _, _ := newMemStore()
		require.NoError(t, store.SetTokenRecord(&token.Record{AccessToken: "at", ContextHash: other.Hash(), ExpiresAt: time.Now().Add(time.Hour)}))

		res, err := launch.Resolve(launchQuery(other.Issuer, other.LaunchID), store)
		require.NoError(t, err)
		require.False(t, res.Invalidated)
		_, ok := store.TokenRecord()
		require.True(t, ok)
	})
}
