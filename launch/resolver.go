package launch

import (
	"net/url"

	"github.com/jrsteele09/smart-launch/internal/errors"
	"github.com/jrsteele09/smart-launch/oauthmodel"
	"github.com/jrsteele09/smart-launch/sessions"
	"github.com/rs/zerolog/log"
)

// Resolution is the launch context in effect for a page load.
type Resolution struct {
	Context sessions.LaunchContext
	// FromQuery is true when both values arrived on this request, meaning
	// the EHR has just launched the app.
	FromQuery bool
	// Invalidated is true when state from an earlier launch was discarded.
	Invalidated bool
}

// Resolve works out the launch context from the request query, falling back
// to the cached values per field, and persists it. When the context differs
// from the last one observed, every verifier, endpoint and token belonging
// to the old launch is discarded before Resolve returns.
func Resolve(query url.Values, store *sessions.Store) (Resolution, error) {
	queryContext := sessions.LaunchContext{
		Issuer:   query.Get(oauthmodel.ParamIssuer),
		LaunchID: query.Get(oauthmodel.ParamLaunch),
	}

	current := store.LaunchContext()
	if queryContext.Issuer != "" {
		current.Issuer = queryContext.Issuer
	}
	if queryContext.LaunchID != "" {
		current.LaunchID = queryContext.LaunchID
	}
	store.SetLaunchContext(current)

	res := Resolution{
		Context:   current,
		FromQuery: queryContext.Complete(),
	}
	if !current.Complete() {
		return res, errors.ErrIncompleteContext
	}

	previous, seen := store.PreviousContext()
	switch {
	case seen && !previous.Equal(current):
		log.Debug().
			Str("prev_iss", previous.Issuer).
			Str("iss", current.Issuer).
			Msg("Launch context changed, discarding previous session")
		store.Invalidate()
		store.SetPreviousContext(current)
		res.Invalidated = true

	case !seen:
		store.SetPreviousContext(current)
		// The durable tier outlives the ephemeral baseline, so a token from
		// another launch can still be on disk.
		if record, ok := store.TokenRecord(); ok && record.ContextHash != current.Hash() {
			store.ClearTokenRecord()
			res.Invalidated = true
		}
	}

	return res, nil
}
