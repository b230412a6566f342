// Package cookiestore keeps the two storage tiers in the browser: the
// ephemeral tier in an encrypted session cookie, the durable tier in a
// server-side file keyed by a long-lived cookie.
package cookiestore

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	gsessions "github.com/gorilla/sessions"
	"github.com/jrsteele09/smart-launch/sessions"
	"github.com/rs/zerolog/log"
)

const (
	DefaultEphemeralName = "smart_launch"
	DefaultDurableName   = "smart_launch_token"
)

// Options configures the cookie stores.
type Options struct {
	HashKey  []byte
	BlockKey []byte

	// Dir holds the durable tier files.
	Dir string
	// DurableMaxAge bounds the lifetime of the durable cookie and its file.
	DurableMaxAge time.Duration
	Secure        bool

	EphemeralName string
	DurableName   string
}

// Stores opens per-request storage tiers.
type Stores struct {
	ephemeral     *gsessions.CookieStore
	durable       *gsessions.FilesystemStore
	ephemeralName string
	durableName   string
}

// New creates the cookie stores.
func New(opts Options) (*Stores, error) {
	if len(opts.HashKey) == 0 {
		return nil, errors.New("[cookiestore New] hash key is required")
	}
	if opts.Dir == "" {
		return nil, errors.New("[cookiestore New] durable session directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("[cookiestore New] %w", err)
	}
	if opts.EphemeralName == "" {
		opts.EphemeralName = DefaultEphemeralName
	}
	if opts.DurableName == "" {
		opts.DurableName = DefaultDurableName
	}

	keys := [][]byte{opts.HashKey}
	if len(opts.BlockKey) > 0 {
		keys = append(keys, opts.BlockKey)
	}

	ephemeral := gsessions.NewCookieStore(keys...)
	ephemeral.Options = &gsessions.Options{
		Path:     "/",
		MaxAge:   0, // session cookie, gone when the browser closes
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}

	durable := gsessions.NewFilesystemStore(opts.Dir, keys...)
	durable.MaxAge(int(opts.DurableMaxAge.Seconds()))
	durable.MaxLength(0)
	durable.Options.HttpOnly = true
	durable.Options.Secure = opts.Secure
	durable.Options.SameSite = http.SameSiteLaxMode

	return &Stores{
		ephemeral:     ephemeral,
		durable:       durable,
		ephemeralName: opts.EphemeralName,
		durableName:   opts.DurableName,
	}, nil
}

// Open loads both tiers for the browser behind r. Cookies that fail to
// decode are replaced by empty sessions.
func (s *Stores) Open(r *http.Request, w http.ResponseWriter) *Browser {
	ephemeral, err := s.ephemeral.Get(r, s.ephemeralName)
	if err != nil {
		log.Warn().Err(err).Str("cookie", s.ephemeralName).Msg("Discarding unreadable session cookie")
	}
	durable, err := s.durable.Get(r, s.durableName)
	if err != nil {
		log.Warn().Err(err).Str("cookie", s.durableName).Msg("Discarding unreadable durable session")
	}

	b := &Browser{
		r:         r,
		w:         w,
		ephemeral: &Tier{session: ephemeral},
		durable:   &Tier{session: durable},
	}
	b.store = sessions.New(b.ephemeral, b.durable)
	return b
}

// Browser is one request's view of the browser's storage.
type Browser struct {
	r         *http.Request
	w         http.ResponseWriter
	ephemeral *Tier
	durable   *Tier
	store     *sessions.Store
}

// Store returns the typed store over both tiers.
func (b *Browser) Store() *sessions.Store {
	return b.store
}

// Save writes changed tiers back as Set-Cookie headers. It must run before
// the response body is written.
func (b *Browser) Save() error {
	for _, tier := range []*Tier{b.ephemeral, b.durable} {
		if !tier.dirty {
			continue
		}
		if err := tier.session.Save(b.r, b.w); err != nil {
			return fmt.Errorf("[Browser Save] %s: %w", tier.session.Name(), err)
		}
		tier.dirty = false
	}
	return nil
}

var _ sessions.KV = (*Tier)(nil)

// Tier adapts a gorilla session to a storage tier.
type Tier struct {
	session *gsessions.Session
	dirty   bool
}

func (t *Tier) Get(key string) (string, bool) {
	v, ok := t.session.Values[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (t *Tier) Set(key, value string) {
	if current, ok := t.Get(key); ok && current == value {
		return
	}
	t.session.Values[key] = value
	t.dirty = true
}

func (t *Tier) Delete(key string) {
	if _, ok := t.session.Values[key]; !ok {
		return
	}
	delete(t.session.Values, key)
	t.dirty = true
}
