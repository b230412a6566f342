package pkce_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/jrsteele09/smart-launch/oauthmodel"
	"github.com/jrsteele09/smart-launch/pkce"
	"github.com/stretchr/testify/require"
)

// RFC 7636 appendix B
const (
	rfcVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	rfcChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

func TestChallenge(t *testing.T) {
	require.Equal(t, rfcChallenge, pkce.Challenge(rfcVerifier))
	require.Equal(t, pkce.Challenge(rfcVerifier), pkce.Challenge(rfcVerifier))
	require.NotContains(t, pkce.Challenge(rfcVerifier), "=")
}

func TestGenerator_Generate(t *testing.T) {
	g, err := pkce.NewGenerator(64)
	require.NoError(t, err)

	first, err := g.Generate()
	require.NoError(t, err)
	second, err := g.Generate()
	require.NoError(t, err)

	require.Len(t, first.Verifier, 64)
	require.NoError(t, pkce.ValidateVerifier(first.Verifier))
	require.Equal(t, oauthmodel.CodeMethodTypeS256, first.Method)
	require.Equal(t, pkce.Challenge(first.Verifier), first.Challenge)
	require.Len(t, first.Challenge, 43)

	require.NotEqual(t, first.Verifier, second.Verifier)
	require.NotEqual(t, first.Challenge, second.Challenge)
	require.True(t, pkce.Verify(first.Verifier, first.Challenge, first.Method))
	require.False(t, pkce.Verify(second.Verifier, first.Challenge, first.Method))
}

func TestGenerator_HexTruncation(t *testing.T) {
	g, err := pkce.NewGenerator(43, pkce.WithRandom(bytes.NewReader(bytes.Repeat([]byte{0xab}, 43))))
	require.NoError(t, err)

	pair, err := g.Generate()
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("ab", 22)[:43], pair.Verifier)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestGenerator_Errors(t *testing.T) {
	_, err := pkce.NewGenerator(42)
	require.Error(t, err)
	_, err = pkce.NewGenerator(129)
	require.Error(t, err)

	g, err := pkce.NewGenerator(64, pkce.WithRandom(failingReader{}))
	require.NoError(t, err)
	_, err = g.Generate()
	require.ErrorContains(t, err, "entropy exhausted")
}

func TestValidateVerifier(t *testing.T) {
	require.NoError(t, pkce.ValidateVerifier(rfcVerifier))
	require.Error(t, pkce.ValidateVerifier("short"))
	require.Error(t, pkce.ValidateVerifier(strings.Repeat("a", 129)))
	require.Error(t, pkce.ValidateVerifier(strings.Repeat("a", 42)+"+"))
}

func TestValidatePKCE(t *testing.T) {
	t.Run("valid S256", func(t *testing.T) {
		require.NoError(t, pkce.ValidatePKCE(rfcChallenge, "S256", true))
	})

	t.Run("missing both when required", func(t *testing.T) {
		err := pkce.ValidatePKCE("", "", true)
		require.Error(t, err)
		require.Contains(t, err.Error(), "PKCE required")
	})

	t.Run("missing both when optional", func(t *testing.T) {
		require.NoError(t, pkce.ValidatePKCE("", "", false))
	})

	t.Run("challenge too short", func(t *testing.T) {
		err := pkce.ValidatePKCE("tooshort", "S256", false)
		require.Error(t, err)
		require.Contains(t, err.Error(), "length must be between")
	})

	t.Run("invalid method", func(t *testing.T) {
		err := pkce.ValidatePKCE(rfcChallenge, "invalid", false)
		require.Error(t, err)
		require.Contains(t, err.Error(), "must be 'S256' or 'plain'")
	})
}
