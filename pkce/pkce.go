// Package pkce generates and validates Proof Key for Code Exchange values
// (RFC 7636) for the authorization code grant.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/jrsteele09/smart-launch/internal/errors"
	"github.com/jrsteele09/smart-launch/oauthmodel"
)

const (
	MinVerifierLength = 43
	MaxVerifierLength = 128
)

// Pair is one authorization attempt's verifier and the challenge sent in
// the authorization request.
type Pair struct {
	Verifier  string // Hex string, kept client side until the code exchange
	Challenge string // Base64URL(SHA256(verifier)), no padding
	Method    oauthmodel.CodeMethodType
}

// Generator creates verifiers of a fixed length.
type Generator struct {
	length int
	random io.Reader
}

// GeneratorOption modifies a Generator.
type GeneratorOption func(*Generator)

// WithRandom replaces crypto/rand as the byte source (primarily for testing).
func WithRandom(r io.Reader) GeneratorOption {
	return func(g *Generator) {
		g.random = r
	}
}

// NewGenerator returns a generator producing verifiers of length characters.
func NewGenerator(length int, options ...GeneratorOption) (*Generator, error) {
	if length < MinVerifierLength || length > MaxVerifierLength {
		return nil, fmt.Errorf("[NewGenerator] verifier length must be between %d and %d, got %d", MinVerifierLength, MaxVerifierLength, length)
	}
	g := &Generator{
		length: length,
		random: rand.Reader,
	}
	for _, opt := range options {
		opt(g)
	}
	return g, nil
}

// Generate returns a fresh verifier and its S256 challenge.
func (g *Generator) Generate() (Pair, error) {
	verifier, err := g.randomHex()
	if err != nil {
		return Pair{}, fmt.Errorf("[Generator Generate] %w", err)
	}
	pair := Pair{
		Verifier:  verifier,
		Challenge: Challenge(verifier),
		Method:    oauthmodel.CodeMethodTypeS256,
	}
	if err := ValidateVerifier(pair.Verifier); err != nil {
		return Pair{}, errors.Wrapf(errors.ErrInvalidCodeVerifier, "[Generator Generate] %v", err)
	}
	if err := ValidatePKCE(pair.Challenge, string(pair.Method), true); err != nil {
		return Pair{}, errors.Wrapf(errors.ErrInvalidCodeChallenge, "[Generator Generate] %v", err)
	}
	return pair, nil
}

// randomHex reads length random bytes and keeps the first length hex
// characters of their encoding.
func (g *Generator) randomHex() (string, error) {
	b := make([]byte, g.length)
	if _, err := io.ReadFull(g.random, b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b)[:g.length], nil
}

// Challenge derives the S256 code challenge from a verifier.
func Challenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// Verify reports whether verifier matches challenge under method.
func Verify(verifier, challenge string, method oauthmodel.CodeMethodType) bool {
	switch method {
	case oauthmodel.CodeMethodTypeS256:
		return Challenge(verifier) == challenge
	case oauthmodel.CodeMethodTypeNone:
		return verifier == challenge
	}
	return false
}
