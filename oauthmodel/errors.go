package oauthmodel

import "errors"

var (
	ErrInvalidCodeChallenge       = errors.New("invalid code challenge")
	ErrInvalidCodeChallengeMethod = errors.New("invalid code challenge method")
	ErrInvalidRedirectUri         = errors.New("invalid or no redirect uri")
	ErrInvalidResponseType        = errors.New("unsupported response type")
	ErrMissingClientID            = errors.New("client_id is required")
	ErrMissingAudience            = errors.New("aud is required")
	ErrMissingLaunch              = errors.New("launch is required")
	ErrMissingCode                = errors.New("authorization code is required")
	ErrMissingCodeVerifier        = errors.New("code_verifier is required")
)
