package bsmart

import "errors"

// Error taxonomy for the acquisition pipeline. Every terminal failure maps
// to exactly one of these sentinels; callers branch with errors.Is.
var (
	// ErrInvalidCredentials means the login POST did not yield a session
	// cookie, i.e. the email/password pair was rejected.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrTokenExchange means login succeeded at the cookie level but the
	// account auth token could not be obtained.
	ErrTokenExchange = errors.New("auth token exchange failed")

	// ErrNotAuthenticated means an operation was attempted before login.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrMetadataUnavailable means book metadata is missing fields required
	// downstream (page_count, book_code, publisher identity).
	ErrMetadataUnavailable = errors.New("book metadata unavailable")

	// ErrAssetNotFound means the landing page no longer references a script
	// asset matching the expected filename pattern.
	ErrAssetNotFound = errors.New("script asset not found")

	// ErrKeyExtraction means the script asset no longer carries the
	// obfuscated private key block. Retrying cannot help; the upstream
	// bundle format drifted.
	ErrKeyExtraction = errors.New("signing key extraction failed")

	// ErrSigningFailed means the recovered key could not be parsed or used
	// to sign the authorization token.
	ErrSigningFailed = errors.New("token signing failed")

	// ErrAuthorizationRejected means the platform refused to exchange the
	// signed token for image-access credentials.
	ErrAuthorizationRejected = errors.New("book authorization rejected")
)
