// Package gwerrors holds the sentinel error kinds shared across the gateway
// so httpapi never has to string-match an error message to pick a status
// code.
package gwerrors

import "errors"

// Sentinel errors returned by the core components. httpapi maps each of
// these to the HTTP surface described in spec.md section 7.
var (
	ErrInvalidFilter    = errors.New("invalid_filter")
	ErrAuthFailed       = errors.New("auth_failed")
	ErrNotFound         = errors.New("not_found")
	ErrRelayTimeout     = errors.New("relay_timeout")
	ErrRelayUnavailable = errors.New("relay_unavailable")
	ErrStoreUnavailable = errors.New("store_unavailable")
	// ErrInvalidRequest covers a malformed publish request body; additive to
	// spec.md's error kind table, which does not name a kind for this case.
	ErrInvalidRequest = errors.New("invalid_request")
)
