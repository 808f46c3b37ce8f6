package sentinel

import "errors"

// Sentinel dependency errors. Dependencies should return these (optionally wrapped)
// so callers can translate them into a skip or a failure exactly once.
var (
	// ErrNotFound signals the identity service has no user for the id, or a
	// store lookup missed. Not a failure.
	ErrNotFound = errors.New("not found")
	// ErrAuth signals the client-credentials exchange could not produce a token.
	ErrAuth = errors.New("authentication failed")
	// ErrUpstream signals a non-404 failure calling the identity service.
	ErrUpstream = errors.New("upstream failure")
	// ErrAlreadyExists signals the store's uniqueness guard rejected an insert.
	ErrAlreadyExists = errors.New("already exists")
	// ErrUnavailable signals an infrastructure dependency is unreachable.
	ErrUnavailable = errors.New("unavailable")
)
