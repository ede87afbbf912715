package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates the upstream rejected the login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountBlocked indicates a successfully authenticated identity
	// carries the blocked sentinel role and must not obtain a session.
	ErrAccountBlocked = errors.New("account blocked")
	// ErrNoSession indicates no persisted session exists for the key.
	ErrNoSession = errors.New("no session")
	// ErrUnauthenticated indicates the operation requires an authenticated session.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrCSRFTokenMissing indicates a state-changing request arrived without a CSRF token.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch indicates the supplied CSRF token does not belong to the session.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
