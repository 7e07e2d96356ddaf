package identity

import "errors"

// Sentinel error kinds (stable for errors.Is and for mapping to close codes).
var (
	// ErrAuthRejected covers every handshake failure uniformly: missing
	// credential, bad signature, expired token, unknown tenant/user,
	// revoked session. Callers must not distinguish between causes.
	ErrAuthRejected = errors.New("auth_rejected")

	ErrInvalidInput = errors.New("invalid_input")
)
