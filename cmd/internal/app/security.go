package app

import (
	"errors"

	"atelier/cmd/internal/identity"
)

// ValidateSecurityConfig enforces the handshake security policy at startup.
//
// Fail-fast is intentional: silently admitting websocket clients through the
// static dev resolver in production is unacceptable.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	if _, err := identity.HMACKeyFromEnv(); err != nil {
		switch {
		case errors.Is(err, identity.ErrHMACKeyMissing):
			return errors.New("security policy: ATELIER_REQUIRE_TOKEN_HMAC=true but " + identity.HMACEnvKey + " is missing")
		case errors.Is(err, identity.ErrHMACKeyTooShort):
			return errors.New("security policy: ATELIER_REQUIRE_TOKEN_HMAC=true but " + identity.HMACEnvKey + " is too short (min 32 bytes)")
		default:
			return err
		}
	}

	return nil
}
