package identity

import (
	"context"
	"strings"
	"sync"
)

// Resolver validates a handshake credential and resolves it to an Identity.
//
// Contract:
//   - Any failure returns an error wrapping ErrAuthRejected; callers close
//     the connection without a protocol-level error payload.
//   - Admission is atomic: a non-nil error means no partial identity state.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (Identity, error)
}

// StaticResolver maps opaque credentials to identities. Dev/test fallback,
// same role the in-memory stores play for persistence.
type StaticResolver struct {
	mu  sync.RWMutex
	ids map[string]Identity
}

// NewStaticResolver constructs an empty StaticResolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{ids: make(map[string]Identity)}
}

// Grant registers a credential. Invalid identities are rejected so tests
// cannot accidentally admit malformed principals.
func (s *StaticResolver) Grant(credential string, id Identity) error {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return ErrInvalidInput
	}
	if err := id.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.ids[credential] = id
	s.mu.Unlock()
	return nil
}

// Revoke removes a credential.
func (s *StaticResolver) Revoke(credential string) {
	s.mu.Lock()
	delete(s.ids, strings.TrimSpace(credential))
	s.mu.Unlock()
}

// Resolve implements Resolver.
func (s *StaticResolver) Resolve(ctx context.Context, credential string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	s.mu.RLock()
	id, ok := s.ids[strings.TrimSpace(credential)]
	s.mu.RUnlock()

	if !ok {
		return Identity{}, ErrAuthRejected
	}
	return id, nil
}
