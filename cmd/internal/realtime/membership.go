package realtime

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"atelier/cmd/internal/identity"
)

// MembershipStore is the authorization boundary for explicit chat rooms.
//
// Default rooms (tenant, tenant-client) are derived from the resolved
// identity and never consult this store; explicit room joins must.
type MembershipStore interface {
	// IsMember returns true if the identity may receive events for roomID.
	IsMember(ctx context.Context, id identity.Identity, roomID string) (bool, error)
}

// InMemoryMembership is a dev/test MembershipStore.
type InMemoryMembership struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{} // roomID -> userID set
}

// NewInMemoryMembership constructs an empty membership table.
func NewInMemoryMembership() *InMemoryMembership {
	return &InMemoryMembership{rooms: make(map[string]map[string]struct{})}
}

// Put registers a user as a member of a room.
func (m *InMemoryMembership) Put(roomID, userID string) {
	m.mu.Lock()
	room := m.rooms[roomID]
	if room == nil {
		room = make(map[string]struct{})
		m.rooms[roomID] = room
	}
	room[userID] = struct{}{}
	m.mu.Unlock()
}

// IsMember implements MembershipStore.
func (m *InMemoryMembership) IsMember(ctx context.Context, id identity.Identity, roomID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return false, nil
	}
	_, ok = room[id.UserID]
	return ok, nil
}

// PostgresMembership checks chat-room membership via atelier.room_members.
// Tenant scoping is part of the query so a leaked room id from another
// tenant never authorizes.
type PostgresMembership struct {
	pool   *pgxpool.Pool
	schema string
}

// MembershipOption configures PostgresMembership behavior.
type MembershipOption func(*PostgresMembership) error

// WithMembershipSchema sets the DB schema used by the membership store (default: "atelier").
func WithMembershipSchema(schema string) MembershipOption {
	return func(s *PostgresMembership) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("realtime: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("realtime: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresMembership constructs a membership store backed by PostgreSQL.
func NewPostgresMembership(pool *pgxpool.Pool, opts ...MembershipOption) (*PostgresMembership, error) {
	st := &PostgresMembership{
		pool:   pool,
		schema: "atelier",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("realtime: nil pool")
	}
	return st, nil
}

// IsMember implements MembershipStore.
func (s *PostgresMembership) IsMember(ctx context.Context, id identity.Identity, roomID string) (bool, error) {
	if s == nil || s.pool == nil {
		return false, errors.New("realtime: nil membership store")
	}
	roomID = strings.TrimSpace(roomID)
	if roomID == "" || id.UserID == "" || id.TenantID == "" {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	members := pgIdent(s.schema, "room_members")

	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM `+members+` WHERE room_id = $1 AND user_id = $2 AND tenant_id = $3`,
		roomID, id.UserID, id.TenantID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
