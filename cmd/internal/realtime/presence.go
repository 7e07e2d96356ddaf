package realtime

import (
	"sort"
	"sync"
)

// Presence is the process-wide registry of live connections per user,
// partitioned by tenant.
//
// Transitions are edge-triggered: Add reports true only for a user's first
// connection, Remove only for the last. Intermediate joins/leaves report
// nothing. The raw maps are never exposed; callers get atomic operations and
// snapshot copies only.
type Presence struct {
	mu      sync.Mutex
	tenants map[string]map[string]map[string]struct{} // tenantID -> userID -> connID set
}

// NewPresence constructs an empty registry.
func NewPresence() *Presence {
	return &Presence{
		tenants: make(map[string]map[string]map[string]struct{}),
	}
}

// Add registers a connection and reports whether the user just came online.
func (p *Presence) Add(tenantID, userID, connID string) (wentOnline bool) {
	if tenantID == "" || userID == "" || connID == "" {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	users := p.tenants[tenantID]
	if users == nil {
		users = make(map[string]map[string]struct{})
		p.tenants[tenantID] = users
	}

	conns := users[userID]
	if conns == nil {
		conns = make(map[string]struct{})
		users[userID] = conns
	}

	_, existed := conns[connID]
	conns[connID] = struct{}{}

	return !existed && len(conns) == 1
}

// Remove unregisters a connection and reports whether the user just went
// offline. Removing an unknown connection is a no-op.
func (p *Presence) Remove(tenantID, userID, connID string) (wentOffline bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	users := p.tenants[tenantID]
	if users == nil {
		return false
	}
	conns := users[userID]
	if conns == nil {
		return false
	}
	if _, ok := conns[connID]; !ok {
		return false
	}

	delete(conns, connID)
	if len(conns) > 0 {
		return false
	}

	delete(users, userID)
	if len(users) == 0 {
		delete(p.tenants, tenantID)
	}
	return true
}

// IsOnline reports whether the user has at least one live connection.
func (p *Presence) IsOnline(tenantID, userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	users := p.tenants[tenantID]
	if users == nil {
		return false
	}
	return len(users[userID]) > 0
}

// SnapshotOnline returns a sorted copy of the online user ids for a tenant.
// Sent once to each newly joined connection; afterwards clients apply
// incremental online/offline events only.
func (p *Presence) SnapshotOnline(tenantID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	users := p.tenants[tenantID]
	out := make([]string, 0, len(users))
	for userID, conns := range users {
		if len(conns) > 0 {
			out = append(out, userID)
		}
	}
	sort.Strings(out)
	return out
}
