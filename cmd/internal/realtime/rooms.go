package realtime

import (
	"log/slog"
	"sync"

	v1 "atelier/shared/contracts/collab/v1"
)

// Router maps room keys to live connections and owns fan-out.
//
// Staff/admin connections live in the tenant room, client-role connections in
// their tenant-client room (keys built by the contract package); chat rooms
// use their own explicit ids.
//
// Concurrency guarantees:
// - Join/Leave are safe under concurrent Broadcast.
// - Broadcast takes a snapshot under the read lock and sends outside it, so
//   slow consumers never block membership mutation or other rooms.
// - Broadcast never blocks (drops under backpressure).
// - Broadcast is panic-safe because Client.Send is never closed by the server.
type Router struct {
	log *slog.Logger

	mu     sync.RWMutex
	rooms  map[string]map[string]*Client  // room key -> connID -> client
	byConn map[string]map[string]struct{} // connID -> joined room keys
}

// NewRouter constructs a Router.
func NewRouter(log *slog.Logger) *Router {
	return &Router{
		log:    log,
		rooms:  make(map[string]map[string]*Client),
		byConn: make(map[string]map[string]struct{}),
	}
}

// Join adds a client to a room.
func (r *Router) Join(roomKey string, client *Client) {
	if r == nil || client == nil || roomKey == "" || client.ConnID == "" {
		return
	}

	r.mu.Lock()
	room := r.rooms[roomKey]
	if room == nil {
		room = make(map[string]*Client)
		r.rooms[roomKey] = room
	}
	room[client.ConnID] = client

	joined := r.byConn[client.ConnID]
	if joined == nil {
		joined = make(map[string]struct{})
		r.byConn[client.ConnID] = joined
	}
	joined[roomKey] = struct{}{}
	r.mu.Unlock()

	r.log.Debug("room.join", "room", roomKey, "conn_id", client.ConnID, "user_id", client.Identity.UserID)
}

// Leave removes a connection from a room.
func (r *Router) Leave(roomKey, connID string) {
	if r == nil || roomKey == "" || connID == "" {
		return
	}

	r.mu.Lock()
	if room, ok := r.rooms[roomKey]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(r.rooms, roomKey)
		}
	}
	if joined, ok := r.byConn[connID]; ok {
		delete(joined, roomKey)
		if len(joined) == 0 {
			delete(r.byConn, connID)
		}
	}
	r.mu.Unlock()
}

// LeaveAll removes a connection from every room it joined.
// Called exactly once on disconnect, before presence removal.
func (r *Router) LeaveAll(connID string) {
	if r == nil || connID == "" {
		return
	}

	r.mu.Lock()
	for roomKey := range r.byConn[connID] {
		if room, ok := r.rooms[roomKey]; ok {
			delete(room, connID)
			if len(room) == 0 {
				delete(r.rooms, roomKey)
			}
		}
	}
	delete(r.byConn, connID)
	r.mu.Unlock()
}

// IsMember reports whether a connection currently belongs to a room.
func (r *Router) IsMember(roomKey, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomKey]
	if !ok {
		return false
	}
	_, ok = room[connID]
	return ok
}

// Broadcast fans out an envelope to the union of the target rooms.
//
// Each physical connection receives at most one copy of the envelope even
// when it is a member of several matching rooms: targets are deduplicated by
// connection id before any send happens. Fire-and-forget, at-most-once per
// currently connected member.
func (r *Router) Broadcast(env v1.Envelope, roomKeys ...string) {
	r.broadcast(env, "", roomKeys)
}

// BroadcastExcept is Broadcast minus one connection (typically the event's
// originator, which already knows the outcome from its ack).
func (r *Router) BroadcastExcept(env v1.Envelope, exceptConnID string, roomKeys ...string) {
	r.broadcast(env, exceptConnID, roomKeys)
}

func (r *Router) broadcast(env v1.Envelope, exceptConnID string, roomKeys []string) {
	if r == nil || len(roomKeys) == 0 {
		return
	}

	// Snapshot the deduplicated target set; sends happen outside the lock.
	r.mu.RLock()
	targets := make(map[string]*Client)
	for _, roomKey := range roomKeys {
		for connID, client := range r.rooms[roomKey] {
			if connID == exceptConnID {
				continue
			}
			targets[connID] = client
		}
	}
	r.mu.RUnlock()

	for _, client := range targets {
		select {
		case <-client.Done():
			// Skip clients that are shutting down.
			continue
		default:
		}

		select {
		case client.Send <- env:
		default:
			// Drop rather than block the whole broadcast.
			metricDroppedSends.Inc()
			r.log.Warn("broadcast.drop.slow_consumer", "conn_id", client.ConnID, "type", env.Type)
		}
	}

	metricBroadcastsTotal.WithLabelValues(env.Type).Inc()
}
