// Package realtime contains Atelier's collaboration core: the WebSocket
// gateway, presence registry, room router, typing tracker, and the message
// delivery-state machine.
//
// All in-memory state here (presence, typing, room membership) is a cache
// over live connections. It is fully reconstructible from a fresh connection
// and is never treated as durable; the persistence layer remains the single
// source of truth for message and task content.
package realtime
