// Package v1 defines the Atelier collaboration protocol v1 contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Inbound event types (client -> server, wire-stable).
const (
	// TypeJoin requests membership in a chat room (validated server-side).
	TypeJoin = "join"
	// TypeTyping signals that the sender is typing in a room.
	TypeTyping = "typing"
	// TypeDelivered acknowledges delivery of one or more messages.
	TypeDelivered = "delivered"
	// TypeRead acknowledges that one or more messages were read.
	TypeRead = "read"
	// TypeMessageSend requests creating a new chat message.
	TypeMessageSend = "message:send"
	// TypeMessageDelete requests soft-deleting a message owned by the sender.
	TypeMessageDelete = "message:delete"
	// TypePositionsClient is a bulk task-position update from a client-role actor.
	TypePositionsClient = "positions:client"
)

// Outbound event types (server -> client, wire-stable).
const (
	// TypeUsersOnline is the one-time online snapshot sent after join.
	TypeUsersOnline = "users:online"
	// TypeUserOnline announces a user's first live connection.
	TypeUserOnline = "user:online"
	// TypeUserOffline announces a user's last connection closing.
	TypeUserOffline = "user:offline"

	TypeMessageNew       = "message:new"
	TypeMessageDeleted   = "message:deleted"
	TypeMessageDelivered = "message:delivered"
	TypeMessageRead      = "message:read"

	// TypePositions is the validated rebroadcast of positions:client.
	TypePositions = "positions"

	TypeTaskCreated     = "task:created"
	TypeTaskUpdated     = "task:updated"
	TypeTaskBulkUpdated = "task:bulkUpdated"
	TypeTaskDeleted     = "task:deleted"
	TypeTaskReordered   = "task:reordered"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

var allowedTypes = map[string]struct{}{
	TypeJoin:             {},
	TypeTyping:           {},
	TypeDelivered:        {},
	TypeRead:             {},
	TypeMessageSend:      {},
	TypeMessageDelete:    {},
	TypePositionsClient:  {},
	TypeUsersOnline:      {},
	TypeUserOnline:       {},
	TypeUserOffline:      {},
	TypeMessageNew:       {},
	TypeMessageDeleted:   {},
	TypeMessageDelivered: {},
	TypeMessageRead:      {},
	TypePositions:        {},
	TypeTaskCreated:      {},
	TypeTaskUpdated:      {},
	TypeTaskBulkUpdated:  {},
	TypeTaskDeleted:      {},
	TypeTaskReordered:    {},
	TypeError:            {},
}

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}
	if _, ok := allowedTypes[e.Type]; !ok {
		return fmt.Errorf("unknown type: %q", e.Type)
	}
	return nil
}

// ---- Inbound payloads ----

// JoinPayload requests membership in a chat room.
type JoinPayload struct {
	RoomID string `json:"roomId"`
}

// TypingPayload signals typing state for a room.
type TypingPayload struct {
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

// AckPayload acknowledges delivery or read of messages in a room.
type AckPayload struct {
	RoomID     string   `json:"roomId"`
	MessageIDs []string `json:"messageIds"`
}

// MessageSendPayload requests creating a message in a room.
type MessageSendPayload struct {
	RoomID      string   `json:"roomId"`
	ClientMsgID string   `json:"clientMsgId"`
	Content     string   `json:"content"`
	Attachments []string `json:"attachments,omitempty"`
}

// MessageDeletePayload requests soft-deleting a message.
type MessageDeletePayload struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
}

// PositionChange is one entry of a bulk position update.
// Order is a pointer so missing values can be told apart from zero.
type PositionChange struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Order  *float64 `json:"order"`
}

// PositionsClientPayload is a bulk task-position update from a client actor.
type PositionsClientPayload struct {
	Changes []PositionChange `json:"changes"`
	Origin  string           `json:"origin,omitempty"`
}

// ---- Outbound payloads ----

// UsersOnlinePayload is the initial full online-user-id snapshot.
type UsersOnlinePayload struct {
	UserIDs []string `json:"userIds"`
}

// UserStatusPayload announces an online/offline edge for one user.
type UserStatusPayload struct {
	UserID string `json:"userId"`
}

// MessagePayload carries a chat message plus the server timestamp.
type MessagePayload struct {
	Message json.RawMessage `json:"message"`
	TS      time.Time       `json:"ts"`
}

// ReceiptPayload announces a delivery-status transition for messages.
type ReceiptPayload struct {
	RoomID     string   `json:"roomId"`
	MessageIDs []string `json:"messageIds"`
	UserID     string   `json:"userId"`
	Status     string   `json:"status,omitempty"`
}

// TypingEventPayload is the broadcast form of a typing signal.
type TypingEventPayload struct {
	UserID   string `json:"userId"`
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

// PositionsPayload is the validated rebroadcast of a bulk position update.
type PositionsPayload struct {
	Changes []PositionChange `json:"changes"`
	TS      time.Time        `json:"ts"`
	Origin  string           `json:"origin,omitempty"`
}

// TaskEventPayload carries audience-filtered task rows plus the server timestamp.
// Tasks always contains the deduplicated view for the receiving room, never
// the full mirror-group member list.
type TaskEventPayload struct {
	Tasks json.RawMessage `json:"tasks"`
	TS    time.Time       `json:"ts"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
