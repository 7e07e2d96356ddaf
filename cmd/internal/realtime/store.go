package realtime

import (
	"context"
	"errors"
	"time"
)

// MessageStatus is the delivery lifecycle of a chat message.
// Transitions only ever move forward: SENT -> DELIVERED -> READ.
type MessageStatus string

const (
	StatusSent      MessageStatus = "SENT"
	StatusDelivered MessageStatus = "DELIVERED"
	StatusRead      MessageStatus = "READ"
)

// statusRank orders statuses for the monotonic guard.
func statusRank(s MessageStatus) int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// Sentinel errors shared by store implementations.
var (
	ErrNotFound = errors.New("not_found")
	ErrNotOwner = errors.New("not_owner")
	ErrBadInput = errors.New("invalid_input")
)

// Message is the canonical persisted chat message.
// Messages are never physically removed; deletion sets DeletedAt.
type Message struct {
	ID          string        `json:"id"`
	RoomID      string        `json:"roomId"`
	UserID      string        `json:"userId"`
	TenantID    string        `json:"tenantId"`
	Content     string        `json:"content"`
	Attachments []string      `json:"attachments,omitempty"`
	Status      MessageStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	DeletedAt   *time.Time    `json:"deletedAt,omitempty"`
}

// CreateMessageInput describes a message create request.
type CreateMessageInput struct {
	RoomID      string
	TenantID    string
	UserID      string
	ClientMsgID string
	Content     string
	Attachments []string
	Now         time.Time
}

// CreateMessageResult is the create operation result.
type CreateMessageResult struct {
	Stored     Message
	Duplicated bool
}

// ListMessagesInput describes a catch-up history query.
// Paging rides on message ids being ULIDs (time-ordered).
type ListMessagesInput struct {
	RoomID  string
	AfterID *string
	Limit   int
}

// ListMessagesResult contains the retrieved history window.
type ListMessagesResult struct {
	Messages []Message
	HasMore  bool
}

// MessageStore persists and queries chat messages.
//
// Requirements:
//   - Idempotency per (room_id, client_msg_id)
//   - AdvanceStatus is monotonic: a row only moves to a strictly higher
//     status, and only rows not authored by ackUserID are touched
//   - History query ordered by id ASC
type MessageStore interface {
	CreateMessage(ctx context.Context, in CreateMessageInput) (CreateMessageResult, error)

	// SoftDeleteMessage marks a message deleted. Only the author may delete.
	SoftDeleteMessage(ctx context.Context, roomID, messageID, userID string) (Message, error)

	// AdvanceStatus moves messages forward to "to" and returns the ids that
	// actually changed. Stale signals (already at or past "to") are skipped,
	// not errors.
	AdvanceStatus(ctx context.Context, roomID string, messageIDs []string, ackUserID string, to MessageStatus) ([]string, error)

	ListMessages(ctx context.Context, in ListMessagesInput) (ListMessagesResult, error)

	Close() error
}
