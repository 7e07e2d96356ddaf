package realtime

import (
	"context"
	"sort"
	"sync"
	"time"

	"atelier/cmd/internal/ids"
)

const memMaxMessagesPerRoom = 10_000

// InMemoryStore is a dev/test fallback when DB is not configured.
type InMemoryStore struct {
	mu    sync.Mutex
	rooms map[string]*memRoom
}

type memRoom struct {
	dedupe map[string]string   // client_msg_id -> message id
	msgs   map[string]*Message // message id -> message
	order  []string            // ids in creation order
}

// NewInMemoryStore constructs an in-memory MessageStore implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{rooms: make(map[string]*memRoom)}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// CreateMessage persists a message with idempotency per client_msg_id.
func (s *InMemoryStore) CreateMessage(ctx context.Context, in CreateMessageInput) (CreateMessageResult, error) {
	if in.RoomID == "" || in.TenantID == "" || in.UserID == "" || in.ClientMsgID == "" {
		return CreateMessageResult{}, ErrBadInput
	}
	if err := ctx.Err(); err != nil {
		return CreateMessageResult{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room := s.rooms[in.RoomID]
	if room == nil {
		room = &memRoom{
			dedupe: make(map[string]string),
			msgs:   make(map[string]*Message),
		}
		s.rooms[in.RoomID] = room
	}

	if id, ok := room.dedupe[in.ClientMsgID]; ok {
		return CreateMessageResult{Stored: *room.msgs[id], Duplicated: true}, nil
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return CreateMessageResult{}, err
	}

	msg := &Message{
		ID:          id,
		RoomID:      in.RoomID,
		UserID:      in.UserID,
		TenantID:    in.TenantID,
		Content:     in.Content,
		Attachments: append([]string(nil), in.Attachments...),
		Status:      StatusSent,
		CreatedAt:   now,
	}
	room.dedupe[in.ClientMsgID] = id
	room.msgs[id] = msg
	room.order = append(room.order, id)

	// Bound memory to avoid unbounded growth in dev.
	if len(room.order) > memMaxMessagesPerRoom {
		drop := room.order[:len(room.order)-memMaxMessagesPerRoom]
		for _, d := range drop {
			delete(room.msgs, d)
		}
		room.order = append([]string(nil), room.order[len(drop):]...)
	}

	return CreateMessageResult{Stored: *msg, Duplicated: false}, nil
}

// SoftDeleteMessage marks a message deleted; only its author may delete it.
func (s *InMemoryStore) SoftDeleteMessage(ctx context.Context, roomID, messageID, userID string) (Message, error) {
	if roomID == "" || messageID == "" || userID == "" {
		return Message{}, ErrBadInput
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room := s.rooms[roomID]
	if room == nil {
		return Message{}, ErrNotFound
	}
	msg, ok := room.msgs[messageID]
	if !ok || msg.DeletedAt != nil {
		return Message{}, ErrNotFound
	}
	if msg.UserID != userID {
		return Message{}, ErrNotOwner
	}

	now := time.Now().UTC()
	msg.DeletedAt = &now
	return *msg, nil
}

// AdvanceStatus moves messages forward monotonically and returns the ids
// that actually changed.
func (s *InMemoryStore) AdvanceStatus(ctx context.Context, roomID string, messageIDs []string, ackUserID string, to MessageStatus) ([]string, error) {
	if roomID == "" || ackUserID == "" || statusRank(to) == 0 {
		return nil, ErrBadInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room := s.rooms[roomID]
	if room == nil {
		return nil, nil
	}

	var applied []string
	for _, id := range messageIDs {
		msg, ok := room.msgs[id]
		if !ok || msg.DeletedAt != nil {
			continue
		}
		// Recipients acknowledge; the author's own messages never advance
		// from the author's signals.
		if msg.UserID == ackUserID {
			continue
		}
		if statusRank(msg.Status) >= statusRank(to) {
			continue
		}
		msg.Status = to
		applied = append(applied, id)
	}
	return applied, nil
}

// ListMessages returns messages ordered by id ASC with paging via after_id.
// Soft-deleted messages are returned too: the catch-up fetch needs tombstones
// so clients can reconcile local state.
func (s *InMemoryStore) ListMessages(ctx context.Context, in ListMessagesInput) (ListMessagesResult, error) {
	if in.RoomID == "" {
		return ListMessagesResult{}, ErrBadInput
	}
	if err := ctx.Err(); err != nil {
		return ListMessagesResult{}, err
	}

	limit := in.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	fetch := limit + 1

	s.mu.Lock()
	room := s.rooms[in.RoomID]
	var snap []Message
	if room != nil {
		snap = make([]Message, 0, len(room.order))
		for _, id := range room.order {
			if m, ok := room.msgs[id]; ok {
				snap = append(snap, *m)
			}
		}
	}
	s.mu.Unlock()

	if len(snap) == 0 {
		return ListMessagesResult{}, nil
	}

	// ids are ULIDs, so lexicographic order is creation order.
	sort.Slice(snap, func(i, j int) bool { return snap[i].ID < snap[j].ID })

	start := 0
	if in.AfterID != nil {
		after := *in.AfterID
		start = sort.Search(len(snap), func(i int) bool { return snap[i].ID > after })
		if start >= len(snap) {
			return ListMessagesResult{}, nil
		}
	}

	end := start + fetch
	if end > len(snap) {
		end = len(snap)
	}
	out := snap[start:end]

	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}

	return ListMessagesResult{Messages: out, HasMore: hasMore}, nil
}
