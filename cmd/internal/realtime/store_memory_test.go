package realtime

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreateMessageIdempotent(t *testing.T) {
	t.Parallel()

	s := NewInMemoryStore()

	in := CreateMessageInput{
		RoomID:      "room-1",
		TenantID:    "t1",
		UserID:      "u1",
		ClientMsgID: "c1",
		Content:     "hello",
		Now:         time.Now().UTC(),
	}

	first, err := s.CreateMessage(context.Background(), in)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if first.Duplicated {
		t.Fatal("first create flagged as duplicate")
	}
	if first.Stored.Status != StatusSent {
		t.Fatalf("status=%s want=SENT", first.Stored.Status)
	}

	second, err := s.CreateMessage(context.Background(), in)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if !second.Duplicated {
		t.Fatal("retry with same clientMsgId must be flagged duplicate")
	}
	if second.Stored.ID != first.Stored.ID {
		t.Fatalf("duplicate returned a different id: %q vs %q", second.Stored.ID, first.Stored.ID)
	}

	out, err := s.ListMessages(context.Background(), ListMessagesInput{RoomID: "room-1"})
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(out.Messages) != 1 {
		t.Fatalf("stored=%d want=1", len(out.Messages))
	}
}

func TestSoftDeleteMessageAuthorOnly(t *testing.T) {
	t.Parallel()

	s := NewInMemoryStore()
	msg := seedMessage(t, s, "room-1", "author", "c1")

	if _, err := s.SoftDeleteMessage(context.Background(), "room-1", msg.ID, "intruder"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("err=%v want=ErrNotOwner", err)
	}

	deleted, err := s.SoftDeleteMessage(context.Background(), "room-1", msg.ID, "author")
	if err != nil {
		t.Fatalf("author delete: %v", err)
	}
	if deleted.DeletedAt == nil {
		t.Fatal("DeletedAt not set")
	}

	// Double delete reads as gone.
	if _, err := s.SoftDeleteMessage(context.Background(), "room-1", msg.ID, "author"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want=ErrNotFound", err)
	}

	// Tombstone still visible to catch-up.
	out, err := s.ListMessages(context.Background(), ListMessagesInput{RoomID: "room-1"})
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(out.Messages) != 1 || out.Messages[0].DeletedAt == nil {
		t.Fatalf("tombstone missing from history: %+v", out.Messages)
	}
}

func TestListMessagesPaging(t *testing.T) {
	t.Parallel()

	s := NewInMemoryStore()
	var all []Message
	for i := 0; i < 5; i++ {
		all = append(all, seedMessage(t, s, "room-1", "u1", string(rune('a'+i))))
	}

	first, err := s.ListMessages(context.Background(), ListMessagesInput{RoomID: "room-1", Limit: 2})
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(first.Messages) != 2 || !first.HasMore {
		t.Fatalf("page 1: len=%d hasMore=%v", len(first.Messages), first.HasMore)
	}

	after := first.Messages[1].ID
	second, err := s.ListMessages(context.Background(), ListMessagesInput{RoomID: "room-1", AfterID: &after, Limit: 10})
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(second.Messages) != 3 || second.HasMore {
		t.Fatalf("page 2: len=%d hasMore=%v", len(second.Messages), second.HasMore)
	}

	// Pages must be contiguous and ordered by id.
	got := append(append([]Message(nil), first.Messages...), second.Messages...)
	for i := 1; i < len(got); i++ {
		if got[i-1].ID >= got[i].ID {
			t.Fatalf("ids out of order at %d: %q >= %q", i, got[i-1].ID, got[i].ID)
		}
	}
	if len(got) != len(all) {
		t.Fatalf("pages cover %d messages, want %d", len(got), len(all))
	}

	// Paging past the end is empty, not an error.
	last := got[len(got)-1].ID
	tail, err := s.ListMessages(context.Background(), ListMessagesInput{RoomID: "room-1", AfterID: &last})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(tail.Messages) != 0 || tail.HasMore {
		t.Fatalf("tail: %+v", tail)
	}
}

func TestListMessagesUnknownRoom(t *testing.T) {
	t.Parallel()

	s := NewInMemoryStore()
	out, err := s.ListMessages(context.Background(), ListMessagesInput{RoomID: "nope"})
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(out.Messages) != 0 || out.HasMore {
		t.Fatalf("unknown room: %+v", out)
	}
}

func TestCreateMessageValidation(t *testing.T) {
	t.Parallel()

	s := NewInMemoryStore()
	cases := []CreateMessageInput{
		{TenantID: "t1", UserID: "u1", ClientMsgID: "c1"},
		{RoomID: "r", UserID: "u1", ClientMsgID: "c1"},
		{RoomID: "r", TenantID: "t1", ClientMsgID: "c1"},
		{RoomID: "r", TenantID: "t1", UserID: "u1"},
	}
	for i, in := range cases {
		if _, err := s.CreateMessage(context.Background(), in); !errors.Is(err, ErrBadInput) {
			t.Fatalf("case %d: err=%v want=ErrBadInput", i, err)
		}
	}
}
