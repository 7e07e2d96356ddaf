package realtime

import (
	"context"
	"sync"
	"testing"
	"time"
)

func seedMessage(t *testing.T, s MessageStore, roomID, userID, clientMsgID string) Message {
	t.Helper()

	res, err := s.CreateMessage(context.Background(), CreateMessageInput{
		RoomID:      roomID,
		TenantID:    "t1",
		UserID:      userID,
		ClientMsgID: clientMsgID,
		Content:     "hi",
		Now:         time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	return res.Stored
}

func statusOf(t *testing.T, s MessageStore, roomID, id string) MessageStatus {
	t.Helper()

	out, err := s.ListMessages(context.Background(), ListMessagesInput{RoomID: roomID, Limit: 200})
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	for _, m := range out.Messages {
		if m.ID == id {
			return m.Status
		}
	}
	t.Fatalf("message %q not found", id)
	return ""
}

func TestDeliveryForwardTransitions(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()
	d := NewDeliveryTracker(testLogger(), store)
	msg := seedMessage(t, store, "room-1", "author", "c1")

	applied, err := d.MarkDelivered(context.Background(), "room-1", []string{msg.ID}, "reader")
	if err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	if len(applied) != 1 || applied[0] != msg.ID {
		t.Fatalf("applied=%v", applied)
	}
	if got := statusOf(t, store, "room-1", msg.ID); got != StatusDelivered {
		t.Fatalf("status=%s want=DELIVERED", got)
	}

	applied, err = d.MarkRead(context.Background(), "room-1", []string{msg.ID}, "reader")
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if len(applied) != 1 {
		t.Fatalf("applied=%v", applied)
	}
	if got := statusOf(t, store, "room-1", msg.ID); got != StatusRead {
		t.Fatalf("status=%s want=READ", got)
	}
}

func TestDeliveryNeverRegresses(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()
	d := NewDeliveryTracker(testLogger(), store)
	msg := seedMessage(t, store, "room-1", "author", "c1")

	// READ arrives before DELIVERED (network reordering).
	if _, err := d.MarkRead(context.Background(), "room-1", []string{msg.ID}, "reader"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	applied, err := d.MarkDelivered(context.Background(), "room-1", []string{msg.ID}, "reader")
	if err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("stale DELIVERED applied over READ: %v", applied)
	}
	if got := statusOf(t, store, "room-1", msg.ID); got != StatusRead {
		t.Fatalf("status=%s want=READ", got)
	}
}

func TestDeliveryDuplicateAckIsNoop(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()
	d := NewDeliveryTracker(testLogger(), store)
	msg := seedMessage(t, store, "room-1", "author", "c1")

	if _, err := d.MarkDelivered(context.Background(), "room-1", []string{msg.ID}, "reader"); err != nil {
		t.Fatalf("first ack: %v", err)
	}
	applied, err := d.MarkDelivered(context.Background(), "room-1", []string{msg.ID}, "reader")
	if err != nil {
		t.Fatalf("second ack: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("duplicate ack reported changes: %v", applied)
	}
}

func TestDeliverySkipsAuthorOwnMessages(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()
	d := NewDeliveryTracker(testLogger(), store)
	msg := seedMessage(t, store, "room-1", "author", "c1")

	applied, err := d.MarkDelivered(context.Background(), "room-1", []string{msg.ID}, "author")
	if err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("author ack advanced own message: %v", applied)
	}
	if got := statusOf(t, store, "room-1", msg.ID); got != StatusSent {
		t.Fatalf("status=%s want=SENT", got)
	}
}

func TestDeliveryPartialBatch(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()
	d := NewDeliveryTracker(testLogger(), store)

	m1 := seedMessage(t, store, "room-1", "author", "c1")
	m2 := seedMessage(t, store, "room-1", "author", "c2")
	mine := seedMessage(t, store, "room-1", "reader", "c3")

	// m2 is already READ; the batch should only advance m1.
	if _, err := d.MarkRead(context.Background(), "room-1", []string{m2.ID}, "reader"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	applied, err := d.MarkDelivered(context.Background(), "room-1",
		[]string{m1.ID, m2.ID, mine.ID, "unknown"}, "reader")
	if err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	if len(applied) != 1 || applied[0] != m1.ID {
		t.Fatalf("applied=%v want only %q", applied, m1.ID)
	}
}

func TestDeliveryConcurrentAcksStayMonotonic(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()
	d := NewDeliveryTracker(testLogger(), store)
	msg := seedMessage(t, store, "room-1", "author", "c1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = d.MarkDelivered(context.Background(), "room-1", []string{msg.ID}, "reader")
		}()
		go func() {
			defer wg.Done()
			_, _ = d.MarkRead(context.Background(), "room-1", []string{msg.ID}, "reader")
		}()
	}
	wg.Wait()

	if got := statusOf(t, store, "room-1", msg.ID); got != StatusRead {
		t.Fatalf("status=%s want=READ after concurrent acks", got)
	}
}
