package realtime

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
)

// deliveryStripes bounds the number of room-level writer locks.
const deliveryStripes = 64

// DeliveryTracker turns client acknowledgement events into message status
// transitions.
//
// Transitions are serialized through a single-writer path per room (which
// subsumes per-message serialization), so concurrent DELIVERED/READ signals
// for one message are never observed out of order. The store's monotonic
// guard makes stale signals no-ops rather than errors, and persistence
// always happens before any broadcast.
type DeliveryTracker struct {
	log   *slog.Logger
	store MessageStore

	locks [deliveryStripes]sync.Mutex
}

// NewDeliveryTracker constructs a tracker over the given store.
func NewDeliveryTracker(log *slog.Logger, store MessageStore) *DeliveryTracker {
	return &DeliveryTracker{log: log, store: store}
}

func (d *DeliveryTracker) lockFor(roomID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(roomID))
	return &d.locks[h.Sum32()%deliveryStripes]
}

// MarkDelivered advances messages to DELIVERED and returns the ids that
// actually changed. Messages already DELIVERED or READ are skipped.
func (d *DeliveryTracker) MarkDelivered(ctx context.Context, roomID string, messageIDs []string, ackUserID string) ([]string, error) {
	return d.advance(ctx, roomID, messageIDs, ackUserID, StatusDelivered)
}

// MarkRead advances messages to READ and returns the ids that actually
// changed. A READ signal subsumes any pending DELIVERED signal.
func (d *DeliveryTracker) MarkRead(ctx context.Context, roomID string, messageIDs []string, ackUserID string) ([]string, error) {
	return d.advance(ctx, roomID, messageIDs, ackUserID, StatusRead)
}

func (d *DeliveryTracker) advance(ctx context.Context, roomID string, messageIDs []string, ackUserID string, to MessageStatus) ([]string, error) {
	if roomID == "" || ackUserID == "" || len(messageIDs) == 0 {
		return nil, nil
	}
	if len(messageIDs) > maxAckBatch {
		messageIDs = messageIDs[:maxAckBatch]
	}

	mu := d.lockFor(roomID)
	mu.Lock()
	defer mu.Unlock()

	applied, err := d.store.AdvanceStatus(ctx, roomID, messageIDs, ackUserID, to)
	if err != nil {
		return nil, err
	}

	if len(applied) > 0 {
		d.log.Debug("delivery.advance",
			"room_id", roomID,
			"to", string(to),
			"requested", len(messageIDs),
			"applied", len(applied),
		)
	}
	return applied, nil
}
