package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type typingKey struct {
	roomID string
	userID string
}

// ExpireFunc is invoked for every typing entry that ages out; implementations
// broadcast {isTyping:false} to the room.
type ExpireFunc func(roomID, userID string)

// TypingTracker is the ephemeral "who is typing where" map.
//
// There is no client-initiated stop: absence of further signals is the stop
// signal. A background sweep expires entries older than the TTL, so state
// fails open toward "not typing" instead of leaking stuck indicators.
// Nothing here is persisted.
type TypingTracker struct {
	log    *slog.Logger
	ttl    time.Duration
	every  time.Duration
	expire ExpireFunc

	mu      sync.Mutex
	entries map[typingKey]time.Time
}

// TypingOption configures TypingTracker behavior.
type TypingOption func(*TypingTracker)

// WithTypingTTL overrides signal validity (default 5s).
func WithTypingTTL(ttl time.Duration) TypingOption {
	return func(t *TypingTracker) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithTypingSweepEvery overrides the sweep cadence (default 2s).
func WithTypingSweepEvery(every time.Duration) TypingOption {
	return func(t *TypingTracker) {
		if every > 0 {
			t.every = every
		}
	}
}

// NewTypingTracker constructs a tracker. expire must not be nil.
func NewTypingTracker(log *slog.Logger, expire ExpireFunc, opts ...TypingOption) *TypingTracker {
	t := &TypingTracker{
		log:     log,
		ttl:     typingTTL,
		every:   typingSweepEvery,
		expire:  expire,
		entries: make(map[typingKey]time.Time),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Signal sets or refreshes the typing timestamp for (roomID, userID).
func (t *TypingTracker) Signal(roomID, userID string, now time.Time) {
	if roomID == "" || userID == "" {
		return
	}

	t.mu.Lock()
	t.entries[typingKey{roomID: roomID, userID: userID}] = now
	t.mu.Unlock()
}

// Clear drops an entry without firing the expire callback. Used when the
// client explicitly sends isTyping:false.
func (t *TypingTracker) Clear(roomID, userID string) {
	t.mu.Lock()
	delete(t.entries, typingKey{roomID: roomID, userID: userID})
	t.mu.Unlock()
}

// Forget expires every entry for a user across all rooms, firing the expire
// callback for each. Called when the user's last connection closes so rooms
// do not display a typing indicator for a gone user.
func (t *TypingTracker) Forget(userID string) {
	var expired []typingKey

	t.mu.Lock()
	for k := range t.entries {
		if k.userID == userID {
			delete(t.entries, k)
			expired = append(expired, k)
		}
	}
	t.mu.Unlock()

	for _, k := range expired {
		t.expire(k.roomID, k.userID)
	}
}

// Sweep expires entries older than the TTL relative to "now" and fires the
// expire callback for each. Returns the number of expired entries.
func (t *TypingTracker) Sweep(now time.Time) int {
	cut := now.Add(-t.ttl)

	var expired []typingKey

	t.mu.Lock()
	for k, last := range t.entries {
		if last.Before(cut) {
			delete(t.entries, k)
			expired = append(expired, k)
		}
	}
	t.mu.Unlock()

	// Callback runs outside the lock: it broadcasts, and broadcast must never
	// run under tracker state locks.
	for _, k := range expired {
		t.expire(k.roomID, k.userID)
	}

	if len(expired) > 0 {
		t.log.Debug("typing.sweep", "expired", len(expired))
	}
	return len(expired)
}

// Run sweeps on a ticker until the context is cancelled.
func (t *TypingTracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.Sweep(now.UTC())
		}
	}
}
