package realtime

import "time"

// Security/performance limits.
const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 64 << 10 // 64 KiB

	// Max message content length (runes).
	maxMessageChars = 4000

	// Max entries accepted per delivered/read acknowledgement.
	maxAckBatch = 500

	// Max entries accepted per positions:client update.
	maxPositionChanges = 200
)

const (
	// Heartbeat defaults (can be overridden by env in gateway.go).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limits (events per window).
	rateLimitEvents = 120
	rateLimitWindow = 10 * time.Second
)

const (
	// Typing signal validity and sweep cadence.
	typingTTL        = 5 * time.Second
	typingSweepEvery = 2 * time.Second
)
