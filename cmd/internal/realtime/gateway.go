package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"atelier/cmd/internal/board"
	"atelier/cmd/internal/identity"
	"atelier/cmd/internal/ids"
	v1 "atelier/shared/contracts/collab/v1"
)

const (
	wsSubprotocolV1 = "atelier.collab.v1"

	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	// Security defaults:
	// - Origin is required by default.
	// - Only localhost is allowed by default (secure-by-default for dev).
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// WSGateway is the WebSocket entrypoint for the collaboration core.
//
// It enforces origin policy, authenticates the handshake before the upgrade,
// selects the subprotocol, applies rate limits and heartbeats, and routes
// validated envelopes to presence, rooms, delivery, typing, and the board
// engine.
type WSGateway struct {
	log *slog.Logger

	resolver   identity.Resolver
	presence   *Presence
	router     *Router
	typing     *TypingTracker
	delivery   *DeliveryTracker
	messages   MessageStore
	membership MembershipStore
	board      *board.Engine

	devInsecure    bool
	originRequired bool
	allowedOrigins []string

	// Derived for websocket.Accept origin checks.
	// Accept() authorizes same-host origins by default, but for cross-origin it requires OriginPatterns.
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	sendQueueSize   int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration
}

// GatewayDeps carries the collaborators a gateway routes events to.
// Nil fields fall back to in-memory implementations for dev, except Resolver,
// which falls back to an empty StaticResolver that admits nobody.
type GatewayDeps struct {
	Resolver   identity.Resolver
	Presence   *Presence
	Router     *Router
	Typing     *TypingTracker
	Delivery   *DeliveryTracker
	Messages   MessageStore
	Membership MembershipStore
	Board      *board.Engine
}

// NewWSGateway constructs a gateway with secure defaults.
func NewWSGateway(log *slog.Logger, deps GatewayDeps) *WSGateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	g := &WSGateway{
		log:        log,
		resolver:   deps.Resolver,
		presence:   deps.Presence,
		router:     deps.Router,
		typing:     deps.Typing,
		delivery:   deps.Delivery,
		messages:   deps.Messages,
		membership: deps.Membership,
		board:      deps.Board,
	}

	if g.resolver == nil {
		g.resolver = identity.NewStaticResolver()
	}
	if g.presence == nil {
		g.presence = NewPresence()
	}
	if g.router == nil {
		g.router = NewRouter(log)
	}
	if g.messages == nil {
		g.messages = NewInMemoryStore()
	}
	if g.membership == nil {
		g.membership = NewInMemoryMembership()
	}
	if g.delivery == nil {
		g.delivery = NewDeliveryTracker(log, g.messages)
	}
	if g.typing == nil {
		g.typing = NewTypingTracker(log, g.typingExpiredBroadcast)
	}
	if g.board == nil {
		g.board = board.NewEngine(log, board.NewInMemoryStore(), NewTaskPublisher(log, g.router))
	}

	// NOTE: InsecureSkipVerify is a dev-only knob (TLS verification). It is not an origin policy.
	g.devInsecure = envBoolWS("ATELIER_WS_DEV_INSECURE", false)

	g.originRequired = envBoolWS("ATELIER_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired)
	g.allowedOrigins = envCSVWS("ATELIER_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)

	// IMPORTANT:
	// websocket.Accept enforces its own origin policy:
	// - same-host is ok
	// - cross-origin requires OriginPatterns (host patterns)
	// We derive these patterns from allowed origins so the two layers agree.
	g.originPatterns = deriveOriginPatternsFromAllowedOrigins(g.allowedOrigins)

	g.writeTimeout = envDurationWS("ATELIER_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	g.readIdleTimeout = envDurationWS("ATELIER_WS_READ_IDLE_TIMEOUT", wsDefaultReadIdle)

	g.sendQueueSize = envIntWS("ATELIER_WS_SEND_QUEUE", wsDefaultSendQueueSize)
	if g.sendQueueSize < wsMinSendQueueSize {
		g.sendQueueSize = wsMinSendQueueSize
	}

	g.heartbeatEvery = envDurationWS("ATELIER_WS_HEARTBEAT_INTERVAL", heartbeatInterval)
	g.heartbeatTimeout = envDurationWS("ATELIER_WS_HEARTBEAT_TIMEOUT", heartbeatTimeout)

	g.rateEvents = envIntWS("ATELIER_WS_RATE_EVENTS", rateLimitEvents)
	g.rateWindow = envDurationWS("ATELIER_WS_RATE_WINDOW", rateLimitWindow)

	return g
}

// Router exposes the gateway's room router for publishers and tests.
func (g *WSGateway) Router() *Router { return g.router }

// Typing exposes the typing tracker so the app can run its sweep loop.
func (g *WSGateway) Typing() *TypingTracker { return g.typing }

// typingExpiredBroadcast is the tracker's TTL callback: rooms learn the user
// stopped typing even though no explicit stop event ever arrived.
func (g *WSGateway) typingExpiredBroadcast(roomID, userID string) {
	env, err := newEnvelope(v1.TypeTyping, v1.TypingEventPayload{
		UserID:   userID,
		RoomID:   roomID,
		IsTyping: false,
	}, time.Now().UTC())
	if err != nil {
		return
	}
	g.router.Broadcast(env, roomID)
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades an HTTP request to a WebSocket session and runs the collab loop.
//
// Authentication happens before the upgrade: an unresolvable credential is an
// HTTP 401 and no socket state is ever created for it.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	id, err := g.resolver.Resolve(r.Context(), bearerToken(r))
	if err != nil {
		metricAuthRejected.Inc()
		g.log.Info("ws.reject.auth", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{wsSubprotocolV1},

		// Authorize allowed origin hosts (e.g. localhost) for cross-origin requests.
		OriginPatterns: g.originPatterns,

		// Dev-only escape hatch.
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != wsSubprotocolV1 {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", wsSubprotocolV1)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	connID, err := ids.NewULID(time.Now().UTC())
	if err != nil {
		g.log.Error("ws.conn_id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "id generation failed")
		return
	}
	client := NewClient(connID, id, g.sendQueueSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Default rooms are derived from the resolved identity, never requested
	// by the client. Staff land in the tenant room, client-role users in
	// their customer room. Presence edges fan out to both so each audience
	// sees the other come and go.
	memberRooms := []string{v1.TenantRoom(id.TenantID)}
	presenceRooms := memberRooms
	if !id.Role.IsStaff() {
		memberRooms = []string{v1.TenantClientRoom(id.TenantID, id.CustomerID)}
		presenceRooms = []string{v1.TenantRoom(id.TenantID), memberRooms[0]}
	}

	var closeOnce sync.Once

	// shutdown is idempotent. It does NOT close client.Send.
	// Broadcast safety: client.Send remains open and room removal happens before client.Close.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.router.LeaveAll(connID)

			if g.presence.Remove(id.TenantID, id.UserID, connID) {
				g.typing.Forget(id.UserID)
				if env, err := newEnvelope(v1.TypeUserOffline, v1.UserStatusPayload{UserID: id.UserID}, time.Now().UTC()); err == nil {
					g.router.Broadcast(env, presenceRooms...)
				}
			}

			metricActiveConnections.Dec()
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	for _, room := range memberRooms {
		g.router.Join(room, client)
	}

	now := time.Now().UTC()
	if g.presence.Add(id.TenantID, id.UserID, connID) {
		if env, err := newEnvelope(v1.TypeUserOnline, v1.UserStatusPayload{UserID: id.UserID}, now); err == nil {
			g.router.BroadcastExcept(env, connID, presenceRooms...)
		}
	}
	metricActiveConnections.Inc()

	// One-time snapshot for this connection only; afterwards the client
	// applies incremental online/offline events.
	if env, err := newEnvelope(v1.TypeUsersOnline, v1.UsersOnlinePayload{
		UserIDs: g.presence.SnapshotOnline(id.TenantID),
	}, now); err == nil {
		g.enqueue(ctx, client, env)
	}

	g.log.Info("ws.connect",
		"conn_id", connID,
		"tenant", id.TenantID,
		"user_id", id.UserID,
		"role", string(id.Role),
	)

	rl := NewRateLimiter(g.rateEvents, g.rateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "conn_id", connID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "conn_id", connID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.readIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				metricInvalidPayloads.Inc()
				g.trySendError(ctx, client, "bad_json", "invalid JSON")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "conn_id", connID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.Allow(now) {
			g.trySendError(ctx, client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			metricInvalidPayloads.Inc()
			g.trySendError(ctx, client, "bad_envelope", err.Error())
			continue readLoop
		}

		switch env.Type {
		case v1.TypeJoin:
			g.onJoin(ctx, client, env, now)

		case v1.TypeTyping:
			g.onTyping(ctx, client, env, now)

		case v1.TypeDelivered:
			g.onAck(ctx, client, env, StatusDelivered, now)

		case v1.TypeRead:
			g.onAck(ctx, client, env, StatusRead, now)

		case v1.TypeMessageSend:
			if err := g.onMessageSend(ctx, client, env, now); err != nil {
				g.trySendError(ctx, client, "send_failed", err.Error())
			}

		case v1.TypeMessageDelete:
			if err := g.onMessageDelete(ctx, client, env, now); err != nil {
				g.trySendError(ctx, client, "delete_failed", err.Error())
			}

		case v1.TypePositionsClient:
			if err := g.onClientPositions(ctx, client, env); err != nil {
				g.trySendError(ctx, client, "positions_failed", err.Error())
			}

		default:
			g.trySendError(ctx, client, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// ---- handlers ----

// onJoin authorizes an explicit chat-room join against the membership store.
// Denials are logged and dropped without a reply: an error payload would leak
// room existence to a probing connection.
func (g *WSGateway) onJoin(ctx context.Context, client *Client, env v1.Envelope, now time.Time) {
	var p v1.JoinPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		metricInvalidPayloads.Inc()
		g.trySendError(ctx, client, "bad_payload", "invalid payload")
		return
	}

	roomID := strings.TrimSpace(p.RoomID)
	if roomID == "" {
		g.trySendError(ctx, client, "bad_payload", "missing roomId")
		return
	}

	ok, err := g.membership.IsMember(ctx, client.Identity, roomID)
	if err != nil {
		g.log.Error("ws.join.membership_check_fail", "conn_id", client.ConnID, "err", err)
		g.trySendError(ctx, client, "join_failed", "membership check failed")
		return
	}
	if !ok {
		g.log.Info("ws.join.denied",
			"conn_id", client.ConnID,
			"tenant", client.Identity.TenantID,
			"user_id", client.Identity.UserID,
			"room_id", roomID,
		)
		return
	}

	g.router.Join(roomID, client)

	if echo, err := newEnvelope(v1.TypeJoin, v1.JoinPayload{RoomID: roomID}, now); err == nil {
		g.enqueue(ctx, client, echo)
	}
}

func (g *WSGateway) onTyping(ctx context.Context, client *Client, env v1.Envelope, now time.Time) {
	var p v1.TypingPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		metricInvalidPayloads.Inc()
		g.trySendError(ctx, client, "bad_payload", "invalid payload")
		return
	}

	roomID := strings.TrimSpace(p.RoomID)
	if roomID == "" || !g.router.IsMember(roomID, client.ConnID) {
		return
	}

	userID := client.Identity.UserID
	if p.IsTyping {
		g.typing.Signal(roomID, userID, now)
	} else {
		g.typing.Clear(roomID, userID)
	}

	out, err := newEnvelope(v1.TypeTyping, v1.TypingEventPayload{
		UserID:   userID,
		RoomID:   roomID,
		IsTyping: p.IsTyping,
	}, now)
	if err != nil {
		return
	}
	g.router.BroadcastExcept(out, client.ConnID, roomID)
}

// onAck advances message delivery state and rebroadcasts the transition.
// Stale or duplicate acks are absorbed by the store's monotonic guard and
// produce no broadcast.
func (g *WSGateway) onAck(ctx context.Context, client *Client, env v1.Envelope, to MessageStatus, now time.Time) {
	var p v1.AckPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		metricInvalidPayloads.Inc()
		g.trySendError(ctx, client, "bad_payload", "invalid payload")
		return
	}

	roomID := strings.TrimSpace(p.RoomID)
	if roomID == "" || len(p.MessageIDs) == 0 || !g.router.IsMember(roomID, client.ConnID) {
		return
	}

	var (
		applied []string
		err     error
	)
	switch to {
	case StatusRead:
		applied, err = g.delivery.MarkRead(ctx, roomID, p.MessageIDs, client.Identity.UserID)
	default:
		applied, err = g.delivery.MarkDelivered(ctx, roomID, p.MessageIDs, client.Identity.UserID)
	}
	if err != nil {
		g.log.Error("ws.ack.fail", "conn_id", client.ConnID, "room_id", roomID, "to", string(to), "err", err)
		g.trySendError(ctx, client, "ack_failed", "could not persist acknowledgement")
		return
	}
	if len(applied) == 0 {
		return
	}

	eventType := v1.TypeMessageDelivered
	if to == StatusRead {
		eventType = v1.TypeMessageRead
	}

	out, err := newEnvelope(eventType, v1.ReceiptPayload{
		RoomID:     roomID,
		MessageIDs: applied,
		UserID:     client.Identity.UserID,
		Status:     string(to),
	}, now)
	if err != nil {
		return
	}
	g.router.BroadcastExcept(out, client.ConnID, roomID)
}

func (g *WSGateway) onMessageSend(ctx context.Context, client *Client, env v1.Envelope, now time.Time) error {
	var p v1.MessageSendPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		metricInvalidPayloads.Inc()
		return fmt.Errorf("invalid payload: %w", err)
	}

	roomID := strings.TrimSpace(p.RoomID)
	if roomID == "" {
		return errors.New("missing roomId")
	}
	if !g.router.IsMember(roomID, client.ConnID) {
		return errors.New("not a member of roomId")
	}
	if strings.TrimSpace(p.ClientMsgID) == "" {
		return errors.New("missing clientMsgId")
	}

	content := strings.TrimSpace(p.Content)
	if content == "" {
		return errors.New("empty content")
	}
	if len([]rune(content)) > maxMessageChars {
		return fmt.Errorf("message too long: max=%d chars", maxMessageChars)
	}

	res, err := g.messages.CreateMessage(ctx, CreateMessageInput{
		RoomID:      roomID,
		TenantID:    client.Identity.TenantID,
		UserID:      client.Identity.UserID,
		ClientMsgID: p.ClientMsgID,
		Content:     content,
		Attachments: p.Attachments,
		Now:         now,
	})
	if err != nil {
		return fmt.Errorf("store create: %w", err)
	}

	raw, err := json.Marshal(res.Stored)
	if err != nil {
		return err
	}
	out, err := newEnvelope(v1.TypeMessageNew, v1.MessagePayload{Message: raw, TS: now}, now)
	if err != nil {
		return err
	}

	// A retry with a known clientMsgId re-acks the sender only; the room
	// already saw the original broadcast.
	if res.Duplicated {
		g.enqueue(ctx, client, out)
		return nil
	}

	g.router.Broadcast(out, roomID)
	return nil
}

func (g *WSGateway) onMessageDelete(ctx context.Context, client *Client, env v1.Envelope, now time.Time) error {
	var p v1.MessageDeletePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		metricInvalidPayloads.Inc()
		return fmt.Errorf("invalid payload: %w", err)
	}

	roomID := strings.TrimSpace(p.RoomID)
	messageID := strings.TrimSpace(p.MessageID)
	if roomID == "" || messageID == "" {
		return errors.New("missing roomId or messageId")
	}
	if !g.router.IsMember(roomID, client.ConnID) {
		return errors.New("not a member of roomId")
	}

	if _, err := g.messages.SoftDeleteMessage(ctx, roomID, messageID, client.Identity.UserID); err != nil {
		switch {
		case errors.Is(err, ErrNotOwner):
			return errors.New("only the author may delete")
		case errors.Is(err, ErrNotFound):
			return errors.New("unknown message")
		default:
			return fmt.Errorf("store delete: %w", err)
		}
	}

	out, err := newEnvelope(v1.TypeMessageDeleted, v1.MessageDeletePayload{
		RoomID:    roomID,
		MessageID: messageID,
	}, now)
	if err != nil {
		return err
	}
	g.router.Broadcast(out, roomID)
	return nil
}

// onClientPositions accepts a client-role bulk drag update. The board engine
// validates, persists, and rebroadcasts to the staff room; nothing reaches
// another audience before the transaction commits.
func (g *WSGateway) onClientPositions(ctx context.Context, client *Client, env v1.Envelope) error {
	if client.Identity.Role != identity.RoleClient {
		return errors.New("client role required")
	}

	var p v1.PositionsClientPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		metricInvalidPayloads.Inc()
		return fmt.Errorf("invalid payload: %w", err)
	}
	if len(p.Changes) == 0 {
		return errors.New("empty changes")
	}
	if len(p.Changes) > maxPositionChanges {
		p.Changes = p.Changes[:maxPositionChanges]
	}

	changes := make([]board.PositionChange, 0, len(p.Changes))
	for _, c := range p.Changes {
		if c.Order == nil {
			continue
		}
		changes = append(changes, board.PositionChange{ID: c.ID, Status: c.Status, Order: *c.Order})
	}

	origin := strings.TrimSpace(p.Origin)
	if origin == "" {
		origin = client.Identity.UserID
	}

	if _, err := g.board.ApplyClientPositions(ctx, client.Identity.TenantID, changes, origin); err != nil {
		return fmt.Errorf("apply positions: %w", err)
	}
	return nil
}

// ---- send helpers ----

func (g *WSGateway) trySendError(ctx context.Context, client *Client, code, msg string) {
	env, err := newEnvelope(v1.TypeError, v1.ErrorPayload{Code: code, Message: msg}, time.Now().UTC())
	if err != nil {
		return
	}
	_ = g.enqueue(ctx, client, env)
}

func (g *WSGateway) enqueue(ctx context.Context, client *Client, env v1.Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case <-client.Done():
		return false
	case client.Send <- env:
		return true
	default:
		return false
	}
}

// ---- envelope IO ----

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, err
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	// JSON decode errors are typically returned by json.Unmarshal, not conn.Read.
	// This fallback exists for robustness when error strings are propagated.
	s := err.Error()
	if strings.Contains(s, "unexpected end of JSON input") || strings.Contains(s, "invalid character") {
		return readErrBadJSON
	}
	return readErrUnknown
}

// ---- credentials ----

// bearerToken extracts the handshake credential: Authorization header first,
// then the token query parameter (browser WebSocket APIs cannot set headers).
func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// URL form.
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	// host[:port] form.
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the origin host using filepath.Match patterns.
	// We keep this strict: only hosts extracted from allowlist are accepted.
	seen := make(map[string]struct{}, len(allowed))

	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}

	sort.Strings(out)
	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
