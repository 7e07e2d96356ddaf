// Package main provides a CI-friendly WebSocket smoke test for the Atelier
// collaboration gateway.
//
// It validates:
//   - handshake + subprotocol selection with a bearer token
//   - users:online snapshot on connect
//   - typing fanout to the other client
//   - message:send -> message:new fanout
//   - delivered/read receipts flowing back to the author
//   - idempotent dedupe by clientMsgId
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"

	v1 "atelier/shared/contracts/collab/v1"
)

const (
	defaultSubprotocol = "atelier.collab.v1"
	maxReadBytes       = 1 << 20 // 1MiB
)

type smokeClient struct {
	name string
	conn *websocket.Conn

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		tokenA  = flag.String("token-a", os.Getenv("ATELIER_SMOKE_TOKEN_A"), "Bearer token for client A")
		tokenB  = flag.String("token-b", os.Getenv("ATELIER_SMOKE_TOKEN_B"), "Bearer token for client B")
		roomID  = flag.String("room", "tenant:dev-tenant", "Room to exercise (both tokens must resolve into it)")
		text    = flag.String("text", "hello atelier", "Message content to send")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}
	if strings.TrimSpace(*tokenA) == "" || strings.TrimSpace(*tokenB) == "" {
		fatalf("missing tokens: set -token-a/-token-b or ATELIER_SMOKE_TOKEN_A/B")
	}

	root := context.Background()

	a := mustConnect(root, "A", *wsURL, *origin, *tokenA, *timeout)
	defer closeWS(a.conn)

	b := mustConnect(root, "B", *wsURL, *origin, *tokenB, *timeout)
	defer closeWS(b.conn)

	if *verbose {
		fmt.Printf("connected: origin=%q room=%q\n", *origin, *roomID)
	}

	// Typing fanout: A signals, B observes.
	mustWriteWithTimeout(root, a.conn, mustEnvelope(v1.TypeTyping, "A-typing", v1.TypingPayload{
		RoomID:   *roomID,
		IsTyping: true,
	}), *timeout)
	mustAssertTyping(root, b, *roomID, true, *timeout)

	clientMsgID := fmt.Sprintf("cmsg-%d", time.Now().UnixNano())

	mustWriteWithTimeout(root, a.conn, mustEnvelope(v1.TypeMessageSend, "A-send", v1.MessageSendPayload{
		RoomID:      *roomID,
		ClientMsgID: clientMsgID,
		Content:     *text,
	}), *timeout)

	msgID := mustAssertNew(root, b, *roomID, *text, *timeout)
	_ = mustAssertNew(root, a, *roomID, *text, *timeout)

	// Receipts: B acks delivered then read; A observes both transitions.
	mustWriteWithTimeout(root, b.conn, mustEnvelope(v1.TypeDelivered, "B-delivered", v1.AckPayload{
		RoomID:     *roomID,
		MessageIDs: []string{msgID},
	}), *timeout)
	mustAssertReceipt(root, a, v1.TypeMessageDelivered, *roomID, msgID, *timeout)

	mustWriteWithTimeout(root, b.conn, mustEnvelope(v1.TypeRead, "B-read", v1.AckPayload{
		RoomID:     *roomID,
		MessageIDs: []string{msgID},
	}), *timeout)
	mustAssertReceipt(root, a, v1.TypeMessageRead, *roomID, msgID, *timeout)

	// Dedupe: resend with the same clientMsgId, only the author is re-acked.
	mustWriteWithTimeout(root, a.conn, mustEnvelope(v1.TypeMessageSend, "A-resend", v1.MessageSendPayload{
		RoomID:      *roomID,
		ClientMsgID: clientMsgID,
		Content:     *text,
	}), *timeout)
	_ = mustAssertNew(root, a, *roomID, *text, *timeout)
	mustAssertNoType(root, b, v1.TypeMessageNew, 1200*time.Millisecond)

	fmt.Printf("OK: room=%s message_id=%s\n", *roomID, msgID)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL, origin, token string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}
	h.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{defaultSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		fatalf("connect %s: %v", name, err)
	}

	assertSubprotocol(resp, defaultSubprotocol)

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan v1.Envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()

	// Connect implies admission: the snapshot arrives without any request.
	snap := c.mustReadUntilType(parent, v1.TypeUsersOnline, stepTimeout, map[string]struct{}{
		v1.TypeUserOnline: {},
	})

	var p v1.UsersOnlinePayload
	if err := json.Unmarshal(snap.Payload, &p); err != nil {
		fatalf("unmarshal users:online payload (%s): %v", name, err)
	}
	if len(p.UserIDs) == 0 {
		fatalf("users:online snapshot empty (%s): should contain at least self", name)
	}

	return c
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got == "" {
		return
	}
	if got != want {
		fatalf("subprotocol mismatch: got=%q want=%q", got, want)
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if err := env.Validate(); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad envelope: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func mustAssertTyping(parent context.Context, c *smokeClient, roomID string, isTyping bool, stepTimeout time.Duration) {
	env := c.mustReadUntilType(parent, v1.TypeTyping, stepTimeout, map[string]struct{}{
		v1.TypeUserOnline: {},
	})

	var p v1.TypingEventPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal typing payload (%s): %v", c.name, err)
	}
	if p.RoomID != roomID {
		fatalf("typing roomId mismatch (%s): got=%q want=%q", c.name, p.RoomID, roomID)
	}
	if p.IsTyping != isTyping {
		fatalf("typing isTyping mismatch (%s): got=%v want=%v", c.name, p.IsTyping, isTyping)
	}
	if strings.TrimSpace(p.UserID) == "" {
		fatalf("typing missing userId (%s)", c.name)
	}
}

func mustAssertNew(parent context.Context, c *smokeClient, roomID, content string, stepTimeout time.Duration) string {
	env := c.mustReadUntilType(parent, v1.TypeMessageNew, stepTimeout, map[string]struct{}{
		v1.TypeUserOnline: {},
		v1.TypeTyping:     {},
	})

	var p v1.MessagePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal message:new payload (%s): %v", c.name, err)
	}

	var msg struct {
		ID      string `json:"id"`
		RoomID  string `json:"roomId"`
		Content string `json:"content"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(p.Message, &msg); err != nil {
		fatalf("unmarshal message body (%s): %v", c.name, err)
	}

	if msg.RoomID != roomID {
		fatalf("new roomId mismatch (%s): got=%q want=%q", c.name, msg.RoomID, roomID)
	}
	if msg.Content != content {
		fatalf("new content mismatch (%s): got=%q want=%q", c.name, msg.Content, content)
	}
	if strings.TrimSpace(msg.ID) == "" {
		fatalf("new missing message id (%s)", c.name)
	}
	if p.TS.IsZero() {
		fatalf("new ts missing/zero (%s)", c.name)
	}
	return msg.ID
}

func mustAssertReceipt(parent context.Context, c *smokeClient, wantType, roomID, msgID string, stepTimeout time.Duration) {
	env := c.mustReadUntilType(parent, wantType, stepTimeout, map[string]struct{}{
		v1.TypeUserOnline: {},
		v1.TypeTyping:     {},
	})

	var p v1.ReceiptPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal receipt payload (%s): %v", c.name, err)
	}
	if p.RoomID != roomID {
		fatalf("receipt roomId mismatch (%s): got=%q want=%q", c.name, p.RoomID, roomID)
	}

	found := false
	for _, id := range p.MessageIDs {
		if id == msgID {
			found = true
			break
		}
	}
	if !found {
		fatalf("receipt missing message id (%s): want=%q got=%v", c.name, msgID, p.MessageIDs)
	}
}

func mustAssertNoType(parent context.Context, c *smokeClient, forbiddenType string, wait time.Duration) {
	ctx, cancel := context.WithTimeout(parent, wait)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed unexpectedly (%s)", c.name)
			}
			fatalf("connection closed unexpectedly (%s): %v", c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed unexpectedly (%s)", c.name)
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			if env.Type == forbiddenType {
				fatalf("unexpected %s received (%s)", forbiddenType, c.name)
			}
		}
	}
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration, skipTypes map[string]struct{}) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			if skipTypes != nil {
				if _, ok := skipTypes[env.Type]; ok {
					continue
				}
			}
			fatalf("unexpected envelope type (%s): got=%q want=%q", c.name, env.Type, wantType)
		}
	}
}

func mustEnvelope(typ, id string, payload any) v1.Envelope {
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      id,
		TS:      time.Now().UTC(),
		Payload: mustJSON(payload),
	}
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
