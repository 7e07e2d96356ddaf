package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"atelier/cmd/internal/identity"
	v1 "atelier/shared/contracts/collab/v1"
)

const (
	historyDefaultLimit = 50
	historyMaxLimit     = 200
)

// HistoryHandler serves the REST catch-up endpoint:
//
//	GET /api/rooms/{roomID}/messages?after=<messageID>&limit=<n>
//
// Clients page forward through a room's history after a reconnect; the
// realtime stream only carries what happens while they are connected.
// Authorization mirrors the websocket handshake: bearer credential resolved
// to an identity, then room access checked the same way join is.
type HistoryHandler struct {
	log        *slog.Logger
	resolver   identity.Resolver
	membership MembershipStore
	messages   MessageStore
}

// NewHistoryHandler constructs the catch-up handler.
func NewHistoryHandler(log *slog.Logger, resolver identity.Resolver, membership MembershipStore, messages MessageStore) *HistoryHandler {
	if log == nil {
		log = slog.Default()
	}
	return &HistoryHandler{
		log:        log.With("component", "history"),
		resolver:   resolver,
		membership: membership,
		messages:   messages,
	}
}

type historyResponse struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"hasMore"`
}

func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	roomID := roomIDFromPath(r.URL.Path)
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}

	id, err := h.resolver.Resolve(r.Context(), bearerToken(r))
	if err != nil {
		metricAuthRejected.Inc()
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if !h.mayRead(r, id, roomID) {
		// Same shape as an unknown room: no existence oracle.
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	in := ListMessagesInput{RoomID: roomID, Limit: historyDefaultLimit}
	if after := strings.TrimSpace(r.URL.Query().Get("after")); after != "" {
		in.AfterID = &after
	}
	if rawLimit := strings.TrimSpace(r.URL.Query().Get("limit")); rawLimit != "" {
		n, err := strconv.Atoi(rawLimit)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		if n > historyMaxLimit {
			n = historyMaxLimit
		}
		in.Limit = n
	}

	out, err := h.messages.ListMessages(r.Context(), in)
	if err != nil {
		h.log.Error("history.list.fail", "room_id", roomID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(historyResponse{
		Messages: out.Messages,
		HasMore:  out.HasMore,
	}); err != nil {
		h.log.Error("history.encode.fail", "err", err)
	}
}

// mayRead authorizes history access: identity-derived rooms pass
// structurally, explicit chat rooms consult the membership store. Staff
// oversee every customer scope of their tenant, so any derived room of the
// tenant passes for them without a membership row.
func (h *HistoryHandler) mayRead(r *http.Request, id identity.Identity, roomID string) bool {
	if id.Role.IsStaff() && v1.RoomInTenant(roomID, id.TenantID) {
		return true
	}
	if id.Role == identity.RoleClient && roomID == v1.TenantClientRoom(id.TenantID, id.CustomerID) {
		return true
	}

	ok, err := h.membership.IsMember(r.Context(), id, roomID)
	if err != nil {
		h.log.Error("history.membership_check_fail", "room_id", roomID, "err", err)
		return false
	}
	return ok
}

// roomIDFromPath extracts {roomID} from /api/rooms/{roomID}/messages.
func roomIDFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "rooms" && parts[i+2] == "messages" {
			return parts[i+1]
		}
	}
	return ""
}
