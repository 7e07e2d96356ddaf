package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"atelier/cmd/internal/identity"
	v1 "atelier/shared/contracts/collab/v1"
)

type historyFixture struct {
	handler  *HistoryHandler
	store    *InMemoryStore
	resolver *identity.StaticResolver
	members  *InMemoryMembership
}

func newHistoryFixture(t *testing.T) *historyFixture {
	t.Helper()

	f := &historyFixture{
		store:    NewInMemoryStore(),
		resolver: identity.NewStaticResolver(),
		members:  NewInMemoryMembership(),
	}
	f.handler = NewHistoryHandler(testLogger(), f.resolver, f.members, f.store)

	if err := f.resolver.Grant("staff-token", identity.Identity{
		TenantID: "t1", UserID: "alice", Role: identity.RoleStaff,
	}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := f.resolver.Grant("client-token", identity.Identity{
		TenantID: "t1", UserID: "carol", Role: identity.RoleClient, CustomerID: "cust-1",
	}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	return f
}

func (f *historyFixture) get(t *testing.T, path, token string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeHistory(t *testing.T, rec *httptest.ResponseRecorder) historyResponse {
	t.Helper()

	var out historyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

func TestHistoryRequiresAuth(t *testing.T) {
	t.Parallel()

	f := newHistoryFixture(t)

	if rec := f.get(t, "/api/rooms/tenant:t1/messages", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status=%d want=401", rec.Code)
	}
	if rec := f.get(t, "/api/rooms/tenant:t1/messages", "bogus"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status=%d want=401", rec.Code)
	}
}

func TestHistoryDefaultRoomAccess(t *testing.T) {
	t.Parallel()

	f := newHistoryFixture(t)
	room := v1.TenantRoom("t1")
	seedMessage(t, f.store, room, "alice", "c1")

	rec := f.get(t, "/api/rooms/"+room+"/messages", "staff-token")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d want=200", rec.Code)
	}
	out := decodeHistory(t, rec)
	if len(out.Messages) != 1 || out.HasMore {
		t.Fatalf("response=%+v", out)
	}

	// A client-role user is not in the staff tenant room; the denial reads
	// the same as an unknown room.
	if rec := f.get(t, "/api/rooms/"+room+"/messages", "client-token"); rec.Code != http.StatusNotFound {
		t.Fatalf("client in staff room: status=%d want=404", rec.Code)
	}

	// The client's own customer room passes structurally.
	own := v1.TenantClientRoom("t1", "cust-1")
	if rec := f.get(t, "/api/rooms/"+own+"/messages", "client-token"); rec.Code != http.StatusOK {
		t.Fatalf("client own room: status=%d want=200", rec.Code)
	}
}

func TestHistoryStaffReadsCustomerRooms(t *testing.T) {
	t.Parallel()

	f := newHistoryFixture(t)
	room := v1.TenantClientRoom("t1", "cust-1")
	seedMessage(t, f.store, room, "carol", "c1")

	// Staff oversee customer scopes of their own tenant without a
	// membership row.
	rec := f.get(t, "/api/rooms/"+room+"/messages", "staff-token")
	if rec.Code != http.StatusOK {
		t.Fatalf("staff in own-tenant customer room: status=%d want=200", rec.Code)
	}
	if out := decodeHistory(t, rec); len(out.Messages) != 1 {
		t.Fatalf("response=%+v", out)
	}

	// Another tenant's customer room stays invisible.
	foreign := v1.TenantClientRoom("t2", "cust-9")
	if rec := f.get(t, "/api/rooms/"+foreign+"/messages", "staff-token"); rec.Code != http.StatusNotFound {
		t.Fatalf("staff in foreign customer room: status=%d want=404", rec.Code)
	}
}

func TestHistoryExplicitRoomMembership(t *testing.T) {
	t.Parallel()

	f := newHistoryFixture(t)
	f.members.Put("chat-42", "alice")
	seedMessage(t, f.store, "chat-42", "alice", "c1")

	if rec := f.get(t, "/api/rooms/chat-42/messages", "staff-token"); rec.Code != http.StatusOK {
		t.Fatalf("member: status=%d want=200", rec.Code)
	}
	if rec := f.get(t, "/api/rooms/chat-42/messages", "client-token"); rec.Code != http.StatusNotFound {
		t.Fatalf("non-member: status=%d want=404", rec.Code)
	}
}

func TestHistoryPagingParams(t *testing.T) {
	t.Parallel()

	f := newHistoryFixture(t)
	room := v1.TenantRoom("t1")
	for i := 0; i < 5; i++ {
		seedMessage(t, f.store, room, "alice", string(rune('a'+i)))
	}

	rec := f.get(t, "/api/rooms/"+room+"/messages?limit=2", "staff-token")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	page1 := decodeHistory(t, rec)
	if len(page1.Messages) != 2 || !page1.HasMore {
		t.Fatalf("page1=%+v", page1)
	}

	after := page1.Messages[1].ID
	rec = f.get(t, "/api/rooms/"+room+"/messages?after="+after+"&limit=10", "staff-token")
	page2 := decodeHistory(t, rec)
	if len(page2.Messages) != 3 || page2.HasMore {
		t.Fatalf("page2=%+v", page2)
	}

	if rec := f.get(t, "/api/rooms/"+room+"/messages?limit=zero", "staff-token"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: status=%d want=400", rec.Code)
	}
}

func TestHistoryRejectsNonGet(t *testing.T) {
	t.Parallel()

	f := newHistoryFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/rooms/tenant:t1/messages", nil)
	req.Header.Set("Authorization", "Bearer staff-token")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d want=405", rec.Code)
	}
}

func TestRoomIDFromPath(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path string
		want string
	}{
		{"/api/rooms/tenant:t1/messages", "tenant:t1"},
		{"/api/rooms/chat-42/messages", "chat-42"},
		{"/api/rooms//messages", ""},
		{"/api/rooms/chat-42", ""},
		{"/api/other/chat-42/messages", ""},
	}
	for _, tc := range cases {
		if got := roomIDFromPath(tc.path); got != tc.want {
			t.Fatalf("roomIDFromPath(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}
