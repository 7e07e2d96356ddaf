package realtime

import (
	"reflect"
	"testing"
)

func TestPresenceEdgeTransitions(t *testing.T) {
	t.Parallel()

	p := NewPresence()

	if !p.Add("t1", "u1", "conn-1") {
		t.Fatal("first connection must report wentOnline")
	}
	if p.Add("t1", "u1", "conn-2") {
		t.Fatal("second connection must not report wentOnline")
	}
	if !p.IsOnline("t1", "u1") {
		t.Fatal("user should be online with two connections")
	}

	if p.Remove("t1", "u1", "conn-1") {
		t.Fatal("closing one of two tabs must not report wentOffline")
	}
	if !p.IsOnline("t1", "u1") {
		t.Fatal("user should stay online with one connection left")
	}

	if !p.Remove("t1", "u1", "conn-2") {
		t.Fatal("last connection closing must report wentOffline")
	}
	if p.IsOnline("t1", "u1") {
		t.Fatal("user should be offline")
	}
}

func TestPresenceAddSameConnTwice(t *testing.T) {
	t.Parallel()

	p := NewPresence()
	if !p.Add("t1", "u1", "conn-1") {
		t.Fatal("first add should report wentOnline")
	}
	if p.Add("t1", "u1", "conn-1") {
		t.Fatal("duplicate add of the same conn must not re-fire the edge")
	}
	if !p.Remove("t1", "u1", "conn-1") {
		t.Fatal("single remove should take the user offline")
	}
}

func TestPresenceRemoveUnknownIsNoop(t *testing.T) {
	t.Parallel()

	p := NewPresence()
	if p.Remove("t1", "u1", "ghost") {
		t.Fatal("removing an unknown connection must not report wentOffline")
	}

	p.Add("t1", "u1", "conn-1")
	if p.Remove("t1", "u1", "ghost") {
		t.Fatal("unknown conn id must not affect a live user")
	}
	if !p.IsOnline("t1", "u1") {
		t.Fatal("user should still be online")
	}
}

func TestPresenceTenantIsolation(t *testing.T) {
	t.Parallel()

	p := NewPresence()
	p.Add("t1", "u1", "conn-1")
	p.Add("t2", "u2", "conn-2")

	if p.IsOnline("t2", "u1") || p.IsOnline("t1", "u2") {
		t.Fatal("presence leaked across tenants")
	}

	if got := p.SnapshotOnline("t1"); !reflect.DeepEqual(got, []string{"u1"}) {
		t.Fatalf("t1 snapshot=%v", got)
	}
	if got := p.SnapshotOnline("t2"); !reflect.DeepEqual(got, []string{"u2"}) {
		t.Fatalf("t2 snapshot=%v", got)
	}
}

func TestSnapshotOnlineSortedCopy(t *testing.T) {
	t.Parallel()

	p := NewPresence()
	p.Add("t1", "zed", "c1")
	p.Add("t1", "amy", "c2")
	p.Add("t1", "mia", "c3")

	got := p.SnapshotOnline("t1")
	want := []string{"amy", "mia", "zed"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("snapshot=%v want=%v", got, want)
	}

	// Mutating the snapshot must not touch registry state.
	got[0] = "hacked"
	if again := p.SnapshotOnline("t1"); !reflect.DeepEqual(again, want) {
		t.Fatalf("registry mutated through snapshot: %v", again)
	}
}
