package rooms

import (
	"context"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RaghhavDTurki/realtime-collab-editor/presence"
	"github.com/RaghhavDTurki/realtime-collab-editor/wire"
)

type nopTransport struct {
	unsubscribed int32
}

func (t *nopTransport) Subscribe(fn func(msgs []wire.Message)) func() {
	return func() {
		atomic.AddInt32(&t.unsubscribed, 1)
	}
}

func (t *nopTransport) Send(msgs []wire.Message) error {
	return nil
}

type staticFetcher struct{}

func (staticFetcher) FetchMembers(ctx context.Context, roomID string) (*presence.Snapshot, error) {
	return &presence.Snapshot{Version: 1}, nil
}

func newTestManager(ttl time.Duration, created *int32) *Manager {
	return NewManager(ttl, func(roomID string) *presence.RoomState {
		atomic.AddInt32(created, 1)
		return presence.NewRoomState(roomID, wire.MemberRecord{MemberID: 1, UserID: "u1"}, &nopTransport{}, staticFetcher{}, presence.Opts{})
	})
}

func waitForDestroyed(t *testing.T, rs *presence.RoomState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !rs.IsDestroyed() {
		if time.Now().After(deadline) {
			t.Fatalf("room %s was not destroyed", rs.RoomID())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestManagerGetOrCreate(t *testing.T) {
	var created int32
	m := newTestManager(0, &created)
	defer m.Close()

	if m.Get("a") != nil {
		t.Fatalf("Get on an empty manager returned a room")
	}
	a, ok := m.GetOrCreate("a")
	if !ok {
		t.Fatalf("first GetOrCreate should create")
	}
	again, ok := m.GetOrCreate("a")
	if ok || again != a {
		t.Fatalf("second GetOrCreate should return the existing room")
	}
	m.GetOrCreate("b")
	if got := atomic.LoadInt32(&created); got != 2 {
		t.Fatalf("factory called %d times want 2", got)
	}
	if m.Len() != 2 {
		t.Fatalf("Len: got %d want 2", m.Len())
	}
	ids := m.RoomIDs()
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("RoomIDs: got %v", ids)
	}
	if m.Get("a") != a {
		t.Fatalf("Get returned a different room")
	}
}

func TestManagerRemoveDestroysRoom(t *testing.T) {
	var created int32
	m := newTestManager(0, &created)
	defer m.Close()

	a, _ := m.GetOrCreate("a")
	m.Remove("a")
	waitForDestroyed(t, a)
	if m.Get("a") != nil {
		t.Fatalf("removed room still returned")
	}
	// a new state is made next time
	a2, ok := m.GetOrCreate("a")
	if !ok || a2 == a {
		t.Fatalf("GetOrCreate after Remove should create a new room state")
	}
}

func TestManagerExpiresIdleRooms(t *testing.T) {
	var created int32
	m := newTestManager(100*time.Millisecond, &created)
	defer m.Close()

	idle, _ := m.GetOrCreate("idle")
	busy, _ := m.GetOrCreate("busy")
	for i := 0; i < 6; i++ {
		time.Sleep(40 * time.Millisecond)
		if m.Get("busy") == nil {
			t.Fatalf("busy room expired while in use")
		}
	}
	waitForDestroyed(t, idle)
	if busy.IsDestroyed() {
		t.Fatalf("busy room should still be alive")
	}
}

func TestManagerClose(t *testing.T) {
	var created int32
	m := newTestManager(0, &created)
	a, _ := m.GetOrCreate("a")
	b, _ := m.GetOrCreate("b")
	m.Close()
	waitForDestroyed(t, a)
	waitForDestroyed(t, b)
}
