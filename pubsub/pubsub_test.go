package pubsub

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/RaghhavDTurki/realtime-collab-editor/wire"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type testPayload struct {
	n int
}

func (*testPayload) Type() string { return "test" }

func TestPubSubDeliversInOrder(t *testing.T) {
	ps := NewPubSub(10)
	defer ps.Close()

	for i := 0; i < 3; i++ {
		if err := ps.Notify("a", &testPayload{i}); err != nil {
			t.Fatalf("Notify: %s", err)
		}
	}
	got := make(chan int, 3)
	done := make(chan struct{})
	go func() {
		ps.Listen("a", func(p Payload) {
			got <- p.(*testPayload).n
		})
		close(done)
	}()
	for want := 0; want < 3; want++ {
		select {
		case n := <-got:
			if n != want {
				t.Fatalf("got payload %d want %d", n, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for payload %d", want)
		}
	}
	ps.Unlisten("a")
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Listen did not return after Unlisten")
	}
}

func TestPubSubClosed(t *testing.T) {
	ps := NewPubSub(1)
	ps.Close()
	if err := ps.Notify("a", &testPayload{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Notify after Close: got %v want ErrClosed", err)
	}
	if err := ps.Listen("a", func(Payload) {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Listen after Close: got %v want ErrClosed", err)
	}
	// closing twice is fine
	ps.Close()
}

func TestPromNotifierCountsPayloads(t *testing.T) {
	ps := NewPubSub(10)
	n := NewPromNotifier(ps, "pubsub_test")
	defer n.Close()
	n.Notify("a", &testPayload{})
	n.Notify("b", &testPayload{})
	if got := testutil.ToFloat64(n.msgCounter.WithLabelValues("test")); got != 2 {
		t.Fatalf("got %v payloads counted want 2", got)
	}
}

func TestRoomTransport(t *testing.T) {
	ps := NewPubSub(10)
	defer ps.Close()
	codec := wire.JSONCodec{}
	tr := NewRoomTransport(ps, ps, codec, "r1", 4)

	received := make(chan []wire.Message, 10)
	unsubscribe := tr.Subscribe(func(msgs []wire.Message) {
		received <- msgs
	})

	// server -> client
	batch := []wire.Message{&wire.Heartbeat{RoomVersion: 3}}
	data, err := codec.Encode(batch)
	if err != nil {
		t.Fatalf("Encode: %s", err)
	}
	ps.Notify(ClientChannel("r1", 4), &RoomFrame{RoomID: "r1", Sender: -1, Data: []byte("not json")})
	ps.Notify(ClientChannel("r1", 4), &RoomFrame{RoomID: "r1", Sender: -1, Data: data})
	select {
	case got := <-received:
		if !reflect.DeepEqual(got, batch) {
			t.Fatalf("got %+v want %+v", got, batch)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for batch")
	}

	// client -> server
	upstream := make(chan *RoomFrame, 1)
	go ps.Listen(UpstreamChannel("r1"), func(p Payload) {
		upstream <- p.(*RoomFrame)
	})
	cursor := []wire.Message{&wire.CursorChange{UserID: "u4", MemberID: 4, Cursor: wire.Cursor{RangeStart: 2, RangeEnd: 2}}}
	if err := tr.Send(cursor); err != nil {
		t.Fatalf("Send: %s", err)
	}
	select {
	case frame := <-upstream:
		if frame.Sender != 4 || frame.RoomID != "r1" {
			t.Fatalf("bad frame header: %+v", frame)
		}
		got, err := codec.Decode(frame.Data)
		if err != nil {
			t.Fatalf("Decode: %s", err)
		}
		if !reflect.DeepEqual(got, cursor) {
			t.Fatalf("got %+v want %+v", got, cursor)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for upstream frame")
	}

	unsubscribe()
	unsubscribe()
	if err := ps.Notify(ClientChannel("r1", 4), &RoomFrame{RoomID: "r1", Data: data}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Notify after unsubscribe: got %v want ErrClosed", err)
	}
	select {
	case got := <-received:
		t.Fatalf("received %+v after unsubscribe", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPubSubUnlistenedChannelStaysClosed(t *testing.T) {
	ps := NewPubSub(1)
	defer ps.Close()
	ps.Unlisten("gone")
	if err := ps.Notify("gone", &testPayload{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Notify on unlistened channel: got %v want ErrClosed", err)
	}
	if err := ps.Listen("gone", func(Payload) {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Listen on unlistened channel: got %v want ErrClosed", err)
	}
}

func TestPubSubFullChannelDoesNotBlockOthers(t *testing.T) {
	ps := NewPubSub(1)
	defer ps.Close()

	// nobody reads "stuck": the first payload fills the buffer, the second blocks until timeout
	if err := ps.Notify("stuck", &testPayload{}); err != nil {
		t.Fatalf("Notify: %s", err)
	}
	go ps.Notify("stuck", &testPayload{})
	time.Sleep(50 * time.Millisecond)

	got := make(chan int, 1)
	go ps.Listen("healthy", func(p Payload) {
		got <- p.(*testPayload).n
	})
	start := time.Now()
	if err := ps.Notify("healthy", &testPayload{n: 7}); err != nil {
		t.Fatalf("Notify: %s", err)
	}
	// a fresh channel must not wait on the stuck one
	if err := ps.Notify("other", &testPayload{}); err != nil {
		t.Fatalf("Notify: %s", err)
	}
	select {
	case n := <-got:
		if n != 7 {
			t.Fatalf("got payload %d want 7", n)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for healthy payload")
	}
	if took := time.Since(start); took > time.Second {
		t.Fatalf("Notify on a healthy channel took %v", took)
	}

	// unlistening wakes up the blocked notifier
	done := make(chan error, 1)
	go func() {
		done <- ps.Notify("stuck", &testPayload{})
	}()
	time.Sleep(20 * time.Millisecond)
	ps.Unlisten("stuck")
	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("blocked Notify: got %v want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("blocked Notify did not return after Unlisten")
	}
}

func TestRoomTransportUnsubscribeBeforeListenerStarts(t *testing.T) {
	ps := NewPubSub(10)
	defer ps.Close()
	tr := NewRoomTransport(ps, ps, wire.JSONCodec{}, "r1", 5)
	unsubscribe := tr.Subscribe(func(msgs []wire.Message) {
		t.Errorf("delivered %d messages after unsubscribe", len(msgs))
	})
	unsubscribe()

	inbox := ClientChannel("r1", 5)
	deadline := time.Now().Add(time.Second)
	for {
		time.Sleep(20 * time.Millisecond)
		ps.mu.Lock()
		_, registered := ps.chans[inbox]
		ps.mu.Unlock()
		if !registered {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s still registered after unsubscribe", inbox)
		}
	}
	if err := ps.Notify(inbox, &RoomFrame{RoomID: "r1"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Notify after unsubscribe: got %v want ErrClosed", err)
	}
}
