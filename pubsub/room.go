package pubsub

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/RaghhavDTurki/realtime-collab-editor/wire"
)

// RoomFrame carries one encoded batch of wire messages for a room.
type RoomFrame struct {
	RoomID string
	// member id of the client which sent the frame, or -1 for the server
	Sender int64
	Data   []byte
}

func (*RoomFrame) Type() string { return "frame" }

// ClientChannel is where the server delivers frames for one member of a room.
func ClientChannel(roomID string, memberID int64) string {
	return "room:" + roomID + ":member:" + strconv.FormatInt(memberID, 10)
}

// UpstreamChannel is where clients of a room send frames to the server.
func UpstreamChannel(roomID string) string {
	return "room:" + roomID + ":up"
}

// RoomTransport is a presence.Transport for one member of one room, carried over pub/sub channels.
type RoomTransport struct {
	roomID   string
	memberID int64
	notifier Notifier
	listener Listener
	codec    wire.Codec
}

func NewRoomTransport(n Notifier, l Listener, codec wire.Codec, roomID string, memberID int64) *RoomTransport {
	return &RoomTransport{
		roomID:   roomID,
		memberID: memberID,
		notifier: n,
		listener: l,
		codec:    codec,
	}
}

// Subscribe starts delivering decoded batches from this member's channel to fn, one at a time.
// Frames which fail to decode are logged and dropped.
func (t *RoomTransport) Subscribe(fn func(msgs []wire.Message)) (unsubscribe func()) {
	inbox := ClientChannel(t.roomID, t.memberID)
	var stopped atomic.Bool
	go func() {
		err := t.listener.Listen(inbox, func(p Payload) {
			frame, ok := p.(*RoomFrame)
			if !ok {
				logger.Warn().Str("chan", inbox).Str("type", p.Type()).Msg("RoomTransport: unexpected payload")
				return
			}
			msgs, err := t.codec.Decode(frame.Data)
			if err != nil {
				logger.Warn().Err(err).Str("chan", inbox).Str("codec", t.codec.Name()).Msg("RoomTransport: dropping undecodable frame")
				return
			}
			if stopped.Load() {
				return
			}
			fn(msgs)
		})
		// ErrClosed: unsubscribed before the listener started, or the pubsub is shut down
		if err != nil && !errors.Is(err, ErrClosed) {
			logger.Err(err).Str("chan", inbox).Msg("RoomTransport: listen failed")
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			stopped.Store(true)
			t.listener.Unlisten(inbox)
		})
	}
}

func (t *RoomTransport) Send(msgs []wire.Message) error {
	data, err := t.codec.Encode(msgs)
	if err != nil {
		return fmt.Errorf("RoomTransport.Send: %w", err)
	}
	err = t.notifier.Notify(UpstreamChannel(t.roomID), &RoomFrame{
		RoomID: t.roomID,
		Sender: t.memberID,
		Data:   data,
	})
	if err != nil {
		return fmt.Errorf("RoomTransport.Send: %w", err)
	}
	return nil
}
