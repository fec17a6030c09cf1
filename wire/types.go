// Package wire holds the realtime messages exchanged between a room server and its clients, and
// the codecs that frame them.
package wire

import (
	"os"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

// MemberRecord is a member as the server knows it.
type MemberRecord struct {
	// MemberID is unique within a room and is the key all client-side merging is done on.
	MemberID int64  `json:"memberId"`
	UserID   string `json:"id"`
	Name     string `json:"name"`
}

// Cursor is a selection in the shared document. A caret has RangeStart == RangeEnd.
type Cursor struct {
	RangeStart int `json:"rangeStart"`
	RangeEnd   int `json:"rangeEnd"`
}

// Caret collapses the cursor to its start.
func (c Cursor) Caret() Cursor {
	return Cursor{RangeStart: c.RangeStart, RangeEnd: c.RangeStart}
}

type MessageType string

const (
	TypeRoomChange   MessageType = "room_change"
	TypeCursorChange MessageType = "cursor_change"
	TypeHeartbeat    MessageType = "heartbeat"
)

// Every message needs a type to distinguish what kind of update it is. Codecs always produce
// pointer values e.g *RoomChange.
type Message interface {
	Type() MessageType
}

type ChangeType string

const (
	ChangeJoin  ChangeType = "join"
	ChangeLeave ChangeType = "leave"
)

type Change struct {
	Type ChangeType   `json:"type"`
	User MemberRecord `json:"user"`
}

// RoomChange is a batch of membership changes which moved the room to RoomVersion.
type RoomChange struct {
	Changes     []Change `json:"changes"`
	RoomVersion int64    `json:"roomVersion"`
}

func (*RoomChange) Type() MessageType { return TypeRoomChange }

type CursorChange struct {
	UserID   string `json:"userId"`
	MemberID int64  `json:"memberId"`
	Cursor   Cursor `json:"cursor"`
}

func (*CursorChange) Type() MessageType { return TypeCursorChange }

// Heartbeat advertises the server's current room version so clients can detect missed changes.
type Heartbeat struct {
	RoomVersion int64 `json:"roomVersion"`
}

func (*Heartbeat) Type() MessageType { return TypeHeartbeat }
