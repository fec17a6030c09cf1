package internal

import (
	"context"

	"github.com/rs/zerolog"
)

type ctx string

var (
	ctxData ctx = "collab_data"
)

// logging metadata for a single request or fetch
type data struct {
	roomID      string
	memberID    int64
	roomVersion int64
	numMembers  int
	reason      string
}

// prepare a context so it can carry room info
func RequestContext(ctx context.Context) context.Context {
	d := &data{
		memberID:    -1,
		roomVersion: -1,
		numMembers:  -1,
	}
	return context.WithValue(ctx, ctxData, d)
}

// add the room and member to this context. Need to have called RequestContext first.
func SetRequestContextRoom(ctx context.Context, roomID string, memberID int64) {
	d := ctx.Value(ctxData)
	if d == nil {
		return
	}
	da := d.(*data)
	da.roomID = roomID
	da.memberID = memberID
}

// SetRequestContextReason records why a snapshot was requested e.g "version_gap".
func SetRequestContextReason(ctx context.Context, reason string) {
	d := ctx.Value(ctxData)
	if d == nil {
		return
	}
	d.(*data).reason = reason
}

func SetRequestContextSnapshotInfo(ctx context.Context, roomVersion int64, numMembers int) {
	d := ctx.Value(ctxData)
	if d == nil {
		return
	}
	da := d.(*data)
	da.roomVersion = roomVersion
	da.numMembers = numMembers
}

func DecorateLogger(ctx context.Context, l *zerolog.Event) *zerolog.Event {
	d := ctx.Value(ctxData)
	if d == nil {
		return l
	}
	da := d.(*data)
	if da.roomID != "" {
		l = l.Str("room", da.roomID)
	}
	if da.memberID >= 0 {
		l = l.Int64("m", da.memberID)
	}
	if da.reason != "" {
		l = l.Str("why", da.reason)
	}
	if da.roomVersion >= 0 {
		l = l.Int64("v", da.roomVersion)
	}
	if da.numMembers >= 0 {
		l = l.Int("n", da.numMembers)
	}
	return l
}
