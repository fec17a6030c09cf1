package presence

import (
	"context"

	"github.com/RaghhavDTurki/realtime-collab-editor/wire"
)

// Transport is the realtime channel to the room server. Batches passed to the subscriber callback
// are delivered in order, one at a time.
type Transport interface {
	Subscribe(fn func(msgs []wire.Message)) (unsubscribe func())
	Send(msgs []wire.Message) error
}

// Snapshot is the authoritative roster of a room at Version.
type Snapshot struct {
	Version int64
	Members []wire.MemberRecord
}

type SnapshotFetcher interface {
	FetchMembers(ctx context.Context, roomID string) (*Snapshot, error)
}

// Listener is notified with the new roster whenever it changes.
type Listener interface {
	OnMembersUpdate(members Members)
}

type ListenerFunc func(members Members)

func (f ListenerFunc) OnMembersUpdate(members Members) {
	f(members)
}
