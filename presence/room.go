// Package presence keeps a client's view of who is in a room, their colors and their cursors,
// consistent with the room server despite dropped or reordered realtime messages.
//
// Incremental changes are applied while the room version advances one step at a time. Any gap,
// or a heartbeat advertising a newer version, triggers a full snapshot fetch which is merged into
// the roster without losing colors or cursors already known locally.
package presence

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/RaghhavDTurki/realtime-collab-editor/internal"
	"github.com/RaghhavDTurki/realtime-collab-editor/wire"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

// Why a snapshot fetch was started.
const (
	ReasonInitial    = "initial"
	ReasonVersionGap = "version_gap"
	ReasonHeartbeat  = "heartbeat"
)

type Opts struct {
	// Registered before the bootstrap fetch is scheduled so none of them miss its update.
	Listeners []Listener
	Metrics   *Metrics
	// Applied to each snapshot fetch when non-zero.
	FetchTimeout time.Duration
}

// RoomState is the client-side controller for one room. All methods are safe to call from
// multiple goroutines.
type RoomState struct {
	roomID    string
	self      wire.MemberRecord
	transport Transport
	fetcher   SnapshotFetcher
	opts      Opts
	logger    zerolog.Logger

	mu          *sync.Mutex
	members     Members
	version     int64
	isFetching  bool
	destroyed   bool
	unsubscribe func()
	// bumped on every roster commit, used to drop stale deliveries
	seq uint64

	emitMu    *sync.Mutex
	delivered uint64

	listenersMu    *sync.Mutex
	listeners      map[int]Listener
	nextListenerID int
}

// NewRoomState seeds the roster with the local user, subscribes to the transport and schedules the
// bootstrap snapshot fetch. It does not block on the fetch.
func NewRoomState(roomID string, self wire.MemberRecord, transport Transport, fetcher SnapshotFetcher, opts Opts) *RoomState {
	r := &RoomState{
		roomID:      roomID,
		self:        self,
		transport:   transport,
		fetcher:     fetcher,
		opts:        opts,
		logger:      logger.With().Str("room", roomID).Int64("m", self.MemberID).Logger(),
		mu:          &sync.Mutex{},
		members:     Members{newMember(self)},
		emitMu:      &sync.Mutex{},
		listenersMu: &sync.Mutex{},
		listeners:   make(map[int]Listener),
	}
	for _, l := range opts.Listeners {
		r.Subscribe(l)
	}
	r.opts.Metrics.roomCreated()

	// Claim the fetch guard before subscribing: a gap seen while subscribing is covered by the
	// bootstrap fetch, which must not lose the guard to a resync.
	r.mu.Lock()
	r.isFetching = true
	r.mu.Unlock()
	r.opts.Metrics.resync(ReasonInitial)

	unsubscribe := transport.Subscribe(r.HandleMessages)
	r.mu.Lock()
	r.unsubscribe = unsubscribe
	r.mu.Unlock()

	go r.fetchMembers(ReasonInitial)
	return r
}

func (r *RoomState) RoomID() string {
	return r.roomID
}

// Self is the local user this room state was created for.
func (r *RoomState) Self() wire.MemberRecord {
	return r.self
}

// Members returns the current roster. The returned slice must not be modified.
func (r *RoomState) Members() Members {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.members
}

func (r *RoomState) Version() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

func (r *RoomState) IsDestroyed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyed
}

// Subscribe registers a listener for roster updates and returns an id for Unsubscribe. Listeners
// are called in registration order, outside of any RoomState lock, and must not block for long.
func (r *RoomState) Subscribe(l Listener) int {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	id := r.nextListenerID
	r.nextListenerID++
	r.listeners[id] = l
	return id
}

func (r *RoomState) Unsubscribe(id int) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	delete(r.listeners, id)
}

// SendMemberCursor tells the room where the local user's caret is. Only the range start is used.
// The local roster is not touched: the server echoes the change back to us.
func (r *RoomState) SendMemberCursor(cursor wire.Cursor) {
	if r.IsDestroyed() {
		r.logger.Warn().Msg("SendMemberCursor called on a destroyed room, ignoring")
		return
	}
	err := r.transport.Send([]wire.Message{
		&wire.CursorChange{
			UserID:   r.self.UserID,
			MemberID: r.self.MemberID,
			Cursor:   cursor.Caret(),
		},
	})
	if err != nil {
		r.logger.Err(err).Int("pos", cursor.RangeStart).Msg("failed to send cursor")
		r.opts.Metrics.sendFailed()
	}
}

// UpdateMembers replaces the roster wholesale. The room version is left alone.
func (r *RoomState) UpdateMembers(members Members) {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		r.logger.Warn().Msg("UpdateMembers called on a destroyed room, ignoring")
		return
	}
	r.members = members.clone()
	internal.Assert("roster has no duplicate member ids", !r.members.hasDuplicates())
	seq, snapshot := r.commitLocked()
	r.mu.Unlock()
	r.emit(seq, snapshot)
}

// Destroy stops processing messages from the transport. Fetches still in flight are discarded
// when they return. Calling Destroy more than once is a no-op.
func (r *RoomState) Destroy() {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return
	}
	r.destroyed = true
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
	r.opts.Metrics.roomDestroyed()
	r.logger.Debug().Msg("room state destroyed")
}

// HandleMessages applies a batch of realtime messages in order. Listeners are notified at most once
// per batch, and only when the roster changed.
func (r *RoomState) HandleMessages(msgs []wire.Message) {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		r.logger.Warn().Int("msgs", len(msgs)).Msg("HandleMessages called on a destroyed room, ignoring")
		return
	}
	members := r.members
	// true once members is a copy private to this batch
	owned := false
	changed := false
	for _, msg := range msgs {
		r.opts.Metrics.message(msg.Type())
		switch m := msg.(type) {
		case *wire.RoomChange:
			for _, ch := range m.Changes {
				if ch.Type == wire.ChangeLeave {
					if members.Has(ch.User.MemberID) {
						members = members.withoutMember(ch.User.MemberID)
						owned = true
					}
				} else if !members.Has(ch.User.MemberID) {
					members = members.withMember(newMember(ch.User))
					owned = true
				}
				changed = true
			}
			if m.RoomVersion == r.version+1 {
				r.version = m.RoomVersion
			} else {
				r.logger.Debug().Int64("local", r.version).Int64("remote", m.RoomVersion).Msg("room version gap")
				r.startFetchLocked(ReasonVersionGap)
			}
		case *wire.CursorChange:
			i := members.index(m.MemberID)
			if i < 0 {
				continue
			}
			if owned {
				cursor := m.Cursor
				members[i].Cursor = &cursor
			} else {
				members = members.withCursor(i, m.Cursor)
				owned = true
			}
			changed = true
		case *wire.Heartbeat:
			if m.RoomVersion > r.version {
				r.logger.Debug().Int64("local", r.version).Int64("remote", m.RoomVersion).Msg("heartbeat is ahead")
				r.startFetchLocked(ReasonHeartbeat)
			}
		default:
			r.logger.Warn().Str("type", string(msg.Type())).Msg("HandleMessages: unknown message type")
		}
	}
	if !changed {
		r.mu.Unlock()
		return
	}
	r.members = members
	seq, snapshot := r.commitLocked()
	r.mu.Unlock()
	r.emit(seq, snapshot)
}

// startFetchLocked starts a snapshot fetch unless one is already running. Caller holds r.mu.
func (r *RoomState) startFetchLocked(reason string) {
	if r.destroyed {
		return
	}
	if r.isFetching {
		r.logger.Trace().Str("why", reason).Msg("fetch already in flight, dropping request")
		r.opts.Metrics.fetchDropped()
		return
	}
	r.isFetching = true
	r.opts.Metrics.resync(reason)
	go r.fetchMembers(reason)
}

// fetchMembers runs with the fetch guard held and always releases it.
func (r *RoomState) fetchMembers(reason string) {
	ctx := internal.RequestContext(context.Background())
	internal.SetRequestContextRoom(ctx, r.roomID, r.self.MemberID)
	internal.SetRequestContextReason(ctx, reason)
	if r.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.FetchTimeout)
		defer cancel()
	}
	ctx, span := internal.StartSpan(ctx, "RoomState.fetchMembers")
	defer span.End()
	span.SetAttributes(attribute.String("room", r.roomID), attribute.String("reason", reason))

	snapshot, err := r.fetcher.FetchMembers(ctx, r.roomID)
	if err == nil && snapshot == nil {
		err = fmt.Errorf("FetchMembers returned no snapshot")
	}
	if err != nil {
		span.RecordError(err)
		internal.DecorateLogger(ctx, r.logger.Error().Err(err)).Msg("fetch members error")
		internal.ReportErrorToSentry(ctx, r.roomID, err)
		r.opts.Metrics.fetchFailed()
		r.mu.Lock()
		r.isFetching = false
		r.mu.Unlock()
		return
	}
	internal.SetRequestContextSnapshotInfo(ctx, snapshot.Version, len(snapshot.Members))
	r.opts.Metrics.snapshotFetched(len(snapshot.Members))

	r.mu.Lock()
	if r.destroyed {
		r.isFetching = false
		r.mu.Unlock()
		internal.DecorateLogger(ctx, r.logger.Debug()).Msg("discarding snapshot for destroyed room")
		return
	}
	r.members, r.version = r.mergeSnapshotLocked(snapshot, reason == ReasonInitial)
	r.isFetching = false
	seq, members := r.commitLocked()
	r.mu.Unlock()

	internal.DecorateLogger(ctx, r.logger.Debug()).Msg("applied snapshot")
	r.emit(seq, members)
}

// mergeSnapshotLocked builds the roster from the snapshot, keeping the color and cursor of members
// already known locally. Caller holds r.mu.
func (r *RoomState) mergeSnapshotLocked(snapshot *Snapshot, isInitial bool) (Members, int64) {
	known := make(map[int64]Member, len(r.members))
	for _, m := range r.members {
		known[m.MemberID] = m
	}
	merged := make(Members, 0, len(snapshot.Members)+1)
	seen := make(map[int64]struct{}, len(snapshot.Members))
	for _, rec := range snapshot.Members {
		if _, dupe := seen[rec.MemberID]; dupe {
			continue
		}
		seen[rec.MemberID] = struct{}{}
		m := newMember(rec)
		if prev, ok := known[rec.MemberID]; ok {
			m.Color = prev.Color
			m.Cursor = prev.Cursor
		}
		merged = append(merged, m)
	}
	version := snapshot.Version
	if _, ok := seen[r.self.MemberID]; isInitial && !ok {
		// Our join is not in the snapshot yet, so the room is at least one version ahead of it.
		// Keep ourselves in the roster until the join arrives.
		version = snapshot.Version + 1
		self, ok := known[r.self.MemberID]
		if !ok {
			self = newMember(r.self)
		}
		merged = append(Members{self}, merged...)
	}
	return merged, version
}

// commitLocked marks the current roster as a new revision. Caller holds r.mu.
func (r *RoomState) commitLocked() (uint64, Members) {
	r.seq++
	return r.seq, r.members
}

func (r *RoomState) emit(seq uint64, members Members) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	if seq <= r.delivered {
		// a newer roster has already been delivered
		return
	}
	r.delivered = seq
	for _, l := range r.listenerSnapshot() {
		l.OnMembersUpdate(members)
	}
}

func (r *RoomState) listenerSnapshot() []Listener {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	ids := maps.Keys(r.listeners)
	slices.Sort(ids)
	ls := make([]Listener, 0, len(ids))
	for _, id := range ids {
		ls = append(ls, r.listeners[id])
	}
	return ls
}
