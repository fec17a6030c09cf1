// Package roomserver is the authoritative side of room presence: it owns member ids and the room
// version, and broadcasts membership changes, cursor moves and heartbeats to every member.
package roomserver

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RaghhavDTurki/realtime-collab-editor/internal"
	"github.com/RaghhavDTurki/realtime-collab-editor/pubsub"
	"github.com/RaghhavDTurki/realtime-collab-editor/wire"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

// the sender id of frames the server originates
const serverSender = -1

type Opts struct {
	// Fraction of per-member deliveries to drop, in [0,1). Used to simulate a lossy network.
	DropRate float64
	// Seed for the drop decision. Zero uses the current time.
	Seed int64
	// Number of rooms heartbeated concurrently. Defaults to 4.
	HeartbeatWorkers int
}

type Stats struct {
	Delivered uint64
	Dropped   uint64
}

type Server struct {
	store    Store
	notifier pubsub.Notifier
	listener pubsub.Listener
	codec    wire.Codec
	opts     Opts
	pool     *internal.WorkerPool

	mu *sync.Mutex
	// room id -> member ids which get deliveries
	subscribers map[string]map[int64]struct{}
	// room id -> lock serialising version changes and deliveries for the room
	roomLocks map[string]*sync.Mutex
	// rooms whose upstream channel is being consumed
	listening map[string]bool
	closed    bool

	rngMu *sync.Mutex
	rng   *rand.Rand

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func NewServer(store Store, notifier pubsub.Notifier, listener pubsub.Listener, codec wire.Codec, opts Opts) *Server {
	if opts.HeartbeatWorkers <= 0 {
		opts.HeartbeatWorkers = 4
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Server{
		store:       store,
		notifier:    notifier,
		listener:    listener,
		codec:       codec,
		opts:        opts,
		pool:        internal.NewWorkerPool(opts.HeartbeatWorkers),
		mu:          &sync.Mutex{},
		subscribers: make(map[string]map[int64]struct{}),
		roomLocks:   make(map[string]*sync.Mutex),
		listening:   make(map[string]bool),
		rngMu:       &sync.Mutex{},
		rng:         rand.New(rand.NewSource(seed)),
	}
	s.pool.Start()
	return s
}

func (s *Server) Codec() wire.Codec {
	return s.codec
}

func (s *Server) Stats() Stats {
	return Stats{
		Delivered: s.delivered.Load(),
		Dropped:   s.dropped.Load(),
	}
}

// Join adds a new member to the room and tells everyone, including the new member.
func (s *Server) Join(ctx context.Context, roomID, name string) (wire.MemberRecord, error) {
	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()
	rec, version, err := s.store.Join(ctx, roomID, uuid.NewString(), name)
	if err != nil {
		return wire.MemberRecord{}, fmt.Errorf("Join: %w", err)
	}
	s.subscribe(roomID, rec.MemberID)
	s.broadcastLocked(roomID, []wire.Message{
		&wire.RoomChange{
			Changes:     []wire.Change{{Type: wire.ChangeJoin, User: rec}},
			RoomVersion: version,
		},
	})
	logger.Info().Str("room", roomID).Int64("m", rec.MemberID).Int64("v", version).Msg("member joined")
	return rec, nil
}

// Leave removes the member and tells everyone who is left. The leaving member gets no more deliveries.
func (s *Server) Leave(ctx context.Context, roomID string, memberID int64) error {
	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()
	s.unsubscribe(roomID, memberID)
	version, removed, err := s.store.Leave(ctx, roomID, memberID)
	if err != nil {
		return fmt.Errorf("Leave: %w", err)
	}
	if !removed {
		return nil
	}
	s.broadcastLocked(roomID, []wire.Message{
		&wire.RoomChange{
			Changes: []wire.Change{{
				Type: wire.ChangeLeave,
				User: wire.MemberRecord{MemberID: memberID},
			}},
			RoomVersion: version,
		},
	})
	logger.Info().Str("room", roomID).Int64("m", memberID).Int64("v", version).Msg("member left")
	return nil
}

// Snapshot is the authoritative roster of the room.
func (s *Server) Snapshot(ctx context.Context, roomID string) (int64, []wire.MemberRecord, error) {
	return s.store.Snapshot(ctx, roomID)
}

// Heartbeat sends every room's current version to its members and waits until all are sent.
func (s *Server) Heartbeat(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("Heartbeat: server is closed")
	}
	ctx, task := internal.StartTask(ctx, "roomserver.heartbeat")
	defer task.End()
	roomIDs, err := s.store.RoomIDs(ctx)
	if err != nil {
		return fmt.Errorf("Heartbeat: %w", err)
	}
	internal.Logf(ctx, "heartbeat", "%d rooms", len(roomIDs))
	var wg sync.WaitGroup
	wg.Add(len(roomIDs))
	for _, roomID := range roomIDs {
		roomID := roomID
		queued := s.pool.Queue(func() {
			defer wg.Done()
			lock := s.roomLock(roomID)
			lock.Lock()
			defer lock.Unlock()
			version, _, err := s.store.Snapshot(ctx, roomID)
			if err != nil {
				logger.Err(err).Str("room", roomID).Msg("heartbeat: failed to load room")
				return
			}
			s.broadcastLocked(roomID, []wire.Message{&wire.Heartbeat{RoomVersion: version}})
		})
		if !queued {
			// closed while heartbeating
			wg.Done()
		}
	}
	wg.Wait()
	return nil
}

// RunHeartbeats calls Heartbeat every interval until ctx is done.
func (s *Server) RunHeartbeats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Heartbeat(ctx); err != nil {
				logger.Err(err).Msg("heartbeat failed")
			}
		}
	}
}

// Close stops consuming client frames and heartbeating.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	roomIDs := maps.Keys(s.listening)
	s.mu.Unlock()
	for _, roomID := range roomIDs {
		s.listener.Unlisten(pubsub.UpstreamChannel(roomID))
	}
	s.pool.Stop()
}

func (s *Server) roomLock(roomID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock := s.roomLocks[roomID]
	if lock == nil {
		lock = &sync.Mutex{}
		s.roomLocks[roomID] = lock
	}
	return lock
}

func (s *Server) subscribe(roomID string, memberID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subscribers[roomID]
	if subs == nil {
		subs = make(map[int64]struct{})
		s.subscribers[roomID] = subs
	}
	subs[memberID] = struct{}{}
	if !s.listening[roomID] && !s.closed {
		s.listening[roomID] = true
		go s.listenUpstream(roomID)
	}
}

func (s *Server) unsubscribe(roomID string, memberID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers[roomID], memberID)
}

func (s *Server) isSubscribed(roomID string, memberID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subscribers[roomID][memberID]
	return ok
}

func (s *Server) subscriberIDs(roomID string) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := maps.Keys(s.subscribers[roomID])
	slices.Sort(ids)
	return ids
}

func (s *Server) shouldDrop() bool {
	if s.opts.DropRate <= 0 {
		return false
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64() < s.opts.DropRate
}

// broadcastLocked delivers msgs to every member of the room in member id order. Caller holds the
// room lock, so deliveries for a room reach each member in version order.
func (s *Server) broadcastLocked(roomID string, msgs []wire.Message) {
	data, err := s.codec.Encode(msgs)
	if err != nil {
		logger.Err(err).Str("room", roomID).Msg("failed to encode broadcast")
		return
	}
	for _, memberID := range s.subscriberIDs(roomID) {
		if s.shouldDrop() {
			s.dropped.Add(1)
			continue
		}
		err := s.notifier.Notify(pubsub.ClientChannel(roomID, memberID), &pubsub.RoomFrame{
			RoomID: roomID,
			Sender: serverSender,
			Data:   data,
		})
		if errors.Is(err, pubsub.ErrClosed) {
			// the member's client stopped listening without leaving
			logger.Debug().Str("room", roomID).Int64("m", memberID).Msg("inbox closed, frame not delivered")
			continue
		}
		if err != nil {
			logger.Warn().Err(err).Str("room", roomID).Int64("m", memberID).Msg("failed to deliver frame")
			continue
		}
		s.delivered.Add(1)
	}
}

// listenUpstream consumes frames clients send to the room until Close.
func (s *Server) listenUpstream(roomID string) {
	err := s.listener.Listen(pubsub.UpstreamChannel(roomID), func(p pubsub.Payload) {
		frame, ok := p.(*pubsub.RoomFrame)
		if !ok {
			logger.Warn().Str("room", roomID).Str("type", p.Type()).Msg("unexpected upstream payload")
			return
		}
		s.handleUpstream(roomID, frame)
	})
	if err != nil && !errors.Is(err, pubsub.ErrClosed) {
		logger.Err(err).Str("room", roomID).Msg("upstream listener failed")
	}
}

func (s *Server) handleUpstream(roomID string, frame *pubsub.RoomFrame) {
	msgs, err := s.codec.Decode(frame.Data)
	if err != nil {
		logger.Warn().Err(err).Str("room", roomID).Int64("sender", frame.Sender).Msg("dropping undecodable frame")
		return
	}
	var relay []wire.Message
	for _, msg := range msgs {
		cc, ok := msg.(*wire.CursorChange)
		if !ok {
			logger.Warn().Str("room", roomID).Str("type", string(msg.Type())).Msg("clients may only send cursor changes")
			continue
		}
		if cc.MemberID != frame.Sender || !s.isSubscribed(roomID, cc.MemberID) {
			logger.Warn().Str("room", roomID).Int64("sender", frame.Sender).Int64("m", cc.MemberID).Msg("ignoring cursor for another member")
			continue
		}
		relay = append(relay, cc)
	}
	if len(relay) == 0 {
		return
	}
	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()
	// echoed to the sender too: clients only learn their own cursor from the server
	s.broadcastLocked(roomID, relay)
}
