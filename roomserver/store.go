package roomserver

import (
	"context"
	"fmt"
	"sync"

	"github.com/RaghhavDTurki/realtime-collab-editor/internal"
	"github.com/RaghhavDTurki/realtime-collab-editor/wire"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Store is the authoritative record of room membership. Every membership change bumps the room
// version by exactly one, atomically with the change.
type Store interface {
	// Join adds a member to the room, creating the room if needed, and assigns its member id.
	Join(ctx context.Context, roomID, userID, name string) (rec wire.MemberRecord, version int64, err error)
	// Leave removes a member. If the member was not in the room nothing changes and removed is false.
	Leave(ctx context.Context, roomID string, memberID int64) (version int64, removed bool, err error)
	// Snapshot returns internal.ErrRoomNotFound for rooms which were never joined.
	Snapshot(ctx context.Context, roomID string) (version int64, members []wire.MemberRecord, err error)
	RoomIDs(ctx context.Context) ([]string, error)
}

type memoryRoom struct {
	version      int64
	lastMemberID int64
	members      []wire.MemberRecord
}

// MemoryStore is a Store which keeps everything in process memory.
type MemoryStore struct {
	mu    *sync.Mutex
	rooms map[string]*memoryRoom
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mu:    &sync.Mutex{},
		rooms: make(map[string]*memoryRoom),
	}
}

func (s *MemoryStore) Join(ctx context.Context, roomID, userID, name string) (wire.MemberRecord, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := s.rooms[roomID]
	if room == nil {
		room = &memoryRoom{}
		s.rooms[roomID] = room
	}
	room.lastMemberID++
	rec := wire.MemberRecord{
		MemberID: room.lastMemberID,
		UserID:   userID,
		Name:     name,
	}
	room.members = append(room.members, rec)
	room.version++
	return rec, room.version, nil
}

func (s *MemoryStore) Leave(ctx context.Context, roomID string, memberID int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := s.rooms[roomID]
	if room == nil {
		return 0, false, fmt.Errorf("Leave: %s: %w", roomID, internal.ErrRoomNotFound)
	}
	i := slices.IndexFunc(room.members, func(m wire.MemberRecord) bool {
		return m.MemberID == memberID
	})
	if i < 0 {
		return room.version, false, nil
	}
	room.members = slices.Delete(slices.Clone(room.members), i, i+1)
	room.version++
	return room.version, true, nil
}

func (s *MemoryStore) Snapshot(ctx context.Context, roomID string) (int64, []wire.MemberRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := s.rooms[roomID]
	if room == nil {
		return 0, nil, fmt.Errorf("Snapshot: %s: %w", roomID, internal.ErrRoomNotFound)
	}
	return room.version, slices.Clone(room.members), nil
}

func (s *MemoryStore) RoomIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := maps.Keys(s.rooms)
	slices.Sort(ids)
	return ids, nil
}
