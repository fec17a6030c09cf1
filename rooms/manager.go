// Package rooms tracks the room states a client has open and destroys the ones left idle.
package rooms

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/RaghhavDTurki/realtime-collab-editor/presence"
	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

// Factory creates the room state for a room id.
type Factory func(roomID string) *presence.RoomState

// Manager stores a collection of RoomStates keyed by room id. A room not accessed for the TTL is
// destroyed, as is any room removed from the manager.
type Manager struct {
	cache   *ttlcache.Cache[string, *presence.RoomState]
	factory Factory
	mu      *sync.Mutex
}

// NewManager returns a started manager. A zero ttl keeps rooms until they are removed.
func NewManager(ttl time.Duration, factory Factory) *Manager {
	m := &Manager{
		cache: ttlcache.New[string, *presence.RoomState](
			ttlcache.WithTTL[string, *presence.RoomState](ttl),
		),
		factory: factory,
		mu:      &sync.Mutex{},
	}
	m.cache.OnEviction(m.destroyRoom)
	go m.cache.Start()
	return m
}

// Get returns the room state for this room and extends its lifetime. Returns nil if there is none.
func (m *Manager) Get(roomID string) *presence.RoomState {
	item := m.cache.Get(roomID)
	if item == nil {
		return nil
	}
	return item.Value()
}

// Atomically gets or creates the room state for this room. Returns true if it was created.
func (m *Manager) GetOrCreate(roomID string) (*presence.RoomState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rs := m.Get(roomID); rs != nil {
		return rs, false
	}
	rs := m.factory(roomID)
	m.cache.Set(roomID, rs, ttlcache.DefaultTTL)
	return rs, true
}

// Remove destroys the room state for this room, if any.
func (m *Manager) Remove(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Delete(roomID)
}

func (m *Manager) Len() int {
	return m.cache.Len()
}

// RoomIDs returns the ids of every room currently held.
func (m *Manager) RoomIDs() []string {
	return m.cache.Keys()
}

// Close destroys every room and stops expiry. The manager must not be used afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.DeleteAll()
	m.cache.Stop()
}

func (m *Manager) destroyRoom(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *presence.RoomState]) {
	logger.Info().Str("room", item.Key()).Str("reason", evictionReasonString(reason)).Msg("destroying room state")
	item.Value().Destroy()
}

func evictionReasonString(reason ttlcache.EvictionReason) string {
	switch reason {
	case ttlcache.EvictionReasonDeleted:
		return "removed"
	case ttlcache.EvictionReasonExpired:
		return "expired"
	case ttlcache.EvictionReasonCapacityReached:
		return "capacity"
	default:
		return "unknown"
	}
}
