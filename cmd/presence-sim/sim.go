package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/RaghhavDTurki/realtime-collab-editor/internal"
	"github.com/RaghhavDTurki/realtime-collab-editor/presence"
	"github.com/RaghhavDTurki/realtime-collab-editor/pubsub"
	"github.com/RaghhavDTurki/realtime-collab-editor/roomapi"
	"github.com/RaghhavDTurki/realtime-collab-editor/roomserver"
	"github.com/RaghhavDTurki/realtime-collab-editor/rooms"
	"github.com/RaghhavDTurki/realtime-collab-editor/wire"
	"golang.org/x/exp/slices"
)

// Simulation drives a set of clients against a room server and checks they converge.
type Simulation struct {
	cfg      *Config
	server   *roomserver.Server
	notifier pubsub.Notifier
	listener pubsub.Listener
	codec    wire.Codec
	metrics  *presence.Metrics
	api      *roomapi.Client
}

func NewSimulation(cfg *Config, server *roomserver.Server, n pubsub.Notifier, l pubsub.Listener, codec wire.Codec, metrics *presence.Metrics) *Simulation {
	return &Simulation{
		cfg:      cfg,
		server:   server,
		notifier: n,
		listener: l,
		codec:    codec,
		metrics:  metrics,
		api:      roomapi.NewClient(cfg.BaseURL(), cfg.FetchTimeout),
	}
}

// simClient is one user with one open room state per room it is in.
type simClient struct {
	name    string
	rng     *rand.Rand
	manager *rooms.Manager
	// the record to open the next room state with
	joining wire.MemberRecord
	roomIDs []string
	updates int
	mu      *sync.Mutex
}

// Run returns true if every client's roster matched the server once the clients stopped.
func (s *Simulation) Run(ctx context.Context) bool {
	if err := s.waitForServer(ctx); err != nil {
		logger.Err(err).Msg("server did not come up")
		return false
	}
	seed := s.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	roomIDs := make([]string, s.cfg.Rooms)
	for i := range roomIDs {
		roomIDs[i] = fmt.Sprintf("room-%d", i)
	}

	var clients []*simClient
	for i := 0; i < s.cfg.Rooms*s.cfg.ClientsPerRoom; i++ {
		c := &simClient{
			name: fmt.Sprintf("client-%d", i),
			rng:  rand.New(rand.NewSource(seed + int64(i))),
			mu:   &sync.Mutex{},
		}
		c.manager = rooms.NewManager(s.cfg.IdleTTL, s.roomFactory(c))
		// every client sits in its home room and sometimes one more
		c.roomIDs = []string{roomIDs[i%len(roomIDs)]}
		if extra := roomIDs[c.rng.Intn(len(roomIDs))]; !slices.Contains(c.roomIDs, extra) {
			c.roomIDs = append(c.roomIDs, extra)
		}
		for _, roomID := range c.roomIDs {
			if err := s.join(ctx, c, roomID); err != nil {
				logger.Err(err).Str("client", c.name).Str("room", roomID).Msg("initial join failed")
			}
		}
		clients = append(clients, c)
	}
	defer func() {
		for _, c := range clients {
			c.manager.Close()
		}
	}()
	logger.Info().Int("clients", len(clients)).Int("rooms", len(roomIDs)).Str("codec", s.codec.Name()).Msg("simulation started")

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Duration)
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(len(clients))
	for _, c := range clients {
		go func(c *simClient) {
			defer wg.Done()
			defer internal.ReportPanicsToSentry()
			s.runClient(runCtx, c)
		}(c)
	}
	wg.Wait()
	converged := s.waitForConvergence(ctx, clients)
	updates := 0
	for _, c := range clients {
		c.mu.Lock()
		updates += c.updates
		c.mu.Unlock()
	}
	logger.Info().Int("roster_updates", updates).Msg("clients stopped")
	return converged
}

func (s *Simulation) roomFactory(c *simClient) rooms.Factory {
	return func(roomID string) *presence.RoomState {
		rec := c.joining
		transport := pubsub.NewRoomTransport(s.notifier, s.listener, s.codec, roomID, rec.MemberID)
		return presence.NewRoomState(roomID, rec, transport, s.api, presence.Opts{
			Metrics:      s.metrics,
			FetchTimeout: s.cfg.FetchTimeout,
			Listeners: []presence.Listener{presence.ListenerFunc(func(members presence.Members) {
				c.mu.Lock()
				c.updates++
				c.mu.Unlock()
				logger.Debug().Str("client", c.name).Str("room", roomID).Ints64("members", members.IDs()).Msg("roster updated")
			})},
		})
	}
}

func (s *Simulation) join(ctx context.Context, c *simClient, roomID string) error {
	rec, err := s.api.Join(ctx, roomID, c.name)
	if err != nil {
		return err
	}
	c.joining = rec
	if _, created := c.manager.GetOrCreate(roomID); !created {
		logger.Warn().Str("client", c.name).Str("room", roomID).Int64("m", rec.MemberID).Msg("already had a room state, new member is unused")
	}
	return nil
}

func (s *Simulation) leave(ctx context.Context, c *simClient, roomID string) error {
	rs := c.manager.Get(roomID)
	if rs == nil {
		return nil
	}
	err := s.api.Leave(ctx, roomID, rs.Self().MemberID)
	c.manager.Remove(roomID)
	return err
}

func (s *Simulation) runClient(ctx context.Context, c *simClient) {
	for {
		jitter := time.Duration(c.rng.Int63n(int64(s.cfg.MoveInterval)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.MoveInterval/2 + jitter):
		}
		roomID := c.roomIDs[c.rng.Intn(len(c.roomIDs))]
		if c.rng.Float64() < s.cfg.LeaveChance {
			if err := s.leave(ctx, c, roomID); err != nil {
				logger.Warn().Err(err).Str("client", c.name).Str("room", roomID).Msg("leave failed")
			}
			if err := s.join(ctx, c, roomID); err != nil {
				logger.Warn().Err(err).Str("client", c.name).Str("room", roomID).Msg("rejoin failed")
			}
			continue
		}
		rs := c.manager.Get(roomID)
		if rs == nil {
			if err := s.join(ctx, c, roomID); err != nil {
				logger.Warn().Err(err).Str("client", c.name).Str("room", roomID).Msg("join failed")
			}
			continue
		}
		rs.SendMemberCursor(wire.Cursor{RangeStart: c.rng.Intn(1000)})
	}
}

// waitForConvergence polls until every open room state matches the server's snapshot.
func (s *Simulation) waitForConvergence(ctx context.Context, clients []*simClient) bool {
	deadline := time.Now().Add(s.cfg.ConvergeTimeout)
	for {
		lagging := s.lagging(ctx, clients)
		if len(lagging) == 0 {
			logger.Info().Msg("all clients converged")
			return true
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			for _, msg := range lagging {
				logger.Error().Msg(msg)
			}
			return false
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func (s *Simulation) lagging(ctx context.Context, clients []*simClient) []string {
	var lagging []string
	for _, c := range clients {
		for _, roomID := range c.manager.RoomIDs() {
			rs := c.manager.Get(roomID)
			if rs == nil {
				continue
			}
			version, records, err := s.server.Snapshot(ctx, roomID)
			if err != nil {
				lagging = append(lagging, fmt.Sprintf("%s %s: %s", c.name, roomID, err))
				continue
			}
			want := make([]int64, len(records))
			for i := range records {
				want[i] = records[i].MemberID
			}
			got := rs.Members().IDs()
			slices.Sort(want)
			slices.Sort(got)
			if rs.Version() != version || !slices.Equal(got, want) {
				lagging = append(lagging, fmt.Sprintf("%s %s: at v%d %v, server at v%d %v", c.name, roomID, rs.Version(), got, version, want))
			}
		}
	}
	return lagging
}

func (s *Simulation) waitForServer(ctx context.Context) error {
	url := s.cfg.BaseURL() + "/healthz"
	deadline := time.Now().Add(5 * time.Second)
	for {
		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return err
		}
		res, err := s.api.Client.Do(req)
		if err == nil {
			res.Body.Close()
			if res.StatusCode == 200 {
				return nil
			}
			err = fmt.Errorf("%s returned %s", url, res.Status)
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(50 * time.Millisecond)
	}
}
