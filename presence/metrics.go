package presence

import (
	"github.com/RaghhavDTurki/realtime-collab-editor/wire"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are shared by every RoomState in the process. A nil *Metrics disables collection.
type Metrics struct {
	reg            prometheus.Registerer
	activeRooms    prometheus.Gauge
	messages       *prometheus.CounterVec
	resyncs        *prometheus.CounterVec
	droppedFetches prometheus.Counter
	fetchFailures  prometheus.Counter
	sendFailures   prometheus.Counter
	snapshotSize   prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reg: reg,
		activeRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "collab",
			Subsystem: "presence",
			Name:      "active_rooms",
			Help:      "Number of room states which have not been destroyed",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collab",
			Subsystem: "presence",
			Name:      "messages_total",
			Help:      "Number of realtime messages processed, by type",
		}, []string{"type"}),
		resyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collab",
			Subsystem: "presence",
			Name:      "resyncs_total",
			Help:      "Number of snapshot fetches started, by reason",
		}, []string{"reason"}),
		droppedFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "collab",
			Subsystem: "presence",
			Name:      "dropped_fetches_total",
			Help:      "Number of snapshot fetch requests dropped because one was in flight",
		}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "collab",
			Subsystem: "presence",
			Name:      "fetch_failures_total",
			Help:      "Number of snapshot fetches which failed",
		}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "collab",
			Subsystem: "presence",
			Name:      "send_failures_total",
			Help:      "Number of cursor updates the transport failed to send",
		}),
		snapshotSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "collab",
			Subsystem: "presence",
			Name:      "snapshot_size",
			Help:      "Number of members in fetched snapshots",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),
	}
	reg.MustRegister(
		m.activeRooms, m.messages, m.resyncs, m.droppedFetches, m.fetchFailures, m.sendFailures, m.snapshotSize,
	)
	return m
}

// Unregister removes every collector from the registerer passed to NewMetrics.
func (m *Metrics) Unregister() {
	m.reg.Unregister(m.activeRooms)
	m.reg.Unregister(m.messages)
	m.reg.Unregister(m.resyncs)
	m.reg.Unregister(m.droppedFetches)
	m.reg.Unregister(m.fetchFailures)
	m.reg.Unregister(m.sendFailures)
	m.reg.Unregister(m.snapshotSize)
}

func (m *Metrics) roomCreated() {
	if m == nil {
		return
	}
	m.activeRooms.Inc()
}

func (m *Metrics) roomDestroyed() {
	if m == nil {
		return
	}
	m.activeRooms.Dec()
}

func (m *Metrics) message(t wire.MessageType) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) resync(reason string) {
	if m == nil {
		return
	}
	m.resyncs.WithLabelValues(reason).Inc()
}

func (m *Metrics) fetchDropped() {
	if m == nil {
		return
	}
	m.droppedFetches.Inc()
}

func (m *Metrics) fetchFailed() {
	if m == nil {
		return
	}
	m.fetchFailures.Inc()
}

func (m *Metrics) sendFailed() {
	if m == nil {
		return
	}
	m.sendFailures.Inc()
}

func (m *Metrics) snapshotFetched(size int) {
	if m == nil {
		return
	}
	m.snapshotSize.Observe(float64(size))
}
