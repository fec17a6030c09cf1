package pubsub

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

// ErrClosed is returned when notifying a channel which has been closed or unlistened.
var ErrClosed = errors.New("pubsub: channel closed")

// How long Notify waits for a full channel to drain before giving up.
const notifyTimeout = 5 * time.Second

// Every payload needs a type to distinguish what kind of update it is.
type Payload interface {
	Type() string
}

// Listener represents the common functions required by all subscription listeners
type Listener interface {
	// Begin listening on this channel with this callback. Blocks until Unlisten(chanName) or Close() is called.
	Listen(chanName string, fn func(p Payload)) error
	// Unlisten makes Listen(chanName) return once queued payloads are handled. The name cannot be reused.
	Unlisten(chanName string) error
	// Close the listener. No more callbacks should fire.
	Close() error
}

// Notifier represents the common functions required by all notifiers
type Notifier interface {
	// Notify chanName that there is a new payload p. Return an error if we failed to send the notification.
	Notify(chanName string, p Payload) error
	// Close is called when we should stop listening.
	Close() error
}

// PubSub is an in-process Listener and Notifier. Each channel has a single consumer.
// A channel name which has been unlistened stays closed: later Notify and Listen calls on it
// return ErrClosed.
type PubSub struct {
	chans      map[string]*channel
	unlistened map[string]struct{}
	mu         *sync.Mutex
	closed     bool
	bufferSize int
}

type channel struct {
	ch chan Payload
	// closed by Unlisten or Close. ch itself is never closed, so a Notify racing Unlisten cannot panic.
	done chan struct{}
}

func NewPubSub(bufferSize int) *PubSub {
	return &PubSub{
		chans:      make(map[string]*channel),
		unlistened: make(map[string]struct{}),
		mu:         &sync.Mutex{},
		bufferSize: bufferSize,
	}
}

// channelFor returns the channel, creating it on first use.
func (ps *PubSub) channelFor(chanName string) (*channel, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return nil, ErrClosed
	}
	if _, gone := ps.unlistened[chanName]; gone {
		return nil, ErrClosed
	}
	c := ps.chans[chanName]
	if c == nil {
		c = &channel{
			ch:   make(chan Payload, ps.bufferSize),
			done: make(chan struct{}),
		}
		ps.chans[chanName] = c
	}
	return c, nil
}

// Notify queues p on the channel. No lock is held while waiting for room in the buffer, so a
// full channel only ever blocks its own notifiers.
func (ps *PubSub) Notify(chanName string, p Payload) error {
	c, err := ps.channelFor(chanName)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	timer := time.NewTimer(notifyTimeout)
	defer timer.Stop()
	select {
	case c.ch <- p:
		return nil
	case <-c.done:
		return ErrClosed
	case <-timer.C:
		return fmt.Errorf("notify %s with payload %v timed out", chanName, p.Type())
	}
}

func (ps *PubSub) Listen(chanName string, fn func(p Payload)) error {
	c, err := ps.channelFor(chanName)
	if err != nil {
		return err
	}
	for {
		select {
		case payload := <-c.ch:
			fn(payload)
		case <-c.done:
			// handle whatever was queued before Unlisten
			for {
				select {
				case payload := <-c.ch:
					fn(payload)
				default:
					return nil
				}
			}
		}
	}
}

// Unlisten closes the channel for good, even if nobody has listened on it yet.
func (ps *PubSub) Unlisten(chanName string) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.unlistened[chanName] = struct{}{}
	c := ps.chans[chanName]
	if c == nil {
		return nil
	}
	delete(ps.chans, chanName)
	close(c.done)
	return nil
}

func (ps *PubSub) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return nil
	}
	ps.closed = true
	for name, c := range ps.chans {
		close(c.done)
		delete(ps.chans, name)
	}
	return nil
}

// Wrapper around a Notifier which adds Prometheus metrics
type PromNotifier struct {
	Notifier
	msgCounter *prometheus.CounterVec
}

func (p *PromNotifier) Notify(chanName string, payload Payload) error {
	p.msgCounter.WithLabelValues(payload.Type()).Inc()
	return p.Notifier.Notify(chanName, payload)
}

func (p *PromNotifier) Close() error {
	prometheus.Unregister(p.msgCounter)
	return p.Notifier.Close()
}

// Wrap a notifier for prometheus metrics
func NewPromNotifier(n Notifier, subsystem string) *PromNotifier {
	p := &PromNotifier{
		Notifier: n,
		msgCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collab",
			Subsystem: subsystem,
			Name:      "num_payloads",
			Help:      "Number of payloads published",
		}, []string{"payload_type"}),
	}
	prometheus.MustRegister(p.msgCounter)
	return p
}
