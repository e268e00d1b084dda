package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

const (
	defaultSubscriberBufferSize = 32
	defaultBroadcastBufferSize  = 128
)

// Subscription is one live consumer of a Hub. It never sees values published
// before it was registered.
type Subscription[T any] struct {
	values chan T
	done   chan struct{}
	accept func(T) bool
	// after is the hub sequence at subscribe time; older values are skipped.
	after uint64
}

// Values returns the channel of delivered values. It is closed on unsubscribe.
func (s *Subscription[T]) Values() <-chan T {
	return s.values
}

// Done is closed when the subscription ends.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Hub fans values out to subscribers from a single goroutine. Each subscriber
// has its own buffer; a full buffer drops the value for that subscriber only.
type Hub[T any] struct {
	register   chan *Subscription[T]
	unregister chan *Subscription[T]
	broadcast  chan sequenced[T]
	seq        atomic.Uint64
	stop       chan struct{}
	stopped    chan struct{}
	stopOnce   sync.Once

	name                 string
	subscriberBufferSize int
	logger               *slog.Logger
}

type sequenced[T any] struct {
	seq uint64
	v   T
}

type HubOption func(*hubOptions)

type hubOptions struct {
	bufferSize int
	logger     *slog.Logger
	name       string
}

// WithHubSubscriberBufferSize sets the buffer size for subscriber channels.
func WithHubSubscriberBufferSize(size int) HubOption {
	return func(o *hubOptions) {
		if size > 0 {
			o.bufferSize = size
		}
	}
}

// WithHubLogger sets the logger for the Hub.
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(o *hubOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHubName labels the hub in log lines.
func WithHubName(name string) HubOption {
	return func(o *hubOptions) { o.name = name }
}

// NewHub creates a hub. Call Run in a goroutine to start it.
func NewHub[T any](opts ...HubOption) *Hub[T] {
	o := hubOptions{bufferSize: defaultSubscriberBufferSize, logger: slog.Default(), name: "hub"}
	for _, opt := range opts {
		opt(&o)
	}
	return &Hub[T]{
		register:             make(chan *Subscription[T]),
		unregister:           make(chan *Subscription[T]),
		broadcast:            make(chan sequenced[T], defaultBroadcastBufferSize),
		stop:                 make(chan struct{}),
		stopped:              make(chan struct{}),
		name:                 o.name,
		subscriberBufferSize: o.bufferSize,
		logger:               o.logger,
	}
}

// Run is the hub's event loop. It blocks until Stop is called.
func (h *Hub[T]) Run() {
	subs := make(map[*Subscription[T]]struct{})
	defer close(h.stopped)

	for {
		select {
		case sub := <-h.register:
			subs[sub] = struct{}{}
			h.logger.Debug("subscriber registered", "hub", h.name, "count", len(subs))

		case sub := <-h.unregister:
			if _, ok := subs[sub]; ok {
				delete(subs, sub)
				close(sub.done)
				close(sub.values)
				h.logger.Debug("subscriber unregistered", "hub", h.name, "count", len(subs))
			}

		case m := <-h.broadcast:
			for sub := range subs {
				if m.seq <= sub.after {
					continue
				}
				if sub.accept != nil && !sub.accept(m.v) {
					continue
				}
				select {
				case sub.values <- m.v:
				default:
					h.logger.Warn("subscriber channel full, value dropped", "hub", h.name)
				}
			}

		case <-h.stop:
			for sub := range subs {
				close(sub.done)
				close(sub.values)
			}
			return
		}
	}
}

// Stop ends the event loop and closes every subscription. Safe to call twice.
func (h *Hub[T]) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
	<-h.stopped
}

// Subscribe registers a subscriber receiving the values accept lets through.
// A nil accept receives everything. Callers must Unsubscribe.
func (h *Hub[T]) Subscribe(accept func(T) bool) *Subscription[T] {
	sub := &Subscription[T]{
		values: make(chan T, h.subscriberBufferSize),
		done:   make(chan struct{}),
		accept: accept,
		after:  h.seq.Load(),
	}
	select {
	case h.register <- sub:
	case <-h.stopped:
		close(sub.done)
		close(sub.values)
	}
	return sub
}

func (h *Hub[T]) Unsubscribe(sub *Subscription[T]) {
	if sub == nil {
		return
	}
	select {
	case h.unregister <- sub:
	case <-h.stopped:
	}
}

// Publish queues v for fan-out. It waits only for room in the shared queue,
// never for subscribers.
func (h *Hub[T]) Publish(v T) {
	m := sequenced[T]{seq: h.seq.Add(1), v: v}
	select {
	case h.broadcast <- m:
	case <-h.stopped:
	}
}
