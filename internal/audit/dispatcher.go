package audit

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Config controls how a Dispatcher queues events.
type Config struct {
	Enabled bool
	// BufferSize is the queue capacity. Values below one become one.
	BufferSize int
	// DropIfFull discards events while the queue is full instead of waiting.
	DropIfFull bool
	// OnDrop, when set, is called with every discarded event.
	OnDrop func(Event)
	// Logger receives sink panics. Nil discards them.
	Logger *zerolog.Logger
}

// Dispatcher relays events to a Sink from a single goroutine, so a slow sink
// never runs on the caller's request path.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool
	onDrop     func(Event)
	log        zerolog.Logger

	mu      sync.RWMutex
	closed  bool
	queue   chan Event
	stopped chan struct{}
	dropped atomic.Uint64
}

// NewDispatcher starts the relay. It returns nil when cfg is disabled; every
// method is a no-op on a nil Dispatcher.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		onDrop:     cfg.OnDrop,
		log:        zerolog.Nop(),
		queue:      make(chan Event, max(cfg.BufferSize, 1)),
		stopped:    make(chan struct{}),
	}
	if cfg.Logger != nil {
		d.log = cfg.Logger.With().Str("component", "audit").Logger()
	}
	go d.relay()
	return d
}

func (d *Dispatcher) relay() {
	defer close(d.stopped)
	for event := range d.queue {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Str("event", event.EventType).Msg("audit sink panicked")
		}
	}()
	d.sink.Emit(context.Background(), event)
}

// Emit queues event. In drop mode a full queue discards it; otherwise Emit
// waits for room or for ctx to end. Events emitted after Close are ignored.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if !d.dropIfFull {
		select {
		case d.queue <- event:
		case <-ctx.Done():
		}
		return
	}
	select {
	case d.queue <- event:
	default:
		d.dropped.Add(1)
		if d.onDrop != nil {
			d.onDrop(event)
		}
	}
}

// Close stops accepting events and returns once every queued event has
// reached the sink. It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.stopped
}

// Dropped reports how many events drop mode has discarded.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
