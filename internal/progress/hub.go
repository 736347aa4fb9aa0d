package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

const defaultBufferSize = 1024

// Sink consumes individual progress events on the hub goroutine. Observe is
// never called concurrently; Close is called exactly once during shutdown.
type Sink interface {
	Observe(evt Event)
	Close() error
}

// Emitter publishes individual events; Hub satisfies this interface so
// workers stay agnostic about buffering.
type Emitter interface {
	Emit(evt Event)
}

// Hub funnels events from many workers onto a single goroutine and hands them
// to the registered sinks in arrival order. Emit never blocks; when the buffer
// is full the event is dropped and counted.
type Hub struct {
	events  chan Event
	doneCh  chan struct{}
	sinks   []Sink
	logger  *zap.Logger
	dropped atomic.Int64
	closed  atomic.Bool

	closeOnce sync.Once
}

// NewHub starts the background goroutine and returns a ready Hub.
func NewHub(logger *zap.Logger, sinks ...Sink) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		events: make(chan Event, defaultBufferSize),
		doneCh: make(chan struct{}),
		sinks:  append([]Sink(nil), sinks...),
		logger: logger,
	}
	go h.run()
	return h
}

// Emit enqueues an Event. It never blocks; invalid events are discarded and a
// full buffer drops the event.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
	default:
		h.dropped.Add(1)
	}
}

// Close drains remaining events, closes sinks, and blocks until the
// background goroutine exits or ctx expires.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		close(h.events)
	})
	select {
	case <-h.doneCh:
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
	if n := h.dropped.Load(); n > 0 {
		h.logger.Warn("progress events dropped due to backpressure", zap.Int64("dropped", n))
	}
	return nil
}

func (h *Hub) run() {
	defer close(h.doneCh)
	for evt := range h.events {
		for _, sink := range h.sinks {
			sink.Observe(evt)
		}
	}
	for _, sink := range h.sinks {
		if err := sink.Close(); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}
