// Package events fans coordinator state changes out to presentation.
package events

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ShayCichocki/nexus/pkg/models"
)

// DefaultBufferSize is the channel capacity used by the coordinator.
const DefaultBufferSize = 256

// Emitter delivers events on a buffered channel without ever blocking the sender.
// Events are hints to re-read state, so a slow reader loses events, never state.
type Emitter struct {
	events       chan models.Event
	droppedCount atomic.Uint64
	logger       *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewEmitter creates an Emitter with the given buffer size.
func NewEmitter(bufferSize int, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{
		events: make(chan models.Event, bufferSize),
		logger: logger,
	}
}

// Emit sends an event, dropping it if the buffer is full.
// Safe to call on a nil or closed Emitter.
func (e *Emitter) Emit(event models.Event) {
	if e == nil {
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}

	select {
	case e.events <- event:
	default:
		count := e.droppedCount.Add(1)
		if count%10 == 1 { // every 10th drop
			e.logger.Warn("event buffer full, dropping event",
				zap.Uint64("dropped_total", count),
				zap.String("type", string(event.Type)))
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *Emitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns the read side of the channel. It is closed by Close.
func (e *Emitter) Events() <-chan models.Event {
	return e.events
}

// Close closes the events channel. Further Emit calls are ignored.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.events)
	}
}
