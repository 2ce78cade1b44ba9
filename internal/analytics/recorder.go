package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sink persists events.
type Sink interface {
	SaveEvent(ctx context.Context, ev Event) error
}

const defaultBuffer = 256

// Recorder accepts events without blocking and hands them to the Tracker and an
// optional Sink from a single background goroutine.
type Recorder struct {
	events  chan Event
	tracker *Tracker
	sink    Sink
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewRecorder starts the background writer. sink may be nil.
func NewRecorder(tracker *Tracker, sink Sink, buffer int, logger *slog.Logger) *Recorder {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	r := &Recorder{
		events:  make(chan Event, buffer),
		tracker: tracker,
		sink:    sink,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Record queues ev. When the buffer is full, or the Recorder is closed, the
// event is dropped with a warning.
func (r *Recorder) Record(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Warn("analytics recorder closed, dropping event", "session_id", ev.SessionID)
		return
	}
	select {
	case r.events <- ev:
	default:
		r.logger.Warn("analytics buffer full, dropping event", "session_id", ev.SessionID)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for ev := range r.events {
		if r.tracker != nil {
			r.tracker.Track(ev)
		}
		if r.sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.sink.SaveEvent(ctx, ev); err != nil {
			r.logger.Error("failed to persist analytics event", "id", ev.ID, "error", err)
		}
		cancel()
	}
}

// Close stops accepting events and waits until the queued ones are written.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	r.mu.Unlock()
	<-r.done
}
