// Package journal records controller lifecycle events to an event store.
package journal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-httpservice/internal/server"
	"github.com/sirosfoundation/go-httpservice/internal/storage"
	"github.com/sirosfoundation/go-httpservice/pkg/config"
)

// DefaultBufferSize is the number of events queued for writing
const DefaultBufferSize = 64

// Source supplies the controller snapshot stored with each event
type Source interface {
	State() server.State
	Configuration() *config.ServerConfiguration
}

// Recorder is a server.Listener that appends every lifecycle event to an
// event store. Writes happen on a background goroutine so notifications
// never wait on storage; events are dropped when the queue is full.
type Recorder struct {
	store   storage.EventStore
	source  Source
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time

	mu      sync.RWMutex
	closed  bool
	queue   chan *storage.Record
	done    chan struct{}
	dropped atomic.Int64
}

// NewRecorder creates a recorder and starts its writer
func NewRecorder(store storage.EventStore, source Source, logger *zap.Logger, bufferSize int) *Recorder {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	r := &Recorder{
		store:   store,
		source:  source,
		logger:  logger.Named("journal"),
		timeout: 5 * time.Second,
		now:     time.Now,
		queue:   make(chan *storage.Record, bufferSize),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// StateChanged implements server.Listener
func (r *Recorder) StateChanged(e server.Event) {
	rec := &storage.Record{
		ID:        uuid.NewString(),
		Event:     string(e),
		State:     r.source.State().String(),
		Timestamp: r.now().UTC(),
	}
	if cfg := r.source.Configuration(); cfg != nil {
		rec.Configuration = cfg.String()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	select {
	case r.queue <- rec:
	default:
		r.dropped.Add(1)
		r.logger.Warn("Journal queue full, dropping event", zap.String("event", rec.Event))
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for rec := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := r.store.Append(ctx, rec); err != nil {
			r.logger.Error("Failed to record event", zap.String("event", rec.Event), zap.Error(err))
		}
		cancel()
	}
}

// Dropped returns how many events were discarded because the queue was full
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops accepting events and waits until queued events are written.
// The store is not closed.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
}
