package journal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-httpservice/internal/server"
	"github.com/sirosfoundation/go-httpservice/internal/storage"
	"github.com/sirosfoundation/go-httpservice/internal/storage/memory"
	"github.com/sirosfoundation/go-httpservice/pkg/config"
)

type staticSource struct {
	state server.State
	cfg   *config.ServerConfiguration
}

func (s staticSource) State() server.State                        { return s.state }
func (s staticSource) Configuration() *config.ServerConfiguration { return s.cfg }

// blockingStore holds every Append until release is closed
type blockingStore struct {
	release chan struct{}
	mu      sync.Mutex
	count   int
}

func (s *blockingStore) Append(context.Context, *storage.Record) error {
	<-s.release
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	return nil
}

func (s *blockingStore) List(context.Context, int) ([]*storage.Record, error) { return nil, nil }
func (s *blockingStore) Ping(context.Context) error                           { return nil }
func (s *blockingStore) Close() error                                         { return nil }

type failingStore struct{ blockingStore }

func (s *failingStore) Append(context.Context, *storage.Record) error {
	return errors.New("disk full")
}

func TestRecorder_RecordsEvents(t *testing.T) {
	store := memory.NewStore(10)
	cfg := config.DefaultServerConfiguration()
	cfg.SSLPassword = "hunter2"

	r := NewRecorder(store, staticSource{state: server.StateStarted, cfg: &cfg}, zap.NewNop(), 0)
	r.StateChanged(server.EventStarted)
	r.StateChanged(server.EventStopped)
	r.Close()

	recs, err := store.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "stopped", recs[0].Event)
	assert.Equal(t, "started", recs[1].Event)
	assert.Equal(t, "STARTED", recs[1].State)
	assert.NotEmpty(t, recs[1].ID)
	assert.NotEqual(t, recs[0].ID, recs[1].ID)
	assert.Contains(t, recs[1].Configuration, "http=")
	assert.NotContains(t, recs[1].Configuration, "hunter2")
	assert.WithinDuration(t, time.Now(), recs[1].Timestamp, time.Minute)
}

func TestRecorder_WithController(t *testing.T) {
	store := memory.NewStore(10)
	ctrl := server.NewController(nil, nil, zap.NewNop())

	r := NewRecorder(store, ctrl, zap.NewNop(), 0)
	require.NoError(t, ctrl.AddListener(r))

	cfg := config.DefaultServerConfiguration()
	require.NoError(t, ctrl.Configure(&cfg))
	r.Close()

	recs, err := store.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "configured", recs[0].Event)
	assert.Equal(t, "STOPPED", recs[0].State)
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	store := &blockingStore{release: make(chan struct{})}
	r := NewRecorder(store, staticSource{state: server.StateStopped}, zap.NewNop(), 1)

	// the writer may already hold one record, so at most two are accepted
	for i := 0; i < 5; i++ {
		r.StateChanged(server.EventConfigured)
	}
	assert.GreaterOrEqual(t, r.Dropped(), int64(3))

	close(store.release)
	r.Close()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, int64(5), int64(store.count)+r.Dropped())
}

func TestRecorder_StoreErrorsAreLogged(t *testing.T) {
	r := NewRecorder(&failingStore{}, staticSource{state: server.StateStopped}, zap.NewNop(), 0)
	r.StateChanged(server.EventConfigured)
	r.Close()
	assert.Equal(t, int64(0), r.Dropped())
}

func TestRecorder_CloseIsIdempotent(t *testing.T) {
	r := NewRecorder(memory.NewStore(1), staticSource{}, zap.NewNop(), 0)
	r.Close()
	r.Close()

	// events after close are ignored
	r.StateChanged(server.EventStarted)
	assert.Equal(t, int64(0), r.Dropped())
}
