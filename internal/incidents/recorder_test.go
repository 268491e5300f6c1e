package incidents

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cidadeplus/backend/internal/models"
)

type memoryWriter struct {
	mu      sync.Mutex
	items   []*models.TenantIncident
	err     error
	release chan struct{}
}

func (w *memoryWriter) Create(ctx context.Context, inc *models.TenantIncident) error {
	if w.release != nil {
		select {
		case <-w.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.items = append(w.items, inc)
	return nil
}

func (w *memoryWriter) all() []*models.TenantIncident {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*models.TenantIncident(nil), w.items...)
}

func incident(typ string) *models.TenantIncident {
	city := uuid.New()
	return &models.TenantIncident{CityID: &city, Type: typ, Source: "tenant_resolver"}
}

func TestRecorder_FlushesOnClose(t *testing.T) {
	w := &memoryWriter{}
	r := NewRecorder(w, RecorderConfig{BufferSize: 10}, nil)

	for i := 0; i < 5; i++ {
		r.Record(context.Background(), incident(models.IncidentHeaderPathMismatch))
	}
	require.NoError(t, r.Close(context.Background()))

	items := w.all()
	require.Len(t, items, 5)
	for _, inc := range items {
		assert.NotEqual(t, uuid.Nil, inc.ID)
		assert.False(t, inc.CreatedAt.IsZero())
		assert.Equal(t, models.SeverityWarning, inc.Severity)
	}
	assert.Equal(t, uint64(5), r.Stats().Recorded)
}

func TestRecorder_CancelledRequestContextStillWrites(t *testing.T) {
	w := &memoryWriter{}
	r := NewRecorder(w, RecorderConfig{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Record(ctx, incident(models.IncidentHeaderDomainMismatch))
	require.NoError(t, r.Close(context.Background()))

	assert.Len(t, w.all(), 1)
}

func TestRecorder_FailuresAreSwallowed(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	w := &memoryWriter{err: errors.New("relation does not exist")}
	r := NewRecorder(w, RecorderConfig{}, zap.New(core))

	assert.NotPanics(t, func() {
		r.Record(context.Background(), incident(models.IncidentPathDomainMismatch))
	})
	require.NoError(t, r.Close(context.Background()))

	assert.Equal(t, uint64(1), r.Stats().Failed)
	assert.Equal(t, 1, logs.FilterMessage("tenant incident write failed").Len())
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	w := &memoryWriter{release: make(chan struct{})}
	r := NewRecorder(w, RecorderConfig{BufferSize: 2}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			r.Record(context.Background(), incident(models.IncidentHeaderPathMismatch))
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full buffer")
	}

	close(w.release)
	require.NoError(t, r.Close(context.Background()))

	stats := r.Stats()
	assert.Greater(t, stats.Dropped, uint64(0))
	assert.Equal(t, uint64(20), stats.Dropped+stats.Recorded)
}

func TestRecorder_RecordAfterClose(t *testing.T) {
	w := &memoryWriter{}
	r := NewRecorder(w, RecorderConfig{}, nil)
	require.NoError(t, r.Close(context.Background()))
	require.NoError(t, r.Close(context.Background()))

	r.Record(context.Background(), incident(models.IncidentHeaderPathMismatch))
	assert.Empty(t, w.all())
	assert.Equal(t, uint64(1), r.Stats().Dropped)
}

func TestRecorder_ConcurrentRecordAndClose(t *testing.T) {
	r := NewRecorder(&memoryWriter{}, RecorderConfig{BufferSize: 4}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Record(context.Background(), incident(models.IncidentHeaderPathMismatch))
			}
		}()
	}
	require.NoError(t, r.Close(context.Background()))
	wg.Wait()

	stats := r.Stats()
	assert.Equal(t, uint64(16*50), stats.Recorded+stats.Dropped)
}

type failingPublisher struct{ calls int }

func (p *failingPublisher) PublishIncident(context.Context, *models.TenantIncident) error {
	p.calls++
	return errors.New("redis down")
}

func TestPersister_PublishFailureDoesNotFailWrite(t *testing.T) {
	w := &memoryWriter{}
	pub := &failingPublisher{}
	p := NewPersister(w, pub, nil)

	require.NoError(t, p.Create(context.Background(), incident(models.IncidentHeaderPathMismatch)))
	assert.Len(t, w.all(), 1)
	assert.Equal(t, 1, pub.calls)

	w.err = errors.New("insert failed")
	assert.Error(t, p.Create(context.Background(), incident(models.IncidentHeaderPathMismatch)))
	assert.Equal(t, 1, pub.calls)
}
