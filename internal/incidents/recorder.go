// Package incidents records, stores and summarizes tenant resolution incidents.
package incidents

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cidadeplus/backend/internal/models"
)

// Writer persists or forwards one incident.
type Writer interface {
	Create(ctx context.Context, inc *models.TenantIncident) error
}

const (
	defaultBufferSize   = 1000
	defaultWriteTimeout = 5 * time.Second
)

// RecorderConfig tunes a Recorder.
type RecorderConfig struct {
	BufferSize   int
	WriteTimeout time.Duration
}

// Recorder accepts incidents from request paths without ever blocking them.
// Incidents are queued in a bounded buffer and written by one background goroutine;
// when the buffer is full the incident is dropped and logged. Write failures are
// logged and never reach the caller.
type Recorder struct {
	writer       Writer
	buffer       chan *models.TenantIncident
	writeTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	recorded atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64
}

// NewRecorder starts a recorder writing to w.
func NewRecorder(w Writer, cfg RecorderConfig, logger *zap.Logger) *Recorder {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		writer:       w,
		buffer:       make(chan *models.TenantIncident, cfg.BufferSize),
		writeTimeout: cfg.WriteTimeout,
		logger:       logger,
		now:          time.Now,
	}
	r.wg.Add(1)
	go r.worker()
	return r
}

// Record implements tenancy.IncidentSink. It never blocks.
func (r *Recorder) Record(_ context.Context, inc *models.TenantIncident) {
	if inc == nil {
		return
	}
	Prepare(inc, r.now())

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop(inc, "recorder closed")
		return
	}
	select {
	case r.buffer <- inc:
	default:
		r.drop(inc, "buffer full")
	}
}

// Prepare fills the id, timestamp and severity of an incident that lacks them.
func Prepare(inc *models.TenantIncident, now time.Time) {
	if inc.ID == uuid.Nil {
		inc.ID = uuid.New()
	}
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = now.UTC()
	}
	if !inc.Severity.Valid() {
		inc.Severity = models.SeverityWarning
	}
	if inc.Context == nil {
		inc.Context = map[string]interface{}{}
	}
}

func (r *Recorder) drop(inc *models.TenantIncident, reason string) {
	r.dropped.Add(1)
	r.logger.Warn("tenant incident dropped",
		zap.String("reason", reason),
		zap.String("type", inc.Type),
		zap.String("request_id", inc.RequestID),
	)
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for inc := range r.buffer {
		r.write(inc)
	}
}

func (r *Recorder) write(inc *models.TenantIncident) {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()
	if err := r.writer.Create(ctx, inc); err != nil {
		r.failed.Add(1)
		r.logger.Warn("tenant incident write failed",
			zap.String("id", inc.ID.String()),
			zap.String("type", inc.Type),
			zap.Error(err),
		)
		return
	}
	r.recorded.Add(1)
}

// Close stops accepting incidents and waits until buffered ones are written or ctx ends.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.buffer)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecorderStats are cumulative counters since start.
type RecorderStats struct {
	Recorded uint64 `json:"recorded"`
	Dropped  uint64 `json:"dropped"`
	Failed   uint64 `json:"failed"`
	Pending  int    `json:"pending"`
}

// Stats returns the recorder counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Recorded: r.recorded.Load(),
		Dropped:  r.dropped.Load(),
		Failed:   r.failed.Load(),
		Pending:  len(r.buffer),
	}
}
