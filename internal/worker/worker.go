package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cidadeplus/backend/internal/incidents"
	"github.com/cidadeplus/backend/internal/models"
	"github.com/cidadeplus/backend/pkg/queue"
)

const pollTimeout = time.Second

// QueueWriter is the incidents.Writer of queue delivery mode: it hands incidents to the worker.
type QueueWriter struct {
	queue *queue.Queue
}

// NewQueueWriter creates a writer enqueuing onto q.
func NewQueueWriter(q *queue.Queue) *QueueWriter {
	return &QueueWriter{queue: q}
}

// Create enqueues inc as an incident job.
func (w *QueueWriter) Create(ctx context.Context, inc *models.TenantIncident) error {
	_, err := w.queue.Enqueue(ctx, queue.JobTypeIncident, inc)
	return err
}

// IncidentProcessor drains incident jobs into the incident store.
type IncidentProcessor struct {
	queue   *queue.Queue
	writer  incidents.Writer
	logger  *zap.Logger
	backoff time.Duration
}

// NewIncidentProcessor creates an incident processor. writer is normally an incidents.Persister.
func NewIncidentProcessor(q *queue.Queue, writer incidents.Writer, logger *zap.Logger) *IncidentProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IncidentProcessor{queue: q, writer: writer, logger: logger, backoff: queue.RetryBackoff}
}

// Process executes one incident job. Storage is idempotent on the incident id,
// so a retried job never duplicates a row.
func (p *IncidentProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeIncident {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var inc models.TenantIncident
	if err := json.Unmarshal(job.Payload, &inc); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	incidents.Prepare(&inc, time.Now())
	if err := p.writer.Create(ctx, &inc); err != nil {
		return fmt.Errorf("store incident: %w", err)
	}
	p.logger.Debug("incident stored", zap.String("incident_id", inc.ID.String()), zap.String("type", inc.Type))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *IncidentProcessor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			p.logger.Info("incident worker stopping")
			return
		}

		job, err := p.queue.Dequeue(ctx, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if _, reErr := p.queue.Retry(context.WithoutCancel(ctx), job, err); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *IncidentProcessor) sleep(ctx context.Context) {
	if p.backoff <= 0 {
		return
	}
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
