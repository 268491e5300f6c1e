package incidents

import (
	"context"

	"go.uber.org/zap"

	"github.com/cidadeplus/backend/internal/models"
)

// Publisher pushes stored incidents to live subscribers.
type Publisher interface {
	PublishIncident(ctx context.Context, inc *models.TenantIncident) error
}

// Persister stores incidents and then announces them. It is the terminal Writer of
// both delivery modes: the Recorder uses it directly, or the queue worker does.
type Persister struct {
	store     Writer
	publisher Publisher
	logger    *zap.Logger
}

// NewPersister creates a persister. publisher may be nil.
func NewPersister(store Writer, publisher Publisher, logger *zap.Logger) *Persister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persister{store: store, publisher: publisher, logger: logger}
}

// Create implements Writer. Publish failures are logged and do not fail the write.
func (p *Persister) Create(ctx context.Context, inc *models.TenantIncident) error {
	if err := p.store.Create(ctx, inc); err != nil {
		return err
	}
	if p.publisher == nil {
		return nil
	}
	if err := p.publisher.PublishIncident(ctx, inc); err != nil {
		p.logger.Warn("publish incident failed", zap.String("id", inc.ID.String()), zap.Error(err))
	}
	return nil
}
