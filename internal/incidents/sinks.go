package incidents

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// LogSink writes summaries to the application log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a log sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Deliver implements Sink.
func (s *LogSink) Deliver(_ context.Context, sum *Summary) error {
	s.logger.Info("tenant incident summary",
		zap.Time("from", sum.From),
		zap.Time("to", sum.To),
		zap.Int("total", sum.Total),
		zap.Int("groups", len(sum.Groups)),
	)
	for _, g := range sum.Groups {
		s.logger.Info("tenant incident group",
			zap.String("city_id", cityString(g.CityID)),
			zap.String("city", g.CitySlug),
			zap.String("type", g.Type),
			zap.Int("count", g.Count),
			zap.Time("last_seen", g.LastSeen),
		)
	}
	return nil
}

// Uploader stores an object. *storage.S3 implements it.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// ArchiveSink stores every summary as a JSON object.
type ArchiveSink struct {
	uploader Uploader
	prefix   string
}

// NewArchiveSink creates an archive sink writing under prefix (default "reports/incidents").
func NewArchiveSink(uploader Uploader, prefix string) *ArchiveSink {
	if prefix == "" {
		prefix = "reports/incidents"
	}
	return &ArchiveSink{uploader: uploader, prefix: prefix}
}

// Key returns the object key of a summary: <prefix>/YYYY/MM/DD/<unix>.json of its end time.
func (s *ArchiveSink) Key(sum *Summary) string {
	to := sum.To.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%d.json", s.prefix, to.Year(), to.Month(), to.Day(), to.Unix())
}

// Deliver implements Sink.
func (s *ArchiveSink) Deliver(ctx context.Context, sum *Summary) error {
	body, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if _, err := s.uploader.Upload(ctx, s.Key(sum), body, "application/json"); err != nil {
		return fmt.Errorf("archive summary: %w", err)
	}
	return nil
}
