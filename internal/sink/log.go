package sink

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes each envelope as a structured log entry
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a log sink. A nil logger discards output.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, env Envelope) error {
	c := env.Candidate
	s.logger.Info("signal routed",
		zap.String("id", env.ID),
		zap.String("symbol", c.Symbol),
		zap.String("direction", string(c.Direction)),
		zap.Float64("confidence", c.Confidence),
		zap.Float64("invalidation", c.Invalidation),
		zap.String("strategy", c.Strategy),
		zap.Duration("ttl", c.TTL),
		zap.Time("expires_at", c.ExpiresAt()),
	)
	return nil
}
