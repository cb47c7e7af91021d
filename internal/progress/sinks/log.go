package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/media-discovery-crawler/internal/progress"
)

// LogSink writes each progress event as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch. Errors and dropped pages log at warn
// so they surface at the default level; everything else logs at info.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.Stage == progress.StageVisit {
			fields = append(fields,
				zap.String("domain", evt.Domain),
				zap.String("url", evt.URL),
				zap.String("status", evt.Status),
				zap.String("reason", evt.Reason),
				zap.Duration("delay", evt.Delay),
				zap.Int("cross_domain_calls", evt.CrossDomainCalls),
				zap.Int("domain_failures", evt.Failures),
			)
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Status == "error" {
			s.logger.Warn("crawl progress", fields...)
			continue
		}
		s.logger.Info("crawl progress", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
