package audit

import (
	"context"
	"log/slog"
)

// LogSink writes events to a structured logger under the "audit" group.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.WithGroup("audit")}
}

func (s *LogSink) Write(ctx context.Context, events []SecurityEvent) error {
	for _, e := range events {
		level := slog.LevelInfo
		switch e.Severity {
		case SeverityWarning:
			level = slog.LevelWarn
		case SeverityCritical:
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, e.Action,
			"subject", e.Subject,
			"reason", e.Reason,
			"ip", e.IP,
			"device", e.Device,
			"request_id", e.RequestID,
			"ts", e.Timestamp,
		)
	}
	return nil
}

// MultiSink fans a batch out to every sink and returns the first error.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, events []SecurityEvent) error {
	var firstErr error
	for _, s := range m {
		if err := s.Write(ctx, events); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
