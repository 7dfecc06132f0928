package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/gowiki/internal/events"
)

// LogSink writes one structured log line per event.
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

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []events.Event) error {
	for _, evt := range batch {
		s.logger.Info("wiki event",
			zap.String("event_id", evt.ID.String()),
			zap.String("kind", string(evt.Kind)),
			zap.String("page", evt.Page),
			zap.Int64("page_id", evt.PageID),
			zap.Int64("bytes", evt.Bytes),
			zap.Time("ts", evt.TS),
			zap.String("note", evt.Note),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
