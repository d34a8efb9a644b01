package events

import (
	"context"

	"go.uber.org/zap"

	"stowage/pkg/domain"
)

// LogSink writes each event as one structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a sink logging through logger; nil means zap.NewNop.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("activity")}
}

// Publish logs events at info level.
func (s *LogSink) Publish(_ context.Context, events ...domain.Event) error {
	for _, e := range events {
		fields := []zap.Field{
			zap.String("event_id", e.ID),
			zap.String("type", string(e.Type)),
			zap.String("user_id", e.UserID),
			zap.Int("day", e.Day),
			zap.Time("timestamp", e.Timestamp),
		}
		if e.ItemID != "" {
			fields = append(fields, zap.String("item_id", e.ItemID))
		}
		if e.FromContainer != "" {
			fields = append(fields, zap.String("from", e.FromContainer))
		}
		if e.ToContainer != "" {
			fields = append(fields, zap.String("to", e.ToContainer))
		}
		if e.Reason != "" {
			fields = append(fields, zap.String("reason", e.Reason))
		}
		if raw := e.Payload.Raw(); raw != nil {
			fields = append(fields, zap.ByteString("payload", raw))
		}
		s.logger.Info("activity", fields...)
	}
	return nil
}
