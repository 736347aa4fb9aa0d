package progress

import "go.uber.org/zap"

// LogSink emits structured logs for the progress stream. Chapter milestones
// log at Info; per-part and per-image events log at Debug to keep normal runs
// quiet.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Observe logs the event using structured fields.
func (s *LogSink) Observe(evt Event) {
	fields := []zap.Field{
		zap.String("stage", string(evt.Stage)),
		zap.String("slot", evt.Slot),
	}
	if evt.URL != "" {
		fields = append(fields, zap.String("url", evt.URL))
	}
	if evt.Bytes > 0 {
		fields = append(fields, zap.Int64("bytes", evt.Bytes))
	}
	if evt.Dur > 0 {
		fields = append(fields, zap.Duration("dur", evt.Dur))
	}
	if evt.Note != "" {
		fields = append(fields, zap.String("note", evt.Note))
	}
	switch evt.Stage {
	case StagePartVisited, StageImageDone, StageImageRejected:
		s.logger.Debug("progress", fields...)
	default:
		s.logger.Info("progress", fields...)
	}
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close() error { return nil }
