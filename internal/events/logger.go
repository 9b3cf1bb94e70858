package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"log/slog"
)

// SlogAdapter lets watermill log through slog.
type SlogAdapter struct {
	log *slog.Logger
}

func NewLogger(log *slog.Logger) *SlogAdapter {
	return &SlogAdapter{log: log.With(slog.String("component", "watermill"))}
}

func (a *SlogAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Error(msg, append(attrs(fields), slog.Any("error", err))...)
}

func (a *SlogAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Info(msg, attrs(fields)...)
}

func (a *SlogAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, attrs(fields)...)
}

// Trace is mapped to debug; slog has no lower level by default.
func (a *SlogAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, attrs(fields)...)
}

func (a *SlogAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &SlogAdapter{log: a.log.With(attrs(fields)...)}
}

func attrs(fields watermill.LogFields) []any {
	out := make([]any, 0, len(fields))
	for k, v := range fields {
		out = append(out, slog.Any(k, v))
	}

	return out
}
