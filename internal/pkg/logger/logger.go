package logger

import (
	"io"
	"log/slog"
	"os"
	"sort"
)

// SlogLogger adapts log/slog to ports.Logger.
type SlogLogger struct {
	logger *slog.Logger
}

// New creates a JSON logger writing to w at the given level.
func New(w io.Writer, level slog.Level) *SlogLogger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return &SlogLogger{logger: slog.New(handler)}
}

// NewStd creates the CLI logger. Without verbose only errors reach stderr.
func NewStd(verbose bool) *SlogLogger {
	level := slog.LevelError
	if verbose {
		level = slog.LevelDebug
	}
	return New(os.Stderr, level)
}

// Discard drops everything.
func Discard() *SlogLogger {
	return &SlogLogger{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// With returns a logger that adds fields to every record.
func (l *SlogLogger) With(fields map[string]interface{}) *SlogLogger {
	return &SlogLogger{logger: l.logger.With(attrs(fields)...)}
}

func (l *SlogLogger) Debug(msg string, fields map[string]interface{}) {
	l.logger.Debug(msg, attrs(fields)...)
}

func (l *SlogLogger) Info(msg string, fields map[string]interface{}) {
	l.logger.Info(msg, attrs(fields)...)
}

func (l *SlogLogger) Warn(msg string, fields map[string]interface{}) {
	l.logger.Warn(msg, attrs(fields)...)
}

func (l *SlogLogger) Error(msg string, err error, fields map[string]interface{}) {
	args := attrs(fields)
	if err != nil {
		args = append(args, slog.String("error", err.Error()))
	}
	l.logger.Error(msg, args...)
}

// attrs sorts keys so output is stable.
func attrs(fields map[string]interface{}) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, slog.Any(k, fields[k]))
	}
	return out
}
