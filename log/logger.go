// Package log provides structured JSON logging with pipeline context.
//
// Loggers write one JSON object per line to stderr. Pipeline loggers carry
// pipeline_id and direction (and peer for network pipelines); component
// loggers carry the component name. Pion internals are routed through the
// same core by PionFactory.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/framewrap/types"
)

// Logger provides structured logging with pipeline context.
// Entries carry pipeline_id and direction when created from PipelineMeta.
type Logger struct {
	zap    *zap.Logger
	level  zap.AtomicLevel
	fields []zap.Field
}

// ParseLevel parses a level name (debug, info, warn, error).
// Empty means debug.
func ParseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.DebugLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return lvl, nil
}

// NewLogger creates a new logger with pipeline context.
// Output defaults to os.Stderr.
func NewLogger(meta *types.PipelineMeta) *Logger {
	return newLoggerWithWriter(metaFields(meta), os.Stderr)
}

// NewComponentLogger creates a logger for a long-lived component that is
// not bound to a single pipeline (servers, transports).
func NewComponentLogger(component string) *Logger {
	return newLoggerWithWriter([]zap.Field{zap.String("component", component)}, os.Stderr)
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop(), level: zap.NewAtomicLevelAt(zapcore.DebugLevel)}
}

// WithOutput returns a new logger with a different output writer.
// Context fields and level are preserved; zap keeps fields inside the core,
// so they are re-applied to the new one.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	return &Logger{
		zap:    zap.New(newCore(w, l.level)).With(l.fields...),
		level:  l.level,
		fields: l.fields,
	}
}

// WithPipeline returns a child logger carrying pipeline context.
func (l *Logger) WithPipeline(meta *types.PipelineMeta) *Logger {
	extra := metaFields(meta)
	fields := make([]zap.Field, 0, len(l.fields)+len(extra))
	fields = append(fields, l.fields...)
	fields = append(fields, extra...)
	return &Logger{zap: l.zap.With(extra...), level: l.level, fields: fields}
}

// SetLevel changes the minimum enabled level for this logger and all loggers
// derived from it.
func (l *Logger) SetLevel(lvl zapcore.Level) {
	l.level.SetLevel(lvl)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

func newCore(w io.Writer, level zap.AtomicLevel) zapcore.Core {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	return zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		level,
	)
}

func newLoggerWithWriter(fields []zap.Field, w io.Writer) *Logger {
	level := zap.NewAtomicLevelAt(zapcore.DebugLevel)
	return &Logger{
		zap:    zap.New(newCore(w, level)).With(fields...),
		level:  level,
		fields: fields,
	}
}

func metaFields(meta *types.PipelineMeta) []zap.Field {
	if meta == nil {
		return nil
	}
	fields := []zap.Field{
		zap.String("pipeline_id", meta.PipelineID),
		zap.String("direction", string(meta.Direction)),
	}
	if meta.Peer != nil {
		fields = append(fields, zap.String("peer", *meta.Peer))
	}
	return fields
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, zap.Any("fields", fields))
}
