package log

import (
	"github.com/pion/logging"
	"go.uber.org/zap"
)

// PionFactory adapts a Logger to pion's logging.LoggerFactory so that
// WebRTC internals write through the same zap core.
type PionFactory struct {
	logger *Logger
}

// NewPionFactory creates a pion logger factory backed by l.
func NewPionFactory(l *Logger) *PionFactory {
	return &PionFactory{logger: l}
}

// NewLogger implements logging.LoggerFactory.
func (f *PionFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{sugar: f.logger.zap.With(zap.String("scope", scope)).Sugar()}
}

// pionLogger implements logging.LeveledLogger. Trace maps to debug.
type pionLogger struct {
	sugar *zap.SugaredLogger
}

func (p *pionLogger) Trace(msg string)                  { p.sugar.Debug(msg) }
func (p *pionLogger) Tracef(format string, args ...any) { p.sugar.Debugf(format, args...) }
func (p *pionLogger) Debug(msg string)                  { p.sugar.Debug(msg) }
func (p *pionLogger) Debugf(format string, args ...any) { p.sugar.Debugf(format, args...) }
func (p *pionLogger) Info(msg string)                   { p.sugar.Info(msg) }
func (p *pionLogger) Infof(format string, args ...any)  { p.sugar.Infof(format, args...) }
func (p *pionLogger) Warn(msg string)                   { p.sugar.Warn(msg) }
func (p *pionLogger) Warnf(format string, args ...any)  { p.sugar.Warnf(format, args...) }
func (p *pionLogger) Error(msg string)                  { p.sugar.Error(msg) }
func (p *pionLogger) Errorf(format string, args ...any) { p.sugar.Errorf(format, args...) }

var _ logging.LoggerFactory = (*PionFactory)(nil)
