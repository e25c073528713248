package logger

import "github.com/user/playcore/pkg/ports"

// NoopLogger discards everything. It backs quiet mode and stands in for a
// nil logger in components.
type NoopLogger struct{}

// NewNoop creates a new no-op logger.
func NewNoop() *NoopLogger {
	return &NoopLogger{}
}

// OrNoop returns log, or a NoopLogger when log is nil.
func OrNoop(log ports.Logger) ports.Logger {
	if log == nil {
		return NewNoop()
	}
	return log
}

func (*NoopLogger) Debug(string, ...interface{}) {}
func (*NoopLogger) Info(string, ...interface{})  {}
func (*NoopLogger) Warn(string, ...interface{})  {}
func (*NoopLogger) Error(string, ...interface{}) {}

// WithComponent returns the receiver; components are irrelevant when nothing is written.
func (l *NoopLogger) WithComponent(string) ports.Logger { return l }

var _ ports.Logger = (*NoopLogger)(nil)
