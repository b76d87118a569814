package logging

import "log/slog"

// DispatcherLogger satisfies dispatcher.Logger on top of slog. Records are
// tagged component=dispatcher so queue warnings are easy to filter.
type DispatcherLogger struct {
	logger *slog.Logger
}

// NewDispatcherLogger wraps logger. A nil logger means slog.Default.
func NewDispatcherLogger(logger *slog.Logger) *DispatcherLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &DispatcherLogger{logger: logger.With("component", "dispatcher")}
}

func (l *DispatcherLogger) Debug(msg string, kv ...any) { l.logger.Debug(msg, kv...) }
func (l *DispatcherLogger) Info(msg string, kv ...any)  { l.logger.Info(msg, kv...) }
func (l *DispatcherLogger) Error(msg string, kv ...any) { l.logger.Error(msg, kv...) }
