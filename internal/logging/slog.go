package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// ServiceName is reported to OTel and Graylog as the log source.
const ServiceName = "satoshigo"

// console is the fallback destination; tests swap it.
var console io.Writer = os.Stdout

// SlogManager owns the process logger. Every component gets its *slog.Logger
// (or a zerolog view of the same destination) from here.
type SlogManager struct {
	logger   *slog.Logger
	out      io.Writer
	level    slog.Level
	provider *sdklog.LoggerProvider
}

// NewSlogManager returns a manager whose Logger is slog.Default until Setup.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel accepts debug, info, warn and error in any case. Anything else is info.
func parseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// utcTime renders record times as RFC3339 UTC so file and console logs line
// up with the timestamps stored in the database.
func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
	}
	return a
}

// Setup (re)builds the logger. Text output goes to out, or stdout when out is
// nil. A non-nil provider adds an OTel bridge; extra handlers (Graylog) are
// appended as is. Calling Setup again replaces the previous pipeline.
func (m *SlogManager) Setup(out io.Writer, level string, provider *sdklog.LoggerProvider, extra ...slog.Handler) {
	if out == nil {
		out = console
	}
	m.out = out
	m.level = parseLevel(level)
	m.provider = provider

	handlers := []slog.Handler{
		slog.NewTextHandler(out, &slog.HandlerOptions{Level: m.level, ReplaceAttr: utcTime}),
	}
	if provider != nil {
		handlers = append(handlers, otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(provider)))
	}
	handlers = append(handlers, extra...)

	m.logger = slog.New(NewContextHandler(NewMultiHandler(handlers...), nil))
	m.logger.Info("Logging initialized", "level", m.level.String(), "otel", provider != nil, "extra", len(extra))
}

// Logger returns the configured logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Zerolog returns a zerolog.Logger on the same destination and level, tagged
// with component. The database and influx managers log through it.
func (m *SlogManager) Zerolog(component string) zerolog.Logger {
	out := m.out
	if out == nil {
		out = console
	}
	cw := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    true,
		TimeFormat: time.RFC3339,
		FormatTimestamp: func(i any) string {
			if s, ok := i.(string); ok {
				if t, err := time.Parse(time.RFC3339, s); err == nil {
					return t.UTC().Format(time.RFC3339)
				}
				return s
			}
			return ""
		},
	}
	return zerolog.New(cw).Level(zerologLevel(m.level)).With().Timestamp().Str("component", component).Logger()
}

func zerologLevel(l slog.Level) zerolog.Level {
	switch {
	case l <= slog.LevelDebug:
		return zerolog.DebugLevel
	case l <= slog.LevelInfo:
		return zerolog.InfoLevel
	case l <= slog.LevelWarn:
		return zerolog.WarnLevel
	}
	return zerolog.ErrorLevel
}

// Flush pushes buffered OTel records out. It is a no-op without a provider.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	return m.provider.ForceFlush(ctx)
}

// WriteLog logs msg at the named level with the caller recorded as "function".
// Unknown levels log at info.
func (m *SlogManager) WriteLog(function, msg, level string) {
	if m.logger == nil {
		return
	}
	m.logger.Log(context.Background(), parseLevel(level), msg, "function", function)
}
