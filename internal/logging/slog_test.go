package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// withConsole redirects the stdout fallback into a buffer for one test.
func withConsole(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := console
	console = &buf
	t.Cleanup(func() { console = prev })
	return &buf
}

func TestSetup_Destination(t *testing.T) {
	t.Run("file given", func(t *testing.T) {
		stdout := withConsole(t)
		var file bytes.Buffer

		m := NewSlogManager()
		m.Setup(&file, "info", nil)
		m.Logger().Info("area committed", "area_id", "a1")

		assert.Contains(t, file.String(), "area committed")
		assert.Contains(t, file.String(), "area_id=a1")
		assert.Empty(t, stdout.String())
	})

	t.Run("no file", func(t *testing.T) {
		stdout := withConsole(t)

		m := NewSlogManager()
		m.Setup(nil, "info", nil)
		m.Logger().Info("player registered")

		assert.Contains(t, stdout.String(), "player registered")
	})
}

func TestSetup_Levels(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{level: "debug", wantDebug: true, wantInfo: true, wantWarn: true},
		{level: "INFO", wantInfo: true, wantWarn: true},
		{level: "warn", wantWarn: true},
		{level: "error"},
		{level: "bogus", wantInfo: true, wantWarn: true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			m := NewSlogManager()
			m.Setup(&buf, tt.level, nil)
			buf.Reset()

			m.Logger().Debug("dbg-line")
			m.Logger().Info("info-line")
			m.Logger().Warn("warn-line")
			m.Logger().Error("error-line")

			out := buf.String()
			assert.Equal(t, tt.wantDebug, strings.Contains(out, "dbg-line"))
			assert.Equal(t, tt.wantInfo, strings.Contains(out, "info-line"))
			assert.Equal(t, tt.wantWarn, strings.Contains(out, "warn-line"))
			assert.Contains(t, out, "error-line")
		})
	}
}

func TestSetup_SecondCallReplacesPipeline(t *testing.T) {
	var first, second bytes.Buffer
	m := NewSlogManager()
	m.Setup(&first, "info", nil)
	m.Setup(&second, "info", nil)

	m.Logger().Info("after swap")
	assert.NotContains(t, first.String(), "after swap")
	assert.Contains(t, second.String(), "after swap")
}

func TestSetup_WritesUTCTimes(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(&buf, "info", nil)

	line := strings.SplitN(buf.String(), "\n", 2)[0]
	require.True(t, strings.HasPrefix(line, "time="), line)
	ts := strings.Fields(line)[0]
	assert.True(t, strings.HasSuffix(ts, "Z"), ts)
}

func TestSetup_WithOTelProvider(t *testing.T) {
	var buf bytes.Buffer
	provider := sdklog.NewLoggerProvider()
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m := NewSlogManager()
	m.Setup(&buf, "info", provider)
	m.Logger().Info("funding confirmed")

	assert.Contains(t, buf.String(), "otel=true")
	assert.Contains(t, buf.String(), "funding confirmed")
	assert.NoError(t, m.Flush(context.Background()))
}

func TestLoggerAndFlushBeforeSetup(t *testing.T) {
	m := NewSlogManager()
	assert.Same(t, slog.Default(), m.Logger())
	assert.NoError(t, m.Flush(context.Background()))
	assert.NotPanics(t, func() { m.WriteLog("fn", "ignored", "info") })
}

func TestWriteLog(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(&buf, "debug", nil)
	buf.Reset()

	m.WriteLog("sqlite:dumpLoop", "dumped", "DEBUG")
	m.WriteLog("setupDB", "migrating", "info")
	m.WriteLog("sqlite:Close", "dump failed", "ERROR")
	m.WriteLog("x", "odd level", "loud")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "level=DEBUG")
	assert.Contains(t, lines[0], "function=sqlite:dumpLoop")
	assert.Contains(t, lines[1], "level=INFO")
	assert.Contains(t, lines[2], "level=ERROR")
	assert.Contains(t, lines[3], "level=INFO")
}

type recordingHandler struct {
	level   slog.Level
	err     error
	records []slog.Record
	attrs   []slog.Attr
	groups  []string
}

func (h *recordingHandler) Enabled(_ context.Context, l slog.Level) bool { return l >= h.level }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.records = append(h.records, r)
	return h.err
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &cp
}

func (h *recordingHandler) WithGroup(name string) slog.Handler {
	cp := *h
	cp.groups = append(append([]string{}, h.groups...), name)
	return &cp
}

func TestMultiHandler_RoutesByLevel(t *testing.T) {
	verbose := &recordingHandler{level: slog.LevelDebug}
	quiet := &recordingHandler{level: slog.LevelWarn}
	logger := slog.New(NewMultiHandler(verbose, nil, quiet))

	logger.Debug("poll")
	logger.Warn("retry queued")

	assert.Len(t, verbose.records, 2)
	require.Len(t, quiet.records, 1)
	assert.Equal(t, "retry queued", quiet.records[0].Message)
}

func TestMultiHandler_Enabled(t *testing.T) {
	h := NewMultiHandler(&recordingHandler{level: slog.LevelWarn}, &recordingHandler{level: slog.LevelError})
	ctx := context.Background()

	assert.False(t, h.Enabled(ctx, slog.LevelInfo))
	assert.True(t, h.Enabled(ctx, slog.LevelWarn))
	assert.False(t, NewMultiHandler().Enabled(ctx, slog.LevelError))
	assert.False(t, NewMultiHandler(nil, nil).Enabled(ctx, slog.LevelError))
}

func TestMultiHandler_JoinsErrorsAndKeepsGoing(t *testing.T) {
	errA := errors.New("graylog down")
	errB := errors.New("otel down")
	a := &recordingHandler{err: errA}
	ok := &recordingHandler{}
	b := &recordingHandler{err: errB}
	h := NewMultiHandler(a, ok, b)

	err := h.Handle(context.Background(), slog.NewRecord(time.Time{}, slog.LevelInfo, "claimed", 0))
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Len(t, ok.records, 1)
}

func TestMultiHandler_AttrsAndGroups(t *testing.T) {
	inner := &recordingHandler{}
	h := NewMultiHandler(inner)

	withAttrs := h.WithAttrs([]slog.Attr{slog.String("game_id", "g1")}).(*MultiHandler)
	assert.Equal(t, "game_id", withAttrs.handlers[0].(*recordingHandler).attrs[0].Key)
	assert.Empty(t, inner.attrs)

	grouped := h.WithGroup("claim").(*MultiHandler)
	assert.Equal(t, []string{"claim"}, grouped.handlers[0].(*recordingHandler).groups)
	assert.Same(t, h, h.WithGroup(""))
}
