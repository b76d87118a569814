package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionStart = time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

func TestSessionLogPath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("logs", "satoshigo.20260212_213836.log"),
		SessionLogPath("logs", ServiceName, sessionStart))

	// local times are stamped in UTC
	berlin := time.FixedZone("CET", 3600)
	assert.Equal(t,
		filepath.Join("logs", "satoshigo.20260212_213836.log"),
		SessionLogPath("logs", ServiceName, sessionStart.In(berlin)))
}

func TestOpenSessionLog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")

	f, err := OpenSessionLog(dir, ServiceName, sessionStart)
	require.NoError(t, err)
	_, err = f.WriteString("first run\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = OpenSessionLog(dir, ServiceName, sessionStart)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	path := SessionLogPath(dir, ServiceName, sessionStart)
	old, err := os.ReadFile(path + ".old")
	require.NoError(t, err)
	assert.Equal(t, "first run\n", string(old))

	fresh, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, fresh)
}

func TestOpenSessionLog_DirIsFile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "logs")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := OpenSessionLog(blocker, ServiceName, sessionStart)
	assert.ErrorContains(t, err, "create logs dir")
}
