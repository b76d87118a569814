package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const sessionStamp = "20060102_150405"

// SessionLogPath names the log file of a session started at start, stamped
// in UTC so restarts sort lexically.
func SessionLogPath(dir, service string, start time.Time) string {
	return filepath.Join(dir, service+"."+start.UTC().Format(sessionStamp)+".log")
}

// OpenSessionLog creates dir if needed and opens the session's log file for
// appending. A file left by a session with the same stamp is kept as .old.
func OpenSessionLog(dir, service string, start time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	path := SessionLogPath(dir, service, start)
	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".old"); err != nil {
			return nil, fmt.Errorf("rotate %s: %w", path, err)
		}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}
