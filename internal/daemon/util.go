package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/apps78/cotune-bridge/internal/logger"
)

// IsDaemonRunning reports whether a daemon answers ping on socketPath
func IsDaemonRunning(ctx context.Context, socketPath string, log logger.Logger) bool {
	log = logger.OrDiscard(log)
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		log.Debug("Daemon socket file does not exist")
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	running, detail := NewClient(socketPath).IsRunning(ctx)
	if !running {
		log.WithField("detail", detail).Debug("Daemon not responding")
	}
	return running
}

// removeStaleSocket deletes a socket file nobody is listening on
func removeStaleSocket(path string, log logger.Logger) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	conn, err := net.DialTimeout("unix", path, 500*time.Millisecond)
	if err == nil {
		conn.Close()
		return fmt.Errorf("%w on %s", ErrAlreadyRunning, path)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale socket %s: %w", path, err)
	}
	log.Debug("Removed stale socket file")
	return nil
}

// sanitize replaces control characters other than newline and tab
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || unicode.IsPrint(r) {
			return r
		}
		return '?'
	}, s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
