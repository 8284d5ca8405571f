// Package singleton keeps a single running instance per PID file: a new
// instance terminates the one recorded in the file and records itself.
package singleton

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNoPID is returned by ReadPID when the file holds no usable PID.
var ErrNoPID = errors.New("no pid recorded")

// Guard owns a PID file for the lifetime of the process.
type Guard struct {
	path   string
	pid    int
	logger *slog.Logger
}

// Acquire terminates the instance recorded in path (if any) and records
// the current process. Failing to signal the previous instance is logged,
// not returned.
func Acquire(path string, logger *slog.Logger) (*Guard, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "singleton")
	self := os.Getpid()

	if old, err := ReadPID(path); err == nil && old != self {
		if err := terminate(old); err != nil {
			logger.Info("previous instance not found", "pid", old, "error", err)
		} else {
			logger.Warn("previous instance terminated", "pid", old)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating pid directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(self)), 0o644); err != nil {
		return nil, fmt.Errorf("writing pid file: %w", err)
	}

	return &Guard{path: path, pid: self, logger: logger}, nil
}

// Release removes the PID file if it still records this process.
func (g *Guard) Release() error {
	if pid, err := ReadPID(g.path); err != nil || pid != g.pid {
		return nil
	}
	if err := os.Remove(g.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing pid file: %w", err)
	}
	return nil
}

// Path returns the PID file path.
func (g *Guard) Path() string { return g.path }

// ReadPID returns the PID recorded in path.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNoPID
		}
		return 0, fmt.Errorf("reading pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, ErrNoPID
	}
	return pid, nil
}

// Running reports whether the process recorded in path is alive.
func Running(path string) (pid int, alive bool) {
	pid, err := ReadPID(path)
	if err != nil {
		return 0, false
	}
	return pid, isAlive(pid)
}
