// Package serial maintains the shared push serial counter.
//
// The counter file is the canonical example of state that concurrent hook
// invocations race on: every increment must happen under the directory
// lock, and the write must be atomic so a crashed writer never leaves a
// half-written number behind.
package serial

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MyCarrier-DevOps/refspan/internal/domain"
)

// Logger defines the logging interface for the serial adapter.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
}

// FileCounter implements domain.SerialCounter over a single-integer file.
type FileCounter struct {
	path   string
	locker domain.Locker
	logger Logger
}

// NewFileCounter creates a FileCounter for the given file path, guarded by
// the given locker.
func NewFileCounter(path string, locker domain.Locker, log Logger) *FileCounter {
	return &FileCounter{
		path:   path,
		locker: locker,
		logger: log,
	}
}

// Next increments the counter under the lock and returns the new value.
// A missing file starts the counter at zero; the first returned value is 1.
func (c *FileCounter) Next(ctx context.Context) (uint64, error) {
	if err := c.locker.Acquire(ctx); err != nil {
		return 0, err
	}
	defer func() {
		if err := c.locker.Release(); err != nil {
			c.logger.Warn(ctx, "failed to release serial lock", map[string]interface{}{
				"path":  c.path,
				"error": err.Error(),
			})
		}
	}()

	current, err := c.read()
	if err != nil {
		return 0, err
	}

	next := current + 1
	if err := c.write(next); err != nil {
		return 0, err
	}

	c.logger.Debug(ctx, "advanced push serial", map[string]interface{}{
		"path":   c.path,
		"serial": next,
	})

	return next, nil
}

func (c *FileCounter) read() (uint64, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read serial file %s: %w", c.path, err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, nil
	}

	value, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("serial file %s is corrupt: %w", c.path, err)
	}
	return value, nil
}

// write replaces the counter file via a temp file and rename, so readers
// never observe a partial write.
func (c *FileCounter) write(value uint64) error {
	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".serial-*")
	if err != nil {
		return fmt.Errorf("failed to create temp serial file: %w", err)
	}
	tmpName := tmp.Name()

	_, err = fmt.Fprintf(tmp, "%d\n", value)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp serial file: %w", err)
	}

	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace serial file %s: %w", c.path, err)
	}
	return nil
}
