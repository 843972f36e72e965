// Package lock provides mutual exclusion across concurrent hook processes.
//
// The primitive is atomic directory creation: mkdir either creates the
// directory or fails because it exists, so at most one process observes
// success for a given path at a time. The only persisted trace of a held
// lock is the directory itself.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/MyCarrier-DevOps/refspan/internal/domain"
)

// Logger defines the logging interface for the lock adapter.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
}

// DirLock implements domain.Locker over a lock directory.
//
// Acquisition is a single non-blocking mkdir by default. A bounded retry
// policy (fixed interval until a deadline) can be enabled with WithRetry;
// both policies are explicit because neither suits every caller: a hook
// bumping a counter wants to wait briefly, a hook that can skip its
// critical section wants Busy immediately.
type DirLock struct {
	path     string
	interval time.Duration
	timeout  time.Duration
	logger   Logger

	mu      sync.Mutex
	held    bool
	sigStop func()
}

// Option configures a DirLock.
type Option func(*DirLock)

// WithRetry enables bounded retrying: one acquisition attempt per interval
// until timeout has elapsed. Non-positive values fall back to the defaults
// (one second, five minutes).
func WithRetry(interval, timeout time.Duration) Option {
	return func(l *DirLock) {
		if interval <= 0 {
			interval = domain.DefaultLockRetryIntervalSeconds * time.Second
		}
		if timeout <= 0 {
			timeout = domain.DefaultLockRetryTimeoutSeconds * time.Second
		}
		l.interval = interval
		l.timeout = timeout
	}
}

// New creates a DirLock for the given directory path.
// The lock is not acquired until Acquire is called.
func New(path string, log Logger, opts ...Option) *DirLock {
	l := &DirLock{
		path:   path,
		logger: log,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire attempts to take the lock.
// Returns domain.ErrLockBusy when another process holds it and the retry
// policy (if any) is exhausted. Any other mkdir failure is returned as-is:
// an unwritable lock directory is a configuration problem, not contention.
func (l *DirLock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return nil
	}

	err := l.tryAcquire(ctx)
	if err == nil || !errors.Is(err, domain.ErrLockBusy) || l.interval == 0 {
		return err
	}

	deadline := time.Now().Add(l.timeout)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Debug(ctx, "lock busy, retrying", map[string]interface{}{
		"path":     l.path,
		"interval": l.interval.String(),
		"timeout":  l.timeout.String(),
	})

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		err = l.tryAcquire(ctx)
		if err == nil || !errors.Is(err, domain.ErrLockBusy) {
			return err
		}
	}

	return fmt.Errorf("%w: %s (gave up after %s)", domain.ErrLockBusy, l.path, l.timeout)
}

// tryAcquire performs one mkdir attempt. Caller holds l.mu.
func (l *DirLock) tryAcquire(ctx context.Context) error {
	if err := os.Mkdir(l.path, 0o755); err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", domain.ErrLockBusy, l.path)
		}
		return fmt.Errorf("failed to create lock directory %s: %w", l.path, err)
	}

	l.held = true
	l.sigStop = l.installSignalCleanup(ctx)
	l.logger.Debug(ctx, "lock acquired", map[string]interface{}{
		"path": l.path,
	})
	return nil
}

// Release frees the lock if this process holds it.
// Releasing an unheld lock is a no-op: a process that failed to acquire
// must never remove a directory belonging to another holder, and cleanup
// paths may call Release more than once.
func (l *DirLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return nil
	}

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock directory %s: %w", l.path, err)
	}
	l.held = false
	if l.sigStop != nil {
		l.sigStop()
		l.sigStop = nil
	}
	return nil
}

// Held reports whether this process currently holds the lock.
func (l *DirLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// installSignalCleanup removes the lock directory when the process receives
// SIGINT, SIGTERM or SIGHUP while the lock is held, then re-raises the
// signal so the default disposition still terminates the process. Release
// is gated on the held flag, so a stale handler from a racing goroutine can
// never remove a directory this process does not own.
//
// Caller holds l.mu. The returned stop function uninstalls the handler;
// Release calls it on the normal exit path.
func (l *DirLock) installSignalCleanup(ctx context.Context) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			if err := l.Release(); err != nil {
				l.logger.Warn(ctx, "failed to release lock on signal", map[string]interface{}{
					"path":  l.path,
					"error": err.Error(),
				})
			}
			signal.Stop(sigCh)
			if s, ok := sig.(syscall.Signal); ok {
				_ = syscall.Kill(syscall.Getpid(), s)
			}
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
