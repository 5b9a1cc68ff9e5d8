// Package scanner walks the ad inventory in batches, applies the moderation
// pipeline per ad and records violations. A single-instance run lock
// prevents concurrent scans.
package scanner

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned by Acquire when another live scan holds the
// run lock. Callers treat this as an expected outcome, not a failure.
var ErrAlreadyRunning = errors.New("scan already running")

// lockInfo is the JSON document written into the lock file.
type lockInfo struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// LockStatus describes the current lock holder for the status command.
type LockStatus struct {
	Held       bool
	PID        int
	AcquiredAt time.Time
	Age        time.Duration
	Stale      bool
}

// Coordinator guards cross-process mutual exclusion for scan runs with a
// file marker. Locks older than staleAfter are treated as abandoned by a
// crashed run and replaced. The clock is injectable so staleness is
// testable without real waits.
type Coordinator struct {
	path       string
	staleAfter time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewCoordinator creates a Coordinator using the wall clock.
func NewCoordinator(path string, staleAfter time.Duration, logger *zap.Logger) *Coordinator {
	return NewCoordinatorWithClock(path, staleAfter, time.Now, logger)
}

// NewCoordinatorWithClock creates a Coordinator with an injected clock.
func NewCoordinatorWithClock(path string, staleAfter time.Duration, now func() time.Time, logger *zap.Logger) *Coordinator {
	return &Coordinator{path: path, staleAfter: staleAfter, now: now, logger: logger}
}

// Acquire takes the run lock. It returns ErrAlreadyRunning when a live lock
// exists; a stale lock is removed and replaced.
func (c *Coordinator) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(c.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			info := lockInfo{PID: os.Getpid(), AcquiredAt: c.now()}
			encErr := json.NewEncoder(f).Encode(info)
			closeErr := f.Close()
			if encErr != nil || closeErr != nil {
				_ = os.Remove(c.path)
				return fmt.Errorf("write lock file: %w", errors.Join(encErr, closeErr))
			}
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("create lock file: %w", err)
		}

		existing, readErr := c.read()
		if readErr != nil {
			// Unparseable lock files count as stale; a crashed writer may
			// have left a truncated document behind.
			c.logger.Warn("removing unreadable lock file", zap.String("path", c.path), zap.Error(readErr))
			_ = os.Remove(c.path)
			continue
		}
		age := c.now().Sub(existing.AcquiredAt)
		if age < c.staleAfter {
			return ErrAlreadyRunning
		}
		c.logger.Warn("removing stale lock",
			zap.Int("pid", existing.PID),
			zap.Duration("age", age),
			zap.Duration("stale_after", c.staleAfter))
		_ = os.Remove(c.path)
	}
	return fmt.Errorf("lock %s contended after stale cleanup", c.path)
}

// Release removes the lock file. It is idempotent and safe to call on every
// exit path.
func (c *Coordinator) Release() {
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		c.logger.Error("release lock", zap.String("path", c.path), zap.Error(err))
	}
}

// Status reports the current lock holder, if any.
func (c *Coordinator) Status() (LockStatus, error) {
	info, err := c.read()
	if err != nil {
		if os.IsNotExist(err) {
			return LockStatus{}, nil
		}
		return LockStatus{}, err
	}
	age := c.now().Sub(info.AcquiredAt)
	return LockStatus{
		Held:       true,
		PID:        info.PID,
		AcquiredAt: info.AcquiredAt,
		Age:        age,
		Stale:      age >= c.staleAfter,
	}, nil
}

func (c *Coordinator) read() (lockInfo, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return lockInfo{}, err
	}
	var info lockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return lockInfo{}, fmt.Errorf("parse lock file: %w", err)
	}
	return info, nil
}
