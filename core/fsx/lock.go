package fsx

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	lockRetry      = 25 * time.Millisecond
	lockStaleAfter = 2 * time.Minute
)

// ErrLockTimeout reports that the exclusive file lock could not be acquired
// within the bounded wait.
var ErrLockTimeout = errors.New("file lock timeout")

type lockMetadata struct {
	SchemaID  string `json:"schema_id"`
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
}

// WithLock runs fn while holding an exclusive cross-process lock file next to
// path. The lock scopes a read-then-append critical section; stale locks left
// by dead processes are recovered after a fixed age.
func WithLock(path string, timeout time.Duration, fn func() error) error {
	lockPath := path + ".lock"
	lockDir := filepath.Dir(lockPath)
	if lockDir != "." && lockDir != "" {
		if err := os.MkdirAll(lockDir, 0o750); err != nil {
			return fmt.Errorf("prepare lock directory: %w", err)
		}
	}
	start := time.Now()
	for {
		// #nosec G304 -- lock path is derived from the caller-provided target path.
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			metadata := lockMetadata{
				SchemaID:  "crovia.wedge.lock",
				PID:       os.Getpid(),
				CreatedAt: time.Now().UTC().Format(time.RFC3339),
			}
			if encoded, marshalErr := json.Marshal(metadata); marshalErr == nil {
				_, _ = lockFile.Write(append(encoded, '\n'))
			}
			_ = lockFile.Close()
			defer func() { _ = os.Remove(lockPath) }()
			return fn()
		}
		if !os.IsExist(err) {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if isStaleLock(lockPath, time.Now().UTC()) {
			_ = os.Remove(lockPath)
			continue
		}
		if time.Since(start) >= timeout {
			return ErrLockTimeout
		}
		time.Sleep(lockRetry)
	}
}

func isStaleLock(lockPath string, now time.Time) bool {
	// #nosec G304 -- lock path is derived from the caller-provided target path.
	content, err := os.ReadFile(lockPath)
	if err != nil {
		return false
	}
	var metadata lockMetadata
	if err := json.Unmarshal(content, &metadata); err != nil {
		info, statErr := os.Stat(lockPath)
		if statErr != nil {
			return false
		}
		return now.Sub(info.ModTime().UTC()) > lockStaleAfter
	}
	createdAt, err := time.Parse(time.RFC3339, strings.TrimSpace(metadata.CreatedAt))
	if err != nil {
		return false
	}
	return now.Sub(createdAt) > lockStaleAfter
}
