package fsx

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const appendLockTimeout = 30 * time.Second

// AppendLineLocked appends exactly one record line to a file under the
// cross-process lock. A trailing newline is added and the file is fsynced
// before returning, so a subsequent reader sees the whole line or nothing.
func AppendLineLocked(path string, line []byte, mode os.FileMode) error {
	return WithLock(path, appendLockTimeout, func() error {
		return AppendLine(path, line, mode)
	})
}

// AppendLine appends one record line without locking. Callers already inside
// a WithLock critical section use this to avoid re-acquiring the same lock.
func AppendLine(path string, line []byte, mode os.FileMode) error {
	parent := filepath.Dir(path)
	if parent != "." && parent != "" {
		if err := os.MkdirAll(parent, 0o750); err != nil {
			return fmt.Errorf("create append directory: %w", err)
		}
	}
	payload := make([]byte, 0, len(line)+1)
	payload = append(payload, line...)
	payload = append(payload, '\n')

	// #nosec G304 -- append path is explicit local caller input.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, mode)
	if err != nil {
		return fmt.Errorf("open append file: %w", err)
	}
	defer func() { _ = file.Close() }()
	if _, err := file.Write(payload); err != nil {
		return fmt.Errorf("append file line: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync append file: %w", err)
	}
	syncDirectory(parent)
	return nil
}
