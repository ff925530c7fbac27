package fsx

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestWriteFileAtomicCreatesParent(t *testing.T) {
	workDir := t.TempDir()
	targetPath := filepath.Join(workDir, "nested", "out.json")
	if err := WriteFileAtomic(targetPath, []byte(`{"ok":true}`), 0o600); err != nil {
		t.Fatalf("atomic write: %v", err)
	}
	raw, err := os.ReadFile(targetPath)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if string(raw) != `{"ok":true}` {
		t.Fatalf("unexpected content: %s", string(raw))
	}
}

func TestWriteFileAtomicReplacesExisting(t *testing.T) {
	workDir := t.TempDir()
	targetPath := filepath.Join(workDir, "out.json")
	if err := WriteFileAtomic(targetPath, []byte("first"), 0o600); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteFileAtomic(targetPath, []byte("second"), 0o600); err != nil {
		t.Fatalf("second write: %v", err)
	}
	raw, err := os.ReadFile(targetPath)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if string(raw) != "second" {
		t.Fatalf("unexpected content: %s", string(raw))
	}
	entries, err := os.ReadDir(workDir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected no leftover temp files, found %d entries", len(entries))
	}
}

func TestAppendLineLockedWritesOneLinePerCall(t *testing.T) {
	workDir := t.TempDir()
	targetPath := filepath.Join(workDir, "trace.jsonl")
	if err := AppendLineLocked(targetPath, []byte(`{"sequence":0}`), 0o600); err != nil {
		t.Fatalf("append first line: %v", err)
	}
	if err := AppendLineLocked(targetPath, []byte(`{"sequence":1}`), 0o600); err != nil {
		t.Fatalf("append second line: %v", err)
	}
	raw, err := os.ReadFile(targetPath)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	expected := "{\"sequence\":0}\n{\"sequence\":1}\n"
	if string(raw) != expected {
		t.Fatalf("unexpected append output:\n%s", string(raw))
	}
}

func TestAppendLineLockedConcurrentIntegrity(t *testing.T) {
	workDir := t.TempDir()
	targetPath := filepath.Join(workDir, "concurrent.jsonl")
	const writers = 100
	var group sync.WaitGroup
	group.Add(writers)
	for index := 0; index < writers; index++ {
		line := []byte(fmt.Sprintf(`{"idx":%d}`, index))
		go func(payload []byte) {
			defer group.Done()
			if err := AppendLineLocked(targetPath, payload, 0o600); err != nil {
				t.Errorf("append line: %v", err)
			}
		}(line)
	}
	group.Wait()

	raw, err := os.ReadFile(targetPath)
	if err != nil {
		t.Fatalf("read concurrent target: %v", err)
	}
	lines := 0
	for _, entry := range strings.Split(strings.TrimRight(string(raw), "\n"), "\n") {
		lines++
		var parsed map[string]any
		if err := json.Unmarshal([]byte(entry), &parsed); err != nil {
			t.Fatalf("invalid json line %d: %v (%q)", lines, err, entry)
		}
	}
	if lines != writers {
		t.Fatalf("unexpected line count: got=%d want=%d", lines, writers)
	}
}

func TestWithLockTimesOutWhileHeld(t *testing.T) {
	workDir := t.TempDir()
	targetPath := filepath.Join(workDir, "trace.jsonl")
	lockPath := targetPath + ".lock"
	metadata := fmt.Sprintf(`{"schema_id":"crovia.wedge.lock","pid":%d,"created_at":%q}`, os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(lockPath, []byte(metadata+"\n"), 0o600); err != nil {
		t.Fatalf("seed lock: %v", err)
	}
	err := WithLock(targetPath, 100*time.Millisecond, func() error { return nil })
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected lock timeout, got %v", err)
	}
}

func TestWithLockRecoversStaleLock(t *testing.T) {
	workDir := t.TempDir()
	targetPath := filepath.Join(workDir, "trace.jsonl")
	lockPath := targetPath + ".lock"
	stale := time.Now().UTC().Add(-10 * time.Minute).Format(time.RFC3339)
	metadata := fmt.Sprintf(`{"schema_id":"crovia.wedge.lock","pid":1,"created_at":%q}`, stale)
	if err := os.WriteFile(lockPath, []byte(metadata+"\n"), 0o600); err != nil {
		t.Fatalf("seed stale lock: %v", err)
	}
	ran := false
	if err := WithLock(targetPath, time.Second, func() error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("expected stale lock recovery, got %v", err)
	}
	if !ran {
		t.Fatal("critical section did not run")
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Fatal("lock file should be removed after release")
	}
}
