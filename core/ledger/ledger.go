// Package ledger owns the append-only, hash-chained trace of past
// observations. Append is the only mutation; entries are never edited or
// removed, and chain mismatches are surfaced, never repaired.
package ledger

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/crovia/wedge/core/errors"
	"github.com/crovia/wedge/core/fsx"
	"github.com/crovia/wedge/core/pointer"
	observe "github.com/crovia/wedge/core/schema/v1/observe"
)

const (
	SchemaID      = "crovia.trace.v1"
	SchemaVersion = "1.0.0"

	// GenesisChainHash seeds the chain before the first entry. It is a fixed,
	// public constant so any reader can recompute the chain from scratch.
	GenesisChainHash = "0000000000000000000000000000000000000000000000000000000000000000"

	DefaultFileName = "trace_ledger.jsonl"

	appendLockTimeout = 10 * time.Second
)

type Ledger struct {
	path string
}

func New(path string) *Ledger {
	return &Ledger{path: path}
}

func (l *Ledger) Path() string {
	return l.path
}

// ChainHash links entry n to all entries before it:
// H(chainHash(n-1) ‖ ":" ‖ observationHash(n)).
func ChainHash(prevChainHash, observationHash string) string {
	sum := sha256.Sum256([]byte(prevChainHash + ":" + observationHash))
	return hex.EncodeToString(sum[:])
}

// Append records the pointer as the next trace entry. The read-latest,
// allocate-sequence, write steps run under an exclusive file lock so that
// concurrent runs serialize; the line is fsynced whole or not written at all.
func (l *Ledger) Append(ctx context.Context, ptr observe.SignedPointer, now time.Time) (observe.TraceEntry, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	var appended observe.TraceEntry
	err := fsx.WithLock(l.path, appendLockTimeout, func() error {
		entries, readErr := l.readEntries()
		if readErr != nil {
			return readErr
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		prevChain := GenesisChainHash
		sequence := int64(0)
		if len(entries) > 0 {
			last := entries[len(entries)-1]
			prevChain = last.ChainHash
			sequence = last.Sequence + 1
		}
		appended = observe.TraceEntry{
			SchemaID:      SchemaID,
			SchemaVersion: SchemaVersion,
			Sequence:      sequence,
			RecordedAt:    now.UTC(),
			Pointer:       ptr,
			ChainHash:     ChainHash(prevChain, ptr.ObservationHash),
		}
		encoded, marshalErr := json.Marshal(appended)
		if marshalErr != nil {
			return fmt.Errorf("marshal trace entry: %w", marshalErr)
		}
		if writeErr := fsx.AppendLine(l.path, encoded, 0o600); writeErr != nil {
			return errors.Wrap(writeErr, errors.CategoryIOFailure, "ledger_append_failed",
				"check permissions on the trace ledger file", false)
		}
		return nil
	})
	if err != nil {
		if stderrors.Is(err, fsx.ErrLockTimeout) {
			return observe.TraceEntry{}, errors.Wrap(
				fmt.Errorf("trace ledger %s: %w", l.path, err),
				errors.CategoryStateContention, "ledger_lock_timeout",
				"another run holds the ledger lock; retry after it finishes", true)
		}
		return observe.TraceEntry{}, err
	}
	return appended, nil
}

// Latest returns the newest trace entry, or found=false for an empty or
// missing ledger.
func (l *Ledger) Latest() (observe.TraceEntry, bool, error) {
	entries, err := l.readEntries()
	if err != nil {
		return observe.TraceEntry{}, false, err
	}
	if len(entries) == 0 {
		return observe.TraceEntry{}, false, nil
	}
	return entries[len(entries)-1], true, nil
}

// Entries returns every trace entry in sequence order.
func (l *Ledger) Entries() ([]observe.TraceEntry, error) {
	return l.readEntries()
}

// Verify recomputes every chain hash from genesis and returns the number of
// entries checked. Any mismatch is a LedgerCorruption error naming the first
// bad sequence; the ledger is left untouched.
func (l *Ledger) Verify() (int, error) {
	entries, err := l.readEntries()
	if err != nil {
		return 0, err
	}
	if err := VerifyEntries(entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// VerifyEntries checks chain linkage over an in-memory entry list. Each
// pointer's observation hash is recomputed from its own fields, so mutating
// any field of any past pointer fails verification from that index onward.
func VerifyEntries(entries []observe.TraceEntry) error {
	prevChain := GenesisChainHash
	for i, entry := range entries {
		if entry.Sequence != int64(i) {
			return corruption(fmt.Errorf("trace entry %d has sequence %d", i, entry.Sequence), "sequence_mismatch")
		}
		if err := pointer.Verify(entry.Pointer); err != nil {
			return corruption(fmt.Errorf("pointer integrity at sequence %d: %w", entry.Sequence, err), "pointer_hash_mismatch")
		}
		expected := ChainHash(prevChain, entry.Pointer.ObservationHash)
		if entry.ChainHash != expected {
			return corruption(fmt.Errorf("chain hash mismatch at sequence %d", entry.Sequence), "chain_hash_mismatch")
		}
		prevChain = entry.ChainHash
	}
	return nil
}

func (l *Ledger) readEntries() ([]observe.TraceEntry, error) {
	// #nosec G304 -- ledger path is explicit local configuration.
	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(fmt.Errorf("open trace ledger: %w", err),
			errors.CategoryIOFailure, "ledger_open_failed", "check permissions on the trace ledger file", false)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	var entries []observe.TraceEntry
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var entry observe.TraceEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, corruption(fmt.Errorf("trace ledger parse line %d: %w", lineNo, err), "entry_unparseable")
		}
		if entry.SchemaID != "" && entry.SchemaID != SchemaID {
			return nil, corruption(fmt.Errorf("trace ledger line %d has schema %q", lineNo, entry.SchemaID), "schema_mismatch")
		}
		if entry.Sequence != int64(len(entries)) {
			return nil, corruption(fmt.Errorf("trace ledger line %d has sequence %d, want %d", lineNo, entry.Sequence, len(entries)), "sequence_mismatch")
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(fmt.Errorf("read trace ledger: %w", err),
			errors.CategoryIOFailure, "ledger_read_failed", "check the trace ledger file", false)
	}
	return entries, nil
}

func corruption(cause error, code string) error {
	return errors.Wrap(cause, errors.CategoryLedgerCorruption, code,
		"do not repair the ledger; investigate tampering", false)
}
