// Package pointer builds the signed observation record exported per run.
// Build is pure: the caller supplies the clock and provenance, persistence
// lives in Save.
package pointer

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/crovia/wedge/core/canon"
	"github.com/crovia/wedge/core/errors"
	"github.com/crovia/wedge/core/fsx"
	observe "github.com/crovia/wedge/core/schema/v1/observe"
	"github.com/crovia/wedge/core/sign"
)

const (
	Schema  = "crovia.pointer.v1"
	Version = "1.0.0"
)

type Provenance struct {
	Repository string
	CommitSHA  string
	Branch     string
}

type Options struct {
	Now     time.Time
	SignKey ed25519.PrivateKey
}

// observation is the canonical payload bound by ObservationHash. PointerID
// and the hash itself are derived from it and excluded; JCS canonicalization
// makes the digest independent of field order.
type observation struct {
	Timestamp  string   `json:"timestamp"`
	Repository string   `json:"repository"`
	Commit     string   `json:"commit"`
	Status     string   `json:"status"`
	Reason     string   `json:"reason"`
	Evidence   []string `json:"evidence"`
	Omissions  int      `json:"omissions"`
}

// Build constructs the SignedPointer for a finalized verdict. Exactly one
// pointer is produced per run.
func Build(v observe.Verdict, prov Provenance, opts Options) (observe.SignedPointer, error) {
	now := opts.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	observedAt := now.Format(time.RFC3339)

	evidence := append([]string{}, v.Primary...)
	sort.Strings(evidence)

	hash, err := canon.DigestValue(observation{
		Timestamp:  observedAt,
		Repository: prov.Repository,
		Commit:     prov.CommitSHA,
		Status:     string(v.Status),
		Reason:     string(v.Reason),
		Evidence:   evidence,
		Omissions:  v.CriticalOmissions,
	})
	if err != nil {
		return observe.SignedPointer{}, fmt.Errorf("hash observation: %w", err)
	}

	ptr := observe.SignedPointer{
		PointerID:         fmt.Sprintf("PTR-%s-%s", now.Format("20060102"), strings.ToUpper(hash[:12])),
		Schema:            Schema,
		Version:           Version,
		ObservedAt:        observedAt,
		Repository:        prov.Repository,
		CommitSHA:         prov.CommitSHA,
		Branch:            prov.Branch,
		Status:            v.Status,
		Reason:            v.Reason,
		EvidenceFound:     evidence,
		CriticalOmissions: v.CriticalOmissions,
		ObservationHash:   hash,
	}

	if opts.SignKey != nil {
		signature, signErr := sign.SignDigestHex(opts.SignKey, hash)
		if signErr != nil {
			return observe.SignedPointer{}, fmt.Errorf("sign observation: %w", signErr)
		}
		ptr.Signature = signature.Sig
		ptr.SignerKeyID = signature.KeyID
	}

	ptr.RegistryEligible = v.Status == observe.StatusGreen && Verify(ptr) == nil
	return ptr, nil
}

// Verify recomputes the observation hash from the pointer's own fields and
// reports any mismatch. A pointer that fails this check must not be trusted.
func Verify(ptr observe.SignedPointer) error {
	evidence := append([]string{}, ptr.EvidenceFound...)
	sort.Strings(evidence)
	computed, err := canon.DigestValue(observation{
		Timestamp:  ptr.ObservedAt,
		Repository: ptr.Repository,
		Commit:     ptr.CommitSHA,
		Status:     string(ptr.Status),
		Reason:     string(ptr.Reason),
		Evidence:   evidence,
		Omissions:  ptr.CriticalOmissions,
	})
	if err != nil {
		return fmt.Errorf("recompute observation hash: %w", err)
	}
	if computed != ptr.ObservationHash {
		return fmt.Errorf("observation hash mismatch: computed %s, recorded %s", computed, ptr.ObservationHash)
	}
	return nil
}

// VerifySignature checks the pointer's detached signature against the
// recomputed observation hash.
func VerifySignature(ptr observe.SignedPointer, pub ed25519.PublicKey) error {
	if ptr.Signature == "" {
		return fmt.Errorf("pointer is unsigned")
	}
	if err := Verify(ptr); err != nil {
		return err
	}
	ok, err := sign.VerifyDigestHex(pub, sign.Signature{
		Alg:          sign.AlgEd25519,
		KeyID:        ptr.SignerKeyID,
		Sig:          ptr.Signature,
		SignedDigest: ptr.ObservationHash,
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("pointer signature invalid")
	}
	return nil
}

// Save persists the pointer under dir as <PointerID>.json. An existing file
// with the same id but a different observation hash is a generation
// collision: fatal, never silently retried.
func Save(ptr observe.SignedPointer, dir string) (string, error) {
	path := filepath.Join(dir, ptr.PointerID+".json")
	// #nosec G304 -- pointer path is derived from the engine output directory.
	if existing, err := os.ReadFile(path); err == nil {
		var prior observe.SignedPointer
		if unmarshalErr := json.Unmarshal(existing, &prior); unmarshalErr != nil || prior.ObservationHash != ptr.ObservationHash {
			return "", errors.Wrap(
				fmt.Errorf("pointer id %s already exists with different content", ptr.PointerID),
				errors.CategoryHashCollision, "pointer_id_collision",
				"refusing to overwrite a conflicting pointer record", false)
		}
	} else if !os.IsNotExist(err) {
		return "", errors.Wrap(fmt.Errorf("probe pointer path: %w", err),
			errors.CategoryIOFailure, "pointer_probe_failed", "check output directory permissions", false)
	}

	encoded, err := json.MarshalIndent(ptr, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal pointer: %w", err)
	}
	encoded = append(encoded, '\n')
	if err := fsx.WriteFileAtomic(path, encoded, 0o600); err != nil {
		return "", errors.Wrap(fmt.Errorf("write pointer: %w", err),
			errors.CategoryIOFailure, "pointer_write_failed", "check output directory permissions", false)
	}
	return path, nil
}

// Load reads a persisted pointer record.
func Load(path string) (observe.SignedPointer, error) {
	// #nosec G304 -- pointer path is explicit local user input.
	raw, err := os.ReadFile(path)
	if err != nil {
		return observe.SignedPointer{}, fmt.Errorf("read pointer: %w", err)
	}
	var ptr observe.SignedPointer
	if err := json.Unmarshal(raw, &ptr); err != nil {
		return observe.SignedPointer{}, fmt.Errorf("parse pointer: %w", err)
	}
	if ptr.Schema != Schema {
		return observe.SignedPointer{}, fmt.Errorf("unsupported pointer schema: %q", ptr.Schema)
	}
	return ptr, nil
}
