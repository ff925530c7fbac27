// Package testutil holds fixture helpers shared by package tests.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/crovia/wedge/core/canon"
)

// CompleteDeclaration returns an evidence declaration carrying every required
// provenance field with a self-consistent content_sha256.
func CompleteDeclaration(t *testing.T) []byte {
	t.Helper()
	fields := map[string]any{
		"schema":       "crovia.evidence.v1",
		"dataset_id":   "ds-001",
		"license":      "CC-BY-4.0",
		"provenance":   map[string]any{"source": "corpus-a"},
		"collected_at": "2026-08-01T00:00:00Z",
	}
	digest, err := canon.DigestValue(fields)
	if err != nil {
		t.Fatalf("digest declaration: %v", err)
	}
	fields["content_sha256"] = digest
	raw, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("marshal declaration: %v", err)
	}
	return raw
}

// WriteCompleteDeclaration writes EVIDENCE.json under root.
func WriteCompleteDeclaration(t *testing.T, root string) {
	t.Helper()
	WriteFile(t, filepath.Join(root, "EVIDENCE.json"), CompleteDeclaration(t))
}

// TamperDeclaration flips one field of a declaration without refreshing its
// content_sha256, producing a document that fails the hash self-check.
func TamperDeclaration(t *testing.T, raw []byte) []byte {
	t.Helper()
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal declaration: %v", err)
	}
	fields["dataset_id"] = "tampered"
	mutated, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("marshal tampered declaration: %v", err)
	}
	return mutated
}

// WriteFile writes content at path, creating parent directories.
func WriteFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("create parent directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// MustReadFile reads path or fails the test.
func MustReadFile(t *testing.T, path string) []byte {
	t.Helper()
	content, err := os.ReadFile(path) // #nosec G304 -- test helper for controlled paths.
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return content
}
