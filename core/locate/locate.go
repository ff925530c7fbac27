// Package locate walks a repository root and classifies evidence artifacts
// by the fixed v1 naming convention. Locating never interprets artifact
// content beyond hashing it; a filesystem failure is a ScanError, never
// reported as absence.
package locate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/crovia/wedge/core/errors"
	observe "github.com/crovia/wedge/core/schema/v1/observe"
)

const ReservedDir = ".crovia"

// Pointer-file candidates in priority order; the first one found supplies the
// structured declaration the verdict engine inspects.
var pointerFileNames = []string{
	"EVIDENCE.json",
	"trust_bundle.v1.json",
	"cep_capsule.v1.json",
	"crovia_manifest.json",
}

var certificateNames = []string{
	filepath.Join(ReservedDir, "cfic_certificate.json"),
	"CFIC.json",
}

const gapIndexPath = "gaps/gap_index.jsonl"

// Files the engine itself writes under the reserved directory; these are
// never reported as Unknown artifacts.
var reservedOutputs = map[string]bool{
	"cfic_certificate.json": true,
	"badge.svg":             true,
	"badge_metadata.json":   true,
	"trace_ledger.jsonl":    true,
}

type Scan struct {
	Root            string
	Artifacts       []observe.EvidenceArtifact
	PointerRaw      []byte
	PointerPath     string
	CertificateRaw  []byte
	CertificatePath string
	GapSeverities   []float64
	Checked         []string
}

// Run scans root and returns every located evidence artifact. The returned
// scan is input to the pure verdict engine; Run performs all filesystem I/O.
func Run(root string) (Scan, error) {
	info, err := os.Stat(root)
	if err != nil {
		return Scan{}, errors.Wrap(fmt.Errorf("scan root %s: %w", root, err),
			errors.CategoryScanFailed, "root_inaccessible", "verify the scan root exists and is readable", false)
	}
	if !info.IsDir() {
		return Scan{}, errors.Wrap(fmt.Errorf("scan root %s is not a directory", root),
			errors.CategoryScanFailed, "root_not_directory", "point --root at a repository checkout", false)
	}

	scan := Scan{Root: root}

	for _, name := range pointerFileNames {
		scan.Checked = append(scan.Checked, name)
		raw, hash, found, err := readArtifact(filepath.Join(root, name))
		if err != nil {
			return Scan{}, err
		}
		if !found {
			continue
		}
		scan.Artifacts = append(scan.Artifacts, observe.EvidenceArtifact{
			Kind:        observe.KindPointerFile,
			Path:        name,
			ContentHash: hash,
		})
		if scan.PointerRaw == nil {
			scan.PointerRaw = raw
			scan.PointerPath = name
		}
	}

	if err := collectReceipts(root, &scan); err != nil {
		return Scan{}, err
	}

	for _, name := range certificateNames {
		scan.Checked = append(scan.Checked, filepath.ToSlash(name))
		raw, hash, found, err := readArtifact(filepath.Join(root, name))
		if err != nil {
			return Scan{}, err
		}
		if !found {
			continue
		}
		scan.Artifacts = append(scan.Artifacts, observe.EvidenceArtifact{
			Kind:        observe.KindCertificateFile,
			Path:        filepath.ToSlash(name),
			ContentHash: hash,
		})
		if scan.CertificateRaw == nil {
			scan.CertificateRaw = raw
			scan.CertificatePath = filepath.ToSlash(name)
		}
	}

	if err := collectUnknown(root, &scan); err != nil {
		return Scan{}, err
	}
	if err := collectGapIndex(root, &scan); err != nil {
		return Scan{}, err
	}

	sort.Slice(scan.Artifacts, func(i, j int) bool {
		return scan.Artifacts[i].Path < scan.Artifacts[j].Path
	})
	sort.Strings(scan.Checked)
	return scan, nil
}

func readArtifact(path string) (raw []byte, hash string, found bool, err error) {
	// #nosec G304 -- artifact path is a fixed name under the caller-provided root.
	raw, readErr := os.ReadFile(path)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return nil, "", false, nil
		}
		return nil, "", false, errors.Wrap(fmt.Errorf("read artifact %s: %w", path, readErr),
			errors.CategoryScanFailed, "artifact_unreadable", "fix artifact permissions before rerunning", false)
	}
	sum := sha256.Sum256(raw)
	return raw, hex.EncodeToString(sum[:]), true, nil
}

func collectReceipts(root string, scan *Scan) error {
	scan.Checked = append(scan.Checked, "receipts*.ndjson")
	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			name := entry.Name()
			if name == ".git" || (name == ReservedDir && filepath.Dir(path) == root) {
				return filepath.SkipDir
			}
			return nil
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "receipts") || !strings.HasSuffix(name, ".ndjson") {
			return nil
		}
		_, hash, found, readErr := readArtifact(path)
		if readErr != nil {
			return readErr
		}
		if !found {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = name
		}
		scan.Artifacts = append(scan.Artifacts, observe.EvidenceArtifact{
			Kind:        observe.KindPointerFile,
			Path:        filepath.ToSlash(rel),
			ContentHash: hash,
		})
		return nil
	})
	if walkErr != nil {
		if classified := errors.CategoryOf(walkErr); classified != "" {
			return walkErr
		}
		return errors.Wrap(fmt.Errorf("walk %s: %w", root, walkErr),
			errors.CategoryScanFailed, "walk_failed", "verify directory permissions under the scan root", false)
	}
	return nil
}

func collectUnknown(root string, scan *Scan) error {
	reserved := filepath.Join(root, ReservedDir)
	entries, err := os.ReadDir(reserved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(fmt.Errorf("read reserved directory: %w", err),
			errors.CategoryScanFailed, "reserved_dir_unreadable", "fix permissions on the reserved directory", false)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			if name == "verdicts" {
				continue
			}
			// Unexpected subdirectories are reported by name, not descended into.
			scan.Artifacts = append(scan.Artifacts, observe.EvidenceArtifact{
				Kind: observe.KindUnknown,
				Path: filepath.ToSlash(filepath.Join(ReservedDir, name)),
			})
			continue
		}
		if reservedOutputs[name] || strings.HasSuffix(name, ".lock") {
			continue
		}
		if strings.HasPrefix(name, "PTR-") && strings.HasSuffix(name, ".json") {
			continue
		}
		_, hash, found, readErr := readArtifact(filepath.Join(reserved, name))
		if readErr != nil {
			return readErr
		}
		if !found {
			continue
		}
		scan.Artifacts = append(scan.Artifacts, observe.EvidenceArtifact{
			Kind:        observe.KindUnknown,
			Path:        filepath.ToSlash(filepath.Join(ReservedDir, name)),
			ContentHash: hash,
		})
	}
	return nil
}

func collectGapIndex(root string, scan *Scan) error {
	scan.Checked = append(scan.Checked, gapIndexPath)
	path := filepath.Join(root, filepath.FromSlash(gapIndexPath))
	// #nosec G304 -- gap index path is a fixed name under the caller-provided root.
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(fmt.Errorf("read gap index: %w", err),
			errors.CategoryScanFailed, "gap_index_unreadable", "fix permissions on gaps/gap_index.jsonl", false)
	}
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var record struct {
			Severity float64 `json:"severity"`
		}
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			continue
		}
		scan.GapSeverities = append(scan.GapSeverities, record.Severity)
	}
	return nil
}
