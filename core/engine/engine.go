// Package engine runs one full observation: scan, certificate check, verdict,
// pointer, trace append, badge, verdict record. It composes the core packages
// and owns the on-disk layout of the reserved output directory.
package engine

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/crovia/wedge/core/badge"
	"github.com/crovia/wedge/core/certify"
	"github.com/crovia/wedge/core/fsx"
	"github.com/crovia/wedge/core/ledger"
	"github.com/crovia/wedge/core/locate"
	"github.com/crovia/wedge/core/pointer"
	observe "github.com/crovia/wedge/core/schema/v1/observe"
	"github.com/crovia/wedge/core/verdict"
)

const (
	VerdictSchema = "crovia.verdict.v1"

	verdictsDirName  = "verdicts"
	verdictLatest    = "verdict_latest.json"
	verdictIndexName = "verdict_index.jsonl"
)

// Options configure a single observation run. Zero values mean: scan the
// current directory, derive provenance from the GitHub Actions environment,
// generate both badge and pointer, leave the pointer unsigned.
type Options struct {
	Root       string
	Repository string
	CommitSHA  string
	Branch     string
	Context    string

	GenerateBadge   bool
	GeneratePointer bool

	// SignKey, when set, produces signed pointers. TrustedCertKey pins the
	// certificate verification key instead of trusting the embedded one.
	SignKey        ed25519.PrivateKey
	TrustedCertKey ed25519.PublicKey

	Now    time.Time
	Logger zerolog.Logger
}

// Result is everything one observation produced, including the paths of the
// files written so callers can report them.
type Result struct {
	RunID       string                 `json:"run_id"`
	Verdict     observe.Verdict        `json:"verdict"`
	BadgeState  observe.BadgeState     `json:"badge_state"`
	Certificate *observe.Certificate   `json:"certificate,omitempty"`
	Pointer     *observe.SignedPointer `json:"pointer,omitempty"`
	TraceEntry  observe.TraceEntry     `json:"trace_entry"`
	Checked     []string               `json:"artifacts_checked"`

	VerdictPath string `json:"verdict_path"`
	PointerPath string `json:"pointer_path,omitempty"`
	BadgePath   string `json:"badge_path,omitempty"`
	LedgerPath  string `json:"ledger_path"`
}

// DefaultOptions fills provenance from the standard CI environment.
func DefaultOptions() Options {
	return Options{
		Root:            ".",
		Repository:      os.Getenv("GITHUB_REPOSITORY"),
		CommitSHA:       os.Getenv("GITHUB_SHA"),
		Branch:          os.Getenv("GITHUB_REF_NAME"),
		Context:         "ci",
		GenerateBadge:   true,
		GeneratePointer: true,
	}
}

// Observe runs the full pipeline once. The trace ledger is appended exactly
// once per successful run; cancellation between steps leaves it either fully
// appended or untouched.
func Observe(ctx context.Context, opts Options) (Result, error) {
	now := opts.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if opts.Root == "" {
		opts.Root = "."
	}
	log := opts.Logger

	outDir := filepath.Join(opts.Root, locate.ReservedDir)
	result := Result{
		RunID:      uuid.NewString(),
		LedgerPath: filepath.Join(outDir, ledger.DefaultFileName),
	}

	scan, err := locate.Run(opts.Root)
	if err != nil {
		return Result{}, err
	}
	result.Checked = scan.Checked
	log.Debug().Int("artifacts", len(scan.Artifacts)).Str("root", scan.Root).Msg("scan complete")

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var cert *observe.Certificate
	if scan.CertificateRaw != nil {
		validated := certify.Validate(scan.CertificateRaw, certify.Options{
			Now:        now,
			TrustedKey: opts.TrustedCertKey,
		})
		cert = &validated
		log.Debug().Bool("valid", validated.Valid).Str("reason", validated.Reason).
			Str("path", scan.CertificatePath).Msg("certificate checked")
	}

	trace := ledger.New(result.LedgerPath)
	var previous *observe.TraceEntry
	if latest, found, latestErr := trace.Latest(); latestErr != nil {
		return Result{}, latestErr
	} else if found {
		previous = &latest
	}

	result.Verdict = verdict.Decide(verdict.Inputs{
		Artifacts:     scan.Artifacts,
		PointerRaw:    scan.PointerRaw,
		GapSeverities: scan.GapSeverities,
		Certificate:   cert,
		Previous:      previous,
	})
	result.Certificate = cert
	log.Info().Str("status", string(result.Verdict.Status)).
		Str("reason", string(result.Verdict.Reason)).
		Int("critical_omissions", result.Verdict.CriticalOmissions).
		Bool("regression", result.Verdict.Regression).
		Msg("verdict decided")

	ptr, err := pointer.Build(result.Verdict, pointer.Provenance{
		Repository: opts.Repository,
		CommitSHA:  opts.CommitSHA,
		Branch:     opts.Branch,
	}, pointer.Options{Now: now, SignKey: opts.SignKey})
	if err != nil {
		return Result{}, err
	}
	result.Pointer = &ptr

	if opts.GeneratePointer {
		path, saveErr := pointer.Save(ptr, outDir)
		if saveErr != nil {
			return Result{}, saveErr
		}
		result.PointerPath = path
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	entry, err := trace.Append(ctx, ptr, now)
	if err != nil {
		return Result{}, err
	}
	result.TraceEntry = entry

	result.BadgeState = badge.Resolve(result.Verdict, cert)
	if opts.GenerateBadge {
		meta, renderErr := badge.Render(result.BadgeState, result.Verdict, outDir, now)
		if renderErr != nil {
			return Result{}, renderErr
		}
		result.BadgePath = meta.BadgeSVG
	}

	record := observe.VerdictRecord{
		Schema:            VerdictSchema,
		Timestamp:         now.Format(time.RFC3339),
		Context:           opts.Context,
		Status:            result.Verdict.Status,
		Reason:            result.Verdict.Reason,
		PrimaryFound:      result.Verdict.Primary,
		CriticalOmissions: result.Verdict.CriticalOmissions,
		ArtifactsChecked:  scan.Checked,
		Regression:        result.Verdict.Regression,
		Host:              hostname(),
		RunID:             result.RunID,
	}
	verdictPath, err := writeVerdictRecord(filepath.Join(outDir, verdictsDirName), record)
	if err != nil {
		return Result{}, err
	}
	result.VerdictPath = verdictPath

	log.Info().Str("run_id", result.RunID).Int64("sequence", entry.Sequence).
		Str("badge", string(result.BadgeState)).Msg("observation recorded")
	return result, nil
}

// writeVerdictRecord persists the record twice: the latest snapshot is
// replaced atomically, and the run is appended to the historical index.
func writeVerdictRecord(dir string, record observe.VerdictRecord) (string, error) {
	pretty, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal verdict record: %w", err)
	}
	pretty = append(pretty, '\n')
	latestPath := filepath.Join(dir, verdictLatest)
	if err := fsx.WriteFileAtomic(latestPath, pretty, 0o644); err != nil {
		return "", fmt.Errorf("write verdict snapshot: %w", err)
	}

	line, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal verdict index line: %w", err)
	}
	if err := fsx.AppendLineLocked(filepath.Join(dir, verdictIndexName), line, 0o644); err != nil {
		return "", fmt.Errorf("append verdict index: %w", err)
	}
	return latestPath, nil
}

// LatestVerdict reads the most recent verdict record under root, if any.
func LatestVerdict(root string) (observe.VerdictRecord, bool, error) {
	path := filepath.Join(root, locate.ReservedDir, verdictsDirName, verdictLatest)
	// #nosec G304 -- verdict path is derived from the explicit scan root.
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return observe.VerdictRecord{}, false, nil
		}
		return observe.VerdictRecord{}, false, fmt.Errorf("read verdict record: %w", err)
	}
	var record observe.VerdictRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return observe.VerdictRecord{}, false, fmt.Errorf("parse verdict record: %w", err)
	}
	return record, true, nil
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}
