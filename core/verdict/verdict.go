// Package verdict is the pure decision core: no I/O, no clock, deterministic
// for fixed inputs. Filesystem, time, and lock concerns live in the adapters
// that assemble Inputs.
package verdict

import (
	"encoding/json"
	"sort"

	"github.com/crovia/wedge/core/canon"
	observe "github.com/crovia/wedge/core/schema/v1/observe"
	"github.com/crovia/wedge/core/schema/validate"
)

// RequiredFields is the fixed v1 list of provenance fields a complete
// evidence declaration must carry. Each absent field is one critical
// omission.
var RequiredFields = []string{
	"dataset_id",
	"license",
	"provenance",
	"collected_at",
	"content_sha256",
}

// CriticalGapSeverity is the threshold above which a gap-index entry counts
// as a critical omission.
const CriticalGapSeverity = 0.8

// RegressionMarker is appended to Primary when a previously GREEN repository
// now observes RED. The status itself is never altered: the ledger records
// history, it does not average it.
const RegressionMarker = "regression:previous_green"

type Inputs struct {
	Artifacts     []observe.EvidenceArtifact
	PointerRaw    []byte
	GapSeverities []float64
	Certificate   *observe.Certificate
	Previous      *observe.TraceEntry
}

// Decide evaluates the decision table top to bottom, first match wins:
//
//	pointer file missing            -> RED  / evidence_absent
//	structural or hash self-check   -> RED  / evidence_compromised
//	required fields incomplete      -> YELLOW / evidence_recorded
//	fully valid                     -> GREEN  / evidence_recorded
//
// Certificate validity never changes the outcome; it only feeds the badge
// state, which is resolved separately.
func Decide(in Inputs) observe.Verdict {
	out := observe.Verdict{Primary: primaryNames(in.Artifacts)}

	switch {
	case !hasPointerArtifact(in.Artifacts):
		out.Status = observe.StatusRed
		out.Reason = observe.ReasonEvidenceAbsent
	case in.PointerRaw != nil && !declarationIntact(in.PointerRaw):
		out.Status = observe.StatusRed
		out.Reason = observe.ReasonEvidenceCompromised
	default:
		omissions := countOmissions(in.PointerRaw, in.GapSeverities)
		out.CriticalOmissions = omissions
		out.Reason = observe.ReasonEvidenceRecorded
		if omissions > 0 {
			out.Status = observe.StatusYellow
		} else {
			out.Status = observe.StatusGreen
		}
	}

	if in.Previous != nil &&
		in.Previous.Pointer.Status == observe.StatusGreen &&
		out.Status == observe.StatusRed {
		out.Regression = true
		out.Primary = append(out.Primary, RegressionMarker)
	}
	return out
}

func hasPointerArtifact(artifacts []observe.EvidenceArtifact) bool {
	for _, artifact := range artifacts {
		if artifact.Kind == observe.KindPointerFile {
			return true
		}
	}
	return false
}

// declarationIntact runs the structural and hash self-checks on the located
// declaration. A declared content_sha256 must match the canonical digest of
// the document with that field removed; a declaration that omits the field
// is incomplete, not compromised.
func declarationIntact(raw []byte) bool {
	if err := validate.EvidencePointer(raw); err != nil {
		return false
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false
	}
	declared, ok := fields["content_sha256"].(string)
	if !ok {
		return true
	}
	delete(fields, "content_sha256")
	computed, err := canon.DigestValue(fields)
	if err != nil {
		return false
	}
	return computed == declared
}

func countOmissions(raw []byte, gapSeverities []float64) int {
	count := 0
	var fields map[string]any
	if raw == nil || json.Unmarshal(raw, &fields) != nil {
		// Presence without a structured declaration (e.g. receipts only):
		// every required field is missing.
		count = len(RequiredFields)
	} else {
		for _, name := range RequiredFields {
			value, present := fields[name]
			if !present || value == nil {
				count++
			}
		}
	}
	for _, severity := range gapSeverities {
		if severity >= CriticalGapSeverity {
			count++
		}
	}
	return count
}

func primaryNames(artifacts []observe.EvidenceArtifact) []string {
	names := make([]string, 0, len(artifacts))
	for _, artifact := range artifacts {
		switch artifact.Kind {
		case observe.KindPointerFile:
			names = append(names, artifact.Path)
		case observe.KindCertificateFile:
			names = append(names, "[CFIC] "+artifact.Path)
		case observe.KindUnknown:
		}
	}
	sort.Strings(names)
	return names
}
