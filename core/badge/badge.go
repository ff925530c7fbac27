// Package badge maps a finalized verdict and certificate outcome to the
// public badge state and renders the embeddable badge files.
package badge

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/crovia/wedge/core/errors"
	"github.com/crovia/wedge/core/fsx"
	observe "github.com/crovia/wedge/core/schema/v1/observe"
)

const (
	MetadataSchema = "crovia.badge.v1"

	SVGFileName      = "badge.svg"
	MetadataFileName = "badge_metadata.json"

	label = "crovia"
)

const (
	colorEvidence  = "#4c1"
	colorNoRecord  = "#e05d44"
	colorCertified = "#007ec6"
)

// Resolve maps the verdict and certificate outcome to a badge state. The
// certificate can only upgrade a GREEN verdict to Certified; it never rescues
// a YELLOW or RED one.
func Resolve(v observe.Verdict, cert *observe.Certificate) observe.BadgeState {
	switch v.Status {
	case observe.StatusGreen:
		if cert != nil && cert.Valid {
			return observe.BadgeCertified
		}
		return observe.BadgeEvidenceRecorded
	case observe.StatusYellow:
		return observe.BadgeEvidenceRecorded
	default:
		return observe.BadgeNoEvidence
	}
}

// appearance returns the right-hand badge text and its fill color for a
// resolved state.
func appearance(state observe.BadgeState) (value, color string) {
	switch state {
	case observe.BadgeCertified:
		return "certified", colorCertified
	case observe.BadgeEvidenceRecorded:
		return "evidence", colorEvidence
	default:
		return "no evidence", colorNoRecord
	}
}

// ShieldsURL returns the shields.io equivalent of the rendered badge.
func ShieldsURL(state observe.BadgeState) string {
	switch state {
	case observe.BadgeCertified:
		return "https://img.shields.io/badge/crovia-certified-blue.svg"
	case observe.BadgeEvidenceRecorded:
		return "https://img.shields.io/badge/crovia-evidence-brightgreen.svg"
	default:
		return "https://img.shields.io/badge/crovia-no_evidence-red.svg"
	}
}

// Render writes badge.svg and badge_metadata.json under dir and returns the
// metadata. Rendering is deterministic for a fixed state and clock.
func Render(state observe.BadgeState, v observe.Verdict, dir string, now time.Time) (observe.BadgeMetadata, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	value, color := appearance(state)
	svg := renderSVG(label, value, color)
	svgPath := filepath.Join(dir, SVGFileName)
	if err := fsx.WriteFileAtomic(svgPath, []byte(svg), 0o644); err != nil {
		return observe.BadgeMetadata{}, errors.Wrap(fmt.Errorf("write badge svg: %w", err),
			errors.CategoryIOFailure, "badge_write_failed", "check output directory permissions", false)
	}

	sum := sha256.Sum256([]byte(svg))
	meta := observe.BadgeMetadata{
		Schema:      MetadataSchema,
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Status:      v.Status,
		Reason:      v.Reason,
		Certified:   state == observe.BadgeCertified,
		BadgeSVG:    svgPath,
		BadgeURL: fmt.Sprintf("https://img.shields.io/badge/crovia-%s-%s.svg",
			strings.ReplaceAll(value, " ", "_"), strings.TrimPrefix(color, "#")),
		EmbedMarkdown: fmt.Sprintf("[![Crovia Evidence](%s)](https://crovia.trust)", svgPath),
		BadgeHash:     hex.EncodeToString(sum[:])[:16],
	}

	encoded, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return observe.BadgeMetadata{}, fmt.Errorf("marshal badge metadata: %w", err)
	}
	encoded = append(encoded, '\n')
	if err := fsx.WriteFileAtomic(filepath.Join(dir, MetadataFileName), encoded, 0o644); err != nil {
		return observe.BadgeMetadata{}, errors.Wrap(fmt.Errorf("write badge metadata: %w", err),
			errors.CategoryIOFailure, "badge_write_failed", "check output directory permissions", false)
	}
	return meta, nil
}

// renderSVG produces the flat two-segment badge. Widths follow the usual
// 7px-per-character approximation for the badge font.
func renderSVG(label, value, color string) string {
	labelWidth := len(label)*7 + 10
	valueWidth := len(value)*7 + 10
	width := labelWidth + valueWidth
	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%[1]d" height="20">
  <linearGradient id="b" x2="0" y2="100%%">
    <stop offset="0" stop-color="#bbb" stop-opacity=".1"/>
    <stop offset="1" stop-opacity=".1"/>
  </linearGradient>
  <clipPath id="a">
    <rect width="%[1]d" height="20" rx="3" fill="#fff"/>
  </clipPath>
  <g clip-path="url(#a)">
    <path fill="#555" d="M0 0h%[2]dv20H0z"/>
    <path fill="%[3]s" d="M%[2]d 0h%[4]dv20H%[2]dz"/>
    <path fill="url(#b)" d="M0 0h%[1]dv20H0z"/>
  </g>
  <g fill="#fff" text-anchor="middle" font-family="DejaVu Sans,Verdana,Geneva,sans-serif" font-size="11">
    <text x="%[5]d" y="15" fill="#010101" fill-opacity=".3">%[6]s</text>
    <text x="%[5]d" y="14">%[6]s</text>
    <text x="%[7]d" y="15" fill="#010101" fill-opacity=".3">%[8]s</text>
    <text x="%[7]d" y="14">%[8]s</text>
  </g>
</svg>`, width, labelWidth, color, valueWidth, labelWidth/2, label, labelWidth+valueWidth/2, value)
}
