package badge

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	observe "github.com/crovia/wedge/core/schema/v1/observe"
)

var testNow = time.Date(2026, 8, 30, 14, 30, 0, 0, time.UTC)

func TestResolve(t *testing.T) {
	valid := &observe.Certificate{Valid: true}
	invalid := &observe.Certificate{Valid: false, Reason: "expired"}
	cases := []struct {
		name   string
		status observe.Status
		cert   *observe.Certificate
		want   observe.BadgeState
	}{
		{"green no cert", observe.StatusGreen, nil, observe.BadgeEvidenceRecorded},
		{"green valid cert", observe.StatusGreen, valid, observe.BadgeCertified},
		{"green invalid cert", observe.StatusGreen, invalid, observe.BadgeEvidenceRecorded},
		{"yellow no cert", observe.StatusYellow, nil, observe.BadgeEvidenceRecorded},
		{"yellow valid cert", observe.StatusYellow, valid, observe.BadgeEvidenceRecorded},
		{"red no cert", observe.StatusRed, nil, observe.BadgeNoEvidence},
		{"red valid cert", observe.StatusRed, valid, observe.BadgeNoEvidence},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Resolve(observe.Verdict{Status: tc.status}, tc.cert)
			if got != tc.want {
				t.Fatalf("Resolve(%s, cert=%v) = %s, want %s", tc.status, tc.cert, got, tc.want)
			}
		})
	}
}

func TestRenderWritesBadgeFiles(t *testing.T) {
	dir := t.TempDir()
	v := observe.Verdict{Status: observe.StatusGreen, Reason: observe.ReasonEvidenceRecorded}
	meta, err := Render(observe.BadgeEvidenceRecorded, v, dir, testNow)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	svg, err := os.ReadFile(filepath.Join(dir, SVGFileName))
	if err != nil {
		t.Fatalf("read svg: %v", err)
	}
	if !strings.Contains(string(svg), "#4c1") || !strings.Contains(string(svg), ">evidence<") {
		t.Fatalf("svg missing expected segment: %s", svg)
	}

	raw, err := os.ReadFile(filepath.Join(dir, MetadataFileName))
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	var onDisk observe.BadgeMetadata
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatalf("parse metadata: %v", err)
	}
	if onDisk.Schema != MetadataSchema || onDisk.Status != observe.StatusGreen {
		t.Fatalf("unexpected metadata: %+v", onDisk)
	}
	if onDisk.BadgeHash != meta.BadgeHash || len(meta.BadgeHash) != 16 {
		t.Fatalf("badge hash mismatch: %s vs %s", onDisk.BadgeHash, meta.BadgeHash)
	}
	if onDisk.Certified {
		t.Fatal("EvidenceRecorded badge must not be certified")
	}
}

func TestRenderCertified(t *testing.T) {
	dir := t.TempDir()
	v := observe.Verdict{Status: observe.StatusGreen, Reason: observe.ReasonEvidenceRecorded}
	meta, err := Render(observe.BadgeCertified, v, dir, testNow)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !meta.Certified {
		t.Fatal("expected certified metadata")
	}
	if !strings.Contains(meta.BadgeURL, "certified") {
		t.Fatalf("unexpected badge url: %s", meta.BadgeURL)
	}
	svg, err := os.ReadFile(filepath.Join(dir, SVGFileName))
	if err != nil {
		t.Fatalf("read svg: %v", err)
	}
	if !strings.Contains(string(svg), "#007ec6") {
		t.Fatalf("certified svg must use blue fill: %s", svg)
	}
}

func TestRenderDeterministic(t *testing.T) {
	v := observe.Verdict{Status: observe.StatusRed, Reason: observe.ReasonEvidenceAbsent}
	first, err := Render(observe.BadgeNoEvidence, v, t.TempDir(), testNow)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	second, err := Render(observe.BadgeNoEvidence, v, t.TempDir(), testNow)
	if err != nil {
		t.Fatalf("render again: %v", err)
	}
	if first.BadgeHash != second.BadgeHash {
		t.Fatalf("badge hash not deterministic: %s vs %s", first.BadgeHash, second.BadgeHash)
	}
}

func TestShieldsURL(t *testing.T) {
	if got := ShieldsURL(observe.BadgeCertified); !strings.Contains(got, "certified-blue") {
		t.Fatalf("unexpected certified url: %s", got)
	}
	if got := ShieldsURL(observe.BadgeEvidenceRecorded); !strings.Contains(got, "evidence-brightgreen") {
		t.Fatalf("unexpected evidence url: %s", got)
	}
	if got := ShieldsURL(observe.BadgeNoEvidence); !strings.Contains(got, "no_evidence-red") {
		t.Fatalf("unexpected no-evidence url: %s", got)
	}
}
