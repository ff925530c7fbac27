package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/crovia/wedge/core/engine"
	observe "github.com/crovia/wedge/core/schema/v1/observe"
)

func TestVersionCommand(t *testing.T) {
	SetBuildInfo("1.2.3", "abcdef0", "2026-08-30")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"version"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute version: %v", err)
	}
	if !strings.Contains(out.String(), "wedge 1.2.3") {
		t.Fatalf("unexpected version output: %s", out.String())
	}
}

func TestEnvDefault(t *testing.T) {
	t.Setenv("CROVIA_TEST_KEY", "value")
	if got := envDefault("CROVIA_TEST_KEY", "fallback"); got != "value" {
		t.Fatalf("envDefault set = %q", got)
	}
	if got := envDefault("CROVIA_TEST_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("envDefault unset = %q", got)
	}
}

func TestEnvBool(t *testing.T) {
	cases := []struct {
		value    string
		fallback bool
		want     bool
	}{
		{"true", false, true},
		{"TRUE", false, true},
		{"1", false, true},
		{"false", true, false},
		{"no", true, false},
		{"", true, true},
		{"", false, false},
	}
	for _, tc := range cases {
		if tc.value == "" {
			os.Unsetenv("CROVIA_TEST_BOOL")
		} else {
			t.Setenv("CROVIA_TEST_BOOL", tc.value)
		}
		if got := envBool("CROVIA_TEST_BOOL", tc.fallback); got != tc.want {
			t.Fatalf("envBool(%q, %t) = %t, want %t", tc.value, tc.fallback, got, tc.want)
		}
	}
}

func TestPrintSummary(t *testing.T) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	result := engine.Result{
		Verdict: observe.Verdict{
			Status:            observe.StatusYellow,
			Reason:            observe.ReasonEvidenceRecorded,
			CriticalOmissions: 2,
			Primary:           []string{"EVIDENCE.json"},
		},
		BadgeState:  observe.BadgeEvidenceRecorded,
		VerdictPath: ".crovia/verdicts/verdict_latest.json",
	}
	printSummary(cmd, result)
	text := out.String()
	for _, want := range []string{"YELLOW", "evidence_recorded", "EVIDENCE.json", "omissions: 2"} {
		if !strings.Contains(text, want) {
			t.Fatalf("summary missing %q:\n%s", want, text)
		}
	}
}

func TestWriteGitHubOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "github_output")
	t.Setenv("GITHUB_OUTPUT", path)
	result := engine.Result{
		Verdict: observe.Verdict{
			Status:  observe.StatusGreen,
			Reason:  observe.ReasonEvidenceRecorded,
			Primary: []string{"EVIDENCE.json"},
		},
		VerdictPath: ".crovia/verdicts/verdict_latest.json",
		PointerPath: ".crovia/PTR-20260830-AAAAAAAAAAAA.json",
	}
	if err := writeGitHubOutput(result); err != nil {
		t.Fatalf("write github output: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read github output: %v", err)
	}
	text := string(raw)
	for _, want := range []string{"verdict=GREEN", "reason=evidence_recorded", "primary=EVIDENCE.json", "critical_omissions=0"} {
		if !strings.Contains(text, want) {
			t.Fatalf("github output missing %q:\n%s", want, text)
		}
	}
}

func TestWriteGitHubOutputNoopWhenUnset(t *testing.T) {
	os.Unsetenv("GITHUB_OUTPUT")
	if err := writeGitHubOutput(engine.Result{}); err != nil {
		t.Fatalf("expected noop, got %v", err)
	}
}
