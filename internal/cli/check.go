package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/crovia/wedge/core/engine"
	observe "github.com/crovia/wedge/core/schema/v1/observe"
	"github.com/crovia/wedge/core/sign"
)

var checkFlags struct {
	root      string
	mode      string
	jsonOut   bool
	noBadge   bool
	noPointer bool
	signKey   string
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Scan a repository and record an evidence verdict",
	Long: `Scan a repository checkout for evidence artifacts, decide the verdict,
persist the signed pointer, append to the trace ledger, and render the badge.

Modes:
  warn  Report the verdict and always exit 0 (default).
  fail  Exit 1 when the verdict is RED. The verdict itself is identical in
        both modes; the mode only controls the exit code.

When $GITHUB_OUTPUT is set, the verdict is also appended there as GitHub
Actions step outputs (verdict, reason, primary, critical_omissions,
verdict_path, pointer_path).`,
	Run: func(cmd *cobra.Command, args []string) {
		mode := strings.ToLower(checkFlags.mode)
		if mode != "warn" && mode != "fail" {
			fmt.Fprintf(os.Stderr, "Error: invalid --mode %q (want warn or fail)\n", checkFlags.mode)
			os.Exit(exitUsage)
		}

		opts := engine.DefaultOptions()
		opts.Root = checkFlags.root
		opts.GenerateBadge = !checkFlags.noBadge
		opts.GeneratePointer = !checkFlags.noPointer
		opts.Logger = logger

		if checkFlags.signKey != "" {
			key, err := sign.LoadPrivateKeyBase64(checkFlags.signKey)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: load signing key: %v\n", err)
				os.Exit(exitUsage)
			}
			opts.SignKey = key
		}

		result, err := engine.Observe(context.Background(), opts)
		if err != nil {
			fatalEngine(err)
		}

		if checkFlags.jsonOut {
			encoded, marshalErr := json.MarshalIndent(result, "", "  ")
			if marshalErr != nil {
				fatalEngine(marshalErr)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
		} else {
			printSummary(cmd, result)
		}

		if err := writeGitHubOutput(result); err != nil {
			logger.Warn().Err(err).Msg("could not write GitHub Actions output")
		}

		if mode == "fail" && result.Verdict.Status == observe.StatusRed {
			os.Exit(exitRedFailMode)
		}
	},
}

func printSummary(cmd *cobra.Command, result engine.Result) {
	out := cmd.OutOrStdout()
	statusLine := color.New(color.FgGreen, color.Bold)
	switch result.Verdict.Status {
	case observe.StatusYellow:
		statusLine = color.New(color.FgYellow, color.Bold)
	case observe.StatusRed:
		statusLine = color.New(color.FgRed, color.Bold)
	}

	statusLine.Fprintf(out, "CROVIA EVIDENCE %s\n", result.Verdict.Status)
	fmt.Fprintf(out, "  reason:    %s\n", result.Verdict.Reason)
	fmt.Fprintf(out, "  badge:     %s\n", result.BadgeState)
	if len(result.Verdict.Primary) > 0 {
		fmt.Fprintf(out, "  evidence:  %s\n", strings.Join(result.Verdict.Primary, ", "))
	}
	if result.Verdict.CriticalOmissions > 0 {
		fmt.Fprintf(out, "  omissions: %d\n", result.Verdict.CriticalOmissions)
	}
	if result.Verdict.Regression {
		color.New(color.FgRed).Fprintln(out, "  regression: evidence was GREEN on a previous run")
	}
	if result.Pointer != nil {
		fmt.Fprintf(out, "  pointer:   %s (registry eligible: %t)\n",
			result.Pointer.PointerID, result.Pointer.RegistryEligible)
	}
	fmt.Fprintf(out, "  verdict:   %s\n", result.VerdictPath)
}

// writeGitHubOutput appends step outputs when running under GitHub Actions.
func writeGitHubOutput(result engine.Result) error {
	path := os.Getenv("GITHUB_OUTPUT")
	if path == "" {
		return nil
	}
	// #nosec G304 -- path is supplied by the Actions runner.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	lines := []string{
		"verdict=" + string(result.Verdict.Status),
		"reason=" + string(result.Verdict.Reason),
		"primary=" + strings.Join(result.Verdict.Primary, ","),
		fmt.Sprintf("critical_omissions=%d", result.Verdict.CriticalOmissions),
		"verdict_path=" + result.VerdictPath,
		"pointer_path=" + result.PointerPath,
	}
	_, err = file.WriteString(strings.Join(lines, "\n") + "\n")
	return err
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkFlags.root, "root", envDefault("CROVIA_ROOT", "."), "Repository root to scan")
	checkCmd.Flags().StringVar(&checkFlags.mode, "mode", envDefault("CROVIA_MODE", "warn"), "Exit policy: warn|fail")
	checkCmd.Flags().BoolVar(&checkFlags.jsonOut, "json", false, "Print the full result as JSON")
	checkCmd.Flags().BoolVar(&checkFlags.noBadge, "no-badge", !envBool("CROVIA_BADGE", true), "Skip badge generation")
	checkCmd.Flags().BoolVar(&checkFlags.noPointer, "no-pointer", !envBool("CROVIA_POINTER", true), "Skip pointer file generation")
	checkCmd.Flags().StringVar(&checkFlags.signKey, "sign-key", "", "Path to a base64 ed25519 private key for pointer signing")
}
