// Package cli wires the wedge commands. Commands exit with 0 on success,
// 1 when fail mode turns a RED verdict into a failure, 2 on a structured
// engine error, and 3 on usage errors.
package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/crovia/wedge/core/errors"
)

const (
	exitOK          = 0
	exitRedFailMode = 1
	exitEngineError = 2
	exitUsage       = 3
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

var (
	verbose bool
	logger  zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "wedge",
	Short: "Observe evidence artifacts in a repository and record the verdict",
	Long: `Wedge scans a repository checkout for training-evidence artifacts,
decides a GREEN/YELLOW/RED verdict, and records it as a signed pointer in an
append-only trace ledger.

Wedge observes presence, not intent: it reports whether evidence artifacts
exist and are internally consistent. It never inspects private data and never
scores compliance.

Examples:
  # Observe the current checkout
  wedge check

  # Fail the CI job when no evidence is present
  wedge check --mode fail

  # Verify the trace ledger has not been tampered with
  wedge verify --ledger

Configuration:
  Flags fall back to CROVIA_ROOT, CROVIA_MODE, CROVIA_BADGE and CROVIA_POINTER
  environment variables. A .env file in the working directory is loaded first.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env file is the normal case.
		_ = godotenv.Load()
		initLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
}

func initLogging() {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	var out = zerolog.New(os.Stderr)
	if info, err := os.Stderr.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	logger = out.Level(level).With().Timestamp().Logger()
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}
	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}
}

// fatalEngine reports a classified engine failure and exits 2.
func fatalEngine(err error) {
	event := logger.Error().Err(err)
	if category := errors.CategoryOf(err); category != "" {
		event = event.Str("category", string(category)).Str("code", errors.CodeOf(err))
	}
	if hint := errors.HintOf(err); hint != "" {
		event = event.Str("hint", hint)
	}
	event.Msg("run failed")
	os.Exit(exitEngineError)
}

// envDefault returns the environment value for key, or fallback when unset.
func envDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// envBool parses a CROVIA_* boolean toggle the way the CI scripts do: any
// casing of "true" enables, everything else disables, unset keeps fallback.
func envBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value == "true" || value == "TRUE" || value == "True" || value == "1"
}
