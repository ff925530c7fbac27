package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/crovia/wedge/core/ledger"
	"github.com/crovia/wedge/core/locate"
	"github.com/crovia/wedge/core/pointer"
	"github.com/crovia/wedge/core/sign"
)

var verifyFlags struct {
	root      string
	ledger    bool
	pointer   string
	publicKey string
	jsonOut   bool
}

type verifyReport struct {
	LedgerVerified  bool   `json:"ledger_verified,omitempty"`
	LedgerEntries   int    `json:"ledger_entries,omitempty"`
	PointerVerified bool   `json:"pointer_verified,omitempty"`
	PointerID       string `json:"pointer_id,omitempty"`
	SignatureValid  bool   `json:"signature_valid,omitempty"`
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the trace ledger chain or a pointer record",
	Long: `Verify recorded observations without changing anything.

With --ledger (the default when no target is given) every chain hash in the
trace ledger is recomputed from genesis, and every recorded pointer's
observation hash is recomputed from its own fields. Any mismatch means the
ledger was modified after the fact.

With --pointer the observation hash of a single pointer file is recomputed;
add --public-key to also check its detached signature.`,
	Run: func(cmd *cobra.Command, args []string) {
		report := verifyReport{}

		if verifyFlags.pointer == "" {
			verifyFlags.ledger = true
		}

		if verifyFlags.ledger {
			path := filepath.Join(verifyFlags.root, locate.ReservedDir, ledger.DefaultFileName)
			checked, err := ledger.New(path).Verify()
			if err != nil {
				fatalEngine(err)
			}
			report.LedgerVerified = true
			report.LedgerEntries = checked
		}

		if verifyFlags.pointer != "" {
			ptr, err := pointer.Load(verifyFlags.pointer)
			if err != nil {
				fatalEngine(err)
			}
			if err := pointer.Verify(ptr); err != nil {
				fatalEngine(err)
			}
			report.PointerVerified = true
			report.PointerID = ptr.PointerID

			if verifyFlags.publicKey != "" {
				pub, err := sign.LoadPublicKeyBase64(verifyFlags.publicKey)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error: load public key: %v\n", err)
					os.Exit(exitUsage)
				}
				if err := pointer.VerifySignature(ptr, pub); err != nil {
					fatalEngine(err)
				}
				report.SignatureValid = true
			}
		}

		if verifyFlags.jsonOut {
			encoded, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				fatalEngine(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return
		}
		out := cmd.OutOrStdout()
		if report.LedgerVerified {
			color.New(color.FgGreen).Fprintf(out, "ledger OK (%d entries)\n", report.LedgerEntries)
		}
		if report.PointerVerified {
			color.New(color.FgGreen).Fprintf(out, "pointer %s OK\n", report.PointerID)
			if report.SignatureValid {
				color.New(color.FgGreen).Fprintln(out, "signature OK")
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVar(&verifyFlags.root, "root", envDefault("CROVIA_ROOT", "."), "Repository root containing the trace ledger")
	verifyCmd.Flags().BoolVar(&verifyFlags.ledger, "ledger", false, "Verify the trace ledger chain")
	verifyCmd.Flags().StringVar(&verifyFlags.pointer, "pointer", "", "Path to a pointer file to verify")
	verifyCmd.Flags().StringVar(&verifyFlags.publicKey, "public-key", "", "Path to a base64 ed25519 public key for signature verification")
	verifyCmd.Flags().BoolVar(&verifyFlags.jsonOut, "json", false, "Print the verification report as JSON")
}
