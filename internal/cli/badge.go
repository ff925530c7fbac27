package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/crovia/wedge/core/badge"
	"github.com/crovia/wedge/core/certify"
	"github.com/crovia/wedge/core/engine"
	"github.com/crovia/wedge/core/locate"
	observe "github.com/crovia/wedge/core/schema/v1/observe"
)

var badgeFlags struct {
	root string
}

var badgeCmd = &cobra.Command{
	Use:   "badge",
	Short: "Re-render the badge from the latest recorded verdict",
	Long: `Re-render badge.svg and badge_metadata.json from the most recent
verdict record without re-scanning the repository. Useful after a badge file
was deleted or when badge generation was skipped during check.`,
	Run: func(cmd *cobra.Command, args []string) {
		record, found, err := engine.LatestVerdict(badgeFlags.root)
		if err != nil {
			fatalEngine(err)
		}
		if !found {
			fmt.Fprintln(os.Stderr, "Error: no recorded verdict; run 'wedge check' first")
			os.Exit(exitUsage)
		}

		v := observe.Verdict{
			Status:            record.Status,
			Reason:            record.Reason,
			CriticalOmissions: record.CriticalOmissions,
			Primary:           record.PrimaryFound,
		}
		state := badge.Resolve(v, loadCertificate(badgeFlags.root))

		meta, err := badge.Render(state, v, filepath.Join(badgeFlags.root, locate.ReservedDir), time.Time{})
		if err != nil {
			fatalEngine(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "badge: %s (%s)\n", meta.BadgeSVG, state)
		fmt.Fprintf(cmd.OutOrStdout(), "embed: %s\n", meta.EmbedMarkdown)
	},
}

// loadCertificate re-validates the certificate artifact if one is present.
// The verdict record does not retain the certificate document, and the badge
// state depends on certificate validity at render time anyway.
func loadCertificate(root string) *observe.Certificate {
	for _, name := range []string{
		filepath.Join(locate.ReservedDir, "cfic_certificate.json"),
		"CFIC.json",
	} {
		// #nosec G304 -- certificate path is a fixed name under the scan root.
		raw, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			continue
		}
		cert := certify.Validate(raw, certify.Options{})
		return &cert
	}
	return nil
}

func init() {
	rootCmd.AddCommand(badgeCmd)
	badgeCmd.Flags().StringVar(&badgeFlags.root, "root", envDefault("CROVIA_ROOT", "."), "Repository root")
}
