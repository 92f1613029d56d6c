package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/JonMunkholm/csvguard/internal/application"
	"github.com/JonMunkholm/csvguard/internal/core"
	"github.com/spf13/cobra"
)

var fingerprintOpts struct {
	typed   bool
	columns bool
}

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint FILE...",
	Short: "Print the structural hash of CSV files",
	Long: `Fingerprint prints the hash that keys the correction script cache.
Files with the same set of column names share a hash, whatever their
column order, delimiter or encoding.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFingerprint,
}

func init() {
	rootCmd.AddCommand(fingerprintCmd)

	fingerprintCmd.Flags().BoolVar(&fingerprintOpts.typed, "typed", false, "include inferred column kinds in the hash")
	fingerprintCmd.Flags().BoolVar(&fingerprintOpts.columns, "columns", false, "list the columns of each file")
}

func runFingerprint(cmd *cobra.Command, args []string) error {
	loader := application.NewLoader(cfg.Validation)
	hasher := core.Hasher{Typed: fingerprintOpts.typed || cfg.Validation.FingerprintTypes}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	for _, path := range args {
		ds, err := loader.Load(path)
		if err != nil {
			w.Flush()
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", hasher.Fingerprint(ds), ds.Encoding, path)
		if fingerprintOpts.columns {
			for _, c := range ds.Columns {
				fmt.Fprintf(w, "\t\t  %s\n", c)
			}
		}
	}
	return w.Flush()
}
