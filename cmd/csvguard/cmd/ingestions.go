package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/JonMunkholm/csvguard/internal/store"
	"github.com/spf13/cobra"
)

var ingestionsLimit int

var ingestionsCmd = &cobra.Command{
	Use:     "ingestions",
	Aliases: []string{"log"},
	Short:   "Show the ingestion log",
	Args:    cobra.NoArgs,
	RunE:    runIngestions,
}

func init() {
	rootCmd.AddCommand(ingestionsCmd)

	ingestionsCmd.Flags().IntVarP(&ingestionsLimit, "limit", "n", 20, "maximum entries to show")
}

func runIngestions(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	app, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer app.Close()

	limit := ingestionsLimit
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	entries, err := app.Store.Recent(ctx, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "Nenhuma ingestão registrada.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATA\tARQUIVO\tTOTAL\tSUCESSO\tERRO\tSCRIPT\tDURAÇÃO")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%.1fs\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04"),
			e.FileName,
			e.TotalRows,
			e.SuccessRows,
			e.ErrorRows,
			e.Source,
			e.DurationSeconds,
		)
	}
	return w.Flush()
}
