package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/JonMunkholm/csvguard/internal/core"
	"github.com/JonMunkholm/csvguard/internal/store"
	"github.com/spf13/cobra"
)

var scriptsLimit int

var scriptsCmd = &cobra.Command{
	Use:   "scripts [FINGERPRINT]",
	Short: "List cached correction scripts",
	Long: `Without arguments, scripts lists the cached correction scripts, most
recently updated first. With a structural hash it prints that script.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScripts,
}

func init() {
	rootCmd.AddCommand(scriptsCmd)

	scriptsCmd.Flags().IntVarP(&scriptsLimit, "limit", "n", store.DefaultListLimit, "maximum scripts to list")
}

func runScripts(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	app, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer app.Close()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		script, err := app.Store.Lookup(ctx, args[0])
		if err != nil {
			return err
		}
		if script == nil {
			return fmt.Errorf("%s: %w", args[0], core.ErrScriptNotFound)
		}
		fmt.Fprint(out, script.Body)
		return nil
	}

	scripts, err := app.Store.ListScripts(ctx, scriptsLimit)
	if err != nil {
		return err
	}
	if len(scripts) == 0 {
		fmt.Fprintln(out, "Nenhum script em cache.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HASH\tATUALIZADO\tLINHAS")
	for _, s := range scripts {
		fmt.Fprintf(w, "%s\t%s\t%d\n", s.Fingerprint, s.UpdatedAt.Local().Format("2006-01-02 15:04"), lineCount(s.Body))
	}
	return w.Flush()
}

func lineCount(s string) int {
	if s == "" {
		return 0
	}
	n := 1
	for i := 0; i < len(s)-1; i++ {
		if s[i] == '\n' {
			n++
		}
	}
	return n
}
