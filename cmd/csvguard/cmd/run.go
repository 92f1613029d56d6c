package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JonMunkholm/csvguard/internal/core"
	"github.com/spf13/cobra"
)

var runOpts struct {
	template string
	script   string
	offline  bool
	json     bool
}

var runCmd = &cobra.Command{
	Use:   "run FILE",
	Short: "Validate, correct and ingest a CSV file",
	Long: `Run executes the full pipeline on FILE. A valid file is ingested as is.
An invalid file is corrected with the script cached for its structural
hash, a script generated on the spot, or the one given with --script.
The corrected output is validated again before ingestion.`,
	Example: `  csvguard run extrato.csv
  csvguard run extrato.csv --script corrige.py
  csvguard run extrato.csv --offline`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runOpts.template, "template", "t", "", "template name (default from config)")
	runCmd.Flags().StringVar(&runOpts.script, "script", "", "correction script to use instead of the cache")
	runCmd.Flags().BoolVar(&runOpts.offline, "offline", false, "do not contact the generator, Redis or the archive")
	runCmd.Flags().BoolVar(&runOpts.json, "json", false, "print the result as JSON")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var script string
	if runOpts.script != "" {
		data, err := os.ReadFile(runOpts.script)
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}
		script = string(data)
	}

	app, err := openApp(ctx, runOpts.offline)
	if err != nil {
		return err
	}
	defer app.Close()

	tpl, err := app.Registry.Get(runOpts.template)
	if err != nil {
		return err
	}
	if err := app.Store.Migrate(ctx, tpl); err != nil {
		return err
	}

	if cfg.Upload.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Upload.Timeout)
		defer cancel()
	}

	res, err := app.Pipeline.Run(ctx, core.RunRequest{
		Path:     args[0],
		Template: tpl,
		Script:   script,
	})

	out := cmd.OutOrStdout()
	if runOpts.json {
		data, jerr := json.MarshalIndent(res, "", "  ")
		if jerr != nil {
			return jerr
		}
		fmt.Fprintln(out, string(data))
	} else {
		printRunResult(cmd, res)
	}

	if err != nil && res.Phase != core.PhaseIngested {
		var ecv *core.ExecutionContractViolation
		if errors.As(err, &ecv) && ecv.Remaining != nil && !runOpts.json {
			fmt.Fprintln(out, "\nErros restantes após a correção:")
			fmt.Fprintln(out, core.RenderReport(ecv.Remaining))
		}
		return err
	}
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "aviso: %s\n", core.FormatUserError(err))
	}
	return nil
}

func printRunResult(cmd *cobra.Command, res *core.RunResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:       %s\n", res.RunID)
	fmt.Fprintf(out, "Arquivo:   %s\n", res.FileName)
	fmt.Fprintf(out, "Fase:      %s\n", res.Phase)
	if res.Fingerprint != "" {
		fmt.Fprintf(out, "Hash:      %s\n", res.Fingerprint)
	}
	if res.Source != "" && res.Source != core.SourceNone {
		fmt.Fprintf(out, "Script:    %s\n", res.Source)
	}
	if res.Phase == core.PhaseIngested {
		fmt.Fprintf(out, "Registros: %d de %d ingeridos em %s\n", res.RowsIngested, res.RowsTotal, res.Duration.Round(time.Millisecond))
	}
	if res.Report != nil && !res.Report.Valid {
		fmt.Fprintln(out)
		fmt.Fprintln(out, res.ReportText)
	}
}
