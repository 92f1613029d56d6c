package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/JonMunkholm/csvguard/internal/application"
	"github.com/JonMunkholm/csvguard/internal/core"
	"github.com/JonMunkholm/csvguard/internal/export"
	"github.com/spf13/cobra"
)

var validateOpts struct {
	template string
	json     bool
	xlsx     string
}

var validateCmd = &cobra.Command{
	Use:   "validate FILE|-",
	Short: "Check a CSV file against a template",
	Long: `Validate reads FILE, detects its encoding and delimiter and checks it
against the template. Nothing is stored. Use - to read the file from
standard input.

The exit status is 1 when the file is invalid.`,
	Example: `  csvguard validate extrato.csv
  csvguard validate extrato.csv --template transacoes --json
  csvguard validate extrato.csv --xlsx relatorio.xlsx
  iconv -f latin1 extrato.csv | csvguard validate -`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateOpts.template, "template", "t", "", "template name (default from config)")
	validateCmd.Flags().BoolVar(&validateOpts.json, "json", false, "print the report as JSON")
	validateCmd.Flags().StringVar(&validateOpts.xlsx, "xlsx", "", "also write the report to this .xlsx file")
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := args[0]

	registry, err := application.LoadRegistry(cfg.Validation)
	if err != nil {
		return err
	}
	tpl, err := registry.Get(validateOpts.template)
	if err != nil {
		return err
	}

	loader := application.NewLoader(cfg.Validation)
	validator := application.NewValidator(cfg.Validation, tpl)

	var (
		report *core.Report
		ds     *core.Dataset
		meta   = export.Meta{FileName: filepath.Base(path), Template: tpl.Name}
	)
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		meta.FileName = "stdin"
		report, ds = validator.ValidateBytes(loader, data)
	} else {
		report, ds = validator.ValidateFile(loader, path)
	}

	if ds != nil {
		meta.Fingerprint = core.Hasher{Typed: cfg.Validation.FingerprintTypes}.Fingerprint(ds)
		meta.Encoding = ds.Encoding
	}

	out := cmd.OutOrStdout()
	if validateOpts.json {
		data, err := core.MarshalReport(report)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	} else {
		fmt.Fprintf(out, "Arquivo:   %s\n", meta.FileName)
		fmt.Fprintf(out, "Template:  %s\n", meta.Template)
		if ds != nil {
			fmt.Fprintf(out, "Encoding:  %s\n", meta.Encoding)
			fmt.Fprintf(out, "Registros: %d\n", ds.Len())
			fmt.Fprintf(out, "Hash:      %s\n", meta.Fingerprint)
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, core.RenderReport(report))
	}

	if validateOpts.xlsx != "" {
		if err := export.SaveAs(validateOpts.xlsx, report, meta); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		if !validateOpts.json {
			fmt.Fprintf(out, "\nRelatório salvo em %s\n", validateOpts.xlsx)
		}
	}

	if !report.Valid {
		return ErrInvalid
	}
	return nil
}
