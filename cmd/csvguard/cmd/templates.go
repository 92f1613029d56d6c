package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/JonMunkholm/csvguard/internal/application"
	"github.com/spf13/cobra"
)

var templatesCmd = &cobra.Command{
	Use:   "templates [NAME]",
	Short: "List schema templates",
	Long: `Without arguments, templates lists the registered templates. With a
name it prints that template's columns.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTemplates,
}

func init() {
	rootCmd.AddCommand(templatesCmd)
}

func runTemplates(cmd *cobra.Command, args []string) error {
	registry, err := application.LoadRegistry(cfg.Validation)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	if len(args) == 0 {
		fmt.Fprintln(w, "NOME\tCOLUNAS\tPADRÃO")
		for _, tpl := range registry.All() {
			def := ""
			if tpl.Name == registry.Default() {
				def = "*"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\n", tpl.Name, len(tpl.Columns), def)
		}
		return w.Flush()
	}

	tpl, err := registry.Get(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "COLUNA\tTIPO\tOBRIGATÓRIA\tALIASES\tVALORES")
	for _, c := range tpl.Columns {
		req := "não"
		if c.Required {
			req = "sim"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			c.Name,
			c.DataType,
			req,
			strings.Join(c.Aliases, ", "),
			strings.Join(c.AllowedValues(), ", "),
		)
	}
	return w.Flush()
}
