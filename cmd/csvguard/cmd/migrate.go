package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var migrateTemplate string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the store tables",
	Long: `Migrate creates the script cache and ingestion log tables and the
ingestion table for the template. It is safe to run more than once.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().StringVarP(&migrateTemplate, "template", "t", "", "template name (default from config)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	app, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer app.Close()

	tpl, err := app.Registry.Get(migrateTemplate)
	if err != nil {
		return err
	}
	if err := app.Store.Migrate(ctx, tpl); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Tabelas criadas (%s, template %s, tabela %s)\n",
		cfg.Store.Driver, tpl.Name, cfg.Store.IngestTable)
	return nil
}
