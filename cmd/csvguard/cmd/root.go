// Package cmd implements the csvguard command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/JonMunkholm/csvguard/internal/application"
	"github.com/JonMunkholm/csvguard/internal/config"
	"github.com/JonMunkholm/csvguard/internal/core"
	"github.com/JonMunkholm/csvguard/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// ErrInvalid is returned when a file fails validation. The report has
// already been printed, so Execute does not print it again.
var ErrInvalid = errors.New("file failed validation")

var (
	envFile string
	verbose bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "csvguard",
	Short: "Validate, correct and ingest financial CSV files",
	Long: `csvguard checks CSV files against a schema template, fingerprints their
structure, corrects them with a cached or generated script and loads the
result into the configured store.

Configuration is read from the environment and from a .env file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile != "" {
			if err := godotenv.Overload(envFile); err != nil {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
		} else {
			_ = godotenv.Overload()
		}

		c, err := config.Load()
		if err != nil {
			return err
		}
		level := c.Logging.Level
		if verbose {
			level = "debug"
		}
		logging.SetupWriter(cmd.ErrOrStderr(), level, c.Logging.Format)
		cfg = c
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, ErrInvalid) {
		printError(err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "env file to load (default: ./.env when present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func printError(err error) {
	if core.IsUserFacing(err) {
		fmt.Fprintf(os.Stderr, "error: %s\n  %v\n", core.FormatUserError(err), err)
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
}

// openApp connects the store. Offline apps have no generator, Redis or archive.
func openApp(ctx context.Context, offline bool) (*application.App, error) {
	return application.New(ctx, cfg, application.Options{Offline: offline})
}
