package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for csvanon.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "csvanon",
		Short: "Anonymize CSV files with gdpr-helpers",
		Long: `csvanon anonymizes CSV files with the gdpr-helpers library and the Gretel cloud.

Each upload is validated, previewed and handed to the anonymizer, which writes
<name>-synthetic_data.csv and <name>-anonymization_report.html into the
artifacts directory. Both files are offered for download once they exist.

The Gretel API key is read from GRETEL_API_KEY, which may be set in a .env file.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .csvanon in current or home directory)")
	cmd.PersistentFlags().String("env-file", ".env", "Environment file to load before reading the environment")
	cmd.PersistentFlags().String("log-format", "", "Log format: text or json")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewAnonymizeCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
