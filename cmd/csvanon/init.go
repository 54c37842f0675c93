package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/csvanon/internal/config"
	"github.com/spf13/cobra"
)

//go:embed templates/csvanon.yaml
var configTemplate embed.FS

// configFileName is the default configuration file name.
const configFileName = config.DefaultConfigFile

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new csvanon configuration file",
		Long: `Initialize creates a new .csvanon configuration file in the current directory.

The generated file includes:
- The gdpr-helpers settings with their default values
- The artifacts and temporary directories
- The web UI and run history settings

Examples:
  # Create .csvanon in current directory
  csvanon init

  # Create config file at a specific path
  csvanon init -o myconfig.yaml

  # Force overwrite existing file
  csvanon init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", configFileName,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/csvanon.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to configure:")
	fmt.Fprintln(out, "  - The Gretel project, run mode and gdpr-helpers rule files")
	fmt.Fprintln(out, "  - Where artifacts and uploaded files are stored")
	fmt.Fprintln(out, "  - The web UI listen address and upload limits")
	fmt.Fprintln(out, "\nSet GRETEL_API_KEY in the environment or in a .env file.")

	return nil
}
