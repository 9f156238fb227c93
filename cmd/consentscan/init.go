package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/consentscan/internal/config"
	"github.com/spf13/cobra"
)

//go:embed templates/consentscan.yaml
var configTemplate embed.FS

// templatePath is the path of the template inside configTemplate.
const templatePath = "templates/consentscan.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new consentscan configuration file",
		Long: `Initialize creates a new .consentscan configuration file in the current directory.

The generated file includes:
- Default page budget and sitemap settings
- Commented examples for site-specific configurations
- Documentation for all available options

Examples:
  # Create .consentscan in current directory
  consentscan init

  # Create config file at a specific path
  consentscan init -o myconfig.yaml

  # Force overwrite existing file
  consentscan init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
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

	content, err := configTemplate.ReadFile(templatePath)
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
	fmt.Fprintln(out, "\nEdit this file to configure site-specific settings such as:")
	fmt.Fprintln(out, "  - Page budget (tier or maxPages) per site")
	fmt.Fprintln(out, "  - Extra accept/reject banner keywords")
	fmt.Fprintln(out, "  - URL patterns to ignore or follow")

	return nil
}
