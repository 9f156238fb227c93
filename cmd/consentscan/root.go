package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/nao1215/consentscan/internal/log"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for consentscan.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consentscan",
		Short: "Cookie consent compliance scanner for websites",
		Long: `consentscan drives a headless browser through a website's cookie banner and
checks which technologies load before consent, after rejection and after
acceptance.

Every cookie, third-party request and localStorage or sessionStorage item is
classified (necessary, functional, analytics, marketing) and marked compliant
or as a pre-consent or post-rejection violation. Reports include a GDPR,
ePrivacy and CCPA risk summary and are stored locally for later comparison.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	// Add subcommands
	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// getBoolFlag reads a bool flag from the command or, failing that, from the
// root's persistent flags.
func getBoolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// setupLogger creates the redacting logger selected by --verbose and
// --log-json. Logs always go to stderr so reports on stdout stay clean.
func setupLogger(cmd *cobra.Command) *slog.Logger {
	return log.New(os.Stderr, getBoolFlag(cmd, "verbose"), getBoolFlag(cmd, "log-json"))
}
