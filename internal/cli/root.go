// Package cli provides the command-line interface for backdrop.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jmylchreest/backdrop/internal/version"
)

var (
	// Global flags
	configPath string
	verbose    bool
	quiet      bool

	// Version command flags
	versionJSON bool

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "backdrop",
		Short: "Adaptive colour-processing engine for animated backgrounds",
		Long: `Backdrop turns the colours of the currently playing artwork into an
animated background. It scores its rendering strategies against the device,
the configuration and the music, runs the best ones and writes the merged
result as CSS custom properties.`,
		Version:           version.Short(),
		SilenceUsage:      true,
		PersistentPreRunE: configureOutput,
	}
)

// NewRootCmd returns the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	return rootCmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: $XDG_CONFIG_HOME/backdrop/config.yaml)")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	rootCmd.SetVersionTemplate(version.String() + "\n")

	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(strategiesCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(extractCmd)
}

// configureOutput disables colour when stdout is not a terminal.
func configureOutput(cmd *cobra.Command, _ []string) error {
	if f, ok := cmd.OutOrStdout().(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		color.NoColor = true
	}
	return nil
}

// newLogger builds the root logger from the verbosity flags.
func newLogger(w io.Writer) hclog.Logger {
	level := hclog.Info
	switch {
	case verbose:
		level = hclog.Debug
	case quiet:
		level = hclog.Error
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "backdrop",
		Level:  level,
		Output: w,
		Color:  hclog.AutoColor,
	})
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit, build date, plugin protocol and Go version.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		info := version.Get()
		if versionJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}
		fmt.Fprintln(cmd.OutOrStdout(), info)
		return nil
	},
}
