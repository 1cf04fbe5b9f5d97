package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/backdrop/internal/strategy"
)

var (
	// Process command flags
	processInput   inputFlags
	processFormat  string
	processCSS     string
	processPlugins bool
	processRecord  bool
)

// processCmd represents the process command
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process one set of colours and print the result",
	Long: `Run one colour context through the strategy engine and print the merged
result. Colours come from --colour flags, from artwork given with --image, or
both; explicit colours win over extracted ones.

Examples:
  # Process two colours
  backdrop process --colour PRIMARY=#cba6f7 --colour VIBRANT=#f38ba8

  # Extract colours from artwork and print YAML
  backdrop process --image cover.jpg --format yaml

  # Include music data and write the CSS variables to a stylesheet
  backdrop process -i cover.jpg --energy 0.8 --tempo 128 --css backdrop.css`,
	Args: cobra.NoArgs,
	RunE: runProcess,
}

func init() {
	processInput.register(processCmd)
	processCmd.Flags().StringVarP(&processFormat, "format", "f", "json", "output format (json, yaml, toml)")
	processCmd.Flags().StringVar(&processCSS, "css", "", "write the CSS variables to this stylesheet")
	processCmd.Flags().BoolVar(&processPlugins, "plugins", true, "load external strategy plugins")
	processCmd.Flags().BoolVar(&processRecord, "record", false, "record the result in the journal")
}

func runProcess(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := newLogger(cmd.ErrOrStderr())

	cc, err := processInput.context(ctx, logger)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, logger, appOptions{
		Stylesheet: processCSS,
		Journal:    processRecord,
		Plugins:    processPlugins,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.process(ctx, cc)
	if err != nil {
		return err
	}
	return writeResult(cmd.OutOrStdout(), processFormat, result)
}

// writeResult encodes a result in the requested format.
func writeResult(w io.Writer, format string, result strategy.ColorResult) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return err
		}
		return enc.Close()
	case "toml":
		return toml.NewEncoder(w).Encode(result)
	default:
		return fmt.Errorf("unsupported format %q (use json, yaml or toml)", format)
	}
}
