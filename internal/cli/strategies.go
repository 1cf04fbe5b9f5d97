package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/backdrop/internal/colour"
	"github.com/jmylchreest/backdrop/internal/events"
	"github.com/jmylchreest/backdrop/internal/strategy"
	"github.com/jmylchreest/backdrop/internal/strategy/registry"
)

var (
	// Strategies command flags
	strategiesInput   inputFlags
	strategiesJSON    bool
	strategiesPlugins bool
)

// strategiesCmd represents the strategies command
var strategiesCmd = &cobra.Command{
	Use:     "strategies",
	Aliases: []string{"strategy", "select"},
	Short:   "Show which strategies would be selected",
	Long: `Score every registered strategy against the current device, configuration
and music and show the selector's decision for each. Without colours the
built-in fallback palette is used.

Examples:
  # Decisions for the default palette
  backdrop strategies

  # Decisions for a high-energy track
  backdrop strategies --colour PRIMARY=#fab387 --energy 0.9 --tempo 140`,
	Args: cobra.NoArgs,
	RunE: runStrategies,
}

func init() {
	strategiesInput.register(strategiesCmd)
	strategiesCmd.Flags().BoolVar(&strategiesJSON, "json", false, "output decisions as JSON")
	strategiesCmd.Flags().BoolVar(&strategiesPlugins, "plugins", true, "load external strategy plugins")
}

// selectionReport is the JSON form of the strategies output.
type selectionReport struct {
	Tier          strategy.Tier           `json:"tier"`
	Device        string                  `json:"device"`
	Selected      []string                `json:"selected"`
	Forced        bool                    `json:"forced"`
	Decisions     []events.Decision       `json:"decisions"`
	Registrations []registry.Registration `json:"registrations"`
}

func runStrategies(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := newLogger(cmd.ErrOrStderr())

	cc, err := strategiesInput.context(ctx, logger)
	if err != nil {
		if len(strategiesInput.colours) > 0 || strategiesInput.image != "" {
			return err
		}
		cc = strategy.NewColorContext(strategiesInput.track, strategy.FallbackPalette, strategiesInput.music())
	}

	a, err := newApp(ctx, logger, appOptions{Plugins: strategiesPlugins})
	if err != nil {
		return err
	}
	defer a.Close()

	sel := a.selector.Select(ctx, cc, nil)
	report := selectionReport{
		Tier:      sel.Criteria.Performance,
		Device:    a.probe.String(),
		Selected:  sel.Names(),
		Forced:    sel.Forced,
		Decisions: sel.Decisions,
	}
	report.Registrations = a.registry.Registrations()

	out := cmd.OutOrStdout()
	if strategiesJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	bold := color.New(color.Bold)
	bold.Fprintln(out, "Device")
	fmt.Fprintf(out, "  %s\n\n", report.Device)

	bold.Fprintln(out, "Colours")
	for _, role := range cc.OrderedRoles() {
		hex, _ := cc.Color(role)
		swatch := ""
		if c, err := colour.ParseHex(hex); err == nil && !color.NoColor {
			swatch = colour.Swatch(c, 4) + " "
		}
		fmt.Fprintf(out, "  %s%-14s %s\n", swatch, role, hex)
	}
	fmt.Fprintln(out)

	table := NewTable([]string{"TYPE", "SCORE", "DECISION", "REASON"})
	table.SetColumnMaxWidth(3, 48)
	for _, d := range report.Decisions {
		table.AddRow([]string{d.Strategy, fmt.Sprintf("%.2f", d.Score), decisionLabel(d), d.Reason})
	}
	fmt.Fprint(out, table.Render())
	fmt.Fprintln(out)

	selected := strings.Join(report.Selected, ", ")
	if selected == "" {
		selected = "none"
	}
	if report.Forced {
		selected += color.YellowString(" (forced)")
	}
	fmt.Fprintf(out, "Selected: %s\n", selected)
	for _, p := range a.plugins {
		fmt.Fprintf(out, "Plugin:   %s %s (%s)\n", p.Name, p.Version, p.PluginProtocol)
	}
	return nil
}

// decisionLabel colours a decision for terminal output.
func decisionLabel(d events.Decision) string {
	if d.Include {
		return color.GreenString("selected")
	}
	return color.RedString("skipped")
}
