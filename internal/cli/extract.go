package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/backdrop/internal/artwork"
	"github.com/jmylchreest/backdrop/internal/colour"
	"github.com/jmylchreest/backdrop/internal/strategy"
)

var (
	// Extract command flags
	extractClusters    int
	extractMaxDim      int
	extractSeed        uint64
	extractFormat      string
	extractOutput      string
	extractShowPreview bool
)

// extractCmd represents the extract command
var extractCmd = &cobra.Command{
	Use:   "extract <image>",
	Short: "Extract colour roles from artwork",
	Long: `Extract the colour roles strategies consume (PRIMARY, SECONDARY, VIBRANT,
DARK_VIBRANT, LIGHT_VIBRANT, PROMINENT, MUTED) from an image by clustering its
pixels in OKLab.

The image may be a local file or an HTTPS URL; remote artwork is cached.
Supported image formats: JPEG, PNG, GIF, WebP

Examples:
  # Extract roles from an album cover
  backdrop extract cover.jpg

  # Show swatches and every cluster
  backdrop extract --preview cover.jpg

  # Emit ROLE=#hex pairs for process
  backdrop extract -f flags https://i.scdn.co/image/ab67616d0000b273...

  # Save the full palette as JSON
  backdrop extract -f json -o palette.json cover.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().IntVarP(&extractClusters, "clusters", "k", artwork.DefaultClusters, "number of colour clusters (1-64)")
	extractCmd.Flags().IntVar(&extractMaxDim, "max-dimension", artwork.DefaultMaxDimension, "downscale the image to this size before clustering")
	extractCmd.Flags().Uint64Var(&extractSeed, "seed", 0, "clustering seed")
	extractCmd.Flags().StringVarP(&extractFormat, "format", "f", "text", "output format (text, flags, json, yaml)")
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "output file (default: stdout)")
	extractCmd.Flags().BoolVarP(&extractShowPreview, "preview", "p", false, "show colour previews in terminal")
}

// runExtract executes the extract command.
func runExtract(cmd *cobra.Command, args []string) error {
	if extractClusters < 1 || extractClusters > 64 {
		return fmt.Errorf("invalid cluster count %d (valid: 1-64)", extractClusters)
	}
	src := args[0]
	if !artwork.IsURL(src) && !artwork.IsImageFile(src) {
		return fmt.Errorf("unsupported image %q (supported: %s)", src, strings.Join(artwork.SupportedImageExtensions(), ", "))
	}

	logger := newLogger(cmd.ErrOrStderr())
	palette, err := extractArtwork(cmd.Context(), logger, src, artwork.ExtractOptions{
		Clusters:     extractClusters,
		MaxDimension: extractMaxDim,
		Seed:         extractSeed,
	})
	if err != nil {
		return err
	}
	logger.Debug("palette extracted", "roles", len(palette.Roles), "swatches", len(palette.Swatches))

	output, err := formatPalette(palette, extractFormat, extractShowPreview && !color.NoColor)
	if err != nil {
		return err
	}

	if extractOutput != "" {
		if err := os.WriteFile(extractOutput, []byte(output), 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		logger.Debug("palette written", "path", extractOutput)
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), output)
	return nil
}

// roleOrder lists roles in display order.
var roleOrder = []string{
	strategy.RolePrimary,
	strategy.RoleSecondary,
	strategy.RoleVibrant,
	strategy.RoleDarkVibrant,
	strategy.RoleLightVibrant,
	strategy.RoleProminent,
	strategy.RoleMuted,
}

// formatPalette formats the palette according to the specified format.
func formatPalette(p artwork.Palette, format string, showPreview bool) (string, error) {
	switch format {
	case "text", "":
		return formatText(p, showPreview), nil
	case "flags":
		var parts []string
		for _, role := range sortedRoles(p.Roles) {
			parts = append(parts, fmt.Sprintf("--colour %s=%s", role, p.Roles[role]))
		}
		return strings.Join(parts, " ") + "\n", nil
	case "json":
		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to convert to JSON: %w", err)
		}
		return string(data) + "\n", nil
	case "yaml":
		data, err := yaml.Marshal(p)
		if err != nil {
			return "", fmt.Errorf("failed to convert to YAML: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported format: %s (supported: text, flags, json, yaml)", format)
	}
}

// formatText renders the roles table followed by the swatches table.
func formatText(p artwork.Palette, showPreview bool) string {
	var b strings.Builder

	roles := NewTable([]string{"ROLE", "COLOUR", "OKLCH", "CONTRAST"})
	for _, role := range sortedRoles(p.Roles) {
		hex := p.Roles[role]
		roles.AddRow([]string{role, preview(hex, showPreview), lchOf(p, hex), contrastLabel(hex)})
	}
	b.WriteString(roles.Render())
	b.WriteString("\n")

	swatches := NewTable([]string{"SWATCH", "WEIGHT", "OKLCH"})
	for _, s := range p.Swatches {
		swatches.AddRow([]string{preview(s.Hex, showPreview), fmt.Sprintf("%5.1f%%", s.Weight*100), formatLCH(s.LCH)})
	}
	b.WriteString(swatches.Render())
	return b.String()
}

// sortedRoles orders known roles first, then any others alphabetically.
func sortedRoles(roles map[string]string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roleOrder {
		if _, ok := roles[r]; ok {
			out = append(out, r)
		}
	}
	var rest []string
	for r := range roles {
		if !slices.Contains(roleOrder, r) {
			rest = append(rest, r)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}

func preview(hex string, show bool) string {
	if !show {
		return hex
	}
	c, err := colour.ParseHex(hex)
	if err != nil {
		return hex
	}
	return colour.SwatchWithText(c, hex, 9)
}

// contrastLabel reports the WCAG contrast of the better text colour on hex.
func contrastLabel(hex string) string {
	c, err := colour.ParseHex(hex)
	if err != nil {
		return ""
	}
	text, ratio := colour.ReadableOn(c)
	if text == colour.White {
		return fmt.Sprintf("%.1f:1 light", ratio)
	}
	return fmt.Sprintf("%.1f:1 dark", ratio)
}

func lchOf(p artwork.Palette, hex string) string {
	for _, s := range p.Swatches {
		if s.Hex == hex {
			return formatLCH(s.LCH)
		}
	}
	return ""
}

func formatLCH(c colour.OKLCH) string {
	return fmt.Sprintf("%.2f %.3f %5.1f", c.L, c.C, c.H)
}
