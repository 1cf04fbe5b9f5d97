package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmylchreest/backdrop/internal/artwork"
	"github.com/jmylchreest/backdrop/internal/colour"
	"github.com/jmylchreest/backdrop/internal/strategy"
)

// inputFlags are the colour context flags shared by process, render and strategies.
type inputFlags struct {
	flags   *pflag.FlagSet
	colours []string
	image   string
	track   string
	energy  float64
	valence float64
	tempo   float64
}

func (f *inputFlags) register(cmd *cobra.Command) {
	f.flags = cmd.Flags()
	f.flags.StringArrayVar(&f.colours, "colour", nil, "colour role as ROLE=#hex (repeatable)")
	f.flags.StringVarP(&f.image, "image", "i", "", "artwork file or URL to extract colours from")
	f.flags.StringVar(&f.track, "track", "", "track URI")
	f.flags.Float64Var(&f.energy, "energy", 0, "music energy (0-1)")
	f.flags.Float64Var(&f.valence, "valence", 0, "music valence (0-1)")
	f.flags.Float64Var(&f.tempo, "tempo", 0, "music tempo in BPM")
}

// music returns the music data given on the command line, or nil.
func (f *inputFlags) music() *strategy.MusicData {
	var m strategy.MusicData
	set := false
	if f.flags.Changed("energy") {
		m.Energy, set = strategy.Float(f.energy), true
	}
	if f.flags.Changed("valence") {
		m.Valence, set = strategy.Float(f.valence), true
	}
	if f.flags.Changed("tempo") {
		m.Tempo, set = strategy.Float(f.tempo), true
	}
	if !set {
		return nil
	}
	return &m
}

// context builds the colour context. Explicit colours override roles
// extracted from the artwork.
func (f *inputFlags) context(ctx context.Context, logger hclog.Logger) (strategy.ColorContext, error) {
	explicit, err := parseColours(f.colours)
	if err != nil {
		return strategy.ColorContext{}, err
	}

	raw := make(map[string]string)
	if f.image != "" {
		palette, err := extractArtwork(ctx, logger, f.image, artwork.ExtractOptions{})
		if err != nil {
			return strategy.ColorContext{}, err
		}
		maps.Copy(raw, palette.Roles)
	}
	maps.Copy(raw, explicit)
	if len(raw) == 0 {
		return strategy.ColorContext{}, fmt.Errorf("no colours given: use --colour ROLE=#hex or --image")
	}
	return strategy.NewColorContext(f.track, raw, f.music()), nil
}

// parseColours parses ROLE=#hex pairs. Roles are upper-cased and colours
// normalised to #rrggbb.
func parseColours(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		role, hex, ok := strings.Cut(pair, "=")
		role = strings.ToUpper(strings.TrimSpace(role))
		if !ok || role == "" {
			return nil, fmt.Errorf("invalid colour %q: expected ROLE=#hex", pair)
		}
		c, err := colour.ParseHex(strings.TrimSpace(hex))
		if err != nil {
			return nil, fmt.Errorf("invalid colour for %s: %w", role, err)
		}
		out[role] = c.Hex()
	}
	return out, nil
}

// extractArtwork loads src through the artwork cache and extracts its palette.
func extractArtwork(ctx context.Context, logger hclog.Logger, src string, opts artwork.ExtractOptions) (artwork.Palette, error) {
	loaderOpts := artwork.LoaderOptions{Logger: logger.Named("artwork")}
	if dir, err := artwork.DefaultCacheDir(); err == nil {
		if cache, err := artwork.NewCache(dir); err == nil {
			loaderOpts.Cache = cache
		} else {
			logger.Debug("artwork cache disabled", "error", err)
		}
	}

	img, err := artwork.NewLoader(loaderOpts).Load(ctx, src)
	if err != nil {
		return artwork.Palette{}, fmt.Errorf("failed to load artwork: %w", err)
	}
	palette, err := artwork.Extract(img, opts)
	if err != nil {
		return artwork.Palette{}, fmt.Errorf("failed to extract colours: %w", err)
	}
	return palette, nil
}

// nowPlaying is the file format read by the watch command: the colour context
// contract plus an optional artwork source.
type nowPlaying struct {
	Context strategy.ColorContext
	Image   string
}

func (n *nowPlaying) UnmarshalJSON(data []byte) error {
	var extra struct {
		Image string `json:"image"`
	}
	if err := json.Unmarshal(data, &extra); err != nil {
		return err
	}
	if err := json.Unmarshal(data, &n.Context); err != nil {
		return err
	}
	n.Image = extra.Image
	return nil
}

// readNowPlaying reads a now-playing file, extracting artwork colours for
// roles the file does not carry.
func readNowPlaying(ctx context.Context, logger hclog.Logger, path string) (strategy.ColorContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return strategy.ColorContext{}, fmt.Errorf("failed to read now-playing file: %w", err)
	}
	var np nowPlaying
	if err := json.Unmarshal(data, &np); err != nil {
		return strategy.ColorContext{}, fmt.Errorf("failed to parse now-playing file: %w", err)
	}
	if np.Image == "" {
		return np.Context, nil
	}

	palette, err := extractArtwork(ctx, logger, np.Image, artwork.ExtractOptions{})
	if err != nil {
		if np.Context.Len() > 0 {
			logger.Warn("artwork extraction failed, using file colours", "error", err)
			return np.Context, nil
		}
		return strategy.ColorContext{}, err
	}
	raw := palette.Roles
	maps.Copy(raw, np.Context.RawColors())
	return strategy.NewColorContext(np.Context.TrackURI(), raw, np.Context.Music()), nil
}
