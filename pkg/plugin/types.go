package plugin

// PluginInfo contains metadata about a plugin. It is printed as JSON in
// response to --plugin-info.
type PluginInfo struct {
	Name            string   `json:"name"`
	Version         string   `json:"version"`
	ProtocolVersion string   `json:"protocol_version"`
	Description     string   `json:"description"`
	PluginProtocol  string   `json:"plugin_protocol"` // "json-stdio" or "go-plugin"
	Category        string   `json:"category,omitempty"`
	Priority        int      `json:"priority,omitempty"`
	MemoryImpact    string   `json:"memory_impact,omitempty"`
	Requirements    []string `json:"requirements,omitempty"`
}

// MusicData is the optional music context. Nil fields are unknown.
type MusicData struct {
	Energy  *float64 `json:"energy,omitempty"`
	Valence *float64 `json:"valence,omitempty"`
	Tempo   *float64 `json:"tempo,omitempty"`
}

// StrategyInput is sent to the plugin for every colour context.
type StrategyInput struct {
	TrackURI  string            `json:"track_uri,omitempty"`
	RawColors map[string]string `json:"raw_colors"`
	Music     *MusicData        `json:"music,omitempty"`
	Settings  map[string]any    `json:"settings,omitempty"`
}

// GradientStop is a normalised RGBA stop.
type GradientStop struct {
	R        float64 `json:"r"`
	G        float64 `json:"g"`
	B        float64 `json:"b"`
	A        float64 `json:"a"`
	Position float64 `json:"position"`
}

// StrategyOutput is the plugin's result.
type StrategyOutput struct {
	ProcessedColors map[string]string `json:"processed_colors"`
	AccentHex       string            `json:"accent_hex"`
	Gradient        []GradientStop    `json:"gradient,omitempty"`
	CSSVariables    map[string]string `json:"css_variables,omitempty"`
	Error           string            `json:"error,omitempty"`
	Extra           map[string]any    `json:"extra,omitempty"`
}

// HealthStatus is the result of a plugin health check.
type HealthStatus struct {
	Healthy bool     `json:"healthy"`
	Issues  []string `json:"issues,omitempty"`
}
