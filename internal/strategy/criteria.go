package strategy

// DeviceSnapshot is a point-in-time copy of the device capabilities.
type DeviceSnapshot struct {
	WebGL         bool    `json:"webgl"`
	MemoryGB      float64 `json:"memoryGb"`
	CPUCores      int     `json:"cpuCores"`
	Mobile        bool    `json:"mobile"`
	ReducedMotion bool    `json:"reducedMotion"`
	Tier          Tier    `json:"tier"`
}

// SnapshotDevice copies the current capabilities. A nil device yields a
// conservative medium-tier snapshot without WebGL.
func SnapshotDevice(d DeviceCapabilities) DeviceSnapshot {
	if d == nil {
		return DeviceSnapshot{MemoryGB: 4, CPUCores: 2, Tier: TierMedium}
	}
	return DeviceSnapshot{
		WebGL:         d.HasWebGLSupport(),
		MemoryGB:      d.MemoryGB(),
		CPUCores:      d.CPUCores(),
		Mobile:        d.IsMobile(),
		ReducedMotion: d.PrefersReducedMotion(),
		Tier:          d.RecommendPerformanceQuality(),
	}
}

// Preferences are the user preference flags that influence scoring.
type Preferences struct {
	Intensity float64 `json:"intensity"`
	BlendMode string  `json:"blendMode"`
}

// Criteria is rebuilt for every selection call and never persisted.
type Criteria struct {
	Performance Tier           `json:"performance"`
	Quality     Tier           `json:"quality"`
	Device      DeviceSnapshot `json:"device"`
	Preferences Preferences    `json:"preferences"`

	// Allowed restricts selection to the named strategies when non-empty.
	Allowed []string `json:"allowed,omitempty"`
}

// Permits reports whether the named strategy passes the Allowed filter.
func (c Criteria) Permits(name string) bool {
	if len(c.Allowed) == 0 {
		return true
	}
	for _, a := range c.Allowed {
		if a == name {
			return true
		}
	}
	return false
}
