// Package device probes the host for the capabilities strategies are selected
// on. Every probed value can be overridden through settings.
package device

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/jmylchreest/backdrop/internal/strategy"
)

// Probe implements strategy.DeviceCapabilities for the local host.
type Probe struct {
	settings strategy.Settings
	memoryGB float64
	cores    int
	procs    func() ([]ps.Process, error)
}

var _ strategy.DeviceCapabilities = (*Probe)(nil)

// NewProbe samples the host once. settings may be nil.
func NewProbe(settings strategy.Settings) *Probe {
	return &Probe{
		settings: settings,
		memoryGB: totalMemoryGB("/proc/meminfo"),
		cores:    runtime.NumCPU(),
		procs:    ps.Processes,
	}
}

// RecommendPerformanceQuality derives a tier from cores and memory unless the
// performance setting names one.
func (p *Probe) RecommendPerformanceQuality() strategy.Tier {
	if t := strategy.ParseTier(strategy.String(p.settings, strategy.KeyPerformance, ""), ""); t != "" {
		return t
	}
	mem, cores := p.MemoryGB(), p.CPUCores()
	switch {
	case p.IsMobile() || cores < 4 || mem < 4:
		return strategy.TierLow
	case cores >= 8 && mem >= 8:
		return strategy.TierHigh
	default:
		return strategy.TierMedium
	}
}

// HasWebGLSupport reports whether the GPU path may be used. The software
// renderer is always present, so only the setting can disable it.
func (p *Probe) HasWebGLSupport() bool {
	return strategy.Bool(p.settings, strategy.KeyDeviceWebGL, true)
}

// MemoryGB returns total system memory, or the device.memory-gb override.
func (p *Probe) MemoryGB() float64 {
	return strategy.Number(p.settings, strategy.KeyDeviceMemoryGB, p.memoryGB)
}

func (p *Probe) CPUCores() int { return p.cores }

func (p *Probe) IsMobile() bool {
	return strategy.Bool(p.settings, strategy.KeyDeviceMobile, false)
}

func (p *Probe) PrefersReducedMotion() bool {
	return strategy.Bool(p.settings, strategy.KeyDeviceReducedMotion, false)
}

// String summarises the probed capabilities.
func (p *Probe) String() string {
	return fmt.Sprintf("tier=%s cores=%d memory=%.1fGB webgl=%t mobile=%t",
		p.RecommendPerformanceQuality(), p.CPUCores(), p.MemoryGB(), p.HasWebGLSupport(), p.IsMobile())
}

// PlayerRunning reports whether any process has one of the given executable
// names. With no names it reports true.
func (p *Probe) PlayerRunning(names ...string) (bool, error) {
	if len(names) == 0 {
		return true, nil
	}
	processes, err := p.procs()
	if err != nil {
		return false, fmt.Errorf("failed to get process list: %w", err)
	}
	for _, proc := range processes {
		exe := proc.Executable()
		for _, n := range names {
			if strings.EqualFold(exe, n) {
				return true, nil
			}
		}
	}
	return false, nil
}

// totalMemoryGB reads MemTotal from a meminfo file. It falls back to 4GB where
// the file is unavailable.
func totalMemoryGB(path string) float64 {
	const fallback = 4
	data, err := os.ReadFile(path)
	if err != nil {
		return fallback
	}
	return parseMemInfo(data, fallback)
}

func parseMemInfo(data []byte, fallback float64) float64 {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 || fields[0] != "MemTotal:" {
			continue
		}
		kb, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return fallback
		}
		return kb / (1024 * 1024)
	}
	return fallback
}
