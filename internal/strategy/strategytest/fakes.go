// Package strategytest provides collaborator fakes for strategy tests.
package strategytest

import (
	"errors"
	"maps"
	"sync"

	"github.com/jmylchreest/backdrop/internal/strategy"
)

// Device is a configurable strategy.DeviceCapabilities.
type Device struct {
	Tier          strategy.Tier
	WebGL         bool
	Memory        float64
	Cores         int
	Mobile        bool
	ReducedMotion bool
}

// HighEndDevice returns a desktop device with WebGL and plenty of memory.
func HighEndDevice() *Device {
	return &Device{Tier: strategy.TierHigh, WebGL: true, Memory: 16, Cores: 8}
}

// LowEndDevice returns a mobile device without WebGL.
func LowEndDevice() *Device {
	return &Device{Tier: strategy.TierLow, Memory: 2, Cores: 2, Mobile: true}
}

func (d *Device) RecommendPerformanceQuality() strategy.Tier { return d.Tier }
func (d *Device) HasWebGLSupport() bool                      { return d.WebGL }
func (d *Device) MemoryGB() float64                          { return d.Memory }
func (d *Device) CPUCores() int                              { return d.Cores }
func (d *Device) IsMobile() bool                             { return d.Mobile }
func (d *Device) PrefersReducedMotion() bool                 { return d.ReducedMotion }

// Writer records CSS variable writes. Setting Err makes every write fail.
type Writer struct {
	mu     sync.Mutex
	Err    error
	vars   map[string]string
	writes []Write
}

// Write is one recorded SetVariables call.
type Write struct {
	Vars     map[string]string
	Priority strategy.Priority
}

// ErrWriteRejected is a convenience error for failing writers.
var ErrWriteRejected = errors.New("css write rejected")

// NewWriter returns an empty recording writer.
func NewWriter() *Writer {
	return &Writer{vars: make(map[string]string)}
}

// SetVariables implements strategy.CSSVariableWriter.
func (w *Writer) SetVariables(vars map[string]string, priority strategy.Priority) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Err != nil {
		return w.Err
	}
	if w.vars == nil {
		w.vars = make(map[string]string)
	}
	maps.Copy(w.vars, vars)
	w.writes = append(w.writes, Write{Vars: maps.Clone(vars), Priority: priority})
	return nil
}

// Var returns the last value written for name.
func (w *Writer) Var(name string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.vars[name]
	return v, ok
}

// Vars returns a copy of every variable written so far.
func (w *Writer) Vars() map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return maps.Clone(w.vars)
}

// Writes returns the recorded calls in order.
func (w *Writer) Writes() []Write {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Write(nil), w.writes...)
}

// SetErr changes the failure mode of the writer.
func (w *Writer) SetErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Err = err
}
