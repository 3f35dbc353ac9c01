// Package adapter translates subsystem state between the legacy and phase-2
// representations. Converters are pure functions over raw JSON captures:
// they never mutate their input, and missing source fields map to documented
// defaults instead of failing.
package adapter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"agrobridge/pkg/subsystem"
)

// ConversionResult reports the outcome of one representation conversion.
type ConversionResult struct {
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Converted builds a successful result carrying non-fatal warnings.
func Converted(warnings ...string) ConversionResult {
	return ConversionResult{Success: true, Warnings: warnings}
}

// Failed builds a failed result.
func Failed(format string, args ...any) ConversionResult {
	return ConversionResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

// ConvertFunc transforms one state representation into the other. The input
// bytes must not be retained or mutated.
type ConvertFunc func(state json.RawMessage) (json.RawMessage, ConversionResult)

// Converter is the bidirectional conversion pair for one subsystem.
type Converter struct {
	ToNew    ConvertFunc
	ToLegacy ConvertFunc
}

// DisplayFunc flattens either representation into a display-ready mapping.
// Consumed by the UI layer, not by migration logic.
type DisplayFunc func(state json.RawMessage) (map[string]string, error)

// Stats aggregates conversion outcomes for one subsystem.
type Stats struct {
	Total     int64 `json:"total"`
	Succeeded int64 `json:"succeeded"`
}

// Adapter routes conversions to per-subsystem converter pairs and tracks
// success rates for the data-integrity health score.
type Adapter struct {
	log *slog.Logger

	mu         sync.RWMutex
	converters map[subsystem.ID]Converter
	display    map[subsystem.ID]DisplayFunc
	stats      map[subsystem.ID]*Stats
}

// New constructs an empty adapter.
func New(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		log:        log,
		converters: make(map[subsystem.ID]Converter),
		display:    make(map[subsystem.ID]DisplayFunc),
		stats:      make(map[subsystem.ID]*Stats),
	}
}

// Register installs the converter pair for a subsystem. Last write wins.
func (a *Adapter) Register(id subsystem.ID, conv Converter) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.converters[id] = conv
}

// RegisterDisplay installs the UI projection for a subsystem.
func (a *Adapter) RegisterDisplay(id subsystem.ID, fn DisplayFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.display[id] = fn
}

// Registered reports whether a converter pair exists for id.
func (a *Adapter) Registered(id subsystem.ID) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.converters[id]
	return ok
}

// ToNew converts a legacy-representation capture into the phase-2
// representation.
func (a *Adapter) ToNew(id subsystem.ID, legacy json.RawMessage) (json.RawMessage, ConversionResult) {
	return a.convert(id, legacy, true)
}

// ToLegacy converts a phase-2 capture into the legacy representation.
func (a *Adapter) ToLegacy(id subsystem.ID, state json.RawMessage) (json.RawMessage, ConversionResult) {
	return a.convert(id, state, false)
}

func (a *Adapter) convert(id subsystem.ID, state json.RawMessage, toNew bool) (json.RawMessage, ConversionResult) {
	a.mu.RLock()
	conv, ok := a.converters[id]
	a.mu.RUnlock()

	direction := "to_legacy"
	fn := conv.ToLegacy
	if toNew {
		direction = "to_new"
		fn = conv.ToNew
	}
	if !ok || fn == nil {
		res := Failed("no %s converter registered for subsystem %s", direction, id)
		a.record(id, false)
		return nil, res
	}

	start := time.Now()
	out, res := fn(state)
	res.Elapsed = time.Since(start)
	a.record(id, res.Success)
	if !res.Success {
		a.log.Warn("conversion failed", "subsystem", id, "direction", direction, "error", res.Error)
		return nil, res
	}
	for _, w := range res.Warnings {
		a.log.Debug("conversion warning", "subsystem", id, "direction", direction, "warning", w)
	}
	return out, res
}

// ProjectDisplay flattens a state capture for the UI layer.
func (a *Adapter) ProjectDisplay(id subsystem.ID, state json.RawMessage) (map[string]string, error) {
	a.mu.RLock()
	fn, ok := a.display[id]
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no display projection registered for subsystem %s", id)
	}
	return fn(state)
}

func (a *Adapter) record(id subsystem.ID, success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.stats[id]
	if !ok {
		st = &Stats{}
		a.stats[id] = st
	}
	st.Total++
	if success {
		st.Succeeded++
	}
}

// StatsFor returns a copy of the conversion stats for one subsystem.
func (a *Adapter) StatsFor(id subsystem.ID) Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if st, ok := a.stats[id]; ok {
		return *st
	}
	return Stats{}
}

// SuccessRate returns the overall conversion success rate on a 0-100 scale.
// With no conversions recorded it reports 100.
func (a *Adapter) SuccessRate() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var total, succeeded int64
	for _, st := range a.stats {
		total += st.Total
		succeeded += st.Succeeded
	}
	if total == 0 {
		return 100
	}
	return 100 * float64(succeeded) / float64(total)
}
