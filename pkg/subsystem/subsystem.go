// Package subsystem defines the closed set of migratable simulation
// subsystems and the contracts the migration framework requires from their
// implementations. The framework treats subsystem instances as opaque state
// containers; everything it needs from them is expressed here.
package subsystem

import (
	"context"
	"encoding/json"
)

// ID identifies a migratable subsystem.
type ID string

const (
	// Time is the simulation clock and calendar subsystem.
	Time ID = "time"
	// Economy tracks cash flow, pricing and market state.
	Economy ID = "economy"
	// Employee manages hired workers and task assignment.
	Employee ID = "employee"
	// Crop tracks field state and growth progression.
	Crop ID = "crop"
	// Building manages constructed structures and their upkeep.
	Building ID = "building"
	// SaveLoad is the persistence subsystem.
	SaveLoad ID = "save_load"
)

// All returns every subsystem identity in canonical order.
func All() []ID {
	return []ID{Time, Economy, Employee, Crop, Building, SaveLoad}
}

// Valid reports whether id names a known subsystem.
func (id ID) Valid() bool {
	switch id {
	case Time, Economy, Employee, Crop, Building, SaveLoad:
		return true
	}
	return false
}

// StateExtractor captures a subsystem instance's state as a serializable blob.
type StateExtractor interface {
	Extract(ctx context.Context, instance any) (json.RawMessage, error)
}

// StateRestorer applies a previously extracted state blob to an instance.
type StateRestorer interface {
	Restore(ctx context.Context, instance any, state json.RawMessage) error
}

// Codec bundles the extractor/restorer pair for one state representation.
// Each representation (legacy or phase-2) of a subsystem has its own codec;
// missing-field defaults live in the converters, not here.
type Codec struct {
	Extractor StateExtractor
	Restorer  StateRestorer
}

// Defined reports whether both halves of the codec are present.
func (c Codec) Defined() bool {
	return c.Extractor != nil && c.Restorer != nil
}

// Probe is a named zero-argument operation representative of a subsystem's
// hot path, timed by performance validation.
type Probe struct {
	Name string
	Run  func() error
}

// Target pairs a live subsystem instance with its codec and probe set.
type Target struct {
	Instance any
	Codec    Codec
	Probes   []Probe
}

// ExtractorFunc adapts a plain function to the StateExtractor interface.
type ExtractorFunc func(ctx context.Context, instance any) (json.RawMessage, error)

// Extract implements StateExtractor.
func (f ExtractorFunc) Extract(ctx context.Context, instance any) (json.RawMessage, error) {
	return f(ctx, instance)
}

// RestorerFunc adapts a plain function to the StateRestorer interface.
type RestorerFunc func(ctx context.Context, instance any, state json.RawMessage) error

// Restore implements StateRestorer.
func (f RestorerFunc) Restore(ctx context.Context, instance any, state json.RawMessage) error {
	return f(ctx, instance, state)
}

// OperationResult is the uniform boolean-plus-message surface returned by
// every public migration operation. Failures are reported, never panicked.
type OperationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// OK builds a successful result.
func OK(message string) OperationResult {
	return OperationResult{Success: true, Message: message}
}

// Fail builds a failed result.
func Fail(message string) OperationResult {
	return OperationResult{Success: false, Message: message}
}
