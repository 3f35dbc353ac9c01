package validation

import "time"

// Tolerances holds the comparison thresholds applied by the built-in
// checks. The defaults mirror the policy the simulation shipped with, but
// they are policy, not law: callers tune them per deployment.
type Tolerances struct {
	// MoneyCriticalPct blocks migration when a monetary field differs by
	// more than this fraction of its magnitude.
	MoneyCriticalPct float64
	// MoneyWarnPct reports a warning above this fraction.
	MoneyWarnPct float64
	// TimeWarn reports a warning when a temporal field is off by more.
	TimeWarn time.Duration
	// PerfWarnRatio flags the phase-2 implementation when its latency
	// exceeds legacy by this factor.
	PerfWarnRatio float64
	// PerfSevereRatio escalates the penalty above this factor.
	// Performance issues never block on their own.
	PerfSevereRatio float64
	// BenchIterations is the per-probe iteration count, identical for both
	// implementations.
	BenchIterations int
	// LevelTimeout bounds each level's wall-clock budget. A timed-out level
	// produces a critical failing result.
	LevelTimeout time.Duration
}

// DefaultTolerances returns the shipped threshold policy.
func DefaultTolerances() Tolerances {
	return Tolerances{
		MoneyCriticalPct: 0.10,
		MoneyWarnPct:     0.01,
		TimeWarn:         60 * time.Minute,
		PerfWarnRatio:    1.5,
		PerfSevereRatio:  2.0,
		BenchIterations:  50,
		LevelTimeout:     5 * time.Second,
	}
}

// FieldKind tells the data check how to compare one state field.
type FieldKind int

const (
	// KindMoney compares with relative tolerance against the converted value.
	KindMoney FieldKind = iota
	// KindTimeMinutes compares absolute difference in minutes.
	KindTimeMinutes
	// KindExact requires equality.
	KindExact
)

// FieldPolicy maps top-level state field names to comparison kinds. Fields
// absent from the policy are ignored by the data check.
type FieldPolicy map[string]FieldKind
