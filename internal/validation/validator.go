package validation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"agrobridge/internal/adapter"
	"agrobridge/pkg/subsystem"
)

// historyCap bounds the per-subsystem score history kept for trend reports.
const historyCap = 20

// trendWindow is the number of recent scores the trend slope considers.
const trendWindow = 5

// Check runs one validation level against a legacy/phase-2 pair. Checks are
// read-only probes: they must not mutate either instance.
type Check interface {
	Level() Level
	Run(ctx context.Context, in CheckInput) (Result, error)
}

// CheckInput carries the live pair under validation.
type CheckInput struct {
	Subsystem subsystem.ID
	Legacy    subsystem.Target
	New       subsystem.Target
}

// Validator orchestrates per-level checks with enforced deadlines and keeps
// a bounded score history per subsystem.
type Validator struct {
	adapter *adapter.Adapter
	tol     Tolerances
	log     *slog.Logger

	mu       sync.RWMutex
	checks   map[Level]Check
	policies map[subsystem.ID]FieldPolicy
	history  map[subsystem.ID][]float64
}

// Option configures a Validator.
type Option func(*Validator)

// WithTolerances overrides the threshold policy.
func WithTolerances(tol Tolerances) Option {
	return func(v *Validator) { v.tol = tol }
}

// WithLogger overrides the validator's logger.
func WithLogger(log *slog.Logger) Option {
	return func(v *Validator) {
		if log != nil {
			v.log = log
		}
	}
}

// New constructs a validator with the built-in data and performance checks
// registered.
func New(conv *adapter.Adapter, opts ...Option) *Validator {
	v := &Validator{
		adapter:  conv,
		tol:      DefaultTolerances(),
		log:      slog.Default(),
		checks:   make(map[Level]Check),
		policies: make(map[subsystem.ID]FieldPolicy),
		history:  make(map[subsystem.ID][]float64),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.RegisterCheck(&dataCheck{v: v})
	v.RegisterCheck(&perfCheck{v: v})
	return v
}

// RegisterCheck installs a check for its level. Last write wins, which lets
// callers replace the built-ins or add functional/integration/ux checks.
func (v *Validator) RegisterCheck(c Check) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.checks[c.Level()] = c
}

// SetFieldPolicy installs the data-check comparison policy for a subsystem.
func (v *Validator) SetFieldPolicy(id subsystem.ID, policy FieldPolicy) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.policies[id] = policy
}

func (v *Validator) policyFor(id subsystem.ID) FieldPolicy {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.policies[id]
}

// Validate runs the named levels (DefaultLevels when none given)
// concurrently against the pair. Both instances must tolerate concurrent
// reads for the duration; quiescing application traffic is the caller's
// responsibility. The comprehensive result proceeds iff every level does.
func (v *Validator) Validate(ctx context.Context, id subsystem.ID, legacy, phase2 subsystem.Target, levels ...Level) (Comprehensive, error) {
	if len(levels) == 0 {
		levels = DefaultLevels()
	}
	started := time.Now()
	comp := Comprehensive{Subsystem: id, Results: make(map[Level]Result, len(levels)), StartedAt: started.UTC()}
	in := CheckInput{Subsystem: id, Legacy: legacy, New: phase2}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, level := range levels {
		wg.Add(1)
		go func(level Level) {
			defer wg.Done()
			res := v.runLevel(ctx, level, in)
			mu.Lock()
			comp.Results[level] = res
			mu.Unlock()
		}(level)
	}
	wg.Wait()
	comp.Elapsed = time.Since(started)

	score := comp.Score()
	v.recordScore(id, score)
	v.log.Info("validation finished",
		"subsystem", id, "score", score, "proceed", comp.ShouldProceed(),
		"critical", comp.CriticalCount(), "warnings", comp.WarningCount(),
		"elapsed", comp.Elapsed)
	return comp, nil
}

// runLevel executes one check under the per-level deadline. A missing check
// or a timeout yields a critical failing result, never a silent pass.
func (v *Validator) runLevel(ctx context.Context, level Level, in CheckInput) Result {
	v.mu.RLock()
	check, ok := v.checks[level]
	v.mu.RUnlock()
	if !ok {
		return newResult(in.Subsystem, level, []Issue{
			Critical(fmt.Sprintf("no check registered for level %s", level), nil),
		}, 0)
	}

	lctx, cancel := context.WithTimeout(ctx, v.tol.LevelTimeout)
	defer cancel()

	started := time.Now()
	done := make(chan Result, 1)
	go func() {
		res, err := check.Run(lctx, in)
		if err != nil {
			res = newResult(in.Subsystem, level, []Issue{
				Critical(fmt.Sprintf("check error: %v", err), nil),
			}, time.Since(started))
		}
		done <- res
	}()

	select {
	case res := <-done:
		return res
	case <-lctx.Done():
		v.log.Warn("validation level timed out", "subsystem", in.Subsystem, "level", level, "budget", v.tol.LevelTimeout)
		return newResult(in.Subsystem, level, []Issue{
			Critical(fmt.Sprintf("level %s exceeded its %s budget", level, v.tol.LevelTimeout), nil),
		}, time.Since(started))
	}
}

func (v *Validator) recordScore(id subsystem.ID, score float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	hist := append(v.history[id], score)
	if len(hist) > historyCap {
		hist = hist[len(hist)-historyCap:]
	}
	v.history[id] = hist
}

// LatestScore returns the most recent comprehensive score for a subsystem.
func (v *Validator) LatestScore(id subsystem.ID) (float64, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	hist := v.history[id]
	if len(hist) == 0 {
		return 0, false
	}
	return hist[len(hist)-1], true
}

// HealthScore averages each validated subsystem's latest score; 100 when no
// validation has run yet.
func (v *Validator) HealthScore() float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	total, n := 0.0, 0
	for _, hist := range v.history {
		if len(hist) == 0 {
			continue
		}
		total += hist[len(hist)-1]
		n++
	}
	if n == 0 {
		return 100
	}
	return total / float64(n)
}

// Trend classifies the recent score movement for a subsystem using a
// least-squares slope over the last five scores: above +5 "improving",
// below -5 "declining", otherwise "stable".
func (v *Validator) Trend(id subsystem.ID) string {
	v.mu.RLock()
	hist := v.history[id]
	if len(hist) > trendWindow {
		hist = hist[len(hist)-trendWindow:]
	}
	scores := make([]float64, len(hist))
	copy(scores, hist)
	v.mu.RUnlock()

	if len(scores) < 2 {
		return "stable"
	}
	// Least-squares slope with x = 0..n-1.
	n := float64(len(scores))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range scores {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	slope := (n*sumXY - sumX*sumY) / (n*sumXX - sumX*sumX)
	switch {
	case slope > 5:
		return "improving"
	case slope < -5:
		return "declining"
	default:
		return "stable"
	}
}
