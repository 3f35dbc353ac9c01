package validation

import (
	"context"
	"fmt"
	"time"

	"agrobridge/pkg/subsystem"
)

// perfCheck benchmarks each side's probe set with identical iteration
// counts and compares total latency. Performance findings are never
// critical: a slow phase-2 implementation is flagged, not blocked.
type perfCheck struct {
	v *Validator
}

func (c *perfCheck) Level() Level { return LevelPerformance }

func (c *perfCheck) Run(ctx context.Context, in CheckInput) (Result, error) {
	started := time.Now()
	var issues []Issue

	if len(in.Legacy.Probes) == 0 || len(in.New.Probes) == 0 {
		issues = append(issues, Info("no probes registered; performance comparison skipped", nil))
		return newResult(in.Subsystem, LevelPerformance, issues, time.Since(started)), nil
	}

	iterations := c.v.tol.BenchIterations
	legacyTotal, legacyErrs := benchProbes(ctx, in.Legacy.Probes, iterations)
	newTotal, newErrs := benchProbes(ctx, in.New.Probes, iterations)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	for _, name := range legacyErrs {
		issues = append(issues, Warning(fmt.Sprintf("legacy probe %s failed", name), nil))
	}
	for _, name := range newErrs {
		issues = append(issues, Warning(fmt.Sprintf("phase-2 probe %s failed", name), nil))
	}

	if legacyTotal <= 0 {
		issues = append(issues, Info("legacy probes completed too fast to compare", nil))
		return newResult(in.Subsystem, LevelPerformance, issues, time.Since(started)), nil
	}
	ratio := float64(newTotal) / float64(legacyTotal)
	details := map[string]any{
		"ratio":       ratio,
		"legacy_ns":   legacyTotal.Nanoseconds(),
		"phase2_ns":   newTotal.Nanoseconds(),
		"iterations":  iterations,
		"probe_count": len(in.New.Probes),
	}
	tol := c.v.tol
	switch {
	case ratio > tol.PerfSevereRatio:
		// Escalated deduction, still never blocking.
		issues = append(issues,
			Warning(fmt.Sprintf("phase-2 latency is %.1fx legacy", ratio), details),
			Info(fmt.Sprintf("latency ratio exceeds the %.1fx severe threshold", tol.PerfSevereRatio), nil))
	case ratio > tol.PerfWarnRatio:
		issues = append(issues, Warning(fmt.Sprintf("phase-2 latency is %.1fx legacy", ratio), details))
	}
	return newResult(in.Subsystem, LevelPerformance, issues, time.Since(started)), nil
}

// benchProbes times the full probe set for the given iteration count,
// honoring context cancellation between iterations. Probes that return an
// error are reported once by name and excluded from further iterations.
func benchProbes(ctx context.Context, probes []subsystem.Probe, iterations int) (time.Duration, []string) {
	var failed []string
	failedSet := make(map[string]bool)
	start := time.Now()
	for i := 0; i < iterations; i++ {
		if ctx.Err() != nil {
			break
		}
		for _, probe := range probes {
			if failedSet[probe.Name] {
				continue
			}
			if err := probe.Run(); err != nil {
				failedSet[probe.Name] = true
				failed = append(failed, probe.Name)
			}
		}
	}
	return time.Since(start), failed
}
