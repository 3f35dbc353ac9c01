package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// dataCheck converts the legacy capture into the phase-2 representation and
// diffs policy fields against the phase-2 instance's live state.
type dataCheck struct {
	v *Validator
}

func (c *dataCheck) Level() Level { return LevelData }

func (c *dataCheck) Run(ctx context.Context, in CheckInput) (Result, error) {
	started := time.Now()
	var issues []Issue

	if !in.Legacy.Codec.Defined() || !in.New.Codec.Defined() {
		issues = append(issues, Critical("state codec missing for data comparison", nil))
		return newResult(in.Subsystem, LevelData, issues, time.Since(started)), nil
	}

	legacyState, err := in.Legacy.Codec.Extractor.Extract(ctx, in.Legacy.Instance)
	if err != nil {
		issues = append(issues, Critical(fmt.Sprintf("extract legacy state: %v", err), nil))
		return newResult(in.Subsystem, LevelData, issues, time.Since(started)), nil
	}
	converted, convRes := c.v.adapter.ToNew(in.Subsystem, legacyState)
	if !convRes.Success {
		issues = append(issues, Critical(fmt.Sprintf("conversion failed: %s", convRes.Error), nil))
		return newResult(in.Subsystem, LevelData, issues, time.Since(started)), nil
	}
	for _, w := range convRes.Warnings {
		issues = append(issues, Info(w, nil))
	}
	liveState, err := in.New.Codec.Extractor.Extract(ctx, in.New.Instance)
	if err != nil {
		issues = append(issues, Critical(fmt.Sprintf("extract phase-2 state: %v", err), nil))
		return newResult(in.Subsystem, LevelData, issues, time.Since(started)), nil
	}

	var convFields, liveFields map[string]any
	if err := json.Unmarshal(converted, &convFields); err != nil {
		issues = append(issues, Critical(fmt.Sprintf("decode converted state: %v", err), nil))
		return newResult(in.Subsystem, LevelData, issues, time.Since(started)), nil
	}
	if err := json.Unmarshal(liveState, &liveFields); err != nil {
		issues = append(issues, Critical(fmt.Sprintf("decode phase-2 state: %v", err), nil))
		return newResult(in.Subsystem, LevelData, issues, time.Since(started)), nil
	}

	policy := c.v.policyFor(in.Subsystem)
	if len(policy) == 0 {
		issues = append(issues, Info("no field policy registered; data comparison skipped", nil))
		return newResult(in.Subsystem, LevelData, issues, time.Since(started)), nil
	}

	tol := c.v.tol
	for field, kind := range policy {
		expected, okConv := lookupField(convFields, field)
		actual, okLive := lookupField(liveFields, field)
		if !okConv || !okLive {
			issues = append(issues, Warning(fmt.Sprintf("field %s missing from comparison", field),
				map[string]any{"field": field, "in_converted": okConv, "in_live": okLive}))
			continue
		}
		switch kind {
		case KindMoney:
			issues = appendMoneyIssue(issues, field, expected, actual, tol)
		case KindTimeMinutes:
			issues = appendTimeIssue(issues, field, expected, actual, tol)
		case KindExact:
			if fmt.Sprint(expected) != fmt.Sprint(actual) {
				issues = append(issues, Warning(fmt.Sprintf("field %s differs", field),
					map[string]any{"field": field, "expected": expected, "actual": actual}))
			}
		}
	}
	return newResult(in.Subsystem, LevelData, issues, time.Since(started)), nil
}

func appendMoneyIssue(issues []Issue, field string, expected, actual any, tol Tolerances) []Issue {
	exp, okE := asFloat(expected)
	act, okA := asFloat(actual)
	if !okE || !okA {
		return append(issues, Warning(fmt.Sprintf("field %s is not numeric", field),
			map[string]any{"field": field, "expected": expected, "actual": actual}))
	}
	magnitude := math.Abs(exp)
	if magnitude == 0 {
		magnitude = 1
	}
	diff := math.Abs(act-exp) / magnitude
	details := map[string]any{"field": field, "expected": exp, "actual": act, "diff_pct": diff * 100}
	switch {
	case diff > tol.MoneyCriticalPct:
		return append(issues, Critical(fmt.Sprintf("monetary field %s differs by %.1f%%", field, diff*100), details))
	case diff > tol.MoneyWarnPct:
		return append(issues, Warning(fmt.Sprintf("monetary field %s differs by %.2f%%", field, diff*100), details))
	}
	return issues
}

func appendTimeIssue(issues []Issue, field string, expected, actual any, tol Tolerances) []Issue {
	exp, okE := asFloat(expected)
	act, okA := asFloat(actual)
	if !okE || !okA {
		return append(issues, Warning(fmt.Sprintf("field %s is not numeric", field),
			map[string]any{"field": field, "expected": expected, "actual": actual}))
	}
	diffMinutes := math.Abs(act - exp)
	if diffMinutes > tol.TimeWarn.Minutes() {
		return append(issues, Warning(fmt.Sprintf("temporal field %s is off by %.0f minutes", field, diffMinutes),
			map[string]any{"field": field, "expected": exp, "actual": act, "diff_minutes": diffMinutes}))
	}
	return issues
}

// lookupField resolves a policy key through nested objects, so "data.cash"
// reaches the cash field inside the data layer.
func lookupField(m map[string]any, path string) (any, bool) {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
