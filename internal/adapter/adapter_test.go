package adapter

import (
	"encoding/json"
	"strings"
	"testing"

	"agrobridge/pkg/subsystem"
)

func doubler(state json.RawMessage) (json.RawMessage, ConversionResult) {
	var in map[string]float64
	if err := json.Unmarshal(state, &in); err != nil {
		return nil, Failed("decode: %v", err)
	}
	out := map[string]float64{"value": in["value"] * 2}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, Failed("encode: %v", err)
	}
	return raw, Converted()
}

func halver(state json.RawMessage) (json.RawMessage, ConversionResult) {
	var in map[string]float64
	if err := json.Unmarshal(state, &in); err != nil {
		return nil, Failed("decode: %v", err)
	}
	raw, _ := json.Marshal(map[string]float64{"value": in["value"] / 2})
	return raw, Converted("lossy halving")
}

func TestAdapter_ConvertBothDirections(t *testing.T) {
	a := New(nil)
	a.Register(subsystem.Economy, Converter{ToNew: doubler, ToLegacy: halver})
	if !a.Registered(subsystem.Economy) {
		t.Fatalf("converter should be registered")
	}

	out, res := a.ToNew(subsystem.Economy, json.RawMessage(`{"value":10}`))
	if !res.Success {
		t.Fatalf("to new failed: %s", res.Error)
	}
	if string(out) != `{"value":20}` {
		t.Fatalf("unexpected output: %s", out)
	}
	if res.Elapsed <= 0 {
		t.Fatalf("elapsed not recorded: %v", res.Elapsed)
	}

	out, res = a.ToLegacy(subsystem.Economy, out)
	if !res.Success {
		t.Fatalf("to legacy failed: %s", res.Error)
	}
	if string(out) != `{"value":10}` {
		t.Fatalf("round trip mismatch: %s", out)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != "lossy halving" {
		t.Fatalf("warnings not carried: %+v", res.Warnings)
	}
}

func TestAdapter_UnregisteredSubsystemFails(t *testing.T) {
	a := New(nil)
	out, res := a.ToNew(subsystem.Time, json.RawMessage(`{}`))
	if res.Success || out != nil {
		t.Fatalf("expected failure for unregistered subsystem")
	}
	if !strings.Contains(res.Error, "no to_new converter") {
		t.Fatalf("unexpected error: %s", res.Error)
	}
}

func TestAdapter_StatsAndSuccessRate(t *testing.T) {
	a := New(nil)
	if got := a.SuccessRate(); got != 100 {
		t.Fatalf("empty adapter should report 100, got %v", got)
	}
	a.Register(subsystem.Crop, Converter{ToNew: doubler, ToLegacy: halver})

	if _, res := a.ToNew(subsystem.Crop, json.RawMessage(`{"value":1}`)); !res.Success {
		t.Fatalf("conversion failed: %s", res.Error)
	}
	if _, res := a.ToNew(subsystem.Crop, json.RawMessage(`not json`)); res.Success {
		t.Fatalf("expected malformed input to fail")
	}
	// Unregistered subsystems count against the rate too.
	if _, res := a.ToNew(subsystem.Building, json.RawMessage(`{}`)); res.Success {
		t.Fatalf("expected unregistered conversion to fail")
	}

	st := a.StatsFor(subsystem.Crop)
	if st.Total != 2 || st.Succeeded != 1 {
		t.Fatalf("unexpected crop stats: %+v", st)
	}
	if got := a.SuccessRate(); got < 33.3 || got > 33.4 {
		t.Fatalf("expected 1/3 success rate, got %v", got)
	}
}

func TestAdapter_ProjectDisplay(t *testing.T) {
	a := New(nil)
	a.RegisterDisplay(subsystem.Economy, func(state json.RawMessage) (map[string]string, error) {
		var in map[string]float64
		if err := json.Unmarshal(state, &in); err != nil {
			return nil, err
		}
		return map[string]string{"balance": "10.00"}, nil
	})
	got, err := a.ProjectDisplay(subsystem.Economy, json.RawMessage(`{"value":10}`))
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if got["balance"] != "10.00" {
		t.Fatalf("unexpected projection: %v", got)
	}
	if _, err := a.ProjectDisplay(subsystem.Time, nil); err == nil {
		t.Fatalf("expected missing projection to fail")
	}
}
