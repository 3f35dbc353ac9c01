package sim

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestEmployeeConverter_MintsIdsAndFillsGaps(t *testing.T) {
	roster := NewLegacyRoster()
	roster.Hire(LegacyWorker{Name: "Ada", Wage: 3000, Skill: 4})
	roster.Hire(LegacyWorker{Name: "Ben", Skill: 2}) // pre-wage record

	state, err := legacyRosterCodec().Extractor.Extract(context.Background(), roster)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	out, res := employeeConverter().ToNew(state)
	if !res.Success {
		t.Fatalf("convert failed: %s", res.Error)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "Ben had no wage") {
		t.Fatalf("expected base-wage warning, got %v", res.Warnings)
	}

	l, err := unpackLayers(out)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	var data workforceData
	if err := json.Unmarshal(l.Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Headcount != 2 || data.PayrollTotal != 3000+DefaultBaseWage {
		t.Fatalf("derived fields wrong: %+v", data)
	}
	if data.Staff[0].ID == "" || data.Staff[1].ID == "" || data.Staff[0].ID == data.Staff[1].ID {
		t.Fatalf("ids must be minted and distinct: %+v", data.Staff)
	}
	if data.Staff[1].Wage != DefaultBaseWage || data.Staff[0].Morale != 1.0 {
		t.Fatalf("conversion defaults wrong: %+v", data.Staff)
	}
}

func TestEmployeeConverter_BackwardDropsIds(t *testing.T) {
	wf := NewWorkforceManager()
	wf.Hire(Employee{Name: "Ada", Wage: 3000, Skill: 3.7, Morale: 0.8})

	state, err := workforceCodec().Extractor.Extract(context.Background(), wf)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	out, res := employeeConverter().ToLegacy(state)
	if !res.Success {
		t.Fatalf("convert failed: %s", res.Error)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "ids and morale dropped") {
		t.Fatalf("expected drop warning, got %v", res.Warnings)
	}

	roster := NewLegacyRoster()
	if err := legacyRosterCodec().Restorer.Restore(context.Background(), roster, out); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if len(roster.Workers) != 1 || roster.Workers[0].Name != "Ada" || roster.Workers[0].Skill != 3 {
		t.Fatalf("roster not rebuilt: %+v", roster.Workers)
	}
	if roster.Payroll() != 3000 {
		t.Fatalf("unexpected payroll: %v", roster.Payroll())
	}
}

func TestWorkforceManager_HireMintsId(t *testing.T) {
	wf := NewWorkforceManager()
	wf.Hire(Employee{Name: "Ada"})
	if wf.Staff[0].ID == "" {
		t.Fatalf("hire must mint an id")
	}
}
