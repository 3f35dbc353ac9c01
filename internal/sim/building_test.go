package sim

import (
	"context"
	"encoding/json"
	"testing"
)

func TestBuildingConverter_ConditionToIntegrity(t *testing.T) {
	yard := NewLegacyBuildings()
	yard.Build("barn")
	yard.Buildings[0].Condition = 75
	yard.MaintenanceBudget = 800

	state, err := legacyBuildingsCodec().Extractor.Extract(context.Background(), yard)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	out, res := buildingConverter().ToNew(state)
	if !res.Success {
		t.Fatalf("convert failed: %s", res.Error)
	}

	mgr := NewBuildingManager()
	if err := buildingManagerCodec().Restorer.Restore(context.Background(), mgr, out); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if len(mgr.Structures) != 1 || mgr.Structures[0].Integrity != 0.75 {
		t.Fatalf("unexpected structures: %+v", mgr.Structures)
	}
	if mgr.MaintenanceBudget != 800 {
		t.Fatalf("maintenance budget lost: %v", mgr.MaintenanceBudget)
	}
}

func TestBuildingConverter_RoundTrip(t *testing.T) {
	mgr := NewBuildingManager()
	mgr.Build("silo")
	mgr.Structures[0].Integrity = 0.4

	state, err := buildingManagerCodec().Extractor.Extract(context.Background(), mgr)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	out, res := buildingConverter().ToLegacy(state)
	if !res.Success {
		t.Fatalf("convert failed: %s", res.Error)
	}
	l, err := unpackLayers(out)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	var data buildingsData
	if err := json.Unmarshal(l.Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.BuildingCount != 1 || data.Buildings[0].Condition != 40 {
		t.Fatalf("unexpected buildings: %+v", data)
	}
}
