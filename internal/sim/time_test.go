package sim

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLegacyClock_AdvanceWrapsDays(t *testing.T) {
	c := NewLegacyClock()
	c.Advance(19*60 + 30) // 06:00 + 19h30m
	day, clock := c.Clock()
	if day != 2 || clock != "01:30" {
		t.Fatalf("unexpected clock: day %d %s", day, clock)
	}
	c.Paused = true
	c.Advance(60)
	if d, _ := c.Clock(); d != 2 {
		t.Fatalf("paused clock must not advance")
	}
}

func TestGameClock_DerivedClock(t *testing.T) {
	c := NewGameClock()
	if day, clock := c.Clock(); day != 1 || clock != "06:00" {
		t.Fatalf("unexpected start: day %d %s", day, clock)
	}
	c.Advance(2*minutesPerDay + 90)
	if day, clock := c.Clock(); day != 3 || clock != "07:30" {
		t.Fatalf("unexpected clock: day %d %s", day, clock)
	}
}

func TestTimeConverter_ForwardDefaultsSeason(t *testing.T) {
	legacy := NewLegacyClock()
	legacy.Day, legacy.Hour, legacy.Minute = 3, 14, 30
	legacy.TimeScale = 2.0

	state, err := legacyClockCodec().Extractor.Extract(context.Background(), legacy)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	out, res := timeConverter().ToNew(state)
	if !res.Success {
		t.Fatalf("convert failed: %s", res.Error)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "season defaulted") {
		t.Fatalf("expected season warning, got %v", res.Warnings)
	}

	l, err := unpackLayers(out)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	var data gameClockData
	if err := json.Unmarshal(l.Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.TotalMinutes != 2*minutesPerDay+14*60+30 {
		t.Fatalf("unexpected total minutes: %d", data.TotalMinutes)
	}
	if data.Season != DefaultSeason {
		t.Fatalf("unexpected season: %s", data.Season)
	}
	// Config crosses generations untouched.
	var cfg clockConfig
	if err := json.Unmarshal(l.Config, &cfg); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.TimeScale != 2.0 {
		t.Fatalf("time scale lost in conversion: %v", cfg.TimeScale)
	}
}

func TestTimeConverter_BackwardDropsSeason(t *testing.T) {
	clock := NewGameClock()
	clock.TotalMinutes = 3750
	clock.Season = "winter"

	state, err := gameClockCodec().Extractor.Extract(context.Background(), clock)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	out, res := timeConverter().ToLegacy(state)
	if !res.Success {
		t.Fatalf("convert failed: %s", res.Error)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "season winter dropped") {
		t.Fatalf("expected season-drop warning, got %v", res.Warnings)
	}

	legacy := NewLegacyClock()
	if err := legacyClockCodec().Restorer.Restore(context.Background(), legacy, out); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if legacy.Day != 3 || legacy.Hour != 14 || legacy.Minute != 30 {
		t.Fatalf("unexpected legacy clock: %+v", legacy)
	}
}

func TestGameClockCodec_PartialRestoreTouchesOneLayer(t *testing.T) {
	clock := NewGameClock()
	clock.TotalMinutes = 999
	clock.Scale = 3.0

	payload := json.RawMessage(`{"config":{"time_scale":1.5}}`)
	if err := gameClockCodec().Restorer.Restore(context.Background(), clock, payload); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if clock.Scale != 1.5 {
		t.Fatalf("config layer not restored: %v", clock.Scale)
	}
	if clock.TotalMinutes != 999 {
		t.Fatalf("data layer must stay untouched: %d", clock.TotalMinutes)
	}
}

func TestClockCodec_RejectsWrongInstanceType(t *testing.T) {
	if _, err := gameClockCodec().Extractor.Extract(context.Background(), NewLegacyClock()); err == nil {
		t.Fatalf("expected type mismatch error")
	}
}
