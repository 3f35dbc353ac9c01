package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"agrobridge/internal/adapter"
	"agrobridge/pkg/subsystem"
)

// minutesPerDay is the simulated day length shared by both clock
// generations.
const minutesPerDay = 24 * 60

// DefaultSeason seeds phase-2 clocks converted from legacy state, which
// never tracked seasons.
const DefaultSeason = "spring"

// LegacyClock is the original wall-of-counters game clock.
type LegacyClock struct {
	mu        sync.Mutex
	Day       int
	Hour      int
	Minute    int
	TimeScale float64
	Paused    bool
}

// NewLegacyClock starts at day 1, 06:00, the legacy hardcoded dawn.
func NewLegacyClock() *LegacyClock {
	return &LegacyClock{Day: 1, Hour: 6, TimeScale: 1.0}
}

// Advance moves the clock forward by simulated minutes.
func (c *LegacyClock) Advance(minutes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Paused {
		return
	}
	total := (c.Hour*60 + c.Minute) + minutes
	c.Day += total / minutesPerDay
	c.Hour = (total % minutesPerDay) / 60
	c.Minute = total % 60
}

// Clock returns the current day and formatted time.
func (c *LegacyClock) Clock() (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Day, fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

type legacyClockData struct {
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

type clockConfig struct {
	TimeScale float64 `json:"time_scale"`
}

type clockRuntime struct {
	Paused bool `json:"paused"`
}

func legacyClockCodec() subsystem.Codec {
	return codecFor(
		func(_ context.Context, c *LegacyClock) (json.RawMessage, error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			return packLayers(
				legacyClockData{Day: c.Day, Hour: c.Hour, Minute: c.Minute},
				clockConfig{TimeScale: c.TimeScale},
				clockRuntime{Paused: c.Paused},
			)
		},
		func(_ context.Context, c *LegacyClock, state json.RawMessage) error {
			l, err := unpackLayers(state)
			if err != nil {
				return err
			}
			c.mu.Lock()
			defer c.mu.Unlock()
			if len(l.Data) > 0 {
				var data legacyClockData
				if err := json.Unmarshal(l.Data, &data); err != nil {
					return fmt.Errorf("decode clock data: %w", err)
				}
				c.Day, c.Hour, c.Minute = data.Day, data.Hour, data.Minute
			}
			if len(l.Config) > 0 {
				var cfg clockConfig
				if err := json.Unmarshal(l.Config, &cfg); err != nil {
					return fmt.Errorf("decode clock config: %w", err)
				}
				c.TimeScale = cfg.TimeScale
			}
			if len(l.Runtime) > 0 {
				var rt clockRuntime
				if err := json.Unmarshal(l.Runtime, &rt); err != nil {
					return fmt.Errorf("decode clock runtime: %w", err)
				}
				c.Paused = rt.Paused
			}
			return nil
		},
	)
}

// GameClock is the phase-2 clock: one monotonic minute counter plus a
// season, derived values computed on read.
type GameClock struct {
	mu           sync.Mutex
	TotalMinutes int64
	Season       string
	Scale        float64
	Paused       bool
}

// NewGameClock starts at the same dawn as the legacy clock.
func NewGameClock() *GameClock {
	return &GameClock{TotalMinutes: 6 * 60, Season: DefaultSeason, Scale: 1.0}
}

// Advance moves the clock forward by simulated minutes.
func (c *GameClock) Advance(minutes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.Paused {
		c.TotalMinutes += minutes
	}
}

// Clock returns the current day and formatted time.
func (c *GameClock) Clock() (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	day := int(c.TotalMinutes/minutesPerDay) + 1
	rem := c.TotalMinutes % minutesPerDay
	return day, fmt.Sprintf("%02d:%02d", rem/60, rem%60)
}

type gameClockData struct {
	TotalMinutes int64  `json:"total_minutes"`
	Season       string `json:"season"`
}

func gameClockCodec() subsystem.Codec {
	return codecFor(
		func(_ context.Context, c *GameClock) (json.RawMessage, error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			return packLayers(
				gameClockData{TotalMinutes: c.TotalMinutes, Season: c.Season},
				clockConfig{TimeScale: c.Scale},
				clockRuntime{Paused: c.Paused},
			)
		},
		func(_ context.Context, c *GameClock, state json.RawMessage) error {
			l, err := unpackLayers(state)
			if err != nil {
				return err
			}
			c.mu.Lock()
			defer c.mu.Unlock()
			var data gameClockData
			if len(l.Data) > 0 {
				if err := json.Unmarshal(l.Data, &data); err != nil {
					return fmt.Errorf("decode clock data: %w", err)
				}
				c.TotalMinutes = data.TotalMinutes
				if data.Season != "" {
					c.Season = data.Season
				}
			}
			var cfg clockConfig
			if len(l.Config) > 0 {
				if err := json.Unmarshal(l.Config, &cfg); err != nil {
					return fmt.Errorf("decode clock config: %w", err)
				}
				c.Scale = cfg.TimeScale
			}
			var rt clockRuntime
			if len(l.Runtime) > 0 {
				if err := json.Unmarshal(l.Runtime, &rt); err != nil {
					return fmt.Errorf("decode clock runtime: %w", err)
				}
				c.Paused = rt.Paused
			}
			return nil
		},
	)
}

// timeConverter maps the legacy counters onto the monotonic counter and
// back. Legacy state has no season, so the forward conversion defaults it
// and reports the default as a warning.
func timeConverter() adapter.Converter {
	return adapter.Converter{
		ToNew: func(state json.RawMessage) (json.RawMessage, adapter.ConversionResult) {
			l, err := unpackLayers(state)
			if err != nil {
				return nil, adapter.Failed("%v", err)
			}
			var data legacyClockData
			if err := json.Unmarshal(l.Data, &data); err != nil {
				return nil, adapter.Failed("decode legacy clock: %v", err)
			}
			total := int64(data.Day-1)*minutesPerDay + int64(data.Hour)*60 + int64(data.Minute)
			out, err := repackData(l, gameClockData{TotalMinutes: total, Season: DefaultSeason})
			if err != nil {
				return nil, adapter.Failed("%v", err)
			}
			return out, adapter.Converted("season defaulted to " + DefaultSeason)
		},
		ToLegacy: func(state json.RawMessage) (json.RawMessage, adapter.ConversionResult) {
			l, err := unpackLayers(state)
			if err != nil {
				return nil, adapter.Failed("%v", err)
			}
			var data gameClockData
			if err := json.Unmarshal(l.Data, &data); err != nil {
				return nil, adapter.Failed("decode phase-2 clock: %v", err)
			}
			legacy := legacyClockData{
				Day:    int(data.TotalMinutes/minutesPerDay) + 1,
				Hour:   int(data.TotalMinutes%minutesPerDay) / 60,
				Minute: int(data.TotalMinutes % 60),
			}
			var warns []string
			if data.Season != "" && data.Season != DefaultSeason {
				warns = append(warns, "season "+data.Season+" dropped, legacy clock has no seasons")
			}
			out, err := repackData(l, legacy)
			if err != nil {
				return nil, adapter.Failed("%v", err)
			}
			return out, adapter.Converted(warns...)
		},
	}
}
