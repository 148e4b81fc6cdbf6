package reconcile

import "time"

// Defaults for window sizing
const (
	DefaultInterval        = 2 * time.Minute
	DefaultInitialLookback = 7 * 24 * time.Hour
	DefaultStaleAfter      = 24 * time.Hour
	OverlapFactor          = 3
)

// WindowConfig sizes the lookback window
type WindowConfig struct {
	Interval        time.Duration
	InitialLookback time.Duration
	StaleAfter      time.Duration
}

// DefaultWindowConfig returns the default window configuration
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		Interval:        DefaultInterval,
		InitialLookback: DefaultInitialLookback,
		StaleAfter:      DefaultStaleAfter,
	}
}

func (c WindowConfig) withDefaults() WindowConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.InitialLookback <= 0 {
		c.InitialLookback = DefaultInitialLookback
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	return c
}

// Window is the change interval read by one run
type Window struct {
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Lookback time.Duration `json:"lookback"`
	FirstRun bool          `json:"first_run"`
}

// CalculateWindow sizes the window for a run starting at now.
// A missing or stale checkpoint gets the initial lookback; otherwise the
// window spans OverlapFactor intervals so slow or missed ticks are covered.
func CalculateWindow(lastRunAt *time.Time, now time.Time, cfg WindowConfig) Window {
	cfg = cfg.withDefaults()

	firstRun := lastRunAt == nil || now.Sub(*lastRunAt) > cfg.StaleAfter
	lookback := cfg.Interval * OverlapFactor
	if firstRun {
		lookback = cfg.InitialLookback
	}

	return Window{
		Start:    now.Add(-lookback),
		End:      now,
		Lookback: lookback,
		FirstRun: firstRun,
	}
}
