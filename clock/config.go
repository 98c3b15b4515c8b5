package clock

import (
	"time"

	"github.com/GoCodeAlone/simnode"
)

// Property node names published by the clock service.
const (
	PropMainClock         = "clock/main_clock"
	PropTimeUpdateTimeout = "clock/time_update_timeout"
	PropSimTimeStepSize   = "clock/clock_sim_time_step_size"
	PropSimTimeTimeFactor = "clock/clock_sim_time_time_factor"
)

// DefaultSimStepSize is the default simulation clock step.
const DefaultSimStepSize = simnode.Timestamp(100 * time.Millisecond)

// DefaultSimTimeFactor is the default simulation speed relative to wall
// time.
const DefaultSimTimeFactor = 1.0

// Config holds the clock service configuration.
type Config struct {
	// MainClock selects the clock driving the participant.
	MainClock string `json:"mainClock" yaml:"mainClock"`

	// TimeUpdateTimeout is the clock master's per-event budget in
	// nanoseconds, clamped to TimeUpdateTimeoutMin.
	TimeUpdateTimeout time.Duration `json:"timeUpdateTimeout" yaml:"timeUpdateTimeout"`

	// SimTimeStepSize is the simulation clock step in nanoseconds.
	SimTimeStepSize simnode.Timestamp `json:"simTimeStepSize" yaml:"simTimeStepSize"`

	// SimTimeTimeFactor is the simulation speed; 0 means as fast as
	// possible.
	SimTimeTimeFactor float64 `json:"simTimeTimeFactor" yaml:"simTimeTimeFactor"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MainClock:         LocalSystemRealtime,
		TimeUpdateTimeout: DefaultTimeUpdateTimeout,
		SimTimeStepSize:   DefaultSimStepSize,
		SimTimeTimeFactor: DefaultSimTimeFactor,
	}
}
