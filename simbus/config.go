package simbus

import (
	"time"
)

// MustBeReadyAll is the signal-list entry applying the writer readiness
// wait to every signal.
const MustBeReadyAll = "*"

// receptionWaitTimeout is the periodic wake of the reception wait-set.
const receptionWaitTimeout = 100 * time.Millisecond

const defaultAsyncWaitsetThreads = 2

// Config holds the simulation bus configuration.
type Config struct {
	// ParticipantDomain is the simulation-bus domain id.
	ParticipantDomain int32 `json:"participantDomain" yaml:"participantDomain"`

	// UseAsyncWaitset selects the pool-backed reception strategy.
	UseAsyncWaitset bool `json:"useAsyncWaitset" yaml:"useAsyncWaitset"`

	// AsyncWaitsetThreads sizes the reception pool.
	AsyncWaitsetThreads int `json:"asyncWaitsetThreads" yaml:"asyncWaitsetThreads"`

	// DatawriterReadyTimeout bounds the wait for matching writers when
	// creating a reader for a must-be-ready signal.
	DatawriterReadyTimeout time.Duration `json:"datawriterReadyTimeout" yaml:"datawriterReadyTimeout"`

	// MustBeReadySignals lists the signals the readiness wait applies
	// to; "*" means all.
	MustBeReadySignals []string `json:"mustBeReadySignals" yaml:"mustBeReadySignals"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		ParticipantDomain:   0,
		UseAsyncWaitset:     false,
		AsyncWaitsetThreads: defaultAsyncWaitsetThreads,
	}
}
