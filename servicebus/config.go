package servicebus

import (
	"time"
)

const defaultUpdateSinkWorkers = 4

// Discovery defaults.
const (
	// DefaultHeartbeatInterval paces alive announcements and searches.
	DefaultHeartbeatInterval = 5 * time.Second

	// DefaultEntryExpiry prunes services not seen within the window.
	DefaultEntryExpiry = 20 * time.Second

	// GetRequesterRoundTimeout bounds one active discover round inside
	// GetRequester.
	GetRequesterRoundTimeout = 1000 * time.Millisecond

	// GetRequesterMaxTries is the number of active discover rounds
	// inside GetRequester.
	GetRequesterMaxTries = 10
)

// Config holds the service bus configuration of one system access.
type Config struct {
	// HeartbeatInterval paces the discovery heartbeat and search.
	HeartbeatInterval time.Duration `json:"heartbeatInterval" yaml:"heartbeatInterval"`

	// EntryExpiry is the staleness window for discovered services.
	EntryExpiry time.Duration `json:"entryExpiry" yaml:"entryExpiry"`

	// UpdateSinkWorkers sizes the update-sink fan-out pool.
	UpdateSinkWorkers int `json:"updateSinkWorkers" yaml:"updateSinkWorkers"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: DefaultHeartbeatInterval,
		EntryExpiry:       DefaultEntryExpiry,
		UpdateSinkWorkers: defaultUpdateSinkWorkers,
	}
}
