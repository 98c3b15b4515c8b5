package simbus

import (
	"sync"
)

// TransportLayerMaxMessageSize is the byte threshold above which a
// topic switches to its big QoS profile.
const TransportLayerMaxMessageSize = 63000

// BigProfilePostfix marks the large-message variant of a profile.
const BigProfilePostfix = "_big"

// Profile names independent of the meta type.
const (
	DefaultProfile    = "default_profile"
	StreamTypeProfile = "stream_type"
)

// Profile is a named transport quality-of-service configuration. Only
// the properties the runtime decides by are modeled; the full transport
// QoS stays with the wire layer.
type Profile struct {
	// Name identifies the profile.
	Name string

	// MaxMessageSize bounds the samples the profile can carry; zero
	// means unbounded.
	MaxMessageSize int
}

// ProfileStore holds the QoS profiles known to a simulation bus.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewProfileStore creates a store preloaded with the default profiles:
// one small and one big profile per meta type, the stream-type pair and
// the fallback default profile.
func NewProfileStore() *ProfileStore {
	s := &ProfileStore{profiles: make(map[string]Profile)}
	for _, metaType := range []string{
		MetaTypePlain, MetaTypePlainArray, MetaTypeStruct, MetaTypeString, MetaTypeAnonymous,
	} {
		s.Add(Profile{Name: metaType, MaxMessageSize: TransportLayerMaxMessageSize})
		s.Add(Profile{Name: metaType + BigProfilePostfix})
	}
	s.Add(Profile{Name: StreamTypeProfile, MaxMessageSize: TransportLayerMaxMessageSize})
	s.Add(Profile{Name: StreamTypeProfile + BigProfilePostfix})
	s.Add(Profile{Name: DefaultProfile, MaxMessageSize: TransportLayerMaxMessageSize})
	return s
}

// Add registers or replaces a profile.
func (s *ProfileStore) Add(profile Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.Name] = profile
}

// Get returns a profile by name.
func (s *ProfileStore) Get(name string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[name]
	return p, ok
}

// Contains reports whether a profile name is known.
func (s *ProfileStore) Contains(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.profiles[name]
	return ok
}
