package simbus

import (
	"sync"
	"time"

	"github.com/GoCodeAlone/simnode"
)

// Topic pairs a sample endpoint with a stream-type endpoint under one
// name and owns the QoS profile selection for both. The sample profile
// depends monotonically on the observed stream-type size class: it
// switches to the big profile when a type crosses the transport
// threshold and switches back only on an explicit re-declaration below
// it.
type Topic struct {
	name      string
	transport Transport
	profiles  *ProfileStore
	logger    simnode.Logger

	mu                sync.Mutex
	streamType        StreamType
	sampleProfile     Profile
	streamTypeProfile Profile
	warnedFallback    bool
}

func newTopic(transport Transport, name string, streamType StreamType, profiles *ProfileStore, logger simnode.Logger) *Topic {
	t := &Topic{
		name:      name,
		transport: transport,
		profiles:  profiles,
		logger:    logger,
	}
	t.streamType = streamType
	t.streamTypeProfile = t.findStreamTypeProfile(streamType)
	t.sampleProfile = t.findSampleProfile(streamType)
	logger.Debug("using qos profile for stream type topic",
		"topic", name, "profile", t.streamTypeProfile.Name)
	logger.Debug("using qos profile for sample topic",
		"topic", name, "profile", t.sampleProfile.Name)
	return t
}

// Name returns the topic name.
func (t *Topic) Name() string { return t.name }

// StreamType returns the current stream type.
func (t *Topic) StreamType() StreamType {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.streamType
}

// SampleProfile returns the currently selected sample QoS profile.
func (t *Topic) SampleProfile() Profile {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sampleProfile
}

// StreamTypeProfile returns the stream-type endpoint's QoS profile.
func (t *Topic) StreamTypeProfile() Profile {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.streamTypeProfile
}

// UpdateStreamType applies an updated stream type and reports whether
// the sample profile changed, requiring the sample endpoints to be
// rebuilt (the reader rebuilds on its reception thread, the writer on
// its next stream-type write).
func (t *Topic) UpdateStreamType(streamType StreamType) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if streamType.Equal(t.streamType) {
		return false
	}
	t.streamType = streamType

	profile := t.findSampleProfile(streamType)
	if profile.Name == t.sampleProfile.Name {
		return false
	}
	t.logger.Debug("update qos profile for topic",
		"topic", t.name, "from", t.sampleProfile.Name, "to", profile.Name)
	t.sampleProfile = profile
	return true
}

// WaitForConnectingWriters blocks until a matching writer appears on
// the topic, bounded by timeout.
func (t *Topic) WaitForConnectingWriters(timeout time.Duration) bool {
	return t.transport.WaitForWriter(t.name, timeout)
}

// findStreamTypeProfile selects the profile of the stream-type endpoint
// from the metadata size.
func (t *Topic) findStreamTypeProfile(streamType StreamType) Profile {
	name := StreamTypeProfile
	if streamType.MetadataSize() >= TransportLayerMaxMessageSize {
		name = StreamTypeProfile + BigProfilePostfix
		t.logger.Debug("stream type content exceeds max transport limit, using big profile",
			"topic", t.name, "meta_type", streamType.MetaType(),
			"limit", TransportLayerMaxMessageSize, "profile", name)
	}
	profile, ok := t.profiles.Get(name)
	if !ok {
		profile = Profile{Name: name}
	}
	return profile
}

// findSampleProfile selects the sample profile from the computed sample
// size; unknown meta types fall back to the default profile with a
// one-time warning per topic.
func (t *Topic) findSampleProfile(streamType StreamType) Profile {
	metaType := streamType.MetaType()

	if streamType.SampleSize() >= TransportLayerMaxMessageSize {
		bigName := metaType + BigProfilePostfix
		if profile, ok := t.profiles.Get(bigName); ok {
			t.logger.Debug("sample size described by stream type exceeds max transport limit, using big profile",
				"topic", t.name, "meta_type", metaType,
				"limit", TransportLayerMaxMessageSize, "profile", bigName)
			return profile
		}
	}

	if profile, ok := t.profiles.Get(metaType); ok {
		return profile
	}

	if !t.warnedFallback {
		t.warnedFallback = true
		t.logger.Warn("meta type has no qos profile, using default profile",
			"topic", t.name, "meta_type", metaType, "profile", DefaultProfile)
	}
	profile, ok := t.profiles.Get(DefaultProfile)
	if !ok {
		profile = Profile{Name: DefaultProfile}
	}
	return profile
}
