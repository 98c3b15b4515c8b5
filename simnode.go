// Package simnode provides a runtime for distributed, time-coordinated
// simulation participants. A participant hosts a user-supplied element,
// exposes it on a service bus, synchronises its notion of simulation time
// with peers and exchanges typed data samples over a publish/subscribe
// simulation bus.
//
// The package is composed of a small core (participant identity, the
// lifecycle state machine and the component contracts) and three
// subsystem packages:
//
//   - clock: pluggable clocks, the event-sink registry and the clock
//     master that drives remote time clients over RPC
//   - servicebus: named system access, RPC servers/requesters and
//     periodic service discovery
//   - simbus: typed topics, QoS selection and the reception wait-set
//
// Basic usage (see the participant package for the full assembly):
//
//	p, err := participant.New("driver", "test_system", participant.Options{
//		Logger:  logger,
//		Element: element,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := p.Load(); err != nil {
//		log.Fatal(err)
//	}
package simnode

// Timestamp is a point in simulation time expressed in nanoseconds.
// Continuous clocks report time since their last reset, discrete clocks
// report the accumulated step count times the step size.
type Timestamp int64

// Identity is the process-wide participant identity. Both names are
// immutable for the process lifetime; the participant appears on the
// service bus as "<ParticipantName>@<SystemName>".
type Identity struct {
	ParticipantName string
	SystemName      string
}

// String returns the unique service name of the participant.
func (id Identity) String() string {
	return id.ParticipantName + "@" + id.SystemName
}
