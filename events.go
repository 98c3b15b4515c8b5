package simnode

// CloudEvent type constants emitted by the participant core.
// Following CloudEvents specification, these use reverse domain notation.
const (
	// Lifecycle transitions
	EventTypeParticipantLoaded        = "com.simnode.participant.loaded"
	EventTypeParticipantUnloaded      = "com.simnode.participant.unloaded"
	EventTypeParticipantInitialized   = "com.simnode.participant.initialized"
	EventTypeParticipantDeinitialized = "com.simnode.participant.deinitialized"
	EventTypeParticipantRunning       = "com.simnode.participant.running"
	EventTypeParticipantPaused        = "com.simnode.participant.paused"
	EventTypeParticipantStopped       = "com.simnode.participant.stopped"
	EventTypeParticipantFinalized     = "com.simnode.participant.finalized"
	EventTypeTransitionFailed         = "com.simnode.participant.transition.failed"
)
