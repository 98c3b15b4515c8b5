// Package rpcdef defines the RPC services a participant exposes on the
// service bus and the client adapters invoking them: the participant
// lifecycle service, the clock service and the clock sync master/slave
// pair.
package rpcdef

import (
	"encoding/json"
	"fmt"

	"github.com/GoCodeAlone/simnode"
)

// Service names on the bus.
const (
	ServiceParticipant     = "participant"
	ServiceClock           = "clock"
	ServiceClockSyncMaster = "clock_sync_master"
	ServiceClockSyncSlave  = "clock_sync_slave"
)

// CallResult is the JSON shape returned by lifecycle operations.
type CallResult struct {
	Result      int    `json:"result"`
	Description string `json:"description"`
}

func resultOf(err error, successDescription string) CallResult {
	if err != nil {
		return CallResult{Result: simnode.ResultCode(err), Description: err.Error()}
	}
	return CallResult{Result: simnode.ResultOK, Description: successDescription}
}

func methodNotFound(service, method string) error {
	return fmt.Errorf("service %q has no method %q: %w", service, method, simnode.ErrNotFound)
}

func decodeParams(params json.RawMessage, into any) error {
	if len(params) == 0 {
		return fmt.Errorf("missing params: %w", simnode.ErrInvalidArg)
	}
	if err := json.Unmarshal(params, into); err != nil {
		return fmt.Errorf("malformed params: %w", simnode.ErrInvalidArg)
	}
	return nil
}

// LifecycleService exposes the participant state machine on the bus.
type LifecycleService struct {
	machine *simnode.StateMachine
}

// NewLifecycleService wraps machine.
func NewLifecycleService(machine *simnode.StateMachine) *LifecycleService {
	return &LifecycleService{machine: machine}
}

func (s *LifecycleService) ServiceName() string { return ServiceParticipant }

func (s *LifecycleService) HandleCall(method string, params json.RawMessage) (any, error) {
	switch method {
	case "load":
		return resultOf(s.machine.Load(), "loaded"), nil
	case "unload":
		return resultOf(s.machine.Unload(), "unloaded"), nil
	case "initialize":
		return resultOf(s.machine.Initialize(), "initialized"), nil
	case "deinitialize":
		return resultOf(s.machine.Deinitialize(), "deinitialized"), nil
	case "start":
		return resultOf(s.machine.Start(), "started"), nil
	case "stop":
		return resultOf(s.machine.Stop(), "stopped"), nil
	case "pause":
		return resultOf(s.machine.Pause(), "paused"), nil
	case "exit":
		return resultOf(s.machine.Exit(), "finalized"), nil
	case "getCurrentStateName":
		return CallResult{Result: simnode.ResultOK, Description: s.machine.GetCurrentStateName()}, nil
	default:
		return nil, methodNotFound(ServiceParticipant, method)
	}
}
