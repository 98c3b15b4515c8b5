package rpcdef

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/GoCodeAlone/simnode"
	"github.com/GoCodeAlone/simnode/clock"
	"github.com/GoCodeAlone/simnode/servicebus"
)

// syncTimeEventParams is the wire shape of a clock sync event. Times
// travel as decimal nanosecond strings.
type syncTimeEventParams struct {
	EventID  int    `json:"event_id"`
	NewTime  string `json:"new_time"`
	Arg      string `json:"arg"`
	Reserved string `json:"_"`
}

type registerSyncSlaveParams struct {
	EventMask  int    `json:"event_mask"`
	ClientName string `json:"client_name"`
}

type clientNameParams struct {
	ClientName string `json:"client_name"`
}

type slaveSyncedParams struct {
	NewTime    string `json:"new_time"`
	ClientName string `json:"client_name"`
}

// ClockSyncMasterService exposes the clock master on the bus: remote
// participants register as sync slaves and query the master's time.
type ClockSyncMasterService struct {
	master *clock.MainEventSink
	clocks *clock.Service
}

// NewClockSyncMasterService wraps the clock master and the clock
// service it reports time from.
func NewClockSyncMasterService(master *clock.MainEventSink, clocks *clock.Service) *ClockSyncMasterService {
	return &ClockSyncMasterService{master: master, clocks: clocks}
}

func (s *ClockSyncMasterService) ServiceName() string { return ServiceClockSyncMaster }

func (s *ClockSyncMasterService) HandleCall(method string, params json.RawMessage) (any, error) {
	switch method {
	case "registerSyncSlave":
		var p registerSyncSlaveParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return resultOf(s.master.RegisterClient(p.ClientName, p.EventMask), "registered"), nil

	case "unregisterSyncSlave":
		var p clientNameParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return resultOf(s.master.UnregisterClient(p.ClientName), "unregistered"), nil

	case "slaveSyncedEvent":
		var p slaveSyncedParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		t, err := strconv.ParseInt(p.NewTime, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed new_time %q: %w", p.NewTime, simnode.ErrInvalidArg)
		}
		return resultOf(s.master.ReceiveClientSyncedEvent(p.ClientName, simnode.Timestamp(t)), "synced"), nil

	case "getMasterTime":
		return strconv.FormatInt(int64(s.clocks.GetTime()), 10), nil

	case "getMasterType":
		return int(s.clocks.GetType()), nil

	default:
		return nil, methodNotFound(ServiceClockSyncMaster, method)
	}
}

// SyncSlaveHandler receives the master's time events on the slave side.
type SyncSlaveHandler interface {
	SyncTimeEvent(eventID int, newTime, arg simnode.Timestamp) error
}

// ClockSyncSlaveService receives syncTimeEvent calls from a clock
// master and forwards them to the slave handler.
type ClockSyncSlaveService struct {
	handler SyncSlaveHandler
}

// NewClockSyncSlaveService wraps handler.
func NewClockSyncSlaveService(handler SyncSlaveHandler) *ClockSyncSlaveService {
	return &ClockSyncSlaveService{handler: handler}
}

func (s *ClockSyncSlaveService) ServiceName() string { return ServiceClockSyncSlave }

func (s *ClockSyncSlaveService) HandleCall(method string, params json.RawMessage) (any, error) {
	switch method {
	case "syncTimeEvent":
		var p syncTimeEventParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		newTime, err := strconv.ParseInt(p.NewTime, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed new_time %q: %w", p.NewTime, simnode.ErrInvalidArg)
		}
		var arg int64
		if p.Arg != "" {
			arg, err = strconv.ParseInt(p.Arg, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("malformed arg %q: %w", p.Arg, simnode.ErrInvalidArg)
			}
		}
		if err := s.handler.SyncTimeEvent(p.EventID, simnode.Timestamp(newTime), simnode.Timestamp(arg)); err != nil {
			return nil, err
		}
		return "0", nil

	default:
		return nil, methodNotFound(ServiceClockSyncSlave, method)
	}
}

// clockSyncClient adapts a service bus requester to the clock master's
// SyncClient, addressing the remote slave service.
type clockSyncClient struct {
	requester servicebus.Requester
}

// NewClockSyncClient wraps a requester for use by the clock master.
func NewClockSyncClient(requester servicebus.Requester) clock.SyncClient {
	return &clockSyncClient{requester: requester}
}

func (c *clockSyncClient) SyncTimeEvent(eventID int, newTime, arg1, arg2 string) (string, error) {
	result, err := c.requester.Call(ServiceClockSyncSlave, "syncTimeEvent", syncTimeEventParams{
		EventID:  eventID,
		NewTime:  newTime,
		Arg:      arg1,
		Reserved: arg2,
	})
	if err != nil {
		return "", err
	}
	var decoded string
	if err := json.Unmarshal(result, &decoded); err != nil {
		return "", fmt.Errorf("malformed syncTimeEvent result: %w", simnode.ErrBadDevice)
	}
	return decoded, nil
}

// ResolverFor builds the clock master's requester resolver on top of a
// system access.
func ResolverFor(access *servicebus.SystemAccess) clock.RequesterResolver {
	return func(clientName string) clock.SyncClient {
		requester := access.GetRequester(clientName)
		if requester == nil {
			return nil
		}
		return NewClockSyncClient(requester)
	}
}
