package rpcdef

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/GoCodeAlone/simnode/clock"
)

// ClockService exposes the clock service on the bus.
type ClockService struct {
	clocks *clock.Service
}

// NewClockService wraps the clock service.
func NewClockService(clocks *clock.Service) *ClockService {
	return &ClockService{clocks: clocks}
}

func (s *ClockService) ServiceName() string { return ServiceClock }

type clockNameParams struct {
	ClockName string `json:"clock_name"`
}

func (s *ClockService) HandleCall(method string, params json.RawMessage) (any, error) {
	switch method {
	case "getClockNames":
		return strings.Join(s.clocks.Registry().Names(), ","), nil

	case "getMainClockName":
		return s.clocks.MainClockName(), nil

	case "getTime":
		var p clockNameParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		t, ok := s.clocks.GetTimeOf(p.ClockName)
		if !ok {
			return "-1", nil
		}
		return strconv.FormatInt(int64(t), 10), nil

	case "getType":
		var p clockNameParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		clockType, ok := s.clocks.GetTypeOf(p.ClockName)
		if !ok {
			return -1, nil
		}
		return int(clockType), nil

	default:
		return nil, methodNotFound(ServiceClock, method)
	}
}
