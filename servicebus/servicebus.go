// Package servicebus provides the participant's named system access: RPC
// servers hosting services, requesters invoking them, and the periodic
// service discovery that lets participants of one system find each
// other's addresses.
package servicebus

import (
	"encoding/json"
	"fmt"
)

// Service is an RPC service hosted by a server. Implementations are
// registered under their service name and receive decoded calls.
type Service interface {
	// ServiceName returns the name the service is addressed by.
	ServiceName() string

	// HandleCall executes one method call and returns the result value
	// to encode, or an error mapped to an RPC error response.
	HandleCall(method string, params json.RawMessage) (any, error)
}

// Requester invokes methods on a remote server's services.
type Requester interface {
	// Call invokes service.method with params and decodes the result.
	Call(service, method string, params any) (json.RawMessage, error)
}

// Server hosts RPC services under a name visible on the system.
type Server interface {
	// Name returns the server name (the participant name).
	Name() string

	// URL returns the server's reachable URL.
	URL() string

	// RegisterService adds a service to the server.
	RegisterService(service Service) error

	// UnregisterService removes a service by name.
	UnregisterService(name string) error

	// Stop shuts the server down.
	Stop() error
}

// RPCError is an error response received from (or produced by) the
// remote end of an RPC call, as opposed to a transport failure.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// RPCErrorCode marks the error as a protocol-level error response.
func (e *RPCError) RPCErrorCode() int { return e.Code }

// JSON-RPC wire shapes.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

const jsonRPCVersion = "2.0"

// Well-known RPC error codes.
const (
	rpcErrCodeMethodNotFound = -32601
	rpcErrCodeInvalidParams  = -32602
	rpcErrCodeInternal       = -32603
)
