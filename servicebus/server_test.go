package servicebus

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/simnode"
)

// echoService returns its params back to the caller.
type echoService struct {
	name string
}

func (s *echoService) ServiceName() string { return s.name }

func (s *echoService) HandleCall(method string, params json.RawMessage) (any, error) {
	switch method {
	case "echo":
		var decoded map[string]string
		if err := json.Unmarshal(params, &decoded); err != nil {
			return nil, fmt.Errorf("malformed params: %w", simnode.ErrInvalidArg)
		}
		return decoded, nil
	case "fail":
		return nil, &RPCError{Code: -32000, Message: "deliberate failure"}
	default:
		return nil, fmt.Errorf("no method %q: %w", method, simnode.ErrNotFound)
	}
}

func startTestServer(t *testing.T) Server {
	t.Helper()
	server, err := NewServer("test_server", "http://127.0.0.1:0", "test_system", simnode.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

func TestServerPicksFreePortInRange(t *testing.T) {
	server := startTestServer(t)
	assert.Regexp(t, `^http://127\.0\.0\.1:(9[0-9]{3}|10[0-9]{3})$`, server.URL())
}

func TestServerRequesterRoundtrip(t *testing.T) {
	server := startTestServer(t)
	require.NoError(t, server.RegisterService(&echoService{name: "echo"}))

	requester, err := NewRequester(server.URL())
	require.NoError(t, err)

	result, err := requester.Call("echo", "echo", map[string]string{"hello": "world"})
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(result, &decoded))
	assert.Equal(t, map[string]string{"hello": "world"}, decoded)
}

func TestServerReturnsRPCErrorToCaller(t *testing.T) {
	server := startTestServer(t)
	require.NoError(t, server.RegisterService(&echoService{name: "echo"}))

	requester, err := NewRequester(server.URL())
	require.NoError(t, err)

	_, err = requester.Call("echo", "fail", nil)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32000, rpcErr.Code)

	_, err = requester.Call("no_such_service", "echo", nil)
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, rpcErrCodeMethodNotFound, rpcErr.Code)
}

func TestServerRejectsDuplicateService(t *testing.T) {
	server := startTestServer(t)
	require.NoError(t, server.RegisterService(&echoService{name: "echo"}))
	assert.ErrorIs(t, server.RegisterService(&echoService{name: "echo"}), simnode.ErrAlreadyRegistered)

	require.NoError(t, server.UnregisterService("echo"))
	assert.ErrorIs(t, server.UnregisterService("echo"), simnode.ErrNotFound)
}

func TestRequesterMapsWildcardHostToLoopback(t *testing.T) {
	requester, err := NewRequester("http://0.0.0.0:9095")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9095", requester.(*httpRequester).serverURL)
}

func TestRequesterRejectsNonHTTP(t *testing.T) {
	_, err := NewRequester("ftp://127.0.0.1:9095")
	assert.ErrorIs(t, err, simnode.ErrInvalidArg)
}

func TestRequesterTransportFailure(t *testing.T) {
	requester, err := NewRequester("http://127.0.0.1:1")
	require.NoError(t, err)

	_, err = requester.Call("echo", "echo", nil)
	assert.ErrorIs(t, err, simnode.ErrBadDevice)
}
