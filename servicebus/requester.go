package servicebus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/GoCodeAlone/simnode"
)

// httpRequester invokes services on a remote HTTP RPC server.
type httpRequester struct {
	serverURL string
	client    *http.Client
	nextID    atomic.Int64
}

// NewRequester creates a requester for the server at serverURL. Only the
// http scheme is supported; a 0.0.0.0 host is mapped to loopback.
func NewRequester(serverURL string) (Requester, error) {
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("can not create requester, url %q is not well formed: %w",
			serverURL, simnode.ErrInvalidArg)
	}
	if parsed.Scheme != "http" {
		return nil, fmt.Errorf("can not create requester, only http is supported but url is %q: %w",
			serverURL, simnode.ErrInvalidArg)
	}
	if parsed.Hostname() == "0.0.0.0" {
		serverURL = "http://127.0.0.1:" + parsed.Port()
	}
	return &httpRequester{
		serverURL: serverURL,
		client:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (r *httpRequester) Call(service, method string, params any) (json.RawMessage, error) {
	var encodedParams json.RawMessage
	if params != nil {
		var err error
		encodedParams, err = json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encoding params for %s.%s: %w", service, method, simnode.ErrInvalidArg)
		}
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: jsonRPCVersion,
		ID:      r.nextID.Add(1),
		Method:  method,
		Params:  encodedParams,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request for %s.%s: %w", service, method, simnode.ErrInvalidArg)
	}

	resp, err := r.client.Post(r.serverURL+"/rpc/"+service, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("calling %s.%s on %s: %w", service, method, r.serverURL, simnode.ErrBadDevice)
	}
	defer func() { _ = resp.Body.Close() }()

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding response of %s.%s: %w", service, method, simnode.ErrBadDevice)
	}
	if decoded.Error != nil {
		return nil, decoded.Error
	}
	return decoded.Result, nil
}
