package servicebus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/GoCodeAlone/simnode"
)

// Free-port selection range used when a server URL names port 0.
const (
	freePortRangeBegin = 9090
	freePortRangeEnd   = 10090
)

// findFreePort returns the first bindable port in [begin, end), or an
// error when the range is exhausted.
func findFreePort(host string, begin, end int) (int, error) {
	for port := begin; port < end; port++ {
		l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			_ = l.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no free port in [%d, %d): %w", begin, end, simnode.ErrIOFailure)
}

// httpServer hosts RPC services over HTTP. Calls are routed as
// POST /rpc/{service} carrying a JSON-RPC request body.
type httpServer struct {
	name       string
	serverURL  string
	systemName string
	logger     simnode.Logger

	mu       sync.Mutex
	services map[string]Service

	httpSrv  *http.Server
	listener net.Listener
}

// NewServer creates and starts an HTTP RPC server. A URL with port 0
// picks a free port in [9090, 10090).
func NewServer(name, serverURL, systemName string, logger simnode.Logger) (Server, error) {
	if logger == nil {
		logger = simnode.NopLogger{}
	}
	parsed, err := url.Parse(serverURL)
	if err != nil || parsed.Scheme != "http" {
		return nil, fmt.Errorf("can not create server %q, url %q is not well formed: %w",
			name, serverURL, simnode.ErrInvalidArg)
	}

	host := parsed.Hostname()
	if host == "" {
		host = "0.0.0.0"
	}
	port, err := strconv.Atoi(parsed.Port())
	if err != nil {
		return nil, fmt.Errorf("can not create server %q, url %q has no usable port: %w",
			name, serverURL, simnode.ErrInvalidArg)
	}
	if port == 0 {
		port, err = findFreePort(host, freePortRangeBegin, freePortRangeEnd)
		if err != nil {
			return nil, err
		}
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("can not create server %q on port %d: %w", name, port, simnode.ErrIOFailure)
	}

	s := &httpServer{
		name:       name,
		serverURL:  fmt.Sprintf("http://%s:%d", host, port),
		systemName: systemName,
		logger:     logger,
		services:   make(map[string]Service),
		listener:   listener,
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Post("/rpc/{service}", s.handleRPC)
	s.httpSrv = &http.Server{Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("rpc server terminated", "server", name, "error", err)
		}
	}()

	logger.Debug("rpc server started", "server", name, "url", s.serverURL)
	return s, nil
}

func (s *httpServer) Name() string { return s.name }
func (s *httpServer) URL() string  { return s.serverURL }

func (s *httpServer) RegisterService(service Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := service.ServiceName()
	if _, ok := s.services[name]; ok {
		return fmt.Errorf("service %q: %w", name, simnode.ErrAlreadyRegistered)
	}
	s.services[name] = service
	return nil
}

func (s *httpServer) UnregisterService(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.services[name]; !ok {
		return fmt.Errorf("service %q: %w", name, simnode.ErrNotFound)
	}
	delete(s.services, name)
	return nil
}

func (s *httpServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("stopping rpc server %q: %w", s.name, simnode.ErrIOFailure)
	}
	return nil
}

func (s *httpServer) handleRPC(w http.ResponseWriter, r *http.Request) {
	serviceName := chi.URLParam(r, "service")

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCResponse(w, rpcResponse{JSONRPC: jsonRPCVersion,
			Error: &RPCError{Code: rpcErrCodeInvalidParams, Message: "malformed request"}})
		return
	}

	s.mu.Lock()
	service, ok := s.services[serviceName]
	s.mu.Unlock()
	if !ok {
		writeRPCResponse(w, rpcResponse{JSONRPC: jsonRPCVersion, ID: req.ID,
			Error: &RPCError{Code: rpcErrCodeMethodNotFound,
				Message: fmt.Sprintf("service %q not found", serviceName)}})
		return
	}

	result, err := service.HandleCall(req.Method, req.Params)
	if err != nil {
		var rpcErr *RPCError
		if !errors.As(err, &rpcErr) {
			rpcErr = &RPCError{Code: rpcErrCodeInternal, Message: err.Error()}
		}
		writeRPCResponse(w, rpcResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Error: rpcErr})
		return
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		writeRPCResponse(w, rpcResponse{JSONRPC: jsonRPCVersion, ID: req.ID,
			Error: &RPCError{Code: rpcErrCodeInternal, Message: "result encoding failed"}})
		return
	}
	writeRPCResponse(w, rpcResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Result: encoded})
}

func writeRPCResponse(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
