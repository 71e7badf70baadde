// Package rpc is a small line-delimited JSON RPC layer. Launcher frontends
// keep one connection open (usually a unix socket) and issue a search per
// keystroke without paying for HTTP framing.
//
// Protocol: one JSON Request per line, answered by one JSON Response per
// line, in order, on the same connection.
//
//	s := rpc.NewServer()
//	s.Register(proto.MethodSearch, func(ctx context.Context, req json.RawMessage) (any, error) {
//	    var in proto.SearchRequest
//	    ...
//	})
//	go s.Serve("unix:/run/user/1000/fuzzyd.sock")
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/errors"
)

// HandlerFunc processes an RPC request and returns a response or error.
type HandlerFunc func(ctx context.Context, req json.RawMessage) (any, error)

// Request is the wire format for an RPC request.
type Request struct {
	Method string          `json:"method"`
	ID     string          `json:"id"`
	Params json.RawMessage `json:"params"`
}

// Response is the wire format for an RPC response. Code carries the HTTP
// status the same error would produce on the HTTP API.
type Response struct {
	ID    string `json:"id"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Code  int    `json:"code,omitempty"`
}

// Server dispatches RPC requests to registered handlers.
type Server struct {
	handlers map[string]HandlerFunc
	logger   *slog.Logger

	mu       sync.RWMutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewServer() *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		handlers: make(map[string]HandlerFunc),
		conns:    make(map[net.Conn]struct{}),
		logger:   slog.Default().With("component", "rpc-server"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Register adds a handler for the given method name.
// Method names follow the "Service.Method" convention.
func (s *Server) Register(method string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
	s.logger.Debug("method registered", "method", method)
}

// ParseAddr splits "unix:/path", a bare absolute path, or "host:port" into
// a network and address for net.Listen and net.Dial.
func ParseAddr(addr string) (network, address string) {
	switch {
	case strings.HasPrefix(addr, "unix:"):
		return "unix", strings.TrimPrefix(addr, "unix:")
	case strings.HasPrefix(addr, "/"):
		return "unix", addr
	default:
		return "tcp", strings.TrimPrefix(addr, "tcp:")
	}
}

// Listen binds addr. A stale unix socket left by a previous run is removed
// first.
func Listen(addr string) (net.Listener, error) {
	network, address := ParseAddr(addr)
	if network == "unix" {
		if err := os.Remove(address); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("removing stale socket %s: %w", address, err)
		}
	}
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	return ln, nil
}

// Serve listens on addr and blocks until Stop is called.
func (s *Server) Serve(addr string) error {
	ln, err := Listen(addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ln)
}

// ServeListener accepts connections from ln until Stop is called.
func (s *Server) ServeListener(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	if s.ctx.Err() != nil {
		ln.Close()
		return nil
	}
	s.logger.Info("rpc server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("accepting connection: %w", err)
		}
		s.mu.Lock()
		if s.ctx.Err() != nil {
			s.mu.Unlock()
			conn.Close()
			return nil
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	for {
		var req Request
		if err := decoder.Decode(&req); err != nil {
			return // connection closed or malformed stream
		}
		resp := s.dispatch(req)
		if err := encoder.Encode(resp); err != nil {
			s.logger.Error("write error", "method", req.Method, "error", err)
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	s.mu.RLock()
	handler, exists := s.handlers[req.Method]
	s.mu.RUnlock()

	resp := Response{ID: req.ID}
	if !exists {
		resp.Error = fmt.Sprintf("unknown method: %s", req.Method)
		resp.Code = 404
		return resp
	}
	data, err := handler(s.ctx, req.Params)
	if err != nil {
		resp.Error = apperrors.Message(err)
		resp.Code = apperrors.HTTPStatusCode(err)
		if resp.Code >= 500 {
			s.logger.Error("rpc handler failed", "method", req.Method, "error", err)
		}
		return resp
	}
	resp.Data = data
	return resp
}

// MethodCount returns the number of registered methods.
func (s *Server) MethodCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// Stop closes the listener and every open connection, cancels in-flight
// handlers and waits for them to return.
func (s *Server) Stop() {
	s.cancel()
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info("rpc server stopped")
}

// Decode unmarshals RPC params, reporting malformed input as a 400.
func Decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, apperrors.Invalid("malformed params: %v", err)
	}
	return v, nil
}
