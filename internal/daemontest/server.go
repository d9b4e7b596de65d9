// Package daemontest provides an in-process fake daemon that speaks the
// newline-delimited JSON-RPC protocol over a temporary Unix socket.
package daemontest

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/wagiedev/daemonkit/internal/api"
)

// JSON-RPC error codes used by the fake.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is a request as received by the fake.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Error is a JSON-RPC error returned from a handler.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// HandlerFunc answers one method. Returning a non-nil *Error produces an
// error reply; otherwise result is sent.
type HandlerFunc func(params json.RawMessage) (any, *Error)

// RawHandlerFunc writes arbitrary reply lines for one request. Each returned
// string is written followed by a newline. An empty slice sends nothing.
type RawHandlerFunc func(req Request) []string

// Server is a fake daemon listening on a Unix socket.
type Server struct {
	Path string

	ln net.Listener

	mu          sync.Mutex
	handlers    map[string]HandlerFunc
	raw         map[string]RawHandlerFunc
	requests    []Request
	conns       map[net.Conn]struct{}
	subscribers map[net.Conn]*sync.Mutex
	subReject   *Error
	bareEvents  bool
	subSeq      int

	wg sync.WaitGroup
}

// New starts a fake daemon and registers its shutdown with t.Cleanup.
//
// The socket lives in a short temp dir since Unix socket paths are limited
// to roughly 100 bytes.
func New(t testing.TB) *Server {
	t.Helper()

	dir, err := os.MkdirTemp("", "dk")
	if err != nil {
		t.Fatalf("create socket dir: %v", err)
	}

	path := filepath.Join(dir, "daemon.sock")

	ln, err := net.Listen("unix", path)
	if err != nil {
		_ = os.RemoveAll(dir)
		t.Fatalf("listen on %s: %v", path, err)
	}

	s := &Server{
		Path:        path,
		ln:          ln,
		handlers:    make(map[string]HandlerFunc),
		raw:         make(map[string]RawHandlerFunc),
		conns:       make(map[net.Conn]struct{}),
		subscribers: make(map[net.Conn]*sync.Mutex),
	}

	s.Handle("health", func(json.RawMessage) (any, *Error) {
		return api.HealthCheckResponse{Status: "ok", Version: "test"}, nil
	})

	s.wg.Go(s.acceptLoop)

	t.Cleanup(func() {
		s.Close()
		_ = os.RemoveAll(dir)
	})

	return s
}

// Handle registers a handler for method, replacing any previous one.
func (s *Server) Handle(method string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handlers[method] = h
}

// HandleRaw registers a handler that controls the exact reply bytes.
func (s *Server) HandleRaw(method string, h RawHandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.raw[method] = h
}

// RejectSubscriptions makes subsequent Subscribe requests fail with e.
func (s *Server) RejectSubscriptions(e *Error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subReject = e
}

// SendBareEvents makes Publish and Heartbeat write unwrapped objects instead
// of result envelopes.
func (s *Server) SendBareEvents(bare bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bareEvents = bare
}

// Requests returns a copy of every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Request, len(s.requests))
	copy(out, s.requests)

	return out
}

// Subscribers returns the number of connected, confirmed subscribers.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.subscribers)
}

// WaitSubscribers blocks until exactly n subscribers are connected or the
// timeout elapses. It reports whether the count was reached.
func (s *Server) WaitSubscribers(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if s.Subscribers() == n {
			return true
		}

		time.Sleep(10 * time.Millisecond)
	}

	return s.Subscribers() == n
}

// Publish delivers an event to every subscriber.
func (s *Server) Publish(ev api.Event) {
	s.broadcast(api.EventNotification{Event: ev})
}

// Heartbeat sends a keep-alive message to every subscriber.
func (s *Server) Heartbeat() {
	s.broadcast(api.Heartbeat{Type: api.HeartbeatType, Message: "Connection alive"})
}

// SendLine writes a raw line to every subscriber.
func (s *Server) SendLine(line string) {
	s.mu.Lock()
	targets := make(map[net.Conn]*sync.Mutex, len(s.subscribers))
	for c, mu := range s.subscribers {
		targets[c] = mu
	}
	s.mu.Unlock()

	for c, mu := range targets {
		mu.Lock()
		_, _ = c.Write([]byte(line + "\n"))
		mu.Unlock()
	}
}

// DropConnections closes every open client connection without stopping the
// listener.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.conns {
		_ = c.Close()
	}
}

// Close stops the listener and closes every open connection.
func (s *Server) Close() {
	_ = s.ln.Close()

	s.DropConnections()

	s.wg.Wait()
}

func (s *Server) broadcast(payload any) {
	s.mu.Lock()
	bare := s.bareEvents
	s.mu.Unlock()

	var msg any = payload
	if !bare {
		msg = map[string]any{"jsonrpc": "2.0", "result": payload}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	s.SendLine(string(data))
}

func (s *Server) acceptLoop() {
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()

		s.wg.Go(func() { s.serve(c) })
	}
}

func (s *Server) serve(c net.Conn) {
	writeMu := &sync.Mutex{}

	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		delete(s.subscribers, c)
		s.mu.Unlock()

		_ = c.Close()
	}()

	scanner := bufio.NewScanner(c)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			s.write(c, writeMu, response{
				JSONRPC: "2.0",
				Error:   &Error{Code: CodeParseError, Message: "Parse error"},
				ID:      json.RawMessage("null"),
			})

			continue
		}

		s.mu.Lock()
		s.requests = append(s.requests, req)
		raw := s.raw[req.Method]
		h := s.handlers[req.Method]
		s.mu.Unlock()

		switch {
		case raw != nil:
			writeMu.Lock()
			for _, line := range raw(req) {
				_, _ = c.Write([]byte(line + "\n"))
			}
			writeMu.Unlock()
		case req.Method == api.SubscribeMethod:
			s.subscribe(c, writeMu, req)
		case h != nil:
			result, rpcErr := h(req.Params)
			s.write(c, writeMu, response{JSONRPC: "2.0", Result: result, Error: rpcErr, ID: req.ID})
		default:
			s.write(c, writeMu, response{
				JSONRPC: "2.0",
				Error:   &Error{Code: CodeMethodNotFound, Message: "Method not found"},
				ID:      req.ID,
			})
		}
	}
}

func (s *Server) subscribe(c net.Conn, writeMu *sync.Mutex, req Request) {
	s.mu.Lock()
	reject := s.subReject
	s.subSeq++
	seq := s.subSeq
	s.mu.Unlock()

	if reject != nil {
		s.write(c, writeMu, response{JSONRPC: "2.0", Error: reject, ID: req.ID})
		_ = c.Close()

		return
	}

	s.write(c, writeMu, response{
		JSONRPC: "2.0",
		Result: api.SubscribeResponse{
			SubscriptionID: "sub-" + itoa(seq),
			Message:        "Subscription established. Waiting for events...",
		},
		ID: req.ID,
	})

	s.mu.Lock()
	s.subscribers[c] = writeMu
	s.mu.Unlock()
}

func (s *Server) write(c net.Conn, mu *sync.Mutex, resp response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}

	mu.Lock()
	defer mu.Unlock()

	_, _ = c.Write(append(data, '\n'))
}

func itoa(n int) string {
	data, _ := json.Marshal(n)

	return string(data)
}
