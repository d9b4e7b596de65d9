// Package rpc implements the JSON-RPC 2.0 envelope and call semantics used
// to talk to the daemon.
package rpc

import (
	"bytes"
	"encoding/json"
)

// Version is the protocol version tag carried by every envelope.
const Version = "2.0"

// Request is an outgoing call envelope.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      uint64 `json:"id"`
}

// Response is a reply envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Error is the structured error member of a reply.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// HasResult reports whether the reply carries a non-null result.
func (r *Response) HasResult() bool {
	trimmed := bytes.TrimSpace(r.Result)

	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// NewRequest builds a request envelope. A nil params is omitted.
func NewRequest(method string, params any, id uint64) *Request {
	return &Request{
		JSONRPC: Version,
		Method:  method,
		Params:  params,
		ID:      id,
	}
}

// replyID extracts a numeric id from a reply line without decoding the rest.
// ok is false if the line has no numeric id.
func replyID(line []byte) (uint64, bool) {
	var probe struct {
		ID *uint64 `json:"id"`
	}

	if err := json.Unmarshal(line, &probe); err != nil || probe.ID == nil {
		return 0, false
	}

	return *probe.ID, true
}
