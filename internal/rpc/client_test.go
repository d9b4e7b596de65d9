package rpc

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/daemonkit/internal/api"
	"github.com/wagiedev/daemonkit/internal/daemontest"
	dkerrors "github.com/wagiedev/daemonkit/internal/errors"
	"github.com/wagiedev/daemonkit/internal/transport"
)

// scriptedSender replies with queued lines and records what was sent.
type scriptedSender struct {
	mu      sync.Mutex
	sent    [][]byte
	replies []string
	err     error
}

func (s *scriptedSender) SendRequestMatching(
	_ context.Context,
	payload []byte,
	accept func([]byte) bool,
) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent = append(s.sent, payload)

	if s.err != nil {
		return nil, s.err
	}

	for len(s.replies) > 0 {
		line := []byte(s.replies[0])
		s.replies = s.replies[1:]

		if accept == nil || accept(line) {
			return line, nil
		}
	}

	return nil, dkerrors.ErrTimeout
}

func TestClient_NextIDStartsAtOneAndIncreases(t *testing.T) {
	c := NewClient(nil, &scriptedSender{})

	require.Equal(t, uint64(1), c.NextID())
	require.Equal(t, uint64(2), c.NextID())
	require.Equal(t, uint64(3), c.NextID())
}

func TestClient_Call_Envelope(t *testing.T) {
	sender := &scriptedSender{replies: []string{`{"jsonrpc":"2.0","result":{"status":"ok","version":"1"},"id":1}`}}
	c := NewClient(nil, sender)

	var out api.HealthCheckResponse
	require.NoError(t, c.Call(context.Background(), "health", nil, &out))
	require.Equal(t, "ok", out.Status)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(sender.sent[0], &sent))
	require.Equal(t, "2.0", sent["jsonrpc"])
	require.Equal(t, "health", sent["method"])
	require.InDelta(t, 1, sent["id"], 0)
	require.NotContains(t, sent, "params")
}

func TestClient_Call_RPCError(t *testing.T) {
	sender := &scriptedSender{replies: []string{`{"jsonrpc":"2.0","error":{"code":-32601,"message":"Method not found"},"id":1}`}}
	c := NewClient(nil, sender)

	err := c.Call(context.Background(), "nope", nil, nil)

	rpcErr, ok := stderrors.AsType[*dkerrors.RPCError](err)
	require.True(t, ok)
	require.Equal(t, -32601, rpcErr.Code)
	require.Equal(t, "Method not found", rpcErr.Message)
}

func TestClient_Call_ErrorWinsOverResult(t *testing.T) {
	sender := &scriptedSender{replies: []string{`{"jsonrpc":"2.0","result":{},"error":{"code":1,"message":"boom"},"id":1}`}}
	c := NewClient(nil, sender)

	_, ok := stderrors.AsType[*dkerrors.RPCError](c.Call(context.Background(), "x", nil, nil))
	require.True(t, ok)
}

func TestClient_Call_NoResult(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{name: "absent", reply: `{"jsonrpc":"2.0","id":1}`},
		{name: "null", reply: `{"jsonrpc":"2.0","result":null,"id":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(nil, &scriptedSender{replies: []string{tt.reply}})

			err := c.Call(context.Background(), "x", nil, nil)

			protoErr, ok := stderrors.AsType[*dkerrors.ProtocolError](err)
			require.True(t, ok, "got %T", err)
			require.Equal(t, "no result in response", protoErr.Reason)
		})
	}
}

func TestClient_Call_Malformed(t *testing.T) {
	c := NewClient(nil, &scriptedSender{replies: []string{`not json`}})

	_, ok := stderrors.AsType[*dkerrors.ProtocolError](c.Call(context.Background(), "x", nil, nil))
	require.True(t, ok)
}

func TestClient_Call_DecodeError(t *testing.T) {
	c := NewClient(nil, &scriptedSender{replies: []string{`{"jsonrpc":"2.0","result":"a string","id":1}`}})

	var out api.HealthCheckResponse

	decErr, ok := stderrors.AsType[*dkerrors.DecodeError](c.Call(context.Background(), "health", nil, &out))
	require.True(t, ok)
	require.Equal(t, "health", decErr.Method)
}

func TestClient_Call_SkipsStaleReplies(t *testing.T) {
	sender := &scriptedSender{replies: []string{
		`{"jsonrpc":"2.0","result":{"status":"stale"},"id":7}`,
		`{"jsonrpc":"2.0","result":{"status":"ok"},"id":1}`,
	}}
	c := NewClient(nil, sender)

	var out api.HealthCheckResponse
	require.NoError(t, c.Call(context.Background(), "health", nil, &out))
	require.Equal(t, "ok", out.Status)
}

func TestClient_Call_TransportErrorPassesThrough(t *testing.T) {
	c := NewClient(nil, &scriptedSender{err: dkerrors.ErrNotConnected})

	require.ErrorIs(t, c.Call(context.Background(), "health", nil, nil), dkerrors.ErrNotConnected)
}

func TestClient_Call_AgainstFakeDaemon(t *testing.T) {
	srv := daemontest.New(t)
	srv.Handle("getRecentPaths", func(params json.RawMessage) (any, *daemontest.Error) {
		var req api.GetRecentPathsRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, &daemontest.Error{Code: daemontest.CodeInvalidParams, Message: err.Error()}
		}

		return api.GetRecentPathsResponse{Paths: make([]api.RecentPath, req.Limit)}, nil
	})

	conn, err := transport.Connect(context.Background(), srv.Path, transport.Options{})
	require.NoError(t, err)

	defer conn.Close()

	c := NewClient(nil, conn)

	var out api.GetRecentPathsResponse
	require.NoError(t, c.Call(context.Background(), "getRecentPaths", api.GetRecentPathsRequest{Limit: 3}, &out))
	require.Len(t, out.Paths, 3)

	require.NoError(t, c.Call(context.Background(), "health", nil, nil))

	reqs := srv.Requests()
	require.Len(t, reqs, 2)
	require.JSONEq(t, "1", string(reqs[0].ID))
	require.JSONEq(t, "2", string(reqs[1].ID))
}

func TestReplyID(t *testing.T) {
	id, ok := replyID([]byte(`{"id":42}`))
	require.True(t, ok)
	require.Equal(t, uint64(42), id)

	_, ok = replyID([]byte(`{"id":null}`))
	require.False(t, ok)

	_, ok = replyID([]byte(`{"id":"abc"}`))
	require.False(t, ok)
}
