package subscription

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/daemonkit/internal/api"
	"github.com/wagiedev/daemonkit/internal/daemontest"
	dkerrors "github.com/wagiedev/daemonkit/internal/errors"
)

func dial(t *testing.T, srv *daemontest.Server) net.Conn {
	t.Helper()

	conn, err := net.Dial("unix", srv.Path)
	require.NoError(t, err)

	return conn
}

func testEvent(typ api.EventType, sessionID string) api.Event {
	data, _ := json.Marshal(map[string]string{"session_id": sessionID})

	return api.Event{Type: typ, Timestamp: time.Now().UTC(), Data: data}
}

func receive(t *testing.T, h *Handle) api.EventNotification {
	t.Helper()

	select {
	case ev, ok := <-h.Events:
		require.True(t, ok, "events channel closed")

		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")

		return api.EventNotification{}
	}
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()

	select {
	case <-h.Done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not finish")
	}
}

func TestManager_DeliversEnvelopedEvents(t *testing.T) {
	srv := daemontest.New(t)
	m := NewManager(Options{})

	h, err := m.Create(context.Background(), 1, dial(t, srv), api.SubscribeRequest{
		EventTypes: []string{string(api.EventNewApproval)},
	})
	require.NoError(t, err)

	defer h.Close()

	require.True(t, srv.WaitSubscribers(1, 2*time.Second))

	srv.Heartbeat()
	srv.Publish(testEvent(api.EventNewApproval, "s1"))
	srv.Publish(testEvent(api.EventSessionStatusChanged, "s2"))

	first := receive(t, h)
	require.Equal(t, api.EventNewApproval, first.Event.Type)

	second := receive(t, h)
	require.Equal(t, api.EventSessionStatusChanged, second.Event.Type)
	require.JSONEq(t, `{"session_id":"s2"}`, string(second.Event.Data))

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	require.Equal(t, api.SubscribeMethod, reqs[0].Method)
	require.JSONEq(t, "1", string(reqs[0].ID))
	require.JSONEq(t, `{"event_types":["new_approval"]}`, string(reqs[0].Params))
}

func TestManager_DeliversBareEvents(t *testing.T) {
	srv := daemontest.New(t)
	srv.SendBareEvents(true)

	m := NewManager(Options{})

	h, err := m.Create(context.Background(), 1, dial(t, srv), api.SubscribeRequest{})
	require.NoError(t, err)

	defer h.Close()

	require.True(t, srv.WaitSubscribers(1, 2*time.Second))

	srv.Heartbeat()
	srv.SendLine("garbage")
	srv.Publish(testEvent(api.EventConversationUpdated, "s1"))

	ev := receive(t, h)
	require.Equal(t, api.EventConversationUpdated, ev.Event.Type)
}

func TestManager_RejectedSubscription(t *testing.T) {
	srv := daemontest.New(t)
	srv.RejectSubscriptions(&daemontest.Error{Code: -32602, Message: "bad filter"})

	m := NewManager(Options{})

	h, err := m.Create(context.Background(), 9, dial(t, srv), api.SubscribeRequest{})
	require.NoError(t, err)

	waitDone(t, h)

	_, open := <-h.Events
	require.False(t, open)
	require.Zero(t, m.Active())

	subErr, ok := stderrors.AsType[*dkerrors.SubscriptionError](h.Err())
	require.True(t, ok)
	require.Equal(t, uint64(9), subErr.ID)

	rpcErr, ok := stderrors.AsType[*dkerrors.RPCError](h.Err())
	require.True(t, ok)
	require.Equal(t, "bad filter", rpcErr.Message)
}

func TestManager_CancelClosesConnection(t *testing.T) {
	srv := daemontest.New(t)
	m := NewManager(Options{})

	h, err := m.Create(context.Background(), 1, dial(t, srv), api.SubscribeRequest{})
	require.NoError(t, err)
	require.True(t, srv.WaitSubscribers(1, 2*time.Second))
	require.Equal(t, 1, m.Active())

	require.True(t, m.Cancel(1))
	require.Zero(t, m.Active())
	require.False(t, m.Cancel(1))

	waitDone(t, h)

	require.NoError(t, h.Err())
	require.Zero(t, m.Active())
	require.True(t, srv.WaitSubscribers(0, 2*time.Second))

	require.False(t, m.Cancel(1))
}

func TestManager_ContextCancel(t *testing.T) {
	srv := daemontest.New(t)
	m := NewManager(Options{})

	ctx, cancel := context.WithCancel(context.Background())

	h, err := m.Create(ctx, 1, dial(t, srv), api.SubscribeRequest{})
	require.NoError(t, err)

	cancel()
	waitDone(t, h)
	require.Zero(t, m.Active())
}

func TestManager_DaemonClosesStream(t *testing.T) {
	srv := daemontest.New(t)
	m := NewManager(Options{})

	h, err := m.Create(context.Background(), 1, dial(t, srv), api.SubscribeRequest{})
	require.NoError(t, err)
	require.True(t, srv.WaitSubscribers(1, 2*time.Second))

	srv.DropConnections()
	waitDone(t, h)

	subErr, ok := stderrors.AsType[*dkerrors.SubscriptionError](h.Err())
	require.True(t, ok)
	require.Equal(t, "connection closed by daemon", subErr.Reason)
	require.Zero(t, m.Active())
}

func TestManager_CancelAll(t *testing.T) {
	srv := daemontest.New(t)
	m := NewManager(Options{})

	var handles []*Handle

	for id := uint64(1); id <= 3; id++ {
		h, err := m.Create(context.Background(), id, dial(t, srv), api.SubscribeRequest{})
		require.NoError(t, err)

		handles = append(handles, h)
	}

	require.Equal(t, 3, m.Active())
	require.True(t, srv.WaitSubscribers(3, 2*time.Second))

	m.CancelAll()

	require.Zero(t, m.Active())

	for _, h := range handles {
		waitDone(t, h)
	}
}

func TestManager_DuplicateID(t *testing.T) {
	srv := daemontest.New(t)
	m := NewManager(Options{})

	h, err := m.Create(context.Background(), 5, dial(t, srv), api.SubscribeRequest{})
	require.NoError(t, err)

	defer h.Close()

	_, err = m.Create(context.Background(), 5, dial(t, srv), api.SubscribeRequest{})

	_, ok := stderrors.AsType[*dkerrors.SubscriptionError](err)
	require.True(t, ok)
	require.Equal(t, 1, m.Active())
}

func TestManager_TickDoesNotEndLoop(t *testing.T) {
	srv := daemontest.New(t)
	m := NewManager(Options{TickInterval: 5 * time.Millisecond})

	h, err := m.Create(context.Background(), 1, dial(t, srv), api.SubscribeRequest{})
	require.NoError(t, err)

	defer h.Close()

	require.True(t, srv.WaitSubscribers(1, 2*time.Second))
	time.Sleep(30 * time.Millisecond)

	srv.Publish(testEvent(api.EventApprovalResolved, "s1"))
	require.Equal(t, api.EventApprovalResolved, receive(t, h).Event.Type)
}

func TestParseMessage(t *testing.T) {
	m := NewManager(Options{})

	tests := []struct {
		name string
		line string
		want bool
	}{
		{name: "bare event", line: `{"event":{"type":"new_approval","timestamp":"2024-01-01T00:00:00Z","data":{}}}`, want: true},
		{name: "enveloped event", line: `{"jsonrpc":"2.0","result":{"event":{"type":"new_approval","timestamp":"2024-01-01T00:00:00Z","data":{}}}}`, want: true},
		{name: "bare heartbeat", line: `{"type":"heartbeat","message":"alive"}`, want: false},
		{name: "enveloped heartbeat", line: `{"jsonrpc":"2.0","result":{"type":"heartbeat","message":"alive"}}`, want: false},
		{name: "not json", line: `nope`, want: false},
		{name: "unrelated object", line: `{"foo":1}`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := m.parseMessage(m.log, []byte(tt.line))
			require.Equal(t, tt.want, ok)
		})
	}
}
