package client

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wagiedev/daemonkit/internal/api"
	"github.com/wagiedev/daemonkit/internal/config"
	"github.com/wagiedev/daemonkit/internal/daemontest"
	dkerrors "github.com/wagiedev/daemonkit/internal/errors"
	"github.com/wagiedev/daemonkit/internal/subscription"
)

func newTestClient(t *testing.T, srv *daemontest.Server) *Client {
	t.Helper()

	c, err := New(context.Background(), config.ClientOptions{
		SocketPath:     srv.Path,
		RequestTimeout: 2 * time.Second,
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = c.Close() })

	return c
}

func lastRequest(t *testing.T, srv *daemontest.Server, method string) daemontest.Request {
	t.Helper()

	reqs := srv.Requests()
	for i := len(reqs) - 1; i >= 0; i-- {
		if reqs[i].Method == method {
			return reqs[i]
		}
	}

	t.Fatalf("no %s request received", method)

	return daemontest.Request{}
}

func TestNew_MissingSocket(t *testing.T) {
	_, err := New(context.Background(), config.ClientOptions{
		SocketPath: "/nonexistent/daemon.sock",
		RetryDelay: time.Millisecond,
	})

	connErr, ok := stderrors.AsType[*dkerrors.ConnectionError](err)
	require.True(t, ok)
	require.Equal(t, "/nonexistent/daemon.sock", connErr.Path)
}

func TestClient_Health(t *testing.T) {
	srv := daemontest.New(t)
	c := newTestClient(t, srv)

	resp, err := c.Health(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Status)
	require.Equal(t, "test", resp.Version)
	require.Equal(t, srv.Path, c.SocketPath())
	require.True(t, c.IsConnected())
}

func TestClient_LaunchSession(t *testing.T) {
	srv := daemontest.New(t)
	srv.Handle(MethodLaunchSession, func(json.RawMessage) (any, *daemontest.Error) {
		return api.LaunchSessionResponse{SessionID: "sess-1", RunID: "run-1"}, nil
	})

	c := newTestClient(t, srv)

	resp, err := c.LaunchSession(context.Background(), api.LaunchSessionRequest{
		Query:     "fix the build",
		Model:     "sonnet",
		MCPConfig: json.RawMessage(`{"mcpServers":{}}`),
		MaxTurns:  5,
	})
	require.NoError(t, err)
	require.Equal(t, "sess-1", resp.SessionID)

	req := lastRequest(t, srv, MethodLaunchSession)
	require.JSONEq(t,
		`{"query":"fix the build","model":"sonnet","mcp_config":{"mcpServers":{}},"max_turns":5}`,
		string(req.Params),
	)
}

func TestClient_LaunchSession_ValidationFailsLocally(t *testing.T) {
	srv := daemontest.New(t)
	c := newTestClient(t, srv)

	tests := []struct {
		name string
		req  api.LaunchSessionRequest
	}{
		{name: "empty query", req: api.LaunchSessionRequest{}},
		{name: "negative max turns", req: api.LaunchSessionRequest{Query: "q", MaxTurns: -1}},
		{name: "mcp config not an object", req: api.LaunchSessionRequest{
			Query:     "q",
			MCPConfig: json.RawMessage(`["x"]`),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.LaunchSession(context.Background(), tt.req)

			_, ok := stderrors.AsType[*dkerrors.ValidationError](err)
			require.True(t, ok, "got %v", err)
		})
	}

	for _, r := range srv.Requests() {
		require.NotEqual(t, MethodLaunchSession, r.Method)
	}
}

func TestClient_GetConversation_RequiresAnID(t *testing.T) {
	srv := daemontest.New(t)
	c := newTestClient(t, srv)

	_, err := c.GetConversation(context.Background(), api.GetConversationRequest{})

	valErr, ok := stderrors.AsType[*dkerrors.ValidationError](err)
	require.True(t, ok)
	require.Equal(t, "Either session_id or claude_session_id is required", valErr.Message)

	srv.Handle(MethodGetConversation, func(json.RawMessage) (any, *daemontest.Error) {
		return api.GetConversationResponse{Events: []api.ConversationEvent{{ID: 1, EventType: "message"}}}, nil
	})

	resp, err := c.GetConversation(context.Background(), api.GetConversationRequest{ClaudeSessionID: "c-1"})
	require.NoError(t, err)
	require.Len(t, resp.Events, 1)
}

func TestClient_SendDecision_Validation(t *testing.T) {
	srv := daemontest.New(t)
	c := newTestClient(t, srv)

	tests := []struct {
		approvalType api.ApprovalType
		decision     api.Decision
	}{
		{api.ApprovalFunctionCall, api.DecisionRespond},
		{api.ApprovalHumanContact, api.DecisionApprove},
		{api.ApprovalHumanContact, api.DecisionDeny},
	}

	for _, tt := range tests {
		_, err := c.SendDecision(context.Background(), "appr-1", tt.approvalType, tt.decision, "")

		valErr, ok := stderrors.AsType[*dkerrors.ValidationError](err)
		require.True(t, ok)
		assert.Contains(t, valErr.Message, "Invalid decision '"+string(tt.decision)+"'")
	}

	require.Len(t, srv.Requests(), 0)
}

func TestClient_ApprovalHelpers(t *testing.T) {
	srv := daemontest.New(t)

	var verdict api.SendDecisionResponse

	srv.Handle(MethodSendDecision, func(json.RawMessage) (any, *daemontest.Error) {
		return verdict, nil
	})

	c := newTestClient(t, srv)
	ctx := context.Background()

	verdict = api.SendDecisionResponse{Success: true}
	require.NoError(t, c.ApproveFunctionCall(ctx, "appr-1", "looks good"))

	req := lastRequest(t, srv, MethodSendDecision)
	require.JSONEq(t, `{"approval_id":"appr-1","decision":"approve","comment":"looks good"}`, string(req.Params))

	require.NoError(t, c.RespondToHumanContact(ctx, "appr-2", "use staging"))

	req = lastRequest(t, srv, MethodSendDecision)
	require.JSONEq(t, `{"approval_id":"appr-2","decision":"respond","comment":"use staging"}`, string(req.Params))

	verdict = api.SendDecisionResponse{Success: false, Error: "already resolved"}
	err := c.DenyFunctionCall(ctx, "appr-3", "no")

	apprErr, ok := stderrors.AsType[*dkerrors.ApprovalError](err)
	require.True(t, ok)
	require.Equal(t, "appr-3", apprErr.ApprovalID)
	require.Equal(t, "already resolved", apprErr.Message)

	verdict = api.SendDecisionResponse{Success: false}
	err = c.ApproveFunctionCall(ctx, "appr-4", "")

	apprErr, ok = stderrors.AsType[*dkerrors.ApprovalError](err)
	require.True(t, ok)
	require.Equal(t, "Unknown error", apprErr.Message)
}

func TestClient_InterruptSession(t *testing.T) {
	srv := daemontest.New(t)

	srv.Handle(MethodInterruptSession, func(params json.RawMessage) (any, *daemontest.Error) {
		var req api.InterruptSessionRequest
		_ = json.Unmarshal(params, &req)

		return api.InterruptSessionResponse{
			Success:   req.SessionID == "running",
			SessionID: req.SessionID,
			Status:    "interrupting",
		}, nil
	})

	c := newTestClient(t, srv)

	resp, err := c.InterruptSession(context.Background(), "running")
	require.NoError(t, err)
	require.Equal(t, "interrupting", resp.Status)

	_, err = c.InterruptSession(context.Background(), "done")

	sessErr, ok := stderrors.AsType[*dkerrors.SessionError](err)
	require.True(t, ok)
	require.Equal(t, "done", sessErr.SessionID)
	require.Equal(t, "Failed to interrupt session done", sessErr.Message)
}

func TestClient_SessionCalls(t *testing.T) {
	srv := daemontest.New(t)

	srv.Handle(MethodListSessions, func(json.RawMessage) (any, *daemontest.Error) {
		return api.ListSessionsResponse{Sessions: []api.SessionInfo{{ID: "a"}, {ID: "b"}}}, nil
	})
	srv.Handle(MethodGetSessionLeaves, func(json.RawMessage) (any, *daemontest.Error) {
		return api.GetSessionLeavesResponse{Sessions: []api.SessionInfo{{ID: "b"}}}, nil
	})
	srv.Handle(MethodGetSessionState, func(json.RawMessage) (any, *daemontest.Error) {
		return api.GetSessionStateResponse{Session: api.SessionState{ID: "a", Status: "completed"}}, nil
	})
	srv.Handle(MethodContinueSession, func(json.RawMessage) (any, *daemontest.Error) {
		return api.ContinueSessionResponse{SessionID: "c", ParentSessionID: "a"}, nil
	})
	srv.Handle(MethodArchiveSession, func(json.RawMessage) (any, *daemontest.Error) {
		return api.ArchiveSessionResponse{Success: true}, nil
	})
	srv.Handle(MethodBulkArchiveSessions, func(json.RawMessage) (any, *daemontest.Error) {
		return api.BulkArchiveSessionsResponse{Success: false, FailedSessions: []string{"x"}}, nil
	})
	srv.Handle(MethodUpdateSessionTitle, func(json.RawMessage) (any, *daemontest.Error) {
		return api.UpdateSessionTitleResponse{Success: true}, nil
	})
	srv.Handle(MethodUpdateSessionSettings, func(json.RawMessage) (any, *daemontest.Error) {
		return api.UpdateSessionSettingsResponse{Success: true}, nil
	})
	srv.Handle(MethodGetRecentPaths, func(json.RawMessage) (any, *daemontest.Error) {
		return api.GetRecentPathsResponse{Paths: []api.RecentPath{{Path: "/src", UsageCount: 3}}}, nil
	})
	srv.Handle(MethodGetSessionSnapshots, func(json.RawMessage) (any, *daemontest.Error) {
		return api.GetSessionSnapshotsResponse{Snapshots: []api.FileSnapshotInfo{{FilePath: "main.go"}}}, nil
	})
	srv.Handle(MethodFetchApprovals, func(json.RawMessage) (any, *daemontest.Error) {
		return api.FetchApprovalsResponse{Approvals: []api.Approval{{ID: "appr-1"}}}, nil
	})

	c := newTestClient(t, srv)
	ctx := context.Background()

	list, err := c.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list.Sessions, 2)

	leaves, err := c.GetSessionLeaves(ctx, api.GetSessionLeavesRequest{IncludeArchived: true})
	require.NoError(t, err)
	require.Len(t, leaves.Sessions, 1)
	require.JSONEq(t, `{"include_archived":true}`, string(lastRequest(t, srv, MethodGetSessionLeaves).Params))

	state, err := c.GetSessionState(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "completed", state.Session.Status)

	cont, err := c.ContinueSession(ctx, api.ContinueSessionRequest{SessionID: "a", Query: "more"})
	require.NoError(t, err)
	require.Equal(t, "a", cont.ParentSessionID)

	_, err = c.ContinueSession(ctx, api.ContinueSessionRequest{Query: "more"})
	_, ok := stderrors.AsType[*dkerrors.ValidationError](err)
	require.True(t, ok)

	archived, err := c.ArchiveSession(ctx, api.ArchiveSessionRequest{SessionID: "a", Archived: true})
	require.NoError(t, err)
	require.True(t, archived.Success)

	bulk, err := c.BulkArchiveSessions(ctx, api.BulkArchiveSessionsRequest{SessionIDs: []string{"a", "x"}})
	require.NoError(t, err)
	require.Equal(t, []string{"x"}, bulk.FailedSessions)

	renamed, err := c.UpdateSessionTitle(ctx, "a", "New title")
	require.NoError(t, err)
	require.True(t, renamed.Success)
	require.JSONEq(t, `{"session_id":"a","title":"New title"}`,
		string(lastRequest(t, srv, MethodUpdateSessionTitle).Params))

	autoAccept := true
	settings, err := c.UpdateSessionSettings(ctx, api.UpdateSessionSettingsRequest{
		SessionID:       "a",
		AutoAcceptEdits: &autoAccept,
	})
	require.NoError(t, err)
	require.True(t, settings.Success)

	paths, err := c.GetRecentPaths(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, "/src", paths.Paths[0].Path)
	require.JSONEq(t, `{"limit":10}`, string(lastRequest(t, srv, MethodGetRecentPaths).Params))

	snaps, err := c.GetSessionSnapshots(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "main.go", snaps.Snapshots[0].FilePath)

	approvals, err := c.FetchApprovals(ctx, "")
	require.NoError(t, err)
	require.Equal(t, "appr-1", approvals.Approvals[0].ID)
	require.JSONEq(t, `{}`, string(lastRequest(t, srv, MethodFetchApprovals).Params))
}

func TestClient_RPCErrorPassesThrough(t *testing.T) {
	srv := daemontest.New(t)
	srv.Handle(MethodGetSessionState, func(json.RawMessage) (any, *daemontest.Error) {
		return nil, &daemontest.Error{Code: daemontest.CodeInvalidParams, Message: "session not found"}
	})

	c := newTestClient(t, srv)

	_, err := c.GetSessionState(context.Background(), "missing")

	rpcErr, ok := stderrors.AsType[*dkerrors.RPCError](err)
	require.True(t, ok)
	require.Equal(t, daemontest.CodeInvalidParams, rpcErr.Code)
	require.Equal(t, "session not found", rpcErr.Message)
}

func TestClient_SubscribeAndUnsubscribe(t *testing.T) {
	srv := daemontest.New(t)
	c := newTestClient(t, srv)

	h, err := c.Subscribe(context.Background(), api.SubscribeRequest{SessionID: "s1"})
	require.NoError(t, err)
	require.True(t, srv.WaitSubscribers(1, 2*time.Second))
	require.Equal(t, 1, c.ActiveSubscriptions())

	srv.Publish(api.Event{Type: api.EventConversationUpdated, Data: json.RawMessage(`{"session_id":"s1"}`)})

	select {
	case ev := <-h.Events:
		require.Equal(t, api.EventConversationUpdated, ev.Event.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	// Requests keep working while a subscription is open.
	_, err = c.Health(context.Background())
	require.NoError(t, err)

	require.True(t, c.Unsubscribe(h.ID))
	require.False(t, c.Unsubscribe(h.ID))

	<-h.Done
	require.Equal(t, 0, c.ActiveSubscriptions())
}

func TestClient_SubscriptionIDsShareRequestCounter(t *testing.T) {
	srv := daemontest.New(t)
	c := newTestClient(t, srv)

	_, err := c.Health(context.Background())
	require.NoError(t, err)

	h1, err := c.Subscribe(context.Background(), api.SubscribeRequest{})
	require.NoError(t, err)

	h2, err := c.Subscribe(context.Background(), api.SubscribeRequest{})
	require.NoError(t, err)

	require.Equal(t, uint64(2), h1.ID)
	require.Equal(t, uint64(3), h2.ID)
}

func TestClient_CloseEndsSubscriptions(t *testing.T) {
	srv := daemontest.New(t)
	c := newTestClient(t, srv)

	h, err := c.Subscribe(context.Background(), api.SubscribeRequest{})
	require.NoError(t, err)
	require.True(t, srv.WaitSubscribers(1, 2*time.Second))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	select {
	case <-h.Done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription survived Close")
	}

	require.False(t, c.IsConnected())

	_, err = c.Health(context.Background())
	require.ErrorIs(t, err, dkerrors.ErrClientClosed)

	_, err = c.Subscribe(context.Background(), api.SubscribeRequest{})
	require.ErrorIs(t, err, dkerrors.ErrClientClosed)

	require.ErrorIs(t, c.Reconnect(context.Background()), dkerrors.ErrClientClosed)
}

func TestClient_CloseDuringSubscribe(t *testing.T) {
	srv := daemontest.New(t)
	c := newTestClient(t, srv)

	const n = 8

	handles := make(chan *subscription.Handle, n)

	var wg sync.WaitGroup

	for range n {
		wg.Go(func() {
			h, err := c.Subscribe(context.Background(), api.SubscribeRequest{})
			if err != nil {
				assert.ErrorIs(t, err, dkerrors.ErrClientClosed)

				return
			}

			handles <- h
		})
	}

	require.NoError(t, c.Close())
	wg.Wait()
	close(handles)

	for h := range handles {
		select {
		case <-h.Done:
		case <-time.After(2 * time.Second):
			t.Fatalf("subscription %d outlived Close", h.ID)
		}
	}

	require.Zero(t, c.ActiveSubscriptions())
}

func TestClient_Reconnect(t *testing.T) {
	srv := daemontest.New(t)
	c := newTestClient(t, srv)

	_, err := c.Health(context.Background())
	require.NoError(t, err)

	srv.DropConnections()

	_, err = c.Health(context.Background())
	require.Error(t, err)

	require.NoError(t, c.Reconnect(context.Background()))

	resp, err := c.Health(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Status)
}
