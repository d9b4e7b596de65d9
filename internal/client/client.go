package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/wagiedev/daemonkit/internal/api"
	"github.com/wagiedev/daemonkit/internal/config"
	"github.com/wagiedev/daemonkit/internal/errors"
	"github.com/wagiedev/daemonkit/internal/rpc"
	"github.com/wagiedev/daemonkit/internal/subscription"
	"github.com/wagiedev/daemonkit/internal/transport"
)

// RPC method names understood by the daemon.
const (
	MethodHealth                = "health"
	MethodLaunchSession         = "launchSession"
	MethodListSessions          = "listSessions"
	MethodGetSessionLeaves      = "getSessionLeaves"
	MethodGetConversation       = "getConversation"
	MethodGetSessionState       = "getSessionState"
	MethodContinueSession       = "continueSession"
	MethodInterruptSession      = "interruptSession"
	MethodGetSessionSnapshots   = "getSessionSnapshots"
	MethodUpdateSessionSettings = "updateSessionSettings"
	MethodUpdateSessionTitle    = "updateSessionTitle"
	MethodGetRecentPaths        = "getRecentPaths"
	MethodArchiveSession        = "archiveSession"
	MethodBulkArchiveSessions   = "bulkArchiveSessions"
	MethodFetchApprovals        = "fetchApprovals"
	MethodSendDecision          = "sendDecision"
)

const unknownError = "Unknown error"

// DaemonClient is the typed interface to a running daemon.
type DaemonClient interface {
	Health(ctx context.Context) (*api.HealthCheckResponse, error)

	LaunchSession(ctx context.Context, req api.LaunchSessionRequest) (*api.LaunchSessionResponse, error)
	ListSessions(ctx context.Context) (*api.ListSessionsResponse, error)
	GetSessionLeaves(ctx context.Context, req api.GetSessionLeavesRequest) (*api.GetSessionLeavesResponse, error)
	ContinueSession(ctx context.Context, req api.ContinueSessionRequest) (*api.ContinueSessionResponse, error)
	GetSessionState(ctx context.Context, sessionID string) (*api.GetSessionStateResponse, error)
	GetConversation(ctx context.Context, req api.GetConversationRequest) (*api.GetConversationResponse, error)
	InterruptSession(ctx context.Context, sessionID string) (*api.InterruptSessionResponse, error)
	ArchiveSession(ctx context.Context, req api.ArchiveSessionRequest) (*api.ArchiveSessionResponse, error)
	BulkArchiveSessions(
		ctx context.Context,
		req api.BulkArchiveSessionsRequest,
	) (*api.BulkArchiveSessionsResponse, error)
	UpdateSessionTitle(ctx context.Context, sessionID, title string) (*api.UpdateSessionTitleResponse, error)
	UpdateSessionSettings(
		ctx context.Context,
		req api.UpdateSessionSettingsRequest,
	) (*api.UpdateSessionSettingsResponse, error)
	GetRecentPaths(ctx context.Context, limit int) (*api.GetRecentPathsResponse, error)
	GetSessionSnapshots(ctx context.Context, sessionID string) (*api.GetSessionSnapshotsResponse, error)

	FetchApprovals(ctx context.Context, sessionID string) (*api.FetchApprovalsResponse, error)
	SendDecision(
		ctx context.Context,
		approvalID string,
		approvalType api.ApprovalType,
		decision api.Decision,
		comment string,
	) (*api.SendDecisionResponse, error)
	ApproveFunctionCall(ctx context.Context, approvalID, comment string) error
	DenyFunctionCall(ctx context.Context, approvalID, reason string) error
	RespondToHumanContact(ctx context.Context, approvalID, response string) error

	Subscribe(ctx context.Context, req api.SubscribeRequest) (*subscription.Handle, error)
	Unsubscribe(id uint64) bool

	Reconnect(ctx context.Context) error
	IsConnected() bool
	Close() error
}

// Compile-time verification that Client implements DaemonClient.
var _ DaemonClient = (*Client)(nil)

// Client is a DaemonClient over the daemon's Unix socket.
type Client struct {
	log    *slog.Logger
	conn   *transport.Conn
	rpc    *rpc.Client
	subs   *subscription.Manager
	launch *requestValidator

	mu     sync.RWMutex
	closed bool

	closeOnce sync.Once
	closeErr  error
}

// New connects to the daemon socket with retries and returns a ready client.
func New(ctx context.Context, opts config.ClientOptions) (*Client, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	socketPath := opts.SocketPath
	if socketPath == "" {
		socketPath = config.DefaultSocketPath()
	}

	launch, err := newRequestValidator("launch session request", launchSessionSchema())
	if err != nil {
		return nil, err
	}

	conn, err := transport.ConnectWithRetry(ctx, socketPath, opts.MaxRetries, transport.Options{
		Logger:     log,
		Timeout:    opts.RequestTimeout,
		RetryDelay: opts.RetryDelay,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		log:    log.With("component", "client"),
		conn:   conn,
		rpc:    rpc.NewClient(log, conn),
		subs:   subscription.NewManager(subscription.Options{Logger: log}),
		launch: launch,
	}, nil
}

// SocketPath returns the daemon socket the client is connected to.
func (c *Client) SocketPath() string {
	return c.conn.Path()
}

func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()

	if closed {
		return errors.ErrClientClosed
	}

	return c.rpc.Call(ctx, method, params, result)
}

// Health checks that the daemon is responsive.
func (c *Client) Health(ctx context.Context) (*api.HealthCheckResponse, error) {
	var resp api.HealthCheckResponse
	if err := c.call(ctx, MethodHealth, nil, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// LaunchSession starts a new session.
// Returns *ValidationError without contacting the daemon if req is malformed.
func (c *Client) LaunchSession(
	ctx context.Context,
	req api.LaunchSessionRequest,
) (*api.LaunchSessionResponse, error) {
	if err := c.launch.validate(req); err != nil {
		return nil, err
	}

	var resp api.LaunchSessionResponse
	if err := c.call(ctx, MethodLaunchSession, req, &resp); err != nil {
		return nil, err
	}

	c.log.Info("Launched session", "session_id", resp.SessionID, "run_id", resp.RunID)

	return &resp, nil
}

// ListSessions returns every session known to the daemon.
func (c *Client) ListSessions(ctx context.Context) (*api.ListSessionsResponse, error) {
	var resp api.ListSessionsResponse
	if err := c.call(ctx, MethodListSessions, nil, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// GetSessionLeaves returns the newest session of each conversation tree.
func (c *Client) GetSessionLeaves(
	ctx context.Context,
	req api.GetSessionLeavesRequest,
) (*api.GetSessionLeavesResponse, error) {
	var resp api.GetSessionLeavesResponse
	if err := c.call(ctx, MethodGetSessionLeaves, req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// ContinueSession resumes a session with a follow-up query.
func (c *Client) ContinueSession(
	ctx context.Context,
	req api.ContinueSessionRequest,
) (*api.ContinueSessionResponse, error) {
	if req.SessionID == "" {
		return nil, &errors.ValidationError{Field: "session_id", Message: "is required"}
	}

	var resp api.ContinueSessionResponse
	if err := c.call(ctx, MethodContinueSession, req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// GetSessionState returns the persisted state of one session.
func (c *Client) GetSessionState(ctx context.Context, sessionID string) (*api.GetSessionStateResponse, error) {
	var resp api.GetSessionStateResponse

	err := c.call(ctx, MethodGetSessionState, api.GetSessionStateRequest{SessionID: sessionID}, &resp)
	if err != nil {
		return nil, err
	}

	return &resp, nil
}

// GetConversation returns the events of a conversation.
// Either SessionID or ClaudeSessionID must be set.
func (c *Client) GetConversation(
	ctx context.Context,
	req api.GetConversationRequest,
) (*api.GetConversationResponse, error) {
	if req.SessionID == "" && req.ClaudeSessionID == "" {
		return nil, &errors.ValidationError{
			Message: "Either session_id or claude_session_id is required",
		}
	}

	var resp api.GetConversationResponse
	if err := c.call(ctx, MethodGetConversation, req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// InterruptSession asks the daemon to stop a running session.
// Returns *SessionError if the daemon did not accept the interrupt.
func (c *Client) InterruptSession(ctx context.Context, sessionID string) (*api.InterruptSessionResponse, error) {
	var resp api.InterruptSessionResponse

	err := c.call(ctx, MethodInterruptSession, api.InterruptSessionRequest{SessionID: sessionID}, &resp)
	if err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, &errors.SessionError{
			SessionID: sessionID,
			Message:   fmt.Sprintf("Failed to interrupt session %s", sessionID),
		}
	}

	return &resp, nil
}

// ArchiveSession archives or unarchives one session.
func (c *Client) ArchiveSession(
	ctx context.Context,
	req api.ArchiveSessionRequest,
) (*api.ArchiveSessionResponse, error) {
	var resp api.ArchiveSessionResponse
	if err := c.call(ctx, MethodArchiveSession, req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// BulkArchiveSessions archives or unarchives several sessions.
func (c *Client) BulkArchiveSessions(
	ctx context.Context,
	req api.BulkArchiveSessionsRequest,
) (*api.BulkArchiveSessionsResponse, error) {
	var resp api.BulkArchiveSessionsResponse
	if err := c.call(ctx, MethodBulkArchiveSessions, req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// UpdateSessionTitle renames a session.
func (c *Client) UpdateSessionTitle(
	ctx context.Context,
	sessionID, title string,
) (*api.UpdateSessionTitleResponse, error) {
	var resp api.UpdateSessionTitleResponse

	req := api.UpdateSessionTitleRequest{SessionID: sessionID, Title: title}
	if err := c.call(ctx, MethodUpdateSessionTitle, req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// UpdateSessionSettings changes per-session settings.
func (c *Client) UpdateSessionSettings(
	ctx context.Context,
	req api.UpdateSessionSettingsRequest,
) (*api.UpdateSessionSettingsResponse, error) {
	var resp api.UpdateSessionSettingsResponse
	if err := c.call(ctx, MethodUpdateSessionSettings, req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// GetRecentPaths returns recently used working directories.
// A zero limit lets the daemon choose.
func (c *Client) GetRecentPaths(ctx context.Context, limit int) (*api.GetRecentPathsResponse, error) {
	var resp api.GetRecentPathsResponse
	if err := c.call(ctx, MethodGetRecentPaths, api.GetRecentPathsRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// GetSessionSnapshots returns the file snapshots captured for a session.
func (c *Client) GetSessionSnapshots(
	ctx context.Context,
	sessionID string,
) (*api.GetSessionSnapshotsResponse, error) {
	var resp api.GetSessionSnapshotsResponse

	req := api.GetSessionSnapshotsRequest{SessionID: sessionID}
	if err := c.call(ctx, MethodGetSessionSnapshots, req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// FetchApprovals returns approvals, optionally filtered to one session.
func (c *Client) FetchApprovals(ctx context.Context, sessionID string) (*api.FetchApprovalsResponse, error) {
	var resp api.FetchApprovalsResponse

	req := api.FetchApprovalsRequest{SessionID: sessionID}
	if err := c.call(ctx, MethodFetchApprovals, req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// SendDecision resolves an approval.
//
// The decision is checked against the approval category before sending:
// approve and deny apply to function calls, respond to human contact.
// Returns *ValidationError for an illegal combination.
func (c *Client) SendDecision(
	ctx context.Context,
	approvalID string,
	approvalType api.ApprovalType,
	decision api.Decision,
	comment string,
) (*api.SendDecisionResponse, error) {
	if !decision.ValidFor(approvalType) {
		return nil, &errors.ValidationError{
			Field:   "decision",
			Message: fmt.Sprintf("Invalid decision '%s' for approval type '%s'", decision, approvalType),
		}
	}

	req := api.SendDecisionRequest{
		ApprovalID: approvalID,
		Decision:   string(decision),
		Comment:    comment,
	}

	var resp api.SendDecisionResponse
	if err := c.call(ctx, MethodSendDecision, req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// ApproveFunctionCall approves a function call.
// Returns *ApprovalError if the daemon refused the decision.
func (c *Client) ApproveFunctionCall(ctx context.Context, approvalID, comment string) error {
	return c.decide(ctx, approvalID, api.ApprovalFunctionCall, api.DecisionApprove, comment)
}

// DenyFunctionCall denies a function call with a reason.
// Returns *ApprovalError if the daemon refused the decision.
func (c *Client) DenyFunctionCall(ctx context.Context, approvalID, reason string) error {
	return c.decide(ctx, approvalID, api.ApprovalFunctionCall, api.DecisionDeny, reason)
}

// RespondToHumanContact answers a human contact request.
// Returns *ApprovalError if the daemon refused the response.
func (c *Client) RespondToHumanContact(ctx context.Context, approvalID, response string) error {
	return c.decide(ctx, approvalID, api.ApprovalHumanContact, api.DecisionRespond, response)
}

func (c *Client) decide(
	ctx context.Context,
	approvalID string,
	approvalType api.ApprovalType,
	decision api.Decision,
	comment string,
) error {
	resp, err := c.SendDecision(ctx, approvalID, approvalType, decision, comment)
	if err != nil {
		return err
	}

	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = unknownError
		}

		return &errors.ApprovalError{ApprovalID: approvalID, Message: msg}
	}

	return nil
}

// Subscribe opens a dedicated connection and starts an event stream.
//
// The stream lives until ctx is canceled, Unsubscribe is called with the
// handle's ID, the client is closed, or the daemon ends it.
func (c *Client) Subscribe(ctx context.Context, req api.SubscribeRequest) (*subscription.Handle, error) {
	// Held until the subscription is registered so Close cannot miss it.
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, errors.ErrClientClosed
	}

	conn, err := c.conn.OpenParallel(ctx)
	if err != nil {
		return nil, err
	}

	return c.subs.Create(ctx, c.rpc.NextID(), conn, req)
}

// Unsubscribe cancels a subscription. It reports whether id was active.
func (c *Client) Unsubscribe(id uint64) bool {
	return c.subs.Cancel(id)
}

// ActiveSubscriptions returns the number of running subscriptions.
func (c *Client) ActiveSubscriptions() int {
	return c.subs.Active()
}

// Reconnect replaces the request connection. Subscriptions are unaffected.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()

	if closed {
		return errors.ErrClientClosed
	}

	return c.conn.Reconnect(ctx)
}

// IsConnected reports whether the request connection is open.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()

	return !closed && c.conn.IsAlive()
}

// Close cancels every subscription and closes the request connection.
// It's safe to call Close multiple times.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.log.Info("Closing client", "subscriptions", c.subs.Active())

		c.subs.CancelAll()
		c.closeErr = c.conn.Close()
	})

	return c.closeErr
}
