package daemonkit

import (
	"context"
	"log/slog"
	"sync"

	"github.com/wagiedev/daemonkit/internal/api"
	"github.com/wagiedev/daemonkit/internal/client"
	"github.com/wagiedev/daemonkit/internal/config"
	"github.com/wagiedev/daemonkit/internal/errors"
	"github.com/wagiedev/daemonkit/internal/state"
	"github.com/wagiedev/daemonkit/internal/supervisor"
)

// Commands is the operation surface of a daemon-backed application.
//
// It owns one supervisor and at most one client. The client is connected on
// first use, to the socket of the supervised daemon when one is known, and
// is dropped when the daemon is stopped.
type Commands struct {
	log   *slog.Logger
	opts  *Options
	sup   *supervisor.Supervisor
	store *state.Store

	mu     sync.Mutex
	client *client.Client
	closed bool
}

// New creates a Commands instance. Nothing is spawned or dialed until
// StartDaemon or a daemon call is made.
func New(opts ...Option) *Commands {
	options := applyOptions(opts)

	log := options.Logger
	if log == nil {
		log = NopLogger()
	}

	options.Supervisor.Logger = log
	options.Client.Logger = log

	stateDir := options.StateDir
	if stateDir == "" {
		stateDir = options.Supervisor.BaseDir
	}

	if stateDir == "" {
		stateDir = config.DefaultBaseDir()
	}

	var store *state.Store
	if stateDir != "" {
		store = state.New(stateDir)
	}

	var infoStore supervisor.InfoStore
	if store != nil {
		infoStore = store
	}

	return &Commands{
		log:   log.With("component", "commands"),
		opts:  options,
		sup:   supervisor.New(options.Supervisor, infoStore),
		store: store,
	}
}

// ===== Daemon Lifecycle =====

// StartDaemon launches the daemon, or returns its info if it is already
// running.
func (c *Commands) StartDaemon(ctx context.Context) (BackendInfo, error) {
	return c.sup.Start(ctx)
}

// StopDaemon disconnects the client and stops the supervised daemon.
// It is a no-op when no daemon is tracked.
func (c *Commands) StopDaemon(ctx context.Context) error {
	c.disconnect()

	return c.sup.Stop(ctx)
}

// DaemonInfo returns the supervised daemon's info. When this process has
// not started a daemon, the last-known record for the current identity tag
// is returned instead.
func (c *Commands) DaemonInfo(ctx context.Context) (BackendInfo, bool) {
	if info, ok := c.sup.Info(); ok {
		return info, true
	}

	if c.store == nil {
		return BackendInfo{}, false
	}

	info, ok, err := c.store.Load(c.sup.Tag(ctx))
	if err != nil {
		c.log.Warn("Failed to read last-known daemon info", "error", err)

		return BackendInfo{}, false
	}

	return info, ok
}

// IsDaemonRunning reports whether the supervised daemon process is alive.
func (c *Commands) IsDaemonRunning() bool {
	return c.sup.IsAlive()
}

// ===== Connection =====

// Connect returns the shared client, dialing the daemon socket if needed.
func (c *Commands) Connect(ctx context.Context) (DaemonClient, error) {
	return c.connected(ctx)
}

func (c *Commands) connected(ctx context.Context) (*client.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.ErrClientClosed
	}

	if c.client != nil {
		if c.client.IsConnected() {
			return c.client, nil
		}

		_ = c.client.Close()
		c.client = nil
	}

	opts := c.opts.Client
	opts.SocketPath = c.socketPath()

	cl, err := client.New(ctx, opts)
	if err != nil {
		return nil, err
	}

	c.client = cl

	return cl, nil
}

// socketPath prefers the socket of a daemon this process knows is running.
func (c *Commands) socketPath() string {
	if info, ok := c.sup.Info(); ok && info.IsRunning && info.SocketPath != supervisor.ExternalTag {
		return info.SocketPath
	}

	return c.opts.Client.SocketPath
}

func (c *Commands) disconnect() {
	c.mu.Lock()
	cl := c.client
	c.client = nil
	c.mu.Unlock()

	if cl == nil {
		return
	}

	if err := cl.Close(); err != nil {
		c.log.Debug("Error closing daemon client", "error", err)
	}
}

// Close disconnects the client. The daemon is left running; use
// StopDaemon to stop it. It's safe to call Close multiple times.
func (c *Commands) Close() error {
	c.mu.Lock()
	c.closed = true
	cl := c.client
	c.client = nil
	c.mu.Unlock()

	if cl == nil {
		return nil
	}

	return cl.Close()
}

// ===== Sessions =====

// Health checks that the daemon is responsive.
func (c *Commands) Health(ctx context.Context) (*api.HealthCheckResponse, error) {
	cl, err := c.connected(ctx)
	if err != nil {
		return nil, err
	}

	return cl.Health(ctx)
}

// LaunchSession starts a new session.
func (c *Commands) LaunchSession(ctx context.Context, req LaunchSessionRequest) (*LaunchSessionResponse, error) {
	cl, err := c.connected(ctx)
	if err != nil {
		return nil, err
	}

	return cl.LaunchSession(ctx, req)
}

// ListSessions returns every session known to the daemon.
func (c *Commands) ListSessions(ctx context.Context) (*api.ListSessionsResponse, error) {
	cl, err := c.connected(ctx)
	if err != nil {
		return nil, err
	}

	return cl.ListSessions(ctx)
}

// GetSessionLeaves returns the newest session of each conversation tree.
func (c *Commands) GetSessionLeaves(
	ctx context.Context,
	req api.GetSessionLeavesRequest,
) (*api.GetSessionLeavesResponse, error) {
	cl, err := c.connected(ctx)
	if err != nil {
		return nil, err
	}

	return cl.GetSessionLeaves(ctx, req)
}

// ContinueSession resumes a session with a follow-up query.
func (c *Commands) ContinueSession(
	ctx context.Context,
	req ContinueSessionRequest,
) (*ContinueSessionResponse, error) {
	cl, err := c.connected(ctx)
	if err != nil {
		return nil, err
	}

	return cl.ContinueSession(ctx, req)
}

// GetSessionState returns the persisted state of one session.
func (c *Commands) GetSessionState(ctx context.Context, sessionID string) (*api.GetSessionStateResponse, error) {
	cl, err := c.connected(ctx)
	if err != nil {
		return nil, err
	}

	return cl.GetSessionState(ctx, sessionID)
}

// GetConversation returns the events of a conversation.
func (c *Commands) GetConversation(
	ctx context.Context,
	req api.GetConversationRequest,
) (*api.GetConversationResponse, error) {
	cl, err := c.connected(ctx)
	if err != nil {
		return nil, err
	}

	return cl.GetConversation(ctx, req)
}

// InterruptSession asks the daemon to stop a running session.
func (c *Commands) InterruptSession(ctx context.Context, sessionID string) (*api.InterruptSessionResponse, error) {
	cl, err := c.connected(ctx)
	if err != nil {
		return nil, err
	}

	return cl.InterruptSession(ctx, sessionID)
}

// ArchiveSession archives or unarchives one session.
func (c *Commands) ArchiveSession(
	ctx context.Context,
	req api.ArchiveSessionRequest,
) (*api.ArchiveSessionResponse, error) {
	cl, err := c.connected(ctx)
	if err != nil {
		return nil, err
	}

	return cl.ArchiveSession(ctx, req)
}

// BulkArchiveSessions archives or unarchives several sessions.
func (c *Commands) BulkArchiveSessions(
	ctx context.Context,
	req api.BulkArchiveSessionsRequest,
) (*api.BulkArchiveSessionsResponse, error) {
	cl, err := c.connected(ctx)
	if err != nil {
		return nil, err
	}

	return cl.BulkArchiveSessions(ctx, req)
}

// UpdateSessionTitle renames a session.
func (c *Commands) UpdateSessionTitle(
	ctx context.Context,
	sessionID, title string,
) (*api.UpdateSessionTitleResponse, error) {
	cl, err := c.connected(ctx)
	if err != nil {
		return nil, err
	}

	return cl.UpdateSessionTitle(ctx, sessionID, title)
}

// UpdateSessionSettings changes per-session settings.
func (c *Commands) UpdateSessionSettings(
	ctx context.Context,
	req api.UpdateSessionSettingsRequest,
) (*api.UpdateSessionSettingsResponse, error) {
	cl, err := c.connected(ctx)
	if err != nil {
		return nil, err
	}

	return cl.UpdateSessionSettings(ctx, req)
}

// GetRecentPaths returns recently used working directories.
func (c *Commands) GetRecentPaths(ctx context.Context, limit int) (*api.GetRecentPathsResponse, error) {
	cl, err := c.connected(ctx)
	if err != nil {
		return nil, err
	}

	return cl.GetRecentPaths(ctx, limit)
}

// GetSessionSnapshots returns the file snapshots captured for a session.
func (c *Commands) GetSessionSnapshots(
	ctx context.Context,
	sessionID string,
) (*api.GetSessionSnapshotsResponse, error) {
	cl, err := c.connected(ctx)
	if err != nil {
		return nil, err
	}

	return cl.GetSessionSnapshots(ctx, sessionID)
}

// ===== Approvals =====

// FetchApprovals returns approvals, optionally filtered to one session.
func (c *Commands) FetchApprovals(ctx context.Context, sessionID string) (*api.FetchApprovalsResponse, error) {
	cl, err := c.connected(ctx)
	if err != nil {
		return nil, err
	}

	return cl.FetchApprovals(ctx, sessionID)
}

// SendDecision resolves an approval after checking the decision is legal
// for its category.
func (c *Commands) SendDecision(
	ctx context.Context,
	approvalID string,
	approvalType ApprovalType,
	decision Decision,
	comment string,
) (*api.SendDecisionResponse, error) {
	cl, err := c.connected(ctx)
	if err != nil {
		return nil, err
	}

	return cl.SendDecision(ctx, approvalID, approvalType, decision, comment)
}

// ApproveFunctionCall approves a function call.
func (c *Commands) ApproveFunctionCall(ctx context.Context, approvalID, comment string) error {
	cl, err := c.connected(ctx)
	if err != nil {
		return err
	}

	return cl.ApproveFunctionCall(ctx, approvalID, comment)
}

// DenyFunctionCall denies a function call with a reason.
func (c *Commands) DenyFunctionCall(ctx context.Context, approvalID, reason string) error {
	cl, err := c.connected(ctx)
	if err != nil {
		return err
	}

	return cl.DenyFunctionCall(ctx, approvalID, reason)
}

// RespondToHumanContact answers a human contact request.
func (c *Commands) RespondToHumanContact(ctx context.Context, approvalID, response string) error {
	cl, err := c.connected(ctx)
	if err != nil {
		return err
	}

	return cl.RespondToHumanContact(ctx, approvalID, response)
}

// ===== Events =====

// Subscribe starts an event stream on a dedicated connection.
func (c *Commands) Subscribe(ctx context.Context, req SubscribeRequest) (*Subscription, error) {
	cl, err := c.connected(ctx)
	if err != nil {
		return nil, err
	}

	return cl.Subscribe(ctx, req)
}

// Unsubscribe cancels a subscription. It reports whether id was active.
func (c *Commands) Unsubscribe(id uint64) bool {
	c.mu.Lock()
	cl := c.client
	c.mu.Unlock()

	if cl == nil {
		return false
	}

	return cl.Unsubscribe(id)
}
