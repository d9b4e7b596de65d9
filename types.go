package daemonkit

import (
	"github.com/wagiedev/daemonkit/internal/api"
	"github.com/wagiedev/daemonkit/internal/client"
	"github.com/wagiedev/daemonkit/internal/config"
	"github.com/wagiedev/daemonkit/internal/subscription"
	"github.com/wagiedev/daemonkit/internal/supervisor"
)

// Re-export types from internal packages

// ===== Daemon Lifecycle =====

// BackendInfo describes a running daemon.
type BackendInfo = supervisor.BackendInfo

// BuildFlavor distinguishes packaged release channels.
type BuildFlavor = config.BuildFlavor

const (
	// FlavorStable is the regular packaged build.
	FlavorStable = config.FlavorStable
	// FlavorNightly is the nightly packaged build.
	FlavorNightly = config.FlavorNightly
)

// ===== Client =====

// DaemonClient is the typed interface to a running daemon.
type DaemonClient = client.DaemonClient

// Subscription is the caller's side of an event stream.
type Subscription = subscription.Handle

// ===== Sessions =====

// SessionStatus is the lifecycle state of a session.
type SessionStatus = api.SessionStatus

const (
	SessionStarting     = api.SessionStarting
	SessionRunning      = api.SessionRunning
	SessionCompleted    = api.SessionCompleted
	SessionFailed       = api.SessionFailed
	SessionWaitingInput = api.SessionWaitingInput
	SessionInterrupting = api.SessionInterrupting
	SessionInterrupted  = api.SessionInterrupted
)

// SessionInfo summarizes a session.
type SessionInfo = api.SessionInfo

// SessionState is the full persisted state of one session.
type SessionState = api.SessionState

// LaunchSessionRequest starts a new session.
type LaunchSessionRequest = api.LaunchSessionRequest

// LaunchSessionResponse identifies the launched session.
type LaunchSessionResponse = api.LaunchSessionResponse

// ContinueSessionRequest resumes a session with a follow-up query.
type ContinueSessionRequest = api.ContinueSessionRequest

// ContinueSessionResponse identifies the child session created by a continue.
type ContinueSessionResponse = api.ContinueSessionResponse

// ConversationEvent is one message, tool call, or tool result.
type ConversationEvent = api.ConversationEvent

// RecentPath is a working directory used by earlier sessions.
type RecentPath = api.RecentPath

// FileSnapshotInfo is a file captured before a tool edited it.
type FileSnapshotInfo = api.FileSnapshotInfo

// ===== Approvals =====

// Approval is a pending or resolved approval.
type Approval = api.Approval

// ApprovalType is the category of a pending approval.
type ApprovalType = api.ApprovalType

// Decision is the action taken on an approval.
type Decision = api.Decision

const (
	ApprovalFunctionCall = api.ApprovalFunctionCall
	ApprovalHumanContact = api.ApprovalHumanContact

	DecisionApprove = api.DecisionApprove
	DecisionDeny    = api.DecisionDeny
	DecisionRespond = api.DecisionRespond
)

// ===== Events =====

// EventType names a daemon event.
type EventType = api.EventType

// Event is a daemon-originated notification.
type Event = api.Event

// EventNotification is one delivered event.
type EventNotification = api.EventNotification

// SubscribeRequest filters the events delivered on a subscription.
type SubscribeRequest = api.SubscribeRequest

const (
	EventNewApproval            = api.EventNewApproval
	EventApprovalResolved       = api.EventApprovalResolved
	EventSessionStatusChanged   = api.EventSessionStatusChanged
	EventConversationUpdated    = api.EventConversationUpdated
	EventSessionSettingsChanged = api.EventSessionSettingsChanged
)
