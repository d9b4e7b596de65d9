package daemonkit

import "github.com/wagiedev/daemonkit/internal/errors"

// Re-export error types from internal package

// DaemonKitError is the base interface for all daemonkit errors.
type DaemonKitError = errors.DaemonKitError

// ConnectionError indicates the daemon socket could not be reached.
type ConnectionError = errors.ConnectionError

// ProtocolError indicates a malformed reply envelope.
type ProtocolError = errors.ProtocolError

// RPCError is an application error reported by the daemon.
type RPCError = errors.RPCError

// DecodeError indicates a result did not match the expected shape.
type DecodeError = errors.DecodeError

// SubscriptionError indicates an event stream failed.
type SubscriptionError = errors.SubscriptionError

// ValidationError indicates a request was rejected before sending.
type ValidationError = errors.ValidationError

// ApprovalError indicates the daemon refused a decision.
type ApprovalError = errors.ApprovalError

// SessionError indicates a session operation reported failure.
type SessionError = errors.SessionError

// ExecutableNotFoundError indicates the daemon binary was not found.
type ExecutableNotFoundError = errors.ExecutableNotFoundError

// SpawnError indicates the daemon process could not be launched.
type SpawnError = errors.SpawnError

// PortAnnouncementError indicates the daemon did not report its port.
type PortAnnouncementError = errors.PortAnnouncementError

// PrematureExitError indicates the daemon exited during startup.
type PrematureExitError = errors.PrematureExitError

// ReadinessTimeoutError indicates the daemon never passed its health check.
type ReadinessTimeoutError = errors.ReadinessTimeoutError

// ExternalConfigError indicates the external daemon settings are incomplete.
type ExternalConfigError = errors.ExternalConfigError

// Re-export sentinel errors from internal package.
var (
	// ErrTimeout indicates a connect or request deadline was exceeded.
	ErrTimeout = errors.ErrTimeout

	// ErrNotConnected indicates there is no usable daemon connection.
	ErrNotConnected = errors.ErrNotConnected

	// ErrClientClosed indicates the client has been closed and cannot be reused.
	ErrClientClosed = errors.ErrClientClosed
)
