package errors

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// DaemonKitError is the base interface for all daemonkit errors.
type DaemonKitError interface {
	error
	IsDaemonKitError() bool
}

// Compile-time verification that all error types implement DaemonKitError.
var (
	_ DaemonKitError = (*ConnectionError)(nil)
	_ DaemonKitError = (*ProtocolError)(nil)
	_ DaemonKitError = (*RPCError)(nil)
	_ DaemonKitError = (*DecodeError)(nil)
	_ DaemonKitError = (*SubscriptionError)(nil)
	_ DaemonKitError = (*ValidationError)(nil)
	_ DaemonKitError = (*ApprovalError)(nil)
	_ DaemonKitError = (*SessionError)(nil)
	_ DaemonKitError = (*ExecutableNotFoundError)(nil)
	_ DaemonKitError = (*SpawnError)(nil)
	_ DaemonKitError = (*PortAnnouncementError)(nil)
	_ DaemonKitError = (*PrematureExitError)(nil)
	_ DaemonKitError = (*ReadinessTimeoutError)(nil)
	_ DaemonKitError = (*ExternalConfigError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrTimeout indicates a connect or request deadline was exceeded.
	ErrTimeout = errors.New("operation timed out")

	// ErrNotConnected indicates the client has no usable connection.
	ErrNotConnected = errors.New("not connected to daemon")

	// ErrClientClosed indicates the client has been closed and cannot be reused.
	ErrClientClosed = errors.New("client closed")
)

// ConnectionError indicates the daemon could not be reached or the peer went away.
type ConnectionError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ConnectionError) Error() string {
	var b strings.Builder

	b.WriteString("daemon connection failed")

	if e.Path != "" {
		fmt.Fprintf(&b, " (%s)", e.Path)
	}

	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}

	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}

	return b.String()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsDaemonKitError implements DaemonKitError.
func (e *ConnectionError) IsDaemonKitError() bool { return true }

// ProtocolError indicates a malformed or unexpected envelope.
type ProtocolError struct {
	Reason  string
	RawData string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}

	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsDaemonKitError implements DaemonKitError.
func (e *ProtocolError) IsDaemonKitError() bool { return true }

// RPCError is an application error reported by the daemon.
type RPCError struct {
	Code    int
	Message string
	Data    any
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// IsDaemonKitError implements DaemonKitError.
func (e *RPCError) IsDaemonKitError() bool { return true }

// DecodeError indicates the result did not match the expected shape.
type DecodeError struct {
	Method string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s result: %v", e.Method, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDaemonKitError implements DaemonKitError.
func (e *DecodeError) IsDaemonKitError() bool { return true }

// SubscriptionError indicates a failure specific to an event stream.
type SubscriptionError struct {
	ID     uint64
	Reason string
	Err    error
}

func (e *SubscriptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("subscription %d: %s: %v", e.ID, e.Reason, e.Err)
	}

	return fmt.Sprintf("subscription %d: %s", e.ID, e.Reason)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// IsDaemonKitError implements DaemonKitError.
func (e *SubscriptionError) IsDaemonKitError() bool { return true }

// ValidationError indicates a request was rejected locally before sending.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}

	return "invalid request: " + e.Message
}

// IsDaemonKitError implements DaemonKitError.
func (e *ValidationError) IsDaemonKitError() bool { return true }

// ApprovalError indicates the daemon accepted a decision call but refused the decision.
type ApprovalError struct {
	ApprovalID string
	Message    string
}

func (e *ApprovalError) Error() string {
	return fmt.Sprintf("approval %s: %s", e.ApprovalID, e.Message)
}

// IsDaemonKitError implements DaemonKitError.
func (e *ApprovalError) IsDaemonKitError() bool { return true }

// SessionError indicates a session operation reported failure.
type SessionError struct {
	SessionID string
	Message   string
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %s", e.SessionID, e.Message)
}

// IsDaemonKitError implements DaemonKitError.
func (e *SessionError) IsDaemonKitError() bool { return true }

// ExecutableNotFoundError indicates the daemon binary was not found.
type ExecutableNotFoundError struct {
	SearchedPaths []string
	Hint          string
}

func (e *ExecutableNotFoundError) Error() string {
	msg := fmt.Sprintf("daemon executable not found in: %v", e.SearchedPaths)
	if e.Hint != "" {
		msg += ". " + e.Hint
	}

	return msg
}

// IsDaemonKitError implements DaemonKitError.
func (e *ExecutableNotFoundError) IsDaemonKitError() bool { return true }

// SpawnError indicates the daemon process could not be launched.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start daemon %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// IsDaemonKitError implements DaemonKitError.
func (e *SpawnError) IsDaemonKitError() bool { return true }

// PortAnnouncementError indicates the daemon did not report its port on stdout.
type PortAnnouncementError struct {
	FirstLine string
	Err       error
}

func (e *PortAnnouncementError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("daemon failed to report port: %v", e.Err)
	}

	return fmt.Sprintf("daemon failed to report port. First line was: %q", e.FirstLine)
}

func (e *PortAnnouncementError) Unwrap() error {
	return e.Err
}

// IsDaemonKitError implements DaemonKitError.
func (e *PortAnnouncementError) IsDaemonKitError() bool { return true }

// PrematureExitError indicates the daemon exited before it became ready.
type PrematureExitError struct {
	PID   int
	State *os.ProcessState
}

func (e *PrematureExitError) Error() string {
	if e.State == nil {
		return fmt.Sprintf("daemon process %d exited immediately after starting", e.PID)
	}

	return fmt.Sprintf("daemon process %d exited immediately after starting: %s", e.PID, e.State)
}

// IsDaemonKitError implements DaemonKitError.
func (e *PrematureExitError) IsDaemonKitError() bool { return true }

// ReadinessTimeoutError indicates the health endpoint never answered successfully.
type ReadinessTimeoutError struct {
	Port    uint16
	Timeout time.Duration
	LastErr error
}

func (e *ReadinessTimeoutError) Error() string {
	return fmt.Sprintf("daemon on port %d failed to start within %s", e.Port, e.Timeout)
}

func (e *ReadinessTimeoutError) Unwrap() error {
	return e.LastErr
}

// IsDaemonKitError implements DaemonKitError.
func (e *ReadinessTimeoutError) IsDaemonKitError() bool { return true }

// ExternalConfigError indicates externally-managed mode lacks connection coordinates.
type ExternalConfigError struct {
	Missing string
}

func (e *ExternalConfigError) Error() string {
	return fmt.Sprintf("auto-launch disabled but %s is not set", e.Missing)
}

// IsDaemonKitError implements DaemonKitError.
func (e *ExternalConfigError) IsDaemonKitError() bool { return true }
