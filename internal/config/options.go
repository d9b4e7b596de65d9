// Package config provides configuration types for daemonkit.
package config

import (
	"log/slog"
	"net/http"
	"time"
)

// Environment variables shared with the daemon process.
const (
	EnvAutoLaunch      = "HUMANLAYER_WUI_AUTOLAUNCH_DAEMON"
	EnvHTTPPort        = "HUMANLAYER_DAEMON_HTTP_PORT"
	EnvHTTPHost        = "HUMANLAYER_DAEMON_HTTP_HOST"
	EnvSocketPath      = "HUMANLAYER_DAEMON_SOCKET"
	EnvDatabasePath    = "HUMANLAYER_DATABASE_PATH"
	EnvVersionOverride = "HUMANLAYER_DAEMON_VERSION_OVERRIDE"
	EnvDebug           = "HUMANLAYER_DEBUG"
	EnvGinMode         = "GIN_MODE"
)

// Default timings for the supervisor lifecycle.
const (
	DefaultReadinessTimeout  = 10 * time.Second
	DefaultReadinessInterval = 500 * time.Millisecond
	DefaultMonitorInterval   = 1 * time.Second
	DefaultStopTimeout       = 15 * time.Second
	DefaultStopPollInterval  = 100 * time.Millisecond
	DefaultHealthPath        = "/api/v1/health"
)

// BuildFlavor distinguishes packaged release channels.
type BuildFlavor string

const (
	// FlavorStable is the regular packaged build.
	FlavorStable BuildFlavor = "stable"
	// FlavorNightly is the nightly packaged build; it uses separate state files.
	FlavorNightly BuildFlavor = "nightly"
)

// SupervisorOptions configures the daemon process supervisor.
type SupervisorOptions struct {
	// Logger receives supervisor logs and the re-emitted daemon stderr.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// DevMode selects the development daemon binary, branch-scoped state
	// files, and debug logging in the daemon.
	DevMode bool

	// Flavor selects packaged state file names when DevMode is false.
	Flavor BuildFlavor

	// BranchOverride replaces the branch-derived identity tag.
	BranchOverride string

	// ExecutablePath is an explicit daemon binary path that skips discovery.
	ExecutablePath string

	// ResourceDir is the packaged resource directory holding bin/hld.
	ResourceDir string

	// WorkDir is the directory development discovery starts from.
	// Defaults to the process working directory.
	WorkDir string

	// BaseDir holds socket, database, and state files.
	// Defaults to ~/.humanlayer.
	BaseDir string

	// SocketPath and DatabasePath override the derived paths.
	SocketPath   string
	DatabasePath string

	// ExternallyManaged disables spawning. The daemon is expected to be
	// running already at ExternalPort.
	ExternallyManaged bool

	// ExternalPort is the HTTP port of an already running daemon.
	ExternalPort uint16

	// VersionOverride is the identity reported for an external daemon.
	VersionOverride string

	// Env provides additional environment variables for the daemon process.
	Env map[string]string

	// HealthPath is the readiness endpoint. Defaults to DefaultHealthPath.
	HealthPath string

	// HTTPClient is used for health checks.
	HTTPClient *http.Client

	ReadinessTimeout  time.Duration
	ReadinessInterval time.Duration
	MonitorInterval   time.Duration
	StopTimeout       time.Duration
	StopPollInterval  time.Duration
}

// ClientOptions configures the daemon RPC client.
type ClientOptions struct {
	// Logger receives client and subscription logs.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// SocketPath is the daemon socket. Defaults to $HUMANLAYER_DAEMON_SOCKET
	// or ~/.humanlayer/daemon.sock.
	SocketPath string

	// MaxRetries is the number of additional connect attempts.
	MaxRetries int

	// RequestTimeout bounds connect and single request round trips.
	RequestTimeout time.Duration

	// RetryDelay is the pause between connect attempts.
	RetryDelay time.Duration
}

// WithDefaults returns a copy of o with zero-valued timings filled in.
func (o SupervisorOptions) WithDefaults() SupervisorOptions {
	if o.ReadinessTimeout <= 0 {
		o.ReadinessTimeout = DefaultReadinessTimeout
	}

	if o.ReadinessInterval <= 0 {
		o.ReadinessInterval = DefaultReadinessInterval
	}

	if o.MonitorInterval <= 0 {
		o.MonitorInterval = DefaultMonitorInterval
	}

	if o.StopTimeout <= 0 {
		o.StopTimeout = DefaultStopTimeout
	}

	if o.StopPollInterval <= 0 {
		o.StopPollInterval = DefaultStopPollInterval
	}

	if o.HealthPath == "" {
		o.HealthPath = DefaultHealthPath
	}

	if o.Flavor == "" {
		o.Flavor = FlavorStable
	}

	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 2 * time.Second}
	}

	return o
}
