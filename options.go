package daemonkit

import (
	"log/slog"
	"os"
	"time"

	"github.com/wagiedev/daemonkit/internal/config"
)

// Option configures Options using the functional options pattern.
type Option func(*Options)

// Options configures a Commands instance.
type Options struct {
	// Logger receives supervisor, client, and subscription logs.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// Supervisor configures the daemon process lifecycle.
	Supervisor config.SupervisorOptions

	// Client configures the socket connection made by Connect.
	Client config.ClientOptions

	// StateDir holds the last-known daemon info file.
	// Defaults to the supervisor's base directory.
	StateDir string
}

// applyOptions applies functional options to a fresh Options struct.
func applyOptions(opts []Option) *Options {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// ===== Basic Configuration =====

// WithLogger sets the logger for all components.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithStateDir sets the directory of the last-known daemon info file.
func WithStateDir(dir string) Option {
	return func(o *Options) {
		o.StateDir = dir
	}
}

// WithEnvironment overlays the daemon environment variables of the current
// process onto the options: auto-launch, HTTP port, socket and database
// paths, and version override. Values already set win.
func WithEnvironment() Option {
	return func(o *Options) {
		o.Supervisor = config.ApplyEnv(o.Supervisor, os.LookupEnv)

		if o.Client.SocketPath == "" {
			o.Client.SocketPath = o.Supervisor.SocketPath
		}
	}
}

// ===== Daemon Discovery =====

// WithDevMode selects the development daemon binary and branch-scoped state.
func WithDevMode(dev bool) Option {
	return func(o *Options) {
		o.Supervisor.DevMode = dev
	}
}

// WithFlavor selects the packaged release channel.
func WithFlavor(flavor config.BuildFlavor) Option {
	return func(o *Options) {
		o.Supervisor.Flavor = flavor
	}
}

// WithBranchOverride replaces the branch-derived identity tag.
func WithBranchOverride(tag string) Option {
	return func(o *Options) {
		o.Supervisor.BranchOverride = tag
	}
}

// WithExecutablePath sets an explicit daemon binary and skips discovery.
func WithExecutablePath(path string) Option {
	return func(o *Options) {
		o.Supervisor.ExecutablePath = path
	}
}

// WithResourceDir sets the packaged resource directory holding bin/hld.
func WithResourceDir(dir string) Option {
	return func(o *Options) {
		o.Supervisor.ResourceDir = dir
	}
}

// WithWorkDir sets the directory development discovery starts from.
func WithWorkDir(dir string) Option {
	return func(o *Options) {
		o.Supervisor.WorkDir = dir
	}
}

// ===== Paths =====

// WithBaseDir sets the directory holding socket, database, and state files.
func WithBaseDir(dir string) Option {
	return func(o *Options) {
		o.Supervisor.BaseDir = dir
	}
}

// WithSocketPath overrides the daemon socket path for both the spawned
// daemon and the client.
func WithSocketPath(path string) Option {
	return func(o *Options) {
		o.Supervisor.SocketPath = path
		o.Client.SocketPath = path
	}
}

// WithDatabasePath overrides the daemon database path.
func WithDatabasePath(path string) Option {
	return func(o *Options) {
		o.Supervisor.DatabasePath = path
	}
}

// ===== External Daemon =====

// WithExternalDaemon disables spawning and uses a daemon already listening
// on port.
func WithExternalDaemon(port uint16) Option {
	return func(o *Options) {
		o.Supervisor.ExternallyManaged = true
		o.Supervisor.ExternalPort = port
	}
}

// WithExternalPort adopts a healthy daemon on port if one is running and
// launches a new one otherwise.
func WithExternalPort(port uint16) Option {
	return func(o *Options) {
		o.Supervisor.ExternalPort = port
	}
}

// WithEnv provides additional environment variables for the daemon process.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		o.Supervisor.Env = env
	}
}

// ===== Timing =====

// WithReadinessTimeout bounds the wait for the daemon health check.
func WithReadinessTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Supervisor.ReadinessTimeout = d
	}
}

// WithStopTimeout bounds the wait between SIGTERM and SIGKILL.
func WithStopTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Supervisor.StopTimeout = d
	}
}

// WithMaxRetries sets the number of additional socket connect attempts.
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		o.Client.MaxRetries = n
	}
}

// WithRequestTimeout bounds connect and single request round trips.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Client.RequestTimeout = d
	}
}

// WithRetryDelay sets the pause between connect attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Options) {
		o.Client.RetryDelay = d
	}
}
