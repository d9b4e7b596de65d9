package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Lookup reads an environment variable. Tests replace it to avoid touching
// the real process environment.
type Lookup func(key string) (string, bool)

// ApplyEnv overlays daemon-related environment variables onto o.
//
// Auto-launch is only disabled by an explicit "false", compared
// case-insensitively after trimming spaces.
// Explicit values already set on o win over the environment.
func ApplyEnv(o SupervisorOptions, lookup Lookup) SupervisorOptions {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if v, ok := lookup(EnvAutoLaunch); ok && strings.ToLower(strings.TrimSpace(v)) == "false" {
		o.ExternallyManaged = true
	}

	if o.ExternalPort == 0 {
		if v, ok := lookup(EnvHTTPPort); ok {
			if port, err := strconv.ParseUint(strings.TrimSpace(v), 10, 16); err == nil {
				o.ExternalPort = uint16(port)
			}
		}
	}

	if o.SocketPath == "" {
		if v, ok := lookup(EnvSocketPath); ok && v != "" {
			o.SocketPath = v
		}
	}

	if o.DatabasePath == "" {
		if v, ok := lookup(EnvDatabasePath); ok && v != "" {
			o.DatabasePath = v
		}
	}

	if o.VersionOverride == "" {
		if v, ok := lookup(EnvVersionOverride); ok && v != "" {
			o.VersionOverride = v
		}
	}

	return o
}

// DefaultBaseDir returns ~/.humanlayer, or an empty string if the home
// directory cannot be determined.
func DefaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".humanlayer")
}

// DefaultSocketPath mirrors the daemon's own resolution: the socket
// environment variable first, then ~/.humanlayer/daemon.sock.
func DefaultSocketPath() string {
	if v := os.Getenv(EnvSocketPath); v != "" {
		return v
	}

	return filepath.Join(DefaultBaseDir(), "daemon.sock")
}
