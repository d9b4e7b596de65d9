package daemonkit

import (
	"context"
	"fmt"
	"time"
)

// shutdownTimeout bounds the daemon stop performed by WithDaemon.
const shutdownTimeout = 20 * time.Second

// WithDaemon manages the daemon lifecycle with automatic cleanup.
//
// It starts the daemon, runs fn, then closes the client and stops the
// daemon. The stop runs on a fresh context so a canceled ctx still shuts
// the daemon down. If fn returns an error, it is returned to the caller; a
// failed stop is logged and does not override it.
//
// Example usage:
//
//	err := daemonkit.WithDaemon(ctx, func(cmds *daemonkit.Commands) error {
//	    sessions, err := cmds.ListSessions(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    for _, s := range sessions.Sessions {
//	        fmt.Println(s.ID, s.Status)
//	    }
//	    return nil
//	},
//	    daemonkit.WithLogger(log),
//	    daemonkit.WithDevMode(true),
//	)
func WithDaemon(ctx context.Context, fn func(*Commands) error, opts ...Option) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	cmds := New(opts...)

	if _, err := cmds.StartDaemon(ctx); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	defer func() {
		if closeErr := cmds.Close(); closeErr != nil {
			cmds.log.Warn("failed to close client", "error", closeErr)
		}

		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if stopErr := cmds.StopDaemon(stopCtx); stopErr != nil {
			cmds.log.Warn("failed to stop daemon", "error", stopErr)
		}
	}()

	return fn(cmds)
}
