// Package daemonkit supervises a local session daemon and talks to it over
// its Unix socket.
//
// The daemon is a separate binary that announces its HTTP port on the first
// line of stdout, serves a health endpoint, and accepts newline-delimited
// JSON-RPC 2.0 requests on a Unix socket. Commands ties the pieces together:
// it launches (or adopts) the daemon, connects a client to its socket on
// first use, and exposes every daemon call.
//
// # Quick Start
//
// Start a daemon, call it, and stop it again:
//
//	err := daemonkit.WithDaemon(ctx, func(cmds *daemonkit.Commands) error {
//	    resp, err := cmds.LaunchSession(ctx, daemonkit.LaunchSessionRequest{
//	        Query: "Fix the failing test",
//	    })
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println("launched", resp.SessionID)
//	    return nil
//	}, daemonkit.WithDevMode(true))
//
// # Long-lived Applications
//
// Applications that outlive a single call keep a Commands value:
//
//	cmds := daemonkit.New(
//	    daemonkit.WithLogger(logger),
//	    daemonkit.WithEnvironment(),
//	)
//	defer cmds.Close()
//
//	info, err := cmds.StartDaemon(ctx)
//	if err != nil {
//	    return err
//	}
//	defer cmds.StopDaemon(context.Background())
//
// Setting HUMANLAYER_WUI_AUTOLAUNCH_DAEMON=false together with
// HUMANLAYER_DAEMON_HTTP_PORT makes StartDaemon use a daemon that is managed
// elsewhere instead of spawning one.
//
// # Events
//
// Subscriptions run on their own connection and deliver events on a channel
// until canceled:
//
//	sub, err := cmds.Subscribe(ctx, daemonkit.SubscribeRequest{
//	    EventTypes: []string{string(daemonkit.EventNewApproval)},
//	})
//	if err != nil {
//	    return err
//	}
//	for ev := range sub.Events {
//	    fmt.Println(ev.Event.Type)
//	}
//	if err := sub.Err(); err != nil {
//	    log.Printf("subscription ended: %v", err)
//	}
//
// # Error Handling
//
// Failures are reported with typed errors:
//
//	_, err := cmds.Health(ctx)
//	if connErr, ok := errors.AsType[*daemonkit.ConnectionError](err); ok {
//	    log.Fatalf("daemon unreachable at %s", connErr.Path)
//	}
//	if rpcErr, ok := errors.AsType[*daemonkit.RPCError](err); ok {
//	    log.Fatalf("daemon error %d: %s", rpcErr.Code, rpcErr.Message)
//	}
//
// # Logging
//
// Logging is disabled unless WithLogger is given. Daemon stderr is re-emitted
// through the same logger at the level the daemon line carried.
package daemonkit
