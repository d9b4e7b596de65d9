package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/wagiedev/daemonkit"
	"github.com/wagiedev/daemonkit/internal/api"
	dkmcp "github.com/wagiedev/daemonkit/internal/mcp"
)

const stopTimeout = 20 * time.Second

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func (a *app) startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon and keep it running until interrupted",
		Long: `Start launches the daemon (or adopts an already running one), prints its
info, and stops it again on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			info, err := a.cmds.StartDaemon(ctx)
			if err != nil {
				return err
			}

			if err := a.printJSON(info); err != nil {
				return err
			}

			<-ctx.Done()

			a.log.Info("Shutting down daemon")

			stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
			defer stopCancel()

			return a.cmds.StopDaemon(stopCtx)
		},
	}
}

// statusReport is the output of the status command.
type statusReport struct {
	Known     bool                     `json:"known"`
	Info      *daemonkit.BackendInfo   `json:"info,omitempty"`
	Reachable bool                     `json:"reachable"`
	Health    *api.HealthCheckResponse `json:"health,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last-known daemon info and whether it answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			var report statusReport

			if info, ok := a.cmds.DaemonInfo(ctx); ok {
				report.Known = true
				report.Info = &info
			}

			health, err := a.cmds.Health(ctx)
			if err != nil {
				report.Error = err.Error()
			} else {
				report.Reachable = true
				report.Health = health
			}

			return a.printJSON(report)
		},
	}
}

func (a *app) sessionsCmd() *cobra.Command {
	var (
		leaves          bool
		includeArchived bool
		archivedOnly    bool
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if !leaves {
				resp, err := a.cmds.ListSessions(ctx)
				if err != nil {
					return err
				}

				return a.printJSON(resp)
			}

			resp, err := a.cmds.GetSessionLeaves(ctx, api.GetSessionLeavesRequest{
				IncludeArchived: includeArchived,
				ArchivedOnly:    archivedOnly,
			})
			if err != nil {
				return err
			}

			return a.printJSON(resp)
		},
	}

	cmd.Flags().BoolVar(&leaves, "leaves", false, "only the newest session of each conversation")
	cmd.Flags().BoolVar(&includeArchived, "include-archived", false, "include archived sessions (with --leaves)")
	cmd.Flags().BoolVar(&archivedOnly, "archived-only", false, "only archived sessions (with --leaves)")

	return cmd
}

func (a *app) approvalsCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "approvals",
		Short: "List approvals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := a.cmds.FetchApprovals(cmd.Context(), sessionID)
			if err != nil {
				return err
			}

			return a.printJSON(resp)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "only approvals of this session")

	return cmd
}

func (a *app) decideCmd() *cobra.Command {
	var approvalType string

	cmd := &cobra.Command{
		Use:   "decide <approval-id> <approve|deny|respond> [comment]",
		Short: "Resolve an approval",
		Long: `Decide approves or denies a function call, or responds to a human contact
request. The approval type is inferred from the decision unless --type is given.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			decision, err := api.ParseDecision(args[1])
			if err != nil {
				return err
			}

			typ := api.ApprovalFunctionCall
			if decision == api.DecisionRespond {
				typ = api.ApprovalHumanContact
			}

			if approvalType != "" {
				typ, err = api.ParseApprovalType(approvalType)
				if err != nil {
					return err
				}
			}

			var comment string
			if len(args) == 3 {
				comment = args[2]
			}

			resp, err := a.cmds.SendDecision(cmd.Context(), args[0], typ, decision, comment)
			if err != nil {
				return err
			}

			if !resp.Success {
				msg := resp.Error
				if msg == "" {
					msg = "Unknown error"
				}

				return &daemonkit.ApprovalError{ApprovalID: args[0], Message: msg}
			}

			return a.printJSON(resp)
		},
	}

	cmd.Flags().StringVar(&approvalType, "type", "", "approval type: function_call or human_contact")

	return cmd
}

func (a *app) subscribeCmd() *cobra.Command {
	var (
		eventTypes []string
		sessionID  string
		runID      string
	)

	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Print daemon events as JSON lines until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			sub, err := a.cmds.Subscribe(ctx, daemonkit.SubscribeRequest{
				EventTypes: eventTypes,
				SessionID:  sessionID,
				RunID:      runID,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(a.out)

			for ev := range sub.Events {
				if err := enc.Encode(ev.Event); err != nil {
					sub.Close()

					return fmt.Errorf("writing event: %w", err)
				}
			}

			return sub.Err()
		},
	}

	cmd.Flags().StringSliceVar(&eventTypes, "event", nil, "event type to receive (repeatable; default all)")
	cmd.Flags().StringVar(&sessionID, "session", "", "only events of this session")
	cmd.Flags().StringVar(&runID, "run", "", "only events of this run")

	return cmd
}

func (a *app) mcpCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve daemon tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			server := dkmcp.NewServer("daemonkit", version)
			dkmcp.RegisterTools(server, a.cmds)

			a.log.Info("Serving MCP tools on stdio", "tools", len(server.Tools()))

			err := server.Run(ctx, &mcp.StdioTransport{})

			stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
			defer stopCancel()

			if stopErr := a.cmds.StopDaemon(stopCtx); stopErr != nil {
				a.log.Warn("Failed to stop daemon", "error", stopErr)
			}

			if ctx.Err() != nil {
				return nil
			}

			return err
		},
	}
}
