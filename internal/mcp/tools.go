package mcp

import (
	"context"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagiedev/daemonkit/internal/api"
	"github.com/wagiedev/daemonkit/internal/supervisor"
)

// Tool names.
const (
	ToolDaemonStart         = "daemon_start"
	ToolDaemonStop          = "daemon_stop"
	ToolDaemonStatus        = "daemon_status"
	ToolHealth              = "health"
	ToolListSessions        = "list_sessions"
	ToolLaunchSession       = "launch_session"
	ToolContinueSession     = "continue_session"
	ToolInterruptSession    = "interrupt_session"
	ToolFetchApprovals      = "fetch_approvals"
	ToolSendDecision        = "send_decision"
	ToolArchiveSession      = "archive_session"
	ToolRenameSession       = "rename_session"
	ToolGetRecentPaths      = "get_recent_paths"
	ToolGetSessionSnapshots = "get_session_snapshots"
)

// Commands is the daemon surface the tools drive.
type Commands interface {
	StartDaemon(ctx context.Context) (supervisor.BackendInfo, error)
	StopDaemon(ctx context.Context) error
	DaemonInfo(ctx context.Context) (supervisor.BackendInfo, bool)
	IsDaemonRunning() bool

	Health(ctx context.Context) (*api.HealthCheckResponse, error)
	ListSessions(ctx context.Context) (*api.ListSessionsResponse, error)
	LaunchSession(ctx context.Context, req api.LaunchSessionRequest) (*api.LaunchSessionResponse, error)
	ContinueSession(ctx context.Context, req api.ContinueSessionRequest) (*api.ContinueSessionResponse, error)
	InterruptSession(ctx context.Context, sessionID string) (*api.InterruptSessionResponse, error)
	ArchiveSession(ctx context.Context, req api.ArchiveSessionRequest) (*api.ArchiveSessionResponse, error)
	UpdateSessionTitle(ctx context.Context, sessionID, title string) (*api.UpdateSessionTitleResponse, error)
	GetRecentPaths(ctx context.Context, limit int) (*api.GetRecentPathsResponse, error)
	GetSessionSnapshots(ctx context.Context, sessionID string) (*api.GetSessionSnapshotsResponse, error)

	FetchApprovals(ctx context.Context, sessionID string) (*api.FetchApprovalsResponse, error)
	SendDecision(
		ctx context.Context,
		approvalID string,
		approvalType api.ApprovalType,
		decision api.Decision,
		comment string,
	) (*api.SendDecisionResponse, error)
}

// DaemonStatus is the result of the daemon_status tool.
type DaemonStatus struct {
	Running bool                    `json:"running"`
	Known   bool                    `json:"known"`
	Info    *supervisor.BackendInfo `json:"info,omitempty"`
}

type sessionArgs struct {
	SessionID string `json:"session_id"`
}

type continueArgs struct {
	SessionID    string `json:"session_id"`
	Query        string `json:"query"`
	SystemPrompt string `json:"system_prompt"`
	MaxTurns     int    `json:"max_turns"`
}

type decisionArgs struct {
	ApprovalID   string `json:"approval_id"`
	ApprovalType string `json:"approval_type"`
	Decision     string `json:"decision"`
	Comment      string `json:"comment"`
}

type archiveArgs struct {
	SessionID string `json:"session_id"`
	Archived  *bool  `json:"archived"`
}

type renameArgs struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
}

type recentPathsArgs struct {
	Limit int `json:"limit"`
}

var sessionIDProp = map[string]*jsonschema.Schema{
	"session_id": Prop("string", "Session ID"),
}

// RegisterTools adds every daemon tool to s.
func RegisterTools(s *Server, cmds Commands) {
	s.AddTool(
		NewTool(ToolDaemonStart, "Start the daemon, or report it if already running", ObjectSchema(nil)),
		func(ctx context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			info, err := cmds.StartDaemon(ctx)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}

			return JSONResult(info), nil
		},
	)

	s.AddTool(
		NewTool(ToolDaemonStop, "Stop the daemon started by this process", ObjectSchema(nil)),
		func(ctx context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			if err := cmds.StopDaemon(ctx); err != nil {
				return ErrorResult(err.Error()), nil
			}

			return TextResult("Daemon stopped"), nil
		},
	)

	s.AddTool(
		NewTool(ToolDaemonStatus, "Report whether the daemon is running and its last-known info", ObjectSchema(nil)),
		func(ctx context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			status := DaemonStatus{Running: cmds.IsDaemonRunning()}

			if info, ok := cmds.DaemonInfo(ctx); ok {
				status.Known = true
				status.Info = &info
			}

			return JSONResult(status), nil
		},
	)

	s.AddTool(
		NewTool(ToolHealth, "Check that the daemon answers on its socket", ObjectSchema(nil)),
		func(ctx context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			resp, err := cmds.Health(ctx)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}

			return JSONResult(resp), nil
		},
	)

	s.AddTool(
		NewTool(ToolListSessions, "List all sessions", ObjectSchema(nil)),
		func(ctx context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			resp, err := cmds.ListSessions(ctx)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}

			return JSONResult(resp), nil
		},
	)

	s.AddTool(
		NewTool(ToolLaunchSession, "Launch a new session", ObjectSchema(map[string]*jsonschema.Schema{
			"query":         Prop("string", "Prompt for the session"),
			"title":         Prop("string", "Session title"),
			"model":         Prop("string", "Model name"),
			"working_dir":   Prop("string", "Working directory"),
			"max_turns":     Prop("int", "Maximum conversation turns"),
			"system_prompt": Prop("string", "System prompt override"),
			"allowed_tools": Prop("[]string", "Tools the session may use"),
			"mcp_config":    Prop("object", "MCP server configuration"),
		}, "query")),
		func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, err := DecodeArguments[api.LaunchSessionRequest](req)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}

			resp, err := cmds.LaunchSession(ctx, args)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}

			return JSONResult(resp), nil
		},
	)

	s.AddTool(
		NewTool(ToolContinueSession, "Send a follow-up query to a session", ObjectSchema(map[string]*jsonschema.Schema{
			"session_id":    Prop("string", "Session to continue"),
			"query":         Prop("string", "Follow-up prompt"),
			"system_prompt": Prop("string", "System prompt override"),
			"max_turns":     Prop("int", "Maximum conversation turns"),
		}, "session_id", "query")),
		func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, err := DecodeArguments[continueArgs](req)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}

			resp, err := cmds.ContinueSession(ctx, api.ContinueSessionRequest{
				SessionID:    args.SessionID,
				Query:        args.Query,
				SystemPrompt: args.SystemPrompt,
				MaxTurns:     args.MaxTurns,
			})
			if err != nil {
				return ErrorResult(err.Error()), nil
			}

			return JSONResult(resp), nil
		},
	)

	s.AddTool(
		NewTool(ToolInterruptSession, "Interrupt a running session", ObjectSchema(sessionIDProp, "session_id")),
		func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, err := DecodeArguments[sessionArgs](req)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}

			resp, err := cmds.InterruptSession(ctx, args.SessionID)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}

			return JSONResult(resp), nil
		},
	)

	s.AddTool(
		NewTool(ToolFetchApprovals, "List approvals, optionally for one session", ObjectSchema(sessionIDProp)),
		func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, err := DecodeArguments[sessionArgs](req)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}

			resp, err := cmds.FetchApprovals(ctx, args.SessionID)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}

			return JSONResult(resp), nil
		},
	)

	s.AddTool(
		NewTool(ToolSendDecision, "Approve, deny, or respond to an approval", ObjectSchema(map[string]*jsonschema.Schema{
			"approval_id":   Prop("string", "Approval ID"),
			"approval_type": enumProp("Approval category", string(api.ApprovalFunctionCall), string(api.ApprovalHumanContact)),
			"decision": enumProp("Decision",
				string(api.DecisionApprove), string(api.DecisionDeny), string(api.DecisionRespond)),
			"comment": Prop("string", "Comment, denial reason, or response text"),
		}, "approval_id", "decision")),
		func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, err := DecodeArguments[decisionArgs](req)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}

			decision, err := api.ParseDecision(args.Decision)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}

			approvalType, err := approvalTypeFor(args.ApprovalType, decision)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}

			resp, err := cmds.SendDecision(ctx, args.ApprovalID, approvalType, decision, args.Comment)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}

			if !resp.Success {
				return ErrorResult("Decision rejected: " + orUnknown(resp.Error)), nil
			}

			return JSONResult(resp), nil
		},
	)

	s.AddTool(
		NewTool(ToolArchiveSession, "Archive or unarchive a session", ObjectSchema(map[string]*jsonschema.Schema{
			"session_id": Prop("string", "Session ID"),
			"archived":   Prop("bool", "Archive when true (default), unarchive when false"),
		}, "session_id")),
		func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, err := DecodeArguments[archiveArgs](req)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}

			archived := true
			if args.Archived != nil {
				archived = *args.Archived
			}

			resp, err := cmds.ArchiveSession(ctx, api.ArchiveSessionRequest{
				SessionID: args.SessionID,
				Archived:  archived,
			})
			if err != nil {
				return ErrorResult(err.Error()), nil
			}

			return JSONResult(resp), nil
		},
	)

	s.AddTool(
		NewTool(ToolRenameSession, "Change a session's title", ObjectSchema(map[string]*jsonschema.Schema{
			"session_id": Prop("string", "Session ID"),
			"title":      Prop("string", "New title"),
		}, "session_id", "title")),
		func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, err := DecodeArguments[renameArgs](req)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}

			resp, err := cmds.UpdateSessionTitle(ctx, args.SessionID, args.Title)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}

			return JSONResult(resp), nil
		},
	)

	s.AddTool(
		NewTool(ToolGetRecentPaths, "List recently used working directories", ObjectSchema(map[string]*jsonschema.Schema{
			"limit": Prop("int", "Maximum number of paths"),
		})),
		func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, err := DecodeArguments[recentPathsArgs](req)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}

			resp, err := cmds.GetRecentPaths(ctx, args.Limit)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}

			return JSONResult(resp), nil
		},
	)

	s.AddTool(
		NewTool(ToolGetSessionSnapshots, "List file snapshots captured for a session",
			ObjectSchema(sessionIDProp, "session_id")),
		func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, err := DecodeArguments[sessionArgs](req)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}

			resp, err := cmds.GetSessionSnapshots(ctx, args.SessionID)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}

			return JSONResult(resp), nil
		},
	)
}

func enumProp(description string, values ...string) *jsonschema.Schema {
	enum := make([]any, len(values))
	for i, v := range values {
		enum[i] = v
	}

	return &jsonschema.Schema{Type: "string", Description: description, Enum: enum}
}

// approvalTypeFor parses an explicit approval type, or infers it from the
// decision: respond implies human contact, anything else a function call.
func approvalTypeFor(raw string, decision api.Decision) (api.ApprovalType, error) {
	if raw = strings.TrimSpace(raw); raw != "" {
		return api.ParseApprovalType(raw)
	}

	if decision == api.DecisionRespond {
		return api.ApprovalHumanContact, nil
	}

	return api.ApprovalFunctionCall, nil
}

func orUnknown(msg string) string {
	if msg == "" {
		return "Unknown error"
	}

	return msg
}
