// Package api defines the daemon's RPC request, response, and event types.
package api

import (
	"encoding/json"
	"time"
)

// HealthCheckResponse is the result of the health method.
type HealthCheckResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionStarting     SessionStatus = "starting"
	SessionRunning      SessionStatus = "running"
	SessionCompleted    SessionStatus = "completed"
	SessionFailed       SessionStatus = "failed"
	SessionWaitingInput SessionStatus = "waiting_input"
	SessionInterrupting SessionStatus = "interrupting"
	SessionInterrupted  SessionStatus = "interrupted"
)

// LaunchSessionRequest starts a new session.
type LaunchSessionRequest struct {
	Query                string          `json:"query" jsonschema:"the prompt for the new session"`
	Title                string          `json:"title,omitempty"`
	Model                string          `json:"model,omitempty"`
	MCPConfig            json.RawMessage `json:"mcp_config,omitempty"`
	PermissionPromptTool string          `json:"permission_prompt_tool,omitempty"`
	WorkingDir           string          `json:"working_dir,omitempty"`
	MaxTurns             int             `json:"max_turns,omitempty"`
	SystemPrompt         string          `json:"system_prompt,omitempty"`
	AppendSystemPrompt   string          `json:"append_system_prompt,omitempty"`
	AllowedTools         []string        `json:"allowed_tools,omitempty"`
	DisallowedTools      []string        `json:"disallowed_tools,omitempty"`
	CustomInstructions   string          `json:"custom_instructions,omitempty"`
	Verbose              bool            `json:"verbose,omitempty"`
}

// LaunchSessionResponse identifies the launched session.
type LaunchSessionResponse struct {
	SessionID string `json:"session_id"`
	RunID     string `json:"run_id"`
}

// ContinueSessionRequest resumes a session with a follow-up query.
type ContinueSessionRequest struct {
	SessionID            string   `json:"session_id"`
	Query                string   `json:"query"`
	SystemPrompt         string   `json:"system_prompt,omitempty"`
	AppendSystemPrompt   string   `json:"append_system_prompt,omitempty"`
	MCPConfig            string   `json:"mcp_config,omitempty"`
	PermissionPromptTool string   `json:"permission_prompt_tool,omitempty"`
	AllowedTools         []string `json:"allowed_tools,omitempty"`
	DisallowedTools      []string `json:"disallowed_tools,omitempty"`
	CustomInstructions   string   `json:"custom_instructions,omitempty"`
	MaxTurns             int      `json:"max_turns,omitempty"`
}

// ContinueSessionResponse identifies the child session created by a continue.
type ContinueSessionResponse struct {
	SessionID       string `json:"session_id"`
	RunID           string `json:"run_id"`
	ClaudeSessionID string `json:"claude_session_id"`
	ParentSessionID string `json:"parent_session_id"`
}

// SessionInfo summarizes a session in list results.
type SessionInfo struct {
	ID              string          `json:"id"`
	RunID           string          `json:"run_id"`
	ClaudeSessionID string          `json:"claude_session_id,omitempty"`
	ParentSessionID string          `json:"parent_session_id,omitempty"`
	Status          SessionStatus   `json:"status"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         *time.Time      `json:"end_time,omitempty"`
	LastActivityAt  time.Time       `json:"last_activity_at"`
	Error           string          `json:"error,omitempty"`
	Query           string          `json:"query"`
	Summary         string          `json:"summary"`
	Title           string          `json:"title,omitempty"`
	Model           string          `json:"model,omitempty"`
	WorkingDir      string          `json:"working_dir,omitempty"`
	Result          json.RawMessage `json:"result,omitempty"`
	Archived        bool            `json:"archived,omitempty"`
}

// ListSessionsResponse is the result of listSessions.
type ListSessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

// GetSessionLeavesRequest filters the leaf sessions of each conversation tree.
type GetSessionLeavesRequest struct {
	IncludeArchived bool `json:"include_archived,omitempty"`
	ArchivedOnly    bool `json:"archived_only,omitempty"`
}

// GetSessionLeavesResponse is the result of getSessionLeaves.
type GetSessionLeavesResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

// GetSessionStateRequest selects one session.
type GetSessionStateRequest struct {
	SessionID string `json:"session_id"`
}

// SessionState is the full persisted state of one session.
type SessionState struct {
	ID              string   `json:"id"`
	RunID           string   `json:"run_id"`
	ClaudeSessionID string   `json:"claude_session_id,omitempty"`
	ParentSessionID string   `json:"parent_session_id,omitempty"`
	Status          string   `json:"status"`
	Query           string   `json:"query"`
	Summary         string   `json:"summary"`
	Title           string   `json:"title,omitempty"`
	Model           string   `json:"model,omitempty"`
	WorkingDir      string   `json:"working_dir,omitempty"`
	CreatedAt       string   `json:"created_at"`
	LastActivityAt  string   `json:"last_activity_at"`
	CompletedAt     string   `json:"completed_at,omitempty"`
	ErrorMessage    string   `json:"error_message,omitempty"`
	CostUSD         *float64 `json:"cost_usd,omitempty"`
	TotalTokens     *int     `json:"total_tokens,omitempty"`
	DurationMS      *int     `json:"duration_ms,omitempty"`
	AutoAcceptEdits bool     `json:"auto_accept_edits,omitempty"`
	Archived        bool     `json:"archived,omitempty"`
}

// GetSessionStateResponse wraps a SessionState.
type GetSessionStateResponse struct {
	Session SessionState `json:"session"`
}

// InterruptSessionRequest selects the session to interrupt.
type InterruptSessionRequest struct {
	SessionID string `json:"session_id"`
}

// InterruptSessionResponse reports whether the interrupt was accepted.
type InterruptSessionResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// GetConversationRequest selects a conversation by either session id.
type GetConversationRequest struct {
	SessionID       string `json:"session_id,omitempty"`
	ClaudeSessionID string `json:"claude_session_id,omitempty"`
}

// ConversationEvent is one message, tool call, or tool result.
type ConversationEvent struct {
	ID                int64  `json:"id"`
	SessionID         string `json:"session_id"`
	ClaudeSessionID   string `json:"claude_session_id"`
	Sequence          int    `json:"sequence"`
	EventType         string `json:"event_type"`
	CreatedAt         string `json:"created_at"`
	Role              string `json:"role,omitempty"`
	Content           string `json:"content,omitempty"`
	ToolID            string `json:"tool_id,omitempty"`
	ToolName          string `json:"tool_name,omitempty"`
	ToolInputJSON     string `json:"tool_input_json,omitempty"`
	ToolResultForID   string `json:"tool_result_for_id,omitempty"`
	ToolResultContent string `json:"tool_result_content,omitempty"`
	IsCompleted       bool   `json:"is_completed"`
	ApprovalStatus    string `json:"approval_status,omitempty"`
	ApprovalID        string `json:"approval_id,omitempty"`
	ParentToolUseID   string `json:"parent_tool_use_id,omitempty"`
}

// GetConversationResponse is the result of getConversation.
type GetConversationResponse struct {
	Events []ConversationEvent `json:"events"`
}

// FetchApprovalsRequest optionally filters approvals by session.
type FetchApprovalsRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// Approval is a pending or resolved approval stored by the daemon.
type Approval struct {
	ID          string          `json:"id"`
	RunID       string          `json:"run_id"`
	SessionID   string          `json:"session_id"`
	Status      string          `json:"status"`
	CreatedAt   string          `json:"created_at"`
	RespondedAt string          `json:"responded_at,omitempty"`
	ToolName    string          `json:"tool_name"`
	ToolInput   json.RawMessage `json:"tool_input"`
	Comment     string          `json:"comment,omitempty"`
}

// FetchApprovalsResponse is the result of fetchApprovals.
type FetchApprovalsResponse struct {
	Approvals []Approval `json:"approvals"`
}

// SendDecisionRequest resolves an approval.
type SendDecisionRequest struct {
	ApprovalID string `json:"approval_id"`
	Decision   string `json:"decision"`
	Comment    string `json:"comment,omitempty"`
}

// SendDecisionResponse carries the daemon's verdict on a decision.
type SendDecisionResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ArchiveSessionRequest archives or unarchives one session.
type ArchiveSessionRequest struct {
	SessionID string `json:"session_id"`
	Archived  bool   `json:"archived"`
}

// ArchiveSessionResponse reports the outcome of archiveSession.
type ArchiveSessionResponse struct {
	Success bool `json:"success"`
}

// BulkArchiveSessionsRequest archives or unarchives several sessions.
type BulkArchiveSessionsRequest struct {
	SessionIDs []string `json:"session_ids"`
	Archived   bool     `json:"archived"`
}

// BulkArchiveSessionsResponse lists the sessions that could not be updated.
type BulkArchiveSessionsResponse struct {
	Success        bool     `json:"success"`
	FailedSessions []string `json:"failed_sessions,omitempty"`
}

// UpdateSessionTitleRequest renames a session.
type UpdateSessionTitleRequest struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
}

// UpdateSessionTitleResponse reports the outcome of updateSessionTitle.
type UpdateSessionTitleResponse struct {
	Success bool `json:"success"`
}

// UpdateSessionSettingsRequest changes per-session settings.
type UpdateSessionSettingsRequest struct {
	SessionID       string `json:"session_id"`
	AutoAcceptEdits *bool  `json:"auto_accept_edits,omitempty"`
}

// UpdateSessionSettingsResponse reports the outcome of updateSessionSettings.
type UpdateSessionSettingsResponse struct {
	Success bool `json:"success"`
}

// GetRecentPathsRequest limits the number of returned paths.
type GetRecentPathsRequest struct {
	Limit int `json:"limit,omitempty"`
}

// RecentPath is a working directory used by earlier sessions.
type RecentPath struct {
	Path       string `json:"path"`
	LastUsed   string `json:"last_used"`
	UsageCount int    `json:"usage_count"`
}

// GetRecentPathsResponse is the result of getRecentPaths.
type GetRecentPathsResponse struct {
	Paths []RecentPath `json:"paths"`
}

// GetSessionSnapshotsRequest selects a session's file snapshots.
type GetSessionSnapshotsRequest struct {
	SessionID string `json:"session_id"`
}

// FileSnapshotInfo is the content of a file captured before a tool edited it.
type FileSnapshotInfo struct {
	ToolID    string `json:"tool_id"`
	FilePath  string `json:"file_path"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// GetSessionSnapshotsResponse is the result of getSessionSnapshots.
type GetSessionSnapshotsResponse struct {
	Snapshots []FileSnapshotInfo `json:"snapshots"`
}
