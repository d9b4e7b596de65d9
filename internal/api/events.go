package api

import (
	"encoding/json"
	"time"
)

// EventType names a daemon event.
type EventType string

const (
	EventNewApproval            EventType = "new_approval"
	EventApprovalResolved       EventType = "approval_resolved"
	EventSessionStatusChanged   EventType = "session_status_changed"
	EventConversationUpdated    EventType = "conversation_updated"
	EventSessionSettingsChanged EventType = "session_settings_changed"
)

// HeartbeatType is the type marker of keep-alive messages on a subscription.
const HeartbeatType = "heartbeat"

// SubscribeMethod is the RPC method that opens an event stream.
const SubscribeMethod = "Subscribe"

// SubscribeRequest filters the events delivered on a subscription.
// Empty fields match everything.
type SubscribeRequest struct {
	EventTypes []string `json:"event_types,omitempty"`
	SessionID  string   `json:"session_id,omitempty"`
	RunID      string   `json:"run_id,omitempty"`
}

// SubscribeResponse confirms a subscription.
type SubscribeResponse struct {
	SubscriptionID string `json:"subscription_id"`
	Message        string `json:"message"`
}

// Event is a daemon-originated notification.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventNotification is one delivered event.
type EventNotification struct {
	Event Event `json:"event"`
}

// Heartbeat is the keep-alive message sent on idle subscriptions.
type Heartbeat struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
