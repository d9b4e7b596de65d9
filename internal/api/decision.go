package api

import "fmt"

// ApprovalType is the category of a pending approval.
type ApprovalType string

const (
	// ApprovalFunctionCall asks permission to run a tool.
	ApprovalFunctionCall ApprovalType = "function_call"
	// ApprovalHumanContact asks a human for a free-form response.
	ApprovalHumanContact ApprovalType = "human_contact"
)

// Decision is the action taken on an approval.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDeny    Decision = "deny"
	DecisionRespond Decision = "respond"
)

// ValidFor reports whether d is a legal decision for the approval category.
// Approve and deny apply to function calls; respond applies to human contact.
func (d Decision) ValidFor(t ApprovalType) bool {
	switch d {
	case DecisionApprove, DecisionDeny:
		return t == ApprovalFunctionCall
	case DecisionRespond:
		return t == ApprovalHumanContact
	default:
		return false
	}
}

// ParseDecision converts a user-supplied string into a Decision.
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(s); d {
	case DecisionApprove, DecisionDeny, DecisionRespond:
		return d, nil
	default:
		return "", fmt.Errorf("unknown decision %q", s)
	}
}

// ParseApprovalType converts a user-supplied string into an ApprovalType.
func ParseApprovalType(s string) (ApprovalType, error) {
	switch t := ApprovalType(s); t {
	case ApprovalFunctionCall, ApprovalHumanContact:
		return t, nil
	default:
		return "", fmt.Errorf("unknown approval type %q", s)
	}
}
