package api

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDecision_ValidFor(t *testing.T) {
	require.True(t, DecisionApprove.ValidFor(ApprovalFunctionCall))
	require.True(t, DecisionDeny.ValidFor(ApprovalFunctionCall))
	require.False(t, DecisionRespond.ValidFor(ApprovalFunctionCall))

	require.True(t, DecisionRespond.ValidFor(ApprovalHumanContact))
	require.False(t, DecisionApprove.ValidFor(ApprovalHumanContact))
	require.False(t, DecisionDeny.ValidFor(ApprovalHumanContact))
}

func TestDecision_ValidFor_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		d := Decision(rapid.SampledFrom([]string{"approve", "deny", "respond", "", "APPROVE", "maybe"}).Draw(rt, "decision"))
		at := ApprovalType(rapid.SampledFrom([]string{"function_call", "human_contact", "", "other"}).Draw(rt, "type"))

		want := (at == ApprovalFunctionCall && (d == DecisionApprove || d == DecisionDeny)) ||
			(at == ApprovalHumanContact && d == DecisionRespond)

		if d.ValidFor(at) != want {
			rt.Fatalf("ValidFor(%q, %q) = %v, want %v", d, at, !want, want)
		}
	})
}

func TestParseDecision(t *testing.T) {
	d, err := ParseDecision("deny")
	require.NoError(t, err)
	require.Equal(t, DecisionDeny, d)

	_, err = ParseDecision("Deny")
	require.Error(t, err)
}

func TestParseApprovalType(t *testing.T) {
	at, err := ParseApprovalType("human_contact")
	require.NoError(t, err)
	require.Equal(t, ApprovalHumanContact, at)

	_, err = ParseApprovalType("tool")
	require.Error(t, err)
}
