package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeanpaul/memoria/internal/provider"
)

// block is n estimated tokens of text.
func block(n int) string { return strings.Repeat("x", n*4) }

func threeTurns() []provider.Message {
	return []provider.Message{
		{Role: provider.RoleSystem, Content: block(10)},
		{Role: provider.RoleUser, Content: block(100)},
		{Role: provider.RoleAssistant, ToolCalls: []provider.ToolCall{{ID: "a", Name: "read_core_memory", Args: "{}"}}},
		{Role: provider.RoleTool, ToolCallID: "a", Name: "read_core_memory", Content: block(100)},
		{Role: provider.RoleAssistant, Content: block(50)},
		{Role: provider.RoleUser, Content: block(100)},
		{Role: provider.RoleAssistant, Content: block(50)},
		{Role: provider.RoleUser, Content: block(20)},
	}
}

func TestEstimateTokens(t *testing.T) {
	msgs := []provider.Message{
		{Role: provider.RoleUser, Content: "12345678"},
		{Role: provider.RoleAssistant, ToolCalls: []provider.ToolCall{{Name: "abcd", Args: `{"a":"bc"}`}}},
	}
	assert.Equal(t, 2+1+2, EstimateTokens(msgs))
}

func TestTrim_UnderBudgetUnchanged(t *testing.T) {
	h := threeTurns()
	assert.Equal(t, h, Trim(h, 10_000))
}

func TestTrim_DropsOldestTurnWhole(t *testing.T) {
	h := threeTurns()
	before := append([]provider.Message(nil), h...)

	out := Trim(h, 250)
	require.Len(t, out, 4)
	assert.Equal(t, provider.RoleSystem, out[0].Role)
	assert.Equal(t, h[5:], out[1:])
	requirePaired(t, out)
	assert.LessOrEqual(t, EstimateTokens(out), 250)
	assert.Equal(t, before, h, "input must not be modified")
}

func TestTrim_FloorKeepsInFlightTurn(t *testing.T) {
	h := threeTurns()
	h[7].Content = block(5000)

	out := Trim(h, 100)
	require.Len(t, out, 2)
	assert.Equal(t, provider.RoleSystem, out[0].Role)
	assert.Equal(t, h[7], out[1])
	assert.Greater(t, EstimateTokens(out), 100)
}

func TestTrim_InFlightTurnWithToolTraffic(t *testing.T) {
	h := threeTurns()
	h = append(h,
		provider.Message{Role: provider.RoleAssistant, ToolCalls: []provider.ToolCall{{ID: "b", Name: "read_context", Args: `{"category":"work"}`}}},
		provider.Message{Role: provider.RoleTool, ToolCallID: "b", Name: "read_context", Content: block(10)},
	)

	out := Trim(h, 1)
	require.Len(t, out, 4)
	assert.Equal(t, provider.RoleUser, out[1].Role)
	requirePaired(t, out)
}

func TestTrim_LeadingNonUserPrefix(t *testing.T) {
	h := []provider.Message{
		{Role: provider.RoleSystem, Content: "s"},
		{Role: provider.RoleAssistant, Content: block(200)},
		{Role: provider.RoleUser, Content: block(10)},
	}
	out := Trim(h, 50)
	require.Len(t, out, 2)
	assert.Equal(t, provider.RoleUser, out[1].Role)
}

func TestTrim_Deterministic(t *testing.T) {
	h := threeTurns()
	assert.Equal(t, Trim(h, 200), Trim(h, 200))
}
