package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panicTool struct{}

func (panicTool) Name() string        { return "boom" }
func (panicTool) Description() string { return "always panics" }
func (panicTool) Parameters() any     { return object(nil, map[string]any{}) }
func (panicTool) Execute(context.Context, string) (Result, error) {
	panic("kaboom")
}

func echoTool(name string) Tool {
	return &typedTool[contentArgs]{
		name:        name,
		description: "echo",
		params:      object([]string{"content"}, map[string]any{"content": str("text")}),
		run: func(_ context.Context, a contentArgs) (string, error) {
			return a.Content, nil
		},
	}
}

func TestResultText(t *testing.T) {
	assert.Equal(t, "fine", Result{Output: "fine"}.Text())
	assert.Equal(t, "Error: nope", Result{Output: "ignored", Error: "nope"}.Text())
	assert.True(t, Result{}.OK())
}

func TestRegistry_UnknownTool(t *testing.T) {
	reg := NewRegistry(nil)
	res := reg.Execute(t.Context(), "nope", "{}")
	assert.Equal(t, "unknown tool: nope", res.Error)
}

func TestRegistry_ValidatesArguments(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(echoTool("echo"))

	res := reg.Execute(t.Context(), "echo", `{}`)
	require.False(t, res.OK())
	assert.Contains(t, res.Error, "invalid arguments")

	res = reg.Execute(t.Context(), "echo", `{"content":"hi"}`)
	require.True(t, res.OK(), res.Error)
	assert.Equal(t, "hi", res.Output)
}

func TestRegistry_RecoversPanics(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(panicTool{})

	var res Result
	assert.NotPanics(t, func() { res = reg.Execute(t.Context(), "boom", "") })
	assert.Equal(t, "tool boom failed: kaboom", res.Error)
}

func TestRegistry_ToolDefsOrder(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(echoTool("a"))
	reg.Register(echoTool("b"))
	reg.Register(echoTool("c"))

	var names []string
	for _, d := range reg.ToolDefs("c", "missing", "a") {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"c", "a"}, names)
	assert.Len(t, reg.ToolDefs(), 3)
	assert.Equal(t, []string{"a", "b", "c"}, reg.Names())
}

func TestScope_RejectsOutOfScope(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(echoTool("allowed"))
	reg.Register(echoTool("hidden"))
	scope := reg.Scoped("allowed")

	res := scope.Execute(t.Context(), "hidden", `{"content":"x"}`)
	assert.Equal(t, `tool "hidden" is not available in this context`, res.Error)

	res = scope.Execute(t.Context(), "allowed", `{"content":"x"}`)
	assert.Equal(t, "x", res.Output)

	require.Len(t, scope.ToolDefs(), 1)
	assert.Equal(t, "allowed", scope.ToolDefs()[0].Name)
}
