package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeanpaul/memoria/internal/provider"
	"github.com/jeanpaul/memoria/internal/tools"
	"github.com/jeanpaul/memoria/internal/vault"
)

// fakeProvider answers each request with the next scripted reply.
type fakeProvider struct {
	mu       sync.Mutex
	script   func(n int, req provider.Request) (*provider.Response, error)
	requests []provider.Request
	streams  int
}

func (f *fakeProvider) reply(req provider.Request) (*provider.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	f.mu.Unlock()
	return f.script(n, req)
}

func (f *fakeProvider) Complete(ctx context.Context, req provider.Request) (*provider.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.reply(req)
}

func (f *fakeProvider) Stream(ctx context.Context, req provider.Request) (<-chan provider.StreamChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.streams++
	f.mu.Unlock()
	resp, err := f.reply(req)
	if err != nil {
		return nil, err
	}
	ch := make(chan provider.StreamChunk, 3)
	if resp.Content != "" {
		half := len(resp.Content) / 2
		ch <- provider.StreamChunk{Delta: resp.Content[:half]}
		ch <- provider.StreamChunk{Delta: resp.Content[half:]}
	}
	ch <- provider.StreamChunk{Done: true, Response: resp}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) Name() string      { return "fake" }
func (f *fakeProvider) ModelName() string { return "fake-model" }
func (f *fakeProvider) Models(context.Context) ([]string, error) {
	return []string{"fake-model"}, nil
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeProvider) request(i int) provider.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func text(s string) *provider.Response { return &provider.Response{Content: s} }

func toolCall(id, name, args string) *provider.Response {
	return &provider.Response{ToolCalls: []provider.ToolCall{{ID: id, Name: name, Args: args}}}
}

// countingDispatcher records calls and answers with fixed output.
type countingDispatcher struct {
	calls  []string
	output string
}

func (d *countingDispatcher) Execute(_ context.Context, name, args string) tools.Result {
	d.calls = append(d.calls, name+" "+args)
	return tools.Result{Output: d.output}
}

var testNow = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

func newTestVault(t *testing.T) *vault.Vault {
	t.Helper()
	v, err := vault.New(t.TempDir(), "AI Memory", vault.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	require.NoError(t, v.EnsureStructure())
	return v
}

func baseHistory(user string) []provider.Message {
	return []provider.Message{
		{Role: provider.RoleSystem, Content: "system"},
		{Role: provider.RoleUser, Content: user},
	}
}

// collect drains events until the channel is closed.
func collect(events <-chan Event) []Event {
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

// requirePaired checks that every assistant tool call is answered by the
// tool messages immediately after it, in order.
func requirePaired(t *testing.T, msgs []provider.Message) {
	t.Helper()
	for i := 0; i < len(msgs); i++ {
		m := msgs[i]
		if m.Role == provider.RoleTool {
			t.Fatalf("tool message %d (%s) has no preceding tool call", i, m.ToolCallID)
		}
		if m.Role != provider.RoleAssistant || len(m.ToolCalls) == 0 {
			continue
		}
		for j, tc := range m.ToolCalls {
			k := i + 1 + j
			require.Less(t, k, len(msgs), "missing result for %s", tc.ID)
			require.Equal(t, provider.RoleTool, msgs[k].Role)
			require.Equal(t, tc.ID, msgs[k].ToolCallID)
		}
		i += len(m.ToolCalls)
	}
}
