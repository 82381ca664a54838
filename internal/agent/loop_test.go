package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeanpaul/memoria/internal/provider"
	"github.com/jeanpaul/memoria/internal/tools"
)

func newTestLoop(p provider.Provider) *Loop {
	return NewLoop(p, Limits{}, nil)
}

func runWithEvents(t *testing.T, l *Loop, history []provider.Message, d Dispatcher, opts RunOptions) (*Result, []Event, error) {
	t.Helper()
	events := make(chan Event, 256)
	res, err := l.Run(t.Context(), history, nil, d, opts, events)
	close(events)
	return res, collect(events), err
}

func terminalEvents(evs []Event) []Event {
	var out []Event
	for _, ev := range evs {
		if ev.Done {
			out = append(out, ev)
		}
	}
	return out
}

func TestLoop_PlainAnswer(t *testing.T) {
	p := &fakeProvider{script: func(int, provider.Request) (*provider.Response, error) {
		return text("hello there"), nil
	}}
	d := &countingDispatcher{}

	res, evs, err := runWithEvents(t, newTestLoop(p), baseHistory("hi"), d, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hello there", res.Text)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 1, res.Iterations)
	assert.Len(t, res.Messages, 3)
	assert.Empty(t, d.calls)

	// Not streamed, so the reply arrives as one delta.
	require.Len(t, evs, 2)
	assert.Equal(t, Event{Type: EventDelta, Text: "hello there"}, evs[0])
	assert.Equal(t, EventDone, evs[1].Type)
}

func TestLoop_StopsAtMaxIterations(t *testing.T) {
	p := &fakeProvider{script: func(n int, _ provider.Request) (*provider.Response, error) {
		return toolCall(fmt.Sprintf("c%d", n), "read_core_memory", "{}"), nil
	}}
	d := &countingDispatcher{output: "(Core memory is empty.)"}

	res, evs, err := runWithEvents(t, newTestLoop(p), baseHistory("loop forever"), d, RunOptions{MaxIterations: 10})
	require.ErrorIs(t, err, ErrLoopExceeded)
	assert.Equal(t, 10, p.calls())
	assert.Equal(t, 10, res.Iterations)
	assert.Len(t, d.calls, 9, "the ceiling round-trip's calls are not executed")
	assert.Equal(t, StateFailed, res.State)
	requirePaired(t, res.Messages)

	term := terminalEvents(evs)
	require.Len(t, term, 1)
	assert.Equal(t, EventNotice, term[0].Type)
}

func TestLoop_DefaultMaxIterations(t *testing.T) {
	p := &fakeProvider{script: func(n int, _ provider.Request) (*provider.Response, error) {
		return toolCall(fmt.Sprintf("c%d", n), "read_core_memory", "{}"), nil
	}}
	_, err := newTestLoop(p).Run(t.Context(), baseHistory("x"), nil, &countingDispatcher{}, RunOptions{}, nil)
	require.ErrorIs(t, err, ErrLoopExceeded)
	assert.Equal(t, DefaultMaxIterations, p.calls())
}

func TestLoop_StreamedToolCallsAreNotRequestedAgain(t *testing.T) {
	p := &fakeProvider{script: func(n int, _ provider.Request) (*provider.Response, error) {
		if n == 1 {
			return &provider.Response{
				Content:   "Let me check.",
				ToolCalls: []provider.ToolCall{{ID: "x1", Name: "read_core_memory", Args: "{}"}},
			}, nil
		}
		return text("Done."), nil
	}}
	d := &countingDispatcher{output: "facts"}

	res, evs, err := runWithEvents(t, newTestLoop(p), baseHistory("hi"), d, RunOptions{StreamFirst: true})
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls())
	assert.Equal(t, 1, p.streams)
	assert.Len(t, d.calls, 1)
	assert.Equal(t, "Done.", res.Text)

	var deltas strings.Builder
	for _, ev := range evs {
		if ev.Type == EventDelta {
			deltas.WriteString(ev.Text)
		}
	}
	assert.Equal(t, "Let me check.Done.", deltas.String())

	second := p.request(1).Messages
	last := second[len(second)-1]
	assert.Equal(t, provider.RoleTool, last.Role)
	assert.Equal(t, "x1", last.ToolCallID)
	assert.Equal(t, "facts", last.Content)
}

func TestLoop_CapsToolResults(t *testing.T) {
	p := &fakeProvider{script: func(n int, _ provider.Request) (*provider.Response, error) {
		if n == 1 {
			return toolCall("big", "read_memory", `{"path":"context"}`), nil
		}
		return text("ok"), nil
	}}
	d := &countingDispatcher{output: strings.Repeat("é", 10_000)}
	l := NewLoop(p, Limits{ResultCap: 6000}, nil)

	res, err := l.Run(t.Context(), baseHistory("x"), nil, d, RunOptions{}, nil)
	require.NoError(t, err)

	tool := res.Messages[3]
	require.Equal(t, provider.RoleTool, tool.Role)
	assert.True(t, utf8.ValidString(tool.Content))
	assert.LessOrEqual(t, utf8.RuneCountInString(tool.Content), 6000)
	shown := strings.Count(tool.Content, "é")
	assert.Greater(t, shown, 5900)
	assert.True(t, strings.HasSuffix(tool.Content, fmt.Sprintf("\n\n[truncated: %d of 10000 characters shown]", shown)))
}

func TestTruncateResult(t *testing.T) {
	assert.Equal(t, "short", truncateResult("short", 10))
	assert.Equal(t, "abc", truncateResult("abcde", 3))
	assert.Equal(t, "日本", truncateResult("日本語", 2))

	long := strings.Repeat("a", 10_000)
	got := truncateResult(long, 6000)
	assert.Equal(t, 6000, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "\n\n[truncated: 5955 of 10000 characters shown]"))

	for _, limit := range []int{1, 40, 45, 46, 100, 6000} {
		assert.LessOrEqual(t, utf8.RuneCountInString(truncateResult(long, limit)), limit, "limit %d", limit)
	}
}

func TestLoop_RepairsTruncatedArguments(t *testing.T) {
	p := &fakeProvider{script: func(n int, _ provider.Request) (*provider.Response, error) {
		if n == 1 {
			return toolCall("r1", "read_context", `{"category": "wo`), nil
		}
		return text("ok"), nil
	}}
	d := &countingDispatcher{output: "stored"}

	res, err := newTestLoop(p).Run(t.Context(), baseHistory("x"), nil, d, RunOptions{}, nil)
	require.NoError(t, err)
	require.Len(t, d.calls, 1)
	assert.Equal(t, `read_context {"category": "wo"}`, d.calls[0])
	assert.Equal(t, `{"category": "wo"}`, res.Messages[2].ToolCalls[0].Args)
}

func TestLoop_UnrecoverableArgumentsBecomeErrorResult(t *testing.T) {
	p := &fakeProvider{script: func(n int, _ provider.Request) (*provider.Response, error) {
		if n == 1 {
			return toolCall("u1", "write_memory", `{"path": "a"]`), nil
		}
		return text("sorry"), nil
	}}
	d := &countingDispatcher{}

	res, err := newTestLoop(p).Run(t.Context(), baseHistory("x"), nil, d, RunOptions{}, nil)
	require.NoError(t, err)
	assert.Empty(t, d.calls)
	assert.True(t, strings.HasPrefix(res.Messages[3].Content, "Error: could not parse arguments for write_memory"))
	requirePaired(t, res.Messages)
}

func TestLoop_SynthesizesMissingCallIDs(t *testing.T) {
	p := &fakeProvider{script: func(n int, _ provider.Request) (*provider.Response, error) {
		if n == 1 {
			return &provider.Response{ToolCalls: []provider.ToolCall{
				{Name: "read_core_memory"},
				{Name: "read_archive", Args: "{}"},
			}}, nil
		}
		return text("ok"), nil
	}}
	d := &countingDispatcher{}

	res, err := newTestLoop(p).Run(t.Context(), baseHistory("x"), nil, d, RunOptions{}, nil)
	require.NoError(t, err)
	calls := res.Messages[2].ToolCalls
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "call_2", calls[1].ID)
	assert.Equal(t, "{}", calls[0].Args)
	assert.Equal(t, []string{"read_core_memory {}", "read_archive {}"}, d.calls)
	requirePaired(t, res.Messages)
}

func TestLoop_CanceledBeforeModelCall(t *testing.T) {
	p := &fakeProvider{script: func(int, provider.Request) (*provider.Response, error) {
		return text("unreachable"), nil
	}}
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	res, err := newTestLoop(p).Run(ctx, baseHistory("x"), nil, &countingDispatcher{}, RunOptions{}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, p.calls())
	assert.Len(t, res.Messages, 2)
}

// cutStream cancels the run and closes the stream without a final chunk,
// the way a provider stream ends when its context goes away.
type cutStream struct {
	*fakeProvider
	cancel context.CancelFunc
}

func (c cutStream) Stream(context.Context, provider.Request) (<-chan provider.StreamChunk, error) {
	ch := make(chan provider.StreamChunk, 1)
	ch <- provider.StreamChunk{Delta: "Hel"}
	c.cancel()
	close(ch)
	return ch, nil
}

func TestLoop_CancelDuringStreamIsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	p := cutStream{fakeProvider: &fakeProvider{}, cancel: cancel}

	events := make(chan Event, 16)
	_, err := newTestLoop(p).Run(ctx, baseHistory("x"), nil, &countingDispatcher{}, RunOptions{StreamFirst: true}, events)
	close(events)
	require.ErrorIs(t, err, context.Canceled)

	evs := collect(events)
	last := evs[len(evs)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Equal(t, "canceled", last.Error)
	assert.True(t, last.Done)
}

func TestLoop_CancelDuringToolsFinishesBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	p := &fakeProvider{script: func(n int, _ provider.Request) (*provider.Response, error) {
		return &provider.Response{ToolCalls: []provider.ToolCall{
			{ID: "a", Name: "one", Args: "{}"},
			{ID: "b", Name: "two", Args: "{}"},
		}}, nil
	}}
	d := dispatchFunc(func(_ context.Context, name, _ string) string {
		cancel()
		return name + " done"
	})

	res, err := newTestLoop(p).Run(ctx, baseHistory("x"), nil, d, RunOptions{}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.calls())
	requirePaired(t, res.Messages)
	assert.Equal(t, "two done", res.Messages[len(res.Messages)-1].Content)
}

func TestLoop_ProviderFailureKeepsHistory(t *testing.T) {
	p := &fakeProvider{script: func(int, provider.Request) (*provider.Response, error) {
		return nil, fmt.Errorf("%w: connection refused", provider.ErrLLMUnavailable)
	}}

	res, evs, err := runWithEvents(t, newTestLoop(p), baseHistory("x"), &countingDispatcher{}, RunOptions{})
	require.ErrorIs(t, err, provider.ErrLLMUnavailable)
	assert.Len(t, res.Messages, 2)
	term := terminalEvents(evs)
	require.Len(t, term, 1)
	assert.Equal(t, EventError, term[0].Type)
}

func TestFormatToolArgs(t *testing.T) {
	assert.Equal(t, `read_context(category="work")`, FormatToolArgs("read_context", `{"category":"work"}`))
	assert.Equal(t, `archive_memory(content="a b", date="2026-10")`, FormatToolArgs("archive_memory", `{"date":"2026-10","content":"a\n b"}`))
	assert.Equal(t, `x(not json)`, FormatToolArgs("x", "not json"))
}

type dispatchFunc func(ctx context.Context, name, args string) string

func (f dispatchFunc) Execute(ctx context.Context, name, args string) tools.Result {
	return tools.Result{Output: f(ctx, name, args)}
}
