package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/jeanpaul/memoria/internal/provider"
	"github.com/jeanpaul/memoria/internal/repair"
	"github.com/jeanpaul/memoria/internal/tools"
)

const (
	DefaultMaxIterations = 10
	DefaultContextBudget = 24000
	DefaultResultCap     = 6000
)

// ErrLoopExceeded means the model was still asking for tools when the
// iteration ceiling was reached.
var ErrLoopExceeded = errors.New("agent: tool-call iteration limit reached")

type State int

const (
	StateAwaitingModel State = iota
	StateExecutingTools
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "awaiting_model"
	case StateExecutingTools:
		return "executing_tools"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Dispatcher executes one tool call. tools.Registry and tools.Scope both
// satisfy it.
type Dispatcher interface {
	Execute(ctx context.Context, name, args string) tools.Result
}

type RunOptions struct {
	MaxIterations int
	// StreamFirst streams the first model round-trip; later round-trips
	// follow tool results and are requested whole.
	StreamFirst bool
}

// Result is what Run leaves behind. Messages is the full history including
// everything appended during the run, and it is populated on failure too.
type Result struct {
	Text       string
	Messages   []provider.Message
	Iterations int
	ToolCalls  int
	State      State
}

type Limits struct {
	ContextBudget int
	ResultCap     int
}

// Loop drives model round-trips and tool execution. It holds no state
// between runs.
type Loop struct {
	prov   provider.Provider
	limits Limits
	logger *slog.Logger
}

func NewLoop(prov provider.Provider, limits Limits, logger *slog.Logger) *Loop {
	if limits.ContextBudget <= 0 {
		limits.ContextBudget = DefaultContextBudget
	}
	if limits.ResultCap <= 0 {
		limits.ResultCap = DefaultResultCap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{prov: prov, limits: limits, logger: logger}
}

func (l *Loop) Provider() provider.Provider { return l.prov }

// Run continues history until the model answers without tool calls, the
// iteration ceiling is hit, the provider fails, or ctx is canceled.
// Exactly one terminal event (EventDone, EventNotice or EventError with
// Done set) is sent on events, which may be nil.
func (l *Loop) Run(ctx context.Context, history []provider.Message, defs []provider.ToolDef, d Dispatcher, opts RunOptions, events chan<- Event) (*Result, error) {
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	res := &Result{
		Messages: append([]provider.Message(nil), history...),
		State:    StateAwaitingModel,
	}
	seq := 0

	for {
		if err := ctx.Err(); err != nil {
			return l.fail(res, events, err)
		}

		res.Iterations++
		stream := opts.StreamFirst && res.Iterations == 1
		req := provider.Request{
			Messages: Trim(res.Messages, l.limits.ContextBudget),
			Tools:    defs,
		}
		l.logger.Debug("model round-trip",
			"iteration", res.Iterations,
			"messages", len(req.Messages),
			"dropped", len(res.Messages)-len(req.Messages),
			"tokens", EstimateTokens(req.Messages),
			"stream", stream,
		)

		resp, err := l.complete(ctx, req, stream, events)
		if err != nil {
			return l.fail(res, events, err)
		}

		if len(resp.ToolCalls) == 0 {
			res.Messages = append(res.Messages, provider.Message{Role: provider.RoleAssistant, Content: resp.Content})
			res.Text = resp.Content
			res.State = StateDone
			if !stream && resp.Content != "" {
				send(events, Event{Type: EventDelta, Text: resp.Content})
			}
			send(events, Event{Type: EventDone, Done: true})
			return res, nil
		}

		if res.Iterations >= maxIter {
			l.logger.Warn("iteration limit reached", "iterations", res.Iterations, "pending_calls", len(resp.ToolCalls))
			return l.fail(res, events, ErrLoopExceeded)
		}

		res.State = StateExecutingTools
		calls := make([]provider.ToolCall, len(resp.ToolCalls))
		parseErrs := make([]error, len(resp.ToolCalls))
		for i, tc := range resp.ToolCalls {
			seq++
			if tc.ID == "" {
				tc.ID = fmt.Sprintf("call_%d", seq)
			}
			tc.Args, parseErrs[i] = normalizeArgs(tc.Args)
			calls[i] = tc
		}
		res.Messages = append(res.Messages, provider.Message{
			Role:      provider.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: calls,
		})

		// Tool calls run to completion even if ctx is canceled meanwhile;
		// every call must get its result message.
		for i, tc := range calls {
			send(events, Event{Type: EventToolCall, ToolName: tc.Name, ToolArgs: FormatToolArgs(tc.Name, tc.Args), ToolID: tc.ID})

			var out tools.Result
			if parseErrs[i] != nil {
				out = tools.Result{Error: fmt.Sprintf("could not parse arguments for %s: %v", tc.Name, parseErrs[i])}
			} else {
				out = d.Execute(ctx, tc.Name, tc.Args)
			}
			text := truncateResult(out.Text(), l.limits.ResultCap)
			res.Messages = append(res.Messages, provider.Message{
				Role:       provider.RoleTool,
				Content:    text,
				ToolCallID: tc.ID,
				Name:       tc.Name,
			})
			res.ToolCalls++

			ev := Event{Type: EventToolResult, ToolName: tc.Name, ToolID: tc.ID, Result: text}
			if !out.OK() {
				ev.Error = out.Error
			}
			send(events, ev)
		}
		res.State = StateAwaitingModel
	}
}

func (l *Loop) complete(ctx context.Context, req provider.Request, stream bool, events chan<- Event) (*provider.Response, error) {
	if !stream {
		return l.prov.Complete(ctx, req)
	}
	ch, err := l.prov.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return provider.Drain(ctx, ch, func(delta string) {
		send(events, Event{Type: EventDelta, Text: delta})
	})
}

func (l *Loop) fail(res *Result, events chan<- Event, err error) (*Result, error) {
	res.State = StateFailed
	switch {
	case errors.Is(err, ErrLoopExceeded):
		send(events, Event{Type: EventNotice, Error: err.Error(), Done: true})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		l.logger.Info("run canceled", "iterations", res.Iterations)
		send(events, Event{Type: EventError, Error: "canceled", Done: true})
	default:
		l.logger.Error("run failed", "iterations", res.Iterations, "error", err)
		send(events, Event{Type: EventError, Error: err.Error(), Done: true})
	}
	return res, err
}

// normalizeArgs returns valid JSON for a call's arguments. Missing
// arguments become {}; malformed ones go through repair.
func normalizeArgs(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "{}", nil
	}
	fixed, err := repair.Repair(raw)
	if err != nil {
		return raw, err
	}
	return fixed, nil
}

const truncationMarker = "\n\n[truncated: %d of %d characters shown]"

// truncateResult caps s at limit characters without splitting a rune. The
// truncation marker counts against the limit.
func truncateResult(s string, limit int) string {
	n := utf8.RuneCountInString(s)
	if n <= limit {
		return s
	}
	shown := limit - utf8.RuneCountInString(fmt.Sprintf(truncationMarker, limit, n))
	if shown <= 0 {
		return headRunes(s, limit)
	}
	return headRunes(s, shown) + fmt.Sprintf(truncationMarker, shown, n)
}

func headRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
