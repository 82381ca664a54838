// Package agent runs the tool-calling loop that lets the model read and
// write its memory vault, the chat session around it, and the end of
// session consolidation pass.
package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type Event struct {
	Type     EventType
	Text     string
	ToolName string
	ToolArgs string
	ToolID   string
	Result   string
	Error    string
	Done     bool
}

type EventType int

const (
	EventDelta EventType = iota
	EventToolCall
	EventToolResult
	EventNotice // non-fatal condition the user should see
	EventDone
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventDelta:
		return "delta"
	case EventToolCall:
		return "tool_call"
	case EventToolResult:
		return "tool_result"
	case EventNotice:
		return "notice"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	}
	return fmt.Sprintf("event(%d)", int(t))
}

func send(events chan<- Event, ev Event) {
	if events != nil {
		events <- ev
	}
}

// FormatToolArgs renders raw tool arguments as name(k="v", ...) for
// display. Long values are shortened.
func FormatToolArgs(toolName, rawArgs string) string {
	var parsed map[string]any
	if json.Unmarshal([]byte(rawArgs), &parsed) != nil {
		return toolName + "(" + shorten(rawArgs, 80) + ")"
	}
	keys := make([]string, 0, len(parsed))
	for k := range parsed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		var v string
		switch val := parsed[k].(type) {
		case string:
			v = fmt.Sprintf("%q", shorten(val, 60))
		default:
			b, _ := json.Marshal(val)
			v = shorten(string(b), 60)
		}
		parts = append(parts, k+"="+v)
	}
	return toolName + "(" + strings.Join(parts, ", ") + ")"
}

func shorten(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
