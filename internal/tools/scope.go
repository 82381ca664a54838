package tools

import (
	"context"
	"fmt"

	"github.com/jeanpaul/memoria/internal/provider"
)

// ErrToolUnavailable is reported when a call targets a tool outside the
// active scope. The tool may exist; it is just not offered here.
type ErrToolUnavailable struct {
	ToolName string
}

func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available in this context", e.ToolName)
}

// Scope is a restricted view over a Registry.
type Scope struct {
	reg     *Registry
	names   []string
	allowed map[string]bool
}

func (s *Scope) Names() []string { return append([]string(nil), s.names...) }

func (s *Scope) ToolDefs() []provider.ToolDef {
	return s.reg.ToolDefs(s.names...)
}

func (s *Scope) Execute(ctx context.Context, name, args string) Result {
	if !s.allowed[name] {
		return Result{Error: (&ErrToolUnavailable{ToolName: name}).Error()}
	}
	return s.reg.Execute(ctx, name, args)
}
