package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jeanpaul/memoria/internal/provider"
	"github.com/jeanpaul/memoria/internal/schema"
)

// Registry holds tools in registration order and dispatches calls to them.
// Execute never returns a Go error and never panics; every failure comes
// back as Result.Error.
type Registry struct {
	tools     map[string]Tool
	order     []string
	validator *schema.Validator
	logger    *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:     make(map[string]Tool),
		validator: schema.NewValidator(),
		logger:    logger,
	}
}

func (r *Registry) Register(t Tool) {
	if _, ok := r.tools[t.Name()]; !ok {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns every registered tool name in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// ToolDefs returns definitions for the named tools in the given order, or
// for all tools when no names are given. Unknown names are skipped.
func (r *Registry) ToolDefs(names ...string) []provider.ToolDef {
	if len(names) == 0 {
		names = r.order
	}
	defs := make([]provider.ToolDef, 0, len(names))
	for _, n := range names {
		t, ok := r.tools[n]
		if !ok {
			continue
		}
		defs = append(defs, provider.ToolDef{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

func (r *Registry) Execute(ctx context.Context, name, args string) (res Result) {
	t, ok := r.tools[name]
	if !ok {
		return Result{Error: fmt.Sprintf("unknown tool: %s", name)}
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", p)
			res = Result{Error: fmt.Sprintf("tool %s failed: %v", name, p)}
		}
		r.logger.Debug("tool executed",
			"tool", name,
			"ok", res.OK(),
			"duration", time.Since(start).Round(time.Millisecond),
		)
	}()

	if err := r.validator.Validate(t.Parameters(), args); err != nil {
		return Result{Error: err.Error()}
	}
	out, err := t.Execute(ctx, args)
	if err != nil {
		return Result{Error: err.Error()}
	}
	return out
}

// Scoped returns a view of the registry that only dispatches the named
// tools.
func (r *Registry) Scoped(names ...string) *Scope {
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	return &Scope{reg: r, names: append([]string(nil), names...), allowed: allowed}
}
