// Package tools holds the memory tools the model can call and the
// registry that dispatches them.
package tools

import (
	"context"
	"encoding/json"
	"strings"
)

// Result is what a tool hands back to the model. A non-empty Error marks
// a failed call; the model sees it as text and can react.
type Result struct {
	Output string
	Error  string
}

func (r Result) OK() bool { return r.Error == "" }

// Text is the tool message content for the model.
func (r Result) Text() string {
	if r.Error != "" {
		return "Error: " + r.Error
	}
	return r.Output
}

type Tool interface {
	Name() string
	Description() string
	Parameters() any
	Execute(ctx context.Context, args string) (Result, error)
}

// typedTool decodes its JSON arguments into A before running, so each
// handler works with a concrete struct instead of a map.
type typedTool[A any] struct {
	name        string
	description string
	params      map[string]any
	run         func(ctx context.Context, args A) (string, error)
}

func (t *typedTool[A]) Name() string        { return t.name }
func (t *typedTool[A]) Description() string { return t.description }
func (t *typedTool[A]) Parameters() any     { return t.params }

func (t *typedTool[A]) Execute(ctx context.Context, raw string) (Result, error) {
	var args A
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return Result{Error: "invalid arguments: " + err.Error()}, nil
		}
	}
	out, err := t.run(ctx, args)
	if err != nil {
		return Result{Error: err.Error()}, nil
	}
	return Result{Output: out}, nil
}

// object builds a JSON Schema object with the given properties.
func object(required []string, props map[string]any) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func strList(desc string) map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": desc}
}
