package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jeanpaul/memoria/internal/provider"
	"github.com/jeanpaul/memoria/internal/tools"
	"github.com/jeanpaul/memoria/internal/vault"
)

const (
	DefaultConsolidationIterations = 25
	DefaultObservationThreshold    = 30
	DefaultObservationKeep         = 10
	observationSummaryTokens       = 500
)

const observationSummaryPrompt = `You are Memoria, condensing your own observations about a user. Distill the entries into 3-5 patterns. Be concise. Keep anything that still feels unresolved or contradictory. Write in first person. Output only the summary text: no headers, timestamps or formatting markers.`

// Report describes a consolidation run. Err is set on soft failures; a
// report with Err is still a normal outcome for the caller.
type Report struct {
	Iterations            int
	ToolCalls             int
	Text                  string
	ObservationsCondensed int
	Err                   error
	ObservationErr        error
}

func (r Report) OK() bool { return r.Err == nil && r.ObservationErr == nil }

func (r Report) String() string {
	var b strings.Builder
	switch {
	case r.Err != nil:
		fmt.Fprintf(&b, "consolidation incomplete: %v", r.Err)
	case r.ToolCalls == 0:
		b.WriteString("memory consolidated (no changes)")
	default:
		fmt.Fprintf(&b, "memory consolidated (%d tool calls)", r.ToolCalls)
	}
	if r.ObservationsCondensed > 0 {
		fmt.Fprintf(&b, ", %d observations condensed", r.ObservationsCondensed)
	}
	if r.ObservationErr != nil {
		fmt.Fprintf(&b, ", observations not condensed: %v", r.ObservationErr)
	}
	return b.String()
}

type ConsolidationOptions struct {
	MaxIterations        int
	ObservationThreshold int
	ObservationKeep      int
}

// Consolidator folds a finished session into long-term memory using the
// same loop as chat, restricted to the memory tools.
type Consolidator struct {
	loop   *Loop
	vault  *vault.Vault
	scope  *tools.Scope
	opts   ConsolidationOptions
	logger *slog.Logger
}

func NewConsolidator(loop *Loop, v *vault.Vault, reg *tools.Registry, opts ConsolidationOptions, logger *slog.Logger) *Consolidator {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultConsolidationIterations
	}
	if opts.ObservationThreshold <= 0 {
		opts.ObservationThreshold = DefaultObservationThreshold
	}
	if opts.ObservationKeep <= 0 || opts.ObservationKeep > opts.ObservationThreshold {
		opts.ObservationKeep = DefaultObservationKeep
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consolidator{
		loop:   loop,
		vault:  v,
		scope:  reg.Scoped(tools.ConsolidationTools...),
		opts:   opts,
		logger: logger,
	}
}

// Consolidate never fails hard: provider outages, the iteration ceiling
// and cancellation are logged and reported. The observation log is only
// condensed after the loop itself succeeded.
func (c *Consolidator) Consolidate(ctx context.Context, history []provider.Message) Report {
	var rep Report

	msgs, err := c.messages(history)
	if err != nil {
		rep.Err = err
		c.logger.Warn("consolidation skipped", "error", err)
		return rep
	}

	res, err := c.loop.Run(ctx, msgs, c.scope.ToolDefs(), c.scope, RunOptions{MaxIterations: c.opts.MaxIterations}, nil)
	if res != nil {
		rep.Iterations = res.Iterations
		rep.ToolCalls = res.ToolCalls
		rep.Text = res.Text
	}
	if err != nil {
		rep.Err = err
		c.logger.Warn("consolidation failed", "error", err, "iterations", rep.Iterations, "tool_calls", rep.ToolCalls)
		return rep
	}
	c.logger.Info("consolidation finished", "iterations", rep.Iterations, "tool_calls", rep.ToolCalls)

	if ctx.Err() != nil {
		return rep
	}
	n, err := c.condenseObservations(ctx)
	rep.ObservationsCondensed = n
	if err != nil {
		rep.ObservationErr = err
		c.logger.Warn("observation consolidation failed", "error", err)
	}
	return rep
}

func (c *Consolidator) messages(history []provider.Message) ([]provider.Message, error) {
	core, err := c.vault.ReadCore()
	if err != nil {
		return nil, fmt.Errorf("read core memory: %w", err)
	}
	soul, err := c.vault.ReadSoul()
	if err != nil {
		return nil, fmt.Errorf("read soul: %w", err)
	}
	return []provider.Message{
		{Role: provider.RoleSystem, Content: ConsolidationPrompt(c.vault.CoreMaxTokens(), c.scope.Names())},
		{Role: provider.RoleUser, Content: ConsolidationMessage(core, soul, history)},
	}, nil
}

// condenseObservations summarizes all but the most recent entries once the
// log grows past the threshold. It returns how many entries were folded
// into the summary.
func (c *Consolidator) condenseObservations(ctx context.Context) (int, error) {
	log, err := c.vault.Observations()
	if err != nil {
		return 0, err
	}
	if len(log.Entries) <= c.opts.ObservationThreshold {
		return 0, nil
	}
	split := len(log.Entries) - c.opts.ObservationKeep
	older, recent := log.Entries[:split], log.Entries[split:]

	var input strings.Builder
	if log.Summary != "" {
		fmt.Fprintf(&input, "Previous summary to incorporate:\n%s\n\n", log.Summary)
	}
	input.WriteString("Observations to summarize:\n\n")
	for _, o := range older {
		fmt.Fprintf(&input, "## %s\n%s\n\n", o.Stamp, o.Text)
	}

	resp, err := c.loop.Provider().Complete(ctx, provider.Request{
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: observationSummaryPrompt},
			{Role: provider.RoleUser, Content: input.String()},
		},
		MaxTokens: observationSummaryTokens,
	})
	if err != nil {
		return 0, fmt.Errorf("summarize observations: %w", err)
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return 0, errors.New("summarize observations: empty summary")
	}
	if err := c.vault.CompactObservations(summary, recent); err != nil {
		return 0, err
	}
	c.logger.Info("observations condensed", "summarized", len(older), "kept", len(recent))
	return len(older), nil
}
