package agent

import (
	"github.com/jeanpaul/memoria/internal/provider"
	"github.com/jeanpaul/memoria/internal/vault"
)

// EstimateTokens is the coarse token estimate used for the context budget:
// about four characters per token over content and tool-call payloads.
func EstimateTokens(msgs []provider.Message) int {
	n := 0
	for _, m := range msgs {
		n += messageTokens(m)
	}
	return n
}

func messageTokens(m provider.Message) int {
	n := vault.EstimateTokens(m.Content)
	for _, tc := range m.ToolCalls {
		n += vault.EstimateTokens(tc.Name) + vault.EstimateTokens(tc.Args)
	}
	return n
}

// Trim returns a view of history that fits budget. The leading system
// message is always kept. The rest is split into turns, each starting at a
// user message, and the oldest turns are dropped whole. The most recent
// user turn is never dropped, so the result may still exceed budget.
// history itself is not modified.
func Trim(history []provider.Message, budget int) []provider.Message {
	total := EstimateTokens(history)
	if len(history) == 0 || total <= budget {
		return history
	}

	var head, rest []provider.Message
	if history[0].Role == provider.RoleSystem {
		head, rest = history[:1], history[1:]
	} else {
		rest = history
	}

	starts := turnStarts(rest)
	if len(starts) < 2 {
		return history
	}
	floor := starts[len(starts)-1]
	for i := len(starts) - 1; i >= 0; i-- {
		if rest[starts[i]].Role == provider.RoleUser {
			floor = starts[i]
			break
		}
	}

	cut := 0
	for i := 0; i < len(starts)-1 && total > budget; i++ {
		if starts[i] >= floor {
			break
		}
		end := starts[i+1]
		total -= EstimateTokens(rest[starts[i]:end])
		cut = end
	}
	if cut == 0 {
		return history
	}

	out := make([]provider.Message, 0, len(head)+len(rest)-cut)
	out = append(out, head...)
	return append(out, rest[cut:]...)
}

// turnStarts returns the index of the first message of every turn. A
// leading run of non-user messages counts as its own turn.
func turnStarts(msgs []provider.Message) []int {
	var starts []int
	for i, m := range msgs {
		if i == 0 || m.Role == provider.RoleUser {
			starts = append(starts, i)
		}
	}
	return starts
}
