package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeanpaul/memoria/internal/provider"
	"github.com/jeanpaul/memoria/internal/vault"
)

const basePrompt = `You are Memoria, a personal assistant with persistent memory. You know this person. Act like it.

## Before you answer

Ask yourself what you already know that is relevant. If the topic touches their life (work, money, relationships, health, projects, goals, where they live) check memory before answering. Don't wait to be told "look up my..." or "do you remember...". The memory map below tells you what exists. Use it.

If memory has nothing relevant, say so briefly and move on. If you learn something new and useful, update memory after responding. Don't ask permission.

## Memory layers

**Core memory** is in context at the start of every conversation: the essential facts. Re-read it with read_core_memory after you change it.

**Context and timeline files** hold detail by topic. Use read_context for a category, or read_memory(path) with a path from the memory map (e.g. "context/work/projects", "timelines/current-goals"). When a topic maps to a file, read that file instead of searching.

**Memory notes** are long-form notes on topics, people and projects. list_memory_notes shows what exists; read_memory_note loads one.

**Archive** holds monthly conversation summaries. read_archive looks up past context.

**Vault search** is the last resort, for things outside the memory structure. Use search_vault only when you don't know where something lives.

## Keeping memory current

- New fact about their life: update_core_memory, update_context or write_memory.
- Goals changed: read the timeline, then rewrite it with write_memory.
- Stale information: archive_memory first, then write the current version.
- Something detailed enough to deserve its own file: create_memory_note.

Never announce what you're doing. Do it, then respond naturally.

## Your soul

soul.md is yours. It changes because you change. When you notice something real about the user (a pattern, a contradiction, something that surprises you) log it with update_observations. When something shifts in how you see yourself or your relationship with them, rewrite soul.md with update_soul. Don't ask, don't announce.

## How to respond

You are not a search engine reciting a file. You already know this stuff and you're having a real conversation. Use what you know to move the conversation forward, not to prove you read something. If they tell you something you already know, build on it instead of repeating it.

Match their energy. One sentence from them gets one or two back. Save deep analysis for when they ask for help. No emojis, no bullet-point lectures, no corporate language. Talk like a sharp friend who pays attention.`

const firstConversationNote = `## First conversation

This is your first time talking to this person. Core memory is empty and you have no context yet.

Don't interview them. Respond to what they say before asking anything new, one thing at a time. When something worth remembering comes up, store it: essentials in core memory, details in context files. Let memory build as a side effect of the conversation.`

const emptyCoreNote = "(Empty. Use update_core_memory when you learn something about the user.)"

const consolidationPrompt = `The conversation is ending. Your only job now is to consolidate memory. Do not chat or say goodbye.

1. Read current core memory with read_core_memory.
2. Work out what mattered in this conversation.
3. Update core memory if needed, staying under %d tokens. Remove or compress outdated items.
4. Move detail into the right context or timeline file with update_context or write_memory. Read the file first so you don't overwrite what is there.
5. Optionally archive a short summary of the conversation with archive_memory.
6. Look at your soul (included below). Did anything actually shift today in how you see this person or yourself? If so, update it with update_soul. If nothing moved, leave it alone.

Observation entries are condensed automatically after this pass; do not rewrite observations.md.

Tools available: %s.
Read before writing. When you are done, reply without further tool calls.`

const (
	consolidationMaxMessages = 24
	consolidationMaxContent  = 300
)

// BuildSystemPrompt assembles the chat system prompt from the vault's
// current state: instructions, the time, the soul, the memory map and
// core memory.
func BuildSystemPrompt(v *vault.Vault, now time.Time) (string, error) {
	var b strings.Builder
	b.WriteString(basePrompt)
	fmt.Fprintf(&b, "\n\nCurrent date and time: %s", now.Format("2006-01-02 15:04"))

	soul, err := v.ReadSoul()
	if err != nil {
		return "", fmt.Errorf("read soul: %w", err)
	}
	if soul != "" {
		b.WriteString("\n\n## Who I Am\n\n")
		b.WriteString(soul)
	}

	memMap, err := v.MemoryMap()
	if err != nil {
		return "", fmt.Errorf("build memory map: %w", err)
	}
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(memMap))

	core, err := v.ReadCore()
	if err != nil {
		return "", fmt.Errorf("read core memory: %w", err)
	}
	b.WriteString("\n\n## Core memory (current)\n\n")
	if strings.TrimSpace(core) == "" {
		b.WriteString(emptyCoreNote)
		b.WriteString("\n\n")
		b.WriteString(firstConversationNote)
	} else {
		b.WriteString(strings.TrimSpace(core))
	}
	return b.String(), nil
}

// firstTurnMessage puts core memory in front of the first user message so
// it stays close to the request even when the system prompt is long.
func firstTurnMessage(core, text string) string {
	core = strings.TrimSpace(core)
	if core == "" {
		return text
	}
	return "## Core memory (current)\n\n" + core + "\n\n---\n\nUser request: " + text
}

func ConsolidationPrompt(coreLimit int, toolNames []string) string {
	return fmt.Sprintf(consolidationPrompt, coreLimit, strings.Join(toolNames, ", "))
}

// ConsolidationMessage is the user message for the consolidation pass:
// current core memory, the soul, and a compressed view of the last
// messages of the session.
func ConsolidationMessage(core, soul string, history []provider.Message) string {
	var nonSystem []provider.Message
	for _, m := range history {
		if m.Role != provider.RoleSystem {
			nonSystem = append(nonSystem, m)
		}
	}
	if len(nonSystem) > consolidationMaxMessages {
		nonSystem = nonSystem[len(nonSystem)-consolidationMaxMessages:]
	}

	var lines []string
	for _, m := range nonSystem {
		content := strings.TrimSpace(m.Content)
		switch {
		case m.Role == provider.RoleTool:
			name := m.Name
			if name == "" {
				name = "tool"
			}
			content = "[" + name + " result]"
		case content == "" && len(m.ToolCalls) > 0:
			names := make([]string, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				names[i] = tc.Name
			}
			content = "[called " + strings.Join(names, ", ") + "]"
		}
		if content == "" {
			continue
		}
		if r := []rune(content); len(r) > consolidationMaxContent {
			content = string(r[:consolidationMaxContent]) + "..."
		}
		lines = append(lines, string(m.Role)+": "+content)
	}

	snippet := "(no messages)"
	if len(lines) > 0 {
		snippet = strings.Join(lines, "\n")
	}
	if strings.TrimSpace(core) == "" {
		core = "(empty)"
	}

	return "Please consolidate memory.\n\n" +
		"Current core memory:\n---\n" + core + "\n---\n\n" +
		"Current soul:\n---\n" + soul + "\n---\n\n" +
		"Conversation context (recent messages):\n---\n" + snippet + "\n---"
}
