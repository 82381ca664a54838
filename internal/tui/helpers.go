package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// resultPreviewLen bounds how much of a tool result the chat shows. The
// model still receives the full (capped) text.
const resultPreviewLen = 200

// Labels for tools that read better with a short verb.
var toolLabels = map[string]string{
	"read_core_memory":    "recall core",
	"update_core_memory":  "remember core",
	"read_memory":         "recall",
	"write_memory":        "remember",
	"read_context":        "recall context",
	"update_context":      "remember context",
	"archive_memory":      "archive",
	"read_archive":        "read archive",
	"search_vault":        "search",
	"update_soul":         "reflect",
	"update_observations": "observe",
}

func toolLabel(name string) string {
	if l, ok := toolLabels[name]; ok {
		return l
	}
	return strings.ReplaceAll(name, "_", " ")
}

// statusFor is the spinner caption while a tool runs.
func statusFor(tool string) string {
	switch tool {
	case "":
		return "Thinking..."
	case "search_vault":
		return "Searching the vault..."
	case "read_core_memory", "read_memory", "read_context", "read_archive", "read_memory_note", "list_memory_notes":
		return "Remembering..."
	default:
		return "Updating memory..."
	}
}

func formatToolCallDisplay(name, args string) string {
	return fmt.Sprintf("%s %s",
		ToolLabelStyle.Render("● "+toolLabel(name)),
		ToolArgsStyle.Render(args),
	)
}

func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func renderToolBlock(header, result string) string {
	content := header
	if result != "" {
		content = lipgloss.JoinVertical(lipgloss.Left,
			header,
			lipgloss.NewStyle().Foreground(MidGray).Render("─────"),
			ToolResultStyle.Render(preview(result, resultPreviewLen)),
		)
	}
	return ToolBlockStyle.Render(content) + "\n"
}

func helpText() string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, c := range slashCommands {
		fmt.Fprintf(&b, "  %-20s %s\n", c.usage, c.desc)
	}
	b.WriteString("\nType quit or exit (or press Esc) to consolidate memory and leave.\n")
	b.WriteString("Ctrl+C stops a reply in progress.")
	return b.String()
}
