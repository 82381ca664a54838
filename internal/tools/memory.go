package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jeanpaul/memoria/internal/vault"
)

type contentArgs struct {
	Content string `json:"content"`
}

type pathArgs struct {
	Path string `json:"path"`
}

type writeArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type categoryArgs struct {
	Category string `json:"category"`
	Content  string `json:"content"`
}

type archiveArgs struct {
	Content string `json:"content"`
	Date    string `json:"date"`
}

func memoryTools(v *vault.Vault) []Tool {
	limit := v.CoreMaxTokens()
	categories := strings.Join(vault.Categories, ", ")
	memPath := "Path relative to " + v.MemoryFolder() + "/, e.g. 'context/personal', 'timelines/current-goals', or 'context/work' to read a whole directory"

	return []Tool{
		&typedTool[struct{}]{
			name:        "read_core_memory",
			description: fmt.Sprintf("Read current core working memory (~%d token summary loaded every conversation). Call this when a response touches on personal topics, preferences, ongoing work, or anything the user might expect you to already know.", limit),
			params:      object(nil, map[string]any{}),
			run: func(_ context.Context, _ struct{}) (string, error) {
				core, err := v.ReadCore()
				if err != nil {
					return "", err
				}
				if strings.TrimSpace(core) == "" {
					return "(Core memory is empty.)", nil
				}
				return core, nil
			},
		},
		&typedTool[contentArgs]{
			name:        "update_core_memory",
			description: fmt.Sprintf("Rewrite core working memory. Content must be under %d tokens. Call this after a response where you learned something new and important about the user. Keep only the most relevant facts; compress to stay under the limit.", limit),
			params: object([]string{"content"}, map[string]any{
				"content": str(fmt.Sprintf("Full new content for core memory (markdown). Must be under %d tokens.", limit)),
			}),
			run: func(_ context.Context, a contentArgs) (string, error) {
				n, err := v.WriteCore(a.Content)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Core memory updated (%d tokens).", n), nil
			},
		},
		&typedTool[pathArgs]{
			name:        "read_memory",
			description: "Read structured memory files. Check the memory map in the system prompt to see what's available. Pass a file path to read one file, or a directory path to read all files in that directory.",
			params: object([]string{"path"}, map[string]any{
				"path": str(memPath),
			}),
			run: func(_ context.Context, a pathArgs) (string, error) {
				content, err := v.ReadPath(a.Path)
				if errors.Is(err, vault.ErrNotFound) {
					return fmt.Sprintf("(No content at '%s'. Check the memory map for available files.)", a.Path), nil
				}
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("**%s**\n\n%s", a.Path, content), nil
			},
		},
		&typedTool[writeArgs]{
			name:        "write_memory",
			description: "Write or update a structured memory file. Creates the file and parent directories if needed. Use for context files and timelines. For core memory use update_core_memory instead.",
			params: object([]string{"path", "content"}, map[string]any{
				"path":    str("Path relative to " + v.MemoryFolder() + "/, e.g. 'context/work/projects', 'timelines/current-goals'"),
				"content": str("New markdown content for the file (full replacement)"),
			}),
			run: func(_ context.Context, a writeArgs) (string, error) {
				rel, stat, err := v.WritePath(a.Path, a.Content)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Updated %s (%s).", rel, stat), nil
			},
		},
		&typedTool[categoryArgs]{
			name:        "read_context",
			description: "Read one context category file (" + categories + ").",
			params: object([]string{"category"}, map[string]any{
				"category": map[string]any{"type": "string", "enum": vault.Categories},
			}),
			run: func(_ context.Context, a categoryArgs) (string, error) {
				content, err := v.ReadContext(a.Category)
				if err != nil {
					return "", err
				}
				if strings.TrimSpace(content) == "" {
					return fmt.Sprintf("(Context '%s' is empty.)", a.Category), nil
				}
				return content, nil
			},
		},
		&typedTool[categoryArgs]{
			name:        "update_context",
			description: "Replace one context category file (" + categories + ") with new markdown content.",
			params: object([]string{"category", "content"}, map[string]any{
				"category": map[string]any{"type": "string", "enum": vault.Categories},
				"content":  str("Full new markdown content for the category"),
			}),
			run: func(_ context.Context, a categoryArgs) (string, error) {
				stat, err := v.WriteContext(a.Category, a.Content)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Context '%s' updated (%s).", a.Category, stat), nil
			},
		},
		&typedTool[archiveArgs]{
			name:        "archive_memory",
			description: "Append content to the monthly archive. Use for conversation summaries or moving outdated info out of active memory.",
			params: object([]string{"content"}, map[string]any{
				"content": str("Content to archive (e.g. conversation summary)."),
				"date":    str("Optional. YYYY-MM; default is current month."),
			}),
			run: func(_ context.Context, a archiveArgs) (string, error) {
				rel, err := v.Archive(a.Content, a.Date)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Archived to %s.", rel), nil
			},
		},
		&typedTool[archiveArgs]{
			name:        "read_archive",
			description: "Read archived conversation summaries. Pass a month (YYYY-MM) to read that archive, or omit to list available months.",
			params: object(nil, map[string]any{
				"date": str("Month to read (YYYY-MM). Omit to list available archive months."),
			}),
			run: func(_ context.Context, a archiveArgs) (string, error) {
				if a.Date != "" {
					return v.ReadArchive(a.Date)
				}
				months, err := v.ArchiveMonths()
				if err != nil {
					return "", err
				}
				if len(months) == 0 {
					return "(No archives yet.)", nil
				}
				return "Archive months: " + strings.Join(months, ", "), nil
			},
		},
		&typedTool[contentArgs]{
			name:        "update_soul",
			description: "Update your sense of self, your evolving relationship with the user, or views you've genuinely developed through conversation. Write in first person. Preserve what still feels true. Use sparingly.",
			params: object([]string{"content"}, map[string]any{
				"content": str("Full new content for soul.md (markdown, first person)."),
			}),
			run: func(_ context.Context, a contentArgs) (string, error) {
				n, err := v.WriteSoul(a.Content)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Soul updated (%d tokens).", n), nil
			},
		},
		&typedTool[contentArgs]{
			name:        "update_observations",
			description: "Record a short first-person observation about the user or the conversation: a pattern, a tension, something unresolved. Entries are timestamped and periodically condensed.",
			params: object([]string{"content"}, map[string]any{
				"content": str("The observation, one or two sentences."),
			}),
			run: func(_ context.Context, a contentArgs) (string, error) {
				n, err := v.AppendObservation(a.Content)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Observation recorded (%d total).", n), nil
			},
		},
	}
}
