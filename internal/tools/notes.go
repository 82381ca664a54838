package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeanpaul/memoria/internal/vault"
)

type createNoteArgs struct {
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Subfolder string   `json:"subfolder"`
	Topics    []string `json:"topics"`
}

type noteArgs struct {
	Filename string `json:"filename"`
}

type updateNoteArgs struct {
	Filename   string   `json:"filename"`
	NewContent string   `json:"new_content"`
	Topics     []string `json:"topics"`
	Append     bool     `json:"append"`
}

type listNotesArgs struct {
	Subfolder string `json:"subfolder"`
}

type searchArgs struct {
	Query  string   `json:"query"`
	Tags   []string `json:"tags"`
	Folder string   `json:"folder"`
}

func noteTools(v *vault.Vault) []Tool {
	folder := v.MemoryFolder() + "/"
	filename := str("Filename relative to " + folder + " (e.g. 'user.md' or 'topics/cars.md')")

	return []Tool{
		&typedTool[searchArgs]{
			name:        "search_vault",
			description: "Search the user's Obsidian vault for notes matching a query. Use when the user references a note or topic that might exist in their vault. Searches note titles and content. This is a last resort; check memory files first.",
			params: object([]string{"query"}, map[string]any{
				"query":  str("Text to search for in note titles and content"),
				"tags":   strList("Optional list of tags to filter by (e.g. ['project', 'work'])"),
				"folder": str("Optional folder path to limit search (e.g. 'Work/Projects')"),
			}),
			run: func(_ context.Context, a searchArgs) (string, error) {
				res, err := v.Search(a.Query, a.Tags, a.Folder)
				if err != nil {
					return "", err
				}
				return FormatSearch(a.Query, a.Tags, a.Folder, res), nil
			},
		},
		&typedTool[createNoteArgs]{
			name:        "create_memory_note",
			description: "Create a new note in " + folder + " for long-form information that deserves its own file (topics, people, detailed project notes).",
			params: object([]string{"title", "content"}, map[string]any{
				"title":     str("Note title (will be the filename)"),
				"content":   str("Note content in markdown format"),
				"subfolder": str("Optional subfolder within " + folder + " (e.g. 'topics' or 'people')"),
				"topics":    strList("Optional topic tags for categorization"),
			}),
			run: func(_ context.Context, a createNoteArgs) (string, error) {
				rel, err := v.CreateNote(a.Title, a.Content, a.Subfolder, a.Topics)
				if err != nil {
					return "", err
				}
				return "Created note: " + rel, nil
			},
		},
		&typedTool[noteArgs]{
			name:        "read_memory_note",
			description: "Read an existing note from " + folder + " (includes metadata like created date and topics).",
			params: object([]string{"filename"}, map[string]any{
				"filename": filename,
			}),
			run: func(_ context.Context, a noteArgs) (string, error) {
				n, err := v.ReadNote(a.Filename)
				if err != nil {
					return "", err
				}
				return formatNote(n), nil
			},
		},
		&typedTool[updateNoteArgs]{
			name:        "update_memory_note",
			description: "Update an existing memory note. Replaces content by default; set append=true to add to the end instead.",
			params: object([]string{"filename", "new_content"}, map[string]any{
				"filename":    filename,
				"new_content": str("Content to write (replaces existing unless append is true)"),
				"topics":      strList("Optional updated topic tags"),
				"append":      map[string]any{"type": "boolean", "description": "If true, append content to end instead of replacing. Default false."},
			}),
			run: func(_ context.Context, a updateNoteArgs) (string, error) {
				rel, stat, err := v.UpdateNote(a.Filename, a.NewContent, a.Topics, a.Append)
				if err != nil {
					return "", err
				}
				verb := "Updated"
				if a.Append {
					verb = "Appended to"
				}
				return fmt.Sprintf("%s note: %s (%s)", verb, rel, stat), nil
			},
		},
		&typedTool[listNotesArgs]{
			name:        "list_memory_notes",
			description: "List all notes in " + folder + " (for discovering notes not shown in the memory map).",
			params: object(nil, map[string]any{
				"subfolder": str("Optional subfolder to list (e.g. 'topics')"),
			}),
			run: func(_ context.Context, a listNotesArgs) (string, error) {
				notes, err := v.ListNotes(a.Subfolder)
				if err != nil {
					return "", err
				}
				return FormatNotes(notes), nil
			},
		},
		&typedTool[noteArgs]{
			name:        "delete_memory_note",
			description: "Delete a memory note. Use sparingly: only when explicitly requested or content is clearly wrong.",
			params: object([]string{"filename"}, map[string]any{
				"filename": filename,
			}),
			run: func(_ context.Context, a noteArgs) (string, error) {
				if err := v.DeleteNote(a.Filename); err != nil {
					return "", err
				}
				return "Deleted note: " + a.Filename, nil
			},
		},
	}
}

func formatNote(n *vault.Note) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n\n", n.Path)
	meta := false
	if n.Meta.Created != "" {
		fmt.Fprintf(&b, "Created: %s\n", n.Meta.Created)
		meta = true
	}
	if n.Meta.Updated != "" {
		fmt.Fprintf(&b, "Updated: %s\n", n.Meta.Updated)
		meta = true
	}
	if len(n.Meta.Topics) > 0 {
		fmt.Fprintf(&b, "Topics: %s\n", strings.Join(n.Meta.Topics, ", "))
		meta = true
	}
	if meta {
		b.WriteString("\n")
	}
	b.WriteString(n.Body)
	return b.String()
}

// FormatSearch renders search results the way the model and the search
// command both see them.
func FormatSearch(query string, tags []string, folder string, res *vault.SearchResults) string {
	if len(res.Results) == 0 {
		var filter string
		if len(tags) > 0 {
			filter += fmt.Sprintf(" with tags [%s]", strings.Join(tags, ", "))
		}
		if folder != "" {
			filter += fmt.Sprintf(" in folder '%s'", folder)
		}
		return fmt.Sprintf("No notes found matching '%s'%s", query, filter)
	}

	lines := []string{fmt.Sprintf("Found %d note(s) matching '%s':", res.TotalFound, query)}
	for i, r := range res.Results {
		lines = append(lines, fmt.Sprintf("\n%d. **%s**", i+1, r.Title))
		lines = append(lines, "   Path: "+r.Path)
		if len(r.Tags) > 0 {
			lines = append(lines, "   Tags: "+strings.Join(r.Tags, ", "))
		}
		lines = append(lines, "   Preview: "+r.Preview)
	}
	if res.TotalFound > len(res.Results) {
		lines = append(lines, fmt.Sprintf("\n(Showing top %d of %d results)", len(res.Results), res.TotalFound))
	}
	return strings.Join(lines, "\n")
}

func FormatNotes(notes []vault.Note) string {
	if len(notes) == 0 {
		return "No memory notes found"
	}
	lines := []string{fmt.Sprintf("Found %d memory note(s):", len(notes))}
	for _, n := range notes {
		lines = append(lines, fmt.Sprintf("\n- **%s**", n.Path))
		if len(n.Meta.Topics) > 0 {
			lines = append(lines, "  Topics: "+strings.Join(n.Meta.Topics, ", "))
		}
		if n.Meta.Updated != "" {
			lines = append(lines, "  Updated: "+n.Meta.Updated)
		}
	}
	return strings.Join(lines, "\n")
}
