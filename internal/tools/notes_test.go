package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeanpaul/memoria/internal/vault"
)

func TestNoteToolsLifecycle(t *testing.T) {
	reg, _ := newTestRegistry(t)

	res := run(t, reg, "create_memory_note", `{"title":"Cars","content":"Drives a 2009 Civic.","subfolder":"topics","topics":["cars"]}`)
	require.True(t, res.OK(), res.Error)
	assert.Equal(t, "Created note: topics/Cars.md", res.Output)

	res = run(t, reg, "create_memory_note", `{"title":"Cars","content":"again","subfolder":"topics"}`)
	assert.Equal(t, "Note already exists: topics/Cars", res.Error)

	res = run(t, reg, "read_memory_note", `{"filename":"topics/Cars.md"}`)
	require.True(t, res.OK(), res.Error)
	assert.Equal(t,
		"**topics/Cars.md**\n\nCreated: 2026-10-16T09:30:00\nUpdated: 2026-10-16T09:30:00\nTopics: cars\n\nDrives a 2009 Civic.",
		res.Output)

	res = run(t, reg, "update_memory_note", `{"filename":"topics/Cars.md","new_content":"Wants an EV next.","append":true}`)
	require.True(t, res.OK(), res.Error)
	assert.Equal(t, "Appended to note: topics/Cars.md (+2 -0 lines)", res.Output)

	res = run(t, reg, "list_memory_notes", `{"subfolder":"topics"}`)
	assert.Contains(t, res.Output, "Found 1 memory note(s):")
	assert.Contains(t, res.Output, "- **topics/Cars.md**")
	assert.Contains(t, res.Output, "  Topics: cars")

	res = run(t, reg, "delete_memory_note", `{"filename":"topics/Cars.md"}`)
	assert.Equal(t, "Deleted note: topics/Cars.md", res.Output)

	res = run(t, reg, "read_memory_note", `{"filename":"topics/Cars.md"}`)
	assert.Contains(t, res.Error, "Note not found")

	res = run(t, reg, "list_memory_notes", `{"subfolder":"topics"}`)
	assert.Equal(t, "No memory notes found", res.Output)
}

func TestNoteToolsProtectSoul(t *testing.T) {
	reg, _ := newTestRegistry(t)

	res := run(t, reg, "delete_memory_note", `{"filename":"soul.md"}`)
	assert.Equal(t, "soul.md is protected and cannot be deleted", res.Error)
}

func TestSearchVaultTool(t *testing.T) {
	reg, v := newTestRegistry(t)
	path := filepath.Join(v.Root(), "Projects", "Garden.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("---\ntags: [home]\n---\nRaised beds for tomatoes.\n"), 0o644))

	res := run(t, reg, "search_vault", `{"query":"garden"}`)
	require.True(t, res.OK(), res.Error)
	assert.Contains(t, res.Output, "Found 1 note(s) matching 'garden':")
	assert.Contains(t, res.Output, "1. **Garden**")
	assert.Contains(t, res.Output, "   Path: Projects/Garden.md")
	assert.Contains(t, res.Output, "   Tags: home")

	res = run(t, reg, "search_vault", `{"query":"cactus","tags":["home"],"folder":"Projects"}`)
	assert.Equal(t, "No notes found matching 'cactus' with tags [home] in folder 'Projects'", res.Output)
}

func TestFormatSearchShowsTruncation(t *testing.T) {
	res := &vault.SearchResults{
		Results:    []vault.SearchResult{{Path: "a.md", Title: "a", Preview: "..."}},
		TotalFound: 12,
	}
	out := FormatSearch("a", nil, "", res)
	assert.Contains(t, out, "Found 12 note(s) matching 'a':")
	assert.Contains(t, out, "(Showing top 1 of 12 results)")
}
