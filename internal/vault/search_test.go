package vault

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_Scoring(t *testing.T) {
	v, _ := newTestVault(t)
	writeVaultFile(t, v, "Projects/Garden.md", "Raised beds and tomatoes.")
	writeVaultFile(t, v, "Projects/Garden Plan.md", "Order seeds.")
	writeVaultFile(t, v, "Journal/2026-10-01.md", "Spent the day in the garden. The garden needs water.")
	writeVaultFile(t, v, "Journal/2026-10-02.md", "Nothing relevant.")

	res, err := v.Search("garden", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalFound)
	require.Len(t, res.Results, 3)

	assert.Equal(t, "Projects/Garden.md", res.Results[0].Path)
	assert.Equal(t, "title_exact", res.Results[0].MatchType)
	assert.Equal(t, 1000, res.Results[0].Score)
	assert.Equal(t, "title_contains", res.Results[1].MatchType)
	assert.Equal(t, 500, res.Results[1].Score)
	assert.Equal(t, 20, res.Results[2].Score)
}

func TestSearch_PreviewAndTitleOnly(t *testing.T) {
	v, _ := newTestVault(t)
	long := strings.Repeat("filler ", 20) + "the\n\nKEYWORD   appears" + strings.Repeat(" tail", 20)
	writeVaultFile(t, v, "long.md", long)
	writeVaultFile(t, v, "keyword notes.md", "Body without the search term.")

	res, err := v.Search("keyword", nil, "")
	require.NoError(t, err)
	require.Len(t, res.Results, 2)

	titleOnly := res.Results[0]
	assert.Equal(t, "keyword notes.md", titleOnly.Path)
	assert.Equal(t, "Body without the search term.", titleOnly.Preview)

	p := res.Results[1].Preview
	assert.True(t, strings.HasPrefix(p, "..."))
	assert.True(t, strings.HasSuffix(p, "..."))
	assert.Contains(t, p, "the KEYWORD appears")
}

func TestSearch_TopTenAndTags(t *testing.T) {
	v, _ := newTestVault(t)
	for i := range 12 {
		writeVaultFile(t, v, "bulk/n"+string(rune('a'+i))+".md", "mentions lisbon")
	}
	writeVaultFile(t, v, "trip.md", "---\ntags: [travel, Portugal]\n---\nlisbon in spring")
	writeVaultFile(t, v, "work.md", "Meeting about #travel-budget for lisbon")

	res, err := v.Search("lisbon", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 14, res.TotalFound)
	assert.Len(t, res.Results, 10)

	res, err = v.Search("lisbon", []string{"portugal"}, "")
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "trip.md", res.Results[0].Path)
	assert.Equal(t, []string{"travel", "Portugal"}, res.Results[0].Tags)

	res, err = v.Search("lisbon", []string{"#travel-budget"}, "")
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "work.md", res.Results[0].Path)
}

func TestSearch_Folder(t *testing.T) {
	v, _ := newTestVault(t)
	writeVaultFile(t, v, "Work/a.md", "budget")
	writeVaultFile(t, v, "Home/b.md", "budget")
	writeVaultFile(t, v, ".trash/c.md", "budget")

	res, err := v.Search("budget", nil, "Work")
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "Work/a.md", res.Results[0].Path)

	res, err = v.Search("budget", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalFound)

	_, err = v.Search("budget", nil, "Missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = v.Search("budget", nil, "../")
	assert.ErrorIs(t, err, ErrPathEscape)
	_, err = v.Search(" ", nil, "")
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestNoteTags(t *testing.T) {
	content := "---\ntags:\n  - project\n  - Work\n---\n" +
		"# Heading #notatag\n\n" +
		"Some text #idea and #project again.\n\n" +
		"```\n#include <stdio.h>\n```\n\n" +
		"Inline `#code` stays out, but (#paren) counts. Also c#sharp does not.\n"

	assert.Equal(t, []string{"project", "Work", "idea", "paren"}, NoteTags(content))
}
