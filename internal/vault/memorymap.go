package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// MemoryMap lists what exists in the memory folder so the model knows
// which paths read_memory can load without searching.
func (v *Vault) MemoryMap() (string, error) {
	dir := v.MemoryDir()
	if _, err := os.Stat(dir); err != nil {
		return "", nil
	}
	matches, err := doublestar.Glob(os.DirFS(dir), "**/*.md")
	if err != nil {
		return "", fmt.Errorf("memory map: %w", err)
	}
	slices.Sort(matches)

	var files []string
	notes := 0
	for _, m := range matches {
		switch {
		case m == CoreMemoryFile || m == SoulFile || m == ObservationsFile:
			continue
		case strings.HasPrefix(m, ArchiveDir+"/"):
			continue
		case strings.HasPrefix(m, ContextDir+"/") || strings.HasPrefix(m, TimelinesDir+"/"):
			files = append(files, mapLine(filepath.Join(dir, filepath.FromSlash(m)), m))
		default:
			notes++
		}
	}

	var b strings.Builder
	b.WriteString("## Memory map\n\n")
	fmt.Fprintf(&b, "Files under %s/ (load with read_memory, path without .md):\n", v.folder)
	if len(files) == 0 {
		b.WriteString("- (none yet)\n")
	}
	for _, f := range files {
		b.WriteString(f)
	}

	months, _ := v.ArchiveMonths()
	if len(months) > 0 {
		fmt.Fprintf(&b, "\nArchive months: %s (read_archive)\n", strings.Join(months, ", "))
	}
	if notes > 0 {
		fmt.Fprintf(&b, "\nMemory notes: %d (list_memory_notes)\n", notes)
	}
	return b.String(), nil
}

func mapLine(abs, rel string) string {
	name := strings.TrimSuffix(rel, ".md")
	data, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Sprintf("- %s\n", name)
	}
	_, body := parseNote(string(data))
	body = strings.TrimSpace(body)
	// A seeded file holds only its heading.
	if body == "" || !strings.Contains(body, "\n") && strings.HasPrefix(body, "#") {
		return fmt.Sprintf("- %s (empty)\n", name)
	}
	return fmt.Sprintf("- %s (~%d tokens)\n", name, EstimateTokens(body))
}
