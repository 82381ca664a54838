package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// ReadCore returns core memory, or "" when it has not been written yet.
func (v *Vault) ReadCore() (string, error) {
	s, err := v.readFile(filepath.Join(v.MemoryDir(), CoreMemoryFile))
	if err != nil && isNotFound(err) {
		return "", nil
	}
	return strings.TrimSpace(s), err
}

// WriteCore replaces core memory. Content over the token cap is rejected
// whole; the model is expected to compress and retry.
func (v *Vault) WriteCore(content string) (int, error) {
	tokens := EstimateTokens(content)
	if tokens > v.coreMaxTokens {
		return tokens, errorf(ErrTooLarge, "content exceeds %d token limit (%d tokens)", v.coreMaxTokens, tokens)
	}
	if err := v.writeFile(filepath.Join(v.MemoryDir(), CoreMemoryFile), content); err != nil {
		return tokens, fmt.Errorf("write core memory: %w", err)
	}
	return tokens, nil
}

// ReadPath reads one memory file, or every Markdown file under a
// directory, each headed by its path.
// "context/work" returns context/work.md followed by context/work/*.
func (v *Vault) ReadPath(rel string) (string, error) {
	path, err := v.Resolve(rel)
	if err != nil {
		return "", err
	}
	file, fileErr := v.readFile(path)

	dir, err := v.ResolveDir(rel)
	if err != nil {
		return "", err
	}
	if info, statErr := os.Stat(dir); statErr == nil && info.IsDir() {
		all, dirErr := v.readDir(dir)
		switch {
		case fileErr == nil && strings.TrimSpace(file) != "" && dirErr == nil:
			return strings.TrimSpace(file) + "\n\n" + all, nil
		case dirErr == nil:
			return all, nil
		case fileErr != nil:
			return "", dirErr
		}
	}
	if fileErr != nil {
		return "", fileErr
	}
	return strings.TrimSpace(file), nil
}

func (v *Vault) readDir(dir string) (string, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), "**/*.md")
	if err != nil {
		return "", err
	}
	slices.Sort(matches)

	var parts []string
	for _, m := range matches {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(m)))
		if err != nil {
			continue
		}
		body := strings.TrimSpace(string(data))
		if body == "" {
			continue
		}
		rel := strings.TrimSuffix(v.Rel(filepath.Join(dir, m)), ".md")
		parts = append(parts, fmt.Sprintf("### %s\n\n%s", rel, body))
	}
	if len(parts) == 0 {
		return "", errorf(ErrNotFound, "No content in %s", v.Rel(dir))
	}
	return strings.Join(parts, "\n\n"), nil
}

// WritePath fully replaces a memory file, creating parent folders.
func (v *Vault) WritePath(rel, content string) (string, DiffStat, error) {
	path, err := v.Resolve(rel)
	if err != nil {
		return "", DiffStat{}, err
	}
	if v.isRootFile(path, SoulFile) {
		return "", DiffStat{}, errorf(ErrProtected, "soul.md is protected: use update_soul to modify it")
	}
	if v.isRootFile(path, CoreMemoryFile) {
		return "", DiffStat{}, errorf(ErrProtected, "core memory has a token limit: use update_core_memory")
	}

	old, _ := os.ReadFile(path)
	if err := v.writeFile(path, content); err != nil {
		return "", DiffStat{}, fmt.Errorf("write %s: %w", rel, err)
	}
	return v.Rel(path), Diff(v.Rel(path), string(old), content), nil
}

func (v *Vault) isRootFile(path, name string) bool {
	return strings.EqualFold(v.Rel(path), name)
}

func (v *Vault) contextPath(category string) (string, error) {
	c := strings.ToLower(strings.TrimSpace(category))
	if !slices.Contains(Categories, c) {
		return "", errorf(ErrInvalidCategory, "Invalid category '%s' (valid: %s)", category, strings.Join(Categories, ", "))
	}
	return filepath.Join(v.MemoryDir(), ContextDir, c+".md"), nil
}

func (v *Vault) ReadContext(category string) (string, error) {
	path, err := v.contextPath(category)
	if err != nil {
		return "", err
	}
	s, err := v.readFile(path)
	if err != nil && isNotFound(err) {
		return "", nil
	}
	return strings.TrimSpace(s), err
}

func (v *Vault) WriteContext(category, content string) (DiffStat, error) {
	path, err := v.contextPath(category)
	if err != nil {
		return DiffStat{}, err
	}
	old, _ := os.ReadFile(path)
	if err := v.writeFile(path, content); err != nil {
		return DiffStat{}, fmt.Errorf("write context %s: %w", category, err)
	}
	return Diff(v.Rel(path), string(old), content), nil
}

var monthRe = regexp.MustCompile(`^\d{4}-\d{2}$`)

func parseMonth(date string) (string, error) {
	if !monthRe.MatchString(date) {
		return "", errorf(ErrInvalidDate, "Invalid date '%s': use YYYY-MM", date)
	}
	if _, err := time.Parse("2006-01", date); err != nil {
		return "", errorf(ErrInvalidDate, "Invalid date '%s': use YYYY-MM", date)
	}
	return date, nil
}

// Archive appends a timestamped section to archive/YYYY-MM.md. An empty
// date means the current month.
func (v *Vault) Archive(content, date string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", errorf(ErrEmpty, "content is required")
	}
	now := v.now()
	if date == "" {
		date = now.Format("2006-01")
	}
	month, err := parseMonth(date)
	if err != nil {
		return "", err
	}

	path := filepath.Join(v.MemoryDir(), ArchiveDir, month+".md")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.Size() == 0 {
		fmt.Fprintf(f, "# Archive %s\n", month)
	}
	if _, err := fmt.Fprintf(f, "\n## %s\n\n%s\n", now.Format("2006-01-02 15:04"), strings.TrimSpace(content)); err != nil {
		return "", fmt.Errorf("write archive: %w", err)
	}
	return v.Rel(path), nil
}

// ArchiveMonths lists the months that have an archive file, oldest first.
func (v *Vault) ArchiveMonths() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(v.MemoryDir(), ArchiveDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var months []string
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".md")
		if !e.IsDir() && monthRe.MatchString(name) {
			months = append(months, name)
		}
	}
	slices.Sort(months)
	return months, nil
}

// ReadArchive returns one month's archive.
func (v *Vault) ReadArchive(date string) (string, error) {
	month, err := parseMonth(strings.TrimSpace(date))
	if err != nil {
		return "", err
	}
	s, err := v.readFile(filepath.Join(v.MemoryDir(), ArchiveDir, month+".md"))
	if err != nil {
		if isNotFound(err) {
			return "", errorf(ErrNotFound, "No archive for %s", month)
		}
		return "", err
	}
	return strings.TrimSpace(s), nil
}

func (v *Vault) ReadSoul() (string, error) {
	s, err := v.readFile(filepath.Join(v.MemoryDir(), SoulFile))
	if err != nil && isNotFound(err) {
		return "", nil
	}
	return strings.TrimSpace(s), err
}

func (v *Vault) WriteSoul(content string) (int, error) {
	if strings.TrimSpace(content) == "" {
		return 0, errorf(ErrEmpty, "content is required")
	}
	if err := v.writeFile(filepath.Join(v.MemoryDir(), SoulFile), content); err != nil {
		return 0, fmt.Errorf("write soul: %w", err)
	}
	return EstimateTokens(content), nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}
