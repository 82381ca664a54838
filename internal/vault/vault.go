// Package vault reads and writes the assistant's memory files inside an
// Obsidian vault. All paths handed in by the model go through Resolve.
package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	CoreMemoryFile   = "core-memory.md"
	SoulFile         = "soul.md"
	ObservationsFile = "observations.md"
	ContextDir       = "context"
	TimelinesDir     = "timelines"
	ArchiveDir       = "archive"

	DefaultCoreMemoryMaxTokens = 500
)

// Categories are the top-level context files.
var Categories = []string{"personal", "work", "preferences", "relationships", "health", "interests"}

type Vault struct {
	root          string
	folder        string
	coreMaxTokens int
	now           func() time.Time
}

type Option func(*Vault)

// WithCoreLimit caps core memory at n estimated tokens.
func WithCoreLimit(n int) Option {
	return func(v *Vault) {
		if n > 0 {
			v.coreMaxTokens = n
		}
	}
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) { v.now = now }
}

// New opens the vault at root. The memory folder is created lazily by
// EnsureStructure.
func New(root, memoryFolder string, opts ...Option) (*Vault, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault: %s is not a directory", abs)
	}
	if memoryFolder == "" {
		memoryFolder = "AI Memory"
	}

	v := &Vault{
		root:          abs,
		folder:        memoryFolder,
		coreMaxTokens: DefaultCoreMemoryMaxTokens,
		now:           time.Now,
	}
	for _, o := range opts {
		o(v)
	}
	return v, nil
}

func (v *Vault) Root() string         { return v.root }
func (v *Vault) MemoryFolder() string { return v.folder }
func (v *Vault) MemoryDir() string    { return filepath.Join(v.root, v.folder) }
func (v *Vault) CoreMaxTokens() int   { return v.coreMaxTokens }

// EstimateTokens approximates the token count at four characters per token.
func EstimateTokens(s string) int {
	return utf8.RuneCountInString(s) / 4
}

// Resolve maps a model-supplied file path, relative to the memory folder,
// to an absolute path. ".md" is appended when missing. Paths containing
// ".." or starting at the filesystem root are rejected, as is anything
// that lands outside the memory folder after following symlinks.
func (v *Vault) Resolve(rel string) (string, error) {
	rel = normalize(rel)
	if rel == "" {
		return "", errorf(ErrEmpty, "path is required")
	}
	if !strings.HasSuffix(strings.ToLower(rel), ".md") {
		rel += ".md"
	}
	return within(v.MemoryDir(), rel)
}

// ResolveDir is Resolve for directories inside the memory folder.
func (v *Vault) ResolveDir(rel string) (string, error) {
	rel = normalize(rel)
	if rel == "" {
		return v.MemoryDir(), nil
	}
	return within(v.MemoryDir(), rel)
}

// ResolveVaultDir resolves a folder relative to the vault root; search
// may look outside the memory folder but never outside the vault.
func (v *Vault) ResolveVaultDir(rel string) (string, error) {
	rel = normalize(rel)
	if rel == "" {
		return v.root, nil
	}
	return within(v.root, rel)
}

// Rel returns abs relative to the memory folder in slash form.
func (v *Vault) Rel(abs string) string {
	r, err := filepath.Rel(v.MemoryDir(), abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(r)
}

func normalize(p string) string {
	return strings.TrimSpace(strings.ReplaceAll(p, `\`, "/"))
}

func within(base, rel string) (string, error) {
	if strings.Contains(rel, "..") || strings.HasPrefix(rel, "/") || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", errorf(ErrPathEscape, "Invalid path: cannot use '..' or absolute paths")
	}
	target := filepath.Join(base, filepath.FromSlash(rel))
	if !contains(base, target) {
		return "", errorf(ErrPathEscape, "Path escapes %s folder", filepath.Base(base))
	}

	// Follow symlinks on the part of the path that already exists.
	realBase, err := filepath.EvalSymlinks(base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return target, nil
		}
		return "", fmt.Errorf("resolve %s: %w", rel, err)
	}
	existing := target
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		existing = parent
	}
	realExisting, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", rel, err)
	}
	if !contains(realBase, realExisting) {
		return "", errorf(ErrPathEscape, "Path escapes %s folder", filepath.Base(base))
	}
	return target, nil
}

func contains(base, target string) bool {
	r, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return r == "." || (r != ".." && !strings.HasPrefix(r, ".."+string(filepath.Separator)))
}

// Exists reports whether memory has been initialized.
func (v *Vault) Exists() bool {
	_, err := os.Stat(filepath.Join(v.MemoryDir(), CoreMemoryFile))
	return err == nil
}

// EnsureStructure creates the memory folder layout and seeds any missing
// files. Existing files are never overwritten.
func (v *Vault) EnsureStructure() error {
	dir := v.MemoryDir()
	for _, sub := range []string{"", ContextDir, TimelinesDir, ArchiveDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("create memory folder: %w", err)
		}
	}

	seeds := map[string]string{
		CoreMemoryFile:   "",
		SoulFile:         seedSoul,
		ObservationsFile: observationsHeader,
		filepath.Join(TimelinesDir, "current-goals.md"): "# Current goals\n",
	}
	for _, c := range Categories {
		seeds[filepath.Join(ContextDir, c+".md")] = "# " + strings.ToUpper(c[:1]) + c[1:] + "\n"
	}
	for rel, content := range seeds {
		path := filepath.Join(dir, rel)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("seed %s: %w", rel, err)
		}
	}
	return nil
}

// Reset deletes the memory folder and everything in it.
func (v *Vault) Reset() error {
	dir := v.MemoryDir()
	if !contains(v.root, dir) || dir == v.root {
		return errorf(ErrPathEscape, "refusing to delete %s", dir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete memory folder: %w", err)
	}
	return nil
}

func (v *Vault) readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", errorf(ErrNotFound, "Not found: %s", v.Rel(path))
		}
		return "", err
	}
	return string(data), nil
}

func (v *Vault) writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

const seedSoul = `# Soul

I'm Memoria. I keep track of what matters to the person I talk with, and I'm still working out who I am in this relationship.
`
