package vault

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// NoteMeta is the YAML frontmatter of a memory note.
type NoteMeta struct {
	Created string   `yaml:"created,omitempty"`
	Updated string   `yaml:"updated,omitempty"`
	Topics  []string `yaml:"topics,omitempty"`
}

type Note struct {
	Path  string // relative to the memory folder
	Title string
	Meta  NoteMeta
	Body  string
}

const timestampLayout = "2006-01-02T15:04:05"

// splitFrontmatter separates a leading "---" block from the body.
func splitFrontmatter(content string) (front, body string, ok bool) {
	if !strings.HasPrefix(content, "---\n") && !strings.HasPrefix(content, "---\r\n") {
		return "", content, false
	}
	rest := content[strings.IndexByte(content, '\n')+1:]
	if strings.HasPrefix(rest, "---") {
		return "", strings.TrimLeft(strings.TrimPrefix(rest, "---"), "\r\n"), true
	}
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return "", content, false
	}
	front = rest[:end]
	body = rest[end+len("\n---"):]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = ""
	}
	return front, strings.TrimLeft(body, "\r\n"), true
}

func parseNote(content string) (NoteMeta, string) {
	var meta NoteMeta
	front, body, ok := splitFrontmatter(content)
	if ok {
		// Hand-edited frontmatter may not parse; the body is still usable.
		_ = yaml.Unmarshal([]byte(front), &meta)
	}
	return meta, body
}

func renderNote(meta NoteMeta, body string) (string, error) {
	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(meta); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	buf.WriteString("---\n\n")
	buf.WriteString(body)
	return buf.String(), nil
}

func isSoulPath(name string) bool {
	n := strings.ToLower(normalize(name))
	n = strings.TrimSuffix(n, ".md")
	return n == "soul" || strings.HasSuffix(n, "/soul")
}

func notePathName(subfolder, title string) string {
	if subfolder = strings.Trim(normalize(subfolder), "/"); subfolder != "" {
		return subfolder + "/" + title
	}
	return title
}

// CreateNote writes a new note with fresh frontmatter. It never
// overwrites.
func (v *Vault) CreateNote(title, content, subfolder string, topics []string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" || strings.TrimSpace(content) == "" {
		return "", errorf(ErrEmpty, "Both title and content are required")
	}
	name := notePathName(subfolder, title)
	if isSoulPath(name) {
		return "", errorf(ErrProtected, "soul.md is protected: use update_soul to modify it")
	}
	p, err := v.Resolve(name)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(p); err == nil {
		return "", errorf(ErrExists, "Note already exists: %s", name)
	}

	now := v.now().Format(timestampLayout)
	doc, err := renderNote(NoteMeta{Created: now, Updated: now, Topics: topics}, content)
	if err != nil {
		return "", fmt.Errorf("encode frontmatter: %w", err)
	}
	if err := v.writeFile(p, doc); err != nil {
		return "", fmt.Errorf("write note: %w", err)
	}
	return v.Rel(p), nil
}

func (v *Vault) ReadNote(name string) (*Note, error) {
	p, err := v.Resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errorf(ErrNotFound, "Note not found: %s", name)
		}
		return nil, fmt.Errorf("read note: %w", err)
	}
	meta, body := parseNote(string(data))
	rel := v.Rel(p)
	return &Note{
		Path:  rel,
		Title: strings.TrimSuffix(path.Base(rel), ".md"),
		Meta:  meta,
		Body:  body,
	}, nil
}

// UpdateNote replaces the body (or appends to it), keeping the created
// stamp. nil topics keep the existing topics.
func (v *Vault) UpdateNote(name, content string, topics []string, appendBody bool) (string, DiffStat, error) {
	if isSoulPath(name) {
		return "", DiffStat{}, errorf(ErrProtected, "soul.md is protected: use update_soul to modify it")
	}
	if strings.TrimSpace(content) == "" {
		return "", DiffStat{}, errorf(ErrEmpty, "filename and new_content are required")
	}
	note, err := v.ReadNote(name)
	if err != nil {
		return "", DiffStat{}, err
	}

	meta := note.Meta
	meta.Updated = v.now().Format(timestampLayout)
	if meta.Created == "" {
		meta.Created = meta.Updated
	}
	if topics != nil {
		meta.Topics = topics
	}
	body := content
	if appendBody {
		body = strings.TrimRight(note.Body, "\n") + "\n\n" + content
	}

	doc, err := renderNote(meta, body)
	if err != nil {
		return "", DiffStat{}, fmt.Errorf("encode frontmatter: %w", err)
	}
	p, _ := v.Resolve(name)
	if err := v.writeFile(p, doc); err != nil {
		return "", DiffStat{}, fmt.Errorf("update note: %w", err)
	}
	return note.Path, Diff(note.Path, note.Body, body), nil
}

// ListNotes returns every note under subfolder (all of the memory folder
// when empty), most recently updated first. soul.md is skipped.
func (v *Vault) ListNotes(subfolder string) ([]Note, error) {
	dir, err := v.ResolveDir(subfolder)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, nil
	}

	matches, err := doublestar.Glob(os.DirFS(dir), "**/*.md")
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}

	var notes []Note
	for _, m := range matches {
		abs := filepath.Join(dir, filepath.FromSlash(m))
		rel := v.Rel(abs)
		if rel == SoulFile {
			continue
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			continue
		}
		meta, _ := parseNote(string(data))
		notes = append(notes, Note{
			Path:  rel,
			Title: strings.TrimSuffix(path.Base(rel), ".md"),
			Meta:  meta,
		})
	}
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].Meta.Updated != notes[j].Meta.Updated {
			return notes[i].Meta.Updated > notes[j].Meta.Updated
		}
		return notes[i].Path < notes[j].Path
	})
	return notes, nil
}

func (v *Vault) DeleteNote(name string) error {
	if isSoulPath(name) {
		return errorf(ErrProtected, "soul.md is protected and cannot be deleted")
	}
	p, err := v.Resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return errorf(ErrNotFound, "Note not found: %s", name)
		}
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}
