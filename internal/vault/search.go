package vault

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

const (
	maxSearchResults = 10
	previewRadius    = 50
	titlePreviewLen  = 100
)

type SearchResult struct {
	Path      string // relative to the vault root
	Title     string
	Preview   string
	MatchType string
	Tags      []string
	Score     int
}

type SearchResults struct {
	Results    []SearchResult
	TotalFound int
}

var markdown = goldmark.New()

// Search scans every Markdown file under folder (the whole vault when
// empty) for query in the title or body. A non-empty tags list keeps only
// notes carrying at least one of them.
func (v *Vault) Search(query string, tags []string, folder string) (*SearchResults, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errorf(ErrEmpty, "No search query provided")
	}
	root, err := v.ResolveVaultDir(folder)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, errorf(ErrNotFound, "Folder does not exist: %s", folder)
	}

	matches, err := doublestar.Glob(os.DirFS(root), "**/*.md")
	if err != nil {
		return nil, fmt.Errorf("search vault: %w", err)
	}

	wantTags := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "#")); t != "" {
			wantTags = append(wantTags, t)
		}
	}

	q := strings.ToLower(query)
	var results []SearchResult
	for _, m := range matches {
		if hiddenPath(m) {
			continue
		}
		abs := filepath.Join(root, filepath.FromSlash(m))
		data, err := os.ReadFile(abs)
		if err != nil || !utf8.Valid(data) {
			continue
		}
		content := string(data)
		title := strings.TrimSuffix(path.Base(m), ".md")

		noteTags := NoteTags(content)
		if len(wantTags) > 0 && !anyTag(noteTags, wantTags) {
			continue
		}

		score, matchType := relevance(title, content, q)
		if score == 0 {
			continue
		}

		var preview string
		if pos := indexFold(content, query); pos >= 0 {
			preview = snippet(content, pos, len(query))
		} else {
			preview = firstChars(strings.TrimSpace(content), titlePreviewLen)
		}

		rel, _ := filepath.Rel(v.root, abs)
		results = append(results, SearchResult{
			Path:      filepath.ToSlash(rel),
			Title:     title,
			Preview:   preview,
			MatchType: matchType,
			Tags:      noteTags,
			Score:     score,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	out := &SearchResults{TotalFound: len(results)}
	if len(results) > maxSearchResults {
		results = results[:maxSearchResults]
	}
	out.Results = results
	return out, nil
}

func hiddenPath(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

func relevance(title, content, q string) (int, string) {
	t := strings.ToLower(title)
	switch {
	case t == q:
		return 1000, "title_exact"
	case strings.Contains(t, q):
		return 500, "title_contains"
	}
	if n := strings.Count(strings.ToLower(content), q); n > 0 {
		return n * 10, "content_matches"
	}
	return 0, "no_match"
}

// indexFold is a case-insensitive strings.Index returning a byte offset
// into s.
func indexFold(s, sub string) int {
	n := utf8.RuneCountInString(sub)
	for i := range s {
		j, c := i, 0
		for j < len(s) && c < n {
			_, size := utf8.DecodeRuneInString(s[j:])
			j += size
			c++
		}
		if c < n {
			return -1
		}
		if strings.EqualFold(s[i:j], sub) {
			return i
		}
	}
	return -1
}

// snippet returns about previewRadius bytes either side of a match with
// whitespace collapsed and "..." on cut ends.
func snippet(content string, pos, matchLen int) string {
	start := max(0, pos-previewRadius)
	end := min(len(content), pos+max(matchLen, previewRadius))
	for start > 0 && !utf8.RuneStart(content[start]) {
		start--
	}
	for end < len(content) && !utf8.RuneStart(content[end]) {
		end++
	}
	s := strings.Join(strings.Fields(content[start:end]), " ")
	if start > 0 {
		s = "..." + s
	}
	if end < len(content) {
		s += "..."
	}
	return s
}

func firstChars(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func anyTag(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}

// NoteTags returns frontmatter tags followed by inline #tags, deduplicated.
func NoteTags(content string) []string {
	front, body, _ := splitFrontmatter(content)

	seen := map[string]bool{}
	var tags []string
	add := func(t string) {
		t = strings.TrimPrefix(strings.TrimSpace(t), "#")
		if t != "" && !seen[strings.ToLower(t)] {
			seen[strings.ToLower(t)] = true
			tags = append(tags, t)
		}
	}
	for _, t := range frontmatterTags(front) {
		add(t)
	}
	for _, t := range inlineTags(body) {
		add(t)
	}
	return tags
}

func frontmatterTags(front string) []string {
	if front == "" {
		return nil
	}
	var fm struct {
		Tags any `yaml:"tags"`
	}
	if err := yaml.Unmarshal([]byte(front), &fm); err != nil {
		return nil
	}
	switch t := fm.Tags.(type) {
	case string:
		return strings.FieldsFunc(t, func(r rune) bool { return r == ',' || r == ' ' })
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

var inlineTagRe = regexp.MustCompile(`(?:^|[^#\w])#([\w-]+)`)

// inlineTags collects #tags from paragraph text. Headings and code are
// skipped by walking the Markdown AST rather than the raw text.
func inlineTags(body string) []string {
	src := []byte(body)
	doc := markdown.Parser().Parse(text.NewReader(src))

	var tags []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindHeading, ast.KindCodeBlock, ast.KindFencedCodeBlock, ast.KindHTMLBlock:
			return ast.WalkSkipChildren, nil
		case ast.KindParagraph, ast.KindTextBlock:
			for _, m := range inlineTagRe.FindAllStringSubmatch(inlineText(n, src), -1) {
				tags = append(tags, m[1])
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return tags
}

func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c.Kind() {
		case ast.KindCodeSpan, ast.KindRawHTML, ast.KindAutoLink:
			b.WriteByte(' ')
			continue
		case ast.KindText:
			t := c.(*ast.Text)
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte('\n')
			}
			continue
		}
		b.WriteString(inlineText(c, src))
	}
	return b.String()
}
