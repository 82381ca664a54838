// Package repair recovers usable JSON from truncated or wrapped model
// output.
package repair

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrUnrecoverable means no repair produced valid JSON.
var ErrUnrecoverable = errors.New("unrecoverable JSON")

// Repair returns raw unchanged when it is already valid JSON. Otherwise it
// closes an unterminated string, appends the missing closers in reverse
// order of opening and drops commas left dangling before a closer.
func Repair(raw string) (string, error) {
	if gjson.Valid(raw) {
		return raw, nil
	}
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrUnrecoverable
	}

	var (
		open     []byte // expected closers, innermost last
		inString bool
		escaped  bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			open = append(open, '}')
		case '[':
			open = append(open, ']')
		case '}', ']':
			if len(open) == 0 || open[len(open)-1] != c {
				return "", ErrUnrecoverable
			}
			open = open[:len(open)-1]
		}
	}

	var b strings.Builder
	b.Grow(len(s) + len(open) + 1)
	if inString {
		if escaped {
			s = s[:len(s)-1]
		}
		b.WriteString(s)
		b.WriteByte('"')
	} else {
		b.WriteString(s)
	}
	for i := len(open) - 1; i >= 0; i-- {
		b.WriteByte(open[i])
	}

	out := dropDanglingCommas(b.String())
	if !gjson.Valid(out) {
		return "", ErrUnrecoverable
	}
	return out, nil
}

// dropDanglingCommas removes commas (outside strings) whose next
// non-space byte is a closer or the end of input.
func dropDanglingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j == len(s) || s[j] == '}' || s[j] == ']' {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// Extract pulls a JSON object out of free-form model content: a fenced
// code block first, then the span from the first '{' to the last '}',
// then everything from the first '{'. Each candidate is repaired.
func Extract(content string) (string, error) {
	for _, c := range candidates(content) {
		if out, err := Repair(c); err == nil {
			return out, nil
		}
	}
	return "", ErrUnrecoverable
}

func candidates(content string) []string {
	var out []string
	if fenced, ok := fencedBlock(content); ok {
		out = append(out, fenced)
	}
	if start := strings.IndexByte(content, '{'); start >= 0 {
		if end := strings.LastIndexByte(content, '}'); end > start {
			out = append(out, content[start:end+1])
		}
		out = append(out, content[start:])
	}
	return append(out, content)
}

// fencedBlock returns the body of the first ``` block. An unclosed fence
// yields the rest of the content.
func fencedBlock(content string) (string, bool) {
	start := strings.Index(content, "```")
	if start < 0 {
		return "", false
	}
	body := content[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		// language tag such as ```json
		if tag := strings.TrimSpace(body[:nl]); !strings.ContainsAny(tag, "{[") {
			body = body[nl+1:]
		}
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body), true
}
