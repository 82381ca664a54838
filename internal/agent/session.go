package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeanpaul/memoria/internal/provider"
	"github.com/jeanpaul/memoria/internal/tools"
	"github.com/jeanpaul/memoria/internal/vault"
)

type SessionOptions struct {
	MaxIterations int
	// Dir is where session files are saved. Empty disables saving.
	Dir string
	Now func() time.Time
}

// Session is one chat conversation over a vault.
type Session struct {
	id      string
	started time.Time
	loop    *Loop
	reg     *tools.Registry
	vault   *vault.Vault
	opts    SessionOptions
	logger  *slog.Logger
	history []provider.Message
	turns   int
}

type sessionFile struct {
	ID       string             `json:"id"`
	Started  time.Time          `json:"started"`
	Model    string             `json:"model,omitempty"`
	Messages []provider.Message `json:"messages"`
}

func NewSession(loop *Loop, reg *tools.Registry, v *vault.Vault, opts SessionOptions, logger *slog.Logger) (*Session, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		id:      uuid.NewString(),
		started: opts.Now(),
		loop:    loop,
		reg:     reg,
		vault:   v,
		opts:    opts,
	}
	s.logger = logger.With("session", s.id)

	prompt, err := BuildSystemPrompt(v, s.started)
	if err != nil {
		return nil, err
	}
	s.history = []provider.Message{{Role: provider.RoleSystem, Content: prompt}}
	return s, nil
}

func (s *Session) ID() string                   { return s.id }
func (s *Session) Turns() int                   { return s.turns }
func (s *Session) Messages() []provider.Message { return s.history }
func (s *Session) EstimatedTokens() int         { return EstimateTokens(s.history) }

// Send runs one user turn. The history keeps whatever the loop appended,
// even when the turn fails, so the next turn continues from a consistent
// state.
func (s *Session) Send(ctx context.Context, text string, events chan<- Event) (*Result, error) {
	content := text
	if s.turns == 0 {
		core, err := s.vault.ReadCore()
		if err != nil {
			s.logger.Warn("read core memory for first turn", "error", err)
		}
		content = firstTurnMessage(core, text)
	}
	s.turns++

	history := append(s.history, provider.Message{Role: provider.RoleUser, Content: content})
	scope := s.reg.Scoped(tools.ChatTools...)
	res, err := s.loop.Run(ctx, history, scope.ToolDefs(), scope, RunOptions{
		MaxIterations: s.opts.MaxIterations,
		StreamFirst:   true,
	}, events)
	s.history = res.Messages

	if rerr := s.RefreshSystemPrompt(); rerr != nil {
		s.logger.Warn("refresh system prompt", "error", rerr)
	}
	if s.opts.Dir != "" {
		if _, serr := s.Save(); serr != nil {
			s.logger.Warn("save session", "error", serr)
		}
	}
	return res, err
}

// RefreshSystemPrompt rebuilds the system message so it reflects memory
// written during the last turn.
func (s *Session) RefreshSystemPrompt() error {
	prompt, err := BuildSystemPrompt(s.vault, s.opts.Now())
	if err != nil {
		return err
	}
	s.history[0] = provider.Message{Role: provider.RoleSystem, Content: prompt}
	return nil
}

// Save writes the session as JSON to <Dir>/<id>.json.
func (s *Session) Save() (string, error) {
	if s.opts.Dir == "" {
		return "", errors.New("no session directory configured")
	}
	if err := os.MkdirAll(s.opts.Dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.opts.Dir, s.id+".json")
	data, err := json.MarshalIndent(sessionFile{
		ID:       s.id,
		Started:  s.started,
		Model:    s.loop.Provider().ModelName(),
		Messages: s.history,
	}, "", "  ")
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, data, 0o644)
}

// Export writes a readable Markdown transcript. Tool traffic is shown as
// short call and result lines.
func (s *Session) Export(path string) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Memoria session %s\n\n", s.started.Format("2006-01-02 15:04"))
	for _, m := range s.history {
		switch m.Role {
		case provider.RoleSystem:
			continue
		case provider.RoleUser:
			sb.WriteString("## You\n\n")
			sb.WriteString(strings.TrimSpace(m.Content) + "\n\n")
		case provider.RoleAssistant:
			for _, tc := range m.ToolCalls {
				fmt.Fprintf(&sb, "> tool: `%s`\n\n", FormatToolArgs(tc.Name, tc.Args))
			}
			if strings.TrimSpace(m.Content) != "" {
				sb.WriteString("## Memoria\n\n")
				sb.WriteString(strings.TrimSpace(m.Content) + "\n\n")
			}
		case provider.RoleTool:
			fmt.Fprintf(&sb, "> %s: %s\n\n", m.Name, shorten(m.Content, 200))
		}
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

// LoadHistory reads the messages of a saved session file.
func LoadHistory(path string) ([]provider.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f sessionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", filepath.Base(path), err)
	}
	return f.Messages, nil
}
