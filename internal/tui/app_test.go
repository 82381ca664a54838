package tui

import (
	"context"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeanpaul/memoria/internal/agent"
	"github.com/jeanpaul/memoria/internal/provider"
	"github.com/jeanpaul/memoria/internal/tools"
	"github.com/jeanpaul/memoria/internal/vault"
)

// scriptedProvider replays responses in order, repeating the last one.
type scriptedProvider struct {
	mu      sync.Mutex
	replies []*provider.Response
	n       int
}

func (p *scriptedProvider) next() *provider.Response {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.replies[min(p.n, len(p.replies)-1)]
	p.n++
	return r
}

func (p *scriptedProvider) Complete(ctx context.Context, _ provider.Request) (*provider.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.next(), nil
}

func (p *scriptedProvider) Stream(ctx context.Context, _ provider.Request) (<-chan provider.StreamChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp := p.next()
	ch := make(chan provider.StreamChunk, 2)
	if resp.Content != "" {
		ch <- provider.StreamChunk{Delta: resp.Content}
	}
	ch <- provider.StreamChunk{Done: true, Response: resp}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) Name() string      { return "mock-provider" }
func (p *scriptedProvider) ModelName() string { return "mock-model" }
func (p *scriptedProvider) Models(context.Context) ([]string, error) {
	return []string{"mock-model"}, nil
}

func newTestModel(t *testing.T, replies ...*provider.Response) (Model, *vault.Vault) {
	t.Helper()
	if len(replies) == 0 {
		replies = []*provider.Response{{Content: "ok"}}
	}
	v, err := vault.New(t.TempDir(), "")
	require.NoError(t, err)
	require.NoError(t, v.EnsureStructure())

	prov := &scriptedProvider{replies: replies}
	reg := tools.NewMemoryRegistry(v, nil)
	loop := agent.NewLoop(prov, agent.Limits{}, nil)
	sess, err := agent.NewSession(loop, reg, v, agent.SessionOptions{}, nil)
	require.NoError(t, err)

	m := NewModel(Options{
		Session:      sess,
		Consolidator: agent.NewConsolidator(loop, v, reg, agent.ConsolidationOptions{}, nil),
		Vault:        v,
		ModelName:    "mock-model",
		DefaultSave:  t.TempDir() + "/session.md",
	})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return updated.(Model), v
}

func submit(t *testing.T, m Model, input string) (Model, tea.Cmd) {
	t.Helper()
	m.textarea.SetValue(input)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return updated.(Model), cmd
}

// drive feeds a command's messages back into the model until nothing is
// left to run.
func drive(t *testing.T, m Model, cmd tea.Cmd) (Model, []tea.Msg) {
	t.Helper()
	var seen []tea.Msg
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		msg := c()
		if batch, ok := msg.(tea.BatchMsg); ok {
			queue = append(queue, batch...)
			continue
		}
		if msg == nil {
			continue
		}
		seen = append(seen, msg)
		if _, ok := msg.(tea.QuitMsg); ok {
			continue
		}
		updated, next := m.Update(msg)
		m = updated.(Model)
		queue = append(queue, next)
	}
	return m, seen
}

func lastMessage(m Model, role string) string {
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].role == role {
			return m.messages[i].content
		}
	}
	return ""
}

func TestMenuOpensOnSlash(t *testing.T) {
	m, _ := newTestModel(t)
	assert.False(t, m.menu.active)

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'/'}})
	m = updated.(Model)
	require.True(t, m.menu.active)
	assert.Contains(t, m.View(), "/notes")
}

func TestMenuSelectionFillsInput(t *testing.T) {
	m, _ := newTestModel(t)
	m.menu.Open()

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	assert.False(t, m.menu.active)
	assert.True(t, strings.HasPrefix(m.textarea.Value(), "/help"))
}

func TestSlashCore(t *testing.T) {
	m, v := newTestModel(t)
	_, err := v.WriteCore("- Name: Sam")
	require.NoError(t, err)

	m, cmd := submit(t, m, "/core")
	assert.Nil(t, cmd)
	assert.Contains(t, lastMessage(m, "assistant"), "- Name: Sam")
	assert.Contains(t, lastMessage(m, "assistant"), "/500 tokens")
}

func TestSlashNotesAndTokens(t *testing.T) {
	m, v := newTestModel(t)
	_, err := v.CreateNote("Cars", "Likes old Volvos.", "topics", nil)
	require.NoError(t, err)

	m, _ = submit(t, m, "/notes topics")
	assert.Contains(t, lastMessage(m, "assistant"), "topics/Cars.md")

	m, _ = submit(t, m, "/tokens")
	assert.Contains(t, lastMessage(m, "system"), "1 messages, 0 turns")
}

func TestUnknownSlashCommand(t *testing.T) {
	m, _ := newTestModel(t)
	m, _ = submit(t, m, "/compact")
	assert.Contains(t, lastMessage(m, "error"), "Unknown command: /compact")
}

func TestTurnShowsToolPanelAndReply(t *testing.T) {
	m, _ := newTestModel(t,
		&provider.Response{ToolCalls: []provider.ToolCall{{ID: "c1", Name: "read_core_memory", Args: "{}"}}},
		&provider.Response{Content: "You told me about **Biscuit**."},
	)

	m, cmd := submit(t, m, "what do you know about my dog?")
	require.NotNil(t, cmd)
	assert.True(t, m.thinking)

	m, _ = drive(t, m, cmd)
	assert.False(t, m.thinking)
	assert.Contains(t, lastMessage(m, "tool"), "recall core")
	assert.Contains(t, lastMessage(m, "tool_result"), "Core memory is empty")
	assert.Equal(t, "You told me about **Biscuit**.", lastMessage(m, "assistant"))
	assert.Equal(t, 1, m.session.Turns())
}

func TestQuitConsolidatesThenExits(t *testing.T) {
	m, _ := newTestModel(t, &provider.Response{Content: "Nothing to consolidate."})

	m, cmd := submit(t, m, "quit")
	require.NotNil(t, cmd)
	assert.True(t, m.consolidating)

	m, seen := drive(t, m, cmd)
	require.NotEmpty(t, seen)
	_, quit := seen[len(seen)-1].(tea.QuitMsg)
	assert.True(t, quit)

	require.NotNil(t, m.Report())
	assert.True(t, m.Report().OK())
	assert.Contains(t, lastMessage(m, "status"), "memory consolidated")
}

func TestCtrlCDuringTurnCancelsFirst(t *testing.T) {
	m, _ := newTestModel(t)
	canceled := false
	m.thinking = true
	m.cancelTurn = func() { canceled = true }

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = updated.(Model)
	assert.True(t, canceled)
	assert.Nil(t, cmd)
	assert.False(t, m.consolidating)
	assert.Equal(t, "Stopping...", lastMessage(m, "system"))
}

func TestToolResultPreviewIsCapped(t *testing.T) {
	out := renderToolBlock("hdr", strings.Repeat("x", 500))
	assert.Equal(t, resultPreviewLen, strings.Count(out, "x"))
}

func TestHeaderRendering(t *testing.T) {
	m, _ := newTestModel(t)
	view := m.View()
	assert.Contains(t, view, "mock-model")
	assert.Contains(t, view, "> ")
}
