package tui

import (
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type slashCommand struct {
	name, usage, desc string
}

// slashCommands backs both /help and the popup menu.
var slashCommands = []slashCommand{
	{"/help", "/help", "Show available commands"},
	{"/core", "/core", "Show core memory"},
	{"/notes", "/notes [subfolder]", "List memory notes"},
	{"/tokens", "/tokens", "Estimated conversation size"},
	{"/save", "/save [path]", "Export the conversation as Markdown"},
	{"/quit", "/quit", "Consolidate memory and exit"},
}

type item struct {
	title, desc string
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.title }

// MenuModel is the slash command popup opened by typing / on an empty
// input line.
type MenuModel struct {
	list   list.Model
	active bool
}

const menuHeight = 16

func NewMenuModel() MenuModel {
	items := make([]list.Item, 0, len(slashCommands))
	for _, c := range slashCommands {
		items = append(items, item{title: c.name, desc: c.desc})
	}

	d := list.NewDefaultDelegate()
	d.Styles.SelectedTitle = lipgloss.NewStyle().
		Foreground(Cyan).
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(Cyan).
		PaddingLeft(1)
	d.Styles.SelectedDesc = d.Styles.SelectedTitle.Foreground(DimCyan)

	l := list.New(items, d, 40, menuHeight-2)
	l.Title = "Commands"
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = lipgloss.NewStyle().Foreground(Magenta).Bold(true).MarginLeft(2)

	return MenuModel{list: l}
}

func (m *MenuModel) Open() {
	m.active = true
	m.list.ResetSelected()
	m.list.ResetFilter()
}

// Selected returns the highlighted command, or "" when nothing matches.
func (m MenuModel) Selected() string {
	if it, ok := m.list.SelectedItem().(item); ok {
		return it.title
	}
	return ""
}

func (m MenuModel) Update(msg tea.Msg) (MenuModel, tea.Cmd) {
	if !m.active {
		return m, nil
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m MenuModel) View() string {
	if !m.active {
		return ""
	}
	return MenuBoxStyle.Render(m.list.View())
}
