package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Core palette
	Cyan        = lipgloss.Color("#00D9FF")
	Magenta     = lipgloss.Color("#FF10F0")
	BrightGreen = lipgloss.Color("#39FF14")
	Amber       = lipgloss.Color("#FFB000")
	Red         = lipgloss.Color("#FF4136")
	DimCyan     = lipgloss.Color("#0B5566")
	DarkGray    = lipgloss.Color("#1a1a2e")
	MidGray     = lipgloss.Color("#3a3a4e")
	LightGray   = lipgloss.Color("#aaaaaa")
	White       = lipgloss.Color("#e0e0e0")

	UserLabelStyle = lipgloss.NewStyle().
			Foreground(BrightGreen).
			Bold(true)

	UserMsgStyle = lipgloss.NewStyle().
			Foreground(White)

	AssistantLabelStyle = lipgloss.NewStyle().
				Foreground(Cyan).
				Bold(true)

	UserBlockStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(BrightGreen).
			PaddingLeft(1)

	AssistantBlockStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), false, false, false, true).
				BorderForeground(Cyan).
				PaddingLeft(1)

	// Tool call / result panels
	ToolBlockStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Magenta).
			Padding(0, 1).
			MarginLeft(2)

	ToolLabelStyle = lipgloss.NewStyle().
			Foreground(Magenta).
			Bold(true)

	ToolArgsStyle = lipgloss.NewStyle().
			Foreground(LightGray)

	ToolResultStyle = lipgloss.NewStyle().
			Foreground(MidGray)

	SpinnerThinkingStyle = lipgloss.NewStyle().
				Foreground(Cyan)

	SpinnerToolStyle = lipgloss.NewStyle().
				Foreground(Magenta)

	SystemMsgStyle = lipgloss.NewStyle().
			Foreground(LightGray).
			Italic(true)

	NoticeStyle = lipgloss.NewStyle().
			Foreground(Amber).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Red).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(BrightGreen)

	HelpStyle = lipgloss.NewStyle().
			Foreground(DimCyan)

	BannerStyle = lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true)

	HeaderStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(DimCyan)

	InputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Cyan).
			Padding(0, 1)

	MenuBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Magenta).
			Padding(0, 1)
)

const Banner = `
 █▀▄▀█ █▀▀ █▀▄▀█ █▀█ █▀█ █ ▄▀█
 █ ▀ █ ██▄ █ ▀ █ █▄█ █▀▄ █ █▀█`
