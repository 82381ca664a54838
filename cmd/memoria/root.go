package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jeanpaul/memoria/internal/headless"
	"github.com/jeanpaul/memoria/internal/tui"
)

// Shared CLI flags
var (
	cfgFile     string
	logLevel    string
	resetMemory bool
	assumeYes   bool
	headlessRun bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "memoria",
		Short: "Memoria - a chat assistant that remembers you",
		Long: `Memoria is a local chat assistant that keeps long-term memory as
Markdown files in an Obsidian vault.

Run 'memoria' to start chatting. On a terminal it opens the chat screen;
with piped input it reads one message per line. Type quit or exit to end
the conversation; memory is consolidated before it closes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat()
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.config/memoria/config.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")

	root.Flags().BoolVar(&resetMemory, "reset-memory", false, "delete all memory and start fresh")
	root.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")
	root.Flags().BoolVar(&headlessRun, "headless", false, "use the line REPL even on a terminal")

	root.AddCommand(
		searchCmd(),
		notesCmd(),
		doctorCmd(),
		consolidateCmd(),
		initCmd(),
	)
	return root
}

func runChat() error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if resetMemory {
		return runReset(a)
	}

	if err := a.vault.EnsureStructure(); err != nil {
		fmt.Fprintln(os.Stderr, tui.NoticeStyle.Render("memory init warning: "+err.Error()))
	}

	sess, err := a.newSession()
	if err != nil {
		return err
	}
	cons := a.newConsolidator()

	if headlessRun || !isTerminal() {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return headless.Run(ctx, sess, cons, os.Stdin, os.Stdout, os.Stderr)
	}

	m := tui.NewModel(tui.Options{
		Session:      sess,
		Consolidator: cons,
		Vault:        a.vault,
		ModelName:    a.prov.ModelName(),
	})
	final, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion()).Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	if fm, ok := final.(tui.Model); ok && fm.Report() != nil {
		rep := fm.Report()
		style := tui.SuccessStyle
		if !rep.OK() {
			style = tui.NoticeStyle
		}
		fmt.Println(style.Render(rep.String()))
	}
	fmt.Println(tui.BannerStyle.Render("Goodbye!"))
	return nil
}

func runReset(a *app) error {
	if !assumeYes && !confirm("Delete existing memory and start fresh?") {
		fmt.Println("Cancelled.")
		return nil
	}
	if err := a.vault.Reset(); err != nil {
		return err
	}
	if err := a.vault.EnsureStructure(); err != nil {
		return err
	}
	a.logger.Info("memory reset", "dir", a.vault.MemoryDir())
	fmt.Println(tui.SuccessStyle.Render("Memory reset. " + a.vault.MemoryDir() + " was re-created."))
	return nil
}

// confirm asks a yes/no question on stdin; anything but yes declines.
func confirm(question string) bool {
	fmt.Fprintf(os.Stderr, "%s [yes/no] (no): ", question)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), "yes")
}
