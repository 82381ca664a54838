package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/jeanpaul/memoria/internal/agent"
	"github.com/jeanpaul/memoria/internal/config"
	"github.com/jeanpaul/memoria/internal/health"
	"github.com/jeanpaul/memoria/internal/tools"
	"github.com/jeanpaul/memoria/internal/tui"
)

// printMarkdown renders tool-style Markdown output on a terminal and
// leaves it plain for pipes.
func printMarkdown(s string) {
	if isTerminal() {
		if out, err := glamour.Render(s, "auto"); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Println(s)
}

func searchCmd() *cobra.Command {
	var (
		tags   []string
		folder string
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search vault notes without the model",
		Example: `  memoria search "car insurance"
  memoria search garden --tag home --folder Projects`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			query := strings.Join(args, " ")
			res, err := a.vault.Search(query, tags, folder)
			if err != nil {
				return err
			}
			printMarkdown(tools.FormatSearch(query, tags, folder, res))
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "only notes with this tag (repeatable)")
	cmd.Flags().StringVarP(&folder, "folder", "f", "", "limit the search to a vault folder")
	return cmd
}

func notesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notes [subfolder]",
		Short: "List memory notes, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			sub := ""
			if len(args) == 1 {
				sub = args[0]
			}
			notes, err := a.vault.ListNotes(sub)
			if err != nil {
				return err
			}
			printMarkdown(tools.FormatNotes(notes))
			return nil
		},
	}
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the vault and the model endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Println(tui.BannerStyle.Render("  Memoria Health Check"))
			fmt.Println()

			failed := 0
			for _, s := range health.Run(cmd.Context(), a.vault, a.prov) {
				fmt.Printf("  %s %-7s ", tui.ToolLabelStyle.Render("●"), tui.UserLabelStyle.Render(s.Name))
				if !s.OK {
					failed++
					fmt.Println(tui.ErrorStyle.Render("✗ " + s.Detail))
					continue
				}
				line := tui.SuccessStyle.Render("✓ " + s.Detail)
				if s.Latency > 0 {
					line += " " + tui.HelpStyle.Render(s.Latency.Round(time.Millisecond).String())
				}
				fmt.Println(line)
			}

			fmt.Println()
			if failed > 0 {
				fmt.Println(tui.HelpStyle.Render("  Start LM Studio's server, or set model.base_url / LMSTUDIO_URL."))
				return fmt.Errorf("%d check(s) failed", failed)
			}
			fmt.Println(tui.SuccessStyle.Render("  All checks passed."))
			return nil
		},
	}
}

func consolidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consolidate <session.json>",
		Short: "Run memory consolidation over a saved session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			history, err := agent.LoadHistory(args[0])
			if err != nil {
				return err
			}
			if err := a.vault.EnsureStructure(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintln(os.Stderr, tui.SystemMsgStyle.Render("Consolidating memory..."))
			rep := a.newConsolidator().Consolidate(ctx, history)
			if !rep.OK() {
				return errors.New(rep.String())
			}
			fmt.Println(tui.SuccessStyle.Render(rep.String()))
			return nil
		},
	}
}

func initCmd() *cobra.Command {
	var (
		vaultPath string
		force     bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if vaultPath != "" {
				abs, err := filepath.Abs(vaultPath)
				if err != nil {
					return err
				}
				cfg.Vault.Path = abs
			}
			path := cfgFile
			if path == "" {
				path = config.DefaultPath()
			}
			if err := config.Save(cfg, path, force); err != nil {
				return err
			}
			fmt.Println(tui.SuccessStyle.Render("Wrote " + path))
			if cfg.Vault.Path == "" {
				fmt.Println(tui.HelpStyle.Render("Set vault.path (or OBSIDIAN_PATH) before chatting."))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&vaultPath, "vault", "", "path to the Obsidian vault")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}
