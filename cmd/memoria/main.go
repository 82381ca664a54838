package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/jeanpaul/memoria/internal/agent"
	"github.com/jeanpaul/memoria/internal/config"
	"github.com/jeanpaul/memoria/internal/provider"
	"github.com/jeanpaul/memoria/internal/tools"
	"github.com/jeanpaul/memoria/internal/tui"
	"github.com/jeanpaul/memoria/internal/vault"
)

func main() {
	// A missing .env is normal.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fatal("%s", err)
	}
}

// app holds everything a command needs, built once from config.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer
	vault  *vault.Vault
	prov   provider.Provider
	reg    *tools.Registry
	loop   *agent.Loop
}

func loadApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		if _, err := config.ParseLogLevel(logLevel); err != nil {
			return nil, fmt.Errorf("--log-level: %w", err)
		}
		cfg.Log.Level = logLevel
	}

	logger, closer, err := config.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	v, err := vault.New(cfg.Vault.Path, cfg.Vault.MemoryFolder, vault.WithCoreLimit(cfg.Agent.CoreMemoryMaxTokens))
	if err != nil {
		closer.Close()
		return nil, err
	}

	var prov provider.Provider = provider.NewOpenAI(
		cfg.Model.Provider, cfg.Model.BaseURL, cfg.Model.APIKey, cfg.Model.Name,
		provider.WithTimeouts(cfg.Model.ConnectTimeout, cfg.Model.ReadTimeout),
		provider.WithTemperature(cfg.Model.Temperature),
		provider.WithLogger(logger),
	)
	prov = provider.WithRetry(prov, cfg.Model.MaxRetries, cfg.Model.RetryDelay, logger)

	a := &app{
		cfg:    cfg,
		logger: logger,
		closer: closer,
		vault:  v,
		prov:   prov,
		reg:    tools.NewMemoryRegistry(v, logger),
	}
	a.loop = agent.NewLoop(prov, agent.Limits{
		ContextBudget: cfg.Agent.ContextBudget,
		ResultCap:     cfg.Agent.ToolResultCap,
	}, logger)
	logger.Info("memoria starting", "vault", v.Root(), "model", prov.ModelName(), "base_url", cfg.Model.BaseURL)
	return a, nil
}

func (a *app) Close() {
	a.closer.Close()
}

func (a *app) newSession() (*agent.Session, error) {
	return agent.NewSession(a.loop, a.reg, a.vault, agent.SessionOptions{
		MaxIterations: a.cfg.Agent.MaxIterations,
		Dir:           a.cfg.SessionDir,
	}, a.logger)
}

func (a *app) newConsolidator() *agent.Consolidator {
	return agent.NewConsolidator(a.loop, a.vault, a.reg, agent.ConsolidationOptions{
		MaxIterations:        a.cfg.Agent.ConsolidationMaxIterations,
		ObservationThreshold: a.cfg.Agent.ObservationThreshold,
		ObservationKeep:      a.cfg.Agent.ObservationKeep,
	}, a.logger)
}

// isTerminal checks if stdin and stdout are both terminals
func isTerminal() bool {
	for _, f := range []*os.File{os.Stdin, os.Stdout} {
		fi, err := f.Stat()
		if err != nil || fi.Mode()&os.ModeCharDevice == 0 {
			return false
		}
	}
	return true
}

func fatal(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, tui.ErrorStyle.Render("error: "+msg))
	os.Exit(1)
}
