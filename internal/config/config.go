package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Model      ModelConfig `yaml:"model" mapstructure:"model"`
	Vault      VaultConfig `yaml:"vault" mapstructure:"vault"`
	Agent      AgentConfig `yaml:"agent" mapstructure:"agent"`
	Log        LogConfig   `yaml:"log" mapstructure:"log"`
	SessionDir string      `yaml:"session_dir" mapstructure:"session_dir"`
}

type ModelConfig struct {
	Provider       string        `yaml:"provider" mapstructure:"provider"`
	BaseURL        string        `yaml:"base_url" mapstructure:"base_url"`
	APIKey         string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	Name           string        `yaml:"name" mapstructure:"name"`
	Temperature    float64       `yaml:"temperature" mapstructure:"temperature"`
	MaxRetries     int           `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
}

type VaultConfig struct {
	Path         string `yaml:"path" mapstructure:"path"`
	MemoryFolder string `yaml:"memory_folder" mapstructure:"memory_folder"`
}

type AgentConfig struct {
	MaxIterations              int `yaml:"max_iterations" mapstructure:"max_iterations"`
	ConsolidationMaxIterations int `yaml:"consolidation_max_iterations" mapstructure:"consolidation_max_iterations"`
	ContextBudget              int `yaml:"context_budget" mapstructure:"context_budget"`
	ToolResultCap              int `yaml:"tool_result_cap" mapstructure:"tool_result_cap"`
	CoreMemoryMaxTokens        int `yaml:"core_memory_max_tokens" mapstructure:"core_memory_max_tokens"`
	ObservationThreshold       int `yaml:"observation_threshold" mapstructure:"observation_threshold"`
	ObservationKeep            int `yaml:"observation_keep" mapstructure:"observation_keep"`
}

type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file" mapstructure:"file"`
}

var envVarRe = regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`)

func expandEnv(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "$")
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:       "lmstudio",
			BaseURL:        "http://localhost:1234",
			Name:           "local-model",
			Temperature:    0.7,
			MaxRetries:     2,
			RetryDelay:     2 * time.Second,
			ConnectTimeout: 5 * time.Second,
			ReadTimeout:    120 * time.Second,
		},
		Vault: VaultConfig{MemoryFolder: "AI Memory"},
		Agent: AgentConfig{
			MaxIterations:              10,
			ConsolidationMaxIterations: 25,
			ContextBudget:              24000,
			ToolResultCap:              6000,
			CoreMemoryMaxTokens:        500,
			ObservationThreshold:       30,
			ObservationKeep:            10,
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(Dir(), "memoria.log"),
		},
		SessionDir: filepath.Join(Dir(), "sessions"),
	}
}

// Dir is the per-user configuration directory.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "memoria")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "memoria")
}

// envBindings maps config keys to the environment variables that may set
// them, in priority order. LMSTUDIO_URL and OBSIDIAN_PATH are the names
// existing .env files use.
var envBindings = map[string][]string{
	"model.base_url": {"MEMORIA_MODEL_BASE_URL", "LMSTUDIO_URL"},
	"model.api_key":  {"MEMORIA_MODEL_API_KEY", "LMSTUDIO_API_KEY"},
	"model.name":     {"MEMORIA_MODEL_NAME", "LMSTUDIO_MODEL"},
	"vault.path":     {"MEMORIA_VAULT_PATH", "OBSIDIAN_PATH"},
	"log.level":      {"MEMORIA_LOG_LEVEL"},
	"log.file":       {"MEMORIA_LOG_FILE"},
}

// Load reads config.yaml (explicit path, or ., $XDG_CONFIG_HOME/memoria,
// ~/.config/memoria), overlays MEMORIA_* environment variables and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath(Dir())
	}

	v.SetEnvPrefix("MEMORIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.Model.APIKey = expandEnv(cfg.Model.APIKey)
	cfg.Model.BaseURL = expandEnv(cfg.Model.BaseURL)
	cfg.Vault.Path = expandHome(expandEnv(cfg.Vault.Path))
	cfg.Log.File = expandHome(expandEnv(cfg.Log.File))
	cfg.SessionDir = expandHome(expandEnv(cfg.SessionDir))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors and fills zero limits with
// defaults.
func (c *Config) Validate() error {
	if c.Model.BaseURL == "" {
		return fmt.Errorf("config: model.base_url is required (or set LMSTUDIO_URL)")
	}
	if c.Vault.Path == "" {
		return fmt.Errorf("config: vault.path is required (or set OBSIDIAN_PATH)")
	}
	if !filepath.IsAbs(c.Vault.Path) {
		abs, err := filepath.Abs(c.Vault.Path)
		if err != nil {
			return fmt.Errorf("config: vault.path: %w", err)
		}
		c.Vault.Path = abs
	}
	if c.Vault.MemoryFolder == "" || filepath.IsAbs(c.Vault.MemoryFolder) || strings.Contains(c.Vault.MemoryFolder, "..") {
		return fmt.Errorf("config: vault.memory_folder %q must be a relative folder name", c.Vault.MemoryFolder)
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	if c.Model.MaxRetries < 0 {
		return fmt.Errorf("config: model.max_retries must be >= 0")
	}

	d := DefaultConfig()
	if c.Agent.MaxIterations < 1 {
		c.Agent.MaxIterations = d.Agent.MaxIterations
	}
	if c.Agent.ConsolidationMaxIterations < 1 {
		c.Agent.ConsolidationMaxIterations = d.Agent.ConsolidationMaxIterations
	}
	if c.Agent.ContextBudget < 1 {
		c.Agent.ContextBudget = d.Agent.ContextBudget
	}
	if c.Agent.ToolResultCap < 1 {
		c.Agent.ToolResultCap = d.Agent.ToolResultCap
	}
	if c.Agent.CoreMemoryMaxTokens < 1 {
		c.Agent.CoreMemoryMaxTokens = d.Agent.CoreMemoryMaxTokens
	}
	if c.Agent.ObservationThreshold < 1 {
		c.Agent.ObservationThreshold = d.Agent.ObservationThreshold
	}
	if c.Agent.ObservationKeep < 0 || c.Agent.ObservationKeep >= c.Agent.ObservationThreshold {
		c.Agent.ObservationKeep = min(d.Agent.ObservationKeep, c.Agent.ObservationThreshold-1)
	}
	return nil
}
