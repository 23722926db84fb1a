package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config describes the top-level application configuration loaded from YAML and ENV.
type Config struct {
	Version     string                    `mapstructure:"version"`
	Providers   map[string]ProviderConfig `mapstructure:"providers"`
	Models      map[string]ModelConfig    `mapstructure:"models"`
	Strategy    StrategyConfig            `mapstructure:"strategy"`
	Agent       AgentConfig               `mapstructure:"agent"`
	Synthesizer SynthesizerConfig         `mapstructure:"synthesizer"`
	Sandbox     SandboxConfig             `mapstructure:"sandbox"`
	Paths       PathsConfig               `mapstructure:"paths"`
	Storage     StorageConfig             `mapstructure:"storage"`
	Logging     LoggingConfig             `mapstructure:"logging"`
	Server      ServerConfig              `mapstructure:"server"`
}

// ProviderConfig represents model provider configuration such as OpenAI, Ollama, or custom gateways.
type ProviderConfig struct {
	Type    string        `mapstructure:"type"`     // openai, openrouter, ollama, vllm, lmstudio, custom
	BaseURL string        `mapstructure:"base_url"` // API base URL
	APIKey  string        `mapstructure:"api_key"`  // optional API key
	Timeout time.Duration `mapstructure:"timeout"`  // request timeout
}

// ModelConfig binds a logical model name to a provider entry and model parameters.
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Default     bool    `mapstructure:"default"`
}

// AgentConfig describes orchestration loop runtime parameters.
type AgentConfig struct {
	MaxToolRounds   int  `mapstructure:"max_tool_rounds"`   // model round trips per query
	Stream          bool `mapstructure:"stream"`            // stream model responses
	PreviewRows     int  `mapstructure:"preview_rows"`      // rows returned by get_data_preview
	LoadPreviewRows int  `mapstructure:"load_preview_rows"` // rows returned by load_dataset
}

// SynthesizerConfig controls analysis script generation.
type SynthesizerConfig struct {
	MaxOutputTokens int `mapstructure:"max_output_tokens"`
}

// SandboxConfig controls the isolated script execution environment.
type SandboxConfig struct {
	Python                string `mapstructure:"python"`                  // interpreter used to provision environments
	Persistent            bool   `mapstructure:"persistent"`              // reuse a stable environment directory
	EnvDir                string `mapstructure:"env_dir"`                 // stable directory for persistent mode
	InstallTimeoutSeconds int    `mapstructure:"install_timeout_seconds"` // 0 disables the bound
	ExecTimeoutSeconds    int    `mapstructure:"exec_timeout_seconds"`    // 0 disables the bound
}

// PathsConfig locates the filesystem collaborators.
type PathsConfig struct {
	DatasetsDir string `mapstructure:"datasets_dir"`
	ScriptsDir  string `mapstructure:"scripts_dir"`
	AssetsDir   string `mapstructure:"assets_dir"`
}

// StorageConfig describes conversation persistence.
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LoggingConfig controls logger behaviour.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

// ServerConfig describes daemon settings.
type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	Transport      string `mapstructure:"transport"` // connect or ndjson
}

// keyDelim separates nested config keys. Viper's default "." would split
// model ids like "gpt-4.1-mini" when they are used as map keys.
const keyDelim = "::"

// Load reads configuration from the provided path or searches for finagent.yaml.
// Environment variables override file values (prefix: FINAGENT_, section
// separators replaced with underscores). A missing config file is tolerated
// when no explicit path was given; defaults plus environment then apply.
func Load(path string) (*Config, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelim))
	setDefaults(v)

	v.SetEnvPrefix("FINAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelim, "_"))
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigName("finagent")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyEnvKeys(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvKeys fills provider API keys from conventional environment variables
// when the config leaves them empty. Nested map keys are not reachable through
// viper's AutomaticEnv, so this is resolved explicitly.
func applyEnvKeys(cfg *Config) {
	for name, p := range cfg.Providers {
		if p.APIKey != "" {
			continue
		}
		switch p.Type {
		case "openai", "openrouter", "vllm", "lmstudio", "custom":
			if key := os.Getenv("OPENAI_API_KEY"); key != "" {
				p.APIKey = key
				cfg.Providers[name] = p
			}
		}
	}
}

// setDefaults populates sensible defaults for optional fields. Keys use
// keyDelim, never ".", so model ids with dots survive as map keys.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging::level", "info")
	v.SetDefault("logging::format", "console")

	v.SetDefault("providers", map[string]any{
		"openai": map[string]any{
			"type":     "openai",
			"base_url": "https://api.openai.com",
			"timeout":  "120s",
		},
	})
	v.SetDefault("models", map[string]any{
		"gpt-4.1-mini": map[string]any{
			"provider": "openai",
			"model":    "gpt-4.1-mini",
			"default":  true,
		},
	})

	v.SetDefault("strategy::chat_model", "")
	v.SetDefault("strategy::script_model", "")
	v.SetDefault("strategy::fallbacks", []string{})

	v.SetDefault("agent::max_tool_rounds", 5)
	v.SetDefault("agent::stream", false)
	v.SetDefault("agent::preview_rows", 5)
	v.SetDefault("agent::load_preview_rows", 10)

	v.SetDefault("synthesizer::max_output_tokens", 1000)

	v.SetDefault("sandbox::python", "python3")
	v.SetDefault("sandbox::persistent", false)
	v.SetDefault("sandbox::env_dir", "")
	v.SetDefault("sandbox::install_timeout_seconds", 600)
	v.SetDefault("sandbox::exec_timeout_seconds", 300)

	v.SetDefault("paths::datasets_dir", "datasets")
	v.SetDefault("paths::scripts_dir", "generated_scripts")
	v.SetDefault("paths::assets_dir", "generated_assets")

	v.SetDefault("storage::db_path", "conversations.db")

	v.SetDefault("server::addr", ":8000")
	v.SetDefault("server::metrics_enabled", true)
	v.SetDefault("server::transport", "connect")
}

// Validate performs basic sanity checks on configuration values.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("at least one provider must be configured")
	}

	if len(c.Models) == 0 {
		return errors.New("at least one model must be defined")
	}

	for name, p := range c.Providers {
		if p.Type == "" {
			return fmt.Errorf("provider %q must define type", name)
		}
	}

	var defaultFound bool
	for name, m := range c.Models {
		if m.Provider == "" {
			return fmt.Errorf("model %q must reference provider", name)
		}

		if _, ok := c.Providers[m.Provider]; !ok {
			return fmt.Errorf("model %q references unknown provider %q", name, m.Provider)
		}

		if m.Temperature < 0 || m.Temperature > 2 {
			return fmt.Errorf("model %q temperature must be within [0,2]", name)
		}

		if m.MaxTokens < 0 {
			return fmt.Errorf("model %q max_tokens cannot be negative", name)
		}

		if m.Default {
			defaultFound = true
		}
	}

	if !defaultFound {
		return errors.New("at least one model should be marked as default")
	}

	if c.Agent.MaxToolRounds <= 0 {
		return errors.New("agent.max_tool_rounds must be > 0")
	}
	if c.Agent.PreviewRows <= 0 {
		return errors.New("agent.preview_rows must be > 0")
	}
	if c.Agent.LoadPreviewRows <= 0 {
		return errors.New("agent.load_preview_rows must be > 0")
	}

	if c.Synthesizer.MaxOutputTokens <= 0 {
		return errors.New("synthesizer.max_output_tokens must be > 0")
	}

	if strings.TrimSpace(c.Sandbox.Python) == "" {
		return errors.New("sandbox.python must be set")
	}
	if c.Sandbox.InstallTimeoutSeconds < 0 {
		return errors.New("sandbox.install_timeout_seconds must be >= 0")
	}
	if c.Sandbox.ExecTimeoutSeconds < 0 {
		return errors.New("sandbox.exec_timeout_seconds must be >= 0")
	}

	for key, dir := range map[string]string{
		"paths.datasets_dir": c.Paths.DatasetsDir,
		"paths.scripts_dir":  c.Paths.ScriptsDir,
		"paths.assets_dir":   c.Paths.AssetsDir,
	} {
		if strings.TrimSpace(dir) == "" {
			return fmt.Errorf("%s must be set", key)
		}
	}

	if strings.TrimSpace(c.Storage.DBPath) == "" {
		return errors.New("storage.db_path must be set")
	}

	for _, modelID := range []string{c.Strategy.ChatModel, c.Strategy.ScriptModel} {
		if strings.TrimSpace(modelID) == "" {
			continue
		}
		if _, ok := c.Models[modelID]; !ok {
			return fmt.Errorf("strategy references unknown model %q", modelID)
		}
	}
	for _, modelID := range c.Strategy.Fallbacks {
		if _, ok := c.Models[modelID]; !ok {
			return fmt.Errorf("strategy fallback references unknown model %q", modelID)
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Server.Transport)) {
	case "", "connect", "ndjson":
	default:
		return fmt.Errorf("server.transport must be one of connect or ndjson, got %q", c.Server.Transport)
	}

	return nil
}
