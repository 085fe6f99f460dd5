// Package config loads the helmsman configuration from a YAML file and the
// environment. File values override the built-in defaults and environment
// variables override both. API keys are read from the environment only and
// never from the file.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/seaborne/helmsman/agent"
)

// Log controls logger construction in the CLI.
type Log struct {
	Level  string `yaml:"level" env:"HELMSMAN_LOG_LEVEL"`
	Format string `yaml:"format" env:"HELMSMAN_LOG_FORMAT"` // console or json
}

// Agent is one named agent profile entry.
type Agent struct {
	Name     string   `yaml:"name"`
	Provider string   `yaml:"provider"`
	Model    string   `yaml:"model"`
	Prompt   string   `yaml:"prompt"`
	Tools    []string `yaml:"tools"`
	Gated    []string `yaml:"gated"`
}

// Config is the full helmsman configuration.
type Config struct {
	Provider      string  `yaml:"provider" env:"HELMSMAN_PROVIDER"`
	Model         string  `yaml:"model" env:"HELMSMAN_MODEL"`
	BaseURL       string  `yaml:"base_url" env:"HELMSMAN_BASE_URL"`
	APIKey        string  `yaml:"-" env:"HELMSMAN_API_KEY"`
	Temperature   float64 `yaml:"temperature" env:"HELMSMAN_TEMPERATURE"`
	MaxIterations int     `yaml:"max_iterations" env:"HELMSMAN_MAX_ITERATIONS"`
	DefaultAgent  string  `yaml:"default_agent" env:"HELMSMAN_DEFAULT_AGENT"`
	DataDir       string  `yaml:"data_dir" env:"HELMSMAN_DATA_DIR"`
	SearchURL     string  `yaml:"search_url" env:"HELMSMAN_SEARCH_URL"`

	RestrictedPaths []string `yaml:"restricted_paths"`
	Log             Log      `yaml:"log"`
	Agents          []Agent  `yaml:"agents"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Provider:      "openai",
		Model:         "gpt-4o-mini",
		BaseURL:       "https://api.openai.com/v1",
		Temperature:   0.1,
		MaxIterations: 10,
		DefaultAgent:  "assistant",
		DataDir:       ".helmsman",
		Log: Log{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the config file at path, overlaying it onto the defaults and
// then applying environment overrides. A missing file is not an error; the
// defaults plus environment apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall through to defaults
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("apply environment overrides: %w", err)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1, got %d", c.MaxIterations)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be in [0, 2], got %g", c.Temperature)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

// Profiles converts the configured agent entries into a profile table.
// Entries with no provider or model inherit the top-level values. When no
// agents are configured a single general-purpose assistant is provided.
func (c Config) Profiles() *agent.ProfileTable {
	entries := c.Agents
	if len(entries) == 0 {
		entries = []Agent{{
			Name:   "assistant",
			Prompt: defaultAssistantPrompt,
			Gated:  []string{"write_file", "memory_save"},
		}}
	}

	profiles := make([]agent.Profile, 0, len(entries))
	for _, e := range entries {
		p := agent.Profile{
			Name:       e.Name,
			Provider:   e.Provider,
			Model:      e.Model,
			BasePrompt: e.Prompt,
			Tools:      e.Tools,
			Gated:      e.Gated,
		}
		if p.Provider == "" {
			p.Provider = c.Provider
		}
		if p.Model == "" {
			p.Model = c.Model
		}
		if p.BasePrompt == "" {
			p.BasePrompt = defaultAssistantPrompt
		}
		profiles = append(profiles, p)
	}
	return agent.NewProfileTable(profiles...)
}

const defaultAssistantPrompt = `You are a capable general-purpose assistant.
Use the available tools when they help answer the request, and answer
directly when they do not. Be concise and accurate.`
