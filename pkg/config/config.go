package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig                 `yaml:"app"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Loop      LoopConfig                `yaml:"loop"`
	Verify    VerifyConfig              `yaml:"verify"`
	Output    OutputConfig              `yaml:"output"`
}

type AppConfig struct {
	Name      string `yaml:"name"`
	RunsDir   string `yaml:"runs_dir"`
	Workspace string `yaml:"workspace"`
	IndexPath string `yaml:"index_path"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url,omitempty"`
	Enabled bool   `yaml:"enabled"`
}

type LoopConfig struct {
	MaxIterations         int `yaml:"max_iterations"`
	EarlyExitSources      int `yaml:"early_exit_sources"`
	EarlyExitMinIteration int `yaml:"early_exit_min_iteration"`
}

type VerifyConfig struct {
	MinSources   int `yaml:"min_sources"`
	MinWordCount int `yaml:"min_word_count"`
}

type OutputConfig struct {
	Format string `yaml:"format"`
	Theme  string `yaml:"theme"`
}

// Default returns a config with the stock thresholds applied.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:      "ferret",
			RunsDir:   "runs",
			Workspace: "workspace",
			IndexPath: "runs/index.db",
		},
		Loop: LoopConfig{
			MaxIterations:         20,
			EarlyExitSources:      5,
			EarlyExitMinIteration: 5,
		},
		Verify: VerifyConfig{
			MinSources:   5,
			MinWordCount: 800,
		},
		Output: OutputConfig{
			Format: "pdf",
			Theme:  "default",
		},
	}
}

// LoadConfig reads a YAML config file, filling unset loop and verify
// thresholds from Default.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.App.RunsDir == "" {
		c.App.RunsDir = d.App.RunsDir
	}
	if c.App.Workspace == "" {
		c.App.Workspace = d.App.Workspace
	}
	if c.App.IndexPath == "" {
		c.App.IndexPath = d.App.IndexPath
	}
	if c.Loop.MaxIterations <= 0 {
		c.Loop.MaxIterations = d.Loop.MaxIterations
	}
	if c.Loop.EarlyExitSources <= 0 {
		c.Loop.EarlyExitSources = d.Loop.EarlyExitSources
	}
	if c.Loop.EarlyExitMinIteration <= 0 {
		c.Loop.EarlyExitMinIteration = d.Loop.EarlyExitMinIteration
	}
	if c.Verify.MinSources <= 0 {
		c.Verify.MinSources = d.Verify.MinSources
	}
	if c.Verify.MinWordCount <= 0 {
		c.Verify.MinWordCount = d.Verify.MinWordCount
	}
	if c.Output.Format == "" {
		c.Output.Format = d.Output.Format
	}
	if c.Output.Theme == "" {
		c.Output.Theme = d.Output.Theme
	}
}

// GetDefaultProvider returns the first enabled provider.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	for name, p := range c.Providers {
		if p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}
