package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

const (
	configDirName = "web-analysis"
	defaultConfig = ".config"
	historyFile   = "history.db"

	// EndpointEnv overrides the configured endpoint.
	EndpointEnv = "WEB_ANALYSIS_ENDPOINT"
)

var configFiles = []string{
	"config.yaml",
	"config.yml",
}

// Config represents the structure of the configuration file used by the application.
type Config struct {
	Endpoint string        `yaml:"endpoint" default:"http://localhost:8000/analyze"`
	Timeout  time.Duration `yaml:"timeout"`
	Render   Render        `yaml:"render"`
	History  History       `yaml:"history"`
	Log      Log           `yaml:"log"`
}

// Render controls how answers are printed.
type Render struct {
	// Format is "markdown" or "plain".
	Format string `yaml:"format" default:"markdown"`
	// Theme is a glamour style name, or "auto" to follow the terminal.
	Theme string `yaml:"theme" default:"auto"`
	Wrap  int    `yaml:"wrap" default:"120"`
}

type History struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path"`
	Limit   int    `yaml:"limit" default:"20"`
}

type Log struct {
	Level string `yaml:"level" default:"warn"`
}

// configResult is a struct used to return the configuration and any error that occurs during loading.
type configResult struct {
	config *Config
	err    error
}

// newDefaultConfig returns a configuration with every default applied.
func newDefaultConfig(configDir string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}
	cfg.History.Path = filepath.Join(configDir, historyFile)
	return cfg, nil
}

// Dir retrieves the path to the configuration directory based on the XDG_CONFIG_HOME environment variable.
func Dir() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		configHome = filepath.Join(home, defaultConfig)
	}

	return filepath.Join(configHome, configDirName), nil
}

// tryLoadConfig attempts to load a configuration file on top of the defaults.
func tryLoadConfig(path, configDir string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := newDefaultConfig(configDir)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.History.Path != "" && !filepath.IsAbs(cfg.History.Path) {
		cfg.History.Path = filepath.Join(configDir, cfg.History.Path)
	}

	return cfg, nil
}

// LoadConfig loads the configuration from the user's home directory, with a timeout.
func LoadConfig(ctx context.Context) (*Config, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result := make(chan configResult, 1)

	go func() {
		cfg, err := loadConfigFiles(ctx)
		result <- configResult{config: cfg, err: err}
	}()

	done := ctx.Done()
	select {
	case <-done:
		return nil, ctx.Err()
	case r := <-result:
		if r.err != nil {
			return nil, r.err
		}
		applyEnv(r.config)
		return r.config, nil
	}
}

// applyEnv lets the environment override file settings.
func applyEnv(cfg *Config) {
	if endpoint := os.Getenv(EndpointEnv); endpoint != "" {
		cfg.Endpoint = endpoint
	}
}

// loadConfigFiles loads configuration files from the user's home directory.
func loadConfigFiles(ctx context.Context) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error before loading config: %w", err)
	}

	configDir, err := Dir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}

	// Return default config early if directory doesn't exist
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return newDefaultConfig(configDir)
	}

	for _, filename := range configFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cfg, err := tryLoadConfig(filepath.Join(configDir, filename), configDir)
		if err == nil {
			return cfg, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config from %s: %w", filename, err)
		}
	}

	return newDefaultConfig(configDir)
}
