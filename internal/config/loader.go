package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	ConfigFileName  = "config.yaml"
	ConfigDirName   = ".roster"
	GlobalConfigDir = ".config/roster"
)

// Loader handles configuration loading and discovery
type Loader struct {
	startDir  string
	explicit  string
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a new config loader starting from the given directory
func NewLoader(startDir string) *Loader {
	if startDir == "" {
		var err error
		startDir, err = os.Getwd()
		if err != nil {
			startDir = "."
		}
	}

	return &Loader{
		startDir:  startDir,
		lookupEnv: os.LookupEnv,
	}
}

// WithFile makes the loader read the given file instead of searching for one
func (l *Loader) WithFile(path string) *Loader {
	l.explicit = path
	return l
}

// Load loads the configuration with environment variable overrides
func (l *Loader) Load() (*Config, error) {
	configPath, err := l.FindConfigFile()
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	config, err := l.loadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	if err := l.applyEnvOverrides(config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// FindConfigFile returns the explicit file if one was given, otherwise it searches
// upward from the start directory and finally the global config directory
func (l *Loader) FindConfigFile() (string, error) {
	if l.explicit != "" {
		if _, err := os.Stat(l.explicit); err != nil {
			return "", err
		}
		return l.explicit, nil
	}

	dir, err := filepath.Abs(l.startDir)
	if err != nil {
		dir = l.startDir
	}

	for {
		configPath := filepath.Join(dir, ConfigDirName, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		globalConfig := filepath.Join(homeDir, GlobalConfigDir, ConfigFileName)
		if _, err := os.Stat(globalConfig); err == nil {
			return globalConfig, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched upward from %s)", l.startDir)
}

// loadFromFile loads configuration from a YAML file on top of the defaults
func (l *Loader) loadFromFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	config.Path = configPath

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// The variable names match the ones the scheduled CI job exports.
func (l *Loader) applyEnvOverrides(config *Config) error {
	if v, ok := l.lookupEnv("HR_USERNAME"); ok && v != "" {
		config.Auth.Username = v
	}
	if v, ok := l.lookupEnv("HR_PASSWORD"); ok && v != "" {
		config.Auth.Password = v
	}
	if v, ok := l.lookupEnv("SPREADSHEET_ID"); ok && v != "" {
		config.Sheets.SpreadsheetID = v
	}
	if v, ok := l.lookupEnv("GOOGLE_CREDENTIALS_JSON"); ok && v != "" {
		config.Sheets.CredentialsJSON = v
	}
	if v, ok := l.lookupEnv("ROSTER_BASE_URL"); ok && v != "" {
		config.Site.BaseURL = v
	}
	if v, ok := l.lookupEnv("ROSTER_HEADLESS"); ok && v != "" {
		headless, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ROSTER_HEADLESS: %w", err)
		}
		config.Site.Headless = headless
	}

	return nil
}

// Save writes the configuration to the given path
func (l *Loader) Save(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the path where a config file should be created
func (l *Loader) GetConfigPath() string {
	return filepath.Join(l.startDir, ConfigDirName, ConfigFileName)
}

// ResolvePath resolves a path from the config relative to the project root,
// i.e. the directory holding the .roster folder
func (c *Config) ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) || c.Path == "" {
		return path
	}
	root := filepath.Dir(c.Path)
	if filepath.Base(root) == ConfigDirName {
		root = filepath.Dir(root)
	}
	return filepath.Join(root, path)
}
