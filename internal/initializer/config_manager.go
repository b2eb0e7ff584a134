package initializer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/apps78/cotune-bridge/internal/config"
	"gopkg.in/yaml.v3"
)

// ConfigManager loads and saves the bridge configuration file
type ConfigManager interface {
	LoadConfig() (config.Config, error)
	SaveConfig(config.Config) error
	ConfigExists() bool
	Path() string
}

// DefaultConfigManager implements ConfigManager with real file operations
type DefaultConfigManager struct {
	configFilePath string
}

// NewDefaultConfigManager returns a manager bound to the given YAML file
func NewDefaultConfigManager(configFilePath string) *DefaultConfigManager {
	return &DefaultConfigManager{configFilePath: configFilePath}
}

// Path returns the configuration file location
func (cm *DefaultConfigManager) Path() string {
	return cm.configFilePath
}

// LoadConfig loads the existing configuration or creates and loads default config if not found.
// Fields missing from the file are filled with defaults and the result is validated.
func (cm *DefaultConfigManager) LoadConfig() (config.Config, error) {
	defaultConfig := config.Config{}.Default()

	if cm.configFilePath == "" {
		return defaultConfig, fmt.Errorf("config file path not set")
	}

	if !cm.ConfigExists() {
		if err := cm.SaveConfig(defaultConfig); err != nil {
			return config.Config{}, fmt.Errorf("failed to save default config: %w", err)
		}
		return defaultConfig, nil
	}

	configFile, err := os.ReadFile(cm.configFilePath)
	if err != nil {
		return defaultConfig, fmt.Errorf("failed to read config file: %w", err)
	}

	if len(configFile) == 0 {
		if err := cm.SaveConfig(defaultConfig); err != nil {
			return config.Config{}, fmt.Errorf("failed to save default config to empty file: %w", err)
		}
		return defaultConfig, nil
	}

	var cfg config.Config
	if err := yaml.Unmarshal(configFile, &cfg); err != nil {
		return defaultConfig, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg = cfg.FillDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config file %s: %w", cm.configFilePath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to disk
func (cm *DefaultConfigManager) SaveConfig(cfg config.Config) error {
	if cm.configFilePath == "" {
		return fmt.Errorf("config file path not set")
	}

	if err := os.MkdirAll(filepath.Dir(cm.configFilePath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	yamlData, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(cm.configFilePath, yamlData, 0644)
}

// ConfigExists checks if a configuration file already exists
func (cm *DefaultConfigManager) ConfigExists() bool {
	_, err := os.Stat(cm.configFilePath)
	return !os.IsNotExist(err)
}
