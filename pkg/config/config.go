/*
Package config manages TOML config for namegram.

Sections map onto the packages they configure: [counting] shapes the
mutable tries, [cache] the file-backed ones, [model] the model directory and
[server]/[cli] the two front ends.
*/
package config

import (
	"os"
	"path/filepath"

	"github.com/bastiangx/namegram/internal/utils"
	"github.com/bastiangx/namegram/pkg/counting"
	"github.com/bastiangx/namegram/pkg/counting/persistent"
	"github.com/bastiangx/namegram/pkg/model"
	"github.com/charmbracelet/log"
)

// Config holds the entire config structure
type Config struct {
	Counting CountingConfig `toml:"counting"`
	Cache    CacheConfig    `toml:"cache"`
	Model    ModelConfig    `toml:"model"`
	Server   ServerConfig   `toml:"server"`
	CLI      CliConfig      `toml:"cli"`
}

// CountingConfig shapes in-memory tries.
type CountingConfig struct {
	Order                 int `toml:"order"`
	CocCutoff             int `toml:"coc_cutoff"`
	ArrayPromoteThreshold int `toml:"array_promote_threshold"`
	MapDepth              int `toml:"map_depth"`
}

// CacheConfig shapes the node cache of saved tries.
type CacheConfig struct {
	DynamicSize   int `toml:"dynamic_size"`
	PrefetchDepth int `toml:"prefetch_depth"`
}

// ModelConfig points at the model directory.
type ModelConfig struct {
	Dir           string `toml:"dir"`
	Bidirectional bool   `toml:"bidirectional"`
	VocabCutoff   int    `toml:"vocab_cutoff"`
}

// ServerConfig has server related options.
type ServerConfig struct {
	MaxLimit     int `toml:"max_limit"`
	DefaultLimit int `toml:"default_limit"`
}

// CliConfig holds cli interface options.
type CliConfig struct {
	DefaultLimit int `toml:"default_limit"`
}

// GetConfigDir returns the config directory with fallback priority:
// 1. ~/.config/
// 2. ~/Library/Application Support/ (macOS)
// 3. Current executable dir
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Errorf("Failed to get home directory: %v", err)
		return utils.GetExecutableDir()
	}
	primaryPath := filepath.Join(homeDir, ".config", "namegram")
	if result := utils.CheckDirStatus(primaryPath); result.Writable {
		return primaryPath, nil
	}
	macOSPath := filepath.Join(homeDir, "Library", "Application Support", "namegram")
	if result := utils.CheckDirStatus(macOSPath); result.Writable {
		return macOSPath, nil
	}
	execDir, err := utils.GetExecutableDir()
	if err != nil {
		log.Errorf("Failed to get executable directory: %v", err)
		return "", err
	}
	return execDir, nil
}

// GetDefaultConfigPath returns the default path for config.toml
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// LoadConfigWithPriority loads config with priority:
// 1. Custom path from --config flag
// 2. Default path: [UserConfigDir]/namegram/config.toml
// 3. Builtin defaults
func LoadConfigWithPriority(customConfigPath string) (*Config, string, error) {
	if customConfigPath != "" {
		if _, statErr := os.Stat(customConfigPath); statErr == nil {
			config, err := LoadConfig(customConfigPath)
			if err != nil {
				log.Warnf("Failed to load custom config from %s: %v. Trying default path...", customConfigPath, err)
			} else {
				log.Debugf("Loaded config from custom path: %s", customConfigPath)
				return config, customConfigPath, nil
			}
		} else {
			log.Warnf("Custom config file not found at %s: %v. Trying default path...", customConfigPath, statErr)
		}
	}
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		log.Warnf("Failed to determine default config path: %v. Using built-in defaults...", err)
		return DefaultConfig(), "", nil
	}

	config, err := InitConfig(defaultPath)
	if err != nil {
		log.Warnf("Failed to load/create config at default path %s: %v. Using builtin defaults...", defaultPath, err)
		return DefaultConfig(), "", nil
	}
	log.Debugf("Loaded config from default path: %s", defaultPath)
	return config, defaultPath, nil
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	copts := counting.DefaultOptions()
	popts := persistent.DefaultOptions()
	return &Config{
		Counting: CountingConfig{
			Order:                 copts.Order,
			CocCutoff:             copts.Cutoff,
			ArrayPromoteThreshold: copts.PromoteThreshold,
			MapDepth:              copts.MapDepth,
		},
		Cache: CacheConfig{
			DynamicSize:   popts.DynamicSize,
			PrefetchDepth: popts.PrefetchDepth,
		},
		Model: ModelConfig{
			Dir:           "model",
			Bidirectional: true,
			VocabCutoff:   0,
		},
		Server: ServerConfig{
			MaxLimit:     64,
			DefaultLimit: 10,
		},
		CLI: CliConfig{
			DefaultLimit: 10,
		},
	}
}

// ModelOptions converts the config into runner options.
func (c *Config) ModelOptions() model.Options {
	return model.Options{
		Bidirectional: c.Model.Bidirectional,
		VocabCutoff:   c.Model.VocabCutoff,
		Counting: counting.Options{
			Order:            c.Counting.Order,
			Cutoff:           c.Counting.CocCutoff,
			PromoteThreshold: c.Counting.ArrayPromoteThreshold,
			MapDepth:         c.Counting.MapDepth,
		},
		Persistent: persistent.Options{
			DynamicSize:   c.Cache.DynamicSize,
			PrefetchDepth: c.Cache.PrefetchDepth,
			Cutoff:        c.Counting.CocCutoff,
		},
	}
}

// InitConfig loads config from file or creates default if missing
func InitConfig(configPath string) (*Config, error) {
	configDir := filepath.Dir(configPath)

	if err := utils.EnsureDir(configDir); err != nil {
		log.Warnf("Failed to create config directory %s: %v. Using built-in defaults...", configDir, err)
		return DefaultConfig(), nil
	}

	if !utils.FileExists(configPath) {
		config := DefaultConfig()
		if err := SaveConfig(config, configPath); err != nil {
			log.Warnf("Failed to create default config file at %s: %v. Using built-in defaults...", configPath, err)
			return DefaultConfig(), nil
		}
		log.Debugf("Created default config file at: %s", configPath)
		return config, nil
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		log.Warnf("Failed to load config from %s: %v. Using built-in defaults...", configPath, err)
		return DefaultConfig(), nil
	}
	return config, nil
}

// LoadConfig loads from a TOML file
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if err := utils.LoadTOMLFile(configPath, config); err != nil {
		return tryPartialParse(configPath)
	}
	return config, nil
}

// tryPartialParse keeps every section that still decodes to the right types.
func tryPartialParse(configPath string) (*Config, error) {
	config := DefaultConfig()

	tempConfig, err := utils.ParseTOMLWithRecovery(configPath)
	if err != nil {
		log.Warnf("Could not parse any valid configuration from %s: %v. Using all defaults.", configPath, err)
		return config, nil
	}

	if section, ok := utils.ExtractSection(tempConfig, "counting"); ok {
		extractCountingConfig(section, &config.Counting)
	}
	if section, ok := utils.ExtractSection(tempConfig, "cache"); ok {
		extractCacheConfig(section, &config.Cache)
	}
	if section, ok := utils.ExtractSection(tempConfig, "model"); ok {
		extractModelConfig(section, &config.Model)
	}
	if section, ok := utils.ExtractSection(tempConfig, "server"); ok {
		extractServerConfig(section, &config.Server)
	}
	if section, ok := utils.ExtractSection(tempConfig, "cli"); ok {
		extractCliConfig(section, &config.CLI)
	}
	return config, nil
}

func extractCountingConfig(data map[string]any, c *CountingConfig) {
	if val, ok := utils.ExtractInt64(data, "order"); ok {
		c.Order = val
	}
	if val, ok := utils.ExtractInt64(data, "coc_cutoff"); ok {
		c.CocCutoff = val
	}
	if val, ok := utils.ExtractInt64(data, "array_promote_threshold"); ok {
		c.ArrayPromoteThreshold = val
	}
	if val, ok := utils.ExtractInt64(data, "map_depth"); ok {
		c.MapDepth = val
	}
}

func extractCacheConfig(data map[string]any, c *CacheConfig) {
	if val, ok := utils.ExtractInt64(data, "dynamic_size"); ok {
		c.DynamicSize = val
	}
	if val, ok := utils.ExtractInt64(data, "prefetch_depth"); ok {
		c.PrefetchDepth = val
	}
}

func extractModelConfig(data map[string]any, m *ModelConfig) {
	if val, ok := utils.ExtractString(data, "dir"); ok {
		m.Dir = val
	}
	if val, ok := utils.ExtractBool(data, "bidirectional"); ok {
		m.Bidirectional = val
	}
	if val, ok := utils.ExtractInt64(data, "vocab_cutoff"); ok {
		m.VocabCutoff = val
	}
}

// extractServerConfig extracts server configuration from a map
func extractServerConfig(data map[string]any, server *ServerConfig) {
	if val, ok := utils.ExtractInt64(data, "max_limit"); ok {
		server.MaxLimit = val
	}
	if val, ok := utils.ExtractInt64(data, "default_limit"); ok {
		server.DefaultLimit = val
	}
}

// extractCliConfig extracts CLI config from a map
func extractCliConfig(data map[string]any, cli *CliConfig) {
	if val, ok := utils.ExtractInt64(data, "default_limit"); ok {
		cli.DefaultLimit = val
	}
}

// RebuildConfigFile force creates a new config.toml at default
func RebuildConfigFile() error {
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(filepath.Dir(defaultPath)); err != nil {
		return err
	}
	return utils.SaveTOMLFile(DefaultConfig(), defaultPath)
}

// GetActiveConfigPath returns the absolute path of loaded config file
func GetActiveConfigPath(configPath string) string {
	if configPath == "" {
		if defaultPath, err := GetDefaultConfigPath(); err == nil {
			return defaultPath
		}
		return "unknown"
	}
	if absPath, err := filepath.Abs(configPath); err == nil {
		return absPath
	}
	return configPath
}

// SaveConfig saves into a TOML file
func SaveConfig(config *Config, configPath string) error {
	return utils.SaveTOMLFile(config, configPath)
}

// Update changes the server limits and saves to file
func (c *Config) Update(configPath string, maxLimit, defaultLimit *int) error {
	if maxLimit != nil {
		c.Server.MaxLimit = *maxLimit
	}
	if defaultLimit != nil {
		c.Server.DefaultLimit = *defaultLimit
	}
	return SaveConfig(c, configPath)
}
