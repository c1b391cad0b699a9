package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/yourusername/clipfetch/internal/domain"
)

// EnvPrefix prefixes environment overrides, e.g. CLIPFETCH_FETCH_CONCURRENT_LIMIT
const EnvPrefix = "CLIPFETCH"

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, config)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.clipfetch")
		v.AddConfigPath("/etc/clipfetch")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults registers every key so AutomaticEnv can override keys absent from the file
func setDefaults(v *viper.Viper, c *domain.Config) {
	v.SetDefault("server.host", c.Server.Host)
	v.SetDefault("server.port", c.Server.Port)

	v.SetDefault("fetch.base_dir", c.Fetch.BaseDir)
	v.SetDefault("fetch.scratch_dir", c.Fetch.ScratchDir)
	v.SetDefault("fetch.logs_dir", c.Fetch.LogsDirPath)
	v.SetDefault("fetch.concurrent_limit", c.Fetch.ConcurrentLimit)
	v.SetDefault("fetch.container", c.Fetch.Container)
	v.SetDefault("fetch.merge_streams", c.Fetch.MergeStreams)
	v.SetDefault("fetch.default_delivery", string(c.Fetch.DefaultDelivery))
	v.SetDefault("fetch.default_quality", c.Fetch.DefaultQuality)
	v.SetDefault("fetch.progress_persist_interval", c.Fetch.ProgressPersistInterval)
	v.SetDefault("fetch.auto_start_workers", c.Fetch.AutoStartWorkers)

	v.SetDefault("resolver.binary", c.Resolver.Binary)
	v.SetDefault("resolver.force_ipv4", c.Resolver.ForceIPv4)
	v.SetDefault("resolver.geo_bypass_country", c.Resolver.GeoBypassCountry)
	v.SetDefault("resolver.cookie_file", c.Resolver.CookieFile)
	v.SetDefault("resolver.extra_args", c.Resolver.ExtraArgs)
	v.SetDefault("resolver.probe_timeout", c.Resolver.ProbeTimeout)

	v.SetDefault("queue.database_path", c.Queue.DatabasePath)
	v.SetDefault("queue.check_interval", c.Queue.CheckInterval)
	v.SetDefault("queue.auto_exit_on_empty", c.Queue.AutoExitOnEmpty)
	v.SetDefault("queue.empty_wait_time", c.Queue.EmptyWaitTime)

	v.SetDefault("notification.enabled", c.Notification.Enabled)
	v.SetDefault("notification.sound", c.Notification.Sound)
	v.SetDefault("notification.method", c.Notification.Method)

	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.format", c.Logging.Format)
	v.SetDefault("logging.output_path", c.Logging.OutputPath)
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Fetch.BaseDir = expandPath(config.Fetch.BaseDir)
	config.Fetch.ScratchDir = expandPath(config.Fetch.ScratchDir)
	config.Fetch.LogsDirPath = expandPath(config.Fetch.LogsDirPath)
	config.Queue.DatabasePath = expandPath(config.Queue.DatabasePath)
	config.Resolver.CookieFile = expandPath(config.Resolver.CookieFile)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	// $HOME first so it resolves even where the variable is unset
	if strings.Contains(path, "$HOME") {
		if home, err := os.UserHomeDir(); err == nil {
			path = strings.ReplaceAll(path, "$HOME", home)
		}
	}

	return os.ExpandEnv(path)
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Fetch.BaseDir == "" {
		return fmt.Errorf("fetch base directory not configured")
	}

	if config.Fetch.ConcurrentLimit < 1 {
		return fmt.Errorf("concurrent limit must be at least 1")
	}

	if !domain.ValidateDelivery(config.Fetch.DefaultDelivery) {
		return fmt.Errorf("invalid default delivery: %s", config.Fetch.DefaultDelivery)
	}

	if _, err := domain.ParseQuality(config.Fetch.DefaultQuality); err != nil {
		return fmt.Errorf("invalid default quality: %w", err)
	}

	if config.Fetch.Container == "" {
		config.Fetch.Container = domain.DefaultContainer
	}

	if config.Resolver.Binary == "" {
		return fmt.Errorf("resolver binary not configured")
	}

	if config.Queue.DatabasePath == "" {
		return fmt.Errorf("queue database path not configured")
	}

	if config.Queue.CheckInterval <= 0 {
		return fmt.Errorf("queue check interval must be positive")
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	// Decode through the mapstructure tags so the file uses the same keys LoadConfig reads
	var sections map[string]interface{}
	if err := mapstructure.Decode(config, &sections); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	for key, section := range sections {
		v.Set(key, section)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
