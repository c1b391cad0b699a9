package domain

import (
	"path/filepath"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Fetch        FetchConfig        `mapstructure:"fetch"`
	Resolver     ResolverConfig     `mapstructure:"resolver"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// FetchConfig contains orchestrator-related configuration
type FetchConfig struct {
	BaseDir                 string        `mapstructure:"base_dir"`
	ScratchDir              string        `mapstructure:"scratch_dir"`
	LogsDirPath             string        `mapstructure:"logs_dir"`
	ConcurrentLimit         int           `mapstructure:"concurrent_limit"`
	Container               string        `mapstructure:"container"`
	MergeStreams            bool          `mapstructure:"merge_streams"`
	DefaultDelivery         DeliveryMode  `mapstructure:"default_delivery"`
	DefaultQuality          string        `mapstructure:"default_quality"`
	ProgressPersistInterval time.Duration `mapstructure:"progress_persist_interval"`
	AutoStartWorkers        bool          `mapstructure:"auto_start_workers"`
}

// LogsDir returns the configured logs directory, defaulting under BaseDir
func (c FetchConfig) LogsDir() string {
	if c.LogsDirPath != "" {
		return c.LogsDirPath
	}
	return filepath.Join(c.BaseDir, "logs")
}

// ScratchRoot returns the configured scratch directory, defaulting under BaseDir
func (c FetchConfig) ScratchRoot() string {
	if c.ScratchDir != "" {
		return c.ScratchDir
	}
	return filepath.Join(c.BaseDir, "scratch")
}

// ResolverConfig contains yt-dlp specific configuration
type ResolverConfig struct {
	Binary           string        `mapstructure:"binary"`
	ForceIPv4        bool          `mapstructure:"force_ipv4"`
	GeoBypassCountry string        `mapstructure:"geo_bypass_country"`
	CookieFile       string        `mapstructure:"cookie_file"`
	ExtraArgs        []string      `mapstructure:"extra_args"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
}

// QueueConfig contains queue-related configuration
type QueueConfig struct {
	DatabasePath    string        `mapstructure:"database_path"`
	CheckInterval   time.Duration `mapstructure:"check_interval"`
	AutoExitOnEmpty bool          `mapstructure:"auto_exit_on_empty"`
	EmptyWaitTime   time.Duration `mapstructure:"empty_wait_time"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Sound   bool   `mapstructure:"sound"`
	Method  string `mapstructure:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Fetch: FetchConfig{
			BaseDir:                 "$HOME/.clipfetch",
			ScratchDir:              "$HOME/.clipfetch/scratch",
			LogsDirPath:             "$HOME/.clipfetch/logs",
			ConcurrentLimit:         1,
			Container:               DefaultContainer,
			MergeStreams:            false,
			DefaultDelivery:         DeliveryDisk,
			DefaultQuality:          "720p",
			ProgressPersistInterval: time.Second,
			AutoStartWorkers:        true,
		},
		Resolver: ResolverConfig{
			Binary:           "yt-dlp",
			ForceIPv4:        true,
			GeoBypassCountry: "DE",
			ProbeTimeout:     60 * time.Second,
		},
		Queue: QueueConfig{
			DatabasePath:    "$HOME/.clipfetch/fetches.db",
			CheckInterval:   2 * time.Second,
			AutoExitOnEmpty: false,
			EmptyWaitTime:   5 * time.Minute,
		},
		Notification: NotificationConfig{
			Enabled: false,
			Sound:   false,
			Method:  "notify-send",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
	}
}
