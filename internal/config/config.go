package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"pyloadwatch/internal/log"
)

// Config holds all application configuration
type Config struct {
	Connection ConnectionConfig `mapstructure:"connection"`
	Daemon     DaemonConfig     `mapstructure:"daemon"`
	UI         UIConfig         `mapstructure:"ui"`
	Logging    log.Config       `mapstructure:"logging"`
}

// ConnectionConfig holds the download server connection settings. The core
// treats these as read-only; only the logged-in flag (kept in the store)
// ever changes at runtime.
type ConnectionConfig struct {
	Protocol string `mapstructure:"protocol"` // "http" or "https"
	Hostname string `mapstructure:"hostname"`
	Port     int    `mapstructure:"port"`
	Path     string `mapstructure:"path"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// BaseURL assembles the server URL without a trailing slash.
func (c ConnectionConfig) BaseURL() string {
	url := fmt.Sprintf("%s://%s:%d%s", c.Protocol, c.Hostname, c.Port, c.Path)
	return strings.TrimRight(url, "/")
}

// DaemonConfig holds background daemon settings
type DaemonConfig struct {
	// ListenAddr is the loopback address of the control API.
	ListenAddr string `mapstructure:"listen_addr"`
	// PollIntervalSec is the background check cadence in seconds.
	PollIntervalSec int `mapstructure:"poll_interval_sec"`
	// BadgeFile is where the visible indicator is written. Absent file
	// means no badge.
	BadgeFile string `mapstructure:"badge_file"`
	// OnFinishedCmd is run once per newly completed download. Empty
	// disables the hook.
	OnFinishedCmd  string   `mapstructure:"on_finished_cmd"`
	OnFinishedArgs []string `mapstructure:"on_finished_args"`
}

// UIConfig holds popup preferences
type UIConfig struct {
	ShowCompleted      bool `mapstructure:"show_completed"`
	AutoRefresh        bool `mapstructure:"auto_refresh"`
	RefreshIntervalSec int  `mapstructure:"refresh_interval_sec"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Protocol: "http",
			Hostname: "localhost",
			Port:     8000,
			Path:     "/",
		},
		Daemon: DaemonConfig{
			ListenAddr:      "127.0.0.1:7227",
			PollIntervalSec: 30,
			BadgeFile:       filepath.Join(defaultDataPath(), "badge"),
		},
		UI: UIConfig{
			ShowCompleted:      true,
			AutoRefresh:        true,
			RefreshIntervalSec: 3,
		},
		Logging: log.Config{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

// Load loads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(defaultConfigPath())
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("PYLOADWATCH")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// Save writes the current configuration to the config file
func Save(cfg *Config) error {
	configPath := defaultConfigPath()
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	viper.Set("connection.protocol", cfg.Connection.Protocol)
	viper.Set("connection.hostname", cfg.Connection.Hostname)
	viper.Set("connection.port", cfg.Connection.Port)
	viper.Set("connection.path", cfg.Connection.Path)
	viper.Set("connection.username", cfg.Connection.Username)
	viper.Set("connection.password", cfg.Connection.Password)

	viper.Set("daemon.listen_addr", cfg.Daemon.ListenAddr)
	viper.Set("daemon.poll_interval_sec", cfg.Daemon.PollIntervalSec)
	viper.Set("daemon.badge_file", cfg.Daemon.BadgeFile)
	viper.Set("daemon.on_finished_cmd", cfg.Daemon.OnFinishedCmd)
	viper.Set("daemon.on_finished_args", cfg.Daemon.OnFinishedArgs)

	viper.Set("ui.show_completed", cfg.UI.ShowCompleted)
	viper.Set("ui.auto_refresh", cfg.UI.AutoRefresh)
	viper.Set("ui.refresh_interval_sec", cfg.UI.RefreshIntervalSec)

	viper.Set("logging.file", cfg.Logging.File)
	viper.Set("logging.level", cfg.Logging.Level)

	configFile := filepath.Join(configPath, "config.yaml")
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Watch reruns onChange whenever the config file is rewritten. Used by the
// daemon to tear down and rebuild the poll scheduler on settings changes.
func Watch(onChange func()) {
	viper.OnConfigChange(func(_ fsnotify.Event) {
		onChange()
	})
	viper.WatchConfig()
}

// IsConfigured returns true if the server connection has been set up
func (c *Config) IsConfigured() bool {
	return c.Connection.Hostname != "" && c.Connection.Username != ""
}

// DataPath returns the directory holding the store, badge file and friends.
func DataPath() string {
	return defaultDataPath()
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "pyloadwatch")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "pyloadwatch")
	}
}

// defaultDataPath returns the default data directory for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "pyloadwatch")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "pyloadwatch")
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	return filepath.Join(defaultDataPath(), "pyloadwatch.log")
}
