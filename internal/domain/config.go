package domain

import (
	"path/filepath"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Store        StoreConfig        `mapstructure:"store"`
	Session      SessionConfig      `mapstructure:"session"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	AuthSecret string `mapstructure:"auth_secret"` // empty disables bearer auth
}

// StoreConfig selects the operation store backend
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // gorm-sqlite, sqlite, postgres
	DSN    string `mapstructure:"dsn"`
}

// SessionConfig contains coordinator lifecycle configuration
type SessionConfig struct {
	DisplayName      string `mapstructure:"display_name"`
	ForegroundSource string `mapstructure:"foreground_source"` // store, engine
	ExitWhenIdle     bool   `mapstructure:"exit_when_idle"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Method           string        `mapstructure:"method"` // osascript, notify-send, none
	ChannelID        string        `mapstructure:"channel_id"`
	ChannelName      string        `mapstructure:"channel_name"`
	CompletedTimeout time.Duration `mapstructure:"completed_timeout"`
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
	LogsDir    string `mapstructure:"logs_dir"`
}

const (
	ForegroundSourceStore  = "store"
	ForegroundSourceEngine = "engine"

	DefaultChannelID = "kiwix_download_channel"
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	baseDir := "$HOME/.kiwix-monitor"
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8090,
		},
		Store: StoreConfig{
			Driver: "gorm-sqlite",
			DSN:    filepath.Join(baseDir, "operations.db"),
		},
		Session: SessionConfig{
			DisplayName:      "kiwix",
			ForegroundSource: ForegroundSourceStore,
			ExitWhenIdle:     false,
		},
		Notification: NotificationConfig{
			Enabled:          true,
			Method:           "none",
			ChannelID:        DefaultChannelID,
			ChannelName:      "Downloads",
			CompletedTimeout: DefaultCompletedTimeout,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
			LogsDir:    filepath.Join(baseDir, "logs"),
		},
	}
}
