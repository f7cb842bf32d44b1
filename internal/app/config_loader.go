package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/yourusername/kiwix-monitor-go/internal/domain"
)

var supportedStoreDrivers = map[string]bool{
	"gorm-sqlite": true,
	"sqlite":      true,
	"postgres":    true,
}

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	config, _, err := loadConfig(configPath)
	return config, err
}

// WatchConfig loads configuration and calls onChange with the new config whenever
// the file changes. Invalid edits are logged and ignored.
func WatchConfig(configPath string, log *zap.Logger, onChange func(*domain.Config)) (*domain.Config, error) {
	if log == nil {
		log = zap.NewNop()
	}
	config, v, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if v.ConfigFileUsed() == "" {
		log.Debug("No config file in use, hot reload disabled")
		return config, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		updated := domain.DefaultConfig()
		if err := v.Unmarshal(updated); err != nil {
			log.Warn("Failed to reload config", zap.String("file", e.Name), zap.Error(err))
			return
		}
		updated = expandPaths(updated)
		if err := validateConfig(updated); err != nil {
			log.Warn("Ignoring invalid config change", zap.String("file", e.Name), zap.Error(err))
			return
		}
		log.Info("Config reloaded", zap.String("file", e.Name))
		onChange(updated)
	})
	v.WatchConfig()

	return config, nil
}

func loadConfig(configPath string) (*domain.Config, *viper.Viper, error) {
	// Start with default config
	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.kiwix-monitor")
		v.AddConfigPath("/etc/kiwix-monitor")
	}

	// KIWIXMON_SERVER_PORT overrides server.port
	v.SetEnvPrefix("KIWIXMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, v, nil
}

// bindEnvKeys makes env overrides visible to Unmarshal for keys absent from the file
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"server.host", "server.port", "server.auth_secret",
		"store.driver", "store.dsn",
		"session.display_name", "session.foreground_source", "session.exit_when_idle",
		"notification.enabled", "notification.method", "notification.channel_id",
		"notification.channel_name", "notification.completed_timeout",
		"logging.level", "logging.format", "logging.output_path", "logging.logs_dir",
	} {
		_ = v.BindEnv(key)
	}
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	if config.Store.Driver != "postgres" {
		config.Store.DSN = expandPath(config.Store.DSN)
	}
	config.Logging.LogsDir = expandPath(config.Logging.LogsDir)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	if strings.Contains(path, "$HOME") {
		home, err := os.UserHomeDir()
		if err == nil {
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

	if !supportedStoreDrivers[config.Store.Driver] {
		return fmt.Errorf("unsupported store driver: %s", config.Store.Driver)
	}

	if config.Store.DSN == "" {
		return fmt.Errorf("store dsn not configured")
	}

	switch config.Session.ForegroundSource {
	case domain.ForegroundSourceStore, domain.ForegroundSourceEngine:
	case "":
		config.Session.ForegroundSource = domain.ForegroundSourceStore
	default:
		return fmt.Errorf("invalid foreground source: %s", config.Session.ForegroundSource)
	}

	if config.Notification.CompletedTimeout < 0 {
		return fmt.Errorf("completed notification timeout cannot be negative")
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

	v.Set("server.host", config.Server.Host)
	v.Set("server.port", config.Server.Port)
	v.Set("server.auth_secret", config.Server.AuthSecret)
	v.Set("store.driver", config.Store.Driver)
	v.Set("store.dsn", config.Store.DSN)
	v.Set("session.display_name", config.Session.DisplayName)
	v.Set("session.foreground_source", config.Session.ForegroundSource)
	v.Set("session.exit_when_idle", config.Session.ExitWhenIdle)
	v.Set("notification.enabled", config.Notification.Enabled)
	v.Set("notification.method", config.Notification.Method)
	v.Set("notification.channel_id", config.Notification.ChannelID)
	v.Set("notification.channel_name", config.Notification.ChannelName)
	v.Set("notification.completed_timeout", config.Notification.CompletedTimeout.String())
	v.Set("logging.level", config.Logging.Level)
	v.Set("logging.format", config.Logging.Format)
	v.Set("logging.output_path", config.Logging.OutputPath)
	v.Set("logging.logs_dir", config.Logging.LogsDir)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
