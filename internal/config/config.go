package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// optionsEnv holds masking options. viper would split it on commas, which
// breaks expressions such as \d{4,6}, so it is parsed separately.
const optionsEnv = "LOGMASK_MASKING_OPTIONS"

// Source reads configuration from a file and LOGMASK_ environment
// variables. Each Source owns its viper instance.
type Source struct {
	v *viper.Viper
}

// NewSource prepares a source. An empty configPath searches the default
// locations for config.yaml.
func NewSource(configPath string) *Source {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/logmask/")
	v.AddConfigPath("$HOME/.logmask/")

	// Environment variable overrides
	v.SetEnvPrefix("LOGMASK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	return &Source{v: v}
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	return NewSource(configPath).Load()
}

// Load reads the file, if any, and returns the validated configuration.
func (s *Source) Load() (*Config, error) {
	if err := s.v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return s.decode()
}

// File returns the config file in use, or "" when running on defaults.
func (s *Source) File() string {
	return s.v.ConfigFileUsed()
}

func (s *Source) decode() (*Config, error) {
	config := GetDefaults()
	if err := s.v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if raw, ok := os.LookupEnv(optionsEnv); ok {
		options, err := parseOptionsEnv(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", optionsEnv, err)
		}
		config.Masking.Options = options
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Watch calls onChange with the reloaded configuration every time the file
// is written. A file that no longer decodes or validates is reported to
// onError and the previous configuration stays in effect.
func (s *Source) Watch(onChange func(*Config), onError func(error)) {
	s.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		config, err := s.decode()
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}

		onChange(config)
	})
	s.v.WatchConfig()
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Server.MaxBatchSize <= 0 {
		return fmt.Errorf("invalid max batch size: %d", config.Server.MaxBatchSize)
	}

	if config.Masking.FailMode != "closed" && config.Masking.FailMode != "open" {
		return fmt.Errorf("invalid masking fail mode: %s (must be closed or open)", config.Masking.FailMode)
	}

	if config.Masking.MaxMessageBytes < 0 {
		return fmt.Errorf("invalid masking max message bytes: %d", config.Masking.MaxMessageBytes)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.Alerts.WarnPerSecond < 0 || config.Alerts.Burst < 0 || (config.Alerts.WarnPerSecond > 0 && config.Alerts.Burst == 0) {
		return fmt.Errorf("invalid alert rate: %g/s burst %d", config.Alerts.WarnPerSecond, config.Alerts.Burst)
	}

	if config.RateLimit.Enabled && (config.RateLimit.RequestsPerSecond <= 0 || config.RateLimit.Burst <= 0) {
		return fmt.Errorf("invalid rate limit: %g/s burst %d", config.RateLimit.RequestsPerSecond, config.RateLimit.Burst)
	}

	if config.Redis.Enabled && config.Redis.RedisURL == "" {
		return fmt.Errorf("redis enabled without redis_url")
	}

	if config.Database.Enabled && config.Database.DatabaseURL == "" {
		return fmt.Errorf("database enabled without database_url")
	}

	if (config.Server.AdminUsername == "") != (config.Server.AdminPassword == "") {
		return fmt.Errorf("server admin username and password must be set together")
	}

	if (config.WebSocket.Username == "") != (config.WebSocket.Password == "") {
		return fmt.Errorf("websocket username and password must be set together")
	}

	return nil
}

// bindEnv registers the keys most often set from the environment, since
// AutomaticEnv only resolves keys viper already knows about.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"server.port",
		"server.admin_username",
		"server.admin_password",
		"masking.enabled",
		"masking.fail_mode",
		"masking.max_message_bytes",
		"logging.level",
		"logging.format",
		"redis.enabled",
		"redis.redis_url",
		"database.enabled",
		"database.database_url",
		"websocket.username",
		"websocket.password",
	} {
		_ = v.BindEnv(key)
	}
}

// parseOptionsEnv accepts a JSON array of options or one option per line
func parseOptionsEnv(raw string) ([]string, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "[") {
		var options []string
		if err := json.Unmarshal([]byte(trimmed), &options); err != nil {
			return nil, err
		}
		return options, nil
	}

	options := []string{}
	for _, line := range strings.Split(trimmed, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			options = append(options, line)
		}
	}
	return options, nil
}
