package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/micro-ha/deck-automations/plugin/internal/events"
	"github.com/micro-ha/deck-automations/plugin/internal/model"
)

const (
	defaultHistoryFile       = "history.db"
	defaultHistoryRetention  = 1000
	defaultDeviceName        = "Stream Deck"
	defaultMQTTClientID      = "deck-automations"
	defaultMQTTTopicPrefix   = "deck-automations"
	defaultLogFormat         = "json"
	defaultCredentialTimeout = 2 * time.Second
)

// Config stores runtime settings loaded from environment variables and an
// optional YAML file.
type Config struct {
	Service            model.ServiceEndpoint
	HistoryDBPath      string
	HistoryRetention   int
	DiagnosticsAddr    string
	MQTT               events.Config
	LogLevel           slog.Level
	LogFormat          string
	DefaultDeviceName  string
	CredentialLoadWait time.Duration
}

// fileConfig is the CONFIG_FILE layout. Unset keys keep the defaults.
type fileConfig struct {
	Service struct {
		BaseURL   string `yaml:"base_url"`
		KeyHeader string `yaml:"key_header"`
		Timeout   string `yaml:"timeout"`
	} `yaml:"service"`
	History struct {
		Path      *string `yaml:"path"`
		Retention int     `yaml:"retention"`
	} `yaml:"history"`
	Diagnostics struct {
		Addr string `yaml:"addr"`
	} `yaml:"diagnostics"`
	MQTT struct {
		Broker      string `yaml:"broker"`
		ClientID    string `yaml:"client_id"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	DefaultDeviceName string `yaml:"default_device_name"`
}

// Load builds Config from defaults, then CONFIG_FILE, then environment
// variables. Environment variables win.
func Load() (Config, error) {
	cfg := defaults(pluginDir())

	if path := getenv("CONFIG_FILE", ""); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []string
	if c.Service.Timeout <= 0 {
		errs = append(errs, "service timeout must be positive")
	}
	if c.HistoryRetention < 0 {
		errs = append(errs, "history retention must not be negative")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, "log format must be json or text")
	}
	if c.MQTT.Enabled() && !strings.Contains(c.MQTT.Broker, "://") {
		errs = append(errs, "mqtt broker must be a URL such as tcp://host:1883")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// HistoryEnabled reports whether trigger history is persisted.
func (c Config) HistoryEnabled() bool {
	return c.HistoryDBPath != ""
}

func defaults(dir string) Config {
	return Config{
		Service: model.ServiceEndpoint{
			Host:      model.DefaultAPIBaseURL,
			KeyHeader: model.DefaultAPIKeyHeader,
			Timeout:   model.DefaultAPITimeout,
		},
		HistoryDBPath:    filepath.Join(dir, defaultHistoryFile),
		HistoryRetention: defaultHistoryRetention,
		MQTT: events.Config{
			ClientID:    defaultMQTTClientID,
			TopicPrefix: defaultMQTTTopicPrefix,
		},
		LogLevel:           slog.LevelInfo,
		LogFormat:          defaultLogFormat,
		DefaultDeviceName:  defaultDeviceName,
		CredentialLoadWait: defaultCredentialTimeout,
	}
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	setString(&cfg.Service.Host, file.Service.BaseURL)
	setString(&cfg.Service.KeyHeader, file.Service.KeyHeader)
	if raw := strings.TrimSpace(file.Service.Timeout); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("parsing config file: service.timeout: %w", err)
		}
		cfg.Service.Timeout = timeout
	}
	if file.History.Path != nil {
		cfg.HistoryDBPath = strings.TrimSpace(*file.History.Path)
	}
	if file.History.Retention != 0 {
		cfg.HistoryRetention = file.History.Retention
	}
	setString(&cfg.DiagnosticsAddr, file.Diagnostics.Addr)
	setString(&cfg.MQTT.Broker, file.MQTT.Broker)
	setString(&cfg.MQTT.ClientID, file.MQTT.ClientID)
	setString(&cfg.MQTT.Username, file.MQTT.Username)
	setString(&cfg.MQTT.Password, file.MQTT.Password)
	setString(&cfg.MQTT.TopicPrefix, file.MQTT.TopicPrefix)
	if file.Logging.Level != "" {
		cfg.LogLevel = parseLogLevel(file.Logging.Level)
	}
	if file.Logging.Format != "" {
		cfg.LogFormat = strings.ToLower(strings.TrimSpace(file.Logging.Format))
	}
	setString(&cfg.DefaultDeviceName, file.DefaultDeviceName)
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Service.Host = getenv("AUTOMATION_API_BASE_URL", cfg.Service.Host)
	cfg.Service.KeyHeader = getenv("AUTOMATION_API_KEY_HEADER", cfg.Service.KeyHeader)
	cfg.Service.Timeout = parseDuration("AUTOMATION_API_TIMEOUT", cfg.Service.Timeout)
	if value, ok := os.LookupEnv("HISTORY_DB_PATH"); ok {
		cfg.HistoryDBPath = strings.TrimSpace(value)
	}
	cfg.HistoryRetention = parseInt("HISTORY_RETENTION", cfg.HistoryRetention)
	if value, ok := os.LookupEnv("DIAGNOSTICS_ADDR"); ok {
		cfg.DiagnosticsAddr = strings.TrimSpace(value)
	}
	cfg.MQTT.Broker = getenv("MQTT_BROKER", cfg.MQTT.Broker)
	cfg.MQTT.ClientID = getenv("MQTT_CLIENT_ID", cfg.MQTT.ClientID)
	cfg.MQTT.Username = getenv("MQTT_USERNAME", cfg.MQTT.Username)
	cfg.MQTT.Password = getenv("MQTT_PASSWORD", cfg.MQTT.Password)
	cfg.MQTT.TopicPrefix = getenv("MQTT_TOPIC_PREFIX", cfg.MQTT.TopicPrefix)
	if raw := getenv("LOG_LEVEL", ""); raw != "" {
		cfg.LogLevel = parseLogLevel(raw)
	}
	cfg.LogFormat = strings.ToLower(getenv("LOG_FORMAT", cfg.LogFormat))
	cfg.DefaultDeviceName = getenv("DEFAULT_DEVICE_NAME", cfg.DefaultDeviceName)
	cfg.CredentialLoadWait = parseDuration("CREDENTIAL_LOAD_WAIT", cfg.CredentialLoadWait)
}

// pluginDir is where the host started the plugin binary.
func pluginDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

func setString(dst *string, value string) {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		*dst = trimmed
	}
}

func getenv(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func parseDuration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
