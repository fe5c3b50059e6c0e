// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"datewatch/internal/tracker"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Snapshots SnapshotsConfig `mapstructure:"snapshots"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines the shared-secret check for privileged routes.
type AuthConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	AdminToken string `mapstructure:"admin_token"`
}

// HTTPConfig configures the source fetch client.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	TextField      string `mapstructure:"text_field"`
}

// OracleConfig configures the language-model endpoint.
type OracleConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	Model          string  `mapstructure:"model"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	Temperature    float32 `mapstructure:"temperature"`
}

// TrackerConfig holds per-entity defaults and event settings.
type TrackerConfig struct {
	DefaultPollIntervalSeconds int    `mapstructure:"default_poll_interval_seconds"`
	DefaultTimezone            string `mapstructure:"default_timezone"`
	DefaultLocaleMode          string `mapstructure:"default_locale_mode"`
	EventTopic                 string `mapstructure:"event_topic"`
	SnapshotPrefix             string `mapstructure:"snapshot_prefix"`
}

// PubSubConfig holds metadata for change-event notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// SnapshotsConfig sets the snapshot archive backend.
type SnapshotsConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DATEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.user_agent", "datewatch/0.1")
	v.SetDefault("http.text_field", "text")
	v.SetDefault("oracle.base_url", "https://api.openai.com")
	v.SetDefault("oracle.model", "gpt-4o-mini")
	v.SetDefault("oracle.timeout_seconds", 30)
	v.SetDefault("oracle.max_tokens", 32)
	v.SetDefault("oracle.temperature", 0)
	v.SetDefault("tracker.default_poll_interval_seconds", 300)
	v.SetDefault("tracker.default_timezone", "UTC")
	v.SetDefault("tracker.default_locale_mode", string(tracker.LocaleMonthFirst))
	v.SetDefault("tracker.event_topic", "date.updated")
	v.SetDefault("tracker.snapshot_prefix", "snapshots")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Oracle.TimeoutSeconds <= 0 {
		return fmt.Errorf("oracle.timeout_seconds must be > 0")
	}
	if c.Tracker.DefaultPollIntervalSeconds <= 0 {
		return fmt.Errorf("tracker.default_poll_interval_seconds must be > 0")
	}
	if !tracker.LocaleMode(c.Tracker.DefaultLocaleMode).Valid() {
		return fmt.Errorf("tracker.default_locale_mode must be month_first or day_first")
	}
	if c.Auth.Enabled && c.Auth.AdminToken == "" {
		return fmt.Errorf("auth.admin_token must be set when auth is enabled")
	}
	return nil
}

// FetchTimeout converts the HTTP timeout config into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// OracleTimeout converts the oracle timeout config into a duration.
func (c Config) OracleTimeout() time.Duration {
	return time.Duration(c.Oracle.TimeoutSeconds) * time.Second
}
