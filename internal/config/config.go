// Package config loads and validates searchmon configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Backend    BackendConfig    `mapstructure:"backend"`
	Channel    ChannelConfig    `mapstructure:"channel"`
	Hub        HubConfig        `mapstructure:"hub"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Periods    PeriodsConfig    `mapstructure:"periods"`
	DB         DBConfig         `mapstructure:"db"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// BackendConfig locates the search job runner's control endpoints.
type BackendConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	StartPath      string `mapstructure:"start_path"`
	StopPath       string `mapstructure:"stop_path"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ChannelConfig configures the event channel and its reconnect policy.
type ChannelConfig struct {
	URL                     string `mapstructure:"url"`
	MaxReconnectAttempts    int    `mapstructure:"max_reconnect_attempts"`
	ReconnectInitialMs      int    `mapstructure:"reconnect_initial_ms"`
	ReconnectMaxMs          int    `mapstructure:"reconnect_max_ms"`
	HandshakeTimeoutSeconds int    `mapstructure:"handshake_timeout_seconds"`
	InboxSize               int    `mapstructure:"inbox_size"`
}

// HubConfig tunes snapshot batching toward sinks.
type HubConfig struct {
	BufferSize         int `mapstructure:"buffer_size"`
	BatchSize          int `mapstructure:"batch_size"`
	BatchWaitMs        int `mapstructure:"batch_wait_ms"`
	SinkTimeoutSeconds int `mapstructure:"sink_timeout_seconds"`
}

// AggregatorConfig sizes the aggregator's retained state.
type AggregatorConfig struct {
	LogHistory int `mapstructure:"log_history"`
}

// PeriodsConfig bounds the period planner.
type PeriodsConfig struct {
	MaxSpanYears int `mapstructure:"max_span_years"`
}

// DBConfig controls access to the relational database. An empty DSN keeps
// session history in memory.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// ArchiveConfig selects where session transcripts are written.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for session outcome notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Archive backends.
const (
	ArchiveNone   = "none"
	ArchiveMemory = "memory"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SEARCHMON")
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
	v.SetDefault("backend.base_url", "http://localhost:5000")
	v.SetDefault("backend.start_path", "/api/search")
	v.SetDefault("backend.stop_path", "/api/search/stop")
	v.SetDefault("backend.timeout_seconds", 15)
	v.SetDefault("channel.url", "ws://localhost:5000/ws")
	v.SetDefault("channel.max_reconnect_attempts", 5)
	v.SetDefault("channel.reconnect_initial_ms", 1000)
	v.SetDefault("channel.reconnect_max_ms", 5000)
	v.SetDefault("channel.handshake_timeout_seconds", 10)
	v.SetDefault("channel.inbox_size", 256)
	v.SetDefault("hub.buffer_size", 1024)
	v.SetDefault("hub.batch_size", 64)
	v.SetDefault("hub.batch_wait_ms", 50)
	v.SetDefault("hub.sink_timeout_seconds", 10)
	v.SetDefault("aggregator.log_history", 200)
	v.SetDefault("periods.max_span_years", 200)
	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.prefix", "transcripts")
	v.SetDefault("pubsub.topic_name", "search-outcomes")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if err := validURL("backend.base_url", c.Backend.BaseURL, "http", "https"); err != nil {
		return err
	}
	if err := validURL("channel.url", c.Channel.URL, "ws", "wss", "http", "https"); err != nil {
		return err
	}
	if c.Backend.TimeoutSeconds <= 0 {
		return fmt.Errorf("backend.timeout_seconds must be > 0")
	}
	if c.Channel.MaxReconnectAttempts < 0 {
		return fmt.Errorf("channel.max_reconnect_attempts must be >= 0")
	}
	if c.Channel.ReconnectInitialMs <= 0 || c.Channel.ReconnectMaxMs < c.Channel.ReconnectInitialMs {
		return fmt.Errorf("channel.reconnect_initial_ms must be > 0 and <= channel.reconnect_max_ms")
	}
	if c.Hub.BufferSize <= 0 || c.Hub.BatchSize <= 0 {
		return fmt.Errorf("hub.buffer_size and hub.batch_size must be > 0")
	}
	if c.Aggregator.LogHistory <= 0 {
		return fmt.Errorf("aggregator.log_history must be > 0")
	}
	switch c.Archive.Backend {
	case ArchiveNone, ArchiveMemory:
	case ArchiveLocal:
		if c.Archive.Dir == "" {
			return fmt.Errorf("archive.dir must be set for the local archive")
		}
	case ArchiveGCS:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set for the gcs archive")
		}
	default:
		return fmt.Errorf("archive.backend %q is not one of none, memory, local, gcs", c.Archive.Backend)
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

func validURL(key, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", key, raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s scheme %q is not one of %s", key, u.Scheme, strings.Join(schemes, ", "))
}

// BackendTimeout is the per-request budget for control calls.
func (c Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// ReconnectDelays returns the initial and maximum reconnect delays.
func (c Config) ReconnectDelays() (time.Duration, time.Duration) {
	return time.Duration(c.Channel.ReconnectInitialMs) * time.Millisecond,
		time.Duration(c.Channel.ReconnectMaxMs) * time.Millisecond
}

// HandshakeTimeout bounds the websocket dial.
func (c Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Channel.HandshakeTimeoutSeconds) * time.Second
}

// HubTimings returns the batch wait and per-sink timeout.
func (c Config) HubTimings() (time.Duration, time.Duration) {
	return time.Duration(c.Hub.BatchWaitMs) * time.Millisecond,
		time.Duration(c.Hub.SinkTimeoutSeconds) * time.Second
}
