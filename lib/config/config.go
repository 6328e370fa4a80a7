// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for the tandem server.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	Server    ServerConfig    `yaml:"server"`
	Liveness  LivenessConfig  `yaml:"liveness"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Rooms     RoomsConfig     `yaml:"rooms"`
	Session   SessionConfig   `yaml:"session"`
	Mailbox   MailboxConfig   `yaml:"mailbox"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Auth      AuthConfig      `yaml:"auth"`

	// Per-environment overrides, applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains the sections that can be overridden per
// environment. Zero values in an override leave the base value alone,
// except for booleans, which are always applied when their section is
// present.
type ConfigOverrides struct {
	Server   *ServerConfig   `yaml:"server,omitempty"`
	Liveness *LivenessConfig `yaml:"liveness,omitempty"`
	Bridge   *BridgeConfig   `yaml:"bridge,omitempty"`
	Auth     *AuthConfig     `yaml:"auth,omitempty"`
}

// ServerConfig configures the WebSocket listener.
type ServerConfig struct {
	// ListenAddress is the TCP address to listen on.
	// Default: 127.0.0.1:8080
	ListenAddress string `yaml:"listen_address"`

	// Path is the HTTP path that upgrades to WebSocket.
	// Default: /ws
	Path string `yaml:"path"`

	// MaxMessageBytes caps a single inbound frame.
	// Default: 10 MiB
	MaxMessageBytes int64 `yaml:"max_message_bytes"`

	// SendQueueDepth is the per-connection outbound queue. A connection
	// whose queue fills is closed as a slow consumer.
	// Default: 256
	SendQueueDepth int `yaml:"send_queue_depth"`

	// TrustForwardedFor takes the client address from X-Forwarded-For.
	// Enable only behind a proxy that sets the header.
	TrustForwardedFor bool `yaml:"trust_forwarded_for"`
}

// LivenessConfig configures the heartbeat sweep.
type LivenessConfig struct {
	// PingInterval is how often every connection is pinged.
	// Default: 30s
	PingInterval time.Duration `yaml:"ping_interval"`

	// StaleAfter is how long without a heartbeat before eviction.
	// Default: 60s
	StaleAfter time.Duration `yaml:"stale_after"`
}

// RateLimitConfig configures per-address rate limiting.
type RateLimitConfig struct {
	TokensPerSecond float64       `yaml:"tokens_per_second"`
	Burst           int           `yaml:"burst"`
	BlockFor        time.Duration `yaml:"block_for"`
}

// RoomsConfig configures the room directory.
type RoomsConfig struct {
	// MaxMembers applies to rooms whose creator did not set one.
	// Default: 100
	MaxMembers int `yaml:"max_members"`

	// ActivityLogSize bounds the activity log of recording rooms.
	// Default: 1000
	ActivityLogSize int `yaml:"activity_log_size"`
}

// SessionConfig configures collaborative sessions.
type SessionConfig struct {
	// MaxParticipants applies to sessions whose creator did not set one.
	// Zero means unlimited.
	MaxParticipants int `yaml:"max_participants"`

	// ChatHistory is the number of recent chat messages kept.
	// Default: 100
	ChatHistory int `yaml:"chat_history"`

	// AutosaveInterval is the default interval for autosaving sessions.
	// Default: 30s
	AutosaveInterval time.Duration `yaml:"autosave_interval"`
}

// MailboxConfig configures offline notification queues.
type MailboxConfig struct {
	// MaxPerUser bounds each user's queue; the oldest entry is dropped.
	// Default: 100
	MaxPerUser int `yaml:"max_per_user"`
}

// BridgeConfig configures the scale-out bridge.
type BridgeConfig struct {
	// Enabled connects to Redis at startup. When the connection fails
	// the server continues in single-process mode.
	Enabled bool `yaml:"enabled"`

	RedisAddress  string `yaml:"redis_address"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// ConnectTimeout bounds the startup PING.
	// Default: 5s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// ChannelPrefix namespaces the pub/sub channels.
	// Default: tandem:
	ChannelPrefix string `yaml:"channel_prefix"`

	// Compression is applied to relay payloads: none, lz4, or zstd.
	// Default: none
	Compression string `yaml:"compression"`

	// CompressionThreshold is the payload size below which frames are
	// sent uncompressed.
	// Default: 1024
	CompressionThreshold int `yaml:"compression_threshold"`

	// QueueDepth bounds outbound frames waiting to be published.
	// Default: 1024
	QueueDepth int `yaml:"queue_depth"`
}

// AuthConfig configures credential verification.
type AuthConfig struct {
	// PublicKeyFile is the Ed25519 public key produced by
	// tandem-token keygen.
	PublicKeyFile string `yaml:"public_key_file"`

	// Audience is the audience credentials must carry.
	// Default: tandem
	Audience string `yaml:"audience"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
func Default() *Config {
	return &Config{
		Environment: Development,
		Server: ServerConfig{
			ListenAddress:   "127.0.0.1:8080",
			Path:            "/ws",
			MaxMessageBytes: 10 << 20,
			SendQueueDepth:  256,
		},
		Liveness: LivenessConfig{
			PingInterval: 30 * time.Second,
			StaleAfter:   60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			TokensPerSecond: 100,
			Burst:           100,
			BlockFor:        10 * time.Second,
		},
		Rooms: RoomsConfig{
			MaxMembers:      100,
			ActivityLogSize: 1000,
		},
		Session: SessionConfig{
			ChatHistory:      100,
			AutosaveInterval: 30 * time.Second,
		},
		Mailbox: MailboxConfig{
			MaxPerUser: 100,
		},
		Bridge: BridgeConfig{
			RedisAddress:         "127.0.0.1:6379",
			ConnectTimeout:       5 * time.Second,
			ChannelPrefix:        "tandem:",
			Compression:          "none",
			CompressionThreshold: 1024,
			QueueDepth:           1024,
		},
		Auth: AuthConfig{
			PublicKeyFile: "${HOME}/.config/tandem/signing.key.pub",
			Audience:      "tandem",
		},
	}
}

// Load loads configuration from the TANDEM_CONFIG environment variable.
// If TANDEM_CONFIG is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("TANDEM_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("TANDEM_CONFIG environment variable not set; " +
			"set it to the path of your tandem.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML, so the stripped document decodes
		// through the same yaml tags.
		data = jsonc.ToJSON(data)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Server != nil {
		if overrides.Server.ListenAddress != "" {
			c.Server.ListenAddress = overrides.Server.ListenAddress
		}
		if overrides.Server.Path != "" {
			c.Server.Path = overrides.Server.Path
		}
		if overrides.Server.MaxMessageBytes != 0 {
			c.Server.MaxMessageBytes = overrides.Server.MaxMessageBytes
		}
		if overrides.Server.SendQueueDepth != 0 {
			c.Server.SendQueueDepth = overrides.Server.SendQueueDepth
		}
		c.Server.TrustForwardedFor = overrides.Server.TrustForwardedFor
	}

	if overrides.Liveness != nil {
		if overrides.Liveness.PingInterval != 0 {
			c.Liveness.PingInterval = overrides.Liveness.PingInterval
		}
		if overrides.Liveness.StaleAfter != 0 {
			c.Liveness.StaleAfter = overrides.Liveness.StaleAfter
		}
	}

	if overrides.Bridge != nil {
		c.Bridge.Enabled = overrides.Bridge.Enabled
		if overrides.Bridge.RedisAddress != "" {
			c.Bridge.RedisAddress = overrides.Bridge.RedisAddress
		}
		if overrides.Bridge.RedisPassword != "" {
			c.Bridge.RedisPassword = overrides.Bridge.RedisPassword
		}
		if overrides.Bridge.RedisDB != 0 {
			c.Bridge.RedisDB = overrides.Bridge.RedisDB
		}
		if overrides.Bridge.ChannelPrefix != "" {
			c.Bridge.ChannelPrefix = overrides.Bridge.ChannelPrefix
		}
		if overrides.Bridge.Compression != "" {
			c.Bridge.Compression = overrides.Bridge.Compression
		}
	}

	if overrides.Auth != nil {
		if overrides.Auth.PublicKeyFile != "" {
			c.Auth.PublicKeyFile = overrides.Auth.PublicKeyFile
		}
		if overrides.Auth.Audience != "" {
			c.Auth.Audience = overrides.Auth.Audience
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Auth.PublicKeyFile = expandVars(c.Auth.PublicKeyFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Provided vars first, then the process environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. Every problem is
// reported, not just the first.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Server.ListenAddress == "" {
		errs = append(errs, errors.New("server.listen_address is required"))
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		errs = append(errs, fmt.Errorf("server.path must start with /: %q", c.Server.Path))
	}
	if c.Server.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("server.max_message_bytes must be positive"))
	}
	if c.Server.SendQueueDepth <= 0 {
		errs = append(errs, errors.New("server.send_queue_depth must be positive"))
	}

	if c.Liveness.PingInterval <= 0 {
		errs = append(errs, errors.New("liveness.ping_interval must be positive"))
	}
	if c.Liveness.StaleAfter <= c.Liveness.PingInterval {
		errs = append(errs, fmt.Errorf("liveness.stale_after (%s) must exceed liveness.ping_interval (%s)",
			c.Liveness.StaleAfter, c.Liveness.PingInterval))
	}

	if c.RateLimit.TokensPerSecond <= 0 {
		errs = append(errs, errors.New("rate_limit.tokens_per_second must be positive"))
	}
	if c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rate_limit.burst must be positive"))
	}
	if c.RateLimit.BlockFor < 0 {
		errs = append(errs, errors.New("rate_limit.block_for must not be negative"))
	}

	if c.Rooms.MaxMembers <= 0 {
		errs = append(errs, errors.New("rooms.max_members must be positive"))
	}
	if c.Session.MaxParticipants < 0 {
		errs = append(errs, errors.New("session.max_participants must not be negative"))
	}
	if c.Session.ChatHistory <= 0 {
		errs = append(errs, errors.New("session.chat_history must be positive"))
	}
	if c.Session.AutosaveInterval <= 0 {
		errs = append(errs, errors.New("session.autosave_interval must be positive"))
	}
	if c.Mailbox.MaxPerUser <= 0 {
		errs = append(errs, errors.New("mailbox.max_per_user must be positive"))
	}

	compressionValues := []string{"none", "lz4", "zstd"}
	if !contains(compressionValues, c.Bridge.Compression) {
		errs = append(errs, fmt.Errorf("bridge.compression must be one of: %v", compressionValues))
	}
	if c.Bridge.Enabled {
		if c.Bridge.RedisAddress == "" {
			errs = append(errs, errors.New("bridge.redis_address is required when the bridge is enabled"))
		}
		if c.Bridge.ConnectTimeout <= 0 {
			errs = append(errs, errors.New("bridge.connect_timeout must be positive"))
		}
		if c.Bridge.QueueDepth <= 0 {
			errs = append(errs, errors.New("bridge.queue_depth must be positive"))
		}
	}

	if c.Auth.PublicKeyFile == "" {
		errs = append(errs, errors.New("auth.public_key_file is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
