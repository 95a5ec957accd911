// Package config provides YAML-based configuration loading for momotalk.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level momotalk configuration, loaded from momotalk.yaml.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Completion CompletionConfig `yaml:"completion"`
	Server     ServerConfig     `yaml:"server"`
	Roster     RosterConfig     `yaml:"roster"`
	Relay      RelayConfig      `yaml:"relay"`
	Log        LogConfig        `yaml:"log"`
}

// DatabaseConfig selects the storage backend. The sqlite driver uses Path;
// the mysql driver uses the network fields.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// CompletionConfig holds settings for the remote chat-completion endpoint.
type CompletionConfig struct {
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	APIKeyEnv  string `yaml:"api_key_env"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// RosterConfig points at the remote student roster used to seed personas.
type RosterConfig struct {
	URL       string `yaml:"url"`
	AvatarURL string `yaml:"avatar_url"` // "{{id}}" is replaced with the student id
	Schedule  string `yaml:"schedule"`   // optional 5-field cron expression for re-sync
}

// RelayConfig bridges chat-platform channels to conversations.
type RelayConfig struct {
	Platform string         `yaml:"platform"` // "slack", "discord", or empty to disable
	Slack    SlackConfig    `yaml:"slack"`
	Discord  DiscordConfig  `yaml:"discord"`
	Bindings []RelayBinding `yaml:"bindings"`
}

// SlackConfig holds Slack Socket Mode credentials.
type SlackConfig struct {
	AppToken string `yaml:"app_token"`
	BotToken string `yaml:"bot_token"`
}

// DiscordConfig holds Discord Gateway credentials.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
}

// RelayBinding maps one platform channel to one conversation.
type RelayBinding struct {
	Channel      string `yaml:"channel"`
	Conversation string `yaml:"conversation"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
	File   string `yaml:"file"`
}

// Default values applied by applyDefaults.
const (
	DefaultDriver     = "sqlite"
	DefaultSQLitePath = "data/db.sqlite"
	DefaultMySQLPort  = 3306
	DefaultBaseURL    = "https://api.deepseek.com"
	DefaultModel      = "deepseek-reasoner"
	DefaultAPIKeyEnv  = "DEEPSEEK_API_KEY"
	DefaultTimeoutSec = 120
	DefaultServerPort = 8080
	DefaultRosterURL  = "https://arona.hanasaki.tech/api/student"
	DefaultAvatarURL  = "https://aronacdn.hanasaki.tech/images/student/icon/{{id}}.webp"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "text"
	DefaultConfigPath = "momotalk.yaml"
)

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDriver
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = DefaultSQLitePath
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = DefaultMySQLPort
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Name == "" {
			c.Database.Name = "momotalk"
		}
	}

	if c.Completion.BaseURL == "" {
		c.Completion.BaseURL = DefaultBaseURL
	}
	if c.Completion.Model == "" {
		c.Completion.Model = DefaultModel
	}
	if c.Completion.APIKeyEnv == "" {
		c.Completion.APIKeyEnv = DefaultAPIKeyEnv
	}
	if c.Completion.TimeoutSec == 0 {
		c.Completion.TimeoutSec = DefaultTimeoutSec
	}

	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}

	if c.Roster.URL == "" {
		c.Roster.URL = DefaultRosterURL
	}
	if c.Roster.AvatarURL == "" {
		c.Roster.AvatarURL = DefaultAvatarURL
	}

	c.Relay.Platform = strings.ToLower(strings.TrimSpace(c.Relay.Platform))

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string

	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (want sqlite or mysql)", c.Database.Driver))
	}
	if c.Database.Port < 0 {
		errs = append(errs, "database.port must not be negative")
	}

	if c.Completion.TimeoutSec < 0 {
		errs = append(errs, "completion.timeout_sec must not be negative")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}

	switch c.Relay.Platform {
	case "":
	case "slack":
		if c.Relay.Slack.AppToken == "" {
			errs = append(errs, "relay.slack.app_token is required")
		}
		if c.Relay.Slack.BotToken == "" {
			errs = append(errs, "relay.slack.bot_token is required")
		}
	case "discord":
		if c.Relay.Discord.BotToken == "" {
			errs = append(errs, "relay.discord.bot_token is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("relay.platform %q is not supported (want slack or discord)", c.Relay.Platform))
	}
	for i, b := range c.Relay.Bindings {
		if b.Channel == "" {
			errs = append(errs, fmt.Sprintf("relay.bindings[%d].channel is required", i))
		}
		if b.Conversation == "" {
			errs = append(errs, fmt.Sprintf("relay.bindings[%d].conversation is required", i))
		}
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q is not supported (want text or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ResolveAPIKey returns the completion API key: the inline api_key if set,
// otherwise the value of the environment variable named by api_key_env.
func (c CompletionConfig) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// Timeout returns the per-request completion timeout.
func (c CompletionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}
