package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullYAML = `
database:
  driver: mysql
  host: db.internal
  port: 3307
  user: momo
  password: secret
  name: momotalk_prod
completion:
  base_url: https://llm.example.com
  model: deepseek-chat
  api_key: sk-inline
  timeout_sec: 30
server:
  port: 9090
roster:
  url: https://roster.example.com/students
  avatar_url: https://cdn.example.com/{{id}}.png
  schedule: "0 4 * * *"
relay:
  platform: slack
  slack:
    app_token: xapp-1
    bot_token: xoxb-1
  bindings:
    - channel: C123
      conversation: 6f1c1f8e-0000-4000-8000-000000000001
log:
  level: debug
  format: json
  file: logs/momotalk.log
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.Driver != "mysql" {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, "mysql")
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "db.internal")
	}
	if cfg.Database.Port != 3307 {
		t.Errorf("Database.Port = %d, want %d", cfg.Database.Port, 3307)
	}
	if cfg.Database.Name != "momotalk_prod" {
		t.Errorf("Database.Name = %q, want %q", cfg.Database.Name, "momotalk_prod")
	}
	if cfg.Completion.Model != "deepseek-chat" {
		t.Errorf("Completion.Model = %q, want %q", cfg.Completion.Model, "deepseek-chat")
	}
	if cfg.Completion.Timeout() != 30*time.Second {
		t.Errorf("Completion.Timeout() = %v, want 30s", cfg.Completion.Timeout())
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9090)
	}
	if cfg.Roster.Schedule != "0 4 * * *" {
		t.Errorf("Roster.Schedule = %q, want %q", cfg.Roster.Schedule, "0 4 * * *")
	}
	if cfg.Relay.Platform != "slack" {
		t.Errorf("Relay.Platform = %q, want %q", cfg.Relay.Platform, "slack")
	}
	if len(cfg.Relay.Bindings) != 1 || cfg.Relay.Bindings[0].Channel != "C123" {
		t.Errorf("Relay.Bindings = %+v, want one binding for C123", cfg.Relay.Bindings)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
}

func TestParse_EmptyConfig_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.Driver != DefaultDriver {
		t.Errorf("Database.Driver = %q, want %q (default)", cfg.Database.Driver, DefaultDriver)
	}
	if cfg.Database.Path != DefaultSQLitePath {
		t.Errorf("Database.Path = %q, want %q (default)", cfg.Database.Path, DefaultSQLitePath)
	}
	if cfg.Completion.BaseURL != DefaultBaseURL {
		t.Errorf("Completion.BaseURL = %q, want %q (default)", cfg.Completion.BaseURL, DefaultBaseURL)
	}
	if cfg.Completion.Model != DefaultModel {
		t.Errorf("Completion.Model = %q, want %q (default)", cfg.Completion.Model, DefaultModel)
	}
	if cfg.Completion.APIKeyEnv != DefaultAPIKeyEnv {
		t.Errorf("Completion.APIKeyEnv = %q, want %q (default)", cfg.Completion.APIKeyEnv, DefaultAPIKeyEnv)
	}
	if cfg.Completion.TimeoutSec != DefaultTimeoutSec {
		t.Errorf("Completion.TimeoutSec = %d, want %d (default)", cfg.Completion.TimeoutSec, DefaultTimeoutSec)
	}
	if cfg.Server.Port != DefaultServerPort {
		t.Errorf("Server.Port = %d, want %d (default)", cfg.Server.Port, DefaultServerPort)
	}
	if cfg.Roster.URL != DefaultRosterURL {
		t.Errorf("Roster.URL = %q, want %q (default)", cfg.Roster.URL, DefaultRosterURL)
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want %q (default)", cfg.Log.Level, DefaultLogLevel)
	}
	if cfg.Relay.Platform != "" {
		t.Errorf("Relay.Platform = %q, want empty", cfg.Relay.Platform)
	}
}

func TestParse_MySQLDefaults(t *testing.T) {
	cfg, err := Parse([]byte("database:\n  driver: MySQL\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Driver != "mysql" {
		t.Errorf("Database.Driver = %q, want %q (lowercased)", cfg.Database.Driver, "mysql")
	}
	if cfg.Database.Port != DefaultMySQLPort {
		t.Errorf("Database.Port = %d, want %d (default)", cfg.Database.Port, DefaultMySQLPort)
	}
	if cfg.Database.Name != "momotalk" {
		t.Errorf("Database.Name = %q, want %q (default)", cfg.Database.Name, "momotalk")
	}
	if cfg.Database.Path != "" {
		t.Errorf("Database.Path = %q, want empty for mysql", cfg.Database.Path)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("database: [unclosed"))
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "config: parse") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: parse")
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad driver", "database:\n  driver: postgres\n", `database.driver "postgres" is not supported`},
		{"negative timeout", "completion:\n  timeout_sec: -1\n", "completion.timeout_sec must not be negative"},
		{"port out of range", "server:\n  port: 70000\n", "server.port 70000 is out of range"},
		{"unknown platform", "relay:\n  platform: irc\n", `relay.platform "irc" is not supported`},
		{"slack missing app token", "relay:\n  platform: slack\n  slack:\n    bot_token: x\n", "relay.slack.app_token is required"},
		{"discord missing token", "relay:\n  platform: discord\n", "relay.discord.bot_token is required"},
		{"binding missing channel", "relay:\n  bindings:\n    - conversation: abc\n", "relay.bindings[0].channel is required"},
		{"binding missing conversation", "relay:\n  bindings:\n    - channel: C1\n", "relay.bindings[0].conversation is required"},
		{"bad log format", "log:\n  format: xml\n", `log.format "xml" is not supported`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestParse_MultipleValidationErrors(t *testing.T) {
	_, err := Parse([]byte("database:\n  driver: oracle\nlog:\n  format: xml\n"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"database.driver", "log.format"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error = %q, want to contain %q", err.Error(), want)
		}
	}
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("MOMOTALK_TEST_KEY", "sk-from-env")

	tests := []struct {
		name string
		cfg  CompletionConfig
		want string
	}{
		{"inline wins", CompletionConfig{APIKey: "sk-inline", APIKeyEnv: "MOMOTALK_TEST_KEY"}, "sk-inline"},
		{"from env", CompletionConfig{APIKeyEnv: "MOMOTALK_TEST_KEY"}, "sk-from-env"},
		{"unset env", CompletionConfig{APIKeyEnv: "MOMOTALK_TEST_KEY_MISSING"}, ""},
		{"nothing configured", CompletionConfig{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ResolveAPIKey(); got != tt.want {
				t.Errorf("ResolveAPIKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "momotalk.yaml")
	if err := os.WriteFile(path, []byte(fullYAML), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9090)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/momotalk.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "config: read") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: read")
	}
}
