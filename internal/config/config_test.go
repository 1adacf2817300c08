package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validYAML = `
telegram:
  token: "123:abc"
  allowed_user_ids: [42]
  poll_timeout: "10s"
logging:
  level: "info"
  console: true
agent:
  api_key: "sk-test"
  model: "gpt-4o"
calendar:
  credentials_file: "credentials.json"
holidays:
  dates: ["12-05", "12-25"]
storage:
  driver: "sqlite"
  path: "./classbot.db"
`

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.yaml", validYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.AllowedUserIDs) != 1 || cfg.Telegram.AllowedUserIDs[0] != 42 {
		t.Fatalf("allowed_user_ids = %v", cfg.Telegram.AllowedUserIDs)
	}
	if cfg.Calendar.ID() != "primary" {
		t.Fatalf("calendar id default = %q, want primary", cfg.Calendar.ID())
	}
	if cfg.Calendar.MaxListOrDefault() != 20 {
		t.Fatalf("max_list default = %d, want 20", cfg.Calendar.MaxListOrDefault())
	}
	if got := m.Get(); got != cfg {
		t.Fatalf("Get returned a different config")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.yaml", validYAML+"\nnonsense: true\n"))
	if _, err := m.Parse(); err == nil || !strings.Contains(err.Error(), "nonsense") {
		t.Fatalf("Parse err = %v, want unknown-field error", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() *Config {
		return &Config{
			Telegram: TelegramConfig{Token: "t"},
			Agent:    AgentConfig{Model: "m"},
			Calendar: CalendarConfig{CredentialsFile: "c.json"},
		}
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing token", func(c *Config) { c.Telegram.Token = " " }, "telegram.token"},
		{"missing model", func(c *Config) { c.Agent.Model = "" }, "agent.model"},
		{"missing credentials", func(c *Config) { c.Calendar.CredentialsFile = "" }, "credentials_file"},
		{"bad holiday", func(c *Config) { c.Holidays.Dates = []string{"13-45"} }, "holidays.dates"},
		{"bad driver", func(c *Config) { c.Storage = &StorageConfig{Driver: "postgres"} }, "storage.driver"},
		{"sqlite without path", func(c *Config) { c.Storage = &StorageConfig{Driver: "sqlite"} }, "storage.path"},
		{"bad poll timeout", func(c *Config) { c.Telegram.PollTimeout = "soon" }, "poll_timeout"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantSub == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("Validate err = %v, want mention of %q", err, tc.wantSub)
			}
		})
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()

	oldCfg := &Config{Logging: LoggingConfig{Level: "info"}}
	newCfg := &Config{
		Logging:  LoggingConfig{Level: "debug"},
		Holidays: HolidaysConfig{Dates: []string{"12-25"}},
	}

	changed, _ := SummarizeChange(oldCfg, newCfg)
	want := map[string]bool{"logging": true, "holidays": true}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v", changed)
	}
	for _, c := range changed {
		if !want[c] {
			t.Fatalf("unexpected section %q in %v", c, changed)
		}
	}
}
