package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Agent    AgentConfig    `json:"agent"`
	Calendar CalendarConfig `json:"calendar"`
	Holidays HolidaysConfig `json:"holidays"`

	// Storage controls the optional created-events journal. Nil disables it;
	// undo then only covers events created since the last restart.
	Storage *StorageConfig `json:"storage,omitempty"`

	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// AllowedUserIDs is the access list. Empty means nobody can use the bot;
	// this is deliberate, a scheduling bot with calendar write access should
	// never be open to the world.
	AllowedUserIDs []int64 `json:"allowed_user_ids"`
	// GroupLog is an optional chat id ("-100...") receiving the telegram log sink.
	GroupLog string `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// AgentConfig selects the OpenAI-compatible vision endpoint.
type AgentConfig struct {
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
}

type CalendarConfig struct {
	// CalendarID defaults to "primary".
	CalendarID      string `json:"calendar_id,omitempty"`
	CredentialsFile string `json:"credentials_file"`
	// TokenDir holds the cached OAuth token. Defaults to "./token files".
	TokenDir string `json:"token_dir,omitempty"`
	// MaxList caps /events and calendar listings. Defaults to 20.
	MaxList int `json:"max_list,omitempty"`
}

// HolidaysConfig feeds the exception-date generator. Dates are recurring
// MM-DD entries; ICSSource optionally merges a holiday feed (URL or file).
type HolidaysConfig struct {
	Dates     []string `json:"dates"`
	ICSSource string   `json:"ics_source,omitempty"`
}

type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// MaintenanceConfig controls the background cron jobs.
type MaintenanceConfig struct {
	// HolidayRefreshCron re-fetches the ICS source. Default "0 4 * * *".
	HolidayRefreshCron string `json:"holiday_refresh_cron,omitempty"`
	// JournalMaxAge prunes journal rows older than this. Default "2160h" (90 days).
	JournalMaxAge string `json:"journal_max_age,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// Validate checks everything that can be checked without touching the
// network. Watch() runs it before committing a reload, so a broken edit
// never replaces a working config.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if strings.TrimSpace(c.Agent.Model) == "" {
		return errors.New("agent.model is required")
	}
	if strings.TrimSpace(c.Calendar.CredentialsFile) == "" {
		return errors.New("calendar.credentials_file is required")
	}
	if c.Calendar.MaxList < 0 {
		return errors.New("calendar.max_list must be >= 0")
	}
	for _, d := range c.Holidays.Dates {
		if _, err := time.Parse("01-02", d); err != nil {
			return fmt.Errorf("holidays.dates: invalid entry %q (want MM-DD)", d)
		}
	}
	if c.Storage != nil {
		switch strings.TrimSpace(strings.ToLower(c.Storage.Driver)) {
		case "", "none":
		case "sqlite", "sqlite3":
			if strings.TrimSpace(c.Storage.Path) == "" {
				return errors.New("storage.path is required for the sqlite driver")
			}
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	if _, err := ParseDurationField("maintenance.journal_max_age", c.Maintenance.JournalMaxAge); err != nil {
		return err
	}
	return nil
}

// CalendarID returns the configured calendar id or "primary".
func (c *CalendarConfig) ID() string {
	if s := strings.TrimSpace(c.CalendarID); s != "" {
		return s
	}
	return "primary"
}

func (c *CalendarConfig) TokenDirOrDefault() string {
	if s := strings.TrimSpace(c.TokenDir); s != "" {
		return s
	}
	return "token files"
}

func (c *CalendarConfig) MaxListOrDefault() int {
	if c.MaxList > 0 {
		return c.MaxList
	}
	return 20
}

func (m *MaintenanceConfig) HolidayRefreshCronOrDefault() string {
	if s := strings.TrimSpace(m.HolidayRefreshCron); s != "" {
		return s
	}
	return "0 4 * * *"
}

func (m *MaintenanceConfig) JournalMaxAgeOrDefault() time.Duration {
	d, err := ParseDurationField("maintenance.journal_max_age", m.JournalMaxAge)
	if err != nil || d <= 0 {
		return 90 * 24 * time.Hour
	}
	return d
}
