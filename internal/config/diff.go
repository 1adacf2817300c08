package config

import (
	"reflect"
	"strings"

	logx "classbot/pkg/logx"
)

// SummarizeChange returns the changed section names plus structured attrs
// safe for logging. Secrets (bot token, API key) never appear in the attrs.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var changed []string
	var attrs []logx.Field

	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.AllowedUserIDs, newCfg.Telegram.AllowedUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int("telegram.allowed_count", len(newCfg.Telegram.AllowedUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if strings.TrimSpace(oldCfg.Agent.BaseURL) != strings.TrimSpace(newCfg.Agent.BaseURL) ||
		oldCfg.Agent.Model != newCfg.Agent.Model ||
		(strings.TrimSpace(oldCfg.Agent.APIKey) != "") != (strings.TrimSpace(newCfg.Agent.APIKey) != "") {
		changed = append(changed, "agent")
		attrs = append(attrs,
			logx.String("agent.model", newCfg.Agent.Model),
			logx.Bool("agent.base_url_set", strings.TrimSpace(newCfg.Agent.BaseURL) != ""),
		)
	}

	if oldCfg.Calendar != newCfg.Calendar {
		changed = append(changed, "calendar")
		attrs = append(attrs,
			logx.String("calendar.id", newCfg.Calendar.ID()),
			logx.Int("calendar.max_list", newCfg.Calendar.MaxListOrDefault()),
		)
	}

	if !reflect.DeepEqual(oldCfg.Holidays, newCfg.Holidays) {
		changed = append(changed, "holidays")
		attrs = append(attrs,
			logx.Int("holidays.date_count", len(newCfg.Holidays.Dates)),
			logx.Bool("holidays.ics_set", strings.TrimSpace(newCfg.Holidays.ICSSource) != ""),
		)
	}

	oldS, newS := oldCfg.Storage, newCfg.Storage
	if (oldS == nil) != (newS == nil) || (oldS != nil && *oldS != *newS) {
		changed = append(changed, "storage")
		if newS != nil {
			attrs = append(attrs, logx.String("storage.driver", strings.TrimSpace(newS.Driver)))
		}
	}

	if oldCfg.Maintenance != newCfg.Maintenance {
		changed = append(changed, "maintenance")
		attrs = append(attrs,
			logx.String("maintenance.holiday_refresh_cron", newCfg.Maintenance.HolidayRefreshCronOrDefault()),
			logx.Duration("maintenance.journal_max_age", newCfg.Maintenance.JournalMaxAgeOrDefault()),
		)
	}

	return changed, attrs
}
