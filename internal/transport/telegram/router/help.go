package router

import (
	"html"
	"strings"
)

// helpText renders HTML help for the whole command set or one command.
func (m *Manager) helpText(args []string) string {
	m.mu.RLock()
	byName := m.cmds
	ordered := m.ordered
	m.mu.RUnlock()

	if len(args) > 0 {
		name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(args[0]), "/"))
		c := byName[name]
		if c == nil {
			return "Unknown command. Try <code>/help</code>."
		}
		lines := []string{"<b>/" + html.EscapeString(c.Name) + "</b>"}
		if c.Description != "" {
			lines = append(lines, html.EscapeString(c.Description))
		}
		if c.Usage != "" {
			lines = append(lines, "Usage: <code>"+html.EscapeString(c.Usage)+"</code>")
		}
		if len(c.Aliases) > 0 {
			lines = append(lines, "Aliases: "+html.EscapeString(strings.Join(c.Aliases, ", ")))
		}
		return strings.Join(lines, "\n")
	}

	lines := []string{
		"<b>Timetable scheduler</b>",
		"Send a photo of your timetable and I will create weekly events in your Google Calendar, skipping holidays.",
		"",
	}
	for _, c := range ordered {
		suffix := ""
		if c.Description != "" {
			suffix = " — " + html.EscapeString(c.Description)
		}
		lines = append(lines, "• <code>/"+html.EscapeString(c.Name)+"</code>"+suffix)
	}
	return strings.Join(lines, "\n")
}
