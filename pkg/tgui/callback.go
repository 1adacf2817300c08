package tgui

import "strings"

// Data formats callback data as "scope:action" or "scope:action:payload".
// Telegram caps callback_data at 64 bytes, so payloads must stay short.
func Data(scope, action, payload string) string {
	scope = strings.TrimSpace(scope)
	action = strings.TrimSpace(action)
	if payload == "" {
		return scope + ":" + action
	}
	return scope + ":" + action + ":" + payload
}

// Split parses data produced by Data. The payload may itself contain ':'.
func Split(data string) (scope, action, payload string) {
	parts := strings.SplitN(data, ":", 3)
	scope = parts[0]
	if len(parts) > 1 {
		action = parts[1]
	}
	if len(parts) > 2 {
		payload = parts[2]
	}
	return scope, action, payload
}
