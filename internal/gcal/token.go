package gcal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

const (
	apiName    = "calendar"
	apiVersion = "v3"
)

// TokenPath returns the cached-token location inside dir, keyed by API
// name/version so multiple Google APIs can share one token directory.
func TokenPath(dir string) string {
	return filepath.Join(dir, fmt.Sprintf("token_%s_%s.json", apiName, apiVersion))
}

// OAuthConfig parses an installed-app client secret file and scopes it for
// full calendar access.
func OAuthConfig(credentialsFile string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read client secret: %w", err)
	}
	conf, err := google.ConfigFromJSON(b, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("parse client secret: %w", err)
	}
	return conf, nil
}

// LoadToken reads the cached token. A missing or unreadable token maps to
// ErrAuthorizationRequired: the interactive flow is the only way out.
func LoadToken(dir string) (*oauth2.Token, error) {
	b, err := os.ReadFile(TokenPath(dir))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthorizationRequired, err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("%w: corrupt token file: %v", ErrAuthorizationRequired, err)
	}
	if tok.RefreshToken == "" && !tok.Valid() {
		return nil, fmt.Errorf("%w: token expired and not refreshable", ErrAuthorizationRequired)
	}
	return &tok, nil
}

// SaveToken persists a token, creating dir if needed.
func SaveToken(dir string, tok *oauth2.Token) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(TokenPath(dir), b, 0o600)
}

// Authorize runs the non-browser half of the installed-app flow: it hands
// the caller an auth URL, takes back the code, and caches the exchanged
// token. The operator pastes the code on the terminal; the bot process
// itself never opens a browser.
func Authorize(ctx context.Context, credentialsFile, tokenDir string, prompt func(authURL string) (code string, err error)) error {
	conf, err := OAuthConfig(credentialsFile)
	if err != nil {
		return err
	}
	url := conf.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	code, err := prompt(url)
	if err != nil {
		return err
	}
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange auth code: %w", err)
	}
	return SaveToken(tokenDir, tok)
}
