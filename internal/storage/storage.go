// Package storage provides a minimal persistence layer used by the bot.
//
// It currently persists the per-chat journal of created calendar events so
// the undo path survives a restart. Storage is optional; with driver "none"
// the journal lives only in memory.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "classbot/pkg/logx"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// CreatedEvent is one journal row: a calendar event this bot created for a
// chat, retained until undone or pruned.
type CreatedEvent struct {
	EventID string
	Summary string
	At      time.Time
}

// Store is the persistence API used by the session layer.
type Store interface {
	SaveCreated(ctx context.Context, chatID int64, ev CreatedEvent) error
	ListCreated(ctx context.Context, chatID int64) ([]CreatedEvent, error)
	RemoveCreated(ctx context.Context, chatID int64, eventID string) error

	// PruneCreated drops journal rows older than cutoff and returns how
	// many were removed.
	PruneCreated(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
