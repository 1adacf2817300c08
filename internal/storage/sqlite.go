package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "classbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) SaveCreated(ctx context.Context, chatID int64, ev CreatedEvent) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO created_events(chat_id, event_id, summary, created_at) VALUES(?,?,?,?)
		 ON CONFLICT(chat_id, event_id) DO UPDATE SET summary=excluded.summary`,
		chatID, ev.EventID, ev.Summary, ev.At.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) ListCreated(ctx context.Context, chatID int64) ([]CreatedEvent, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, summary, created_at FROM created_events WHERE chat_id = ? ORDER BY created_at, event_id`,
		chatID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CreatedEvent
	for rows.Next() {
		var ev CreatedEvent
		var at string
		if err := rows.Scan(&ev.EventID, &ev.Summary, &at); err != nil {
			return nil, err
		}
		if t, perr := time.Parse(time.RFC3339Nano, at); perr == nil {
			ev.At = t
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *sqliteStore) RemoveCreated(ctx context.Context, chatID int64, eventID string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM created_events WHERE chat_id = ? AND event_id = ?`, chatID, eventID)
	return err
}

func (s *sqliteStore) PruneCreated(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM created_events WHERE created_at < ?`, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
