// Package session owns the per-chat interactive state: the list of calendar
// events created during the session (for undo) and the in-progress flag that
// guards against duplicate in-flight scheduling runs.
package session

import (
	"context"
	"sync"
	"time"

	"classbot/internal/storage"
	logx "classbot/pkg/logx"
)

// Deleter is the one calendar capability undo needs.
type Deleter interface {
	DeleteEvent(ctx context.Context, calendarID, eventID string) bool
}

// Entry is one created event retained for undo.
type Entry struct {
	EventID string
	Summary string
	At      time.Time
}

// Session is the state of one chat. All methods are safe for concurrent use,
// though the dispatch layer already serializes work per chat.
type Session struct {
	chatID int64

	mu      sync.Mutex
	busy    bool
	created []Entry

	store storage.Store
	log   logx.Logger
}

// TryBegin marks a scheduling run as in progress. It returns false if one is
// already outstanding; the second trigger must be rejected, not queued.
func (s *Session) TryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

// End clears the in-progress flag.
func (s *Session) End() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// Busy reports whether a run is outstanding.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Record appends a created event to the undo list (and the journal, when
// storage is enabled).
func (s *Session) Record(ctx context.Context, eventID, summary string) {
	e := Entry{EventID: eventID, Summary: summary, At: time.Now()}
	s.mu.Lock()
	s.created = append(s.created, e)
	s.mu.Unlock()

	if s.store != nil {
		err := s.store.SaveCreated(ctx, s.chatID, storage.CreatedEvent{EventID: e.EventID, Summary: e.Summary, At: e.At})
		if err != nil {
			s.log.Warn("journal save failed", logx.String("event_id", eventID), logx.Err(err))
		}
	}
}

// Remove drops one event id from the undo list.
func (s *Session) Remove(ctx context.Context, eventID string) {
	s.mu.Lock()
	kept := s.created[:0]
	for _, e := range s.created {
		if e.EventID != eventID {
			kept = append(kept, e)
		}
	}
	s.created = kept
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.RemoveCreated(ctx, s.chatID, eventID); err != nil {
			s.log.Warn("journal remove failed", logx.String("event_id", eventID), logx.Err(err))
		}
	}
}

// Created returns a copy of the undo list in creation order.
func (s *Session) Created() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.created...)
}

// UndoResult summarizes one undo pass.
type UndoResult struct {
	Deleted []Entry
	Failed  []Entry
}

// Undo deletes every retained event, one compensating call at a time.
// Successful deletes leave the list; failures stay retained so a later
// attempt can pick them up. One failing delete never aborts the rest of
// the batch.
func (s *Session) Undo(ctx context.Context, del Deleter, calendarID string) UndoResult {
	var res UndoResult
	for _, e := range s.Created() {
		if del.DeleteEvent(ctx, calendarID, e.EventID) {
			s.Remove(ctx, e.EventID)
			res.Deleted = append(res.Deleted, e)
		} else {
			res.Failed = append(res.Failed, e)
		}
	}
	return res
}

// Manager hands out sessions by chat id, hydrating the undo list from the
// journal on first touch.
type Manager struct {
	mu       sync.Mutex
	sessions map[int64]*Session

	store storage.Store
	log   logx.Logger
}

func NewManager(store storage.Store, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		sessions: make(map[int64]*Session),
		store:    store,
		log:      log,
	}
}

// Get returns the session for a chat, creating (and hydrating) it if needed.
func (m *Manager) Get(ctx context.Context, chatID int64) *Session {
	m.mu.Lock()
	if s, ok := m.sessions[chatID]; ok {
		m.mu.Unlock()
		return s
	}
	s := &Session{chatID: chatID, store: m.store, log: m.log.With(logx.Int64("chat_id", chatID))}
	m.sessions[chatID] = s
	m.mu.Unlock()

	if m.store != nil {
		rows, err := m.store.ListCreated(ctx, chatID)
		if err != nil {
			m.log.Warn("journal load failed", logx.Int64("chat_id", chatID), logx.Err(err))
			return s
		}
		s.mu.Lock()
		for _, r := range rows {
			s.created = append(s.created, Entry{EventID: r.EventID, Summary: r.Summary, At: r.At})
		}
		s.mu.Unlock()
	}
	return s
}

// Prune drops journal rows older than maxAge and evicts idle in-memory
// sessions whose undo list is empty.
func (m *Manager) Prune(ctx context.Context, maxAge time.Duration) {
	if m.store != nil {
		if n, err := m.store.PruneCreated(ctx, time.Now().Add(-maxAge)); err == nil && n > 0 {
			m.log.Info("journal pruned", logx.Int64("rows", n))
		}
	}

	m.mu.Lock()
	for id, s := range m.sessions {
		s.mu.Lock()
		idle := !s.busy && len(s.created) == 0
		s.mu.Unlock()
		if idle {
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
}
