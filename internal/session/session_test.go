package session

import (
	"context"
	"testing"
	"time"

	"classbot/internal/storage"
	logx "classbot/pkg/logx"
)

type fakeDeleter struct {
	fail  map[string]bool
	calls []string
}

func (d *fakeDeleter) DeleteEvent(_ context.Context, _, eventID string) bool {
	d.calls = append(d.calls, eventID)
	return !d.fail[eventID]
}

func TestTryBeginRejectsSecondRun(t *testing.T) {
	t.Parallel()

	m := NewManager(nil, logx.Nop())
	s := m.Get(context.Background(), 1)

	if !s.TryBegin() {
		t.Fatalf("first TryBegin: got false, want true")
	}
	if s.TryBegin() {
		t.Fatalf("second TryBegin while busy: got true, want false")
	}
	s.End()
	if !s.TryBegin() {
		t.Fatalf("TryBegin after End: got false, want true")
	}
}

func TestUndoRemovesOnlySuccessfulDeletes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewManager(nil, logx.Nop())
	s := m.Get(ctx, 7)

	s.Record(ctx, "ev1", "Math")
	s.Record(ctx, "ev2", "Physics")
	s.Record(ctx, "ev3", "Chemistry")

	del := &fakeDeleter{fail: map[string]bool{"ev2": true}}
	res := s.Undo(ctx, del, "primary")

	if len(del.calls) != 3 {
		t.Fatalf("delete calls = %d, want 3", len(del.calls))
	}
	if len(res.Deleted) != 2 || len(res.Failed) != 1 {
		t.Fatalf("deleted=%d failed=%d, want 2 and 1", len(res.Deleted), len(res.Failed))
	}
	if res.Failed[0].EventID != "ev2" {
		t.Fatalf("failed id = %q, want ev2", res.Failed[0].EventID)
	}

	left := s.Created()
	if len(left) != 1 || left[0].EventID != "ev2" {
		t.Fatalf("retained after undo = %+v, want only ev2", left)
	}

	// A later pass with the remote recovered clears the rest.
	del.fail = nil
	res = s.Undo(ctx, del, "primary")
	if len(res.Deleted) != 1 || len(s.Created()) != 0 {
		t.Fatalf("second undo: deleted=%d retained=%d, want 1 and 0", len(res.Deleted), len(s.Created()))
	}
}

func TestManagerHydratesFromJournal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st, err := storage.Open(storage.Config{Driver: "sqlite", Path: t.TempDir() + "/journal.db"}, logx.Nop())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	m := NewManager(st, logx.Nop())
	s := m.Get(ctx, 42)
	s.Record(ctx, "ev1", "Math")
	s.Record(ctx, "ev2", "Physics")

	// A fresh manager over the same store sees the journal.
	m2 := NewManager(st, logx.Nop())
	s2 := m2.Get(ctx, 42)
	got := s2.Created()
	if len(got) != 2 || got[0].EventID != "ev1" || got[1].EventID != "ev2" {
		t.Fatalf("hydrated entries = %+v, want ev1 then ev2", got)
	}

	s2.Remove(ctx, "ev1")
	m3 := NewManager(st, logx.Nop())
	if got := m3.Get(ctx, 42).Created(); len(got) != 1 || got[0].EventID != "ev2" {
		t.Fatalf("after remove, hydrated entries = %+v, want only ev2", got)
	}
}

func TestPruneEvictsIdleSessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewManager(nil, logx.Nop())

	idle := m.Get(ctx, 1)
	busy := m.Get(ctx, 2)
	busy.TryBegin()
	withEvents := m.Get(ctx, 3)
	withEvents.Record(ctx, "ev1", "Math")

	m.Prune(ctx, time.Hour)

	m.mu.Lock()
	_, hasIdle := m.sessions[1]
	_, hasBusy := m.sessions[2]
	_, hasEvents := m.sessions[3]
	m.mu.Unlock()

	if hasIdle {
		t.Fatalf("idle session survived prune")
	}
	if !hasBusy || !hasEvents {
		t.Fatalf("busy=%v withEvents=%v, want both kept", hasBusy, hasEvents)
	}
	_ = idle
}
