package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "classbot/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "classbot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("Open(none) = %v, %v; want nil, nil", st, err)
	}
}

func TestCreatedEventsRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	now := time.Now()
	for i, id := range []string{"ev1", "ev2", "ev3"} {
		err := st.SaveCreated(ctx, 42, CreatedEvent{EventID: id, Summary: "CSM", At: now.Add(time.Duration(i) * time.Second)})
		if err != nil {
			t.Fatalf("SaveCreated(%s): %v", id, err)
		}
	}
	// Other chat's journal stays separate.
	if err := st.SaveCreated(ctx, 7, CreatedEvent{EventID: "other", At: now}); err != nil {
		t.Fatalf("SaveCreated: %v", err)
	}

	got, err := st.ListCreated(ctx, 42)
	if err != nil {
		t.Fatalf("ListCreated: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].EventID != "ev1" || got[2].EventID != "ev3" {
		t.Fatalf("order wrong: %+v", got)
	}

	if err := st.RemoveCreated(ctx, 42, "ev2"); err != nil {
		t.Fatalf("RemoveCreated: %v", err)
	}
	got, err = st.ListCreated(ctx, 42)
	if err != nil {
		t.Fatalf("ListCreated: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len after remove = %d, want 2", len(got))
	}
}

func TestSaveCreatedUpsert(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.SaveCreated(ctx, 1, CreatedEvent{EventID: "ev1", Summary: "old"}); err != nil {
		t.Fatalf("SaveCreated: %v", err)
	}
	if err := st.SaveCreated(ctx, 1, CreatedEvent{EventID: "ev1", Summary: "new"}); err != nil {
		t.Fatalf("SaveCreated upsert: %v", err)
	}
	got, err := st.ListCreated(ctx, 1)
	if err != nil {
		t.Fatalf("ListCreated: %v", err)
	}
	if len(got) != 1 || got[0].Summary != "new" {
		t.Fatalf("upsert result: %+v", got)
	}
}

func TestPruneCreated(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-200 * 24 * time.Hour)
	if err := st.SaveCreated(ctx, 1, CreatedEvent{EventID: "stale", At: old}); err != nil {
		t.Fatalf("SaveCreated: %v", err)
	}
	if err := st.SaveCreated(ctx, 1, CreatedEvent{EventID: "fresh", At: time.Now()}); err != nil {
		t.Fatalf("SaveCreated: %v", err)
	}

	n, err := st.PruneCreated(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneCreated: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned = %d, want 1", n)
	}
	got, err := st.ListCreated(ctx, 1)
	if err != nil {
		t.Fatalf("ListCreated: %v", err)
	}
	if len(got) != 1 || got[0].EventID != "fresh" {
		t.Fatalf("journal after prune: %+v", got)
	}
}
