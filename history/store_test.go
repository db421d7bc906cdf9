package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"scriba/config"
	"scriba/decoder"
	"scriba/normalize"
	"scriba/reconcile"
)

func openTemp(t *testing.T, cfg config.HistoryConfig) *Store {
	t.Helper()
	cfg.Path = filepath.Join(t.TempDir(), "history.db")
	s, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func session(id string, state reconcile.State, text string, ended time.Time) reconcile.Session {
	s := reconcile.Session{
		ID:        id,
		State:     state,
		Revisions: 2,
		StartedAt: ended.Add(-time.Second),
		EndedAt:   ended,
	}
	if state == reconcile.Abandoned {
		s.Retracted = text
		s.Reason = reconcile.ReasonLowConfidence
		s.Last = decoder.Hypothesis{Confidence: 0.2, Scored: true}
	} else {
		s.Emitted = normalize.Output{Text: text}
	}
	return s
}

func TestDisabled(t *testing.T) {
	s, err := Open(context.Background(), config.HistoryConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if s.Enabled() {
		t.Fatal("store with empty path should be disabled")
	}
	if err := s.Record(context.Background(), session("u1", reconcile.Committed, "x", time.Now())); err != nil {
		t.Fatal(err)
	}
	entries, err := s.Recent(context.Background(), 10)
	if err != nil || entries != nil {
		t.Fatalf("got %v, %v", entries, err)
	}
}

func TestRecordAndRecent(t *testing.T) {
	s := openTemp(t, config.HistoryConfig{})
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := s.Record(ctx, session("u1", reconcile.Committed, "x = 1;", now)); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, session("u2", reconcile.Abandoned, "mumble", now.Add(time.Second))); err != nil {
		t.Fatal(err)
	}
	// open sessions are not recorded
	if err := s.Record(ctx, reconcile.Session{ID: "u3", State: reconcile.Active}); err != nil {
		t.Fatal(err)
	}
	// duplicate ids are ignored
	if err := s.Record(ctx, session("u1", reconcile.Committed, "other", now)); err != nil {
		t.Fatal(err)
	}

	entries, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if e := entries[0]; e.ID != "u2" || e.Outcome != "abandoned" || e.Text != "mumble" || !e.Scored || e.Confidence != 0.2 {
		t.Errorf("entries[0] = %+v", e)
	}
	if e := entries[1]; e.ID != "u1" || e.Outcome != "committed" || e.Text != "x = 1;" || e.Scored {
		t.Errorf("entries[1] = %+v", e)
	}
	if !entries[1].EndedAt.Equal(now) {
		t.Errorf("ended = %v, want %v", entries[1].EndedAt, now)
	}
}

func TestPrune(t *testing.T) {
	s := openTemp(t, config.HistoryConfig{RetentionDays: 1, MaxUtterances: 2})
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return now }

	s.Record(ctx, session("old", reconcile.Committed, "a", now.Add(-48*time.Hour)))
	for i, id := range []string{"n1", "n2", "n3"} {
		s.Record(ctx, session(id, reconcile.Committed, id, now.Add(time.Duration(i)*time.Minute)))
	}
	if err := s.Prune(ctx); err != nil {
		t.Fatal(err)
	}

	entries, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	if len(ids) != 2 || ids[0] != "n3" || ids[1] != "n2" {
		t.Errorf("after prune got %v, want [n3 n2]", ids)
	}
}
