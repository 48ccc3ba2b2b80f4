package store_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/gwlsn/rawray/internal/batch"
	"github.com/gwlsn/rawray/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "rawray.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun(t *testing.T, paths ...string) *batch.Run {
	t.Helper()
	run, err := batch.NewRun(paths, batch.FixedDirectory("/out"), "webp", 80, true)
	if err != nil {
		t.Fatal(err)
	}
	return run
}

func TestSaveAndGetRun(t *testing.T) {
	s := newTestStore(t)

	run := sampleRun(t, "/photos/a.orf", "/photos/b.cr2")
	run.Status = batch.StatusComplete
	run.SuccessCount = 1
	run.BytesOut = 4096
	run.StartedAt = time.Now()
	run.CompletedAt = time.Now()
	run.Items[0].Status = batch.ItemSucceeded
	run.Items[0].OutputPath = "/out/a.webp"
	run.Items[0].OutputSize = 4096
	run.Items[0].Deleted = true
	run.Items[1].Status = batch.ItemFailed
	run.Items[1].FailKind = batch.FailDecode
	run.Items[1].Error = "corrupt raw data"
	run.Items[1].Warning = "could not delete original"

	if err := s.SaveRun(run); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetRun(run.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("run not found after save")
	}

	if got.Status != batch.StatusComplete || got.Format != "webp" || got.Quality != 80 {
		t.Errorf("run fields wrong: %+v", got)
	}
	if !got.DeleteOriginals {
		t.Error("delete_originals not persisted")
	}
	if got.Destination.Mode != batch.DestFixed || got.Destination.Dir != "/out" {
		t.Errorf("destination wrong: %+v", got.Destination)
	}
	if got.SuccessCount != 1 || got.BytesOut != 4096 {
		t.Errorf("counters wrong: %d / %d", got.SuccessCount, got.BytesOut)
	}

	if len(got.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got.Items))
	}
	if got.Items[0].InputPath != "/photos/a.orf" || got.Items[1].InputPath != "/photos/b.cr2" {
		t.Error("item order not preserved")
	}
	if got.Items[0].Status != batch.ItemSucceeded || !got.Items[0].Deleted {
		t.Errorf("item 0 wrong: %+v", got.Items[0])
	}
	if got.Items[1].FailKind != batch.FailDecode || got.Items[1].Error != "corrupt raw data" {
		t.Errorf("item 1 wrong: %+v", got.Items[1])
	}
	if got.Items[1].Warning != "could not delete original" {
		t.Errorf("warning not persisted: %+v", got.Items[1])
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetRun("nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Error("expected nil for unknown run")
	}
}

func TestSaveRunReplacesItems(t *testing.T) {
	s := newTestStore(t)

	run := sampleRun(t, "/photos/a.orf", "/photos/b.orf")
	if err := s.SaveRun(run); err != nil {
		t.Fatal(err)
	}

	run.Items[0].Status = batch.ItemSucceeded
	if err := s.SaveRun(run); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetRun(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Items) != 2 {
		t.Fatalf("items should be replaced, not appended: got %d", len(got.Items))
	}
	if got.Items[0].Status != batch.ItemSucceeded {
		t.Errorf("updated item state lost: %s", got.Items[0].Status)
	}
}

func TestGetAllRunsOrder(t *testing.T) {
	s := newTestStore(t)

	first := sampleRun(t, "/photos/a.orf")
	first.CreatedAt = time.Now().Add(-time.Hour)
	second := sampleRun(t, "/photos/b.orf")

	if err := s.SaveRun(second); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveRun(first); err != nil {
		t.Fatal(err)
	}

	runs, err := s.GetAllRuns()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != first.ID || runs[1].ID != second.ID {
		t.Error("runs not ordered oldest first")
	}
}

func TestDeleteRunCascades(t *testing.T) {
	s := newTestStore(t)

	run := sampleRun(t, "/photos/a.orf")
	if err := s.SaveRun(run); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteRun(run.ID); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetRun(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("run should be gone")
	}
}

func TestMarkInterrupted(t *testing.T) {
	s := newTestStore(t)

	running := sampleRun(t, "/photos/a.orf", "/photos/b.orf")
	running.Status = batch.StatusRunning
	running.Items[0].Status = batch.ItemRunning
	if err := s.SaveRun(running); err != nil {
		t.Fatal(err)
	}

	pending := sampleRun(t, "/photos/c.orf")
	if err := s.SaveRun(pending); err != nil {
		t.Fatal(err)
	}

	count, err := s.MarkInterrupted()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected 1 interrupted run, got %d", count)
	}

	got, err := s.GetRun(running.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != batch.StatusFailed {
		t.Errorf("interrupted run should be failed, got %s", got.Status)
	}
	if got.Items[0].Status != batch.ItemFailed {
		t.Errorf("in-flight item should be failed, got %s", got.Items[0].Status)
	}
	if got.Items[1].Status != batch.ItemSkipped {
		t.Errorf("pending item should be skipped, got %s", got.Items[1].Status)
	}

	// Pending runs survive a restart untouched.
	gotPending, err := s.GetRun(pending.ID)
	if err != nil {
		t.Fatal(err)
	}
	if gotPending.Status != batch.StatusPending {
		t.Errorf("pending run should stay pending, got %s", gotPending.Status)
	}
}

func TestConversionCounters(t *testing.T) {
	s := newTestStore(t)

	if err := s.AddConverted(3, 1000); err != nil {
		t.Fatal(err)
	}
	if err := s.AddConverted(2, 500); err != nil {
		t.Fatal(err)
	}

	sf, lf, sb, lb, err := s.SessionLifetimeStats()
	if err != nil {
		t.Fatal(err)
	}
	if sf != 5 || lf != 5 || sb != 1500 || lb != 1500 {
		t.Errorf("unexpected counters: %d %d %d %d", sf, lf, sb, lb)
	}

	if err := s.ResetSession(); err != nil {
		t.Fatal(err)
	}

	sf, lf, sb, lb, err = s.SessionLifetimeStats()
	if err != nil {
		t.Fatal(err)
	}
	if sf != 0 || sb != 0 {
		t.Errorf("session counters should be zero: %d / %d", sf, sb)
	}
	if lf != 5 || lb != 1500 {
		t.Errorf("lifetime counters should survive reset: %d / %d", lf, lb)
	}
}

func TestStoreReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rawray.db")

	s, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	run := sampleRun(t, "/photos/a.orf")
	if err := s.SaveRun(run); err != nil {
		t.Fatal(err)
	}
	if err := s.AddConverted(1, 100); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	got, err := reopened.GetRun(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("run lost across reopen")
	}

	_, lf, _, lb, err := reopened.SessionLifetimeStats()
	if err != nil {
		t.Fatal(err)
	}
	if lf != 1 || lb != 100 {
		t.Errorf("lifetime counters lost across reopen: %d / %d", lf, lb)
	}
}
