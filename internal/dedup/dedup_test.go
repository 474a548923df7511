package dedup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func openTempTracker(t *testing.T) (*Tracker, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seen.db")
	tr, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr, path
}

func TestOpenStartsEmpty(t *testing.T) {
	tr, _ := openTempTracker(t)

	if tr.Count() != 0 {
		t.Errorf("Count = %d, want 0", tr.Count())
	}
	if tr.Contains(1) {
		t.Error("Contains(1) = true on a fresh tracker")
	}
	records, err := tr.Records(context.Background())
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Records = %v, want none", records)
	}
}

func TestAddAndContains(t *testing.T) {
	tr, _ := openTempTracker(t)

	if err := tr.Add(context.Background(), 42, "Electricity bill"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !tr.Contains(42) {
		t.Error("Contains(42) = false after Add")
	}
	if tr.Contains(43) {
		t.Error("Contains(43) = true, never added")
	}
	if tr.Count() != 1 {
		t.Errorf("Count = %d, want 1", tr.Count())
	}
}

func TestAddIsIdempotent(t *testing.T) {
	tr, _ := openTempTracker(t)

	for i := 0; i < 2; i++ {
		if err := tr.Add(context.Background(), 7, "Receipt"); err != nil {
			t.Fatalf("Add #%d: %v", i+1, err)
		}
	}
	if tr.Count() != 1 {
		t.Errorf("Count = %d, want 1", tr.Count())
	}
	records, err := tr.Records(context.Background())
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Records = %v, want exactly one", records)
	}
}

func TestReopenKeepsForwards(t *testing.T) {
	tr, path := openTempTracker(t)

	if err := tr.Add(context.Background(), 1, "a"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := tr.Add(context.Background(), 2, "b"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if !reopened.Contains(1) || !reopened.Contains(2) {
		t.Error("reopened tracker lost forwards")
	}
	if reopened.Count() != 2 {
		t.Errorf("Count after reopen = %d, want 2", reopened.Count())
	}
}

func TestRecordsOldestFirst(t *testing.T) {
	tr, _ := openTempTracker(t)

	// Ascending ids inserted in order keep the expectation stable whether
	// the timestamps differ or tie.
	for id, title := range []string{"first", "second", "third"} {
		if err := tr.Add(context.Background(), int64(id)+1, title); err != nil {
			t.Fatalf("Add(%q): %v", title, err)
		}
	}

	records, err := tr.Records(context.Background())
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	var ids []int64
	for _, r := range records {
		ids = append(ids, r.DocumentID)
		if r.ForwardedAt.IsZero() {
			t.Errorf("record %d has zero ForwardedAt", r.DocumentID)
		}
	}
	if diff := cmp.Diff([]int64{1, 2, 3}, ids); diff != "" {
		t.Errorf("record order mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "nested", "seen.db")

	tr, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tr.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file missing: %v", err)
	}
}

func TestOpenRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.db")
	if err := os.WriteFile(path, []byte("this is not a sqlite database"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if tr, err := Open(path); err == nil {
		tr.Close()
		t.Fatal("Open succeeded on a corrupt file")
	}
}

func TestFailedAddLeavesSetUnchanged(t *testing.T) {
	tr, _ := openTempTracker(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tr.Add(ctx, 99, "never lands"); err == nil {
		t.Fatal("Add succeeded with a canceled context")
	}
	if tr.Contains(99) {
		t.Error("Contains(99) = true after failed Add")
	}
}
