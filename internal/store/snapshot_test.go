package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/DrctNews/DRCT-NEWS/internal/domain"
)

func newTestSnapshotStore(t *testing.T, path string) *SnapshotStore {
	t.Helper()

	hookLogger, _ := logtest.NewNullLogger()
	store, err := NewSnapshotStore(path, logrus.NewEntry(hookLogger))
	if err != nil {
		t.Fatalf("NewSnapshotStore returned error: %v", err)
	}

	return store
}

func TestNewSnapshotStoreRequiresPath(t *testing.T) {
	if _, err := NewSnapshotStore("", nil); err == nil {
		t.Fatalf("expected empty path to error")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.json")
	ctx := context.Background()

	saved := []domain.GroupRecord{
		{ChatID: -100200, Title: "News Watchers", Kind: domain.KindSupergroup, Active: true, AddedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
		{ChatID: -300400, Title: "Quiet Corner", Kind: domain.KindGroup, Active: false, AddedAt: time.Date(2025, 4, 2, 11, 30, 0, 0, time.UTC)},
	}

	if err := newTestSnapshotStore(t, path).Save(ctx, saved); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	// A fresh store instance must reproduce the identical record set.
	loaded, err := newTestSnapshotStore(t, path).Load(ctx)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if len(loaded) != len(saved) {
		t.Fatalf("expected %d records, got %d", len(saved), len(loaded))
	}

	byID := make(map[int64]domain.GroupRecord, len(loaded))
	for _, rec := range loaded {
		byID[rec.ChatID] = rec
	}

	for _, want := range saved {
		got, ok := byID[want.ChatID]
		if !ok {
			t.Fatalf("expected record for %d", want.ChatID)
		}
		if got.Title != want.Title || got.Kind != want.Kind || got.Active != want.Active {
			t.Fatalf("record mismatch for %d: got %+v want %+v", want.ChatID, got, want)
		}
		if !got.AddedAt.Equal(want.AddedAt) {
			t.Fatalf("added_at mismatch for %d: got %v want %v", want.ChatID, got.AddedAt, want.AddedAt)
		}
	}
}

func TestSnapshotMissingFileIsEmptyState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.json")

	records, err := newTestSnapshotStore(t, path).Load(context.Background())
	if err != nil {
		t.Fatalf("expected missing file to load as empty, got error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty state, got %d records", len(records))
	}
}

func TestSnapshotCorruptFileIsEmptyState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	hookLogger, hook := logtest.NewNullLogger()
	store, err := NewSnapshotStore(path, logrus.NewEntry(hookLogger))
	if err != nil {
		t.Fatalf("NewSnapshotStore returned error: %v", err)
	}

	records, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("expected corrupt file to load as empty, got error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty state, got %d records", len(records))
	}

	found := false
	for _, entry := range hook.AllEntries() {
		if entry.Data["event"] == "snapshot_corrupt" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected corrupt snapshot to be logged")
	}
}

func TestSnapshotSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "groups.json")
	store := newTestSnapshotStore(t, path)

	record := []domain.GroupRecord{{ChatID: -1, Title: "One", Kind: domain.KindGroup, Active: true, AddedAt: time.Now().UTC()}}
	if err := store.Save(context.Background(), record); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "groups.json" {
		t.Fatalf("expected only the snapshot file, got %v", entries)
	}
}

func TestSnapshotSaveOverwritesWholesale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.json")
	store := newTestSnapshotStore(t, path)
	ctx := context.Background()

	first := []domain.GroupRecord{
		{ChatID: -1, Title: "One", Kind: domain.KindGroup, Active: true, AddedAt: time.Now().UTC()},
		{ChatID: -2, Title: "Two", Kind: domain.KindGroup, Active: true, AddedAt: time.Now().UTC()},
	}
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	second := first[:1]
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ChatID != -1 {
		t.Fatalf("expected only chat -1 to survive, got %+v", loaded)
	}
}

func TestSnapshotPingChecksDirectory(t *testing.T) {
	dir := t.TempDir()
	store := newTestSnapshotStore(t, filepath.Join(dir, "groups.json"))

	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("expected ping to succeed, got %v", err)
	}

	gone := newTestSnapshotStore(t, filepath.Join(dir, "missing", "groups.json"))
	if err := gone.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping to fail for missing directory")
	}
}
