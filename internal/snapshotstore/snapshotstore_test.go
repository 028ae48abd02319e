package snapshotstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/forgevm/forge/internal/ids"
)

func TestRecordAndList(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "snapshots.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	id := ids.NewSnapshotID()
	memPath := filepath.Join(dir, id.String()+".mem")
	statePath := filepath.Join(dir, id.String()+".state")

	if err := store.Record(id, memPath, statePath); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	entries, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("List() = %d entries, want 1", len(entries))
	}
	if entries[0].SnapshotID != id {
		t.Errorf("SnapshotID = %s, want %s", entries[0].SnapshotID, id)
	}
	if entries[0].MemPath != memPath {
		t.Errorf("MemPath = %s, want %s", entries[0].MemPath, memPath)
	}
	if entries[0].StatePath != statePath {
		t.Errorf("StatePath = %s, want %s", entries[0].StatePath, statePath)
	}
}

func TestRemoveDeletesIndexEntryOnly(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "snapshots.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	id := ids.NewSnapshotID()
	memPath := filepath.Join(dir, id.String()+".mem")
	if err := os.WriteFile(memPath, []byte("fake mem"), 0600); err != nil {
		t.Fatalf("write fake mem file: %v", err)
	}
	if err := store.Record(id, memPath, filepath.Join(dir, id.String()+".state")); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if err := store.Remove(id); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	entries, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("List() after Remove = %d entries, want 0", len(entries))
	}
	if _, err := os.Stat(memPath); err != nil {
		t.Errorf("Remove() must not delete the underlying file: %v", err)
	}
}

func TestOrphanedReportsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "snapshots.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	complete := ids.NewSnapshotID()
	completeMem := filepath.Join(dir, complete.String()+".mem")
	completeState := filepath.Join(dir, complete.String()+".state")
	os.WriteFile(completeMem, []byte("mem"), 0600)
	os.WriteFile(completeState, []byte("state"), 0600)
	if err := store.Record(complete, completeMem, completeState); err != nil {
		t.Fatalf("Record(complete) error = %v", err)
	}

	orphan := ids.NewSnapshotID()
	orphanMem := filepath.Join(dir, orphan.String()+".mem")
	orphanState := filepath.Join(dir, orphan.String()+".state")
	os.WriteFile(orphanMem, []byte("mem"), 0600)
	// State file deliberately not written.
	if err := store.Record(orphan, orphanMem, orphanState); err != nil {
		t.Fatalf("Record(orphan) error = %v", err)
	}

	orphans, err := store.Orphaned()
	if err != nil {
		t.Fatalf("Orphaned() error = %v", err)
	}
	if len(orphans) != 1 {
		t.Fatalf("Orphaned() = %d entries, want 1", len(orphans))
	}
	if orphans[0].SnapshotID != orphan {
		t.Errorf("Orphaned()[0].SnapshotID = %s, want %s", orphans[0].SnapshotID, orphan)
	}
}
