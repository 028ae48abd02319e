package transcript

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/forgevm/forge/internal/ids"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "transcripts"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	vmID := ids.NewVMID()
	raw := []byte("prefix noise\r\nFORGE_STDOUT_B64_START\r\naGVsbG8=")

	if err := store.Save(vmID, raw); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(vmID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Errorf("Load() = %q, want %q", got, raw)
	}
}

func TestRemoveDeletesTranscript(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "transcripts"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	vmID := ids.NewVMID()
	if err := store.Save(vmID, []byte("raw bytes")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Remove(vmID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	if _, err := store.Load(vmID); err == nil {
		t.Error("Load() after Remove() = nil error, want not-found")
	}
}

func TestLoadMissingTranscriptFails(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "transcripts"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	if _, err := store.Load(ids.NewVMID()); err == nil {
		t.Error("Load(unknown) = nil error, want not-found")
	}
}
