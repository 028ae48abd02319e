// Package transcript optionally retains the raw serial-console capture
// bytes from an execute_command run, compressed, keyed by VM id. This is
// a debug sidecar: when the output parser's all-or-nothing fallback
// fires, the raw transcript is otherwise gone the moment the caller
// moves on. It does not persist ExecutionRecords.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/forgevm/forge/internal/ids"
)

// Store persists compressed raw serial captures under a directory, one
// file per VM id.
type Store struct {
	mu  sync.Mutex
	dir string

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Open creates a Store rooted at dir, creating the directory if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &Store{dir: dir, encoder: enc, decoder: dec}, nil
}

// Close releases the encoder/decoder resources.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encoder.Close()
	s.decoder.Close()
}

func (s *Store) path(vmID ids.VMID) string {
	return filepath.Join(s.dir, vmID.String()+".raw.zst")
}

// Save compresses and writes the raw serial capture for vmID.
func (s *Store) Save(vmID ids.VMID, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	compressed := s.encoder.EncodeAll(raw, nil)
	return os.WriteFile(s.path(vmID), compressed, 0600)
}

// Load reads back and decompresses the raw serial capture for vmID.
func (s *Store) Load(vmID ids.VMID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	compressed, err := os.ReadFile(s.path(vmID))
	if err != nil {
		return nil, err
	}
	return s.decoder.DecodeAll(compressed, nil)
}

// Remove deletes the retained transcript for vmID, if any.
func (s *Store) Remove(vmID ids.VMID) error {
	err := os.Remove(s.path(vmID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
