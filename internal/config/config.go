// Package config holds the runtime configuration for the microVM
// execution engine: binary and image paths, per-VM working directories,
// and default guest shape.
package config

import (
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Config describes where the engine's binaries, images, and runtime
// artifacts live.
type Config struct {
	// BinaryPath is the path to the VMM executable. A bare name is
	// resolved through PATH at spawn/health-check time; an absolute path
	// must exist outright.
	BinaryPath string

	// KernelPath is the path to the vmlinux kernel image.
	KernelPath string

	// RootfsPath is the path to the root filesystem image.
	RootfsPath string

	// SocketDir is the directory where per-VM control sockets are
	// created. Must be writable.
	SocketDir string

	// SnapshotDir is the directory where paired (.mem, .state) snapshot
	// files are written. Must be writable.
	SnapshotDir string

	// TranscriptDir is the directory where compressed raw serial-console
	// captures are optionally retained for debugging a failed parse.
	TranscriptDir string

	// SnapshotIndexPath is the path to the SQLite snapshot index.
	SnapshotIndexPath string

	// DefaultVCPUs is the default virtual CPU count for a VmConfig that
	// does not specify one.
	DefaultVCPUs int

	// DefaultMemoryMB is the default guest memory size in mebibytes.
	DefaultMemoryMB int

	// DefaultBootArgs is the default kernel command line.
	DefaultBootArgs string

	// ExecuteTimeout bounds how long execute_command waits for the guest
	// serial console to reach EOF before killing the child.
	ExecuteTimeout time.Duration

	// SocketWaitTimeout records how long spawn waits for the control
	// socket file to appear after launching the VMM child. The
	// FirecrackerBackend built by forge.NewFirecrackerBackend does not
	// read this field; it always waits a fixed 5 seconds.
	SocketWaitTimeout time.Duration
}

// DefaultConfig returns a configuration using well-known temp directories
// and a bare binary name resolved through PATH, mirroring the
// "defaults constructor" pattern the backend's own constructor offers.
func DefaultConfig() *Config {
	base := filepath.Join(os.TempDir(), "forge")

	return &Config{
		BinaryPath:        "firecracker",
		KernelPath:        filepath.Join(base, "kernel", "vmlinux"),
		RootfsPath:        filepath.Join(base, "rootfs.ext4"),
		SocketDir:         filepath.Join(base, "sockets"),
		SnapshotDir:       filepath.Join(base, "snapshots"),
		TranscriptDir:     filepath.Join(base, "transcripts"),
		SnapshotIndexPath: filepath.Join(base, "snapshots.db"),
		DefaultVCPUs:      1,
		DefaultMemoryMB:   128,
		DefaultBootArgs:   "console=ttyS0 reboot=k panic=1 pci=off",
		ExecuteTimeout:    30 * time.Second,
		SocketWaitTimeout: 5 * time.Second,
	}
}

// EnsureDirs creates the directories this config points at.
func (c *Config) EnsureDirs() error {
	for _, d := range []string{c.SocketDir, c.SnapshotDir, c.TranscriptDir, filepath.Dir(c.SnapshotIndexPath)} {
		if d == "" {
			continue
		}
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}

// FindBinary locates a binary by name via PATH. Returns the resolved
// absolute path, or "" if not found.
func FindBinary(name string) string {
	if p, err := exec.LookPath(name); err == nil {
		return p
	}
	return ""
}
