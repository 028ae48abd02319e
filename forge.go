// Package forge is the microVM execution engine: it spawns ephemeral
// Firecracker guests, drives them through a well-defined lifecycle, and
// certifies that running the same command twice produces byte-identical
// output.
//
// The block/manifest/trust-score domain model, the HTTP gateway, the Nix
// derivation builder, execution-record persistence, and CLI/config
// loading are external collaborators and out of scope for this module.
package forge

import (
	"github.com/forgevm/forge/internal/block"
	"github.com/forgevm/forge/internal/config"
	"github.com/forgevm/forge/internal/execution"
	"github.com/forgevm/forge/internal/ids"
	"github.com/forgevm/forge/internal/orchestrator"
	"github.com/forgevm/forge/internal/runner"
	"github.com/forgevm/forge/internal/snapshotstore"
	"github.com/forgevm/forge/internal/transcript"
	"github.com/forgevm/forge/internal/vmm"
)

// Re-exported so callers outside internal/ have a single import path for
// the core types.
type (
	Block           = block.Block
	Config          = config.Config
	ExecutionRecord = execution.Record
	ExecutionStatus = execution.Status
	VMConfig        = vmm.VMConfig
	VmHandle        = vmm.VmHandle
	VmmBackend      = vmm.VmmBackend
	Orchestrator    = orchestrator.Orchestrator
	BlockRunner     = runner.BlockRunner
	VMID            = ids.VMID
	SnapshotID      = ids.SnapshotID
	ExecutionID     = ids.ExecutionID
	BlockID         = ids.BlockID
	UserID          = ids.UserID
	ContentHash     = ids.ContentHash
	SnapshotStore   = snapshotstore.Store
	SnapshotEntry   = snapshotstore.Entry
	TranscriptStore = transcript.Store
)

// DefaultConfig returns sane defaults for binary/image/runtime paths.
func DefaultConfig() *Config {
	return config.DefaultConfig()
}

// NewFirecrackerBackend constructs the default VMM backend from a
// Config. If cfg.TranscriptDir is non-empty, the backend is wired with
// a transcript store that retains the raw serial capture of any run
// whose output parse falls back to the all-or-nothing raw-bytes path,
// so a bad parse can be inspected after the fact.
func NewFirecrackerBackend(cfg *Config) (*vmm.FirecrackerBackend, error) {
	backend := vmm.NewFirecrackerBackend(cfg.BinaryPath, cfg.SocketDir, cfg.SnapshotDir)

	if cfg.TranscriptDir != "" {
		store, err := transcript.Open(cfg.TranscriptDir)
		if err != nil {
			return nil, err
		}
		backend.SetTranscriptSaver(store)
	}

	return backend, nil
}

// OpenSnapshotStore opens the SQLite index of (SnapshotId, mem path,
// state path) tuples at cfg.SnapshotIndexPath, used to enumerate and
// garbage-collect the paired snapshot artifacts a FirecrackerBackend
// writes under cfg.SnapshotDir. Callers that create snapshots directly
// through a VmmBackend are responsible for calling Record after a
// successful Snapshot call; this store only indexes, it does not
// intercept the snapshot path itself.
func OpenSnapshotStore(cfg *Config) (*SnapshotStore, error) {
	return snapshotstore.Open(cfg.SnapshotIndexPath)
}

// NewOrchestrator wraps backend in a concurrency-safe live-VM registry.
func NewOrchestrator(backend VmmBackend) *Orchestrator {
	return orchestrator.New(backend)
}

// NewBlockRunner builds a BlockRunner over backend using cfg's defaults
// for VM shape and execution timeout.
func NewBlockRunner(backend VmmBackend, cfg *Config) *BlockRunner {
	vmConfig := vmm.VMConfig{
		KernelPath: cfg.KernelPath,
		RootfsPath: cfg.RootfsPath,
		VCPUCount:  cfg.DefaultVCPUs,
		MemSizeMiB: cfg.DefaultMemoryMB,
		BootArgs:   cfg.DefaultBootArgs,
	}
	return runner.WithTimeout(backend, vmConfig, cfg.ExecuteTimeout)
}
