// Package orchestrator provides a concurrency-safe registry of live VM
// ids guarding a pluggable VmmBackend.
package orchestrator

import (
	"context"
	"sync"

	"github.com/forgevm/forge/internal/forgeerr"
	"github.com/forgevm/forge/internal/ids"
	"github.com/forgevm/forge/internal/vmm"
)

// Orchestrator tracks which VM ids are currently live and enforces the
// "known VM" precondition before snapshot and terminate. It is the only
// shared mutable state in the core; backends themselves must be safe
// for concurrent use but need no locking of their own to satisfy this
// type's contract.
type Orchestrator struct {
	mu      sync.Mutex
	active  map[ids.VMID]struct{}
	backend vmm.VmmBackend
}

// New creates an orchestrator guarding backend.
func New(backend vmm.VmmBackend) *Orchestrator {
	return &Orchestrator{
		active:  make(map[ids.VMID]struct{}),
		backend: backend,
	}
}

// Spawn delegates to the backend; on success the returned VM id is
// inserted into the registry.
func (o *Orchestrator) Spawn(ctx context.Context, config vmm.VMConfig) (*vmm.VmHandle, error) {
	handle, err := o.backend.Spawn(ctx, config)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.active[handle.ID] = struct{}{}
	o.mu.Unlock()

	return handle, nil
}

// Snapshot fails VmNotFound if handle's id is not registered; otherwise
// it delegates to the backend.
func (o *Orchestrator) Snapshot(ctx context.Context, handle *vmm.VmHandle) (ids.SnapshotID, error) {
	if !o.isActive(handle.ID) {
		return ids.SnapshotID{}, &forgeerr.VmNotFound{VMID: handle.ID}
	}
	return o.backend.Snapshot(ctx, handle)
}

// Restore delegates to the backend; on success the returned VM id is
// inserted into the registry.
func (o *Orchestrator) Restore(ctx context.Context, snapshotID ids.SnapshotID) (*vmm.VmHandle, error) {
	handle, err := o.backend.Restore(ctx, snapshotID)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.active[handle.ID] = struct{}{}
	o.mu.Unlock()

	return handle, nil
}

// Terminate fails VmNotFound if handle's id is not registered; otherwise
// it delegates to the backend and, only on success, removes the id. On
// backend-terminate failure the id stays registered.
func (o *Orchestrator) Terminate(ctx context.Context, handle *vmm.VmHandle) error {
	if !o.isActive(handle.ID) {
		return &forgeerr.VmNotFound{VMID: handle.ID}
	}

	if err := o.backend.Terminate(ctx, handle); err != nil {
		return err
	}

	o.mu.Lock()
	delete(o.active, handle.ID)
	o.mu.Unlock()

	return nil
}

// ActiveCount returns the cardinality of the registry.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

func (o *Orchestrator) isActive(id ids.VMID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[id]
	return ok
}
