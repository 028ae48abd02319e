package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/forgevm/forge/internal/forgeerr"
	"github.com/forgevm/forge/internal/ids"
	"github.com/forgevm/forge/internal/vmm"
)

// mockBackend is a test double implementing vmm.VmmBackend without a
// real VMM, so the orchestrator's registry invariants can be tested in
// isolation.
type mockBackend struct {
	spawnErr     error
	terminateErr error
}

func (m *mockBackend) Spawn(ctx context.Context, config vmm.VMConfig) (*vmm.VmHandle, error) {
	if m.spawnErr != nil {
		return nil, m.spawnErr
	}
	return &vmm.VmHandle{ID: ids.NewVMID(), CreatedAt: time.Now()}, nil
}

func (m *mockBackend) Snapshot(ctx context.Context, handle *vmm.VmHandle) (ids.SnapshotID, error) {
	return ids.NewSnapshotID(), nil
}

func (m *mockBackend) Restore(ctx context.Context, snapshotID ids.SnapshotID) (*vmm.VmHandle, error) {
	return &vmm.VmHandle{ID: ids.NewVMID(), CreatedAt: time.Now()}, nil
}

func (m *mockBackend) Terminate(ctx context.Context, handle *vmm.VmHandle) error {
	return m.terminateErr
}

func (m *mockBackend) HealthCheck(ctx context.Context) error {
	return nil
}

func (m *mockBackend) ExecuteCommand(ctx context.Context, config vmm.VMConfig, command string, timeout time.Duration) (vmm.ExecutionOutput, error) {
	return vmm.ExecutionOutput{}, nil
}

func TestOrchestratorSpawnThenTerminateRestoresActiveCount(t *testing.T) {
	o := New(&mockBackend{})

	before := o.ActiveCount()
	handle, err := o.Spawn(context.Background(), vmm.VMConfig{})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	if o.ActiveCount() != before+1 {
		t.Fatalf("ActiveCount() = %d, want %d", o.ActiveCount(), before+1)
	}

	if err := o.Terminate(context.Background(), handle); err != nil {
		t.Fatalf("Terminate() error = %v", err)
	}
	if o.ActiveCount() != before {
		t.Errorf("ActiveCount() after terminate = %d, want %d", o.ActiveCount(), before)
	}
}

func TestOrchestratorSnapshotUnknownVmFails(t *testing.T) {
	o := New(&mockBackend{})
	handle := &vmm.VmHandle{ID: ids.NewVMID()}

	_, err := o.Snapshot(context.Background(), handle)
	var notFound *forgeerr.VmNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("Snapshot(unknown) = %v, want *forgeerr.VmNotFound", err)
	}
}

func TestOrchestratorTerminateUnknownVmFails(t *testing.T) {
	o := New(&mockBackend{})
	handle := &vmm.VmHandle{ID: ids.NewVMID()}

	err := o.Terminate(context.Background(), handle)
	var notFound *forgeerr.VmNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("Terminate(unknown) = %v, want *forgeerr.VmNotFound", err)
	}
}

// TestOrchestratorSpawnFailurePropagation covers scenario 6: a backend
// whose spawn always fails must have its exact error surfaced, and
// active_count must stay at zero.
func TestOrchestratorSpawnFailurePropagation(t *testing.T) {
	wantErr := &forgeerr.SpawnFailed{Msg: "mock"}
	o := New(&mockBackend{spawnErr: wantErr})

	_, err := o.Spawn(context.Background(), vmm.VMConfig{})
	if err != wantErr {
		t.Errorf("Spawn() error = %v, want %v", err, wantErr)
	}
	if o.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0", o.ActiveCount())
	}
}

func TestOrchestratorTerminateFailureKeepsVmRegistered(t *testing.T) {
	o := New(&mockBackend{terminateErr: errors.New("kill failed")})

	handle, err := o.Spawn(context.Background(), vmm.VMConfig{})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	if err := o.Terminate(context.Background(), handle); err == nil {
		t.Fatal("Terminate() error = nil, want the backend's failure")
	}
	if o.ActiveCount() != 1 {
		t.Errorf("ActiveCount() after failed terminate = %d, want 1 (id must stay registered)", o.ActiveCount())
	}
}
