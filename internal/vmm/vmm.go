// Package vmm defines the VMM backend abstraction and its concrete
// Firecracker implementation: spawn, snapshot, restore, terminate,
// health-check, and the determinism-bearing execute-command path.
package vmm

import (
	"context"
	"os/exec"
	"time"

	"github.com/forgevm/forge/internal/ids"
)

// VMConfig is an immutable snapshot of guest boot parameters.
type VMConfig struct {
	KernelPath string
	RootfsPath string
	VCPUCount  int
	MemSizeMiB int
	BootArgs   string
}

// WithDefaults fills in any unset fields with spec defaults: 1 vCPU,
// 128 MiB, and the standard minimal boot args.
func (c VMConfig) WithDefaults() VMConfig {
	if c.VCPUCount <= 0 {
		c.VCPUCount = 1
	}
	if c.MemSizeMiB <= 0 {
		c.MemSizeMiB = 128
	}
	if c.BootArgs == "" {
		c.BootArgs = "console=ttyS0 reboot=k panic=1 pci=off"
	}
	return c
}

// VmHandle owns a running VM: its id, the path to its control socket,
// the child process handle, and its creation timestamp. Dropping a
// VmHandle value does not terminate the VM — only Terminate does, and a
// terminated handle must never be reused.
type VmHandle struct {
	ID         ids.VMID
	SocketPath string
	CreatedAt  time.Time

	cmd    *exec.Cmd
	cancel context.CancelFunc
}

// ExecutionOutput is the raw triple a backend returns from
// execute_command: the captured stdout and stderr byte streams and the
// guest command's exit code.
type ExecutionOutput struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int32
}

// VmmBackend is the single capability surface every concrete VMM
// implementation exposes. Implementations are constructed once and
// shared by reference across concurrent callers; the orchestrator is
// the only caller that needs synchronization on top of it.
type VmmBackend interface {
	// Spawn launches a fresh VM from config and boots it, returning an
	// owning handle.
	Spawn(ctx context.Context, config VMConfig) (*VmHandle, error)

	// Snapshot pauses a live VM, writes a paired (memory, state) file
	// set, and resumes the VM. The handle must name a live VM.
	Snapshot(ctx context.Context, handle *VmHandle) (ids.SnapshotID, error)

	// Restore boots a fresh VM from a previously written snapshot pair.
	// The returned handle is a distinct identity from the one that
	// produced the snapshot.
	Restore(ctx context.Context, snapshotID ids.SnapshotID) (*VmHandle, error)

	// Terminate kills the VM's child process and best-effort unlinks its
	// socket. Idempotency is not required.
	Terminate(ctx context.Context, handle *VmHandle) error

	// HealthCheck succeeds iff /dev/kvm exists and is readable and the
	// configured VMM binary resolves.
	HealthCheck(ctx context.Context) error

	// ExecuteCommand spawns a VM whose guest init runs command to
	// completion, captures its stdout/stderr/exit-code from the serial
	// console, and powers the VM off. timeout bounds the wait for the
	// guest to finish.
	ExecuteCommand(ctx context.Context, config VMConfig, command string, timeout time.Duration) (ExecutionOutput, error)
}
