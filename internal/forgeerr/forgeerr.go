// Package forgeerr defines the tagged failure taxonomy shared by every
// component of the execution engine. Each kind is its own struct type so
// callers can recover it with errors.As instead of matching on strings.
package forgeerr

import (
	"fmt"

	"github.com/forgevm/forge/internal/ids"
)

// BinaryNotFound means the configured VMM executable could not be
// resolved, either as an absolute path or via PATH.
type BinaryNotFound struct {
	Path string
}

func (e *BinaryNotFound) Error() string {
	return fmt.Sprintf("binary not found: %s", e.Path)
}

// KvmUnavailable means /dev/kvm is missing or not readable.
type KvmUnavailable struct {
	Reason string
}

func (e *KvmUnavailable) Error() string {
	return fmt.Sprintf("kvm unavailable: %s", e.Reason)
}

// SpawnFailed covers child launch, socket-appearance timeout, and
// configure-and-boot failure.
type SpawnFailed struct {
	Msg string
}

func (e *SpawnFailed) Error() string {
	return fmt.Sprintf("spawn failed: %s", e.Msg)
}

// SnapshotFailed reports a failed snapshot attempt against a live VM.
type SnapshotFailed struct {
	VMID   ids.VMID
	Reason string
}

func (e *SnapshotFailed) Error() string {
	return fmt.Sprintf("snapshot failed for vm %s: %s", e.VMID, e.Reason)
}

// RestoreFailed reports a failed restore from a snapshot.
type RestoreFailed struct {
	SnapshotID ids.SnapshotID
	Reason     string
}

func (e *RestoreFailed) Error() string {
	return fmt.Sprintf("restore failed for snapshot %s: %s", e.SnapshotID, e.Reason)
}

// ApiError wraps a failure from a ControlClient call: a non-2xx status,
// a connect failure, or a body-read failure.
type ApiError struct {
	Msg string
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("api error: %s", e.Msg)
}

// VmNotFound signals an orchestrator precondition violation: the caller
// referenced a VM id that is not (or no longer) registered.
type VmNotFound struct {
	VMID ids.VMID
}

func (e *VmNotFound) Error() string {
	return fmt.Sprintf("vm not found: %s", e.VMID)
}

// Io wraps a low-level I/O failure from any phase.
type Io struct {
	Cause error
}

func (e *Io) Error() string {
	return fmt.Sprintf("io error: %s", e.Cause)
}

func (e *Io) Unwrap() error {
	return e.Cause
}
