package vmm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/forgevm/forge/internal/forgeerr"
	"github.com/forgevm/forge/internal/ids"
)

// FirecrackerBackend launches and drives Firecracker microVM processes
// over their per-VM Unix socket management API. It holds no per-VM
// state of its own — every VM's identity and process lives entirely in
// the VmHandle that Spawn/Restore return, per "kill on drop" ownership.
type FirecrackerBackend struct {
	binaryPath  string
	socketDir   string
	snapshotDir string

	socketWaitTimeout time.Duration

	// transcripts, when set, receives the raw serial capture of every
	// execute_command run whose output failed to parse. The parser's
	// all-or-nothing fallback hands the raw bytes back as stdout, but a
	// caller such as BlockRunner keeps only their hash.
	transcripts TranscriptSaver
}

// TranscriptSaver persists a raw serial-console capture keyed by VM id.
// internal/transcript.Store implements this.
type TranscriptSaver interface {
	Save(vmID ids.VMID, raw []byte) error
}

// SetTranscriptSaver attaches a debug transcript sink. Passing nil
// disables transcript retention (the default).
func (b *FirecrackerBackend) SetTranscriptSaver(s TranscriptSaver) {
	b.transcripts = s
}

// NewFirecrackerBackend creates a backend with explicit paths.
func NewFirecrackerBackend(binaryPath, socketDir, snapshotDir string) *FirecrackerBackend {
	return &FirecrackerBackend{
		binaryPath:        binaryPath,
		socketDir:         socketDir,
		snapshotDir:       snapshotDir,
		socketWaitTimeout: 5 * time.Second,
	}
}

// WithDefaults creates a backend using system defaults: "firecracker"
// resolved via PATH, and well-known temp directories for sockets and
// snapshots.
func WithDefaults() *FirecrackerBackend {
	base := filepath.Join(os.TempDir(), "forge")
	return NewFirecrackerBackend(
		"firecracker",
		filepath.Join(base, "sockets"),
		filepath.Join(base, "snapshots"),
	)
}

func (b *FirecrackerBackend) socketPath(vmID ids.VMID) string {
	return filepath.Join(b.socketDir, vmID.String()+".sock")
}

func (b *FirecrackerBackend) snapshotMemPath(id ids.SnapshotID) string {
	return filepath.Join(b.snapshotDir, id.String()+".mem")
}

func (b *FirecrackerBackend) snapshotStatePath(id ids.SnapshotID) string {
	return filepath.Join(b.snapshotDir, id.String()+".state")
}

// whichBinary verifies the configured binary resolves, either as an
// absolute path that exists or a bare name found on PATH.
func whichBinary(path string) error {
	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		return &forgeerr.BinaryNotFound{Path: path}
	}

	for _, dir := range strings.Split(os.Getenv("PATH"), string(os.PathListSeparator)) {
		if dir == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, path)); err == nil {
			return nil
		}
	}
	return &forgeerr.BinaryNotFound{Path: path}
}

func checkKVM() error {
	if _, err := os.Stat("/dev/kvm"); err != nil {
		return &forgeerr.KvmUnavailable{Reason: "/dev/kvm not found"}
	}
	return nil
}

// waitForSocket polls for a unix socket file to appear at path.
func waitForSocket(ctx context.Context, path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return fmt.Errorf("socket %s did not appear within %v", path, timeout)
}

// configureAndBoot drives the control API through the strictly ordered
// boot-source / drives / machine-config / InstanceStart sequence.
func configureAndBoot(ctx context.Context, client *controlClient, config VMConfig) error {
	log.Printf("vmm: configuring boot-source (kernel=%s)", config.KernelPath)
	if err := client.put(ctx, "/boot-source", map[string]any{
		"kernel_image_path": config.KernelPath,
		"boot_args":         config.BootArgs,
	}); err != nil {
		return err
	}

	log.Printf("vmm: configuring rootfs drive (path=%s)", config.RootfsPath)
	if err := client.put(ctx, "/drives/rootfs", map[string]any{
		"drive_id":       "rootfs",
		"path_on_host":   config.RootfsPath,
		"is_root_device": true,
		"is_read_only":   false,
	}); err != nil {
		return err
	}

	log.Printf("vmm: configuring machine (vcpus=%d mem=%dMiB)", config.VCPUCount, config.MemSizeMiB)
	if err := client.put(ctx, "/machine-config", map[string]any{
		"vcpu_count":   config.VCPUCount,
		"mem_size_mib": config.MemSizeMiB,
	}); err != nil {
		return err
	}

	log.Printf("vmm: starting instance")
	return client.put(ctx, "/actions", map[string]any{"action_type": "InstanceStart"})
}

// launchChild starts the VMM child with --api-sock and kill-on-drop
// discipline realized as a context whose cancel also kills the process.
func launchChild(binaryPath, socketPath string) (*exec.Cmd, context.CancelFunc, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, binaryPath, "--api-sock", socketPath)
	cmd.Cancel = func() error {
		if cmd.Process != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, nil, err
	}
	return cmd, cancel, nil
}

// Spawn implements VmmBackend.
func (b *FirecrackerBackend) Spawn(ctx context.Context, config VMConfig) (*VmHandle, error) {
	if err := checkKVM(); err != nil {
		return nil, err
	}
	if err := whichBinary(b.binaryPath); err != nil {
		return nil, err
	}

	config = config.WithDefaults()
	vmID := ids.NewVMID()
	socketPath := b.socketPath(vmID)

	log.Printf("vmm: spawning vm %s (vcpus=%d mem=%dMiB)", vmID, config.VCPUCount, config.MemSizeMiB)

	if err := os.MkdirAll(b.socketDir, 0700); err != nil {
		return nil, &forgeerr.Io{Cause: err}
	}

	cmd, cancel, err := launchChild(b.binaryPath, socketPath)
	if err != nil {
		return nil, &forgeerr.SpawnFailed{Msg: fmt.Sprintf("exec firecracker: %s", err)}
	}

	if err := waitForSocket(ctx, socketPath, b.socketWaitTimeout); err != nil {
		cancel()
		log.Printf("vmm: spawn vm %s failed (socket wait: %v)", vmID, err)
		return nil, &forgeerr.SpawnFailed{Msg: err.Error()}
	}

	client := newControlClient(socketPath)
	if err := configureAndBoot(ctx, client, config); err != nil {
		cancel()
		log.Printf("vmm: spawn vm %s failed (configure-and-boot: %v)", vmID, err)
		return nil, &forgeerr.SpawnFailed{Msg: err.Error()}
	}

	log.Printf("vmm: vm %s booted (socket=%s)", vmID, socketPath)

	return &VmHandle{
		ID:         vmID,
		SocketPath: socketPath,
		CreatedAt:  time.Now(),
		cmd:        cmd,
		cancel:     cancel,
	}, nil
}

// Snapshot implements VmmBackend.
func (b *FirecrackerBackend) Snapshot(ctx context.Context, handle *VmHandle) (ids.SnapshotID, error) {
	snapshotID := ids.NewSnapshotID()

	log.Printf("vmm: snapshotting vm %s (snapshot %s)", handle.ID, snapshotID)

	if err := os.MkdirAll(b.snapshotDir, 0700); err != nil {
		return ids.SnapshotID{}, &forgeerr.SnapshotFailed{VMID: handle.ID, Reason: err.Error()}
	}

	memPath := b.snapshotMemPath(snapshotID)
	statePath := b.snapshotStatePath(snapshotID)

	client := newControlClient(handle.SocketPath)

	if err := client.patch(ctx, "/vm", map[string]any{"state": "Paused"}); err != nil {
		log.Printf("vmm: snapshot vm %s failed (pause: %v)", handle.ID, err)
		return ids.SnapshotID{}, &forgeerr.SnapshotFailed{VMID: handle.ID, Reason: fmt.Sprintf("pause failed: %s", err)}
	}

	createErr := client.put(ctx, "/snapshot/create", map[string]any{
		"snapshot_type": "Full",
		"snapshot_path": statePath,
		"mem_file_path": memPath,
	})

	// Unconditionally attempt to resume; its outcome must not mask
	// createErr and is itself swallowed.
	if err := client.patch(ctx, "/vm", map[string]any{"state": "Resumed"}); err != nil {
		log.Printf("vmm: vm %s resume-after-snapshot failed (swallowed): %v", handle.ID, err)
	}

	if createErr != nil {
		log.Printf("vmm: snapshot vm %s failed (create: %v)", handle.ID, createErr)
		return ids.SnapshotID{}, &forgeerr.SnapshotFailed{VMID: handle.ID, Reason: createErr.Error()}
	}

	log.Printf("vmm: vm %s snapshotted to %s", handle.ID, snapshotID)
	return snapshotID, nil
}

// Restore implements VmmBackend.
func (b *FirecrackerBackend) Restore(ctx context.Context, snapshotID ids.SnapshotID) (*VmHandle, error) {
	memPath := b.snapshotMemPath(snapshotID)
	statePath := b.snapshotStatePath(snapshotID)

	log.Printf("vmm: restoring snapshot %s", snapshotID)

	if _, err := os.Stat(memPath); err != nil {
		return nil, &forgeerr.RestoreFailed{SnapshotID: snapshotID, Reason: fmt.Sprintf("snapshot files not found at %s", memPath)}
	}
	if _, err := os.Stat(statePath); err != nil {
		return nil, &forgeerr.RestoreFailed{SnapshotID: snapshotID, Reason: fmt.Sprintf("snapshot files not found at %s", statePath)}
	}

	vmID := ids.NewVMID()
	socketPath := b.socketPath(vmID)

	if err := os.MkdirAll(b.socketDir, 0700); err != nil {
		return nil, &forgeerr.RestoreFailed{SnapshotID: snapshotID, Reason: err.Error()}
	}

	cmd, cancel, err := launchChild(b.binaryPath, socketPath)
	if err != nil {
		return nil, &forgeerr.RestoreFailed{SnapshotID: snapshotID, Reason: fmt.Sprintf("exec firecracker: %s", err)}
	}

	if err := waitForSocket(ctx, socketPath, b.socketWaitTimeout); err != nil {
		cancel()
		log.Printf("vmm: restore snapshot %s failed (socket wait: %v)", snapshotID, err)
		return nil, &forgeerr.RestoreFailed{SnapshotID: snapshotID, Reason: err.Error()}
	}

	client := newControlClient(socketPath)
	loadErr := client.put(ctx, "/snapshot/load", map[string]any{
		"snapshot_path": statePath,
		"mem_backend": map[string]any{
			"backend_path": memPath,
			"backend_type": "File",
		},
		"enable_diff_snapshots": false,
		"resume_vm":             true,
	})
	if loadErr != nil {
		cancel()
		log.Printf("vmm: restore snapshot %s failed (load: %v)", snapshotID, loadErr)
		return nil, &forgeerr.RestoreFailed{SnapshotID: snapshotID, Reason: loadErr.Error()}
	}

	log.Printf("vmm: snapshot %s restored as vm %s", snapshotID, vmID)

	return &VmHandle{
		ID:         vmID,
		SocketPath: socketPath,
		CreatedAt:  time.Now(),
		cmd:        cmd,
		cancel:     cancel,
	}, nil
}

// Terminate implements VmmBackend. Idempotency is not required: calling
// it twice on the same handle is safe (the second cancel/kill is a
// no-op) but not a documented contract.
func (b *FirecrackerBackend) Terminate(ctx context.Context, handle *VmHandle) error {
	log.Printf("vmm: terminating vm %s", handle.ID)
	if handle.cancel != nil {
		handle.cancel()
	}
	if handle.cmd != nil {
		handle.cmd.Wait()
	}
	os.Remove(handle.SocketPath)
	log.Printf("vmm: vm %s terminated", handle.ID)
	return nil
}

// HealthCheck implements VmmBackend. "Readable" is satisfied by a
// successful metadata stat of /dev/kvm; it does not attempt to open the
// device, since a process lacking rw permission on an otherwise-present
// /dev/kvm should not be conflated with KVM being entirely unavailable.
func (b *FirecrackerBackend) HealthCheck(ctx context.Context) error {
	if _, err := os.Stat("/dev/kvm"); err != nil {
		return &forgeerr.KvmUnavailable{Reason: "/dev/kvm not found"}
	}
	return whichBinary(b.binaryPath)
}

// ExecuteCommand implements VmmBackend. This is the determinism-bearing
// path: it composes a guest init script that runs command, captures its
// stdout/stderr/exit-code through the base64-framed serial console
// protocol, and powers the guest off so the VMM process exits on its
// own.
func (b *FirecrackerBackend) ExecuteCommand(ctx context.Context, config VMConfig, command string, timeout time.Duration) (ExecutionOutput, error) {
	if err := checkKVM(); err != nil {
		return ExecutionOutput{}, err
	}
	if err := whichBinary(b.binaryPath); err != nil {
		return ExecutionOutput{}, err
	}

	config = config.WithDefaults()
	vmID := ids.NewVMID()
	socketPath := b.socketPath(vmID)

	log.Printf("vmm: executing command in vm %s (timeout=%s)", vmID, timeout)

	if err := os.MkdirAll(b.socketDir, 0700); err != nil {
		return ExecutionOutput{}, &forgeerr.Io{Cause: err}
	}

	config.BootArgs = config.BootArgs + " init=/bin/sh -c \"" + buildInitScript(command) + "\""

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(runCtx, b.binaryPath, "--api-sock", socketPath)
	cmd.Cancel = func() error {
		if cmd.Process != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return ExecutionOutput{}, &forgeerr.SpawnFailed{Msg: fmt.Sprintf("pipe stdout: %s", err)}
	}
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return ExecutionOutput{}, &forgeerr.SpawnFailed{Msg: fmt.Sprintf("exec firecracker: %s", err)}
	}

	if err := waitForSocket(runCtx, socketPath, b.socketWaitTimeout); err != nil {
		cancel()
		cmd.Wait()
		log.Printf("vmm: execute-command vm %s failed (socket wait: %v)", vmID, err)
		return ExecutionOutput{}, &forgeerr.SpawnFailed{Msg: err.Error()}
	}

	client := newControlClient(socketPath)
	if err := configureAndBoot(runCtx, client, config); err != nil {
		cancel()
		cmd.Wait()
		log.Printf("vmm: execute-command vm %s failed (configure-and-boot: %v)", vmID, err)
		return ExecutionOutput{}, &forgeerr.SpawnFailed{Msg: err.Error()}
	}

	captured, readErr := readUntilEOFOrTimeout(stdout, timeout)
	if readErr != nil {
		cancel()
		cmd.Wait()
		os.Remove(socketPath)
		log.Printf("vmm: execute-command vm %s timed out after %s", vmID, timeout)
		return ExecutionOutput{}, &forgeerr.SpawnFailed{Msg: fmt.Sprintf("VM did not complete within %s", timeout)}
	}

	cmd.Wait()
	os.Remove(socketPath)

	out, errBytes, exitCode := parseSerialOutput(captured)
	if exitCode == -1 && b.transcripts != nil {
		b.transcripts.Save(vmID, captured)
	}

	log.Printf("vmm: execute-command vm %s complete (exit=%d stdout=%dB stderr=%dB)", vmID, exitCode, len(out), len(errBytes))

	return ExecutionOutput{Stdout: out, Stderr: errBytes, ExitCode: exitCode}, nil
}

// readUntilEOFOrTimeout races reading r to EOF against a deadline.
func readUntilEOFOrTimeout(r io.Reader, timeout time.Duration) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := io.ReadAll(bufio.NewReader(r))
		done <- result{data, err}
	}()

	select {
	case res := <-done:
		if res.err != nil && res.err != io.EOF {
			return res.data, res.err
		}
		return res.data, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("timed out after %s", timeout)
	}
}

// buildInitScript composes the in-guest init that runs command via the
// shell, captures its stdout/stderr into temp files, emits them
// base64-framed to the serial console in the exact order the parser
// expects, then powers the guest off.
func buildInitScript(command string) string {
	var b strings.Builder
	b.WriteString("out=$(mktemp); err=$(mktemp); ")
	b.WriteString(command)
	b.WriteString(" >\"$out\" 2>\"$err\"; code=$?; ")
	b.WriteString("echo 'FORGE_STDOUT_B64_START'; base64 \"$out\"; echo 'FORGE_STDOUT_B64_END'; ")
	b.WriteString("echo 'FORGE_STDERR_B64_START'; base64 \"$err\"; echo 'FORGE_STDERR_B64_END'; ")
	b.WriteString("echo \"FORGE_EXIT:$code\"; ")
	b.WriteString("poweroff -f || reboot -f")
	return escapeForDoubleQuotedShell(b.String())
}

// escapeForDoubleQuotedShell escapes characters that would otherwise be
// interpreted when this script is embedded inside init=/bin/sh -c "...".
func escapeForDoubleQuotedShell(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	return s
}
