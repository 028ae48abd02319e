// Package runner implements BlockRunner, the determinism harness that
// turns a block name into an in-guest command, drives the backend
// through execute_command, and hashes the result into an
// ExecutionRecord.
package runner

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/forgevm/forge/internal/block"
	"github.com/forgevm/forge/internal/execution"
	"github.com/forgevm/forge/internal/ids"
	"github.com/forgevm/forge/internal/vmm"
)

// DefaultTimeout is the execution timeout used when the caller does not
// configure one explicitly.
const DefaultTimeout = 30 * time.Second

// BlockRunner owns a backend and a VM config for its lifetime.
// Individual executions allocate no long-lived VM state outside the
// backend.
type BlockRunner struct {
	backend  vmm.VmmBackend
	vmConfig vmm.VMConfig
	timeout  time.Duration
}

// New creates a runner with the default 30s timeout.
func New(backend vmm.VmmBackend, vmConfig vmm.VMConfig) *BlockRunner {
	return WithTimeout(backend, vmConfig, DefaultTimeout)
}

// WithTimeout creates a runner with a custom execution timeout.
func WithTimeout(backend vmm.VmmBackend, vmConfig vmm.VMConfig, timeout time.Duration) *BlockRunner {
	return &BlockRunner{backend: backend, vmConfig: vmConfig, timeout: timeout}
}

// Execute runs b inside a fresh microVM and returns the resulting
// execution record. Transport-level failures propagate as errors — the
// runner never manufactures a Failed record.
func (r *BlockRunner) Execute(ctx context.Context, b block.Block, userID ids.UserID, input []byte) (execution.Record, error) {
	inputHash := ids.HashContent(input)
	startedAt := time.Now()

	log.Printf("runner: starting block execution (block=%s name=%s user=%s input_hash=%s)", b.ID, b.Name, userID, inputHash)

	command := buildCommand(b.Name)

	output, err := r.backend.ExecuteCommand(ctx, r.vmConfig, command, r.timeout)
	if err != nil {
		log.Printf("runner: block execution failed (block=%s: %v)", b.ID, err)
		return execution.Record{}, err
	}

	duration := time.Since(startedAt)
	outputHash := computeOutputHash(output.Stdout, output.Stderr)

	log.Printf("runner: block execution complete (block=%s exit=%d duration=%s output_hash=%s)", b.ID, output.ExitCode, duration, outputHash)

	return execution.New(b.ID, userID, inputHash, outputHash, startedAt, duration, execution.NewSucceeded()), nil
}

// computeOutputHash is SHA256(stdout || stderr), concatenation in that
// exact order.
func computeOutputHash(stdout, stderr []byte) ids.ContentHash {
	combined := make([]byte, 0, len(stdout)+len(stderr))
	combined = append(combined, stdout...)
	combined = append(combined, stderr...)
	return ids.HashContent(combined)
}

// buildCommand renders the MVP determinism-proof command: echo the
// block's name. Block names are drawn from [a-zA-Z0-9-], so single-quote
// wrapping is injection-safe.
func buildCommand(name string) string {
	return fmt.Sprintf("echo '%s'", name)
}
