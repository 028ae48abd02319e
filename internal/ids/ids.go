// Package ids defines the opaque 128-bit identifiers and content hashes
// shared across the execution engine.
package ids

import (
	"github.com/google/uuid"
)

// VMID identifies a running or terminated VM.
type VMID uuid.UUID

// NewVMID allocates a fresh VM id. Collision probability is the same as
// uuid.NewRandom's: negligible at any scale this engine runs at.
func NewVMID() VMID {
	return VMID(uuid.New())
}

func (id VMID) String() string {
	return uuid.UUID(id).String()
}

// SnapshotID identifies a paired (memory, state) snapshot file set.
type SnapshotID uuid.UUID

func NewSnapshotID() SnapshotID {
	return SnapshotID(uuid.New())
}

func (id SnapshotID) String() string {
	return uuid.UUID(id).String()
}

// ParseSnapshotID parses a canonical hyphenated hex string back into a
// SnapshotID, e.g. when reloading the snapshot index.
func ParseSnapshotID(s string) (SnapshotID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return SnapshotID{}, err
	}
	return SnapshotID(u), nil
}

// ParseVMID parses a canonical hyphenated hex string back into a VMID.
func ParseVMID(s string) (VMID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return VMID{}, err
	}
	return VMID(u), nil
}

// ExecutionID identifies one BlockRunner invocation.
type ExecutionID uuid.UUID

func NewExecutionID() ExecutionID {
	return ExecutionID(uuid.New())
}

func (id ExecutionID) String() string {
	return uuid.UUID(id).String()
}

// BlockID identifies a block definition. Blocks themselves live outside
// this module; the engine only ever holds the id and name.
type BlockID uuid.UUID

func NewBlockID() BlockID {
	return BlockID(uuid.New())
}

func (id BlockID) String() string {
	return uuid.UUID(id).String()
}

// UserID identifies the caller on whose behalf a block runs.
type UserID string

// ContributorID identifies the author of a block definition. Not used by
// the execution engine itself, and ExecutionRecord has no field for it;
// it is kept as a value type for callers that track block authorship.
type ContributorID string
