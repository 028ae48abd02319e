// Package block holds the minimal view of a block the execution engine
// needs: an identifier and a name. The block/manifest/trust-score domain
// model is an external collaborator and is intentionally not
// reimplemented here.
package block

import "github.com/forgevm/forge/internal/ids"

// Block is an opaque named unit of work. Its Name becomes the command
// run inside the guest, so callers are expected to keep it restricted to
// the alphanumeric-hyphen alphabet BlockRunner requires for safe
// single-quote wrapping.
type Block struct {
	ID   ids.BlockID
	Name string
}
