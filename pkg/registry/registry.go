// Package registry defines the Backing Device Registry contract consumed by
// the Nexus: URI-to-device resolution and the handle primitives a Child uses
// to open, read, write, and reset its backing device.
package registry

import "context"

// Handle exposes the geometry and I/O primitives of a resolved backing
// device. A Handle is owned by exactly one Child for as long as that Child
// holds it open; it is never shared across Children.
type Handle interface {
	Name() string
	BlockLen() uint32
	NumBlocks() uint64
	Alignment() uint32

	// SetBlockLen overrides the device's reported block length. Used by
	// try_open_children to stamp the Nexus-wide block_len onto a handle
	// whose backing device reports a coarser native size.
	SetBlockLen(uint32)

	// SetAlignment overrides the device's reported required alignment.
	// Always called through this setter, never by mutating a foreign
	// handle's fields directly.
	SetAlignment(uint32)

	ReadAt(ctx context.Context, off int64, p []byte) (int, error)
	WriteAt(ctx context.Context, off int64, p []byte) (int, error)
	Reset(ctx context.Context) error
}

// Registry resolves opaque URIs ("aio://…", "nvmf://…", "s3://…") to backing
// device handles. create and destroy are idempotent per URI.
type Registry interface {
	// Create ensures a backing device exists for uri and returns its
	// backing name. Idempotent: calling Create twice for the same uri
	// returns the same name without error.
	Create(ctx context.Context, uri string) (name string, err error)

	// Destroy removes the backing device for uri. Idempotent.
	Destroy(ctx context.Context, uri string) error

	// Lookup returns the handle for name if the device exists, or nil if
	// it does not. Synchronous: never blocks on I/O.
	Lookup(name string) Handle
}
