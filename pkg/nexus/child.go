package nexus

import "context"

// open implements §4.1's open: requires a resolved handle and
// state ∈ {Init, Closed}; validates handle.num_blocks × block_len ≥
// min_size; on success sets state = Open and returns the backing device
// name. Fails with Invalid when already Open or in any other state outside
// {Init, Closed}, OpenFailed when no handle is resolved, and
// GeometryMismatch (leaving the child ConfigInvalid) when capacity is short.
func (c *Child) open(minSize uint64) (string, error) {
	if c.State == ChildOpen {
		return "", newInvalidError("open", c.ParentName, c.Name+" is already open")
	}
	if c.State != ChildInit && c.State != ChildClosed {
		return "", newInvalidError("open", c.ParentName, c.Name+" is not Init or Closed")
	}
	if c.Handle == nil {
		return "", newOpenFailedError("open", c.ParentName, c.Name, nil)
	}
	if c.Handle.NumBlocks()*uint64(c.Handle.BlockLen()) < minSize {
		c.State = ChildConfigInvalid
		return "", newGeometryMismatchError("open", c.ParentName, c.Name, "insufficient capacity")
	}
	c.State = ChildOpen
	return c.Handle.Name(), nil
}

// close implements §4.1's close: permitted from any state; releases the
// handle reference and sets state = Closed. Idempotent — closing an
// already-Closed child is a no-op that still returns success. The Child
// keeps its URI (Name) so a later open can re-resolve the handle through
// the Registry.
func (c *Child) close(ctx context.Context) error {
	if c.Handle != nil {
		if err := c.Handle.Reset(ctx); err != nil {
			return newCloseFailedError("close", c.ParentName, c.Name, err)
		}
	}
	c.Handle = nil
	c.State = ChildClosed
	return nil
}

// fault marks the child Faulted regardless of its prior state, per
// fault_child's contract that a target may be open or closed.
func (c *Child) fault() {
	c.State = ChildFaulted
}

const (
	labelRegionOffset = 0
	labelRegionSize   = 512
)

// probeLabel implements §4.1's probe_label: asynchronous, valid only when
// state = Open; reads the reserved label region from the backing device.
// Label formats are opaque to the core (§3) — this just wraps the bytes for
// the equality check update_child_labels performs.
func (c *Child) probeLabel(ctx context.Context) (NexusLabel, error) {
	if c.State != ChildOpen || c.Handle == nil {
		return NexusLabel{}, newInvalidError("probe_label", c.ParentName, c.Name+" is not Open")
	}
	buf := make([]byte, labelRegionSize)
	if _, err := c.Handle.ReadAt(ctx, labelRegionOffset, buf); err != nil {
		return NexusLabel{}, err
	}
	return NewNexusLabel(string(buf)), nil
}
