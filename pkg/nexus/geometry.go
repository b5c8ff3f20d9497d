package nexus

import (
	"context"
	"sync"

	"github.com/marmos91/nexus/pkg/registry"
)

// validateGeometry accepts a candidate child iff its block_len matches the
// Nexus's and it carries enough blocks to hold the Nexus's exported size.
//
// This is the corrected form of the source predicate (§9): the source reads
// `self.min_num_blocks() < child.num_blocks()`, which rejects a child
// *larger* than the current minimum. The semantically defensible rule is
// that a candidate must be large enough for the Nexus's size, not smaller
// than or equal to whatever the current minimum happens to be.
func validateGeometry(n *Nexus, h registry.Handle) error {
	if h.BlockLen() != n.BlockLen {
		return newGeometryMismatchError("validate_geometry", n.Name, "", "block_len mismatch")
	}
	if uint64(h.BlockLen())*h.NumBlocks() < n.Size {
		return newGeometryMismatchError("validate_geometry", n.Name, "", "insufficient capacity for nexus size")
	}
	return nil
}

// reconcileAlignment computes the max alignment across children and stamps
// it onto every handle via the explicit Handle.SetAlignment setter (§9:
// the source mutates a foreign handle's required_alignment field directly;
// this is the corrected form). Returns the computed maximum so the caller
// can record it as the Nexus's own required_alignment.
func reconcileAlignment(children []*Child) uint32 {
	var maxAlign uint32
	for _, c := range children {
		if c.Handle == nil {
			continue
		}
		if a := c.Handle.Alignment(); a > maxAlign {
			maxAlign = a
		}
	}
	for _, c := range children {
		if c.Handle != nil {
			c.Handle.SetAlignment(maxAlign)
		}
	}
	return maxAlign
}

// tryOpenChildrenTxn opens every child in children transactionally: on any
// failure, every child that did open during this attempt is closed before
// the function returns. minSize is the per-child minimum (the Nexus's
// exported size); opener performs the actual backing-driver open call.
func tryOpenChildrenTxn(ctx context.Context, children []*Child, minSize uint64, opener func(ctx context.Context, c *Child) error) error {
	opened := make([]*Child, 0, len(children))
	for _, c := range children {
		if err := opener(ctx, c); err != nil {
			for _, o := range opened {
				_ = o.close(ctx)
			}
			return err
		}
		opened = append(opened, c)
	}
	return nil
}

// labelProbe is a child name paired with the outcome of probing its label,
// used to aggregate update_child_labels results after all probes join.
type labelProbe struct {
	name  string
	label NexusLabel
	err   error
}

// probeLabelsConcurrently issues probe against every child in parallel and
// joins before returning, per §5's "fan out then join, aggregate before any
// state mutation" rule for update_child_labels and destroy_children.
func probeLabelsConcurrently(ctx context.Context, children []*Child, probe func(ctx context.Context, c *Child) (NexusLabel, error)) []labelProbe {
	results := make([]labelProbe, len(children))
	var wg sync.WaitGroup
	wg.Add(len(children))
	for i, c := range children {
		i, c := i, c
		go func() {
			defer wg.Done()
			label, err := probe(ctx, c)
			results[i] = labelProbe{name: c.Name, label: label, err: err}
		}()
	}
	wg.Wait()
	return results
}
