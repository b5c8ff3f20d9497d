package nexus

import (
	"context"
	"sync"

	"github.com/marmos91/nexus/internal/logger"
	"github.com/marmos91/nexus/pkg/registry"
)

// job is a closure queued onto the control reactor. Every membership
// operation in §4.4 compiles down to one job, guaranteeing they are never
// interleaved (§5's exclusion requirement) regardless of how many goroutines
// call into the Controller concurrently.
type job func()

// Controller is the Nexus Controller of §4.4: it owns the Nexus, serializes
// every membership mutation through a single control-reactor goroutine, and
// coordinates the Registry and Bus collaborators.
type Controller struct {
	nexus    *Nexus
	registry registry.Registry
	bus      *Bus

	jobs chan job
}

// NewController constructs a Controller for a brand-new Nexus in Init state.
// reg resolves backing device URIs; bus publishes membership changes to
// per-worker channels. The caller must call Run (typically in its own
// goroutine) before issuing any operation.
func NewController(name string, size uint64, reg registry.Registry, bus *Bus) *Controller {
	return &Controller{
		nexus: &Nexus{
			Name:  name,
			Size:  size,
			State: NexusInit,
		},
		registry: reg,
		bus:      bus,
		jobs:     make(chan job),
	}
}

// Run drains queued jobs on the calling goroutine until ctx is cancelled.
// This is the control reactor: every membership operation executes here,
// one at a time, satisfying §5's mutual-exclusion requirement without a
// lock held across suspension points.
func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-c.jobs:
			j()
		}
	}
}

// submit enqueues fn on the control reactor and blocks until it has run,
// returning whatever error fn produced. Every public Controller method is a
// thin wrapper around submit.
func (c *Controller) submit(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	select {
	case c.jobs <- func() { done <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// snapshot returns a read-only copy of the Nexus's current public fields,
// safe to read without going through the reactor (used by tests and by
// callers that only need the current state, not a mutation).
func (c *Controller) Snapshot() Nexus {
	return Nexus{
		Name:              c.nexus.Name,
		Size:              c.nexus.Size,
		State:             c.nexus.State,
		BlockLen:          c.nexus.BlockLen,
		RequiredAlignment: c.nexus.RequiredAlignment,
		Children:          append([]*Child(nil), c.nexus.Children...),
	}
}

// NewChannel registers a new per-worker I/O channel with the bus.
func (c *Controller) NewChannel() *Channel {
	return c.bus.NewChannel()
}

// registerChild appends a Child for uri in Init state, eagerly resolving its
// handle via the Registry. createIfAbsent controls whether a missing
// backing device is created or merely looked up; register_children and
// register_child both create it.
func (c *Controller) registerChild(ctx context.Context, uri string, createIfAbsent bool) (*Child, error) {
	child := &Child{Name: uri, ParentName: c.nexus.Name, State: ChildInit}

	name := uri
	if h := c.registry.Lookup(uri); h != nil {
		child.Handle = h
	} else if createIfAbsent {
		created, err := c.registry.Create(ctx, uri)
		if err != nil {
			return nil, newDeviceCreateError("register_child", c.nexus.Name, uri, err)
		}
		name = created
		child.Handle = c.registry.Lookup(name)
	}

	c.nexus.Children = append(c.nexus.Children, child)
	return child, nil
}

// RegisterChildren implements register_children: appends Children in Init
// state for every uri, resolving handles eagerly. Requires state = Init.
func (c *Controller) RegisterChildren(ctx context.Context, uris []string) error {
	return c.submit(ctx, func() error {
		if c.nexus.State != NexusInit {
			return newInvalidError("register_children", c.nexus.Name, "nexus is not in Init state")
		}
		for _, uri := range uris {
			if _, err := c.registerChild(ctx, uri, true); err != nil {
				return err
			}
		}
		return nil
	})
}

// RegisterChild implements register_child: registers a single URI,
// creating the backing device if it does not already exist. Requires
// state = Init.
func (c *Controller) RegisterChild(ctx context.Context, uri string) error {
	return c.submit(ctx, func() error {
		if c.nexus.State != NexusInit {
			return newInvalidError("register_child", c.nexus.Name, "nexus is not in Init state")
		}
		_, err := c.registerChild(ctx, uri, true)
		return err
	})
}

// TryOpenChildren implements try_open_children: verifies every child shares
// one block size, opens all children transactionally, and records the
// Nexus's block_len and max required_alignment. Requires state = Init, a
// non-empty child list, and every handle resolved.
func (c *Controller) TryOpenChildren(ctx context.Context) error {
	return c.submit(ctx, func() error {
		n := c.nexus
		if n.State != NexusInit {
			return newInvalidError("try_open_children", n.Name, "nexus is not in Init state")
		}
		if len(n.Children) == 0 {
			return newIncompleteError("try_open_children", n.Name, "no children registered")
		}
		for _, child := range n.Children {
			if child.Handle == nil {
				return newIncompleteError("try_open_children", n.Name, "child "+child.Name+" has no resolved handle")
			}
		}

		blockLen := n.Children[0].Handle.BlockLen()
		for _, child := range n.Children {
			if child.Handle.BlockLen() != blockLen {
				return newInvalidError("try_open_children", n.Name, "children have mixed block sizes")
			}
		}

		err := tryOpenChildrenTxn(ctx, n.Children, n.Size, func(ctx context.Context, child *Child) error {
			_, err := child.open(n.Size)
			return err
		})
		if err != nil {
			return newOpenFailedError("try_open_children", n.Name, "", err)
		}

		for _, child := range n.Children {
			child.Handle.SetBlockLen(blockLen)
		}

		n.BlockLen = blockLen
		n.RequiredAlignment = reconcileAlignment(n.Children)
		n.State = NexusOpen
		return nil
	})
}

// AddChild implements add_child: creates the backing device, validates
// geometry, and on success appends the new child in Faulted state so it
// never serves I/O until an external rebuild completes. Requires
// state ∈ {Open, Degraded}.
func (c *Controller) AddChild(ctx context.Context, uri string) error {
	return c.submit(ctx, func() error {
		n := c.nexus
		if n.State != NexusOpen && n.State != NexusDegraded {
			return newInvalidError("add_child", n.Name, "nexus is not Open or Degraded")
		}

		name, err := c.registry.Create(ctx, uri)
		if err != nil {
			return newDeviceCreateError("add_child", n.Name, uri, err)
		}
		handle := c.registry.Lookup(name)
		if handle == nil {
			return newDeviceCreateError("add_child", n.Name, uri, nil)
		}

		if err := validateGeometry(n, handle); err != nil {
			if destroyErr := c.registry.Destroy(ctx, uri); destroyErr != nil {
				return newDestroyFailedError("add_child", n.Name, uri, destroyErr)
			}
			return err
		}

		child := &Child{Name: uri, ParentName: n.Name, State: ChildFaulted, Handle: handle}
		n.Children = append(n.Children, child)
		n.State = NexusDegraded
		c.bus.reconfigure(ctx, Event{Kind: ChildAddEvent, ChildName: uri}, openChildren(n))
		return nil
	})
}

// RemoveChild implements remove_child: no-op if uri is absent; otherwise
// requires the target already Closed, removes it from the list, then
// destroys the backing device.
func (c *Controller) RemoveChild(ctx context.Context, uri string) error {
	return c.submit(ctx, func() error {
		n := c.nexus
		idx := -1
		for i, child := range n.Children {
			if child.Name == uri {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil
		}
		child := n.Children[idx]
		if child.State != ChildClosed {
			return newInvalidError("remove_child", n.Name, "must close "+uri+" before removal")
		}

		n.Children = append(n.Children[:idx:idx], n.Children[idx+1:]...)
		if err := c.registry.Destroy(ctx, uri); err != nil {
			return newDestroyFailedError("remove_child", n.Name, uri, err)
		}
		c.bus.reconfigure(ctx, Event{Kind: ChildRemoveEvent, ChildName: uri}, openChildren(n))

		// §3 Invariant 1: children is non-empty whenever state ∈
		// {Open, Degraded}. Removing the last Open (or last remaining)
		// child can break that unless state is brought in line, same
		// as fault_child's anyOpen check below.
		if !anyOpen(n) {
			n.State = NexusFaulted
		}
		return nil
	})
}

// OfflineChild implements offline_child: closes the named child and
// reconfigures channels. Requires state ∈ {Open, Degraded}.
func (c *Controller) OfflineChild(ctx context.Context, name string) error {
	return c.submit(ctx, func() error {
		n := c.nexus
		if n.State != NexusOpen && n.State != NexusDegraded {
			return newInvalidError("offline_child", n.Name, "nexus is not Open or Degraded")
		}
		child := n.findChild(name)
		if child == nil {
			return newNotFoundError("offline_child", n.Name, name)
		}
		if err := child.close(ctx); err != nil {
			return err
		}
		n.State = NexusDegraded
		c.bus.reconfigure(ctx, Event{Kind: ChildOfflineEvent, ChildName: name}, openChildren(n))
		return nil
	})
}

// OnlineChild implements online_child: opens the named Closed child and
// reconfigures channels, returning Degraded (never Open) because the
// child's contents may be stale; promoting the Nexus back to Open is an
// external rebuild decision.
func (c *Controller) OnlineChild(ctx context.Context, name string) error {
	return c.submit(ctx, func() error {
		n := c.nexus
		child := n.findChild(name)
		if child == nil {
			return newNotFoundError("online_child", n.Name, name)
		}
		if child.State != ChildClosed {
			return newInvalidError("online_child", n.Name, name+" is not Closed")
		}
		if child.Handle == nil {
			child.Handle = c.registry.Lookup(child.Name)
		}
		if _, err := child.open(n.Size); err != nil {
			return newOpenFailedError("online_child", n.Name, name, err)
		}
		n.State = NexusDegraded
		c.bus.reconfigure(ctx, Event{Kind: ChildOnlineEvent, ChildName: name}, openChildren(n))
		return nil
	})
}

// FaultChild implements fault_child: marks the named child Faulted
// (whether currently Open or Closed) and reconfigures channels.
func (c *Controller) FaultChild(ctx context.Context, name string) error {
	return c.submit(ctx, func() error {
		n := c.nexus
		child := n.findChild(name)
		if child == nil {
			return newNotFoundError("fault_child", n.Name, name)
		}
		child.fault()
		n.State = NexusDegraded
		c.bus.reconfigure(ctx, Event{Kind: ChildFaultEvent, ChildName: name}, openChildren(n))
		if !anyOpen(n) {
			n.State = NexusFaulted
		}
		return nil
	})
}

// DestroyChildren implements destroy_children: destroys every child
// concurrently, logging but not surfacing per-child errors, because
// teardown must complete regardless.
func (c *Controller) DestroyChildren(ctx context.Context) error {
	return c.submit(ctx, func() error {
		n := c.nexus
		var wg sync.WaitGroup
		wg.Add(len(n.Children))
		for _, child := range n.Children {
			child := child
			go func() {
				defer wg.Done()
				if err := c.registry.Destroy(ctx, child.Name); err != nil {
					logger.WarnCtx(ctx, "destroy_children: destroy failed", "nexus", n.Name, "child", child.Name, "error", err)
				}
			}()
		}
		wg.Wait()
		n.Children = nil
		n.State = NexusClosed
		return nil
	})
}

// UpdateChildLabels implements update_child_labels: probes the label of
// every Open child in parallel; fails if any probe errors or the labels are
// not mutually equal. Requires state ∈ {Open, Degraded}.
func (c *Controller) UpdateChildLabels(ctx context.Context) (NexusLabel, error) {
	var result NexusLabel
	err := c.submit(ctx, func() error {
		n := c.nexus
		if n.State != NexusOpen && n.State != NexusDegraded {
			return newInvalidError("update_child_labels", n.Name, "nexus is not Open or Degraded")
		}

		open := openChildren(n)
		probes := probeLabelsConcurrently(ctx, open, func(ctx context.Context, child *Child) (NexusLabel, error) {
			return child.probeLabel(ctx)
		})

		var common NexusLabel
		for i, p := range probes {
			if p.err != nil {
				return newLabelProbeFailedError("update_child_labels", n.Name, p.name, p.err)
			}
			if i == 0 {
				common = p.label
			} else if !p.label.Equal(common) {
				return newLabelMismatchError("update_child_labels", n.Name, "labels differ")
			}
		}
		result = common
		return nil
	})
	return result, err
}

// MinNumBlocks implements min_num_blocks: the smallest num_blocks among
// Open children, or math.MaxUint64 if none are Open.
func (c *Controller) MinNumBlocks(ctx context.Context) (uint64, error) {
	var result uint64
	err := c.submit(ctx, func() error {
		result = c.nexus.minNumBlocks()
		return nil
	})
	return result, err
}

// ExamineChild implements examine_child: if a Child with this name is in
// Init, attaches a freshly resolved handle and reports whether attachment
// occurred.
func (c *Controller) ExamineChild(ctx context.Context, name string) (bool, error) {
	var attached bool
	err := c.submit(ctx, func() error {
		child := c.nexus.findChild(name)
		if child == nil {
			return newNotFoundError("examine_child", c.nexus.Name, name)
		}
		if child.State != ChildInit {
			return nil
		}
		if h := c.registry.Lookup(name); h != nil {
			child.Handle = h
			attached = true
		}
		return nil
	})
	return attached, err
}

// openChildren returns the Children currently in Open state, the set that
// forms a reconfiguration's routing-table snapshot.
func openChildren(n *Nexus) []*Child {
	out := make([]*Child, 0, len(n.Children))
	for _, c := range n.Children {
		if c.State == ChildOpen {
			out = append(out, c)
		}
	}
	return out
}

func anyOpen(n *Nexus) bool {
	for _, c := range n.Children {
		if c.State == ChildOpen {
			return true
		}
	}
	return false
}
