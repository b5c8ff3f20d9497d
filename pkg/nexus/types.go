// Package nexus implements the child lifecycle and membership subsystem of
// a virtual block device: a thin RAID-1-style front end that aggregates
// backing block devices ("children") into one logical volume.
package nexus

import (
	"github.com/marmos91/nexus/pkg/registry"
)

// ChildState is the lifecycle state of a single Child.
type ChildState int

const (
	ChildInit ChildState = iota
	ChildConfigInvalid
	ChildOpen
	ChildClosed
	ChildFaulted
)

func (s ChildState) String() string {
	switch s {
	case ChildInit:
		return "Init"
	case ChildConfigInvalid:
		return "ConfigInvalid"
	case ChildOpen:
		return "Open"
	case ChildClosed:
		return "Closed"
	case ChildFaulted:
		return "Faulted"
	default:
		return "Unknown"
	}
}

// NexusState is the lifecycle state of a Nexus.
type NexusState int

const (
	NexusInit NexusState = iota
	NexusOpen
	NexusDegraded
	NexusClosed
	NexusFaulted
)

func (s NexusState) String() string {
	switch s {
	case NexusInit:
		return "Init"
	case NexusOpen:
		return "Open"
	case NexusDegraded:
		return "Degraded"
	case NexusClosed:
		return "Closed"
	case NexusFaulted:
		return "Faulted"
	default:
		return "Unknown"
	}
}

// NexusLabel is an opaque on-disk identifier. The core treats it only via
// equality; it never interprets the contents.
type NexusLabel struct {
	value string
}

// NewNexusLabel wraps an opaque label value, as returned by a Registry
// handle's label probe.
func NewNexusLabel(value string) NexusLabel {
	return NexusLabel{value: value}
}

// Equal implements the total equality relation required by §3.
func (l NexusLabel) Equal(other NexusLabel) bool {
	return l.value == other.value
}

func (l NexusLabel) String() string {
	return l.value
}

// Child wraps a single backing device with a state and a reference to its
// handle. It mediates its own lifecycle transitions and never decides
// Nexus-level policy.
type Child struct {
	// Name is the URI given at registration.
	Name string
	// ParentName is a stable back-reference to the owning Nexus — a
	// lookup key, never an ownership edge.
	ParentName string
	// State is the Child's current lifecycle state.
	State ChildState
	// Handle is present once the Registry has resolved the backing
	// device; absent (nil) before resolution.
	Handle registry.Handle
}

// Nexus owns an ordered list of Children, a logical size, and the derived
// block/alignment geometry. All mutation happens through Controller.
type Nexus struct {
	Name              string
	Size              uint64
	State             NexusState
	BlockLen          uint32
	RequiredAlignment uint32
	Children          []*Child
}

// ChildCount returns len(Children). Kept as a method rather than a cached
// field so invariant 5 of §3 (child_count == |children|) holds by
// construction instead of by discipline.
func (n *Nexus) ChildCount() int {
	return len(n.Children)
}

// findChild returns the Child named name, or nil if absent. Callers must
// hold the controller's serialization discipline; findChild does no locking
// of its own.
func (n *Nexus) findChild(name string) *Child {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// minNumBlocks returns the smallest num_blocks among Open children, or
// math.MaxUint64 if no child is Open.
func (n *Nexus) minNumBlocks() uint64 {
	min := uint64(1<<64 - 1)
	found := false
	for _, c := range n.Children {
		if c.State != ChildOpen || c.Handle == nil {
			continue
		}
		if nb := c.Handle.NumBlocks(); !found || nb < min {
			min = nb
			found = true
		}
	}
	return min
}
