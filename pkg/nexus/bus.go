package nexus

import (
	"context"
	"sync"
	"sync/atomic"
)

// EventKind identifies the kind of membership change a reconfiguration
// publishes to every per-worker I/O channel.
type EventKind int

const (
	ChildOnlineEvent EventKind = iota
	ChildOfflineEvent
	ChildFaultEvent
	ChildAddEvent
	ChildRemoveEvent
)

func (k EventKind) String() string {
	switch k {
	case ChildOnlineEvent:
		return "ChildOnline"
	case ChildOfflineEvent:
		return "ChildOffline"
	case ChildFaultEvent:
		return "ChildFault"
	case ChildAddEvent:
		return "ChildAdd"
	case ChildRemoveEvent:
		return "ChildRemove"
	default:
		return "Unknown"
	}
}

// Event is a single membership-change notification broadcast by the bus.
type Event struct {
	Kind      EventKind
	ChildName string
}

// routingTable is the read-only snapshot a per-worker channel consults on
// its hot I/O path. It is never mutated after construction; reconfiguration
// builds a new one and swaps the pointer.
type routingTable struct {
	openChildren []*Child
}

// Channel is a per-worker I/O consumer holding a lock-free snapshot of the
// current routing table, refreshed by the bus on every reconfiguration.
type Channel struct {
	table atomic.Pointer[routingTable]
}

func newChannel(initial *routingTable) *Channel {
	ch := &Channel{}
	ch.table.Store(initial)
	return ch
}

// Snapshot returns the channel's current routing table. Safe for concurrent
// use with reconfiguration: readers never observe a torn list, only the
// table as of the most recently completed reconfiguration.
func (ch *Channel) Snapshot() []*Child {
	t := ch.table.Load()
	if t == nil {
		return nil
	}
	return t.openChildren
}

func (ch *Channel) refresh(t *routingTable) {
	ch.table.Store(t)
}

// Bus publishes membership-change events to every registered per-worker
// channel and blocks until each has rebuilt its local routing table. The
// bus keeps a plain slice of channel pointers, copied under its mutex at the
// start of each reconfiguration cycle — it owns no Child or handle.
type Bus struct {
	mu       sync.Mutex
	channels []*Channel
}

// NewBus constructs a bus with no channels registered.
func NewBus() *Bus {
	return &Bus{}
}

// NewChannel registers and returns a new per-worker channel, initially
// empty. Call reconfigure (via the controller) to populate it once the
// Nexus has Open children.
func (b *Bus) NewChannel() *Channel {
	ch := newChannel(&routingTable{})
	b.mu.Lock()
	b.channels = append(b.channels, ch)
	b.mu.Unlock()
	return ch
}

// reconfigure builds a fresh routing table snapshot from openChildren and
// installs it on every registered channel, returning only once every
// channel has acknowledged (rebuilt its snapshot). Must be called with
// exclusive access to the Nexus's children list so every channel observes
// an identical, non-torn snapshot — satisfied by the controller's reactor
// discipline (§5).
func (b *Bus) reconfigure(ctx context.Context, event Event, openChildren []*Child) {
	table := &routingTable{openChildren: append([]*Child(nil), openChildren...)}

	b.mu.Lock()
	channels := append([]*Channel(nil), b.channels...)
	b.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(len(channels))
	for _, ch := range channels {
		ch := ch
		go func() {
			defer wg.Done()
			ch.refresh(table)
		}()
	}
	wg.Wait()
}
