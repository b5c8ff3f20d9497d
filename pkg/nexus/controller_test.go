package nexus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/nexus/pkg/registry/nvmf"
)

// newTestController wires a Controller against an in-memory nvmf registry
// and starts its control reactor, returning a cancel func that stops it.
func newTestController(t *testing.T, size uint64) (*Controller, func()) {
	t.Helper()
	reg := nvmf.NewRegistry(512, 131072, 4096)
	bus := NewBus()
	ctrl := NewController("nexus0", size, reg, bus)

	ctx, cancel := context.WithCancel(context.Background())
	go ctrl.Run(ctx)
	return ctrl, cancel
}

func callCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// Scenario 1: happy-path open.
func TestScenario_HappyPathOpen(t *testing.T) {
	ctrl, cancel := newTestController(t, 64*1024*1024)
	defer cancel()

	require.NoError(t, ctrl.RegisterChildren(callCtx(t), []string{"nvmf://child0", "nvmf://child1"}))
	require.NoError(t, ctrl.TryOpenChildren(callCtx(t)))

	snap := ctrl.Snapshot()
	assert.Equal(t, NexusOpen, snap.State)
	assert.Equal(t, uint32(512), snap.BlockLen)
	assert.Len(t, snap.Children, 2)
	for _, c := range snap.Children {
		assert.Equal(t, ChildOpen, c.State)
	}
}

// Scenario 2: mixed block sizes.
func TestScenario_MixedBlockSizes(t *testing.T) {
	reg := nvmf.NewRegistry(512, 131072, 4096)
	reg.Seed("nvmf://a", 512, 131072, 4096)
	reg.Seed("nvmf://b", 4096, 16384, 4096)
	bus := NewBus()
	ctrl := NewController("nexus0", 64*1024*1024, reg, bus)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx)

	require.NoError(t, ctrl.RegisterChildren(callCtx(t), []string{"nvmf://a", "nvmf://b"}))
	err := ctrl.TryOpenChildren(callCtx(t))
	require.Error(t, err)

	var nexusErr *Error
	require.ErrorAs(t, err, &nexusErr)
	assert.Equal(t, ErrInvalid, nexusErr.Code)

	snap := ctrl.Snapshot()
	for _, c := range snap.Children {
		assert.True(t, c.State == ChildClosed || c.State == ChildInit)
	}
}

// Scenario 3: add then offline.
func TestScenario_AddThenOffline(t *testing.T) {
	ctrl, cancel := newTestController(t, 64*1024*1024)
	defer cancel()

	require.NoError(t, ctrl.RegisterChildren(callCtx(t), []string{"nvmf://orig"}))
	require.NoError(t, ctrl.TryOpenChildren(callCtx(t)))

	require.NoError(t, ctrl.AddChild(callCtx(t), "nvmf://new"))
	snap := ctrl.Snapshot()
	assert.Equal(t, NexusDegraded, snap.State)
	newChild := findChildHelper(snap.Children, "nvmf://new")
	require.NotNil(t, newChild)
	assert.Equal(t, ChildFaulted, newChild.State)

	require.NoError(t, ctrl.OfflineChild(callCtx(t), "nvmf://orig"))
	snap = ctrl.Snapshot()
	assert.Equal(t, NexusDegraded, snap.State)
	orig := findChildHelper(snap.Children, "nvmf://orig")
	require.NotNil(t, orig)
	assert.Equal(t, ChildClosed, orig.State)
}

// Scenario 4: destroy (remove) without close.
func TestScenario_RemoveWithoutClose(t *testing.T) {
	ctrl, cancel := newTestController(t, 64*1024*1024)
	defer cancel()

	require.NoError(t, ctrl.RegisterChildren(callCtx(t), []string{"nvmf://orig"}))
	require.NoError(t, ctrl.TryOpenChildren(callCtx(t)))

	before := ctrl.Snapshot().ChildCount()
	err := ctrl.RemoveChild(callCtx(t), "nvmf://orig")
	require.Error(t, err)
	var nexusErr *Error
	require.ErrorAs(t, err, &nexusErr)
	assert.Equal(t, ErrInvalid, nexusErr.Code)
	assert.Equal(t, before, ctrl.Snapshot().ChildCount())
}

// Scenario 5: label mismatch.
func TestScenario_LabelMismatch(t *testing.T) {
	reg := nvmf.NewRegistry(512, 131072, 4096)
	a := reg.Seed("nvmf://a", 512, 131072, 4096)
	b := reg.Seed("nvmf://b", 512, 131072, 4096)
	bus := NewBus()
	ctrl := NewController("nexus0", 64*1024*1024, reg, bus)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx)

	require.NoError(t, ctrl.RegisterChildren(callCtx(t), []string{"nvmf://a", "nvmf://b"}))
	require.NoError(t, ctrl.TryOpenChildren(callCtx(t)))

	_, err := a.WriteAt(callCtx(t), 0, append([]byte("LABEL-A"), make([]byte, 505)...))
	require.NoError(t, err)
	_, err = b.WriteAt(callCtx(t), 0, append([]byte("LABEL-B"), make([]byte, 505)...))
	require.NoError(t, err)

	_, err = ctrl.UpdateChildLabels(callCtx(t))
	require.Error(t, err)
	var nexusErr *Error
	require.ErrorAs(t, err, &nexusErr)
	assert.Equal(t, ErrLabelMismatch, nexusErr.Code)
}

// Scenario 6: transactional open failure.
func TestScenario_TransactionalOpenFailure(t *testing.T) {
	reg := nvmf.NewRegistry(512, 131072, 4096)
	reg.Seed("nvmf://a", 512, 131072, 4096)
	reg.Seed("nvmf://b", 512, 131072, 4096)
	// Third child reports insufficient capacity for the nexus size, so its
	// open fails geometry validation inside the transactional open.
	reg.Seed("nvmf://c", 512, 1, 4096)
	bus := NewBus()
	ctrl := NewController("nexus0", 64*1024*1024, reg, bus)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx)

	require.NoError(t, ctrl.RegisterChildren(callCtx(t), []string{"nvmf://a", "nvmf://b", "nvmf://c"}))
	err := ctrl.TryOpenChildren(callCtx(t))
	require.Error(t, err)

	snap := ctrl.Snapshot()
	a := findChildHelper(snap.Children, "nvmf://a")
	b := findChildHelper(snap.Children, "nvmf://b")
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, ChildClosed, a.State)
	assert.Equal(t, ChildClosed, b.State)
}

func findChildHelper(children []*Child, name string) *Child {
	for _, c := range children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Invariant: child_count == len(children) always.
func TestInvariant_ChildCountMatchesLength(t *testing.T) {
	ctrl, cancel := newTestController(t, 32*1024*1024)
	defer cancel()

	require.NoError(t, ctrl.RegisterChildren(callCtx(t), []string{"nvmf://a", "nvmf://b"}))
	assert.Equal(t, len(ctrl.Snapshot().Children), ctrl.Snapshot().ChildCount())

	require.NoError(t, ctrl.TryOpenChildren(callCtx(t)))
	assert.Equal(t, len(ctrl.Snapshot().Children), ctrl.Snapshot().ChildCount())

	require.NoError(t, ctrl.AddChild(callCtx(t), "nvmf://c"))
	assert.Equal(t, len(ctrl.Snapshot().Children), ctrl.Snapshot().ChildCount())
}

// Invariant: min_num_blocks is MaxUint64 when no child is Open.
func TestInvariant_MinNumBlocksEmptyIsMaxUint64(t *testing.T) {
	ctrl, cancel := newTestController(t, 32*1024*1024)
	defer cancel()

	require.NoError(t, ctrl.RegisterChildren(callCtx(t), []string{"nvmf://a"}))
	min, err := ctrl.MinNumBlocks(callCtx(t))
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<64-1), min)
}

// Invariant: min_num_blocks equals the smallest num_blocks among Open
// children once opened.
func TestInvariant_MinNumBlocksAmongOpen(t *testing.T) {
	reg := nvmf.NewRegistry(512, 131072, 4096)
	reg.Seed("nvmf://a", 512, 131072, 4096)
	reg.Seed("nvmf://b", 512, 200000, 4096)
	bus := NewBus()
	ctrl := NewController("nexus0", 64*1024*1024, reg, bus)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx)

	require.NoError(t, ctrl.RegisterChildren(callCtx(t), []string{"nvmf://a", "nvmf://b"}))
	require.NoError(t, ctrl.TryOpenChildren(callCtx(t)))

	min, err := ctrl.MinNumBlocks(callCtx(t))
	require.NoError(t, err)
	assert.Equal(t, uint64(131072), min)
}

// Round-trip: online_child then offline_child leaves the child Closed and
// the Nexus Degraded.
func TestRoundTrip_OnlineThenOffline(t *testing.T) {
	ctrl, cancel := newTestController(t, 32*1024*1024)
	defer cancel()

	require.NoError(t, ctrl.RegisterChildren(callCtx(t), []string{"nvmf://a", "nvmf://b"}))
	require.NoError(t, ctrl.TryOpenChildren(callCtx(t)))
	require.NoError(t, ctrl.OfflineChild(callCtx(t), "nvmf://a"))

	require.NoError(t, ctrl.OnlineChild(callCtx(t), "nvmf://a"))
	require.NoError(t, ctrl.OfflineChild(callCtx(t), "nvmf://a"))

	snap := ctrl.Snapshot()
	assert.Equal(t, NexusDegraded, snap.State)
	a := findChildHelper(snap.Children, "nvmf://a")
	require.NotNil(t, a)
	assert.Equal(t, ChildClosed, a.State)
}

// Round-trip: register_child followed (after open) by remove_child restores
// child_count to its prior value.
func TestRoundTrip_RegisterThenRemove(t *testing.T) {
	ctrl, cancel := newTestController(t, 32*1024*1024)
	defer cancel()

	require.NoError(t, ctrl.RegisterChild(callCtx(t), "nvmf://a"))
	before := ctrl.Snapshot().ChildCount()

	require.NoError(t, ctrl.RegisterChild(callCtx(t), "nvmf://b"))
	require.NoError(t, ctrl.TryOpenChildren(callCtx(t)))
	require.NoError(t, ctrl.OfflineChild(callCtx(t), "nvmf://b"))
	require.NoError(t, ctrl.RemoveChild(callCtx(t), "nvmf://b"))

	assert.Equal(t, before, ctrl.Snapshot().ChildCount())
}

// Invariant: remove_child on an absent uri is a no-op returning success.
func TestInvariant_RemoveAbsentIsNoop(t *testing.T) {
	ctrl, cancel := newTestController(t, 32*1024*1024)
	defer cancel()

	require.NoError(t, ctrl.RemoveChild(callCtx(t), "nvmf://never-registered"))
}

// examine_child attaches a handle only when the child is in Init.
func TestExamineChild_AttachesOnlyWhenInit(t *testing.T) {
	ctrl, cancel := newTestController(t, 32*1024*1024)
	defer cancel()

	require.NoError(t, ctrl.RegisterChildren(callCtx(t), []string{"nvmf://a"}))
	attached, err := ctrl.ExamineChild(callCtx(t), "nvmf://a")
	require.NoError(t, err)
	assert.True(t, attached, "child is still Init, so a fresh handle is attached")

	require.NoError(t, ctrl.TryOpenChildren(callCtx(t)))
	attached, err = ctrl.ExamineChild(callCtx(t), "nvmf://a")
	require.NoError(t, err)
	assert.False(t, attached, "child is Open, not Init")
}

func TestExamineChild_NotFound(t *testing.T) {
	ctrl, cancel := newTestController(t, 32*1024*1024)
	defer cancel()

	_, err := ctrl.ExamineChild(callCtx(t), "nvmf://missing")
	require.Error(t, err)
	var nexusErr *Error
	require.ErrorAs(t, err, &nexusErr)
	assert.Equal(t, ErrNotFound, nexusErr.Code)
}

// remove_child moves the Nexus to Faulted once removing the target leaves
// no child Open, the same as fault_child does — §3 Invariant 1 forbids an
// Open/Degraded Nexus with an empty child list.
func TestRemoveChild_LastChildFaultsNexus(t *testing.T) {
	ctrl, cancel := newTestController(t, 32*1024*1024)
	defer cancel()

	require.NoError(t, ctrl.RegisterChildren(callCtx(t), []string{"nvmf://a"}))
	require.NoError(t, ctrl.TryOpenChildren(callCtx(t)))
	assert.Equal(t, NexusOpen, ctrl.Snapshot().State)

	require.NoError(t, ctrl.OfflineChild(callCtx(t), "nvmf://a"))
	assert.Equal(t, NexusDegraded, ctrl.Snapshot().State)

	require.NoError(t, ctrl.RemoveChild(callCtx(t), "nvmf://a"))
	snap := ctrl.Snapshot()
	assert.Equal(t, NexusFaulted, snap.State)
	assert.Empty(t, snap.Children)
}

// fault_child moves the Nexus to Faulted once no child remains Open.
func TestFaultChild_NoOpenChildrenFaultsNexus(t *testing.T) {
	ctrl, cancel := newTestController(t, 32*1024*1024)
	defer cancel()

	require.NoError(t, ctrl.RegisterChildren(callCtx(t), []string{"nvmf://a"}))
	require.NoError(t, ctrl.TryOpenChildren(callCtx(t)))
	require.NoError(t, ctrl.FaultChild(callCtx(t), "nvmf://a"))

	assert.Equal(t, NexusFaulted, ctrl.Snapshot().State)
}

func TestDestroyChildren_ClosesOutNexus(t *testing.T) {
	ctrl, cancel := newTestController(t, 32*1024*1024)
	defer cancel()

	require.NoError(t, ctrl.RegisterChildren(callCtx(t), []string{"nvmf://a", "nvmf://b"}))
	require.NoError(t, ctrl.TryOpenChildren(callCtx(t)))
	require.NoError(t, ctrl.DestroyChildren(callCtx(t)))

	snap := ctrl.Snapshot()
	assert.Equal(t, NexusClosed, snap.State)
	assert.Equal(t, 0, snap.ChildCount())
}
