package nexus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/nexus/pkg/registry/nvmf"
)

func TestChildOpen_RequiresResolvedHandle(t *testing.T) {
	c := &Child{Name: "a", State: ChildInit}
	_, err := c.open(0)
	require.Error(t, err)
	var nexusErr *Error
	require.ErrorAs(t, err, &nexusErr)
	assert.Equal(t, ErrOpenFailed, nexusErr.Code)
}

func TestChildOpen_RejectsAlreadyOpen(t *testing.T) {
	reg := nvmf.NewRegistry(512, 100, 4096)
	h := reg.Seed("nvmf://a", 512, 100, 4096)
	c := &Child{Name: "a", State: ChildOpen, Handle: h}

	_, err := c.open(0)
	require.Error(t, err)
}

func TestChildOpen_SucceedsFromInit(t *testing.T) {
	reg := nvmf.NewRegistry(512, 100, 4096)
	h := reg.Seed("nvmf://a", 512, 100, 4096)
	c := &Child{Name: "a", State: ChildInit, Handle: h}

	name, err := c.open(512 * 100)
	require.NoError(t, err)
	assert.Equal(t, "nvmf://a", name)
	assert.Equal(t, ChildOpen, c.State)
}

func TestChildOpen_GeometryMismatchSetsConfigInvalid(t *testing.T) {
	reg := nvmf.NewRegistry(512, 100, 4096)
	h := reg.Seed("nvmf://a", 512, 100, 4096)
	c := &Child{Name: "a", State: ChildInit, Handle: h}

	_, err := c.open(512*100 + 1)
	require.Error(t, err)
	assert.Equal(t, ChildConfigInvalid, c.State)
}

func TestChildClose_IsIdempotent(t *testing.T) {
	c := &Child{Name: "a", State: ChildOpen}
	require.NoError(t, c.close(context.Background()))
	assert.Equal(t, ChildClosed, c.State)
	require.NoError(t, c.close(context.Background()))
	assert.Equal(t, ChildClosed, c.State)
}

func TestChildFault_OverridesAnyState(t *testing.T) {
	c := &Child{Name: "a", State: ChildOpen}
	c.fault()
	assert.Equal(t, ChildFaulted, c.State)

	c2 := &Child{Name: "b", State: ChildClosed}
	c2.fault()
	assert.Equal(t, ChildFaulted, c2.State)
}

func TestChildProbeLabel_RequiresOpen(t *testing.T) {
	c := &Child{Name: "a", State: ChildClosed}
	_, err := c.probeLabel(context.Background())
	require.Error(t, err)
}
