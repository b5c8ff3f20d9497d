package nexus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_ReconfigureRefreshesAllChannels(t *testing.T) {
	bus := NewBus()
	ch1 := bus.NewChannel()
	ch2 := bus.NewChannel()

	assert.Empty(t, ch1.Snapshot())
	assert.Empty(t, ch2.Snapshot())

	open := []*Child{{Name: "a", State: ChildOpen}, {Name: "b", State: ChildOpen}}
	bus.reconfigure(context.Background(), Event{Kind: ChildAddEvent, ChildName: "a"}, open)

	assert.Len(t, ch1.Snapshot(), 2)
	assert.Len(t, ch2.Snapshot(), 2)
}

func TestBus_ChannelRegisteredAfterReconfigureStartsEmpty(t *testing.T) {
	bus := NewBus()
	open := []*Child{{Name: "a", State: ChildOpen}}
	bus.reconfigure(context.Background(), Event{Kind: ChildAddEvent}, open)

	ch := bus.NewChannel()
	assert.Empty(t, ch.Snapshot(), "a channel registered after a reconfiguration has not yet received a snapshot")
}
