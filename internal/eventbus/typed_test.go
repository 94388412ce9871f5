package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kilianp07/gridready/core/model"
)

func TestTypedBusFansOut(t *testing.T) {
	bus := NewTyped[model.Notification]()
	a := bus.Subscribe()
	b := bus.Subscribe()
	bus.Publish(model.Notification{ID: "n1", Priority: model.PriorityUrgent})

	assert.Equal(t, "n1", (<-a).ID)
	assert.Equal(t, model.PriorityUrgent, (<-b).Priority)
	bus.Unsubscribe(a)
	_, ok := <-a
	assert.False(t, ok)
}

func TestTypedBusDropsForSlowSubscriber(t *testing.T) {
	bus := NewTyped[model.Transition](WithBuffer(1))
	ch := bus.Subscribe()
	bus.Publish(model.Transition{To: model.StatusPending})
	bus.Publish(model.Transition{To: model.StatusReady})

	assert.Equal(t, uint64(1), bus.Dropped())
	assert.Equal(t, model.StatusPending, (<-ch).To)
}

func TestTypedBusClose(t *testing.T) {
	bus := NewTyped[int]()
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	bus.Close()
	_, ok := <-ch1
	assert.False(t, ok)
	_, ok = <-ch2
	assert.False(t, ok)

	late := bus.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscribing to a closed bus yields a closed channel")
	assert.NotPanics(t, func() {
		bus.Publish(1)
		bus.Unsubscribe(ch1)
		bus.Close()
	})
}
