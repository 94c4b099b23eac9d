package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalBusFIFOPerType(t *testing.T) {
	bus := NewLocalBus()
	e1 := NewEvent(TypeNewTransform, 1)
	e2 := NewEvent(TypeNewTransform, 2)
	bus.Publish(e1)
	bus.Publish(e2)

	got1 := bus.Get(TypeNewTransform)
	require.NotNil(t, got1)
	require.Equal(t, e1.ID, got1.ID)

	got2 := bus.Get(TypeNewTransform)
	require.NotNil(t, got2)
	require.Equal(t, e2.ID, got2.ID)

	require.Nil(t, bus.Get(TypeNewTransform))
}

func TestLocalBusCoalescesDuplicatePublish(t *testing.T) {
	bus := NewLocalBus()
	bus.Publish(NewEvent(TypeUpdateProcessing, 7))
	bus.Publish(NewEvent(TypeUpdateProcessing, 7))

	require.NotNil(t, bus.Get(TypeUpdateProcessing))
	require.Nil(t, bus.Get(TypeUpdateProcessing), "second publish for the same entity must coalesce, not queue twice")
}

func TestLocalBusTypesAreIndependentQueues(t *testing.T) {
	bus := NewLocalBus()
	bus.Publish(NewEvent(TypeNewRequest, 1))
	require.Nil(t, bus.Get(TypeUpdateRequest))
	require.NotNil(t, bus.Get(TypeNewRequest))
}

func TestLocalBusReport(t *testing.T) {
	bus := NewLocalBus()
	e := NewEvent(TypeNewProcessing, 3)
	start := time.Now()
	bus.Report(e, "finished", start, start.Add(time.Millisecond), "host1", nil)

	reports := bus.Reports()
	require.Len(t, reports, 1)
	require.Equal(t, "finished", reports[0].Status)
}

func TestEventRequeueIncrementsCount(t *testing.T) {
	e := NewEvent(TypeUpdateTransform, 9)
	require.Equal(t, 0, e.RequeueCount)
	e.Requeue()
	require.Equal(t, 1, e.RequeueCount)
}
