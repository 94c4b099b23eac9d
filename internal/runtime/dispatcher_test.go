package runtime

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iddsorg/idds/internal/eventbus"
	"github.com/iddsorg/idds/internal/idderrors"
)

func TestDispatcherDeliversEventToHandler(t *testing.T) {
	bus := eventbus.NewLocalBus()
	bus.Publish(eventbus.NewEvent(eventbus.TypeNewRequest, 42))

	d := NewDispatcher(bus, NewPool(2), time.Millisecond, "test-host")
	var gotID int64
	done := make(chan struct{})
	d.Handle(eventbus.TypeNewRequest, func(ctx context.Context, e *eventbus.Event) error {
		atomic.StoreInt64(&gotID, e.RequestID)
		close(done)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	defer cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was never invoked")
	}
	require.Equal(t, int64(42), atomic.LoadInt64(&gotID))
}

func TestDispatcherRequeuesLockConflicts(t *testing.T) {
	bus := eventbus.NewLocalBus()
	bus.Publish(eventbus.NewEvent(eventbus.TypeNewTransform, 7))

	d := NewDispatcher(bus, NewPool(2), time.Millisecond, "test-host")
	var attempts int32
	succeedAt := int32(3)
	done := make(chan struct{})
	d.Handle(eventbus.TypeNewTransform, func(ctx context.Context, e *eventbus.Event) error {
		n := atomic.AddInt32(&attempts, 1)
		if n < succeedAt {
			return idderrors.New(idderrors.KindLockConflict, "row is locked")
		}
		close(done)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	defer cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never succeeded after requeue")
	}
	require.GreaterOrEqual(t, atomic.LoadInt32(&attempts), succeedAt)
}
