package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iddsorg/idds/internal/store/memory"
)

func TestHeartbeatBeatsAndCleansUpOnShutdown(t *testing.T) {
	s := memory.New()
	hb := NewHeartbeat(s.Health(), "clerk", 1, 10*time.Millisecond, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hb.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		live, err := s.Health().ListLive(context.Background(), time.Hour)
		return err == nil && len(live) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	live, err := s.Health().ListLive(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Empty(t, live, "heartbeat must delete its own row on shutdown")
}

func TestHeartbeatReapStaleRemovesOldRows(t *testing.T) {
	s := memory.New()
	hb := NewHeartbeat(s.Health(), "carrier", 2, time.Hour, 10*time.Millisecond)
	hb.beat(context.Background())

	time.Sleep(20 * time.Millisecond)
	hb.ReapStale(context.Background())

	live, err := s.Health().ListLive(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Empty(t, live)
}
