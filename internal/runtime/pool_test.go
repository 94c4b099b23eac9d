package runtime

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	p := NewPool(2)
	ctx := context.Background()

	var inFlight int32
	var maxSeen int32
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		p.Go(ctx, func(ctx context.Context) {
			defer wg.Done()
			n := atomic.AddInt32(&inFlight, 1)
			mu.Lock()
			if n > maxSeen {
				maxSeen = n
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
		})
	}
	wg.Wait()
	p.Wait()

	require.LessOrEqual(t, int(maxSeen), 2)
}

func TestPoolGoRespectsCancelledContext(t *testing.T) {
	p := NewPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	p.Go(ctx, func(ctx context.Context) { ran = true })
	p.Wait()

	require.False(t, ran, "Go must not run fn once ctx is already cancelled")
}
