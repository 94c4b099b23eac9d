package runtime

import (
	"context"
	"os"
	"time"

	"github.com/iddsorg/idds/internal/logging"
	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store"
)

// Heartbeat periodically upserts a liveness row for this process/thread and
// reaps stale rows left by crashed workers, mirroring is_self/health_item
// checks in baseagent.py against the healths table.
type Heartbeat struct {
	health     store.HealthStore
	agent      string
	hostname   string
	pid        int
	threadID   int64
	interval   time.Duration
	staleAfter time.Duration
	logger     *logging.Logger
}

// NewHeartbeat constructs a Heartbeat for the given agent name
// ("clerk"/"transformer"/"carrier"). threadID distinguishes multiple
// worker goroutines of the same agent/host/pid, per model.Health's key.
func NewHeartbeat(health store.HealthStore, agent string, threadID int64, interval, staleAfter time.Duration) *Heartbeat {
	hostname, _ := os.Hostname()
	return &Heartbeat{
		health:     health,
		agent:      agent,
		hostname:   hostname,
		pid:        os.Getpid(),
		threadID:   threadID,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logging.NewComponentLogger("heartbeat"),
	}
}

// Run beats every interval until ctx is cancelled, then deletes its own row
// so a clean shutdown doesn't leave a phantom live worker behind.
func (h *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.beat(ctx)
	for {
		select {
		case <-ctx.Done():
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.health.Delete(cleanupCtx, h.agent, h.hostname, h.pid, h.threadID); err != nil {
				h.logger.Warn("heartbeat: delete own row on shutdown: %v", err)
			}
			return
		case <-ticker.C:
			h.beat(ctx)
		}
	}
}

func (h *Heartbeat) beat(ctx context.Context) {
	hb := &model.Health{Agent: h.agent, Hostname: h.hostname, PID: h.pid, ThreadID: h.threadID}
	if err := h.health.Heartbeat(ctx, hb); err != nil {
		h.logger.Warn("heartbeat: %v", err)
	}
}

// ReapStale deletes health rows not refreshed within staleAfter. cmd/iddsd
// does not schedule it; its maintenance Timer runs only CleanLocking.
func (h *Heartbeat) ReapStale(ctx context.Context) {
	n, err := h.health.ReapStale(ctx, h.staleAfter)
	if err != nil {
		h.logger.Warn("heartbeat: reap stale: %v", err)
		return
	}
	if n > 0 {
		h.logger.Info("heartbeat: reaped %d stale health rows", n)
	}
}
