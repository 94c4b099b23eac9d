package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store"
)

type healthView struct{ s *Store }

func healthKey(agent, hostname string, pid int, threadID int64) string {
	return fmt.Sprintf("%s|%s|%d|%d", agent, hostname, pid, threadID)
}

func (v healthView) Heartbeat(ctx context.Context, h *model.Health) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	h.UpdatedAt = time.Now()
	v.s.health[healthKey(h.Agent, h.Hostname, h.PID, h.ThreadID)] = clone(h)
	return nil
}

func (v healthView) ListLive(ctx context.Context, staleAfter time.Duration) ([]*model.Health, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	cutoff := time.Now().Add(-staleAfter)
	var out []*model.Health
	for _, h := range v.s.health {
		if h.UpdatedAt.After(cutoff) || h.UpdatedAt.Equal(cutoff) {
			out = append(out, clone(h))
		}
	}
	return out, nil
}

func (v healthView) Delete(ctx context.Context, agent, hostname string, pid int, threadID int64) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	delete(v.s.health, healthKey(agent, hostname, pid, threadID))
	return nil
}

func (v healthView) ReapStale(ctx context.Context, staleAfter time.Duration) (int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	cutoff := time.Now().Add(-staleAfter)
	n := 0
	for k, h := range v.s.health {
		if h.UpdatedAt.Before(cutoff) {
			delete(v.s.health, k)
			n++
		}
	}
	return n, nil
}

var _ store.HealthStore = healthView{}
