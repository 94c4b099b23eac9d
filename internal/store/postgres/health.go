package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store"
)

// HealthStore implements store.HealthStore.
type HealthStore struct {
	pool *pgxpool.Pool
}

var _ store.HealthStore = (*HealthStore)(nil)

// Heartbeat upserts the calling worker's liveness row, per the heartbeat
// timer task every agent schedules at HeartbeatDelay.
func (s *HealthStore) Heartbeat(ctx context.Context, h *model.Health) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO healths (agent, hostname, pid, thread_id, payload, updated_at)
		 VALUES ($1,$2,$3,$4,$5,now())
		 ON CONFLICT (agent, hostname, pid, thread_id)
		 DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`,
		h.Agent, h.Hostname, h.PID, h.ThreadID, h.Payload,
	)
	return err
}

func (s *HealthStore) ListLive(ctx context.Context, staleAfter time.Duration) ([]*model.Health, error) {
	cutoff := time.Now().Add(-staleAfter)
	rows, err := s.pool.Query(ctx,
		`SELECT agent, hostname, pid, thread_id, payload, updated_at FROM healths WHERE updated_at >= $1`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("list live health rows: %w", err)
	}
	defer rows.Close()

	var out []*model.Health
	for rows.Next() {
		var h model.Health
		if err := rows.Scan(&h.Agent, &h.Hostname, &h.PID, &h.ThreadID, &h.Payload, &h.UpdatedAt); err != nil {
			return out, fmt.Errorf("scan health: %w", err)
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

func (s *HealthStore) Delete(ctx context.Context, agent, hostname string, pid int, threadID int64) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM healths WHERE agent=$1 AND hostname=$2 AND pid=$3 AND thread_id=$4`,
		agent, hostname, pid, threadID)
	return err
}

// ReapStale deletes health rows not updated within staleAfter, the periodic
// reaping pass that treats a missing heartbeat as a dead worker.
func (s *HealthStore) ReapStale(ctx context.Context, staleAfter time.Duration) (int, error) {
	cutoff := time.Now().Add(-staleAfter)
	tag, err := s.pool.Exec(ctx, `DELETE FROM healths WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reap stale health rows: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
