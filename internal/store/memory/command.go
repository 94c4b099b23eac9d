package memory

import (
	"context"
	"time"

	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store"
)

type commandView struct{ s *Store }

func (v commandView) Create(ctx context.Context, c *model.Command) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.nextCmdID++
	c.CmdID = v.s.nextCmdID
	c.Status = model.CommandNew
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	v.s.commands[c.CmdID] = clone(c)
	return nil
}

func (v commandView) ClaimNew(ctx context.Context, workerID string, limit int) ([]*model.Command, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if limit <= 0 {
		limit = 1000
	}
	var out []*model.Command
	for _, c := range v.s.commands {
		if len(out) >= limit {
			break
		}
		if c.Status == model.CommandNew {
			out = append(out, clone(c))
		}
	}
	return out, nil
}

func (v commandView) MarkProcessed(ctx context.Context, cmdID int64) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if c, ok := v.s.commands[cmdID]; ok {
		c.Status = model.CommandProcessed
		c.UpdatedAt = time.Now()
	}
	return nil
}

var _ store.CommandStore = commandView{}
