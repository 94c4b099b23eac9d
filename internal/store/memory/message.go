package memory

import (
	"context"
	"time"

	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store"
)

type messageView struct{ s *Store }

func (v messageView) Create(ctx context.Context, m *model.Message) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.nextMsgID++
	m.MsgID = v.s.nextMsgID
	now := time.Now()
	m.CreatedAt, m.UpdatedAt = now, now
	v.s.messages[m.MsgID] = clone(m)
	return nil
}

func (v messageView) ClaimNew(ctx context.Context, workerID string, limit int) ([]*model.Message, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if limit <= 0 {
		limit = 1000
	}
	var out []*model.Message
	for _, m := range v.s.messages {
		if len(out) >= limit {
			break
		}
		if m.Status == model.MessageNew {
			out = append(out, clone(m))
		}
	}
	return out, nil
}

func (v messageView) MarkDelivered(ctx context.Context, msgID int64) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if m, ok := v.s.messages[msgID]; ok {
		m.Status = model.MessageDelivered
		m.UpdatedAt = time.Now()
	}
	return nil
}

func (v messageView) ListByRequest(ctx context.Context, requestID int64) ([]*model.Message, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []*model.Message
	for _, m := range v.s.messages {
		if m.RequestID != nil && *m.RequestID == requestID {
			out = append(out, clone(m))
		}
	}
	return out, nil
}

var _ store.MessageStore = messageView{}
