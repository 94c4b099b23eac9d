package memory

import (
	"context"
	"time"

	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store"
)

type transformView struct{ s *Store }

func (v transformView) Create(ctx context.Context, t *model.Transform) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.nextTransformID++
	t.TransformID = v.s.nextTransformID
	now := time.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	if t.NextPollAt.IsZero() {
		t.NextPollAt = now
	}
	v.s.transforms[t.TransformID] = clone(t)
	return nil
}

func (v transformView) Get(ctx context.Context, transformID int64) (*model.Transform, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	t, ok := v.s.transforms[transformID]
	if !ok {
		return nil, notFound("transform", transformID)
	}
	return clone(t), nil
}

func (v transformView) Update(ctx context.Context, t *model.Transform) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.transforms[t.TransformID]; !ok {
		return notFound("transform", t.TransformID)
	}
	t.UpdatedAt = time.Now()
	t.Locking = model.LockIdle
	v.s.transforms[t.TransformID] = clone(t)
	return nil
}

func (v transformView) ClaimNew(ctx context.Context, workerID string, limit int) ([]*model.Transform, error) {
	return v.claim(limit, func(t *model.Transform) bool { return t.Status == model.TransformNew })
}

func (v transformView) ClaimForUpdate(ctx context.Context, workerID string, opts store.ListOptions) ([]*model.Transform, error) {
	pollableBy := opts.PollableBy
	if pollableBy.IsZero() {
		pollableBy = time.Now()
	}
	return v.claim(opts.Limit, func(t *model.Transform) bool {
		return t.Status != model.TransformNew && !t.NextPollAt.After(pollableBy)
	})
}

func (v transformView) claim(limit int, match func(*model.Transform) bool) ([]*model.Transform, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if limit <= 0 {
		limit = 1000
	}
	var out []*model.Transform
	for _, t := range v.s.transforms {
		if len(out) >= limit {
			break
		}
		if t.Locking == model.LockIdle && match(t) {
			t.Locking = model.LockLocking
			t.UpdatedAt = time.Now()
			out = append(out, clone(t))
		}
	}
	return out, nil
}

func (v transformView) Release(ctx context.Context, transformID int64) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if t, ok := v.s.transforms[transformID]; ok {
		t.Locking = model.LockIdle
	}
	return nil
}

func (v transformView) ListByRequest(ctx context.Context, requestID int64) ([]*model.Transform, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []*model.Transform
	for _, t := range v.s.transforms {
		if t.RequestID == requestID {
			out = append(out, clone(t))
		}
	}
	return out, nil
}

var _ store.TransformStore = transformView{}
