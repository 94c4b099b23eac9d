package memory

import (
	"context"
	"time"

	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store"
)

type requestView struct{ s *Store }

func (v requestView) Create(ctx context.Context, r *model.Request) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.nextRequestID++
	r.RequestID = v.s.nextRequestID
	now := time.Now()
	r.CreatedAt, r.UpdatedAt = now, now
	if r.NextPollAt.IsZero() {
		r.NextPollAt = now
	}
	v.s.requests[r.RequestID] = clone(r)
	return nil
}

func (v requestView) Get(ctx context.Context, requestID int64) (*model.Request, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	r, ok := v.s.requests[requestID]
	if !ok {
		return nil, notFound("request", requestID)
	}
	return clone(r), nil
}

func (v requestView) Update(ctx context.Context, r *model.Request) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.requests[r.RequestID]; !ok {
		return notFound("request", r.RequestID)
	}
	r.UpdatedAt = time.Now()
	r.Locking = model.LockIdle
	v.s.requests[r.RequestID] = clone(r)
	return nil
}

func (v requestView) ClaimNew(ctx context.Context, workerID string, limit int) ([]*model.Request, error) {
	return v.claim(limit, func(r *model.Request) bool { return r.Status == model.RequestNew })
}

func (v requestView) ClaimForUpdate(ctx context.Context, workerID string, opts store.ListOptions) ([]*model.Request, error) {
	pollableBy := opts.PollableBy
	if pollableBy.IsZero() {
		pollableBy = time.Now()
	}
	return v.claim(opts.Limit, func(r *model.Request) bool {
		return r.Status != model.RequestNew && !r.NextPollAt.After(pollableBy)
	})
}

func (v requestView) claim(limit int, match func(*model.Request) bool) ([]*model.Request, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if limit <= 0 {
		limit = 1000
	}
	var out []*model.Request
	for _, r := range v.s.requests {
		if len(out) >= limit {
			break
		}
		if r.Locking == model.LockIdle && match(r) {
			r.Locking = model.LockLocking
			r.UpdatedAt = time.Now()
			out = append(out, clone(r))
		}
	}
	return out, nil
}

func (v requestView) Release(ctx context.Context, requestID int64) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if r, ok := v.s.requests[requestID]; ok {
		r.Locking = model.LockIdle
	}
	return nil
}

func (v requestView) List(ctx context.Context, opts store.ListOptions) ([]*model.Request, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []*model.Request
	for _, r := range v.s.requests {
		out = append(out, clone(r))
	}
	return out, nil
}

var _ store.RequestStore = requestView{}
