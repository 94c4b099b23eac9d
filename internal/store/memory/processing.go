package memory

import (
	"context"
	"time"

	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store"
)

type processingView struct{ s *Store }

func (v processingView) Create(ctx context.Context, p *model.Processing) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.nextProcessingID++
	p.ProcessingID = v.s.nextProcessingID
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.NextPollAt.IsZero() {
		p.NextPollAt = now
	}
	v.s.processings[p.ProcessingID] = clone(p)
	return nil
}

func (v processingView) Get(ctx context.Context, processingID int64) (*model.Processing, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	p, ok := v.s.processings[processingID]
	if !ok {
		return nil, notFound("processing", processingID)
	}
	return clone(p), nil
}

func (v processingView) Update(ctx context.Context, p *model.Processing) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.processings[p.ProcessingID]; !ok {
		return notFound("processing", p.ProcessingID)
	}
	p.UpdatedAt = time.Now()
	p.Locking = model.LockIdle
	v.s.processings[p.ProcessingID] = clone(p)
	return nil
}

func (v processingView) ClaimNew(ctx context.Context, workerID string, limit int) ([]*model.Processing, error) {
	return v.claim(limit, func(p *model.Processing) bool { return p.Status == model.ProcessingSubmitting })
}

func (v processingView) ClaimForUpdate(ctx context.Context, workerID string, opts store.ListOptions) ([]*model.Processing, error) {
	pollableBy := opts.PollableBy
	if pollableBy.IsZero() {
		pollableBy = time.Now()
	}
	return v.claim(opts.Limit, func(p *model.Processing) bool {
		return p.Status != model.ProcessingSubmitting && !p.NextPollAt.After(pollableBy)
	})
}

func (v processingView) claim(limit int, match func(*model.Processing) bool) ([]*model.Processing, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if limit <= 0 {
		limit = 1000
	}
	var out []*model.Processing
	for _, p := range v.s.processings {
		if len(out) >= limit {
			break
		}
		if p.Locking == model.LockIdle && match(p) {
			p.Locking = model.LockLocking
			p.UpdatedAt = time.Now()
			out = append(out, clone(p))
		}
	}
	return out, nil
}

func (v processingView) Release(ctx context.Context, processingID int64) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if p, ok := v.s.processings[processingID]; ok {
		p.Locking = model.LockIdle
	}
	return nil
}

func (v processingView) ListByTransform(ctx context.Context, transformID int64) ([]*model.Processing, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []*model.Processing
	for _, p := range v.s.processings {
		if p.TransformID == transformID {
			out = append(out, clone(p))
		}
	}
	return out, nil
}

func (v processingView) ActiveByTransform(ctx context.Context, transformID int64) (*model.Processing, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, p := range v.s.processings {
		if p.TransformID == transformID && !p.Status.IsTerminal() {
			return clone(p), nil
		}
	}
	return nil, nil
}

var _ store.ProcessingStore = processingView{}
