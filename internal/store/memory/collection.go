package memory

import (
	"context"
	"time"

	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store"
)

type collectionView struct{ s *Store }

func (v collectionView) Create(ctx context.Context, c *model.Collection) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.nextCollID++
	c.CollID = v.s.nextCollID
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	v.s.collections[c.CollID] = clone(c)
	return nil
}

func (v collectionView) Get(ctx context.Context, collID int64) (*model.Collection, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	c, ok := v.s.collections[collID]
	if !ok {
		return nil, notFound("collection", collID)
	}
	return clone(c), nil
}

func (v collectionView) Update(ctx context.Context, c *model.Collection) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.collections[c.CollID]; !ok {
		return notFound("collection", c.CollID)
	}
	c.UpdatedAt = time.Now()
	v.s.collections[c.CollID] = clone(c)
	return nil
}

func (v collectionView) ListByTransform(ctx context.Context, transformID int64) ([]*model.Collection, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []*model.Collection
	for _, c := range v.s.collections {
		if c.TransformID == transformID {
			out = append(out, clone(c))
		}
	}
	return out, nil
}

var _ store.CollectionStore = collectionView{}
