package memory

import (
	"context"
	"time"

	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store"
)

type contentView struct{ s *Store }

func (v contentView) Create(ctx context.Context, c *model.Content) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.create(c)
	return nil
}

// create assumes the caller already holds s.mu.
func (s *Store) create(c *model.Content) {
	s.nextContentID++
	c.ContentID = s.nextContentID
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	s.contents[c.ContentID] = clone(c)
}

func (v contentView) BulkCreate(ctx context.Context, contents []*model.Content) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, c := range contents {
		v.s.create(c)
	}
	return nil
}

func (v contentView) Get(ctx context.Context, contentID int64) (*model.Content, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	c, ok := v.s.contents[contentID]
	if !ok {
		return nil, notFound("content", contentID)
	}
	return clone(c), nil
}

func (v contentView) ListByCollection(ctx context.Context, collID int64) ([]*model.Content, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []*model.Content
	for _, c := range v.s.contents {
		if c.CollID == collID {
			out = append(out, clone(c))
		}
	}
	return out, nil
}

func (v contentView) UpdateExternalID(ctx context.Context, contentID int64, externalContentID string, metadata []byte) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	c, ok := v.s.contents[contentID]
	if !ok {
		return notFound("content", contentID)
	}
	c.ExternalContentID = externalContentID
	c.ContentMetadata = metadata
	c.UpdatedAt = time.Now()
	return nil
}

func (v contentView) ListDependents(ctx context.Context, depID int64) ([]*model.Content, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []*model.Content
	for _, c := range v.s.contents {
		if c.ContentDepID != nil && *c.ContentDepID == depID {
			out = append(out, clone(c))
		}
	}
	return out, nil
}

// UpdateStatusAndPropagate mirrors postgres.ContentStore's transactional
// walk: update contentID, then BFS outward over content_dep_id edges,
// writing Substatus on every transitive dependent exactly once (cycle-safe
// via the visited set).
func (v contentView) UpdateStatusAndPropagate(ctx context.Context, contentID int64, status model.ContentStatus) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	c, ok := v.s.contents[contentID]
	if !ok {
		return notFound("content", contentID)
	}
	c.Status = status
	c.UpdatedAt = time.Now()

	if !status.Propagatable() {
		return nil
	}

	visited := map[int64]bool{contentID: true}
	queue := []int64{contentID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range v.s.contents {
			if dep.ContentDepID == nil || *dep.ContentDepID != id {
				continue
			}
			if visited[dep.ContentID] {
				continue
			}
			visited[dep.ContentID] = true
			dep.Substatus = status
			dep.UpdatedAt = time.Now()
			queue = append(queue, dep.ContentID)
		}
	}
	return nil
}

var _ store.ContentStore = contentView{}
