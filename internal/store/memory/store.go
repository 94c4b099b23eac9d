// Package memory implements store.Store entirely in-process, for unit tests
// that exercise agent/runtime/workflow logic without a Postgres instance.
// It preserves the same claim-and-release contract as idds/store/postgres
// (a row claimed by one caller is invisible to others until Release/Update
// clears the lock), just without SKIP LOCKED — a single mutex stands in for
// the database's row locks.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store"
)

// Store is a shared, mutex-guarded in-memory backing for every entity
// family. The Xxx() accessors return thin views over the same state so
// cross-entity invariants (e.g. a Content's RequestID matching its
// Transform's) are easy to assert in tests.
type Store struct {
	mu sync.Mutex

	nextRequestID    int64
	nextTransformID  int64
	nextProcessingID int64
	nextCollID       int64
	nextContentID    int64
	nextMsgID        int64
	nextCmdID        int64

	requests    map[int64]*model.Request
	transforms  map[int64]*model.Transform
	processings map[int64]*model.Processing
	collections map[int64]*model.Collection
	contents    map[int64]*model.Content
	messages    map[int64]*model.Message
	health      map[string]*model.Health
	commands    map[int64]*model.Command
}

// New constructs an empty in-memory Store.
func New() *Store {
	return &Store{
		requests:    map[int64]*model.Request{},
		transforms:  map[int64]*model.Transform{},
		processings: map[int64]*model.Processing{},
		collections: map[int64]*model.Collection{},
		contents:    map[int64]*model.Content{},
		messages:    map[int64]*model.Message{},
		health:      map[string]*model.Health{},
		commands:    map[int64]*model.Command{},
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error { return nil }

func (s *Store) CleanLocking(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	n := 0
	for _, r := range s.requests {
		if r.Locking == model.LockLocking && r.UpdatedAt.Before(cutoff) {
			r.Locking = model.LockIdle
			n++
		}
	}
	for _, t := range s.transforms {
		if t.Locking == model.LockLocking && t.UpdatedAt.Before(cutoff) {
			t.Locking = model.LockIdle
			n++
		}
	}
	for _, p := range s.processings {
		if p.Locking == model.LockLocking && p.UpdatedAt.Before(cutoff) {
			p.Locking = model.LockIdle
			n++
		}
	}
	return n, nil
}

func (s *Store) Requests() store.RequestStore     { return requestView{s} }
func (s *Store) Transforms() store.TransformStore   { return transformView{s} }
func (s *Store) Processings() store.ProcessingStore { return processingView{s} }
func (s *Store) Collections() store.CollectionStore { return collectionView{s} }
func (s *Store) Contents() store.ContentStore       { return contentView{s} }
func (s *Store) Messages() store.MessageStore       { return messageView{s} }
func (s *Store) Health() store.HealthStore          { return healthView{s} }
func (s *Store) Commands() store.CommandStore       { return commandView{s} }

var _ store.Store = (*Store)(nil)

func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func notFound(kind string, id int64) error {
	return fmt.Errorf("%s %d: not found", kind, id)
}
