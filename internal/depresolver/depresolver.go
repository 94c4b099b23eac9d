// Package depresolver implements the content dependency resolver of
// spec.md §4.H: given a Content whose substatus just changed to a
// Propagatable value, release every Content waiting on it via
// ContentDepID. The actual atomic propagation write lives in
// store.ContentStore.UpdateStatusAndPropagate (§4.A's application-level
// choice, recorded in DESIGN.md); this package adds the up-front cycle
// check spec.md §4.H requires ("Cycles are disallowed... if detected, the
// resolver reports and refuses propagation") as defense in depth ahead of
// the store layer's own cycle-tolerant walk.
package depresolver

import (
	"context"
	"fmt"

	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store"
)

// ErrDependencyCycle is returned when the dependency graph reachable from a
// Content forms a cycle, which spec.md §4.H says must never happen because
// Works form a DAG.
var ErrDependencyCycle = fmt.Errorf("depresolver: dependency graph contains a cycle")

// Resolver walks content_dep_id edges to propagate a terminal substatus.
type Resolver struct {
	contents store.ContentStore
}

// New constructs a Resolver over the given ContentStore.
func New(contents store.ContentStore) *Resolver {
	return &Resolver{contents: contents}
}

// Resolve checks contentID's dependent closure for a cycle and, if clean,
// propagates status to every Content transitively depending on it. It is
// invoked synchronously by the Carrier agent right after it writes a
// Content's terminal substatus (§4.H).
func (r *Resolver) Resolve(ctx context.Context, contentID int64, status model.ContentStatus) error {
	if status.Propagatable() {
		if err := r.checkAcyclic(ctx, contentID); err != nil {
			return err
		}
	}
	return r.contents.UpdateStatusAndPropagate(ctx, contentID, status)
}

// checkAcyclic performs a breadth-first walk of contentID's dependents,
// refusing to propagate if the same Content is reachable twice (a cycle in
// what must be a DAG), per §4.H's "if detected, the resolver reports and
// refuses propagation".
func (r *Resolver) checkAcyclic(ctx context.Context, contentID int64) error {
	visited := map[int64]bool{contentID: true}
	queue := []int64{contentID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		dependents, err := r.contents.ListDependents(ctx, id)
		if err != nil {
			return fmt.Errorf("depresolver: list dependents of %d: %w", id, err)
		}
		for _, dep := range dependents {
			if visited[dep.ContentID] {
				return ErrDependencyCycle
			}
			visited[dep.ContentID] = true
			queue = append(queue, dep.ContentID)
		}
	}
	return nil
}
