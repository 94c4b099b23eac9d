// Package store defines the persistence ports every agent talks through:
// one interface per entity family from §3, plus the claim-and-lock
// convention (§5) that lets multiple agent processes cooperate over the
// same rows without stepping on each other. The shape is grounded on the
// teacher's kerneldomain.Store port/adapter split (interface in one
// package, pgx-backed implementation in another, in-memory fake for tests).
package store

import (
	"context"
	"time"

	"github.com/iddsorg/idds/internal/model"
)

// ListOptions bounds a listing or claiming query. ClaimForUpdate reads Limit
// (how many rows at most) and PollableBy (only rows due for polling by then);
// the postgres List reads Limit. No store filters on Statuses, RequestID or
// TransformID.
type ListOptions struct {
	Statuses   []int
	Limit      int
	PollableBy time.Time
	RequestID  int64
	TransformID int64
}

// RequestStore is the persistence port for Request rows (§3, §4.A).
type RequestStore interface {
	Create(ctx context.Context, r *model.Request) error
	Get(ctx context.Context, requestID int64) (*model.Request, error)
	Update(ctx context.Context, r *model.Request) error
	ClaimNew(ctx context.Context, workerID string, limit int) ([]*model.Request, error)
	ClaimForUpdate(ctx context.Context, workerID string, opts ListOptions) ([]*model.Request, error)
	Release(ctx context.Context, requestID int64) error
	List(ctx context.Context, opts ListOptions) ([]*model.Request, error)
}

// TransformStore is the persistence port for Transform rows (§4.B).
type TransformStore interface {
	Create(ctx context.Context, t *model.Transform) error
	Get(ctx context.Context, transformID int64) (*model.Transform, error)
	Update(ctx context.Context, t *model.Transform) error
	ClaimNew(ctx context.Context, workerID string, limit int) ([]*model.Transform, error)
	ClaimForUpdate(ctx context.Context, workerID string, opts ListOptions) ([]*model.Transform, error)
	Release(ctx context.Context, transformID int64) error
	ListByRequest(ctx context.Context, requestID int64) ([]*model.Transform, error)
}

// ProcessingStore is the persistence port for Processing rows (§4.C).
type ProcessingStore interface {
	Create(ctx context.Context, p *model.Processing) error
	Get(ctx context.Context, processingID int64) (*model.Processing, error)
	Update(ctx context.Context, p *model.Processing) error
	ClaimNew(ctx context.Context, workerID string, limit int) ([]*model.Processing, error)
	ClaimForUpdate(ctx context.Context, workerID string, opts ListOptions) ([]*model.Processing, error)
	Release(ctx context.Context, processingID int64) error
	ListByTransform(ctx context.Context, transformID int64) ([]*model.Processing, error)
	// ActiveByTransform returns the at-most-one non-terminal Processing for a
	// Transform (testable property 2).
	ActiveByTransform(ctx context.Context, transformID int64) (*model.Processing, error)
}

// CollectionStore is the persistence port for Collection rows (§4.D).
type CollectionStore interface {
	Create(ctx context.Context, c *model.Collection) error
	Get(ctx context.Context, collID int64) (*model.Collection, error)
	Update(ctx context.Context, c *model.Collection) error
	ListByTransform(ctx context.Context, transformID int64) ([]*model.Collection, error)
}

// ContentStore is the persistence port for Content rows (§4.D, §9
// dependency propagation).
type ContentStore interface {
	Create(ctx context.Context, c *model.Content) error
	BulkCreate(ctx context.Context, contents []*model.Content) error
	Get(ctx context.Context, contentID int64) (*model.Content, error)
	ListByCollection(ctx context.Context, collID int64) ([]*model.Content, error)
	ListDependents(ctx context.Context, depID int64) ([]*model.Content, error)
	// UpdateExternalID records a Content's current external job identity and
	// content_metadata (e.g. the old_panda_id trail Carrier keeps when a
	// job's PandaID changes across retries, §4.G step 5), without touching
	// status/substatus.
	UpdateExternalID(ctx context.Context, contentID int64, externalContentID string, metadata []byte) error
	// UpdateStatusAndPropagate updates content's status/substatus and, in the
	// same transaction, propagates the change to every Content row whose
	// ContentDepID points at it, provided the new status is Propagatable
	// (§9 design note: application-level transaction, not a DB trigger).
	UpdateStatusAndPropagate(ctx context.Context, contentID int64, status model.ContentStatus) error
}

// MessageStore is the persistence port for the append-only Message log (§4.H).
type MessageStore interface {
	Create(ctx context.Context, m *model.Message) error
	ClaimNew(ctx context.Context, workerID string, limit int) ([]*model.Message, error)
	MarkDelivered(ctx context.Context, msgID int64) error
	ListByRequest(ctx context.Context, requestID int64) ([]*model.Message, error)
}

// HealthStore is the persistence port for agent liveness rows (§4.H).
type HealthStore interface {
	Heartbeat(ctx context.Context, h *model.Health) error
	ListLive(ctx context.Context, staleAfter time.Duration) ([]*model.Health, error)
	Delete(ctx context.Context, agent, hostname string, pid int, threadID int64) error
	ReapStale(ctx context.Context, staleAfter time.Duration) (int, error)
}

// CommandStore is the persistence port for inbound control operations (§4.H).
type CommandStore interface {
	Create(ctx context.Context, c *model.Command) error
	ClaimNew(ctx context.Context, workerID string, limit int) ([]*model.Command, error)
	MarkProcessed(ctx context.Context, cmdID int64) error
}

// Store aggregates every entity port; agents take this one interface rather
// than eight, the way the teacher's DI container hands its services a single
// assembled struct.
type Store interface {
	EnsureSchema(ctx context.Context) error
	CleanLocking(ctx context.Context, olderThan time.Duration) (int, error)

	Requests() RequestStore
	Transforms() TransformStore
	Processings() ProcessingStore
	Collections() CollectionStore
	Contents() ContentStore
	Messages() MessageStore
	Health() HealthStore
	Commands() CommandStore
}
