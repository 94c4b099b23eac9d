// Package eventbus is the in-process event bus each agent dispatches work
// through, grounded directly on the original implementation's
// eventbus/eventbus.py and eventbus/localeventbusbackend.py: per-type FIFO
// delivery, id-keyed storage so a duplicate publish coalesces onto the same
// slot, and a Locked return routed back through requeue rather than through
// the normal fail path.
package eventbus

import (
	"fmt"
	"time"
)

// Type identifies which agent pipeline an Event belongs to.
type Type string

const (
	TypeNewRequest           Type = "new_request"
	TypeUpdateRequest        Type = "update_request"
	TypeAbortRequest         Type = "abort_request"
	TypeResumeRequest        Type = "resume_request"
	TypeNewTransform         Type = "new_transform"
	TypeUpdateTransform      Type = "update_transform"
	TypeNewProcessing        Type = "new_processing"
	TypeUpdateProcessing     Type = "update_processing"
	TypeSyncProcessing       Type = "sync_processing"
	TypeTerminatedProcessing Type = "terminated_processing"
	TypeContentDepUpdate     Type = "content_dep_update"
)

// Event is one unit of dispatchable work. ID is the event's own identity,
// used as the coalescing key: publishing two events with the same ID
// replaces the pending one rather than queuing a second instance, since they
// both mean "go look at this row again".
type Event struct {
	ID           string
	Type         Type
	RequestID    int64
	TransformID  int64
	ProcessingID int64
	ContentID    int64
	CreatedAt    time.Time
	RequeueCount int
	Publisher    string
}

// NewEvent constructs an Event with a fresh ID scoped to (typ, entity id),
// so that repeated publishes for the same entity collapse onto one pending
// event rather than piling up duplicates. entityID is stored on whichever of
// RequestID/TransformID/ProcessingID/ContentID matches typ's pipeline, so
// handlers can read it back off the field that names it.
func NewEvent(typ Type, entityID int64) *Event {
	e := &Event{
		ID:        coalesceID(typ, entityID),
		Type:      typ,
		CreatedAt: time.Now(),
	}
	switch typ {
	case TypeNewRequest, TypeUpdateRequest, TypeAbortRequest, TypeResumeRequest:
		e.RequestID = entityID
	case TypeNewTransform, TypeUpdateTransform:
		e.TransformID = entityID
	case TypeNewProcessing, TypeUpdateProcessing, TypeSyncProcessing, TypeTerminatedProcessing:
		e.ProcessingID = entityID
	case TypeContentDepUpdate:
		e.ContentID = entityID
	}
	return e
}

// coalesceID is deterministic in (typ, entityID) so two NewEvent calls for
// the same logical unit of work produce the same ID and coalesce in the
// backend's id-keyed map, per localeventbusbackend.py's send() overwriting
// self._events[event_type][event._id].
func coalesceID(typ Type, entityID int64) string {
	return fmt.Sprintf("%s:%d", typ, entityID)
}

// Requeue records that this event is being put back on the bus after a
// Locked result, mirroring Event.requeue() in the original implementation.
func (e *Event) Requeue() {
	e.RequeueCount++
	e.CreatedAt = time.Now()
}
