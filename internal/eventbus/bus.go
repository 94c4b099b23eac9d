package eventbus

import (
	"sync"
	"time"

	"github.com/iddsorg/idds/internal/logging"
)

// Bus is the contract an agent runtime dispatches events through. It is
// intentionally narrow: Publish/Get/Clean/Fail/Report, matching
// EventBus.publish_event/get_event plus the clean_event/fail_event/
// send_report calls baseagent.py's execute_event_schedule makes directly on
// the backend.
type Bus interface {
	Publish(event *Event)
	Get(typ Type) *Event
	Clean(event *Event)
	Fail(event *Event)
	Report(event *Event, status string, start, end time.Time, host string, retErr error)
	Stop()
}

// Report is a completed dispatch record, kept in memory by LocalBus and
// returned by Reports; it is not persisted.
type Report struct {
	Event     *Event
	Status    string
	Start     time.Time
	End       time.Time
	Host      string
	Err       error
}

// LocalBus is a single-process event bus: one FIFO queue per Type, keyed by
// event ID so a republish of the same logical event coalesces onto the
// existing slot instead of enqueuing a duplicate. Grounded directly on
// LocalEventBusBackend's self._events/self._events_index pair.
type LocalBus struct {
	mu     sync.Mutex
	events map[Type]map[string]*Event
	index  map[Type][]string
	logger *logging.Logger

	reportMu sync.Mutex
	reports  []Report
}

// NewLocalBus constructs an empty in-memory bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{
		events: make(map[Type]map[string]*Event),
		index:  make(map[Type][]string),
		logger: logging.NewComponentLogger("eventbus"),
	}
}

// Publish enqueues event, or replaces the pending event already queued under
// the same ID (same logical unit of work), per send()'s
// self._events[event_type][event._id] = event.
func (b *LocalBus) Publish(event *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	byID, ok := b.events[event.Type]
	if !ok {
		byID = make(map[string]*Event)
		b.events[event.Type] = byID
	}
	if _, exists := byID[event.ID]; !exists {
		b.index[event.Type] = append(b.index[event.Type], event.ID)
	}
	byID[event.ID] = event
}

// Get pops the oldest pending event of the given type, or nil if none is
// queued, per get()'s index.pop(0).
func (b *LocalBus) Get(typ Type) *Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := b.index[typ]
	if len(ids) == 0 {
		return nil
	}
	id := ids[0]
	b.index[typ] = ids[1:]
	event := b.events[typ][id]
	delete(b.events[typ], id)
	return event
}

// Clean acknowledges event completed successfully; there is nothing further
// to do since Get already removed it from the queue, but Clean exists as a
// distinct call so a future persisted-queue backend has a hook to delete the
// durable row.
func (b *LocalBus) Clean(event *Event) {
	b.logger.Debug("event %s (%s) cleaned", event.ID, event.Type)
}

// Fail records that event's handler returned a non-nil error. The local
// backend does not retry failed events on its own; the runtime calls Fail
// for every handler error and, when idderrors.IsLockConflict(err), then
// republishes the event, per execute_event_schedule's branching.
func (b *LocalBus) Fail(event *Event) {
	b.logger.Warn("event %s (%s) failed", event.ID, event.Type)
}

// Report records a finished dispatch's outcome for observability.
func (b *LocalBus) Report(event *Event, status string, start, end time.Time, host string, retErr error) {
	b.reportMu.Lock()
	defer b.reportMu.Unlock()
	b.reports = append(b.reports, Report{Event: event, Status: status, Start: start, End: end, Host: host, Err: retErr})
	if len(b.reports) > 1000 {
		b.reports = b.reports[len(b.reports)-1000:]
	}
}

// Reports returns a snapshot of recently recorded dispatch reports.
func (b *LocalBus) Reports() []Report {
	b.reportMu.Lock()
	defer b.reportMu.Unlock()
	out := make([]Report, len(b.reports))
	copy(out, b.reports)
	return out
}

// Stop is a no-op for LocalBus; kept to satisfy Bus for backends that own a
// background goroutine or connection.
func (b *LocalBus) Stop() {}

var _ Bus = (*LocalBus)(nil)
