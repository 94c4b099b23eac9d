package runtime

import (
	"context"
	"time"

	"github.com/iddsorg/idds/internal/eventbus"
	"github.com/iddsorg/idds/internal/idderrors"
	"github.com/iddsorg/idds/internal/logging"
)

// Handler processes one event. A nil error marks it clean; an
// idderrors.KindLockConflict error requeues it with Event.Requeue;
// any other error is reported failed and dropped, matching
// execute_event_schedule's ret==0 / ReturnCode.Locked / else branching.
type Handler func(ctx context.Context, event *eventbus.Event) error

// Dispatcher runs one Handler per eventbus.Type on a bounded Pool, polling
// every type once per delay tick. Grounded on baseagent.py's
// execute_event_schedule. It keeps no in-flight set of its own; Pool.Go
// blocks the tick until a worker slot is free.
type Dispatcher struct {
	bus      eventbus.Bus
	pool     *Pool
	handlers map[eventbus.Type]Handler
	delay    time.Duration
	logger   *logging.Logger
	hostname string
}

// NewDispatcher constructs a Dispatcher. delay is the polling tick shared by
// every type (config.Config.EventIntervalDelay); hostname is recorded on
// eventbus.Bus.Report, mirroring get_hostname()'s use in send_report.
func NewDispatcher(bus eventbus.Bus, pool *Pool, delay time.Duration, hostname string) *Dispatcher {
	return &Dispatcher{
		bus:      bus,
		pool:     pool,
		handlers: make(map[eventbus.Type]Handler),
		delay:    delay,
		logger:   logging.NewComponentLogger("dispatcher"),
		hostname: hostname,
	}
}

// Handle registers the Handler invoked for events of the given Type.
func (d *Dispatcher) Handle(typ eventbus.Type, h Handler) {
	d.handlers[typ] = h
}

// Run polls every registered type once per delay tick (0.1s when delay is
// not positive) until ctx is cancelled, mirroring execute()'s
// while-not-stopped loop over execute_timer_schedule/execute_event_schedule.
func (d *Dispatcher) Run(ctx context.Context) {
	interval := d.delay
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.pool.Wait()
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	for typ, handler := range d.handlers {
		event := d.bus.Get(typ)
		if event == nil {
			continue
		}
		d.dispatch(ctx, event, handler)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, event *eventbus.Event, handler Handler) {
	d.pool.Go(ctx, func(ctx context.Context) {
		start := time.Now()
		err := handler(ctx, event)
		end := time.Now()

		switch {
		case err == nil:
			d.bus.Clean(event)
			d.bus.Report(event, "finished", start, end, d.hostname, nil)
		case idderrors.IsLockConflict(err):
			d.bus.Fail(event)
			d.bus.Report(event, "locked", start, end, d.hostname, err)
			d.logger.Warn("event %s (%s) hit a lock conflict, requeuing: %v", event.ID, event.Type, err)
			event.Requeue()
			d.bus.Publish(event)
		default:
			d.bus.Fail(event)
			d.bus.Report(event, "failed", start, end, d.hostname, err)
			d.logger.Error("event %s (%s) failed: %v", event.ID, event.Type, err)
		}
	})
}
