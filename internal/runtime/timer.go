package runtime

import (
	"context"
	"time"

	"github.com/iddsorg/idds/internal/logging"
	"github.com/robfig/cron/v3"
)

// timerParser is the standard 5-field cron parser, reused for the
// maintenance schedule cmd/iddsd registers (CleanLocking).
var timerParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule checks a cron expression without registering it.
func ValidateSchedule(expr string) error {
	_, err := timerParser.Parse(expr)
	return err
}

type timerTask struct {
	schedule cron.Schedule
	fn       func(ctx context.Context)
	nextRun  time.Time
}

// Timer runs one or more cron-scheduled maintenance tasks on its own
// goroutine. Grounded on the teacher's kernelEngine's cronParser.Parse +
// sched.Next(time.Now()) next-run computation, generalized from a single
// kernel schedule to an arbitrary task table.
type Timer struct {
	tasks  []*timerTask
	logger *logging.Logger
}

// NewTimer returns an empty Timer.
func NewTimer() *Timer {
	return &Timer{logger: logging.NewComponentLogger("timer")}
}

// Every registers fn to run on the given cron schedule. A malformed
// expression is reported immediately; call ValidateSchedule at config load
// time to fail fast instead.
func (t *Timer) Every(expr string, fn func(ctx context.Context)) error {
	sched, err := timerParser.Parse(expr)
	if err != nil {
		return err
	}
	t.tasks = append(t.tasks, &timerTask{schedule: sched, fn: fn, nextRun: sched.Next(time.Now())})
	return nil
}

// Run blocks, firing due tasks every tick, until ctx is cancelled.
func (t *Timer) Run(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, task := range t.tasks {
				if now.Before(task.nextRun) {
					continue
				}
				task.nextRun = task.schedule.Next(now)
				go func(fn func(ctx context.Context)) {
					defer func() {
						if r := recover(); r != nil {
							t.logger.Critical("timer task panicked: %v", r)
						}
					}()
					fn(ctx)
				}(task.fn)
			}
		}
	}
}
