package vkapi

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/util/exsync"
)

type scheduledTask struct {
	name  string
	delay time.Duration
	fn    func(ctx context.Context)
	next  time.Time
}

// Scheduler runs fixed-delay tasks one at a time on a single goroutine. The
// next run of a task is scheduled delay after the previous run finished.
type Scheduler struct {
	log zerolog.Logger

	lock    sync.Mutex
	tasks   []*scheduledTask
	wake    chan struct{}
	running bool
	cancel  context.CancelFunc
	stopped *exsync.Event
}

func NewScheduler(log zerolog.Logger) *Scheduler {
	s := &Scheduler{
		log:     log,
		wake:    make(chan struct{}, 1),
		stopped: exsync.NewEvent(),
	}
	s.stopped.Set()
	return s
}

// ScheduleWithFixedDelay registers a task. The first run happens after delay.
func (s *Scheduler) ScheduleWithFixedDelay(name string, delay time.Duration, fn func(ctx context.Context)) {
	s.lock.Lock()
	s.tasks = append(s.tasks, &scheduledTask{
		name:  name,
		delay: delay,
		fn:    fn,
		next:  time.Now().Add(delay),
	})
	s.lock.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start launches the scheduler goroutine. Calling Start on a running
// scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.stopped.Clear()
	go s.run(ctx)
}

// Stop cancels the scheduler and waits for the current task to return.
func (s *Scheduler) Stop() {
	s.lock.Lock()
	cancel := s.cancel
	s.lock.Unlock()
	if cancel != nil {
		cancel()
	}
	if !s.stopped.WaitTimeout(5 * time.Second) {
		s.log.Warn().Msg("Scheduler didn't stop in time")
	}
}

func (s *Scheduler) IsRunning() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.running
}

func (s *Scheduler) nextTask() (*scheduledTask, time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	var earliest *scheduledTask
	for _, task := range s.tasks {
		if earliest == nil || task.next.Before(earliest.next) {
			earliest = task
		}
	}
	if earliest == nil {
		return nil, time.Hour
	}
	return earliest, time.Until(earliest.next)
}

func (s *Scheduler) run(ctx context.Context) {
	defer func() {
		s.lock.Lock()
		s.running = false
		s.cancel = nil
		s.lock.Unlock()
		s.stopped.Set()
	}()
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		task, wait := s.nextTask()
		if task != nil && wait <= 0 {
			s.runTask(ctx, task)
			if ctx.Err() != nil {
				return
			}
			continue
		}
		timer.Reset(wait)
		select {
		case <-timer.C:
		case <-s.wake:
			timer.Stop()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runTask(ctx context.Context, task *scheduledTask) {
	defer func() {
		if err := recover(); err != nil {
			s.log.Error().
				Str("task", task.name).
				Str("panic", fmt.Sprint(err)).
				Bytes("stack", debug.Stack()).
				Msg("Scheduled task panicked")
		}
		s.lock.Lock()
		task.next = time.Now().Add(task.delay)
		s.lock.Unlock()
	}()
	task.fn(ctx)
}
