package ticker

import (
	"sync"
	"time"

	"tiktorch/internal/core/ports"
)

// Scheduler implements ports.Scheduler with time.Ticker. Each schedule
// runs fn on its own goroutine, one call at a time; ticks that arrive
// while fn is still running are dropped.
type Scheduler struct{}

// NewScheduler creates a Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

type handle struct {
	once sync.Once
	stop chan struct{}
}

func (h *handle) Stop() {
	h.once.Do(func() { close(h.stop) })
}

// ScheduleRepeating calls fn every interval until the handle is stopped.
func (s *Scheduler) ScheduleRepeating(interval time.Duration, fn func()) ports.Handle {
	h := &handle{stop: make(chan struct{})}
	t := time.NewTicker(interval)

	go func() {
		defer t.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-t.C:
				// stop wins over a tick that raced with it
				select {
				case <-h.stop:
					return
				default:
				}
				fn()
			}
		}
	}()

	return h
}
