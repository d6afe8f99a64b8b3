// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package kernel

import (
	"context"
	"log/slog"
	"time"

	"github.com/Thermoquad/cistern/pkg/logging"
)

// MaxTasks is the default registry capacity
const MaxTasks = 10

// Scheduler is a fixed-capacity cooperative dispatcher. Tasks run one at a
// time, to completion, in registration order.
type Scheduler struct {
	basePeriod time.Duration
	capacity   int
	tasks      []*Task
	ticks      uint64
	logger     *slog.Logger
}

// NewScheduler creates a scheduler. A capacity <= 0 selects MaxTasks.
func NewScheduler(basePeriod time.Duration, capacity int, logger *slog.Logger) *Scheduler {
	if capacity <= 0 {
		capacity = MaxTasks
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Scheduler{
		basePeriod: basePeriod,
		capacity:   capacity,
		tasks:      make([]*Task, 0, capacity),
		logger:     logger,
	}
}

// AddTask appends t to the registry. It returns false, leaving the registry
// untouched, when the registry is full or t cannot be scheduled.
func (s *Scheduler) AddTask(t *Task) bool {
	if t == nil || t.work == nil || t.period <= 0 {
		return false
	}
	if len(s.tasks) >= s.capacity {
		s.logger.Warn("scheduler full", slog.String("task", t.name), slog.Int("capacity", s.capacity))
		return false
	}
	s.tasks = append(s.tasks, t)
	return true
}

// Schedule advances the tick counter by one base period and runs every task
// whose accumulated time has reached its period.
func (s *Scheduler) Schedule() {
	s.ticks++
	for _, t := range s.tasks {
		if t.advance(s.basePeriod) {
			t.work.Tick()
		}
	}
}

// Run calls Schedule once per base period until ctx is cancelled. A task that
// overruns the base period delays the next cycle; missed cycles are not
// replayed.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.basePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Schedule()
		}
	}
}

// BasePeriod returns the dispatch period
func (s *Scheduler) BasePeriod() time.Duration {
	return s.basePeriod
}

// Capacity returns the maximum number of tasks
func (s *Scheduler) Capacity() int {
	return s.capacity
}

// Len returns the number of registered tasks
func (s *Scheduler) Len() int {
	return len(s.tasks)
}

// Ticks returns the number of Schedule calls so far
func (s *Scheduler) Ticks() uint64 {
	return s.ticks
}

// Uptime returns the scheduler's notion of elapsed time
func (s *Scheduler) Uptime() time.Duration {
	return time.Duration(s.ticks) * s.basePeriod
}
