// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package kernel

import "time"

// Ticker is implemented by every periodic unit of work a node registers
type Ticker interface {
	Tick()
}

// Task binds a Ticker to its period. Once registered, only the scheduler
// advances its elapsed time.
type Task struct {
	name    string
	period  time.Duration
	elapsed time.Duration
	work    Ticker
}

// NewTask creates a task that runs work once per period
func NewTask(name string, period time.Duration, work Ticker) *Task {
	return &Task{
		name:   name,
		period: period,
		work:   work,
	}
}

// TickFunc adapts a plain function to the Ticker interface
type TickFunc func()

// Tick calls f
func (f TickFunc) Tick() {
	f()
}

// Name returns the task name used in logs
func (t *Task) Name() string {
	return t.name
}

// Period returns the configured period
func (t *Task) Period() time.Duration {
	return t.period
}

// Elapsed returns the time accumulated toward the next run
func (t *Task) Elapsed() time.Duration {
	return t.elapsed
}

// advance accumulates one base period and reports whether the task is due.
// The accumulator is reduced by one period, never zeroed, so leftover time
// carries into the next cycle.
func (t *Task) advance(base time.Duration) bool {
	t.elapsed += base
	if t.elapsed >= t.period {
		t.elapsed -= t.period
		if t.period < base {
			// runs once per cycle; the residue settles at base - period
			t.elapsed = min(t.elapsed, base-t.period)
		}
		return true
	}
	return false
}
