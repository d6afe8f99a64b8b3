// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package kernel

import (
	"context"
	"fmt"
	"testing"
	"time"
)

type countingTicker struct {
	calls int
	log   *[]string
	name  string
}

func (c *countingTicker) Tick() {
	c.calls++
	if c.log != nil {
		*c.log = append(*c.log, c.name)
	}
}

// ============================================================
// Registration
// ============================================================

func TestAddTask_FailsWhenFull(t *testing.T) {
	s := NewScheduler(10*time.Millisecond, 3, nil)
	for i := 0; i < 3; i++ {
		if !s.AddTask(NewTask(fmt.Sprintf("t%d", i), 10*time.Millisecond, &countingTicker{})) {
			t.Fatalf("AddTask %d should succeed", i)
		}
	}

	extra := &countingTicker{}
	if s.AddTask(NewTask("extra", 10*time.Millisecond, extra)) {
		t.Fatal("AddTask beyond capacity should fail")
	}
	if s.Len() != 3 {
		t.Errorf("registry mutated on failed add: len %d", s.Len())
	}

	s.Schedule()
	if extra.calls != 0 {
		t.Errorf("rejected task ran %d times", extra.calls)
	}
}

func TestAddTask_DefaultCapacity(t *testing.T) {
	s := NewScheduler(time.Millisecond, 0, nil)
	if s.Capacity() != MaxTasks {
		t.Errorf("expected capacity %d, got %d", MaxTasks, s.Capacity())
	}
}

func TestAddTask_RejectsInvalid(t *testing.T) {
	s := NewScheduler(time.Millisecond, 2, nil)
	tests := []struct {
		name string
		task *Task
	}{
		{"nil task", nil},
		{"nil work", NewTask("idle", time.Millisecond, nil)},
		{"zero period", NewTask("zero", 0, &countingTicker{})},
		{"negative period", NewTask("neg", -time.Millisecond, &countingTicker{})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if s.AddTask(tt.task) {
				t.Error("AddTask should fail")
			}
		})
	}
	if s.Len() != 0 {
		t.Errorf("expected empty registry, got %d", s.Len())
	}
}

// ============================================================
// Dispatch
// ============================================================

func TestSchedule_InvocationCount(t *testing.T) {
	tests := []struct {
		name     string
		base     time.Duration
		period   time.Duration
		cycles   int
		expected int
	}{
		{"every tick", 10 * time.Millisecond, 10 * time.Millisecond, 25, 25},
		{"every tenth tick", 10 * time.Millisecond, 100 * time.Millisecond, 25, 2},
		{"one second at 10ms", 10 * time.Millisecond, time.Second, 100, 1},
		{"not yet due", 10 * time.Millisecond, time.Second, 99, 0},
		{"non-multiple period", 30 * time.Millisecond, 100 * time.Millisecond, 10, 3},
		{"period below base", 50 * time.Millisecond, 20 * time.Millisecond, 4, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(tt.base, 1, nil)
			c := &countingTicker{}
			s.AddTask(NewTask("task", tt.period, c))
			for i := 0; i < tt.cycles; i++ {
				s.Schedule()
			}
			if c.calls != tt.expected {
				t.Errorf("expected %d calls, got %d", tt.expected, c.calls)
			}
		})
	}
}

func TestSchedule_SubtractsPeriod(t *testing.T) {
	// 30ms base against 100ms period: due at 120ms leaves 20ms carried over
	s := NewScheduler(30*time.Millisecond, 1, nil)
	task := NewTask("task", 100*time.Millisecond, &countingTicker{})
	s.AddTask(task)

	for i := 0; i < 4; i++ {
		s.Schedule()
	}
	if task.Elapsed() != 20*time.Millisecond {
		t.Errorf("expected 20ms carried over, got %v", task.Elapsed())
	}
}

func TestSchedule_OneCallPerCycle(t *testing.T) {
	// a period below the base period still runs at most once per cycle
	s := NewScheduler(50*time.Millisecond, 1, nil)
	c := &countingTicker{}
	task := NewTask("task", 10*time.Millisecond, c)
	s.AddTask(task)

	s.Schedule()
	if c.calls != 1 {
		t.Fatalf("expected 1 call, got %d", c.calls)
	}
	if task.Elapsed() != 40*time.Millisecond {
		t.Errorf("expected 40ms remaining, got %v", task.Elapsed())
	}
}

func TestSchedule_ShortPeriodResidueBounded(t *testing.T) {
	s := NewScheduler(50*time.Millisecond, 1, nil)
	c := &countingTicker{}
	task := NewTask("task", 10*time.Millisecond, c)
	s.AddTask(task)

	for i := 0; i < 1000; i++ {
		s.Schedule()
	}
	if c.calls != 1000 {
		t.Errorf("expected 1000 calls, got %d", c.calls)
	}
	if task.Elapsed() != 40*time.Millisecond {
		t.Errorf("expected residue to stay at 40ms, got %v", task.Elapsed())
	}
}

func TestSchedule_RegistrationOrder(t *testing.T) {
	var order []string
	s := NewScheduler(10*time.Millisecond, 3, nil)
	for _, name := range []string{"indicator", "link", "monitor"} {
		s.AddTask(NewTask(name, 10*time.Millisecond, &countingTicker{log: &order, name: name}))
	}

	s.Schedule()
	s.Schedule()

	expected := []string{"indicator", "link", "monitor", "indicator", "link", "monitor"}
	if fmt.Sprint(order) != fmt.Sprint(expected) {
		t.Errorf("expected order %v, got %v", expected, order)
	}
}

func TestSchedule_TickCounter(t *testing.T) {
	s := NewScheduler(10*time.Millisecond, 1, nil)
	for i := 0; i < 7; i++ {
		s.Schedule()
	}
	if s.Ticks() != 7 {
		t.Errorf("expected 7 ticks, got %d", s.Ticks())
	}
	if s.Uptime() != 70*time.Millisecond {
		t.Errorf("expected 70ms uptime, got %v", s.Uptime())
	}
}

func TestTickFunc(t *testing.T) {
	calls := 0
	s := NewScheduler(time.Millisecond, 1, nil)
	s.AddTask(NewTask("func", time.Millisecond, TickFunc(func() { calls++ })))
	s.Schedule()
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

// ============================================================
// Run loop
// ============================================================

func TestRun_StopsOnCancel(t *testing.T) {
	s := NewScheduler(time.Millisecond, 1, nil)
	calls := 0
	s.AddTask(NewTask("func", time.Millisecond, TickFunc(func() { calls++ })))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if calls == 0 {
		t.Error("expected at least one call before cancellation")
	}
	if uint64(calls) != s.Ticks() {
		t.Errorf("calls %d should equal ticks %d", calls, s.Ticks())
	}
}
