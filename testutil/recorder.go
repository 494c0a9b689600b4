package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/comalice/btreex"
)

// Recorder collects lifecycle hook firings as "node:phase" strings.
type Recorder struct {
	mu     sync.Mutex
	events []string
}

// Watch registers enable, enter, success, failure, exit and disable hooks on
// n that record into r, and returns n.
func (r *Recorder) Watch(n *btreex.Node) *btreex.Node {
	name := n.Name()
	rec := func(phase string) btreex.Hook {
		return func(context.Context) error {
			r.Record(name + ":" + phase)
			return nil
		}
	}
	return n.OnEnable(rec("enable")).
		OnEnter(rec("enter")).
		OnSuccess(rec("success")).
		OnFailure(rec("failure")).
		OnExit(rec("exit")).
		OnDisable(rec("disable"))
}

// WatchTree watches every node of t.
func (r *Recorder) WatchTree(t *btreex.Tree) {
	t.Walk(func(n *btreex.Node) bool {
		r.Watch(n)
		return true
	})
}

// Record appends an arbitrary event.
func (r *Recorder) Record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Count returns how many times event was recorded.
func (r *Recorder) Count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

// Clear drops all recorded events.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// FakeClock is a manually advanced btreex.Clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock returns a clock set to start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Script returns a leaf that reports statuses in order, one per tick, and
// repeats the last one. The script restarts on every entry. ticks, when
// non-nil, counts decision-function calls.
func Script(name string, ticks *int, statuses ...btreex.Status) *btreex.Node {
	if len(statuses) == 0 {
		statuses = []btreex.Status{btreex.Success}
	}
	n := btreex.NewLeaf(name)
	pos := btreex.MustSlot(n, "pos", func() int { return 0 })
	if err := n.SetTick(func(context.Context) (btreex.Status, error) {
		if ticks != nil {
			*ticks++
		}
		i := pos.Get()
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		pos.Set(i + 1)
		return statuses[i], nil
	}); err != nil {
		panic(fmt.Sprintf("testutil: %v", err))
	}
	return n
}

// Flag is a mutable boolean for predicates in tests.
type Flag struct {
	mu sync.Mutex
	v  bool
}

func (f *Flag) Set(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.v = v
}

func (f *Flag) Get() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.v
}
