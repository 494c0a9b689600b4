package btreex

import (
	"context"
	"time"
)

// observation remembers the last value a predicate produced.
type observation struct {
	seen  bool
	value bool
}

func passInvalid(n *Node) func() bool {
	return func() bool {
		c := n.Child()
		return c != nil && c.IsInvalid()
	}
}

func decorate(name string, child *Node, tick TickFunc, invalid func() bool) *Node {
	n := NewDecorator(name, child)
	_ = n.SetTick(tick)
	if invalid == nil {
		invalid = passInvalid(n)
	}
	_ = n.SetInvalidateCheck(invalid)
	return n
}

// tickChild ticks the decorated child, re-entering it when it is Done.
func tickChild(n *Node) (bool, Status) {
	c := n.Child()
	if c == nil {
		return true, Failure
	}
	return c.Tick(true)
}

// Invert swaps Success and Failure of its child.
func Invert(name string, child *Node) *Node {
	var n *Node
	n = decorate(name, child, func(context.Context) (Status, error) {
		done, st := tickChild(n)
		if !done {
			return Running, nil
		}
		if st == Success {
			return Failure, nil
		}
		return Success, nil
	}, nil)
	return n
}

// AlwaysSucceed reports Success once its child completes, whatever the outcome.
func AlwaysSucceed(name string, child *Node) *Node {
	return force(name, child, Success)
}

// AlwaysFail reports Failure once its child completes, whatever the outcome.
func AlwaysFail(name string, child *Node) *Node {
	return force(name, child, Failure)
}

func force(name string, child *Node, st Status) *Node {
	var n *Node
	n = decorate(name, child, func(context.Context) (Status, error) {
		if done, _ := tickChild(n); !done {
			return Running, nil
		}
		return st, nil
	}, nil)
	return n
}

// Condition gates its child on pred. While pred holds the child's status is
// passed through; once it is false the node fails and its exit phase winds
// the child down gracefully.
//
// It invalidates when pred changes value, or when pred holds and the child is
// invalid.
func Condition(name string, pred func() bool, child *Node) *Node {
	return gate(name, pred, child, false)
}

// While is Condition with an immediate teardown: when pred turns false the
// child is reset on the spot and the node fails in the same tick.
func While(name string, pred func() bool, child *Node) *Node {
	return gate(name, pred, child, true)
}

func gate(name string, pred func() bool, child *Node, immediate bool) *Node {
	n := NewDecorator(name, child)
	last := MustSlot[observation](n, "observed", nil)
	_ = n.SetTick(func(context.Context) (Status, error) {
		v := pred()
		last.Set(observation{seen: true, value: v})
		if !v {
			if c := n.Child(); immediate && c != nil {
				c.ResetImmediately()
			}
			return Failure, nil
		}
		done, st := tickChild(n)
		if !done {
			return Running, nil
		}
		return st, nil
	})
	_ = n.SetInvalidateCheck(func() bool {
		v := pred()
		o := last.Get()
		if !o.seen || v != o.value {
			return true
		}
		c := n.Child()
		return v && c != nil && c.IsInvalid()
	})
	return n
}

// Until re-runs its child until pred holds, then succeeds. pred is checked
// before the child on every tick.
func Until(name string, pred func() bool, child *Node) *Node {
	var n *Node
	n = decorate(name, child, func(context.Context) (Status, error) {
		if pred() {
			return Success, nil
		}
		tickChild(n)
		return Running, nil
	}, nil)
	return n
}

// UntilStatus re-runs its child until it completes with target, then reports
// target.
func UntilStatus(name string, target Status, child *Node) *Node {
	var n *Node
	n = decorate(name, child, func(context.Context) (Status, error) {
		if done, st := tickChild(n); done && st == target {
			return target, nil
		}
		return Running, nil
	}, nil)
	return n
}

// ConditionLatch checks pred only until it first holds; from then on the
// child runs to completion regardless of pred.
func ConditionLatch(name string, pred func() bool, child *Node) *Node {
	n := NewDecorator(name, child)
	latched := MustSlot(n, "latched", func() bool { return false })
	_ = n.SetTick(func(context.Context) (Status, error) {
		if !latched.Get() {
			if !pred() {
				return Failure, nil
			}
			latched.Set(true)
		}
		done, st := tickChild(n)
		if !done {
			return Running, nil
		}
		latched.Set(false)
		return st, nil
	})
	_ = n.SetInvalidateCheck(passInvalid(n))
	return n
}

// RepeatCount runs its child to completion times times, then succeeds. A
// count of zero or less succeeds without ticking the child.
func RepeatCount(name string, times int, child *Node) *Node {
	n := NewDecorator(name, child)
	count := MustSlot(n, "count", func() int { return 0 })
	_ = n.SetTick(func(context.Context) (Status, error) {
		if times <= 0 {
			return Success, nil
		}
		if done, _ := tickChild(n); done {
			c := count.Get() + 1
			count.Set(c)
			if c >= times {
				return Success, nil
			}
		}
		return Running, nil
	})
	_ = n.SetInvalidateCheck(passInvalid(n))
	return n
}

// Repeat re-runs its child forever and never completes on its own.
func Repeat(name string, child *Node) *Node {
	var n *Node
	n = decorate(name, child, func(context.Context) (Status, error) {
		tickChild(n)
		return Running, nil
	}, nil)
	return n
}

// Timeout fails once d has elapsed since entry while the child is still
// running. Elapsed time is read from the tree's Clock.
func Timeout(name string, d time.Duration, child *Node) *Node {
	n := NewDecorator(name, child)
	started := MustSlot(n, "started", func() time.Time { return n.environment().clock.Now() })
	_ = n.SetTick(func(context.Context) (Status, error) {
		if n.environment().clock.Now().Sub(started.Get()) >= d {
			return Failure, nil
		}
		done, st := tickChild(n)
		if !done {
			return Running, nil
		}
		return st, nil
	})
	_ = n.SetInvalidateCheck(passInvalid(n))
	return n
}

// Cooldown refuses to run its child again until d has elapsed since the
// child last completed; a refused entry fails immediately.
func Cooldown(name string, d time.Duration, child *Node) *Node {
	n := NewDecorator(name, child)
	completed := MustSlot[time.Time](n, "completedAt", nil)
	_ = n.SetTick(func(context.Context) (Status, error) {
		now := n.environment().clock.Now()
		if last := completed.Get(); !last.IsZero() && now.Sub(last) < d {
			return Failure, nil
		}
		done, st := tickChild(n)
		if !done {
			return Running, nil
		}
		completed.Set(n.environment().clock.Now())
		return st, nil
	})
	_ = n.SetInvalidateCheck(passInvalid(n))
	return n
}

// Latched passes its child through and never invalidates, so a reactive
// parent will not rewind past it.
func Latched(name string, child *Node) *Node {
	n := NewDecorator(name, child)
	_ = n.SetTick(func(context.Context) (Status, error) {
		done, st := tickChild(n)
		if !done {
			return Running, nil
		}
		return st, nil
	})
	return n
}

// ValueChanged passes its child through and invalidates once fn reports a
// value different from the one observed on the last tick.
func ValueChanged[T comparable](name string, fn func() T, child *Node) *Node {
	n := NewDecorator(name, child)
	last := MustSlot[T](n, "value", nil)
	_ = n.SetTick(func(context.Context) (Status, error) {
		last.Set(fn())
		done, st := tickChild(n)
		if !done {
			return Running, nil
		}
		return st, nil
	})
	_ = n.SetInvalidateCheck(func() bool {
		if fn() != last.Get() {
			return true
		}
		c := n.Child()
		return c != nil && c.IsInvalid()
	})
	return n
}
