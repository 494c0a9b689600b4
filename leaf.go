package btreex

import (
	"context"
)

// Action returns a leaf driven by fn on every tick.
func Action(name string, fn TickFunc) *Node {
	n := NewLeaf(name)
	if err := n.SetTick(fn); err != nil {
		n.buildErrs = append(n.buildErrs, err)
	}
	return n
}

// AsyncAction returns a leaf whose outcome is produced by a continuation
// that may suspend across ticks.
func AsyncAction(name string, fn AsyncTickFunc) *Node {
	n := NewLeaf(name)
	if err := n.SetTickAsync(fn); err != nil {
		n.buildErrs = append(n.buildErrs, err)
	}
	return n
}

// Guard succeeds when pred holds and fails otherwise. It invalidates once
// pred disagrees with the value that produced its outcome.
func Guard(name string, pred func() bool) *Node {
	n := NewLeaf(name)
	last := MustSlot[bool](n, "observed", nil)
	_ = n.SetTick(func(context.Context) (Status, error) {
		v := pred()
		last.Set(v)
		if v {
			return Success, nil
		}
		return Failure, nil
	})
	_ = n.SetInvalidateCheck(func() bool {
		return pred() != last.Get()
	})
	return n
}

// Succeed returns a leaf that succeeds on its first tick.
func Succeed(name string) *Node {
	return constant(name, Success)
}

// Fail returns a leaf that fails on its first tick.
func Fail(name string) *Node {
	return constant(name, Failure)
}

func constant(name string, st Status) *Node {
	n := NewLeaf(name)
	_ = n.SetTick(func(context.Context) (Status, error) { return st, nil })
	return n
}

// Wait returns a leaf that stays Running for ticks ticks and then succeeds.
func Wait(name string, ticks int) *Node {
	return AsyncAction(name, func(_ context.Context, y *Yielder) (Status, error) {
		if err := y.Ticks(ticks); err != nil {
			return Failure, err
		}
		return Success, nil
	})
}
