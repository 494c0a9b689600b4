package btreex

import (
	"context"
)

type seqPolicy int8

const (
	policySequence seqPolicy = iota
	policySelector
	policyAlways
)

// sequential implements the ordered composites: Sequence, Selector and
// SequenceAlways. They share the forward pass and the reactive rewind and
// differ only in what short-circuits.
type sequential struct {
	n        *Node
	policy   seqPolicy
	index    Slot[int]
	outcomes Slot[[]Status]
	warned   bool
}

// Sequence ticks children in order and fails at the first failure. It
// succeeds once every child has succeeded; an empty Sequence succeeds.
func Sequence(name string, children ...*Node) *Node {
	return newSequential(name, policySequence, children)
}

// Selector ticks children in order and succeeds at the first success. It
// fails once every child has failed; an empty Selector fails.
func Selector(name string, children ...*Node) *Node {
	return newSequential(name, policySelector, children)
}

// SequenceAlways ticks every child in order regardless of outcomes and
// succeeds only if every child succeeded.
func SequenceAlways(name string, children ...*Node) *Node {
	return newSequential(name, policyAlways, children)
}

// ReactiveSequence is Sequence marked reactive.
func ReactiveSequence(name string, children ...*Node) *Node {
	return Sequence(name, children...).SetReactive(true)
}

// ReactiveSelector is Selector marked reactive.
func ReactiveSelector(name string, children ...*Node) *Node {
	return Selector(name, children...).SetReactive(true)
}

func newSequential(name string, policy seqPolicy, children []*Node) *Node {
	n := NewComposite(name, children...)
	s := &sequential{n: n, policy: policy}
	s.index = MustSlot(n, "index", func() int { return 0 })
	if policy == policyAlways {
		s.outcomes = MustSlot(n, "outcomes", func() []Status { return make([]Status, len(n.children)) })
	}
	_ = n.SetTick(s.tick)
	_ = n.SetInvalidateCheck(s.invalid)
	return n
}

func (s *sequential) tick(context.Context) (Status, error) {
	children := s.n.children
	idx := s.index.Get()
	if s.n.IsReactive() {
		idx = s.rewind(idx)
	}
	for idx < len(children) {
		done, st := children[idx].Tick(true)
		if !done {
			s.index.Set(idx)
			return Running, nil
		}
		if s.policy == policyAlways {
			s.outcomes.Get()[idx] = st
		}
		if (s.policy == policySequence && st == Failure) || (s.policy == policySelector && st == Success) {
			s.index.Set(idx)
			return st, nil
		}
		idx++
	}
	s.index.Set(idx)
	switch s.policy {
	case policySelector:
		if len(children) == 0 && !s.warned {
			s.warned = true
			s.n.warn("empty selector always fails")
		}
		return Failure, nil
	case policyAlways:
		for _, st := range s.outcomes.Get() {
			if st != Success {
				return Failure, nil
			}
		}
	}
	return Success, nil
}

// rewind scans the completed children before idx. At the first invalid one
// every later child is reset, most recent first, and the forward pass resumes
// from it.
func (s *sequential) rewind(idx int) int {
	children := s.n.children
	for i := 0; i < idx && i < len(children); i++ {
		if !children[i].IsInvalid() {
			continue
		}
		for j := len(children) - 1; j > i; j-- {
			children[j].ResetImmediately()
		}
		return i
	}
	return idx
}

func (s *sequential) invalid() bool {
	children := s.n.children
	last := s.index.Get()
	if last >= len(children) {
		last = len(children) - 1
	}
	for i := 0; i <= last; i++ {
		if children[i].IsInvalid() {
			return true
		}
	}
	return false
}

// parallel ticks every child on every tick.
type parallel struct {
	n       *Node
	started Slot[[]bool]
}

// Parallel ticks every child on every tick and succeeds once all of them are
// Done. When reactive, a Done child that reports invalid is re-entered in
// place.
func Parallel(name string, children ...*Node) *Node {
	n := NewComposite(name, children...)
	n.exitOrder = exitParallel
	p := &parallel{n: n}
	p.started = MustSlot(n, "started", func() []bool { return make([]bool, len(n.children)) })
	_ = n.SetTick(p.tick)
	_ = n.SetInvalidateCheck(p.invalid)
	return n
}

func (p *parallel) tick(context.Context) (Status, error) {
	reactive := p.n.IsReactive()
	started := p.started.Get()
	all := true
	for i, c := range p.n.children {
		reenter := !started[i] || (reactive && c.IsInvalid())
		started[i] = true
		c.Tick(reenter)
		if !c.IsDone() {
			all = false
		}
	}
	if all {
		return Success, nil
	}
	return Running, nil
}

func (p *parallel) invalid() bool {
	for _, c := range p.n.children {
		if c.IsInvalid() {
			return true
		}
	}
	return false
}

// race ticks every unfinished child until one succeeds.
type race struct {
	n       *Node
	started Slot[[]bool]
	winner  Slot[int]
}

// Race ticks every child that has not finished on every tick. The first
// success wins; it fails once every child has failed.
func Race(name string, children ...*Node) *Node {
	n := NewComposite(name, children...)
	n.exitOrder = exitParallel
	r := &race{n: n}
	r.started = MustSlot(n, "started", func() []bool { return make([]bool, len(n.children)) })
	r.winner = MustSlot(n, "winner", func() int { return -1 })
	_ = n.SetTick(r.tick)
	_ = n.SetInvalidateCheck(r.invalid)
	return n
}

func (r *race) tick(context.Context) (Status, error) {
	reactive := r.n.IsReactive()
	started := r.started.Get()
	allFailed := true
	for i, c := range r.n.children {
		reenter := !started[i] || (reactive && c.IsInvalid())
		started[i] = true
		if c.IsDone() && !reenter {
			continue
		}
		done, st := c.Tick(true)
		if done && st == Success {
			r.winner.Set(i)
			return Success, nil
		}
		if !done {
			allFailed = false
		}
	}
	if allFailed {
		return Failure, nil
	}
	return Running, nil
}

// invalid defers to the winner when there is one; otherwise every child
// failed and any of them may invalidate the race.
func (r *race) invalid() bool {
	if w := r.winner.Get(); w >= 0 && w < len(r.n.children) {
		return r.n.children[w].IsInvalid()
	}
	for _, c := range r.n.children {
		if c.IsInvalid() {
			return true
		}
	}
	return false
}
