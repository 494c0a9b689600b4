package btreex

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/comalice/btreex/internal/coro"
)

// Yielder is the suspension primitive handed to continuations.
type Yielder = coro.Yielder

// Hook is a lifecycle callback that completes within the tick it runs in.
type Hook func(ctx context.Context) error

// AsyncHook is a lifecycle callback that may suspend across ticks.
type AsyncHook func(ctx context.Context, y *Yielder) error

// TickFunc is a node's per-tick decision function.
type TickFunc func(ctx context.Context) (Status, error)

// AsyncTickFunc is a decision function expressed as a continuation: it runs
// across as many ticks as it suspends for and its return value is the node's
// outcome. The node reports Running while it is suspended.
type AsyncTickFunc func(ctx context.Context, y *Yielder) (Status, error)

type hook struct {
	sync  Hook
	async AsyncHook
}

// OnEnable registers fn to run once per activation (None -> Running).
func (n *Node) OnEnable(fn Hook) *Node { return n.addHook(PhaseEnable, hook{sync: fn}) }

// OnEnableAsync is the continuation form of OnEnable.
func (n *Node) OnEnableAsync(fn AsyncHook) *Node { return n.addHook(PhaseEnable, hook{async: fn}) }

// OnEnter registers fn to run on every entry, including re-entry.
func (n *Node) OnEnter(fn Hook) *Node { return n.addHook(PhaseEnter, hook{sync: fn}) }

// OnEnterAsync is the continuation form of OnEnter.
func (n *Node) OnEnterAsync(fn AsyncHook) *Node { return n.addHook(PhaseEnter, hook{async: fn}) }

// OnExit registers fn to run at the end of every entry cycle.
func (n *Node) OnExit(fn Hook) *Node { return n.addHook(PhaseExit, hook{sync: fn}) }

// OnExitAsync is the continuation form of OnExit.
func (n *Node) OnExitAsync(fn AsyncHook) *Node { return n.addHook(PhaseExit, hook{async: fn}) }

// OnSuccess registers fn to run when the node completes with Success.
func (n *Node) OnSuccess(fn Hook) *Node { return n.addHook(PhaseSuccess, hook{sync: fn}) }

// OnSuccessAsync is the continuation form of OnSuccess.
func (n *Node) OnSuccessAsync(fn AsyncHook) *Node { return n.addHook(PhaseSuccess, hook{async: fn}) }

// OnFailure registers fn to run when the node completes with Failure.
func (n *Node) OnFailure(fn Hook) *Node { return n.addHook(PhaseFailure, hook{sync: fn}) }

// OnFailureAsync is the continuation form of OnFailure.
func (n *Node) OnFailureAsync(fn AsyncHook) *Node { return n.addHook(PhaseFailure, hook{async: fn}) }

// OnDisable registers fn to run when the node is reset. It never runs on
// natural completion.
func (n *Node) OnDisable(fn Hook) *Node { return n.addHook(PhaseDisable, hook{sync: fn}) }

// OnDisableAsync is the continuation form of OnDisable. During an immediate
// reset it runs with an already cancelled context, so any suspension returns
// an error straight away.
func (n *Node) OnDisableAsync(fn AsyncHook) *Node { return n.addHook(PhaseDisable, hook{async: fn}) }

// OnPreTick registers fn to run on every Running tick before the decision
// function.
func (n *Node) OnPreTick(fn func(*Node)) *Node {
	if fn != nil {
		n.preTick = append(n.preTick, fn)
	}
	return n
}

// OnTick registers fn to run on every tick the decision function reports
// Running.
func (n *Node) OnTick(fn func(*Node)) *Node {
	if fn != nil {
		n.postTick = append(n.postTick, fn)
	}
	return n
}

// SetTick registers the decision function. A node has at most one.
func (n *Node) SetTick(fn TickFunc) error {
	if fn == nil {
		return fmt.Errorf("node %q: %w", n.name, ErrNilNode)
	}
	if n.hasTick() {
		return fmt.Errorf("node %q: %w", n.name, ErrDuplicateTick)
	}
	n.tickFn = fn
	return nil
}

// SetTickAsync registers a continuation as the decision function.
func (n *Node) SetTickAsync(fn AsyncTickFunc) error {
	if fn == nil {
		return fmt.Errorf("node %q: %w", n.name, ErrNilNode)
	}
	if n.hasTick() {
		return fmt.Errorf("node %q: %w", n.name, ErrDuplicateTick)
	}
	n.asyncTickFn = fn
	return nil
}

// SetInvalidateCheck registers the predicate reporting whether the node's
// completed outcome is stale. A node has at most one.
func (n *Node) SetInvalidateCheck(fn func() bool) error {
	if fn == nil {
		return fmt.Errorf("node %q: %w", n.name, ErrNilNode)
	}
	if n.invalidate != nil {
		return fmt.Errorf("node %q: %w", n.name, ErrDuplicateInvalidateCheck)
	}
	n.invalidate = fn
	return nil
}

func (n *Node) hasTick() bool {
	return n.tickFn != nil || n.asyncTickFn != nil
}

func (n *Node) addHook(p Phase, h hook) *Node {
	if h.sync == nil && h.async == nil {
		return n
	}
	n.hooks[p] = append(n.hooks[p], h)
	return n
}

// phaseRun walks one phase's hook list, resuming an asynchronous hook across
// ticks until it completes.
type phaseRun struct {
	phase Phase
	hooks []hook
	idx   int
	core  *coro.Core[struct{}]
}

func (r *phaseRun) start(p Phase, hooks []hook) {
	r.phase = p
	r.hooks = hooks
	r.idx = 0
	r.core = nil
}

// poll advances the phase, returning true once every hook has completed.
// Errors are reported and do not stop the remaining hooks.
func (r *phaseRun) poll(n *Node, ctx context.Context) bool {
	for r.idx < len(r.hooks) {
		h := r.hooks[r.idx]
		if h.sync != nil {
			if err := callHook(h.sync, ctx); err != nil {
				n.fault(r.phase, err)
			}
			r.idx++
			continue
		}
		if r.core == nil {
			fn := h.async
			r.core = coro.New(func(ctx context.Context, y *Yielder) (struct{}, error) {
				return struct{}{}, fn(ctx, y)
			})
		}
		done, _, err := r.core.Poll(ctx, n.environment().frame)
		if !done {
			return false
		}
		if err != nil && !n.expectedCancellation(err) {
			n.fault(r.phase, err)
		}
		r.core = nil
		r.idx++
	}
	return true
}

// cancel aborts an in-flight asynchronous hook and abandons the phase.
func (r *phaseRun) cancel(n *Node, cause error) {
	if r.core != nil {
		if err := r.core.Cancel(cause); err != nil {
			n.fault(r.phase, err)
		}
		r.core = nil
	}
	r.idx = len(r.hooks)
}

func callHook(fn Hook, ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx)
}

func callTick(fn TickFunc, ctx context.Context) (st Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			st, err = Failure, &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx)
}

func callObserver(fn func(*Node), n *Node) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	fn(n)
	return nil
}

func callPredicate(fn func() bool) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(), nil
}
