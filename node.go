package btreex

import (
	"context"
	"errors"
	"fmt"

	"github.com/comalice/btreex/internal/coro"
)

type reactivity int8

const (
	reactiveInherit reactivity = iota
	reactiveOn
	reactiveOff
)

type exitOrder int8

const (
	exitReverse exitOrder = iota
	exitParallel
)

const numPhases = int(PhaseInvalidate) + 1

// Node is the unit of a behavior tree: a lifecycle state machine driven one
// tick at a time. Leaves own no children, decorators own exactly one and
// composites own an ordered list.
//
// A Node is not safe for concurrent use; a tree is ticked from one goroutine.
type Node struct {
	name     string
	kind     Kind
	children []*Node
	parent   *Node
	index    int
	reactive reactivity

	status    Status
	sub       SubStatus
	outcome   Status
	faulted   bool
	resetting bool
	stage     int

	hooks       [numPhases][]hook
	preTick     []func(*Node)
	postTick    []func(*Node)
	tickFn      TickFunc
	asyncTickFn AsyncTickFunc
	tickCore    *coro.Core[Status]
	invalidate  func() bool

	exitOrder    exitOrder
	exitChildren func() bool

	vars []*slot

	env    *environment
	ctx    context.Context
	cancel context.CancelCauseFunc
	run    phaseRun

	buildErrs []error
}

// NewLeaf returns a node without children. Register its decision function
// with SetTick or SetTickAsync; a leaf without one succeeds on its first tick.
func NewLeaf(name string) *Node {
	return &Node{name: name, kind: KindLeaf, index: -1}
}

// NewDecorator returns a node owning exactly one child.
func NewDecorator(name string, child *Node) *Node {
	n := &Node{name: name, kind: KindDecorator, index: -1}
	n.adopt(child)
	return n
}

// NewComposite returns a node owning the given children, in order.
func NewComposite(name string, children ...*Node) *Node {
	n := &Node{name: name, kind: KindComposite, index: -1}
	for _, c := range children {
		n.adopt(c)
	}
	return n
}

// Name returns the name given at construction.
func (n *Node) Name() string { return n.name }

// Kind reports whether the node is a leaf, decorator or composite.
func (n *Node) Kind() Kind { return n.kind }

// Status is the externally visible outcome: None, Running, Success or Failure.
func (n *Node) Status() Status { return n.status }

// SubStatus is the current lifecycle stage.
func (n *Node) SubStatus() SubStatus { return n.sub }

// Parent returns the owning node, or nil for a root or unattached node.
func (n *Node) Parent() *Node { return n.parent }

// Index is the pre-order position assigned by NewTree, or -1. Nodes a Yield
// installs later are numbered after the static tree on first install.
func (n *Node) Index() int { return n.index }

// IsDone reports whether the node has completed its current entry cycle.
func (n *Node) IsDone() bool { return n.sub == SubDone }

// Children returns a copy of the owned children.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// Child returns the single child of a decorator (or the first child).
func (n *Node) Child() *Node {
	if len(n.children) == 0 {
		return nil
	}
	return n.children[0]
}

// SetReactive marks the node (and, by inheritance, its descendants) as
// reactive. Reactive composites check completed children for invalidation
// before moving forward.
func (n *Node) SetReactive(on bool) *Node {
	if on {
		n.reactive = reactiveOn
	} else {
		n.reactive = reactiveOff
	}
	return n
}

// IsReactive reports the effective reactivity, inherited from the nearest
// ancestor that sets it.
func (n *Node) IsReactive() bool {
	for c := n; c != nil; c = c.parent {
		switch c.reactive {
		case reactiveOn:
			return true
		case reactiveOff:
			return false
		}
	}
	return false
}

// Validate returns every construction error recorded in the subtree.
func (n *Node) Validate() error {
	var errs []error
	seen := make(map[*Node]bool)
	var walk func(*Node)
	walk = func(c *Node) {
		if seen[c] {
			errs = append(errs, fmt.Errorf("node %q: %w", c.name, ErrNodeOwned))
			return
		}
		seen[c] = true
		errs = append(errs, c.buildErrs...)
		for _, child := range c.children {
			walk(child)
		}
	}
	walk(n)
	return errors.Join(errs...)
}

// Tick drives the node forward by one step and reports whether it completed
// during this call, along with its status.
//
// A Done node is only re-entered when allowReEnter is set; otherwise Tick is
// a no-op returning the previous outcome.
func (n *Node) Tick(allowReEnter bool) (bool, Status) {
	if n.parent == nil {
		n.environment().frame++
	}
	if n.resetting {
		return false, n.status
	}
	for {
		switch n.sub {
		case SubNone:
			n.activate()
		case SubEnabling:
			if !n.run.poll(n, n.ctx) {
				return false, Running
			}
			n.beginEntering()
		case SubEntering:
			if !n.run.poll(n, n.ctx) {
				return false, Running
			}
			n.transition(SubRunning)
			if n.faulted {
				n.complete(Failure)
			}
		case SubRunning:
			st := n.runTick()
			if st == Running {
				return false, Running
			}
			n.complete(st)
		case SubSucceeding, SubFailing:
			if !n.run.poll(n, n.ctx) {
				return false, Running
			}
			n.beginExiting()
		case SubExiting:
			if !n.pollExiting() {
				return false, Running
			}
			n.finalizeSlots()
			n.status = n.outcome
			n.transition(SubDone)
			return true, n.status
		case SubDone:
			if !allowReEnter {
				return false, n.status
			}
			n.faulted = false
			n.status = Running
			n.beginEntering()
		default:
			return false, n.status
		}
	}
}

// ResetImmediately tears the node down without waiting: in-flight
// continuations are cancelled with ErrForcedReset, children are reset in
// reverse order, disable hooks run, and the node returns to None.
func (n *Node) ResetImmediately() {
	if n.sub == SubNone {
		return
	}
	n.resetting = true
	if n.cancel != nil {
		n.cancel(ErrForcedReset)
	}
	n.run.cancel(n, ErrForcedReset)
	n.cancelTick(ErrForcedReset)
	for i := len(n.children) - 1; i >= 0; i-- {
		n.children[i].ResetImmediately()
	}
	n.transition(SubDisabling)
	n.run.start(PhaseDisable, n.hooks[PhaseDisable])
	if !n.run.poll(n, n.ctx) {
		n.run.cancel(n, ErrForcedReset)
	}
	n.deactivate()
}

// ResetGracefully tears the node down cooperatively. A running node is first
// exited through its normal exit path (children first, then exit hooks), then
// disabled. It returns true once the node is back to None and false when the
// caller must poll again on a later tick.
func (n *Node) ResetGracefully() bool {
	if n.parent == nil {
		n.environment().frame++
	}
	if n.sub == SubNone {
		return true
	}
	if !n.resetting {
		n.resetting = true
		switch n.sub {
		case SubDone:
			n.beginDisabling()
		case SubEnabling:
			// entry never began, so there is nothing to exit
			n.run.cancel(n, ErrGracefulReset)
			n.beginDisabling()
		case SubEntering, SubRunning:
			n.run.cancel(n, ErrGracefulReset)
			n.cancelTick(ErrGracefulReset)
			n.beginExiting()
		}
	}
	for {
		switch n.sub {
		case SubSucceeding, SubFailing:
			if !n.run.poll(n, n.ctx) {
				return false
			}
			n.beginExiting()
		case SubExiting:
			if !n.pollExiting() {
				return false
			}
			n.finalizeSlots()
			n.beginDisabling()
		case SubDisabling:
			if !n.pollDisabling() {
				return false
			}
			n.deactivate()
			return true
		case SubNone:
			n.resetting = false
			return true
		default:
			n.beginExiting()
		}
	}
}

// IsInvalid evaluates the invalidate check. It only ever reports true for a
// Done node; a running node is never consulted.
func (n *Node) IsInvalid() bool {
	if n.sub != SubDone || n.invalidate == nil {
		return false
	}
	ok, err := callPredicate(n.invalidate)
	if err != nil {
		n.report(PhaseInvalidate, err)
		return false
	}
	return ok
}

// Context returns the activation context, or nil while the node is None. It
// is cancelled with ErrForcedReset on immediate reset.
func (n *Node) Context() context.Context {
	return n.ctx
}

func (n *Node) activate() {
	e := n.environment()
	parent := e.ctx
	if n.parent != nil && n.parent.ctx != nil {
		parent = n.parent.ctx
	}
	n.ctx, n.cancel = context.WithCancelCause(parent)
	n.faulted = false
	n.status = Running
	n.transition(SubEnabling)
	n.run.start(PhaseEnable, n.hooks[PhaseEnable])
}

func (n *Node) deactivate() {
	if n.cancel != nil {
		n.cancel(ErrGracefulReset)
	}
	n.ctx, n.cancel = nil, nil
	n.tickCore = nil
	n.status = None
	n.outcome = None
	n.faulted = false
	n.resetting = false
	n.stage = 0
	n.transition(SubNone)
}

func (n *Node) beginEntering() {
	n.seedSlots()
	n.tickCore = nil
	n.transition(SubEntering)
	n.run.start(PhaseEnter, n.hooks[PhaseEnter])
}

func (n *Node) complete(st Status) {
	n.outcome = st
	if st == Success {
		n.transition(SubSucceeding)
		n.run.start(PhaseSuccess, n.hooks[PhaseSuccess])
		return
	}
	n.transition(SubFailing)
	n.run.start(PhaseFailure, n.hooks[PhaseFailure])
}

func (n *Node) beginExiting() {
	n.stage = 0
	n.transition(SubExiting)
	n.run.start(PhaseExit, n.hooks[PhaseExit])
}

func (n *Node) beginDisabling() {
	n.stage = 0
	n.transition(SubDisabling)
	n.run.start(PhaseDisable, n.hooks[PhaseDisable])
}

func (n *Node) pollExiting() bool {
	if n.stage == 0 {
		if !n.exitChildrenGracefully() {
			return false
		}
		n.stage = 1
	}
	return n.run.poll(n, n.ctx)
}

func (n *Node) pollDisabling() bool {
	if n.stage == 0 {
		if !n.resetChildrenGracefully(true) {
			return false
		}
		n.stage = 1
	}
	return n.run.poll(n, n.ctx)
}

func (n *Node) exitChildrenGracefully() bool {
	if n.exitChildren != nil {
		return n.exitChildren()
	}
	return n.resetChildrenGracefully(false)
}

// resetChildrenGracefully resets children that are mid-cycle, or every
// started child when all is set. Sequential children are reset most recent
// first, one at a time; parallel children are reset together.
func (n *Node) resetChildrenGracefully(all bool) bool {
	skip := func(c *Node) bool {
		return c.sub == SubNone || (!all && c.sub == SubDone)
	}
	if n.exitOrder == exitParallel {
		done := true
		for _, c := range n.children {
			if skip(c) {
				continue
			}
			if !c.ResetGracefully() {
				done = false
			}
		}
		return done
	}
	for i := len(n.children) - 1; i >= 0; i-- {
		c := n.children[i]
		if skip(c) {
			continue
		}
		if !c.ResetGracefully() {
			return false
		}
	}
	return true
}

func (n *Node) runTick() Status {
	for _, fn := range n.preTick {
		if err := callObserver(fn, n); err != nil {
			n.report(PhasePreTick, err)
		}
	}
	var (
		st  Status
		err error
	)
	switch {
	case n.tickFn != nil:
		st, err = callTick(n.tickFn, n.ctx)
	case n.asyncTickFn != nil:
		if n.tickCore == nil {
			n.tickCore = coro.New(coro.Func[Status](n.asyncTickFn))
		}
		var done bool
		done, st, err = n.tickCore.Poll(n.ctx, n.environment().frame)
		if !done {
			st = Running
		} else if err == nil && st == Running {
			err = fmt.Errorf("%w: continuation returned %v", ErrInvalidStatus, st)
		}
	default:
		st = Success
	}
	if err != nil {
		n.fault(PhaseTick, err)
		return Failure
	}
	if st != Running && !st.Terminal() {
		n.fault(PhaseTick, fmt.Errorf("%w: %v", ErrInvalidStatus, st))
		return Failure
	}
	if st == Running {
		for _, fn := range n.postTick {
			if err := callObserver(fn, n); err != nil {
				n.report(PhasePostTick, err)
			}
		}
	}
	return st
}

func (n *Node) cancelTick(cause error) {
	if n.tickCore == nil {
		return
	}
	if err := n.tickCore.Cancel(cause); err != nil {
		n.report(PhaseTick, err)
	}
	n.tickCore = nil
}

// expectedCancellation reports whether err is this node's own reset
// unwinding a continuation.
func (n *Node) expectedCancellation(err error) bool {
	return n.resetting && IsCancellation(err)
}

func (n *Node) fault(p Phase, err error) {
	switch p {
	case PhaseEnable, PhaseEnter, PhaseTick:
		n.faulted = true
	}
	n.report(p, err)
}

func (n *Node) report(p Phase, err error) {
	e := n.environment()
	cerr := &CallbackError{Node: n.name, Phase: p, Err: err}
	e.logger.Error("callback failed", "tree", e.treeID, "node", n.name, "phase", p.String(), "error", err)
	if e.onError != nil {
		e.onError(cerr)
	}
}

func (n *Node) transition(to SubStatus) {
	from := n.sub
	n.sub = to
	e := n.environment()
	if e.publisher == nil {
		return
	}
	err := e.publisher.Publish(e.ctx, TransitionEvent{
		TreeID: e.treeID,
		Node:   n.name,
		Index:  n.index,
		From:   from,
		To:     to,
		Status: n.status,
		Frame:  e.frame,
	})
	if err != nil {
		e.logger.Debug("publish transition failed", "node", n.name, "error", err)
	}
}

func (n *Node) environment() *environment {
	if n.env == nil {
		if n.parent != nil {
			n.env = n.parent.environment()
		} else {
			n.env = newEnvironment()
		}
	}
	return n.env
}

// indexNew numbers the nodes of n's subtree that have no index yet, continuing
// after the tree's last assigned index.
func (n *Node) indexNew(e *environment) {
	walk(n, func(c *Node) bool {
		if c.index < 0 {
			c.index = e.nodes
			e.nodes++
		}
		return true
	})
}

func (n *Node) bindEnvironment(e *environment) {
	n.env = e
	for _, c := range n.children {
		c.bindEnvironment(e)
	}
}

func (n *Node) adopt(c *Node) bool {
	if c == nil {
		n.buildErrs = append(n.buildErrs, fmt.Errorf("node %q: child: %w", n.name, ErrNilNode))
		return false
	}
	if c.parent != nil && c.parent != n {
		n.buildErrs = append(n.buildErrs, fmt.Errorf("node %q: child %q: %w", n.name, c.name, ErrNodeOwned))
		return false
	}
	c.parent = n
	n.children = append(n.children, c)
	return true
}

func (n *Node) warn(msg string, args ...any) {
	e := n.environment()
	e.logger.Warn(msg, append([]any{"tree", e.treeID, "node", n.name}, args...)...)
}
