package btreex

import (
	"context"
	"fmt"
)

// NodeChangePolicy decides how Yield moves from one active child to another.
type NodeChangePolicy int8

const (
	// ChangeReset gracefully resets the old child, across as many ticks as it
	// needs, before the new child is installed.
	ChangeReset NodeChangePolicy = iota
	// ChangeImmediate resets the old child immediately and installs the new
	// one in the same step. Asynchronous cleanup of the old child is cut short.
	ChangeImmediate
)

func (p NodeChangePolicy) String() string {
	switch p {
	case ChangeReset:
		return "reset"
	case ChangeImmediate:
		return "immediate"
	default:
		return "unknown"
	}
}

func (p NodeChangePolicy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *NodeChangePolicy) UnmarshalText(b []byte) error {
	switch string(b) {
	case "reset", "":
		*p = ChangeReset
	case "immediate":
		*p = ChangeImmediate
	default:
		return fmt.Errorf("unknown node change policy %q", b)
	}
	return nil
}

// SelfExitPolicy decides what happens to the active child when Yield exits.
type SelfExitPolicy int8

const (
	// SelfExitReset gracefully resets the active child as part of Yield's exit.
	SelfExitReset SelfExitPolicy = iota
	// SelfExitKeep leaves the active child untouched.
	SelfExitKeep
)

func (p SelfExitPolicy) String() string {
	switch p {
	case SelfExitReset:
		return "reset"
	case SelfExitKeep:
		return "keep"
	default:
		return "unknown"
	}
}

func (p SelfExitPolicy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *SelfExitPolicy) UnmarshalText(b []byte) error {
	switch string(b) {
	case "reset", "":
		*p = SelfExitReset
	case "keep":
		*p = SelfExitKeep
	default:
		return fmt.Errorf("unknown self exit policy %q", b)
	}
	return nil
}

// YieldOption configures a Yield node.
type YieldOption func(*yieldConfig)

type yieldConfig struct {
	change      NodeChangePolicy
	selfExit    SelfExitPolicy
	consumeTick bool
	maxLoops    int
}

// WithNodeChange sets the policy applied when the selector picks a new child.
func WithNodeChange(p NodeChangePolicy) YieldOption {
	return func(c *yieldConfig) { c.change = p }
}

// WithSelfExit sets the policy applied to the active child on Yield's exit.
func WithSelfExit(p SelfExitPolicy) YieldOption {
	return func(c *yieldConfig) { c.selfExit = p }
}

// WithConsumeTick controls whether a switch ends Yield's tick (the default)
// or the selection loop runs again within the same tick.
func WithConsumeTick(consume bool) YieldOption {
	return func(c *yieldConfig) { c.consumeTick = consume }
}

// WithMaxLoops bounds the selection loop when ticks are not consumed.
func WithMaxLoops(n int) YieldOption {
	return func(c *yieldConfig) {
		if n > 0 {
			c.maxLoops = n
		}
	}
}

type switchState int8

const (
	switchDefault switchState = iota
	switchResetting
)

type stepResult int8

const (
	stepDone stepResult = iota
	stepSwitched
	stepInstalled
)

type switcher struct {
	n        *Node
	selector func() *Node
	cfg      yieldConfig
	state    switchState
	active   *Node
	pending  *Node
}

// Yield holds at most one active child, chosen on every tick by selector. A
// nil selection fails. Nodes returned by selector are adopted by the Yield
// node on first install and must not belong to any other parent.
func Yield(name string, selector func() *Node, opts ...YieldOption) *Node {
	n := NewComposite(name)
	s := &switcher{
		n:        n,
		selector: selector,
		cfg:      yieldConfig{consumeTick: true, maxLoops: 16},
	}
	for _, opt := range opts {
		opt(&s.cfg)
	}
	if selector == nil {
		n.buildErrs = append(n.buildErrs, fmt.Errorf("node %q: selector: %w", name, ErrNilNode))
	}
	_ = n.SetTick(s.tick)
	_ = n.SetInvalidateCheck(s.invalid)
	n.exitChildren = s.exitChildren
	n.OnExit(s.settle)
	n.OnDisable(s.settle)
	return n
}

func (s *switcher) tick(context.Context) (Status, error) {
	for loops := 0; loops < s.cfg.maxLoops; loops++ {
		res, st, err := s.step()
		if err != nil {
			return Failure, err
		}
		switch res {
		case stepDone:
			return st, nil
		case stepSwitched:
			if s.cfg.consumeTick {
				return Running, nil
			}
		}
	}
	s.n.warn("yield selection did not settle", "loops", s.cfg.maxLoops)
	return Running, nil
}

func (s *switcher) step() (stepResult, Status, error) {
	if s.state == switchResetting {
		if !s.active.ResetGracefully() {
			return stepDone, Running, nil
		}
		next := s.pending
		s.pending = nil
		s.state = switchDefault
		if err := s.install(next); err != nil {
			return stepDone, Failure, err
		}
		return stepSwitched, Running, nil
	}
	want := s.selector()
	if want == nil {
		return stepDone, Failure, nil
	}
	if want != s.active {
		return s.switchTo(want)
	}
	done, st := want.Tick(true)
	if !done {
		return stepDone, Running, nil
	}
	if again := s.selector(); again != nil && again != want {
		return s.switchTo(again)
	}
	return stepDone, st, nil
}

func (s *switcher) switchTo(want *Node) (stepResult, Status, error) {
	if s.active == nil || s.active.sub == SubNone {
		if err := s.install(want); err != nil {
			return stepDone, Failure, err
		}
		return stepInstalled, Running, nil
	}
	if s.cfg.change == ChangeReset {
		s.pending = want
		s.state = switchResetting
		return stepSwitched, Running, nil
	}
	s.active.ResetImmediately()
	if err := s.install(want); err != nil {
		return stepDone, Failure, err
	}
	return stepSwitched, Running, nil
}

func (s *switcher) install(c *Node) error {
	if c.parent != nil && c.parent != s.n {
		return fmt.Errorf("node %q: child %q: %w", s.n.name, c.name, ErrNodeOwned)
	}
	if c.parent == nil {
		c.parent = s.n
		c.bindEnvironment(s.n.environment())
		c.indexNew(s.n.environment())
	}
	s.n.children = []*Node{c}
	s.active = c
	return nil
}

func (s *switcher) exitChildren() bool {
	if s.active == nil || s.active.sub == SubNone {
		return true
	}
	if s.cfg.selfExit == SelfExitKeep && s.state == switchDefault {
		return true
	}
	return s.active.ResetGracefully()
}

// settle drops an unfinished switch once the Yield node leaves its cycle.
func (s *switcher) settle(context.Context) error {
	s.state = switchDefault
	s.pending = nil
	return nil
}

func (s *switcher) invalid() bool {
	if s.selector == nil {
		return false
	}
	want := s.selector()
	if want != s.active {
		return true
	}
	return s.active != nil && s.active.IsInvalid()
}

// Active returns the child currently installed in a Yield node, or nil.
func Active(n *Node) *Node {
	if n.kind != KindComposite || n.exitChildren == nil {
		return nil
	}
	return n.Child()
}
