package btreex

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/petermattis/goid"
)

// Tree owns a root node and the environment shared by all of its nodes. It
// is the driving facade: one Tick per external frame.
type Tree struct {
	root       *Node
	env        *environment
	bb         *Blackboard
	restart    RestartPolicy
	ownerCheck bool
	owner      atomic.Int64
}

// NodeSnapshot is a read-only view of one node.
type NodeSnapshot struct {
	Index     int            `json:"index" yaml:"index"`
	Name      string         `json:"name" yaml:"name"`
	Kind      Kind           `json:"kind" yaml:"kind"`
	Status    Status         `json:"status" yaml:"status"`
	SubStatus SubStatus      `json:"subStatus" yaml:"subStatus"`
	Vars      map[string]any `json:"vars,omitempty" yaml:"vars,omitempty"`
}

// NewTree validates root's subtree, assigns pre-order indices and installs
// the shared environment.
func NewTree(root *Node, opts ...Option) (*Tree, error) {
	if root == nil {
		return nil, ErrNilNode
	}
	if root.parent != nil {
		return nil, fmt.Errorf("root %q: %w", root.name, ErrNodeOwned)
	}
	if err := root.Validate(); err != nil {
		return nil, err
	}
	t := &Tree{root: root, env: newEnvironment()}
	for _, opt := range opts {
		opt(t)
	}
	if t.bb == nil {
		t.bb = NewBlackboard()
	}
	idx := 0
	walk(root, func(n *Node) bool {
		n.index = idx
		idx++
		return true
	})
	t.env.nodes = idx
	root.bindEnvironment(t.env)
	return t, nil
}

// WithBlackboard shares bb with the tree instead of a fresh one.
func WithBlackboard(bb *Blackboard) Option {
	return func(t *Tree) {
		t.bb = bb
	}
}

// ID returns the tree instance identifier.
func (t *Tree) ID() uuid.UUID { return t.env.treeID }

// Root returns the root node.
func (t *Tree) Root() *Node { return t.root }

// Blackboard returns the tree's shared key/value store.
func (t *Tree) Blackboard() *Blackboard { return t.bb }

// Frame returns the number of driver steps taken so far.
func (t *Tree) Frame() uint64 { return t.env.frame }

// Len returns the number of indexed nodes: the static tree plus every node a
// Yield has installed so far.
func (t *Tree) Len() int { return t.env.nodes }

// Bind makes the calling goroutine the tree's owner. Without an explicit
// Bind the first goroutine to tick the tree becomes its owner.
func (t *Tree) Bind() {
	t.owner.Store(goid.Get())
}

// Tick advances the tree by one frame and reports whether the root completed
// during this call.
func (t *Tree) Tick() (bool, Status) {
	if !t.checkOwner() {
		return false, t.root.status
	}
	reenter := false
	if t.root.IsDone() {
		switch t.restart {
		case RestartOnComplete:
			reenter = true
		case RestartOnInvalid:
			reenter = t.root.IsInvalid()
		}
	}
	return t.root.Tick(reenter)
}

// Reset tears the whole tree down immediately.
func (t *Tree) Reset() {
	if !t.checkOwner() {
		return
	}
	t.root.ResetImmediately()
}

// ResetGracefully drives a cooperative teardown. Call it once per frame until
// it returns true.
func (t *Tree) ResetGracefully() bool {
	if !t.checkOwner() {
		return false
	}
	return t.root.ResetGracefully()
}

// Walk visits every statically owned node in pre-order until fn returns false.
func (t *Tree) Walk(fn func(*Node) bool) {
	walk(t.root, fn)
}

// Snapshot returns every node's state in traversal order.
func (t *Tree) Snapshot() []NodeSnapshot {
	out := make([]NodeSnapshot, 0, t.env.nodes)
	walk(t.root, func(n *Node) bool {
		out = append(out, NodeSnapshot{
			Index:     n.index,
			Name:      n.name,
			Kind:      n.kind,
			Status:    n.status,
			SubStatus: n.sub,
			Vars:      n.Vars(),
		})
		return true
	})
	return out
}

func (t *Tree) checkOwner() bool {
	if !t.ownerCheck {
		return true
	}
	id := goid.Get()
	if t.owner.CompareAndSwap(0, id) || t.owner.Load() == id {
		return true
	}
	err := fmt.Errorf("tree %s: goroutine %d: %w", t.env.treeID, id, ErrTreeNotOwner)
	t.env.logger.Error("tick refused", "tree", t.env.treeID, "goroutine", id, "owner", t.owner.Load())
	if t.env.onError != nil {
		t.env.onError(err)
	}
	return false
}

func walk(n *Node, fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.children {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}
