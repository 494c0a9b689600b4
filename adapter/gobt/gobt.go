// Package gobt bridges btreex and github.com/joeycumines/go-behaviortree.
//
// go-behaviortree nodes are stateless tick functions: every Tick walks the
// tree from the root. FromBT runs such a node as a btreex leaf, so an
// existing bt.Node subtree can be reused inside a lifecycle-managed tree.
// ToBT goes the other way and exposes a btreex Tree as a bt.Node.
package gobt

import (
	"context"
	"fmt"

	bt "github.com/joeycumines/go-behaviortree"

	"github.com/comalice/btreex"
)

// FromBT wraps node as a leaf named name. Each tick of the leaf ticks node
// once; a tick error fails the leaf and is reported as a callback error.
func FromBT(name string, node bt.Node) *btreex.Node {
	return btreex.Action(name, func(ctx context.Context) (btreex.Status, error) {
		if node == nil {
			return btreex.Failure, fmt.Errorf("gobt %q: %w", name, btreex.ErrNilNode)
		}
		if err := ctx.Err(); err != nil {
			return btreex.Failure, err
		}
		st, err := node.Tick()
		if err != nil {
			return btreex.Failure, err
		}
		return FromStatus(st)
	})
}

// FromTick wraps a go-behaviortree tick and its children as a leaf.
func FromTick(name string, tick bt.Tick, children ...bt.Node) *btreex.Node {
	return FromBT(name, bt.New(tick, children...))
}

// ToBT exposes t as a bt.Node. go-behaviortree ticks completed trees again,
// so t is usually built with btreex.WithRestart(btreex.RestartOnComplete).
func ToBT(t *btreex.Tree) bt.Node {
	return bt.New(func([]bt.Node) (bt.Status, error) {
		_, st := t.Tick()
		return ToStatus(st)
	})
}

// FromStatus maps a go-behaviortree status.
func FromStatus(st bt.Status) (btreex.Status, error) {
	switch st {
	case bt.Running:
		return btreex.Running, nil
	case bt.Success:
		return btreex.Success, nil
	case bt.Failure:
		return btreex.Failure, nil
	default:
		return btreex.Failure, fmt.Errorf("gobt: %w: %v", btreex.ErrInvalidStatus, st)
	}
}

// ToStatus maps a btreex status. None has no go-behaviortree equivalent.
func ToStatus(st btreex.Status) (bt.Status, error) {
	switch st {
	case btreex.Running:
		return bt.Running, nil
	case btreex.Success:
		return bt.Success, nil
	case btreex.Failure:
		return bt.Failure, nil
	default:
		return bt.Failure, fmt.Errorf("gobt: %w: %v", btreex.ErrInvalidStatus, st)
	}
}
