// Package benchmarks provides shared helpers for benchmark tests.
package benchmarks

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/comalice/btreex"
)

// alternating is a leaf that runs for one tick and then succeeds, so a
// restarting tree keeps cycling through enter, tick and exit.
func alternating(name string) *btreex.Node {
	n := btreex.NewLeaf(name)
	flip := btreex.MustSlot(n, "flip", func() bool { return false })
	_ = n.SetTick(func(context.Context) (btreex.Status, error) {
		if flip.Get() {
			return btreex.Success, nil
		}
		flip.Set(true)
		return btreex.Running, nil
	})
	return n
}

// GenWideTree creates a sequence of n alternating leaves.
func GenWideTree(n int) *btreex.Node {
	if n < 1 {
		n = 1
	}
	children := make([]*btreex.Node, n)
	for i := range children {
		children[i] = alternating(fmt.Sprintf("leaf%d", i))
	}
	return btreex.Sequence(fmt.Sprintf("wide_%d", n), children...)
}

// GenDeepTree nests depth sequences around a single alternating leaf.
func GenDeepTree(depth int) *btreex.Node {
	if depth < 1 {
		depth = 1
	}
	node := alternating("leaf")
	for i := depth - 1; i >= 0; i-- {
		node = btreex.Sequence(fmt.Sprintf("seq%d", i), node)
	}
	return node
}

// GenReactiveTree creates a reactive sequence of n guards in front of a
// long-running leaf, so every tick checks every guard for invalidation.
func GenReactiveTree(n int, pred func() bool) *btreex.Node {
	if n < 1 {
		n = 1
	}
	children := make([]*btreex.Node, 0, n+1)
	for i := 0; i < n; i++ {
		children = append(children, btreex.Guard(fmt.Sprintf("guard%d", i), pred))
	}
	children = append(children, btreex.Action("work", func(context.Context) (btreex.Status, error) {
		return btreex.Running, nil
	}))
	return btreex.ReactiveSequence(fmt.Sprintf("reactive_%d", n), children...)
}

// MustTree builds a tree that restarts on completion and panics on error.
func MustTree(root *btreex.Node, opts ...btreex.Option) *btreex.Tree {
	opts = append([]btreex.Option{btreex.WithRestart(btreex.RestartOnComplete)}, opts...)
	tree, err := btreex.NewTree(root, opts...)
	if err != nil {
		panic(err)
	}
	return tree
}

// GenSnapshotYAML ticks a wide tree once and returns its snapshot as YAML.
func GenSnapshotYAML(n int) []byte {
	tree := MustTree(GenWideTree(n))
	tree.Tick()
	data, err := yaml.Marshal(tree.Snapshot())
	if err != nil {
		panic(err)
	}
	return data
}
