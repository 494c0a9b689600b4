package testutil

import (
	"context"
	"errors"
	"time"

	"github.com/comalice/btreex"
	"github.com/comalice/btreex/realtime"
)

var ErrTickBudget = errors.New("tree did not complete within the tick budget")

// RuntimeAdapter runs a tree to completion either directly or through the
// realtime driver. This allows running the same test suite on both.
type RuntimeAdapter interface {
	Run(ctx context.Context, maxTicks int) (btreex.Status, uint64, error)
	Post(fn func(*btreex.Tree)) error
}

// DirectAdapter ticks the tree on the calling goroutine.
type DirectAdapter struct {
	tree    *btreex.Tree
	pending []func(*btreex.Tree)
}

// NewDirectAdapter creates an adapter that ticks tree synchronously.
func NewDirectAdapter(tree *btreex.Tree) *DirectAdapter {
	return &DirectAdapter{tree: tree}
}

func (a *DirectAdapter) Post(fn func(*btreex.Tree)) error {
	a.pending = append(a.pending, fn)
	return nil
}

func (a *DirectAdapter) Run(ctx context.Context, maxTicks int) (btreex.Status, uint64, error) {
	var st btreex.Status
	for i := 1; i <= maxTicks; i++ {
		if err := ctx.Err(); err != nil {
			return st, uint64(i - 1), err
		}
		for _, fn := range a.pending {
			fn(a.tree)
		}
		a.pending = nil
		var done bool
		done, st = a.tree.Tick()
		if done {
			return st, uint64(i), nil
		}
	}
	return st, uint64(maxTicks), ErrTickBudget
}

// TickBasedAdapter runs the tree through a realtime.Runtime.
type TickBasedAdapter struct {
	rt       *realtime.Runtime
	tickRate time.Duration
}

// NewTickBasedAdapter creates an adapter driving tree at tickRate.
func NewTickBasedAdapter(tree *btreex.Tree, tickRate time.Duration) *TickBasedAdapter {
	return &TickBasedAdapter{
		rt: realtime.NewRuntime(tree, realtime.Config{
			TickRate:       tickRate,
			StopOnComplete: true,
		}),
		tickRate: tickRate,
	}
}

func (a *TickBasedAdapter) Post(fn func(*btreex.Tree)) error {
	return a.rt.Post(fn)
}

func (a *TickBasedAdapter) Run(ctx context.Context, maxTicks int) (btreex.Status, uint64, error) {
	if err := a.rt.Start(ctx); err != nil {
		return btreex.None, 0, err
	}
	defer a.rt.Stop()

	deadline := time.After(time.Duration(maxTicks+5) * a.tickRate * 4)
	select {
	case res := <-a.rt.Done():
		if res.Err != nil {
			return res.Status, res.Tick, res.Err
		}
		if res.Tick > uint64(maxTicks) {
			return res.Status, res.Tick, ErrTickBudget
		}
		return res.Status, res.Tick, nil
	case <-deadline:
		return btreex.Running, a.rt.TickNumber(), ErrTickBudget
	}
}
