// Package btreex is a behavior tree execution engine.
//
// A tree is built from Nodes: leaves (Action, AsyncAction, Guard, Wait),
// decorators (Invert, Condition, While, Until, RepeatCount, Timeout,
// Cooldown, Latched, ValueChanged, ...) and composites (Sequence, Selector,
// SequenceAlways, Parallel, Race, Yield). Every node runs the same lifecycle
// state machine:
//
//	None -> Enabling -> Entering -> Running -> (Succeeding | Failing) -> Exiting -> Done
//	Done -> Entering (re-entry) | Disabling -> None (reset)
//
// Lifecycle hooks may be plain functions or continuations that suspend
// across ticks through a Yielder. A continuation resumes at most once per
// tick of the tree and is cancelled through its context when its node is
// reset.
//
// # Example Usage
//
//	bb := btreex.NewBlackboard()
//	root := btreex.ReactiveSequence("attack",
//		btreex.Guard("has-target", func() bool { return bb.Has("target") }),
//		btreex.AsyncAction("swing", func(ctx context.Context, y *btreex.Yielder) (btreex.Status, error) {
//			if err := y.Ticks(3); err != nil {
//				return btreex.Failure, err
//			}
//			return btreex.Success, nil
//		}),
//	)
//	tree, err := btreex.NewTree(root, btreex.WithBlackboard(bb), btreex.WithRestart(btreex.RestartOnComplete))
//	if err != nil {
//		return err
//	}
//	for range ticker.C {
//		tree.Tick()
//	}
//
// # Reactivity
//
// Completed nodes expose an invalidate check. Reactive composites consult the
// checks of their completed children before moving forward and rewind to the
// first stale child, resetting everything after it. Invalidation is read-only
// and never changes a node's status by itself.
//
// # Concurrency
//
// A tree is ticked from one goroutine. WithOwnerCheck refuses ticks from any
// other goroutine; the realtime package runs a tree on its own goroutine and
// accepts closures posted from elsewhere.
package btreex
