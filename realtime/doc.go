// Package realtime drives a btreex tree at a fixed tick rate.
//
// The runtime owns the tree on a single goroutine. Other goroutines never
// touch the tree directly; they Post closures that run on the tick goroutine
// at the start of the next tick, before the tree is ticked.
//
// # Example Usage
//
//	tree, _ := btreex.NewTree(root, btreex.WithOwnerCheck(true))
//	rt := realtime.NewRuntime(tree, realtime.Config{
//		TickRate: 16667 * time.Microsecond, // 60 FPS
//	})
//	rt.Start(ctx)
//	rt.Post(func(t *btreex.Tree) { t.Blackboard().Set("enemy", "orc") })
//
// # Ordering Guarantees
//
// Posts are ordered deterministically using:
//  1. Priority (higher priority runs first)
//  2. Sequence number (FIFO for same priority)
//
// Given the same sequence of Post calls between two ticks, the tree observes
// the same blackboard state regardless of goroutine scheduling.
//
// # Failure Handling
//
// A panicking posted closure is logged and the remaining posts still run. A
// panic escaping the tree tick is logged and the loop continues with the
// next tick. With StopOnComplete the loop ends once the root completes and
// the outcome is delivered on Done.
package realtime
