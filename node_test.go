package btreex_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/comalice/btreex"
	"github.com/comalice/btreex/testutil"
)

func mustTree(t *testing.T, root *Node, opts ...Option) *Tree {
	t.Helper()
	tree, err := NewTree(root, opts...)
	require.NoError(t, err)
	return tree
}

func TestNode_LifecycleOrder(t *testing.T) {
	var rec testutil.Recorder
	leaf := rec.Watch(testutil.Script("leaf", nil, Running, Success))
	tree := mustTree(t, leaf)

	done, st := tree.Tick()
	assert.False(t, done)
	assert.Equal(t, Running, st)
	assert.Equal(t, SubRunning, leaf.SubStatus())
	assert.Equal(t, []string{"leaf:enable", "leaf:enter"}, rec.Events())

	done, st = tree.Tick()
	assert.True(t, done)
	assert.Equal(t, Success, st)
	assert.Equal(t, SubDone, leaf.SubStatus())
	assert.Equal(t, []string{"leaf:enable", "leaf:enter", "leaf:success", "leaf:exit"}, rec.Events())
}

func TestNode_DoneWithoutReEnterIsNoOp(t *testing.T) {
	var rec testutil.Recorder
	var ticks int
	leaf := rec.Watch(testutil.Script("leaf", &ticks, Failure))
	tree := mustTree(t, leaf)

	done, st := tree.Tick()
	require.True(t, done)
	require.Equal(t, Failure, st)
	before := rec.Events()

	for i := 0; i < 3; i++ {
		done, st = leaf.Tick(false)
		assert.False(t, done)
		assert.Equal(t, Failure, st)
	}
	assert.Equal(t, before, rec.Events())
	assert.Equal(t, 1, ticks)
}

func TestNode_ExactlyOneTerminalCallback(t *testing.T) {
	for _, outcome := range []Status{Success, Failure} {
		t.Run(outcome.String(), func(t *testing.T) {
			var rec testutil.Recorder
			leaf := rec.Watch(testutil.Script("leaf", nil, Running, Running, outcome))
			tree := mustTree(t, leaf, WithRestart(RestartOnComplete))

			for i := 0; i < 9; i++ {
				tree.Tick()
			}
			assert.Equal(t, 3, rec.Count("leaf:success")+rec.Count("leaf:failure"))
			if outcome == Success {
				assert.Zero(t, rec.Count("leaf:failure"))
			} else {
				assert.Zero(t, rec.Count("leaf:success"))
			}

			events := rec.Events()
			for i, e := range events {
				if e == "leaf:success" || e == "leaf:failure" {
					require.Less(t, i+1, len(events))
					assert.Equal(t, "leaf:exit", events[i+1])
				}
			}
		})
	}
}

func TestNode_EnableOncePerActivation(t *testing.T) {
	var rec testutil.Recorder
	leaf := rec.Watch(Succeed("leaf"))
	tree := mustTree(t, leaf, WithRestart(RestartOnComplete))

	for i := 0; i < 4; i++ {
		tree.Tick()
	}
	assert.Equal(t, 1, rec.Count("leaf:enable"))
	assert.Equal(t, 4, rec.Count("leaf:enter"))
	assert.Equal(t, 4, rec.Count("leaf:exit"))
	assert.Zero(t, rec.Count("leaf:disable"), "disable never fires on natural completion")

	tree.Reset()
	assert.Equal(t, None, leaf.Status())
	assert.Equal(t, SubNone, leaf.SubStatus())
	assert.Equal(t, 1, rec.Count("leaf:disable"))

	tree.Tick()
	assert.Equal(t, 2, rec.Count("leaf:enable"))
}

func TestNode_PreAndPostTickObservers(t *testing.T) {
	var order []string
	leaf := testutil.Script("leaf", nil, Running, Success)
	leaf.OnPreTick(func(*Node) { order = append(order, "pre") })
	leaf.OnTick(func(*Node) { order = append(order, "post") })
	tree := mustTree(t, leaf)

	tree.Tick()
	tree.Tick()
	assert.Equal(t, []string{"pre", "post", "pre"}, order, "post-tick only runs while Running")
}

func TestNode_DuplicateRegistration(t *testing.T) {
	n := NewLeaf("leaf")
	fn := func(context.Context) (Status, error) { return Success, nil }
	require.NoError(t, n.SetTick(fn))
	assert.ErrorIs(t, n.SetTick(fn), ErrDuplicateTick)
	assert.ErrorIs(t, n.SetTickAsync(func(context.Context, *Yielder) (Status, error) { return Success, nil }), ErrDuplicateTick)

	check := func() bool { return false }
	require.NoError(t, n.SetInvalidateCheck(check))
	assert.ErrorIs(t, n.SetInvalidateCheck(check), ErrDuplicateInvalidateCheck)

	assert.ErrorIs(t, NewLeaf("x").SetTick(nil), ErrNilNode)
}

func TestNode_ConstructionErrors(t *testing.T) {
	t.Run("nil child", func(t *testing.T) {
		_, err := NewTree(Sequence("seq", Succeed("a"), nil))
		assert.ErrorIs(t, err, ErrNilNode)
	})
	t.Run("shared child", func(t *testing.T) {
		shared := Succeed("shared")
		_ = Sequence("one", shared)
		_, err := NewTree(Sequence("two", shared))
		assert.ErrorIs(t, err, ErrNodeOwned)
	})
	t.Run("non-root", func(t *testing.T) {
		child := Succeed("child")
		_ = Invert("inv", child)
		_, err := NewTree(child)
		assert.ErrorIs(t, err, ErrNodeOwned)
	})
	t.Run("nil root", func(t *testing.T) {
		_, err := NewTree(nil)
		assert.ErrorIs(t, err, ErrNilNode)
	})
}

func TestNode_CallbackErrors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("enter error fails the node", func(t *testing.T) {
		var errs []error
		var ticked bool
		leaf := Action("leaf", func(context.Context) (Status, error) {
			ticked = true
			return Success, nil
		})
		leaf.OnEnter(func(context.Context) error { return boom })
		tree := mustTree(t, leaf, WithErrorHandler(func(err error) { errs = append(errs, err) }))

		done, st := tree.Tick()
		assert.True(t, done)
		assert.Equal(t, Failure, st)
		assert.False(t, ticked)
		require.Len(t, errs, 1)
		var cerr *CallbackError
		require.ErrorAs(t, errs[0], &cerr)
		assert.Equal(t, "leaf", cerr.Node)
		assert.Equal(t, PhaseEnter, cerr.Phase)
		assert.ErrorIs(t, errs[0], boom)
	})

	t.Run("tick panic fails the node", func(t *testing.T) {
		var buf bytes.Buffer
		var errs []error
		leaf := Action("leaf", func(context.Context) (Status, error) { panic("kaboom") })
		tree := mustTree(t, leaf,
			WithLogger(slog.New(slog.NewTextHandler(&buf, nil))),
			WithErrorHandler(func(err error) { errs = append(errs, err) }),
		)

		done, st := tree.Tick()
		assert.True(t, done)
		assert.Equal(t, Failure, st)
		require.Len(t, errs, 1)
		var perr *PanicError
		require.ErrorAs(t, errs[0], &perr)
		assert.Equal(t, "kaboom", perr.Value)
		assert.Contains(t, buf.String(), "callback failed")
		assert.Contains(t, buf.String(), "phase=tick")
	})

	t.Run("exit error keeps the outcome", func(t *testing.T) {
		var errs []error
		var later bool
		leaf := Succeed("leaf").
			OnExit(func(context.Context) error { return boom }).
			OnExit(func(context.Context) error { later = true; return nil })
		tree := mustTree(t, leaf, WithErrorHandler(func(err error) { errs = append(errs, err) }))

		done, st := tree.Tick()
		assert.True(t, done)
		assert.Equal(t, Success, st)
		assert.True(t, later, "remaining hooks still run")
		require.Len(t, errs, 1)
	})

	t.Run("invalid status", func(t *testing.T) {
		var errs []error
		leaf := Action("leaf", func(context.Context) (Status, error) { return None, nil })
		tree := mustTree(t, leaf, WithErrorHandler(func(err error) { errs = append(errs, err) }))
		_, st := tree.Tick()
		assert.Equal(t, Failure, st)
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], ErrInvalidStatus)
	})
}

func TestNode_AsyncTickResumesOncePerTick(t *testing.T) {
	var steps []int
	leaf := AsyncAction("leaf", func(ctx context.Context, y *Yielder) (Status, error) {
		for i := 1; i <= 3; i++ {
			steps = append(steps, i)
			if err := y.Suspend(); err != nil {
				return Failure, err
			}
		}
		return Success, nil
	})
	tree := mustTree(t, leaf)

	for i := 1; i <= 3; i++ {
		done, st := tree.Tick()
		assert.False(t, done)
		assert.Equal(t, Running, st)
		assert.Len(t, steps, i)
	}
	done, st := tree.Tick()
	assert.True(t, done)
	assert.Equal(t, Success, st)
}

func TestNode_AsyncEnterSpansTicks(t *testing.T) {
	var ticked int
	leaf := Action("leaf", func(context.Context) (Status, error) {
		ticked++
		return Success, nil
	})
	leaf.OnEnterAsync(func(ctx context.Context, y *Yielder) error {
		return y.Ticks(2)
	})
	tree := mustTree(t, leaf)

	tree.Tick()
	assert.Equal(t, SubEntering, leaf.SubStatus())
	tree.Tick()
	assert.Equal(t, SubEntering, leaf.SubStatus())
	done, st := tree.Tick()
	assert.True(t, done)
	assert.Equal(t, Success, st)
	assert.Equal(t, 1, ticked)
}

func TestNode_ForcedResetCancelsContinuation(t *testing.T) {
	var suspendErr, ctxCause error
	var errs []error
	leaf := AsyncAction("leaf", func(ctx context.Context, y *Yielder) (Status, error) {
		for {
			if err := y.Suspend(); err != nil {
				suspendErr = err
				ctxCause = context.Cause(ctx)
				return Failure, err
			}
		}
	})
	var rec testutil.Recorder
	rec.Watch(leaf)
	tree := mustTree(t, leaf, WithErrorHandler(func(err error) { errs = append(errs, err) }))

	tree.Tick()
	tree.Tick()
	require.NotNil(t, leaf.Context())
	actx := leaf.Context()

	tree.Reset()
	assert.ErrorIs(t, suspendErr, ErrForcedReset)
	assert.ErrorIs(t, suspendErr, context.Canceled)
	assert.ErrorIs(t, ctxCause, ErrForcedReset)
	assert.ErrorIs(t, context.Cause(actx), ErrForcedReset)
	assert.Empty(t, errs, "own reset is not an error")
	assert.Nil(t, leaf.Context())
	assert.Equal(t, []string{"leaf:enable", "leaf:enter", "leaf:disable"}, rec.Events())
}

func TestNode_ForcedResetReachesDescendants(t *testing.T) {
	var causes []error
	mk := func(name string) *Node {
		return AsyncAction(name, func(ctx context.Context, y *Yielder) (Status, error) {
			err := y.Until(func() bool { return false })
			causes = append(causes, context.Cause(ctx))
			return Failure, err
		})
	}
	root := Parallel("par", mk("a"), Sequence("seq", mk("b")))
	tree := mustTree(t, root)
	tree.Tick()
	tree.Reset()
	require.Len(t, causes, 2)
	for _, c := range causes {
		assert.ErrorIs(t, c, ErrForcedReset)
	}
	tree.Walk(func(n *Node) bool {
		assert.Equal(t, SubNone, n.SubStatus(), n.Name())
		return true
	})
}

func TestNode_GracefulResetOfRunningNode(t *testing.T) {
	var rec testutil.Recorder
	var tickErr error
	leaf := AsyncAction("leaf", func(ctx context.Context, y *Yielder) (Status, error) {
		tickErr = y.Until(func() bool { return false })
		return Failure, tickErr
	})
	leaf.OnExitAsync(func(ctx context.Context, y *Yielder) error {
		rec.Record("exit-start")
		if err := y.Ticks(2); err != nil {
			return err
		}
		rec.Record("exit-end")
		return nil
	})
	leaf.OnDisable(func(context.Context) error {
		rec.Record("disable")
		return nil
	})
	leaf.OnSuccess(func(context.Context) error {
		rec.Record("success")
		return nil
	})
	tree := mustTree(t, leaf)
	tree.Tick()

	assert.False(t, tree.ResetGracefully())
	assert.ErrorIs(t, tickErr, ErrGracefulReset)
	assert.Equal(t, SubExiting, leaf.SubStatus())
	assert.False(t, tree.ResetGracefully())
	assert.True(t, tree.ResetGracefully())
	assert.Equal(t, SubNone, leaf.SubStatus())
	assert.Equal(t, []string{"exit-start", "exit-end", "disable"}, rec.Events())

	// a fresh activation refuses ticks while its graceful reset is pending
	tree.Tick()
	assert.Equal(t, SubRunning, leaf.SubStatus())
	assert.False(t, tree.ResetGracefully())
	done, _ := tree.Tick()
	assert.False(t, done)
}

func TestNode_GracefulResetOfDoneNode(t *testing.T) {
	var rec testutil.Recorder
	leaf := rec.Watch(Succeed("leaf"))
	leaf.OnDisableAsync(func(ctx context.Context, y *Yielder) error {
		return y.Ticks(1)
	})
	tree := mustTree(t, leaf)
	tree.Tick()
	rec.Clear()

	assert.False(t, tree.ResetGracefully())
	assert.Equal(t, SubDisabling, leaf.SubStatus())
	assert.True(t, tree.ResetGracefully())
	assert.Equal(t, []string{"leaf:disable"}, rec.Events())
	assert.True(t, tree.ResetGracefully(), "already reset")
}

func TestNode_GracefulResetWhileEnablingSkipsExit(t *testing.T) {
	var rec testutil.Recorder
	leaf := rec.Watch(testutil.Script("leaf", nil, Running))
	var enableErr error
	leaf.OnEnableAsync(func(ctx context.Context, y *Yielder) error {
		enableErr = y.Ticks(3)
		return enableErr
	})
	var errs []error
	tree := mustTree(t, leaf, WithErrorHandler(func(err error) { errs = append(errs, err) }))

	tree.Tick()
	require.Equal(t, SubEnabling, leaf.SubStatus())

	assert.True(t, tree.ResetGracefully())
	assert.ErrorIs(t, enableErr, ErrGracefulReset)
	assert.Equal(t, SubNone, leaf.SubStatus())
	assert.Equal(t, []string{"leaf:enable", "leaf:disable"}, rec.Events())
	assert.Zero(t, rec.Count("leaf:exit"))
	assert.Empty(t, errs)
}

func TestNode_ResetUnwindsContinuationIgnoringCancellation(t *testing.T) {
	var errs []error
	leaf := AsyncAction("stubborn", func(ctx context.Context, y *Yielder) (Status, error) {
		for {
			_ = y.Suspend()
		}
	})
	tree := mustTree(t, leaf,
		WithErrorHandler(func(err error) { errs = append(errs, err) }),
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
	)
	tree.Tick()
	tree.Tick()

	tree.Reset()
	assert.Equal(t, SubNone, leaf.SubStatus())
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrSuspendAfterCancel)
	var cbErr *CallbackError
	require.True(t, errors.As(errs[0], &cbErr))
	assert.Equal(t, PhaseTick, cbErr.Phase)
}

func TestNode_ReactiveInheritance(t *testing.T) {
	leaf := Succeed("leaf")
	inner := Sequence("inner", leaf).SetReactive(false)
	outer := ReactiveSequence("outer", Sequence("mid", Succeed("x")), inner)

	assert.True(t, outer.IsReactive())
	assert.True(t, outer.Child().IsReactive())
	assert.False(t, inner.IsReactive())
	assert.False(t, leaf.IsReactive())
}

func TestNode_InvalidOnlyWhenDone(t *testing.T) {
	flag := &testutil.Flag{}
	flag.Set(true)
	guard := Guard("g", flag.Get)
	assert.False(t, guard.IsInvalid(), "never started")

	tree := mustTree(t, guard)
	tree.Tick()
	assert.False(t, guard.IsInvalid())
	flag.Set(false)
	assert.True(t, guard.IsInvalid())
	tree.Reset()
	assert.False(t, guard.IsInvalid())
}

func TestNode_InvalidateCheckPanic(t *testing.T) {
	var errs []error
	leaf := Succeed("leaf")
	require.NoError(t, leaf.SetInvalidateCheck(func() bool { panic("nope") }))
	tree := mustTree(t, leaf, WithErrorHandler(func(err error) { errs = append(errs, err) }))
	tree.Tick()
	assert.False(t, leaf.IsInvalid())
	require.Len(t, errs, 1)
	var cerr *CallbackError
	require.ErrorAs(t, errs[0], &cerr)
	assert.Equal(t, PhaseInvalidate, cerr.Phase)
}

func TestNode_Publisher(t *testing.T) {
	ch := make(chan TransitionEvent, 64)
	leaf := Succeed("leaf")
	tree := mustTree(t, leaf, WithPublisher(NewChannelPublisher(ch)))
	tree.Tick()

	var got []SubStatus
	for len(ch) > 0 {
		ev := <-ch
		assert.Equal(t, tree.ID(), ev.TreeID)
		assert.Equal(t, "leaf", ev.Node)
		assert.Equal(t, 0, ev.Index)
		assert.Equal(t, uint64(1), ev.Frame)
		got = append(got, ev.To)
	}
	assert.Equal(t, []SubStatus{SubEnabling, SubEntering, SubRunning, SubSucceeding, SubExiting, SubDone}, got)
}

func TestChannelPublisher_DropsWhenFull(t *testing.T) {
	ch := make(chan TransitionEvent, 1)
	p := NewChannelPublisher(ch)
	require.NoError(t, p.Publish(context.Background(), TransitionEvent{Node: "a"}))
	require.NoError(t, p.Publish(context.Background(), TransitionEvent{Node: "b"}))
	assert.Equal(t, "a", (<-ch).Node)
	require.NoError(t, p.Close())
}
