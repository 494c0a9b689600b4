package btreex_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/comalice/btreex"
	"github.com/comalice/btreex/testutil"
)

func TestDecorators_StatusMapping(t *testing.T) {
	cases := []struct {
		name  string
		build func(*Node) *Node
		in    Status
		want  Status
	}{
		{"invert success", func(c *Node) *Node { return Invert("d", c) }, Success, Failure},
		{"invert failure", func(c *Node) *Node { return Invert("d", c) }, Failure, Success},
		{"always succeed", func(c *Node) *Node { return AlwaysSucceed("d", c) }, Failure, Success},
		{"always fail", func(c *Node) *Node { return AlwaysFail("d", c) }, Success, Failure},
		{"latched", func(c *Node) *Node { return Latched("d", c) }, Failure, Failure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tree := mustTree(t, tc.build(testutil.Script("c", nil, Running, tc.in)))
			done, st := tree.Tick()
			assert.False(t, done)
			assert.Equal(t, Running, st)
			done, st = tree.Tick()
			assert.True(t, done)
			assert.Equal(t, tc.want, st)
		})
	}
}

func TestCondition_GatesAndExitsGracefully(t *testing.T) {
	flag := &testutil.Flag{}
	flag.Set(true)
	var rec testutil.Recorder
	child := rec.Watch(testutil.Script("child", nil, Running))
	cond := rec.Watch(Condition("cond", flag.Get, child))
	tree := mustTree(t, cond)

	tree.Tick()
	tree.Tick()
	assert.Equal(t, Running, child.Status())
	rec.Clear()

	flag.Set(false)
	done, st := tree.Tick()
	assert.True(t, done)
	assert.Equal(t, Failure, st)
	assert.Equal(t, []string{
		"cond:failure",
		"child:exit",
		"child:disable",
		"cond:exit",
	}, rec.Events())
}

func TestWhile_ResetsChildImmediately(t *testing.T) {
	flag := &testutil.Flag{}
	flag.Set(true)
	var rec testutil.Recorder
	child := rec.Watch(testutil.Script("child", nil, Running))
	while := rec.Watch(While("while", flag.Get, child))
	tree := mustTree(t, while)

	tree.Tick()
	rec.Clear()

	flag.Set(false)
	done, st := tree.Tick()
	assert.True(t, done)
	assert.Equal(t, Failure, st)
	assert.Equal(t, []string{
		"child:disable",
		"while:failure",
		"while:exit",
	}, rec.Events())
	assert.Zero(t, rec.Count("child:exit"))
}

func TestCondition_Invalidation(t *testing.T) {
	pred, inner := &testutil.Flag{}, &testutil.Flag{}
	pred.Set(true)
	inner.Set(true)
	cond := Condition("cond", pred.Get, Guard("inner", inner.Get))
	tree := mustTree(t, cond)
	tree.Tick()
	require.Equal(t, Success, cond.Status())
	assert.False(t, cond.IsInvalid())

	inner.Set(false)
	assert.True(t, cond.IsInvalid(), "child invalid while predicate holds")
	inner.Set(true)

	pred.Set(false)
	assert.True(t, cond.IsInvalid(), "predicate changed")
}

func TestCondition_FalseNeverTicksChild(t *testing.T) {
	var ticks int
	tree := mustTree(t, Condition("cond", func() bool { return false }, testutil.Script("c", &ticks, Success)))
	done, st := tree.Tick()
	assert.True(t, done)
	assert.Equal(t, Failure, st)
	assert.Zero(t, ticks)
}

func TestUntil_LoopsChildUntilPredicate(t *testing.T) {
	var ticks int
	stop := &testutil.Flag{}
	tree := mustTree(t, Until("until", stop.Get, testutil.Script("c", &ticks, Failure)))

	for i := 0; i < 3; i++ {
		done, st := tree.Tick()
		assert.False(t, done)
		assert.Equal(t, Running, st)
	}
	assert.Equal(t, 3, ticks, "child re-entered every tick")

	stop.Set(true)
	done, st := tree.Tick()
	assert.True(t, done)
	assert.Equal(t, Success, st)
	assert.Equal(t, 3, ticks)
}

func TestUntilStatus(t *testing.T) {
	var attempts int
	flaky := Action("flaky", func(context.Context) (Status, error) {
		attempts++
		if attempts == 3 {
			return Success, nil
		}
		return Failure, nil
	})
	tree := mustTree(t, UntilStatus("until", Success, flaky))
	for i := 0; i < 2; i++ {
		done, st := tree.Tick()
		assert.False(t, done)
		assert.Equal(t, Running, st)
	}
	done, st := tree.Tick()
	assert.True(t, done)
	assert.Equal(t, Success, st)
	assert.Equal(t, 3, attempts)
}

func TestConditionLatch(t *testing.T) {
	flag := &testutil.Flag{}
	var ticks int
	latch := ConditionLatch("latch", flag.Get, testutil.Script("c", &ticks, Running, Running, Success))
	tree := mustTree(t, latch, WithRestart(RestartOnComplete))

	done, st := tree.Tick()
	assert.True(t, done)
	assert.Equal(t, Failure, st)
	assert.Zero(t, ticks)

	flag.Set(true)
	done, st = tree.Tick()
	assert.False(t, done)
	assert.Equal(t, Running, st)

	flag.Set(false)
	done, _ = tree.Tick()
	assert.False(t, done, "latched: predicate no longer checked")
	done, st = tree.Tick()
	assert.True(t, done)
	assert.Equal(t, Success, st)

	// latch released on completion
	done, st = tree.Tick()
	assert.True(t, done)
	assert.Equal(t, Failure, st)
}

func TestRepeatCount(t *testing.T) {
	var ticks int
	tree := mustTree(t, RepeatCount("rep", 3, testutil.Script("c", &ticks, Success)))
	for i := 0; i < 2; i++ {
		done, st := tree.Tick()
		assert.False(t, done)
		assert.Equal(t, Running, st)
	}
	done, st := tree.Tick()
	assert.True(t, done)
	assert.Equal(t, Success, st)
	assert.Equal(t, 3, ticks)

	t.Run("zero succeeds immediately", func(t *testing.T) {
		var ticks int
		tree := mustTree(t, RepeatCount("rep", 0, testutil.Script("c", &ticks, Success)))
		done, st := tree.Tick()
		assert.True(t, done)
		assert.Equal(t, Success, st)
		assert.Zero(t, ticks)
	})
}

func TestRepeat_NeverCompletes(t *testing.T) {
	var ticks int
	tree := mustTree(t, Repeat("rep", testutil.Script("c", &ticks, Failure)))
	for i := 0; i < 5; i++ {
		done, st := tree.Tick()
		assert.False(t, done)
		assert.Equal(t, Running, st)
	}
	assert.Equal(t, 5, ticks)
}

func TestTimeout(t *testing.T) {
	clock := testutil.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	var rec testutil.Recorder
	child := rec.Watch(testutil.Script("child", nil, Running))
	tree := mustTree(t, Timeout("to", time.Second, child), WithClock(clock))

	done, _ := tree.Tick()
	assert.False(t, done)
	clock.Advance(500 * time.Millisecond)
	done, _ = tree.Tick()
	assert.False(t, done)

	clock.Advance(500 * time.Millisecond)
	done, st := tree.Tick()
	assert.True(t, done)
	assert.Equal(t, Failure, st)
	assert.Equal(t, 1, rec.Count("child:exit"))
	assert.Equal(t, SubNone, child.SubStatus())
}

func TestTimeout_RestartsOnEntry(t *testing.T) {
	clock := testutil.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tree := mustTree(t, Timeout("to", time.Second, testutil.Script("c", nil, Running, Success)),
		WithClock(clock), WithRestart(RestartOnComplete))

	tree.Tick()
	clock.Advance(900 * time.Millisecond)
	done, st := tree.Tick()
	require.True(t, done)
	require.Equal(t, Success, st)

	clock.Advance(900 * time.Millisecond)
	done, _ = tree.Tick()
	assert.False(t, done, "deadline measured from the new entry")
}

func TestCooldown(t *testing.T) {
	clock := testutil.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	var ticks int
	tree := mustTree(t, Cooldown("cd", 5*time.Second, testutil.Script("c", &ticks, Success)),
		WithClock(clock), WithRestart(RestartOnComplete))

	_, st := tree.Tick()
	assert.Equal(t, Success, st)

	clock.Advance(time.Second)
	_, st = tree.Tick()
	assert.Equal(t, Failure, st)
	assert.Equal(t, 1, ticks)

	clock.Advance(5 * time.Second)
	_, st = tree.Tick()
	assert.Equal(t, Success, st)
	assert.Equal(t, 2, ticks)
}

func TestLatched_WithholdsInvalidation(t *testing.T) {
	flag := &testutil.Flag{}
	flag.Set(true)
	guard := Guard("g", flag.Get)
	latched := Latched("latched", guard)
	tree := mustTree(t, latched)
	tree.Tick()

	flag.Set(false)
	assert.True(t, guard.IsInvalid())
	assert.False(t, latched.IsInvalid())
}

func TestValueChanged(t *testing.T) {
	value := 1
	vc := ValueChanged("vc", func() int { return value }, Succeed("c"))
	tree := mustTree(t, vc, WithRestart(RestartOnInvalid))

	done, st := tree.Tick()
	require.True(t, done)
	require.Equal(t, Success, st)
	assert.False(t, vc.IsInvalid())

	value = 2
	assert.True(t, vc.IsInvalid())
	done, _ = tree.Tick()
	assert.True(t, done, "restarted on invalidation")
	assert.False(t, vc.IsInvalid())
}

func TestPassThroughInvalidation(t *testing.T) {
	flag := &testutil.Flag{}
	flag.Set(true)
	guard := Guard("g", flag.Get)
	inv := Invert("inv", guard)
	tree := mustTree(t, inv)
	tree.Tick()
	assert.False(t, inv.IsInvalid())
	flag.Set(false)
	assert.True(t, inv.IsInvalid())
}
