// Package coro adapts cooperative, multi-tick computations into plain per-tick
// polls.
//
// A computation receives a *Yielder. Each call to Yielder.Suspend pauses the
// computation and hands control back to whoever called Poll. The next Poll made
// in a later frame resumes the computation exactly where it suspended. Frames
// are supplied by the caller (one per driver tick), so polling twice within the
// same frame never resumes a suspension created in that frame.
//
// The coroutine is built on iter.Pull: the computation runs on its own
// goroutine stack but never in parallel with the poller, so node state needs no
// locking.
package coro

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"runtime/debug"
)

var (
	// ErrForcedReset is the cancellation cause used when a node is torn down
	// immediately.
	ErrForcedReset = errors.New("coro: forced reset")

	// ErrGracefulReset is the cancellation cause used when a node asks its own
	// in-flight computation to unwind as part of a graceful reset.
	ErrGracefulReset = errors.New("coro: graceful reset")

	// ErrSuspendAfterCancel is the error a computation finishes with when it
	// suspends again after its cancellation was delivered.
	ErrSuspendAfterCancel = errors.New("coro: suspended after cancellation")
)

// abandoned unwinds a computation that keeps suspending once stopped.
type abandoned struct{}

// State of a Core.
type State int

const (
	// Idle indicates the computation has not been started (or was reset).
	Idle State = iota
	// Suspended indicates the computation is parked at a suspension point.
	Suspended
	// Completed indicates the computation returned; its result is cached.
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Suspended:
		return "Suspended"
	case Completed:
		return "Completed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Func is a computation that may span several frames.
type Func[T any] func(ctx context.Context, y *Yielder) (T, error)

// PanicError carries a panic recovered from a computation.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("coro: panic: %v", e.Value)
}

// Core drives one Func. The zero value is not usable; see New.
type Core[T any] struct {
	fn Func[T]

	state     State
	frame     uint64
	pendingAt uint64

	cancel context.CancelCauseFunc
	next   func() (struct{}, bool)
	stop   func()

	result T
	err    error
}

// New returns an idle Core for fn.
func New[T any](fn Func[T]) *Core[T] {
	return &Core[T]{fn: fn}
}

// State returns the current state.
func (c *Core[T]) State() State {
	return c.state
}

// Poll starts or resumes the computation. It reports done once the computation
// has returned; the result and error are cached and returned by every later
// Poll until Reset. parent is only used when the computation starts.
func (c *Core[T]) Poll(parent context.Context, frame uint64) (done bool, result T, err error) {
	switch c.state {
	case Completed:
		return true, c.result, c.err
	case Suspended:
		if frame <= c.pendingAt {
			return false, result, nil
		}
	case Idle:
		c.start(parent)
	}
	c.frame = frame
	if _, ok := c.next(); ok {
		c.state = Suspended
		return false, result, nil
	}
	c.complete()
	return true, c.result, c.err
}

// Cancel aborts a suspended computation with cause. The computation observes
// the cancellation through its context and the error returned from Suspend,
// and runs to completion before Cancel returns. Cancel returns the error the
// computation finished with, unless that error is the cancellation itself.
func (c *Core[T]) Cancel(cause error) error {
	if c.state != Suspended {
		return nil
	}
	c.cancel(cause)
	c.stop()
	c.complete()
	if c.err == nil || IsCancellation(c.err, cause) {
		return nil
	}
	return c.err
}

// Reset cancels any suspended computation with ErrForcedReset and returns the
// Core to Idle, dropping the cached result.
func (c *Core[T]) Reset() error {
	err := c.Cancel(ErrForcedReset)
	var zero T
	c.state = Idle
	c.result = zero
	c.err = nil
	c.next, c.stop, c.cancel = nil, nil, nil
	return err
}

// IsCancellation reports whether err is the unwinding of a cancellation with
// the given cause.
func IsCancellation(err, cause error) bool {
	if err == nil {
		return false
	}
	if cause != nil && errors.Is(err, cause) {
		return true
	}
	return errors.Is(err, context.Canceled)
}

func (c *Core[T]) start(parent context.Context) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancelCause(parent)
	c.cancel = cancel
	y := &Yielder{ctx: ctx, core: c}
	c.next, c.stop = iter.Pull(func(yield func(struct{}) bool) {
		y.yield = yield
		defer func() {
			if r := recover(); r != nil {
				if _, ok := r.(abandoned); ok {
					c.err = ErrSuspendAfterCancel
					return
				}
				c.err = &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
		c.result, c.err = c.fn(ctx, y)
	})
}

func (c *Core[T]) complete() {
	c.state = Completed
	if c.stop != nil {
		c.stop()
	}
	if c.cancel != nil {
		c.cancel(nil)
	}
}

// Yielder is the suspension primitive handed to a computation.
type Yielder struct {
	ctx     context.Context
	core    coreFrames
	yield   func(struct{}) bool
	stopped bool
}

type coreFrames interface {
	suspendAt() uint64
	markPending(frame uint64)
}

func (c *Core[T]) suspendAt() uint64         { return c.frame }
func (c *Core[T]) markPending(frame uint64) { c.pendingAt = frame }

// Context returns the activation context of the computation.
func (y *Yielder) Context() context.Context {
	return y.ctx
}

// Suspend parks the computation until the next frame. It returns a non-nil
// error wrapping the cancellation cause once the computation has been
// cancelled; the computation is expected to return promptly after that.
// Suspending again once that error was delivered unwinds the computation, and
// it finishes with ErrSuspendAfterCancel.
func (y *Yielder) Suspend() error {
	if y.stopped {
		panic(abandoned{})
	}
	err := y.suspend()
	if err != nil {
		y.stopped = true
	}
	return err
}

func (y *Yielder) suspend() error {
	if err := y.cancelled(); err != nil {
		return err
	}
	y.core.markPending(y.core.suspendAt())
	if !y.yield(struct{}{}) {
		if err := y.cancelled(); err != nil {
			return err
		}
		return context.Canceled
	}
	return y.cancelled()
}

// Ticks suspends n times.
func (y *Yielder) Ticks(n int) error {
	for i := 0; i < n; i++ {
		if err := y.Suspend(); err != nil {
			return err
		}
	}
	return nil
}

// Until suspends until cond reports true. cond is checked before every
// suspension, so a condition that already holds returns immediately.
func (y *Yielder) Until(cond func() bool) error {
	for !cond() {
		if err := y.Suspend(); err != nil {
			return err
		}
	}
	return nil
}

func (y *Yielder) cancelled() error {
	if y.ctx.Err() == nil {
		return nil
	}
	cause := context.Cause(y.ctx)
	if cause == nil || errors.Is(cause, context.Canceled) {
		return context.Canceled
	}
	return fmt.Errorf("%w: %w", context.Canceled, cause)
}
