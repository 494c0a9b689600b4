package btreex

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/comalice/btreex/internal/coro"
)

var (
	ErrNilNode                  = errors.New("nil node")
	ErrNodeOwned                = errors.New("node already has a parent")
	ErrDuplicateTick            = errors.New("base tick already registered")
	ErrDuplicateInvalidateCheck = errors.New("invalidate check already registered")
	ErrDuplicateSlot            = errors.New("slot already declared")
	ErrUnknownSlot              = errors.New("slot not declared")
	ErrTreeNotOwner             = errors.New("tree ticked from a goroutine that does not own it")
	ErrInvalidStatus            = errors.New("tick returned a non-terminal, non-running status")
)

// Cancellation causes observed by continuations through their context and
// the error returned from Yielder.Suspend.
var (
	ErrForcedReset   = coro.ErrForcedReset
	ErrGracefulReset = coro.ErrGracefulReset
)

// ErrSuspendAfterCancel is reported when a continuation keeps suspending after
// Suspend returned its cancellation error. The continuation is unwound.
var ErrSuspendAfterCancel = coro.ErrSuspendAfterCancel

// PanicError is the error recorded when a continuation panics.
type PanicError = coro.PanicError

// CallbackError wraps an error or panic raised by a user callback, with the
// identity of the node and the lifecycle phase it was raised in.
type CallbackError struct {
	Node  string
	Phase Phase
	Err   error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("node %q: %s: %v", e.Node, e.Phase, e.Err)
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}

// SlotTypeError reports a variable slot accessed or assigned with the wrong type.
type SlotTypeError struct {
	Slot     string
	Node     string
	Expected reflect.Type
	Actual   reflect.Type
	Value    any
}

func (e *SlotTypeError) Error() string {
	return fmt.Sprintf("slot %q on node %q: expected %v, got %v (value %#v)", e.Slot, e.Node, e.Expected, e.Actual, e.Value)
}

// IsCancellation reports whether err is a continuation unwinding because of a
// reset (forced or graceful).
func IsCancellation(err error) bool {
	return coro.IsCancellation(err, ErrForcedReset) || coro.IsCancellation(err, ErrGracefulReset)
}
