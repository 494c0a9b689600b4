package btreex

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Option applies configuration to a Tree via the functional options pattern.
type Option func(*Tree)

// Clock is the time source used by time-boxed decorators.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// RestartPolicy decides what Tree.Tick does once the root has completed.
type RestartPolicy int

const (
	// RestartNever leaves a completed root alone.
	RestartNever RestartPolicy = iota
	// RestartOnComplete re-enters the root on every tick after completion.
	RestartOnComplete
	// RestartOnInvalid re-enters the root once its invalidate check fires.
	RestartOnInvalid
)

func (p RestartPolicy) String() string {
	switch p {
	case RestartNever:
		return "never"
	case RestartOnComplete:
		return "on-complete"
	case RestartOnInvalid:
		return "on-invalid"
	default:
		return "unknown"
	}
}

// environment is shared by every node of one tree.
type environment struct {
	treeID    uuid.UUID
	frame     uint64
	clock     Clock
	logger    *slog.Logger
	publisher Publisher
	onError   func(error)
	ctx       context.Context
	nodes     int
}

func newEnvironment() *environment {
	return &environment{
		treeID: uuid.New(),
		clock:  SystemClock{},
		logger: slog.Default(),
		ctx:    context.Background(),
	}
}

// WithLogger configures the logger used for diagnostics and callback errors.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tree) {
		if l != nil {
			t.env.logger = l
		}
	}
}

// WithClock configures the time source for Timeout and Cooldown.
func WithClock(c Clock) Option {
	return func(t *Tree) {
		if c != nil {
			t.env.clock = c
		}
	}
}

// WithContext sets the parent of every activation context in the tree.
// Cancelling it cancels all in-flight continuations at their next suspension.
func WithContext(ctx context.Context) Option {
	return func(t *Tree) {
		if ctx != nil {
			t.env.ctx = ctx
		}
	}
}

// WithPublisher configures a Publisher receiving every sub-status transition.
func WithPublisher(p Publisher) Option {
	return func(t *Tree) {
		t.env.publisher = p
	}
}

// WithErrorHandler registers fn to receive every *CallbackError (after it has
// been logged) and ErrTreeNotOwner violations.
func WithErrorHandler(fn func(error)) Option {
	return func(t *Tree) {
		t.env.onError = fn
	}
}

// WithOwnerCheck enables the single-goroutine guard: Tick calls from any
// goroutine other than the owner are refused.
func WithOwnerCheck(enabled bool) Option {
	return func(t *Tree) {
		t.ownerCheck = enabled
	}
}

// WithRestart configures the restart policy applied to a completed root.
func WithRestart(p RestartPolicy) Option {
	return func(t *Tree) {
		t.restart = p
	}
}

// WithTreeID overrides the generated tree identifier.
func WithTreeID(id uuid.UUID) Option {
	return func(t *Tree) {
		t.env.treeID = id
	}
}
