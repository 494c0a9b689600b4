package btreex

import (
	"fmt"
	"reflect"
	"runtime/debug"
)

// slot is a named, typed variable owned by one node.
type slot struct {
	name  string
	typ   reflect.Type
	value any
	init  func() any
	fin   func(any)
}

// Slot is a typed handle to a variable declared on a node. Slots are not
// inherited by children; other nodes read them through closures.
type Slot[T any] struct {
	n *Node
	i int
}

// SlotOption configures a slot declaration.
type SlotOption[T any] func(*slotConfig[T])

type slotConfig[T any] struct {
	fin func(T)
}

// WithFinalizer registers fn to receive the slot value at the end of every
// exit.
func WithFinalizer[T any](fn func(T)) SlotOption[T] {
	return func(c *slotConfig[T]) {
		c.fin = fn
	}
}

// DeclareSlot declares a variable named name on n. When init is non-nil it
// seeds the value on every entry (including re-entry); otherwise the value
// persists across entries until overwritten.
func DeclareSlot[T any](n *Node, name string, init func() T, opts ...SlotOption[T]) (Slot[T], error) {
	for _, v := range n.vars {
		if v.name == name {
			return Slot[T]{}, fmt.Errorf("node %q: slot %q: %w", n.name, name, ErrDuplicateSlot)
		}
	}
	var cfg slotConfig[T]
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &slot{name: name, typ: reflect.TypeFor[T]()}
	var zero T
	s.value = zero
	if init != nil {
		s.init = func() any { return init() }
	}
	if cfg.fin != nil {
		fin := cfg.fin
		s.fin = func(v any) {
			t, _ := v.(T)
			fin(t)
		}
	}
	n.vars = append(n.vars, s)
	return Slot[T]{n: n, i: len(n.vars) - 1}, nil
}

// MustSlot is DeclareSlot for node constructors, where the slot name is
// known to be free. It panics on error.
func MustSlot[T any](n *Node, name string, init func() T, opts ...SlotOption[T]) Slot[T] {
	s, err := DeclareSlot(n, name, init, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Get returns the current value.
func (s Slot[T]) Get() T {
	v, _ := s.n.vars[s.i].value.(T)
	return v
}

// Set replaces the current value.
func (s Slot[T]) Set(v T) {
	s.n.vars[s.i].value = v
}

// Name returns the declared name.
func (s Slot[T]) Name() string {
	return s.n.vars[s.i].name
}

// Var returns the value of the slot named name.
func (n *Node) Var(name string) (any, bool) {
	s := n.lookupSlot(name)
	if s == nil {
		return nil, false
	}
	return s.value, true
}

// SetVar assigns v to the slot named name, rejecting values whose type does
// not match the declaration with a *SlotTypeError.
func (n *Node) SetVar(name string, v any) error {
	s := n.lookupSlot(name)
	if s == nil {
		return fmt.Errorf("node %q: slot %q: %w", n.name, name, ErrUnknownSlot)
	}
	if v == nil {
		switch s.typ.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			s.value = reflect.Zero(s.typ).Interface()
			return nil
		}
		return &SlotTypeError{Slot: name, Node: n.name, Expected: s.typ, Actual: nil, Value: v}
	}
	if actual := reflect.TypeOf(v); !actual.AssignableTo(s.typ) {
		return &SlotTypeError{Slot: name, Node: n.name, Expected: s.typ, Actual: actual, Value: v}
	}
	s.value = v
	return nil
}

// Lookup reads the slot named name as a T.
func Lookup[T any](n *Node, name string) (T, error) {
	var zero T
	s := n.lookupSlot(name)
	if s == nil {
		return zero, fmt.Errorf("node %q: slot %q: %w", n.name, name, ErrUnknownSlot)
	}
	want := reflect.TypeFor[T]()
	if want != s.typ {
		return zero, &SlotTypeError{Slot: name, Node: n.name, Expected: s.typ, Actual: want, Value: s.value}
	}
	v, _ := s.value.(T)
	return v, nil
}

// Vars returns a copy of the slot values keyed by name.
func (n *Node) Vars() map[string]any {
	if len(n.vars) == 0 {
		return nil
	}
	out := make(map[string]any, len(n.vars))
	for _, s := range n.vars {
		out[s.name] = s.value
	}
	return out
}

func (n *Node) lookupSlot(name string) *slot {
	for _, s := range n.vars {
		if s.name == name {
			return s
		}
	}
	return nil
}

func (n *Node) seedSlots() {
	for _, s := range n.vars {
		if s.init == nil {
			continue
		}
		if err := seedSlot(s); err != nil {
			n.fault(PhaseEnter, err)
		}
	}
}

func seedSlot(s *slot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	s.value = s.init()
	return nil
}

func (n *Node) finalizeSlots() {
	for _, s := range n.vars {
		if s.fin == nil {
			continue
		}
		if err := finalizeSlot(s); err != nil {
			n.report(PhaseExit, err)
		}
	}
}

func finalizeSlot(s *slot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	s.fin(s.value)
	return nil
}
