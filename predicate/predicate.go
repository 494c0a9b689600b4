// Package predicate compiles boolean expressions evaluated against a tree's
// blackboard. Two engines are provided: expr-lang/expr, where blackboard keys
// are top-level variables, and CEL, where the blackboard is the map variable
// bb.
package predicate

import (
	"errors"
	"log/slog"

	"github.com/comalice/btreex"
)

var (
	ErrEmptyExpression = errors.New("empty expression")
	ErrNotBool         = errors.New("expression does not evaluate to bool")
)

// Predicate is a compiled boolean expression.
type Predicate interface {
	Eval(data map[string]any) (bool, error)
	Source() string
}

// Engine compiles expressions. Implementations cache compiled programs and
// are safe for concurrent use.
type Engine interface {
	Name() string
	Compile(expression string) (Predicate, error)
}

// On binds p to bb and returns a closure usable as a Guard, Condition or
// While predicate. Evaluation errors are logged and read as false.
func On(p Predicate, bb *btreex.Blackboard, logger *slog.Logger) func() bool {
	if logger == nil {
		logger = slog.Default()
	}
	return func() bool {
		ok, err := p.Eval(bb.Snapshot())
		if err != nil {
			logger.Error("predicate evaluation failed", "expression", p.Source(), "error", err)
			return false
		}
		return ok
	}
}

// Guard compiles expression with e and returns a Guard leaf bound to bb.
func Guard(e Engine, name, expression string, bb *btreex.Blackboard, logger *slog.Logger) (*btreex.Node, error) {
	p, err := e.Compile(expression)
	if err != nil {
		return nil, err
	}
	return btreex.Guard(name, On(p, bb, logger)), nil
}
