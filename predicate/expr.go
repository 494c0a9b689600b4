package predicate

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprEngine compiles expr-lang/expr expressions. Blackboard keys are
// exposed as top-level variables; undefined keys read as nil.
type ExprEngine struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExprEngine creates an Expr engine with an empty program cache.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{
		cache: make(map[string]*vm.Program),
	}
}

func (e *ExprEngine) Name() string { return "expr" }

// Compile compiles (or retrieves from cache) expression.
func (e *ExprEngine) Compile(expression string) (Predicate, error) {
	if expression == "" {
		return nil, ErrEmptyExpression
	}
	prg, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return &exprPredicate{src: expression, prg: prg}, nil
}

func (e *ExprEngine) getOrCompile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}
	prg, err := expr.Compile(expression,
		expr.Env(map[string]any{}),
		expr.AsBool(),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, fmt.Errorf("expr compile %q: %w", expression, err)
	}
	e.cache[expression] = prg
	return prg, nil
}

type exprPredicate struct {
	src string
	prg *vm.Program
}

func (p *exprPredicate) Source() string { return p.src }

func (p *exprPredicate) Eval(data map[string]any) (bool, error) {
	if data == nil {
		data = map[string]any{}
	}
	out, err := expr.Run(p.prg, data)
	if err != nil {
		return false, fmt.Errorf("expr eval %q: %w", p.src, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expr eval %q: %w", p.src, ErrNotBool)
	}
	return b, nil
}
