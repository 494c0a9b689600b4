package predicate

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// CELEngine compiles Common Expression Language predicates. The blackboard
// is bound to the variable bb, e.g. `bb.ammo > 0 && bb.target != ""`.
type CELEngine struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELEngine creates a CEL engine declaring bb as map(string, dyn).
func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("bb", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &CELEngine{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

func (e *CELEngine) Name() string { return "cel" }

// Compile type-checks expression, which must produce a bool, and caches the
// program.
func (e *CELEngine) Compile(expression string) (Predicate, error) {
	if expression == "" {
		return nil, ErrEmptyExpression
	}
	prg, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return &celPredicate{src: expression, prg: prg}, nil
}

func (e *CELEngine) getOrCompile(expression string) (cel.Program, error) {
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
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compile %q: %w", expression, issues.Err())
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("CEL compile %q: %w (got %v)", expression, ErrNotBool, t)
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program %q: %w", expression, err)
	}
	e.cache[expression] = prg
	return prg, nil
}

type celPredicate struct {
	src string
	prg cel.Program
}

func (p *celPredicate) Source() string { return p.src }

func (p *celPredicate) Eval(data map[string]any) (bool, error) {
	if data == nil {
		data = map[string]any{}
	}
	out, _, err := p.prg.Eval(map[string]any{"bb": data})
	if err != nil {
		return false, fmt.Errorf("CEL eval %q: %w", p.src, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL eval %q: %w", p.src, ErrNotBool)
	}
	return b, nil
}
