// Package jsoncalc is the root facade wiring the lexer, parser, aggregate
// discovery pass, evaluator, context, and command layers into one
// "parse, then evaluate" entry point, mirroring the teacher's Engine/
// New/NewDefault/AnalyzeQuery shape.
package jsoncalc

import (
	"sync"
	"sync/atomic"

	"github.com/kirkendall/jsoncalc/aggpass"
	"github.com/kirkendall/jsoncalc/ast"
	"github.com/kirkendall/jsoncalc/ast/function"
	"github.com/kirkendall/jsoncalc/ast/function/aggregation"
	"github.com/kirkendall/jsoncalc/command"
	"github.com/kirkendall/jsoncalc/context"
	"github.com/kirkendall/jsoncalc/parser"
	"github.com/kirkendall/jsoncalc/value"
)

// Config configures an Engine. Its zero value is the default configuration.
type Config struct {
	// IsReadOnly is copied into Engine.ReadOnly. Nothing consults that
	// flag: assignments and file switching behave the same either way.
	IsReadOnly bool
}

// Engine owns the process-wide function registry (spec.md §4.5's
// "append-only, process-wide" table). It holds no interruption flag: each
// Context from NewContext allocates its own.
type Engine struct {
	Registry   *function.Registry
	ReadOnly   atomic.Bool
	mu         sync.Mutex
}

// New creates an Engine seeded with the given function registry. Use
// NewDefault for the registry pre-populated with the standard library of
// scalar and aggregate functions.
func New(reg *function.Registry, cfg *Config) *Engine {
	if cfg == nil {
		cfg = &Config{}
	}
	e := &Engine{Registry: reg}
	e.ReadOnly.Store(cfg.IsReadOnly)
	return e
}

// NewDefault creates an Engine with the standard function registry: the
// scalar/table built-ins registered by package function plus the
// aggregate built-ins (sum/count/avg/min/max/group_concat) registered by
// ast/function/aggregation. The two registration calls live here, not
// inside function.NewDefaultRegistry itself, because aggregation imports
// function (for *function.Registry/Descriptor) -- function registering
// aggregation back would be an import cycle.
func NewDefault() *Engine {
	reg := function.NewDefaultRegistry()
	aggregation.RegisterBuiltins(reg)
	return New(reg, nil)
}

// ParseExpr parses src as a single expression (spec.md §4.1-§4.2), applying
// the aggregate-discovery pass (spec.md §4.3) to the result. It does not
// accept command-grammar statements; use Parse for a full script.
func (e *Engine) ParseExpr(src, file string) (*ast.Node, error) {
	p := parser.New(src, file, e.Registry)
	node, err := p.Parse()
	if err != nil {
		return nil, err
	}
	return aggpass.Run(node), nil
}

// Parse parses src as a command-grammar script (spec.md §6): a sequence of
// if/while/for/var/const/function/return/... statements and bare
// expressions, returned as an executable *command.Block.
func (e *Engine) Parse(src, file string) (*command.Block, error) {
	cp := command.NewParser(src, file, e.Registry)
	return cp.ParseProgram()
}

// EvalExpr evaluates a parsed expression node against ctx.
func (e *Engine) EvalExpr(node *ast.Node, ctx *context.Context) (*value.Value, error) {
	return ast.Eval(node, ctx, nil)
}

// Exec runs a parsed script's statements against ctx, returning the value
// of its last statement (spec.md §6's "a bare expression (assignment or
// output)" semantics extended to a whole script).
func (e *Engine) Exec(block *command.Block, ctx *context.Context) (*value.Value, error) {
	v, _, err := block.Exec(ctx)
	return v, err
}

// NewContext builds a root Context over doc, named docName for diagnostics
// and file-switch bookkeeping (spec.md §4.6).
func (e *Engine) NewContext(docName string, doc *value.Value) *context.Context {
	return context.NewContext(e.Registry, docName, doc)
}

// Run is the common case: parse src as a script and execute it immediately
// against a fresh context over doc.
func (e *Engine) Run(src, file, docName string, doc *value.Value) (*value.Value, error) {
	block, err := e.Parse(src, file)
	if err != nil {
		return nil, err
	}
	ctx := e.NewContext(docName, doc)
	return e.Exec(block, ctx)
}
