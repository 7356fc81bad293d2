// Package command implements the thin statement layer of spec.md §6: a
// recursive-descent shell wrapping the expression parser/evaluator with
// if/while/for/try/var/const/function/return/switch/case/throw/set/print/
// file/import statements. It is deliberately small relative to the parser
// and evaluator, per spec.md §2's component-share table.
package command

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kirkendall/jsoncalc/ast"
	"github.com/kirkendall/jsoncalc/ast/function"
	"github.com/kirkendall/jsoncalc/context"
	"github.com/kirkendall/jsoncalc/errs"
	"github.com/kirkendall/jsoncalc/value"
)

// ctrl is the control-flow signal a statement hands back up to its
// enclosing block/loop/function call, per spec.md §4.4 "its return, bare
// terminal value, break, or continue is interpreted".
type ctrl int

const (
	ctrlNone ctrl = iota
	ctrlBreak
	ctrlContinue
	ctrlReturn
)

// Stmt is one command-grammar statement (spec.md §6).
type Stmt interface {
	Exec(ctx *context.Context) (*value.Value, ctrl, error)
}

// ThrownError wraps a thrown value.Value as a Go error so it can propagate
// through Stmt.Exec's error return and be caught by an enclosing Try, per
// spec.md §7 "Recovery".
type ThrownError struct {
	Value *value.Value
}

func (e *ThrownError) Error() string { return e.Value.ErrorMessage() }

// Block is an ordered statement list; it is also the concrete type stored
// as function.Descriptor.UserBody (as interface{}, to avoid an import cycle
// -- see ast/function/registry.go) and implements context.Executable so
// context.CallUser can run a user function's body.
type Block struct {
	Stmts []Stmt
}

func (b *Block) Exec(ctx *context.Context) (*value.Value, ctrl, error) {
	last := value.NewNull()
	for _, s := range b.Stmts {
		v, c, err := s.Exec(ctx)
		if err != nil {
			return nil, ctrlNone, err
		}
		if v != nil {
			last = v
		}
		if c != ctrlNone {
			return v, c, nil
		}
	}
	return last, ctrlNone, nil
}

// ExecFunctionBody implements context.Executable (spec.md §4.4 "User
// function call"): break/continue reaching the top of a function body are
// errors, per spec.md §4.4.
func (b *Block) ExecFunctionBody(scope ast.Scope) (*value.Value, error) {
	ctx, ok := scope.(*context.Context)
	if !ok {
		return nil, fmt.Errorf("command: function body requires a *context.Context scope")
	}
	v, c, err := b.Exec(ctx)
	if err != nil {
		return nil, err
	}
	switch c {
	case ctrlBreak:
		return nil, errs.ErrBreakOutside.New()
	case ctrlContinue:
		return nil, errs.ErrContinueOutside.New()
	default:
		return v, nil
	}
}

// ExprStmt is a bare expression used as a statement (assignment or output),
// per spec.md §6's grammar summary.
type ExprStmt struct{ Node *ast.Node }

func (s *ExprStmt) Exec(ctx *context.Context) (*value.Value, ctrl, error) {
	v, err := ast.Eval(s.Node, ctx, nil)
	return v, ctrlNone, err
}

// VoidStmt evaluates an expression and discards its value.
type VoidStmt struct{ Node *ast.Node }

func (s *VoidStmt) Exec(ctx *context.Context) (*value.Value, ctrl, error) {
	if _, err := ast.Eval(s.Node, ctx, nil); err != nil {
		return nil, ctrlNone, err
	}
	return value.NewNull(), ctrlNone, nil
}

// Print implements `print expr [, expr ...]`. Output is explicitly a
// non-core concern (spec.md §1 excludes CLI/REPL/pretty-printing); when Out
// is nil, which is how the command parser builds it, nothing is written.
type Print struct {
	Exprs []*ast.Node
	Out   io.Writer
}

func (s *Print) Exec(ctx *context.Context) (*value.Value, ctrl, error) {
	parts := make([]string, len(s.Exprs))
	for i, e := range s.Exprs {
		v, err := ast.Eval(e, ctx, nil)
		if err != nil {
			return nil, ctrlNone, err
		}
		parts[i] = v.ToString()
	}
	if s.Out != nil {
		fmt.Fprintln(s.Out, strings.Join(parts, " "))
	}
	return value.NewNull(), ctrlNone, nil
}

// VarDecl implements `var`/`const name[:type][=expr] [, ...]`.
type VarDecl struct {
	Names []string
	Inits []*ast.Node // parallel to Names; nil entry means no initializer
	Const bool
}

func (s *VarDecl) Exec(ctx *context.Context) (*value.Value, ctrl, error) {
	for i, name := range s.Names {
		v := value.NewNull()
		if s.Inits[i] != nil {
			var err error
			v, err = ast.Eval(s.Inits[i], ctx, nil)
			if err != nil {
				return nil, ctrlNone, err
			}
		}
		if s.Const {
			ctx.DeclareConst(name, v)
		} else {
			ctx.DeclareVar(name, v)
		}
	}
	return value.NewNull(), ctrlNone, nil
}

// If implements `if(expr) stmt [else stmt]`.
type If struct {
	Cond *ast.Node
	Then Stmt
	Else Stmt
}

func (s *If) Exec(ctx *context.Context) (*value.Value, ctrl, error) {
	cond, err := ast.Eval(s.Cond, ctx, nil)
	if err != nil {
		return nil, ctrlNone, err
	}
	if cond.IsError() {
		return cond, ctrlNone, nil
	}
	if cond.Bool() {
		return s.Then.Exec(ctx)
	}
	if s.Else != nil {
		return s.Else.Exec(ctx)
	}
	return value.NewNull(), ctrlNone, nil
}

// While implements `while(expr) stmt`.
type While struct {
	Cond *ast.Node
	Body Stmt
}

func (s *While) Exec(ctx *context.Context) (*value.Value, ctrl, error) {
	last := value.NewNull()
	for {
		if ctx.Interrupted() {
			return nil, ctrlNone, errs.ErrInterrupted.New()
		}
		cond, err := ast.Eval(s.Cond, ctx, nil)
		if err != nil {
			return nil, ctrlNone, err
		}
		if !cond.Bool() {
			break
		}
		v, c, err := s.Body.Exec(ctx)
		if err != nil {
			return nil, ctrlNone, err
		}
		if v != nil {
			last = v
		}
		if c == ctrlBreak {
			break
		}
		if c == ctrlReturn {
			return v, c, nil
		}
	}
	return last, ctrlNone, nil
}

// For implements `for(var? name (= | of) expr) stmt`: name is bound to
// each element of expr's array in turn.
type For struct {
	Name string
	Expr *ast.Node
	Body Stmt
}

func (s *For) Exec(ctx *context.Context) (*value.Value, ctrl, error) {
	v, err := ast.Eval(s.Expr, ctx, nil)
	if err != nil {
		return nil, ctrlNone, err
	}
	if v.IsError() {
		return v, ctrlNone, nil
	}
	last := value.NewNull()
	for _, elt := range v.Elements() {
		if ctx.Interrupted() {
			return nil, ctrlNone, errs.ErrInterrupted.New()
		}
		ctx.DeclareVar(s.Name, elt)
		rv, c, err := s.Body.Exec(ctx)
		if err != nil {
			return nil, ctrlNone, err
		}
		if rv != nil {
			last = rv
		}
		if c == ctrlBreak {
			break
		}
		if c == ctrlReturn {
			return rv, c, nil
		}
	}
	return last, ctrlNone, nil
}

// Break and Continue implement the bare `break`/`continue` statements.
type Break struct{}

func (Break) Exec(*context.Context) (*value.Value, ctrl, error) { return value.NewNull(), ctrlBreak, nil }

type Continue struct{}

func (Continue) Exec(*context.Context) (*value.Value, ctrl, error) {
	return value.NewNull(), ctrlContinue, nil
}

// Return implements `return [expr]`.
type Return struct{ Expr *ast.Node }

func (s *Return) Exec(ctx *context.Context) (*value.Value, ctrl, error) {
	if s.Expr == nil {
		return value.NewNull(), ctrlReturn, nil
	}
	v, err := ast.Eval(s.Expr, ctx, nil)
	if err != nil {
		return nil, ctrlNone, err
	}
	return v, ctrlReturn, nil
}

// CaseClause is one `case lit:` arm of a Switch.
type CaseClause struct {
	Value *ast.Node
	Body  Stmt
}

// Switch implements `switch(expr) { case lit: … default: … }`. The first
// matching case (by loose equality) runs; otherwise Default runs if present.
type Switch struct {
	Expr    *ast.Node
	Cases   []CaseClause
	Default Stmt
}

func (s *Switch) Exec(ctx *context.Context) (*value.Value, ctrl, error) {
	v, err := ast.Eval(s.Expr, ctx, nil)
	if err != nil {
		return nil, ctrlNone, err
	}
	for _, cs := range s.Cases {
		cv, err := ast.Eval(cs.Value, ctx, nil)
		if err != nil {
			return nil, ctrlNone, err
		}
		if v.Equal(cv) {
			return cs.Body.Exec(ctx)
		}
	}
	if s.Default != nil {
		return s.Default.Exec(ctx)
	}
	return value.NewNull(), ctrlNone, nil
}

// Try implements `try stmt catch(name)? stmt`, per spec.md §7 "Recovery":
// an error inside Body substitutes the caught value into the catch scope
// (optionally bound to name) and execution continues.
type Try struct {
	Body      Stmt
	HasCatch  bool
	CatchName string
	Catch     Stmt
}

func (s *Try) Exec(ctx *context.Context) (*value.Value, ctrl, error) {
	v, c, err := s.Body.Exec(ctx)
	if err == nil {
		return v, c, nil
	}
	var thrown *ThrownError
	if !errors.As(err, &thrown) {
		// Interrupted and similar non-script errors are not catchable.
		return nil, ctrlNone, err
	}
	if !s.HasCatch {
		return value.NewNull(), ctrlNone, nil
	}
	if s.CatchName != "" {
		ctx.DeclareVar(s.CatchName, thrown.Value)
	}
	return s.Catch.Exec(ctx)
}

// Throw implements `throw [code,] "msg" [, arg]`.
type Throw struct {
	Code *ast.Node
	Msg  *ast.Node
	Arg  *ast.Node
}

func (s *Throw) Exec(ctx *context.Context) (*value.Value, ctrl, error) {
	errObj := value.NewObject()
	msg, err := ast.Eval(s.Msg, ctx, nil)
	if err != nil {
		return nil, ctrlNone, err
	}
	errObj.Set("message", msg)
	if s.Code != nil {
		code, err := ast.Eval(s.Code, ctx, nil)
		if err != nil {
			return nil, ctrlNone, err
		}
		errObj.Set("code", code)
	}
	if s.Arg != nil {
		arg, err := ast.Eval(s.Arg, ctx, nil)
		if err != nil {
			return nil, ctrlNone, err
		}
		errObj.Set("arg", arg)
	}
	return nil, ctrlNone, &ThrownError{Value: errObj}
}

// FuncDef implements `function name(params):type { body }`.
type FuncDef struct {
	Name       string
	Params     []function.UserParam
	ReturnType string
	Body       *Block
}

func (s *FuncDef) Exec(ctx *context.Context) (*value.Value, ctrl, error) {
	ctx.Registry().Register(&function.Descriptor{
		Name:       s.Name,
		ReturnType: s.ReturnType,
		UserBody:   s.Body,
		UserParams: s.Params,
	})
	return value.NewNull(), ctrlNone, nil
}

// Explain implements the `explain` command (SPEC_FULL.md §12): dumps the
// parsed tree instead of evaluating it.
type Explain struct{ Node *ast.Node }

func (s *Explain) Exec(ctx *context.Context) (*value.Value, ctrl, error) {
	return value.NewString(s.Node.Dump()), ctrlNone, nil
}

// FileStmt implements `file [+|-|(expr)|filename]`. File handling's actual
// I/O (mmap, advisory locking) is an external collaborator per spec.md §6;
// this statement only drives context's already-open file list. `file +`
// and `file -` move to the next or previous open file; Name is not
// evaluated, so `file (expr)` and `file filename` switch nothing. Every
// form returns the current file's name.
type FileStmt struct {
	Next bool // `file +`
	Prev bool // `file -`
	Name *ast.Node
}

func (s *FileStmt) Exec(ctx *context.Context) (*value.Value, ctrl, error) {
	idx, _ := ctx.CurrentFile()
	switch {
	case s.Next:
		if idx+1 < ctx.FileCount() {
			if err := ctx.SwitchFile(idx + 1); err != nil {
				return nil, ctrlNone, err
			}
		}
	case s.Prev:
		if idx > 0 {
			if err := ctx.SwitchFile(idx - 1); err != nil {
				return nil, ctrlNone, err
			}
		}
	}
	_, name := ctx.CurrentFile()
	return value.NewString(name), ctrlNone, nil
}

// ImportStmt implements `import path`. Module resolution and dynamic
// loading are explicitly non-goals (spec.md §1); this records the import
// path as a no-op placeholder for a host embedding this core to act on.
type ImportStmt struct{ Path string }

func (s *ImportStmt) Exec(*context.Context) (*value.Value, ctrl, error) {
	return value.NewNull(), ctrlNone, nil
}

// PluginStmt implements `plugin name[,settings]`. Dynamic plugin loading is
// explicitly out of scope (spec.md §1); this records the request as a
// no-op placeholder for a host to act on, mirroring ImportStmt.
type PluginStmt struct {
	Name     string
	Settings *ast.Node
}

func (s *PluginStmt) Exec(ctx *context.Context) (*value.Value, ctrl, error) {
	if s.Settings != nil {
		if _, err := ast.Eval(s.Settings, ctx, nil); err != nil {
			return nil, ctrlNone, err
		}
	}
	return value.NewNull(), ctrlNone, nil
}

// SetStmt implements `set settings | set(expr)`. Configuration files are
// explicitly out of scope (spec.md §1); this only evaluates the settings
// expression and returns its value. No configuration state is changed.
type SetStmt struct{ Node *ast.Node }

func (s *SetStmt) Exec(ctx *context.Context) (*value.Value, ctrl, error) {
	if s.Node == nil {
		return value.NewNull(), ctrlNone, nil
	}
	v, err := ast.Eval(s.Node, ctx, nil)
	if err != nil {
		return nil, ctrlNone, err
	}
	return v, ctrlNone, nil
}
