// Package context implements the layered scope described in spec.md §4.6: a
// stack of named-value layers supporting name lookup, this/that binding,
// autoload, l-value resolution for assignment, and file-switch persistence.
// *Context implements ast.Scope, the narrow interface the evaluator depends
// on (see ast/scope.go).
package context

import (
	"sync/atomic"
	"time"

	"github.com/kirkendall/jsoncalc/ast"
	"github.com/kirkendall/jsoncalc/ast/function"
	"github.com/kirkendall/jsoncalc/errs"
	"github.com/kirkendall/jsoncalc/value"
)

// Flags mirror spec.md §3's context-layer flag set.
type Flags uint16

const (
	NoFree Flags = 1 << iota
	Var
	Const
	Global
	This
	Data
	Args
	NoCache
	Modified
)

// Layer is one scope frame, per spec.md §3 "Context layer".
type Layer struct {
	Older    *Layer
	Data     *value.Value
	Flags    Flags
	Autoload func(name string) (*value.Value, bool)
	Modified func()
}

// Executable is implemented by command.Block. It is declared here, not in
// package command, so that context (which command depends on to execute
// statements) need not import command back -- the same import-cycle
// avoidance spec.md's function.Descriptor.UserBody documents.
type Executable interface {
	ExecFunctionBody(scope ast.Scope) (*value.Value, error)
}

// sharedState is the mutable state shared by every Context derived from one
// root (via PushThis or a user-function call frame): the global vars/consts
// objects, the open-file list, and the process-wide interruption flag.
type sharedState struct {
	globalVars   *value.Value
	globalConsts *value.Value
	sysConsts    *value.Value
	baseGlobals  *Layer
	files        []*fileEntry
	curFile      int
	interrupted  *int32
	envFn        func(name string) (*value.Value, bool)
	writeBack    func(name string, v *value.Value) error
	reg          *function.Registry
}

// fileEntry is one opened document, per spec.md §4.6 "File switching".
type fileEntry struct {
	name     string
	writable bool
	layer    *Layer // Flags Data|Var, Older == state.baseGlobals
}

// Context is a stack of scope layers (top = newest) plus a pointer to state
// shared across every Context derived from the same root.
type Context struct {
	top   *Layer
	state *sharedState
}

// NewContext builds the "Standard context shape" of spec.md §4.6:
//
//	local vars layer (VAR, shares data with the globals' vars)
//	local consts layer (CONST, shares data with the globals' consts)
//	current-file "data" layer (DATA, VAR)
//	base globals layer (GLOBAL; autoloads time-of-day names without caching)
//	system-constants layer (CONST, NOFREE)
//
// The spec's "globals alias layer (for vars/consts/args visibility via
// global.*)" is not built as a literal layer here; it is implemented as
// direct special-casing of the name "global" in Lookup and Assign (see
// lvalue.go).
func NewContext(reg *function.Registry, docName string, doc *value.Value) *Context {
	sysConsts := &Layer{Data: value.NewObject(), Flags: Const | NoFree}
	baseGlobals := &Layer{Older: sysConsts, Data: value.NewObject(), Flags: Global | NoCache, Autoload: autoloadTimeOfDay}

	state := &sharedState{
		globalVars:   value.NewObject(),
		globalConsts: value.NewObject(),
		sysConsts:    sysConsts.Data,
		baseGlobals:  baseGlobals,
		interrupted:  new(int32),
		reg:          reg,
	}

	root := &fileEntry{name: docName, writable: true}
	dataObj := value.NewObject()
	dataObj.Set("data", doc)
	root.layer = &Layer{Older: baseGlobals, Data: dataObj, Flags: Data | Var}
	state.files = []*fileEntry{root}
	state.curFile = 0

	localConsts := &Layer{Older: root.layer, Data: state.globalConsts, Flags: Const}
	localVars := &Layer{Older: localConsts, Data: state.globalVars, Flags: Var}

	return &Context{top: localVars, state: state}
}

// SetEnviron installs the environment-lookup external collaborator of
// spec.md §6.
func (c *Context) SetEnviron(fn func(name string) (*value.Value, bool)) { c.state.envFn = fn }

// SetWriteBack installs the file-write external collaborator invoked by
// SwitchFile when the outgoing file is writable and modified.
func (c *Context) SetWriteBack(fn func(name string, v *value.Value) error) { c.state.writeBack = fn }

// Registry returns the function registry this context was built with, for
// command-layer statements (function definitions, plugin registration).
func (c *Context) Registry() *function.Registry { return c.state.reg }

// --- ast.Scope implementation ---

func autoloadTimeOfDay(name string) (*value.Value, bool) {
	switch name {
	case "now":
		return value.NewInt(time.Now().Unix()), true
	case "today":
		return value.NewString(time.Now().Format("2006-01-02")), true
	case "time":
		return value.NewString(time.Now().Format("15:04:05")), true
	}
	return nil, false
}

// Lookup resolves a bare NAME through the layer stack top-down, per spec.md
// §4.6 steps 1, 5, and 6. The name "global" is special-cased to a freshly
// synthesized union of the shared global vars+consts objects (see lvalue.go
// for why writes to global.* are special-cased separately).
func (c *Context) Lookup(name string) (*value.Value, bool) {
	if name == "global" {
		return c.globalAliasObject(), true
	}
	for l := c.top; l != nil; l = l.Older {
		if l.Flags&This != 0 || l.Data == nil {
			continue
		}
		if l.Flags&NoCache != 0 && l.Autoload != nil {
			if v, ok := l.Autoload(name); ok {
				return v, true
			}
		}
		if l.Data.Kind() == value.KindObject {
			if v, ok := l.Data.Get(name); ok {
				return v, true
			}
		}
		if l.Flags&NoCache == 0 && l.Autoload != nil {
			if v, ok := l.Autoload(name); ok {
				l.Data.Set(name, v)
				return v, true
			}
		}
	}
	return nil, false
}

func (c *Context) globalAliasObject() *value.Value {
	out := value.NewObject()
	for _, m := range c.state.globalVars.Members() {
		out.Set(m.Key, m.Val)
	}
	for _, m := range c.state.globalConsts.Members() {
		out.Set(m.Key, m.Val)
	}
	return out
}

// This and That resolve the most recent and second-most-recent THIS-flagged
// layers, per spec.md §3's invariant.
func (c *Context) This() (*value.Value, bool) {
	for l := c.top; l != nil; l = l.Older {
		if l.Flags&This != 0 {
			return l.Data, true
		}
	}
	return nil, false
}

func (c *Context) That() (*value.Value, bool) {
	seen := 0
	for l := c.top; l != nil; l = l.Older {
		if l.Flags&This != 0 {
			seen++
			if seen == 2 {
				return l.Data, true
			}
		}
	}
	return nil, false
}

// Environ looks up an environment value by name (spec.md §6); absence
// resolves to null rather than failure, matching "return null if absent".
func (c *Context) Environ(name string) (*value.Value, bool) {
	if c.state.envFn != nil {
		if v, ok := c.state.envFn(name); ok {
			return v, true
		}
	}
	return value.NewNull(), true
}

// PushThis returns a new scope with a THIS layer carrying row, used by
// EACH/GROUP row iteration (spec.md §4.4). The shared state (globals, files,
// interruption flag) is carried over by reference.
func (c *Context) PushThis(row *value.Value) ast.Scope {
	nc := *c
	nc.top = &Layer{Older: c.top, Data: row, Flags: This}
	return &nc
}

// Interrupted polls the process-wide cancellation flag (spec.md §5).
func (c *Context) Interrupted() bool { return atomic.LoadInt32(c.state.interrupted) != 0 }

// Interrupt and ResetInterrupt set/clear the cancellation flag; exposed for
// the command layer (e.g. a REPL's Ctrl-C handler) -- out of this core's
// scope per spec.md §1, but the flag itself is this package's to own.
func (c *Context) Interrupt()      { atomic.StoreInt32(c.state.interrupted, 1) }
func (c *Context) ResetInterrupt() { atomic.StoreInt32(c.state.interrupted, 0) }

// DefaultTable resolves the default table for a FROM-less SELECT, per
// spec.md §4.6: prefer `this` if it is a table, else the `data` variable if
// it is a table, else the first table-shaped member of `data`.
func (c *Context) DefaultTable() (*value.Value, string, error) {
	if v, ok := c.This(); ok && v.IsTable() {
		return v, "this", nil
	}
	if v, ok := c.Lookup("data"); ok {
		if v.IsTable() {
			return v, "data", nil
		}
		if v.Kind() == value.KindObject {
			for _, m := range v.Members() {
				if m.Val.IsTable() {
					return m.Val, "data." + m.Key, nil
				}
			}
		}
	}
	return nil, "", errs.ErrUnknownTable.New()
}

// CallUser invokes a user-defined function body, per spec.md §4.4 "User
// function call": a fresh call frame is built from the function's parameter
// template, reusing the shared data/globals/system-constants tail so the
// body can see `data`, `global.*`, and system constants, but not the
// caller's local vars -- per spec.md §8 property 7.
func (c *Context) CallUser(desc interface{}, args []*value.Value) (*value.Value, error) {
	fd, ok := desc.(*function.Descriptor)
	if !ok || fd == nil {
		return value.NewError(nil, "not callable"), nil
	}
	exec, ok := fd.UserBody.(Executable)
	if !ok || exec == nil {
		return value.NewError(nil, "function %q has no body", fd.Name), nil
	}
	return exec.ExecFunctionBody(c.newCallFrame(fd.UserParams, args))
}

func (c *Context) newCallFrame(params []function.UserParam, args []*value.Value) *Context {
	argsObj := value.NewObject()
	for i, p := range params {
		switch {
		case i < len(args):
			argsObj.Set(p.Name, args[i])
		case p.Default != nil:
			argsObj.Set(p.Name, p.Default.DeepCopy())
		default:
			argsObj.Set(p.Name, value.NewNull())
		}
	}
	argsLayer := &Layer{Older: c.sharedTail(), Data: argsObj, Flags: Const | Args}
	localConsts := &Layer{Older: argsLayer, Data: value.NewObject(), Flags: Const}
	localVars := &Layer{Older: localConsts, Data: value.NewObject(), Flags: Var}
	nc := *c
	nc.top = localVars
	return &nc
}

// sharedTail returns the current file's DATA layer, the root of the part of
// the layer chain every call frame and every PushThis scope shares: data,
// base globals (with time-of-day autoload), and system constants.
func (c *Context) sharedTail() *Layer { return c.state.files[c.state.curFile].layer }

// DeclareVar adds name to the innermost VAR layer -- the top-level local
// vars layer (shared with the global vars object) at the root scope, or a
// user function's own fresh locals layer inside a call frame -- per the
// command layer's `var` statement. A bare assignment to an undeclared name
// is an UnknownVar error (spec.md §8 property 6); `var` is what makes a
// name assignable, and declaring inside a call frame does not leak to the
// caller's scope (spec.md §8 property 7).
func (c *Context) DeclareVar(name string, initial *value.Value) {
	if l := c.topFlaggedLayer(Var); l != nil {
		l.Data.Set(name, initial)
	}
}

// DeclareConst adds name to the innermost CONST layer, per the command
// layer's `const` statement.
func (c *Context) DeclareConst(name string, initial *value.Value) {
	if l := c.topFlaggedLayer(Const); l != nil {
		l.Data.Set(name, initial)
	}
}

func (c *Context) topFlaggedLayer(want Flags) *Layer {
	for l := c.top; l != nil; l = l.Older {
		if l.Flags&want != 0 {
			return l
		}
	}
	return nil
}
