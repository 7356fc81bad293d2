package ast

import "github.com/kirkendall/jsoncalc/value"

// Scope is the narrow view of a context layer stack (package context) that
// the evaluator needs, per spec.md §4.6. Defining the interface here (not
// in package context) lets ast stay free of a dependency on context, while
// context.Context implements it.
type Scope interface {
	// Lookup resolves a NAME. The second return is false if unresolved,
	// in which case the caller constructs the "Unknown variable" error
	// value (spec.md §4.4 NAME).
	Lookup(name string) (*value.Value, bool)

	// This and That resolve the `this`/`that` names, bound only on THIS-
	// flagged layers (spec.md §3 invariant).
	This() (*value.Value, bool)
	That() (*value.Value, bool)

	// Environ looks up an environment value by name (spec.md §6).
	Environ(name string) (*value.Value, bool)

	// PushThis returns a new scope with a THIS layer carrying row pushed
	// on top, used by EACH/GROUP row iteration (spec.md §4.4).
	PushThis(row *value.Value) Scope

	// Interrupted polls the process-wide cancellation flag (spec.md §5).
	Interrupted() bool

	// DefaultTable resolves the default table for a FROM-less SELECT,
	// per spec.md §4.6's "Default table for SELECT" algorithm, also
	// returning a diagnostic name for the chosen table.
	DefaultTable() (*value.Value, string, error)

	// Assign, Append, and MaybeAssign resolve and perform a write to the
	// l-value named by node, per spec.md §4.6.
	Assign(node *Node, val *value.Value) (*value.Value, error)
	AppendAssign(node *Node, val *value.Value) (*value.Value, error)
	MaybeAssign(node *Node, val *value.Value) (*value.Value, error)

	// CallUser invokes a user-defined function body (spec.md §4.4 "User
	// function call"), pushing a fresh ARGS layer bound by the
	// function's parameter template.
	CallUser(desc interface{}, args []*value.Value) (*value.Value, error)
}
